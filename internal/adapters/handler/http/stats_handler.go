package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

const dateLayout = "2006-01-02"

type StatsHandler struct {
	svc   *services.StatsService
	users domain.UserRepository
}

func NewStatsHandler(svc *services.StatsService, users domain.UserRepository) *StatsHandler {
	return &StatsHandler{svc: svc, users: users}
}

func (h *StatsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/stats/routines", h.GetRoutineStats)
}

// GetRoutineStats godoc
// @Summary  Per-routine completion stats over calendar days in the user's timezone
// @Tags     stats
// @Produce  json
// @Security BearerAuth
// @Param    from query string false "YYYY-MM-DD, defaults to 29 days before to"
// @Param    to   query string false "YYYY-MM-DD inclusive, defaults to today"
// @Success  200 {object} domain.RoutineStatsReport
// @Failure  400 {object} map[string]string
// @Router   /stats/routines [get]
func (h *StatsHandler) GetRoutineStats(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	loc := user.Location()

	var to, from time.Time
	if s := c.Query("to"); s == "" {
		now := time.Now().In(loc)
		to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	} else {
		to, err = time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to format, expected YYYY-MM-DD"})
			return
		}
	}

	if s := c.Query("from"); s == "" {
		from = to.AddDate(0, 0, -29)
	} else {
		from, err = time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from format, expected YYYY-MM-DD"})
			return
		}
	}

	if from.After(to) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from cannot be after to"})
		return
	}

	const maxDaysRange = 366
	if to.Sub(from).Hours()/24 > maxDaysRange {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date range too large, max 1 year allowed"})
		return
	}

	stats, err := h.svc.GetRoutineStats(c.Request.Context(), domain.StatsInput{
		UserID:   userID,
		From:     from,
		To:       to.AddDate(0, 0, 1),
		Location: loc,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve statistics"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
