package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

const deviceHeader = "X-Device-ID"

const defaultHistoryWindow = 30 * 24 * time.Hour

type SessionHandler struct {
	svc *services.SessionService
}

func NewSessionHandler(svc *services.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

type startSessionRequest struct {
	TemplateID string   `json:"template_id"`
	Latitude   *float64 `json:"lat"`
	Longitude  *float64 `json:"lon"`
}

type habitRequest struct {
	HabitID          string `json:"habit_id" binding:"required"`
	TimeTakenSeconds *int   `json:"time_taken_seconds"`
	Notes            string `json:"notes"`
}

type optionRequest struct {
	HabitID  string `json:"habit_id" binding:"required"`
	OptionID string `json:"option_id"`
}

func (h *SessionHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	{
		sessions.POST("", h.Start)
		sessions.GET("", h.History)
		sessions.GET("/sync", h.Sync)
		sessions.GET("/records/:id", h.GetRecord)

		current := sessions.Group("/current")
		current.GET("", h.Current)
		current.POST("/complete", h.Complete)
		current.POST("/skip", h.Skip)
		current.POST("/select-option", h.SelectOption)
		current.POST("/clear-option", h.ClearOption)
		current.POST("/advance", h.Advance)
		current.POST("/retreat", h.Retreat)
		current.POST("/finish", h.Finish)
		current.POST("/cancel", h.Cancel)
	}
}

// identity reads the user from the auth middleware and the device from the
// X-Device-ID header.
func identity(c *gin.Context) (string, string, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return "", "", false
	}
	return userID, c.GetHeader(deviceHeader), true
}

// Start godoc
// @Summary  Start a session from an explicit template or by smart selection
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    X-Device-ID header string false "device id, defaults to 'default'"
// @Param    body body startSessionRequest false "leave template_id empty to auto-select"
// @Success  201 {object} domain.SessionSnapshot
// @Failure  404,409,422 {object} map[string]string
// @Router   /sessions [post]
func (h *SessionHandler) Start(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}

	var req startSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var coord *domain.Coordinate
	if req.Latitude != nil || req.Longitude != nil {
		if req.Latitude == nil || req.Longitude == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBadCoordinate.Error()})
			return
		}
		coord = &domain.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
		if err := coord.Validate(); err != nil {
			respondError(c, err)
			return
		}
	}

	snapshot, err := h.svc.Start(c.Request.Context(), services.StartSessionInput{
		UserID:     userID,
		DeviceID:   deviceID,
		TemplateID: req.TemplateID,
		Location:   coord,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snapshot)
}

func (h *SessionHandler) Current(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	h.respond(c)(h.svc.Current(userID, deviceID))
}

// respond returns a writer for the (snapshot, error) pair every intent yields.
func (h *SessionHandler) respond(c *gin.Context) func(*domain.SessionSnapshot, error) {
	return func(snapshot *domain.SessionSnapshot, err error) {
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

// Complete godoc
// @Summary  Record a habit as done
// @Tags     sessions
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body body habitRequest true "habit"
// @Success  200 {object} domain.SessionSnapshot
// @Failure  404,409,422 {object} map[string]string
// @Router   /sessions/current/complete [post]
func (h *SessionHandler) Complete(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c)(h.svc.Complete(services.HabitInput{
		UserID:           userID,
		DeviceID:         deviceID,
		HabitID:          req.HabitID,
		TimeTakenSeconds: req.TimeTakenSeconds,
		Notes:            req.Notes,
	}))
}

func (h *SessionHandler) Skip(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	var req habitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c)(h.svc.Skip(services.HabitInput{
		UserID:   userID,
		DeviceID: deviceID,
		HabitID:  req.HabitID,
		Notes:    req.Notes,
	}))
}

func (h *SessionHandler) SelectOption(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	var req optionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OptionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "habit_id and option_id are required"})
		return
	}
	h.respond(c)(h.svc.SelectOption(services.OptionInput{
		UserID:   userID,
		DeviceID: deviceID,
		HabitID:  req.HabitID,
		OptionID: req.OptionID,
	}))
}

func (h *SessionHandler) ClearOption(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	var req optionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.respond(c)(h.svc.ClearOption(services.OptionInput{
		UserID:   userID,
		DeviceID: deviceID,
		HabitID:  req.HabitID,
	}))
}

func (h *SessionHandler) Advance(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	h.respond(c)(h.svc.Advance(userID, deviceID))
}

func (h *SessionHandler) Retreat(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	h.respond(c)(h.svc.Retreat(userID, deviceID))
}

// Finish godoc
// @Summary  Complete the session; sink failures come back as warnings
// @Tags     sessions
// @Produce  json
// @Security BearerAuth
// @Success  200 {object} services.TerminalResult
// @Failure  404,409,422 {object} map[string]string
// @Router   /sessions/current/finish [post]
func (h *SessionHandler) Finish(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	result, err := h.svc.Finish(c.Request.Context(), userID, deviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) Cancel(c *gin.Context) {
	userID, deviceID, ok := identity(c)
	if !ok {
		return
	}
	result, err := h.svc.Cancel(c.Request.Context(), userID, deviceID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// History godoc
// @Summary  Finished and cancelled sessions started in [from, to)
// @Tags     sessions
// @Produce  json
// @Security BearerAuth
// @Param    from query string false "RFC3339, defaults to 30 days before to"
// @Param    to   query string false "RFC3339, defaults to now"
// @Success  200 {array} domain.CompletionRecord
// @Router   /sessions [get]
func (h *SessionHandler) History(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	to, err := parseOptionalTime(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to format, use RFC3339"})
		return
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from, err := parseOptionalTime(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from format, use RFC3339"})
		return
	}
	if from.IsZero() {
		from = to.Add(-defaultHistoryWindow)
	}

	records, err := h.svc.History(c.Request.Context(), userID, from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *SessionHandler) GetRecord(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	record, err := h.svc.GetByID(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *SessionHandler) Sync(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}

	lastSync, err := parseOptionalTime(c.Query("last_sync"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_sync format, use RFC3339"})
		return
	}

	deltas, err := h.svc.GetDelta(c.Request.Context(), userID, lastSync)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sync failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"changes":   deltas,
		"timestamp": time.Now().UTC(),
	})
}
