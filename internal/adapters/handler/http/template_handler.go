package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

type TemplateHandler struct {
	svc *services.TemplateService
}

func NewTemplateHandler(svc *services.TemplateService) *TemplateHandler {
	return &TemplateHandler{
		svc: svc,
	}
}

type templateRequest struct {
	Name        string              `json:"name" binding:"required"`
	Habits      []domain.Habit      `json:"habits"`
	ContextRule *domain.ContextRule `json:"context_rule"`
	IsDefault   bool                `json:"is_default"`
	Version     int                 `json:"version"`
}

func (h *TemplateHandler) RegisterRoutes(router *gin.RouterGroup) {
	templates := router.Group("/templates")
	{
		templates.POST("", h.Create)
		templates.GET("", h.List)
		templates.GET("/sync", h.Sync)
		templates.GET("/select", h.Select)
		templates.GET("/:id", h.Get)
		templates.PUT("/:id", h.Update)
		templates.DELETE("/:id", h.Delete)
	}
}

// Create godoc
// @Summary  Create a routine template
// @Tags     templates
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body body templateRequest true "template"
// @Success  201 {object} domain.RoutineTemplate
// @Failure  400 {object} map[string]string
// @Router   /templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.svc.Create(c.Request.Context(), services.CreateTemplateInput{
		UserID:      userID,
		Name:        req.Name,
		Habits:      req.Habits,
		ContextRule: req.ContextRule,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, t)
}

// List godoc
// @Summary  List the user's templates
// @Tags     templates
// @Produce  json
// @Security BearerAuth
// @Success  200 {array} domain.RoutineTemplate
// @Router   /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	list, err := h.svc.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *TemplateHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	t, err := h.svc.Get(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"template":                   t,
		"estimated_duration_seconds": int(t.EstimatedDuration() / time.Second),
	})
}

// Sync godoc
// @Summary  Template changes since last_sync (RFC3339), tombstones included
// @Tags     templates
// @Produce  json
// @Security BearerAuth
// @Param    last_sync query string false "RFC3339 timestamp"
// @Router   /templates/sync [get]
func (h *TemplateHandler) Sync(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
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

// Select godoc
// @Summary  Pick the best template for the current context
// @Tags     templates
// @Produce  json
// @Security BearerAuth
// @Param    at  query string false "RFC3339 instant, defaults to now"
// @Param    lat query number false "latitude"
// @Param    lon query number false "longitude"
// @Success  200 {object} services.SelectionResult
// @Failure  404 {object} services.SelectionResult
// @Router   /templates/select [get]
func (h *TemplateHandler) Select(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	at, coord, err := parseContextQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.Select(c.Request.Context(), services.SelectInput{UserID: userID, At: at, Location: coord})
	if errors.Is(err, domain.ErrNoMatchingTemplate) && result != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   err.Error(),
			"context": result.Context,
			"scores":  result.Scores,
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *TemplateHandler) Update(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.svc.Update(c.Request.Context(), services.UpdateTemplateInput{
		ID:          c.Param("id"),
		UserID:      userID,
		Name:        req.Name,
		Habits:      req.Habits,
		ContextRule: req.ContextRule,
		IsDefault:   req.IsDefault,
		Version:     req.Version,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTemplateConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "version conflict",
				"message": "Data has been modified elsewhere. Please sync.",
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, t)
}

func (h *TemplateHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseOptionalTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

var errBadCoordinate = errors.New("lat and lon must be given together as decimal degrees")

// parseContextQuery reads the optional at, lat and lon query parameters.
func parseContextQuery(c *gin.Context) (time.Time, *domain.Coordinate, error) {
	at, err := parseOptionalTime(c.Query("at"))
	if err != nil {
		return time.Time{}, nil, errors.New("invalid at format, use RFC3339")
	}

	latRaw, lonRaw := c.Query("lat"), c.Query("lon")
	if latRaw == "" && lonRaw == "" {
		return at, nil, nil
	}
	lat, latErr := strconv.ParseFloat(latRaw, 64)
	lon, lonErr := strconv.ParseFloat(lonRaw, 64)
	if latErr != nil || lonErr != nil {
		return time.Time{}, nil, errBadCoordinate
	}

	coord := &domain.Coordinate{Latitude: lat, Longitude: lon}
	if err := coord.Validate(); err != nil {
		return time.Time{}, nil, err
	}
	return at, coord, nil
}
