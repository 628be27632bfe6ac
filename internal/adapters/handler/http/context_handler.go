package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

type ContextHandler struct {
	svc *services.ContextService
}

func NewContextHandler(svc *services.ContextService) *ContextHandler {
	return &ContextHandler{svc: svc}
}

func (h *ContextHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/context")
	{
		group.GET("", h.Resolve)
		group.GET("/settings", h.GetSettings)
		group.PUT("/settings", h.UpdateSettings)
	}
}

// Resolve godoc
// @Summary  Resolve time slot, day category and location category
// @Tags     context
// @Produce  json
// @Security BearerAuth
// @Param    at  query string false "RFC3339 instant, defaults to now"
// @Param    lat query number false "latitude"
// @Param    lon query number false "longitude"
// @Success  200 {object} domain.Context
// @Router   /context [get]
func (h *ContextHandler) Resolve(c *gin.Context) {
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

	resolved, err := h.svc.Resolve(c.Request.Context(), services.ResolveInput{UserID: userID, At: at, Location: coord})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

func (h *ContextHandler) GetSettings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	settings, err := h.svc.GetSettings(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdateSettings godoc
// @Summary  Replace the user's time slots, day categories and locations
// @Tags     context
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body body domain.ContextSettings true "settings"
// @Success  200 {object} domain.ContextSettings
// @Failure  400 {object} map[string]string
// @Router   /context/settings [put]
func (h *ContextHandler) UpdateSettings(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user context missing"})
		return
	}

	var req domain.ContextSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.svc.UpdateSettings(c.Request.Context(), userID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}
