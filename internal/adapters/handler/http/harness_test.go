package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/handler/http/middleware"
	"github.com/comitanigiacomo/kanso-routines/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

// Monday 2026-03-09, 07:30 UTC.
var handlerNow = time.Date(2026, 3, 9, 7, 30, 0, 0, time.UTC)

type recordingExporter struct {
	records []domain.CompletionRecord
	parked  map[string][]domain.CompletionRecord
}

func (e *recordingExporter) Enqueue(record domain.CompletionRecord) error {
	e.records = append(e.records, record)
	return nil
}

func (e *recordingExporter) Park(record domain.CompletionRecord, sink string) error {
	if e.parked == nil {
		e.parked = make(map[string][]domain.CompletionRecord)
	}
	e.parked[sink] = append(e.parked[sink], record)
	return nil
}

type routinesHarness struct {
	router    *gin.Engine
	users     *repository.InMemoryUserRepository
	templates *repository.InMemoryTemplateRepository
	history   *repository.InMemorySessionRepository
	exporter  *recordingExporter

	templateSvc *services.TemplateService
}

func newRoutinesHarness(t *testing.T, userIDs ...string) *routinesHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &routinesHarness{
		users:     repository.NewInMemoryUserRepository(),
		templates: repository.NewInMemoryTemplateRepository(),
		history:   repository.NewInMemorySessionRepository(),
		exporter:  &recordingExporter{},
	}
	for _, id := range userIDs {
		u, err := domain.NewUser(id, id+"@kanso.app")
		require.NoError(t, err)
		require.NoError(t, h.users.Create(context.Background(), u))
	}

	contextSvc := services.NewContextService(repository.NewInMemoryContextSettingsRepository(), h.users, domain.DefaultContextSettings())
	h.templateSvc = services.NewTemplateService(h.templates, contextSvc)
	sessionSvc := services.NewSessionService(h.templateSvc, h.history, h.exporter).
		WithClock(func() time.Time { return handlerNow })
	statsSvc := services.NewStatsService(h.history)

	h.router = gin.New()
	h.router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User-ID"); id != "" {
			c.Set(middleware.ContextUserIDKey, id)
		}
		c.Next()
	})
	api := h.router.Group("/api/v1")
	NewTemplateHandler(h.templateSvc).RegisterRoutes(api)
	NewContextHandler(contextSvc).RegisterRoutes(api)
	NewSessionHandler(sessionSvc).RegisterRoutes(api)
	NewStatsHandler(statsSvc, h.users).RegisterRoutes(api)

	return h
}

func (h *routinesHarness) addTemplate(t *testing.T, userID, name string, rule *domain.ContextRule, habits ...domain.Habit) *domain.RoutineTemplate {
	t.Helper()
	tpl, err := h.templateSvc.Create(context.Background(), services.CreateTemplateInput{
		UserID:      userID,
		Name:        name,
		Habits:      habits,
		ContextRule: rule,
	})
	require.NoError(t, err)
	return tpl
}

func (h *routinesHarness) do(method, path, userID string, payload interface{}, headers ...string) *httptest.ResponseRecorder {
	return postJSON(h.router, method, path, payload, append([]string{"X-User-ID", userID}, headers...)...)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func task(id string, order int) domain.Habit {
	return domain.Habit{ID: id, Name: id, Type: domain.TaskType(), Order: order, IsActive: true}
}

func optional(id string, order int) domain.Habit {
	h := task(id, order)
	h.IsOptional = true
	return h
}
