package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comitanigiacomo/kanso-routines/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

func newInMemoryRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := repository.NewInMemoryUserRepository()
	history := repository.NewInMemorySessionRepository()
	tokens := services.NewTokenService("router-secret", "kanso-test", time.Hour, users)

	contextSvc := services.NewContextService(repository.NewInMemoryContextSettingsRepository(), users, domain.DefaultContextSettings())
	templateSvc := services.NewTemplateService(repository.NewInMemoryTemplateRepository(), contextSvc)
	sessionSvc := services.NewSessionService(templateSvc, history, &recordingExporter{})

	return NewRouter(RouterDependencies{
		AuthHandler:     NewAuthHandler(services.NewAuthService(users), tokens),
		TemplateHandler: NewTemplateHandler(templateSvc),
		ContextHandler:  NewContextHandler(contextSvc),
		SessionHandler:  NewSessionHandler(sessionSvc),
		StatsHandler:    NewStatsHandler(services.NewStatsService(history), users),
		TokenService:    tokens,
		StartTime:       time.Now(),
	})
}

func TestRouter_Infrastructure(t *testing.T) {
	router := newInMemoryRouter(t)

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
		wantBody string
	}{
		{"Error: Health without a database is degraded", http.MethodGet, "/health", http.StatusServiceUnavailable, `"redis":"disabled"`},
		{"Success: Prometheus metrics", http.MethodGet, "/metrics", http.StatusOK, "kanso_"},
		{"Success: Swagger UI", http.MethodGet, "/swagger/index.html", http.StatusOK, "swagger"},
		{"Success: CORS preflight", http.MethodOptions, "/api/v1/templates", http.StatusNoContent, ""},
		{"Error: Protected route without token", http.MethodGet, "/api/v1/templates", http.StatusUnauthorized, "authorization header required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouter_RoutineLifecycle(t *testing.T) {
	router := newInMemoryRouter(t)

	w := postJSON(router, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email": "flow@kanso.app", "password": "Password123!", "timezone": "Europe/Rome",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(router, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "flow@kanso.app", "password": "Password123!",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login loginResponse
	decode(t, w, &login)
	auth := []string{"Authorization", "Bearer " + login.Token, deviceHeader, "watch"}

	w = postJSON(router, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"name":   "Wind down",
		"habits": []domain.Habit{task("tea", 0), optional("read", 1)},
	}, auth...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tpl domain.RoutineTemplate
	decode(t, w, &tpl)

	w = postJSON(router, http.MethodPost, "/api/v1/sessions", map[string]string{"template_id": tpl.ID}, auth...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = postJSON(router, http.MethodPost, "/api/v1/sessions/current/complete", map[string]string{"habit_id": "tea"}, auth...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = postJSON(router, http.MethodPost, "/api/v1/sessions/current/finish", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result services.TerminalResult
	decode(t, w, &result)
	assert.True(t, result.Record.IsCompleted)
	assert.Equal(t, "watch", result.Record.DeviceID)
	assert.Equal(t, login.User.ID, result.Record.UserID)

	w = postJSON(router, http.MethodGet, "/api/v1/stats/routines", nil, auth...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report domain.RoutineStatsReport
	decode(t, w, &report)
	assert.Equal(t, 1, report.TotalSessions)
}
