package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}
func (m *MockUserRepo) UpdateTimezone(ctx context.Context, id, timezone string) error {
	return m.Called(ctx, id, timezone).Error(0)
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Parallel()

	setupRouter := func(tokenService *services.TokenService) *gin.Engine {
		router := gin.New()
		router.Use(AuthMiddleware(tokenService))
		router.GET("/protected", func(c *gin.Context) {
			userID, ok := GetUserID(c)
			if !ok {
				c.String(http.StatusInternalServerError, "UserID not found in context")
				return
			}
			c.String(http.StatusOK, "Hello "+userID)
		})
		return router
	}

	secret := "test-secret-middleware"
	issuer := "test-issuer"

	call := func(router *gin.Engine, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("Success: Valid Token", func(t *testing.T) {
		t.Parallel()
		mockRepo := new(MockUserRepo)
		tokenService := services.NewTokenService(secret, issuer, time.Hour, mockRepo)
		router := setupRouter(tokenService)

		user := &domain.User{ID: "user-123", Timezone: "Europe/Rome"}
		mockRepo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

		validToken, _ := tokenService.GenerateToken(user)
		w := call(router, "Bearer "+validToken)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Hello user-123", w.Body.String())
	})

	t.Run("Error: Missing Authorization Header", func(t *testing.T) {
		t.Parallel()
		router := setupRouter(services.NewTokenService(secret, issuer, time.Hour, new(MockUserRepo)))

		w := call(router, "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "authorization header required")
	})

	t.Run("Error: Invalid Header Format", func(t *testing.T) {
		t.Parallel()
		router := setupRouter(services.NewTokenService(secret, issuer, time.Hour, new(MockUserRepo)))

		for _, h := range []string{"Bearer", "Token 12345", "Bearer12345", "Bearer a b"} {
			w := call(router, h)
			assert.Equal(t, http.StatusUnauthorized, w.Code, "Should fail for header: "+h)
			assert.Contains(t, w.Body.String(), "invalid authorization header format")
		}
	})

	t.Run("Error: Token with Wrong Signature", func(t *testing.T) {
		t.Parallel()
		mockRepo := new(MockUserRepo)
		serviceMiddleware := services.NewTokenService(secret, issuer, time.Hour, mockRepo)
		serviceAttacker := services.NewTokenService("wrong-secret", issuer, time.Hour, mockRepo)

		badToken, _ := serviceAttacker.GenerateToken(&domain.User{ID: "attacker"})
		w := call(setupRouter(serviceMiddleware), "Bearer "+badToken)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid or expired token")
	})

	t.Run("Error: Expired Token", func(t *testing.T) {
		t.Parallel()
		expiredService := services.NewTokenService(secret, issuer, -time.Second, new(MockUserRepo))

		expiredToken, _ := expiredService.GenerateToken(&domain.User{ID: "user-expired"})
		w := call(setupRouter(expiredService), "Bearer "+expiredToken)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "token expired")
	})

	t.Run("Error: Deleted User", func(t *testing.T) {
		t.Parallel()
		mockRepo := new(MockUserRepo)
		tokenService := services.NewTokenService(secret, issuer, time.Hour, mockRepo)
		mockRepo.On("GetByID", mock.Anything, "gone").Return(nil, domain.ErrUserNotFound)

		token, _ := tokenService.GenerateToken(&domain.User{ID: "gone"})
		w := call(setupRouter(tokenService), "Bearer "+token)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
