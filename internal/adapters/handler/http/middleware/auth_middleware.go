package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/comitanigiacomo/kanso-routines/internal/core/services"
	"github.com/comitanigiacomo/kanso-routines/internal/metrics"
)

const (
	authorizationHeader = "Authorization"
	authorizationType   = "Bearer"
	ContextUserIDKey    = "userID"
)

func reject(c *gin.Context, reason, message string) {
	metrics.AuthRejections.WithLabelValues(reason).Inc()
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// AuthMiddleware accepts "Bearer <jwt>" and stores the token subject under
// ContextUserIDKey. Tokens of deleted users are refused.
func AuthMiddleware(tokenService *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader(authorizationHeader)
		if authHeader == "" {
			reject(c, "missing", "authorization header required")
			return
		}

		fields := strings.Fields(authHeader)
		if len(fields) != 2 || !strings.EqualFold(fields[0], authorizationType) {
			reject(c, "malformed", "invalid authorization header format")
			return
		}

		userID, err := tokenService.ValidateToken(fields[1])
		if errors.Is(err, jwt.ErrTokenExpired) {
			reject(c, "expired", "token expired, please log in again")
			return
		}
		if err != nil {
			reject(c, "invalid", "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func GetUserID(c *gin.Context) (string, bool) {
	id, exists := c.Get(ContextUserIDKey)
	if !exists {
		return "", false
	}
	idStr, ok := id.(string)
	return idStr, ok && idStr != ""
}
