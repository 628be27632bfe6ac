package services

import (
	"errors"
	"testing"
	"time"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTokenService_GenerateAndValidate(t *testing.T) {
	secret := "super-secret-key-for-testing"
	issuer := "kanso-test"
	user := &domain.User{ID: "user-123-uuid", Timezone: "Europe/Rome"}

	setup := func() (*TokenService, *MockUserRepository) {
		mockRepo := new(MockUserRepository)
		return NewTokenService(secret, issuer, 1*time.Hour, mockRepo), mockRepo
	}

	t.Run("Success: Should generate and validate a token", func(t *testing.T) {
		service, mockRepo := setup()
		mockRepo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

		tokenString, err := service.GenerateToken(user)
		require.NoError(t, err)

		extractedID, err := service.ValidateToken(tokenString)
		require.NoError(t, err)
		assert.Equal(t, user.ID, extractedID)

		var claims Claims
		_, _, err = jwt.NewParser().ParseUnverified(tokenString, &claims)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Rome", claims.Timezone)

		mockRepo.AssertExpectations(t)
	})

	t.Run("Error: Should reject valid token if user is deleted", func(t *testing.T) {
		service, mockRepo := setup()
		mockRepo.On("GetByID", mock.Anything, user.ID).Return(nil, errors.New("user not found"))

		tokenString, err := service.GenerateToken(user)
		require.NoError(t, err)

		extractedID, err := service.ValidateToken(tokenString)
		assert.ErrorContains(t, err, "user no longer exists")
		assert.Empty(t, extractedID)
	})

	t.Run("Error: Should reject expired token", func(t *testing.T) {
		service := NewTokenService(secret, issuer, -1*time.Second, new(MockUserRepository))

		tokenString, err := service.GenerateToken(user)
		require.NoError(t, err)

		extractedID, err := service.ValidateToken(tokenString)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
		assert.Empty(t, extractedID)
	})

	t.Run("Error: Should reject token signed with another key", func(t *testing.T) {
		service, _ := setup()
		tokenString, _ := service.GenerateToken(user)

		attacker := NewTokenService("wrong-key", issuer, 1*time.Hour, new(MockUserRepository))

		_, err := attacker.ValidateToken(tokenString)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("Error: Should reject token with wrong issuer", func(t *testing.T) {
		repo := new(MockUserRepository)
		tokenString, _ := NewTokenService(secret, "correct-issuer", 1*time.Hour, repo).GenerateToken(user)

		_, err := NewTokenService(secret, "wrong-issuer", 1*time.Hour, repo).ValidateToken(tokenString)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("Error: Should reject 'none' algorithm attack", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": user.ID, "iss": issuer})
		fakeTokenString, _ := token.SignedString(jwt.UnsafeAllowNoneSignatureType)

		service, _ := setup()
		_, err := service.ValidateToken(fakeTokenString)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("Error: Should reject malformed token string", func(t *testing.T) {
		service, _ := setup()

		extractedID, err := service.ValidateToken("this-is-not-a-jwt")
		assert.ErrorIs(t, err, jwt.ErrTokenMalformed)
		assert.Empty(t, extractedID)
	})
}
