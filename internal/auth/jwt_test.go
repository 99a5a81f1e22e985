package auth

import (
	"testing"
	"time"

	"provider-sync/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", "orders-app")

	token, err := svc.GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	userID, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestAuthenticateFailures(t *testing.T) {
	svc := NewJWTService("test-secret", "orders-app")

	expired, err := svc.GenerateToken("user-1", -time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewJWTService("test-secret", "someone-else").GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	wrongKey, err := NewJWTService("other-secret", "orders-app").GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"expired", expired},
		{"wrong issuer", otherIssuer},
		{"wrong key", wrongKey},
		{"alg none", noneAlg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Authenticate(tt.token)
			var authErr *models.AuthenticationError
			assert.ErrorAs(t, err, &authErr)
		})
	}
}

func TestAuthenticateWithoutSecret(t *testing.T) {
	svc := NewJWTService("", "")

	_, err := svc.GenerateToken("user-1", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)

	_, err = svc.Authenticate("anything")
	var authErr *models.AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}
