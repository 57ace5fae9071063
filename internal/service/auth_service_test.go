package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/models"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(zap.NewNop(), AuthConfig{AccessTokenSecret: "secret", Issuer: "tutor-connect"})
}

func TestAuthServiceValidateIssuedToken(t *testing.T) {
	svc := newTestAuthService()
	token, err := svc.IssueToken("stu-1", "stu@example.com", models.RoleStudent, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "stu@example.com", claims.Email)
}

func TestAuthServiceFallsBackToSubjectAndDefaultRole(t *testing.T) {
	svc := newTestAuthService()
	claims := jwt.RegisteredClaims{
		Subject:   "provider-user",
		Issuer:    "tutor-connect",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	parsed, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "provider-user", parsed.UserID)
	assert.Equal(t, models.RoleStudent, parsed.Role)
}

func TestAuthServiceRejectsInvalidTokens(t *testing.T) {
	svc := newTestAuthService()

	expired, err := svc.IssueToken("stu-1", "", models.RoleStudent, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	other := NewAuthService(nil, AuthConfig{AccessTokenSecret: "other", Issuer: "tutor-connect"})
	forged, err := other.IssueToken("stu-1", "", models.RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(forged)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongIssuer := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	token, err := wrongIssuer.IssueToken("stu-1", "", models.RoleStudent, time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	unknownRole, err := svc.IssueToken("stu-1", "", models.UserRole("ROOT"), time.Hour)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unknownRole)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
