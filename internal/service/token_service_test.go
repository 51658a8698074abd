package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elab-api/internal/models"
	appErrors "github.com/noah-isme/elab-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "elab-portal", Expiration: time.Hour})

	token, err := svc.Sign("lecturer-1", models.RoleLecturer)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, models.Actor{UserID: "lecturer-1", Role: models.RoleLecturer}, claims.Actor())
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "other", Issuer: "elab-portal"})
	token, err := issuer.Sign("admin-1", models.RoleAdmin)
	require.NoError(t, err)

	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "elab-portal"})
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	wrongIssuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "someone-else"})
	token, err = wrongIssuer.Sign("admin-1", models.RoleAdmin)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))

	_, err = svc.ValidateToken("not-a-token")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestTokenServiceRejectsExpired(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Expiration: time.Minute})
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	token, err := svc.Sign("lecturer-1", models.RoleLecturer)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}
