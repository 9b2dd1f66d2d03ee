package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-authd"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()

	_, ok := auth.ClaimsFromContext(ctx)
	assert.False(t, ok)
	_, ok = auth.OpaqueIDFromContext(ctx)
	assert.False(t, ok)

	claims := &auth.JWTClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "acc-1"}}
	ctx = auth.WithClaims(ctx, claims)

	got, ok := auth.ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, claims, got)

	id, ok := auth.OpaqueIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "acc-1", id)
}

func TestServiceAuthenticate(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	pair, err := f.service.EmailLogin(ctx, auth.EmailLoginRequest{Email: "auth@example.com", Code: validCode})
	require.NoError(t, err)

	authed, claims, err := f.service.Authenticate(ctx, "Bearer "+pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.TokenUseAccess, claims.TokenUse)

	id, ok := auth.OpaqueIDFromContext(authed)
	require.True(t, ok)
	assert.Equal(t, claims.Subject(), id)

	_, _, err = f.service.Authenticate(ctx, pair.RefreshToken)
	assert.Error(t, err)

	_, _, err = f.service.Authenticate(ctx, "")
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenMissing))
}
