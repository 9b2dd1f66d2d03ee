package auth

import (
	"context"
	"strings"
)

var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithClaims stores verified access token claims in ctx.
func WithClaims(ctx context.Context, claims *JWTClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext returns the claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (*JWTClaims, bool) {
	claims, ok := ctx.Value(claimsCtxKey).(*JWTClaims)
	return claims, ok && claims != nil
}

// OpaqueIDFromContext returns the authenticated account's opaque id.
func OpaqueIDFromContext(ctx context.Context) (string, bool) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Subject() == "" {
		return "", false
	}
	return claims.Subject(), true
}

// Authenticate verifies an access token, accepting an optional "Bearer "
// prefix, and returns ctx carrying its claims.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (context.Context, *JWTClaims, error) {
	token := strings.TrimSpace(accessToken)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}

	claims, err := s.codec.VerifyAccess(token)
	if err != nil {
		return ctx, nil, err
	}
	return WithClaims(ctx, claims), claims, nil
}
