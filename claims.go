package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token use values carried in the typ claim.
const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// JWTClaims is the payload of both access and refresh tokens. The subject is
// always the account's opaque id.
type JWTClaims struct {
	jwt.RegisteredClaims
	TokenUse string         `json:"typ,omitempty"`
	UserRole string         `json:"role,omitempty"`
	DeviceID string         `json:"did,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"` // extension payload
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// JTI returns the token id
func (c *JWTClaims) JTI() string {
	return c.RegisteredClaims.ID
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *JWTClaims) IsRefresh() bool {
	return c.TokenUse == TokenUseRefresh
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// ExtraClaims are optional access token claims. DeviceID is promoted to the
// did claim, everything else lands in metadata.
type ExtraClaims struct {
	DeviceID string
	Metadata map[string]any
}

// IssuedToken is a signed token together with the claims it carries.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}
