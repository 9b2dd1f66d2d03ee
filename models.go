package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the account's role
type UserRole = string

const (
	// RoleMember is a regular account
	RoleMember UserRole = "member"
	// RoleAdmin is an administrator
	RoleAdmin UserRole = "admin"
)

// ParseRole safely parses a string into a UserRole
func ParseRole(roleStr string) (UserRole, bool) {
	switch role := strings.ToLower(strings.TrimSpace(roleStr)); role {
	case RoleMember, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// Revocation reasons stored on refresh sessions.
const (
	RevokeRotated = "rotated"
	RevokeLogout  = "logout"
	RevokeExpired = "expired"
	RevokeMerged  = "merged"
)

// Account is the canonical identity of a person. ID is internal and never
// leaves the core; OpaqueID is the externally visible, immutable handle.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`

	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"-"`
	OpaqueID        string     `bun:"opaque_id,notnull,unique" json:"opaque_id"`
	Nickname        string     `bun:"nickname,notnull" json:"nickname"`
	Role            UserRole   `bun:"role,notnull" json:"role"`
	IsEmailVerified bool       `bun:"is_email_verified,notnull" json:"is_email_verified"`
	LastLoginAt     *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt       *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the account was soft deleted, e.g. merged away.
func (a *Account) IsDeleted() bool {
	return a != nil && a.DeletedAt != nil
}

// ProviderLink binds one external identity to one Account.
type ProviderLink struct {
	bun.BaseModel `bun:"table:provider_links,alias:pl"`

	ID           uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id"`
	AccountID    uuid.UUID    `bun:"account_id,notnull,type:uuid" json:"-"`
	Account      *Account     `bun:"rel:belongs-to,join:account_id=id" json:"account,omitempty"`
	ProviderType ProviderType `bun:"provider_type,notnull" json:"provider_type"`
	ProviderID   string       `bun:"provider_id,notnull" json:"provider_id"`
	Email        string       `bun:"email" json:"email,omitempty"`
	CreatedAt    *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time   `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt    *time.Time   `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// RefreshSession is one outstanding refresh token grant. Rows are revoked by
// soft delete and kept for replay detection.
type RefreshSession struct {
	bun.BaseModel `bun:"table:refresh_sessions,alias:rs"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id"`
	AccountID    uuid.UUID  `bun:"account_id,notnull,type:uuid" json:"-"`
	JTI          string     `bun:"jti,notnull" json:"jti"`
	OpaqueID     string     `bun:"opaque_id,notnull" json:"opaque_id"`
	DeviceID     *string    `bun:"device_id,nullzero" json:"device_id,omitempty"`
	ExpiredAt    time.Time  `bun:"expired_at,notnull" json:"expired_at"`
	RevokeReason string     `bun:"revoke_reason,nullzero" json:"revoke_reason,omitempty"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	DeletedAt    *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsRevoked reports whether the session was soft deleted.
func (s *RefreshSession) IsRevoked() bool {
	return s != nil && s.DeletedAt != nil
}

// IsExpiredAt reports whether the stored expiry has passed at t.
func (s *RefreshSession) IsExpiredAt(t time.Time) bool {
	return !t.Before(s.ExpiredAt)
}

// TokenPair is what a successful login or refresh hands back to callers.
type TokenPair struct {
	OpaqueID         string    `json:"opaque_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	IsNewAccount     bool      `json:"is_new_account,omitempty"`
}

// NormalizeEmail is the canonical form used as the EMAIL provider id.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func deviceKey(deviceID *string) string {
	if deviceID == nil {
		return ""
	}
	return *deviceID
}

func normalizeDeviceID(deviceID *string) *string {
	if deviceID == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*deviceID)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
