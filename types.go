package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// Logger is satisfied by *slog.Logger. Arguments are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetDatabaseDriver() string
	GetDatabaseDSN() string
	GetDatabaseDebug() bool
	GetNicknameMaxAttempts() int
}

// ProviderType identifies the authority that asserted an external identity.
type ProviderType string

const (
	ProviderEmail  ProviderType = "email"
	ProviderGoogle ProviderType = "google"
	ProviderKakao  ProviderType = "kakao"
	ProviderNaver  ProviderType = "naver"
)

// IsValid reports whether p is a supported provider type.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderEmail, ProviderGoogle, ProviderKakao, ProviderNaver:
		return true
	default:
		return false
	}
}

func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType is case insensitive.
func ParseProviderType(s string) (ProviderType, bool) {
	p := ProviderType(strings.ToLower(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// OAuthUser is the normalized profile a provider adapter hands to the core.
type OAuthUser struct {
	ProviderID    string
	Email         string
	EmailVerified bool
	DisplayName   string
	GivenName     string
}

// LoginRequest carries the values a provider adapter needs to complete an
// authorization code exchange.
type LoginRequest struct {
	AuthCode     string
	CodeVerifier string
	State        string
}

// LoginProvider exchanges an authorization code for a normalized OAuthUser.
// Implementations declare which provider types they serve through Supports.
type LoginProvider interface {
	Supports(providerType ProviderType) bool
	ProcessLogin(ctx context.Context, req LoginRequest) (*OAuthUser, error)
}

// EmailVerifier gates email login: the address format and the one time code.
type EmailVerifier interface {
	ValidateEmailFormat(email string) error
	VerifyCode(ctx context.Context, email, code string) error
}

// NicknameGenerator produces candidate nicknames. Uniqueness is checked by the caller.
type NicknameGenerator interface {
	Generate() string
}

// NicknameGeneratorFunc adapts a function into a NicknameGenerator.
type NicknameGeneratorFunc func() string

// Generate implements NicknameGenerator.
func (f NicknameGeneratorFunc) Generate() string {
	return f()
}

// TransactionManager runs f inside a database transaction.
type TransactionManager interface {
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] AUTH " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] AUTH " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] AUTH " + line(msg, args))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] AUTH " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
