package social

import (
	"context"
	"time"
)

// SocialProvider is one OAuth2 authority: it builds the consent URL, trades
// an authorization code for a token and fetches the profile behind it.
type SocialProvider interface {
	Name() string
	AuthCodeURL(state string, opts ...AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...ExchangeOption) (*Token, error)
	UserInfo(ctx context.Context, token *Token) (*SocialProfile, error)
}

// AuthCodeConfig is the resolved set of consent URL parameters.
type AuthCodeConfig struct {
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	Prompt              string
}

// ExchangeConfig is the resolved set of token request parameters.
type ExchangeConfig struct {
	CodeVerifier string
	State        string
}

type (
	AuthCodeOption func(*AuthCodeConfig)
	ExchangeOption func(*ExchangeConfig)
)

// WithScopes appends to the provider's configured scopes.
func WithScopes(scopes ...string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Scopes = append(c.Scopes, scopes...)
	}
}

// WithPKCE adds an RFC 7636 code challenge.
func WithPKCE(challenge, method string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.CodeChallenge = challenge
		c.CodeChallengeMethod = method
	}
}

// WithPrompt sets the consent prompt, e.g. "consent" or "select_account".
// Providers map it onto their own parameter.
func WithPrompt(prompt string) AuthCodeOption {
	return func(c *AuthCodeConfig) {
		c.Prompt = prompt
	}
}

// WithCodeVerifier forwards the PKCE verifier to the token request.
func WithCodeVerifier(verifier string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.CodeVerifier = verifier
	}
}

// WithState forwards the state parameter. Naver requires it on the token
// request.
func WithState(state string) ExchangeOption {
	return func(c *ExchangeConfig) {
		c.State = state
	}
}

// ApplyAuthCodeOptions starts from a copy of scopes and applies opts.
func ApplyAuthCodeOptions(scopes []string, opts ...AuthCodeOption) AuthCodeConfig {
	cfg := AuthCodeConfig{Scopes: append([]string(nil), scopes...)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func ApplyExchangeOptions(opts ...ExchangeOption) ExchangeConfig {
	var cfg ExchangeConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// ChallengeMethod returns the configured method, S256 when a challenge is
// set without one.
func (c AuthCodeConfig) ChallengeMethod() string {
	if c.CodeChallengeMethod == "" && c.CodeChallenge != "" {
		return "S256"
	}
	return c.CodeChallengeMethod
}

// Token is the provider access token. It never leaves the adapter.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
}

// SocialProfile is the provider profile before it is mapped onto
// auth.OAuthUser.
type SocialProfile struct {
	ProviderUserID string
	Provider       string
	Email          string
	EmailVerified  bool
	Name           string
	FirstName      string
	Nickname       string
	AvatarURL      string
	Raw            map[string]any
}
