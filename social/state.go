package social

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

const defaultStateTTL = 10 * time.Minute

// Action is what the user started the round trip for.
type Action string

const (
	ActionLogin Action = "login"
	ActionLink  Action = "link"
)

// AuthState travels through the provider in the state parameter and comes
// back with the authorization code.
type AuthState struct {
	Provider     string `json:"p"`
	Action       Action `json:"a"`
	CodeVerifier string `json:"cv,omitempty"`
	LinkOpaqueID string `json:"lo,omitempty"`
	RedirectURL  string `json:"r,omitempty"`
}

type stateClaims struct {
	jwt.RegisteredClaims
	AuthState
}

// StateCodec signs AuthState into a short lived token.
type StateCodec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateCodec returns a codec signing with key. A zero ttl means ten minutes.
func NewStateCodec(key []byte, ttl time.Duration) *StateCodec {
	if ttl == 0 {
		ttl = defaultStateTTL
	}
	return &StateCodec{
		key: key,
		ttl: ttl,
		now: time.Now,
	}
}

// Encode signs state.
func (c *StateCodec) Encode(state AuthState) (string, error) {
	if strings.TrimSpace(state.Provider) == "" {
		return "", ErrInvalidState.Clone()
	}
	if state.Action == "" {
		state.Action = ActionLogin
	}

	now := c.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        generateNonce(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		AuthState: state,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign oauth state")
	}
	return signed, nil
}

// Decode verifies token and returns the state it carries.
func (c *StateCodec) Decode(token string) (*AuthState, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrInvalidState.Clone()
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrStateExpired.Clone()
		}
		return nil, stateError(ErrInvalidState, err)
	}

	state := claims.AuthState
	return &state, nil
}

// PKCE is an RFC 7636 verifier and its S256 challenge.
type PKCE struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCE generates a fresh verifier.
func NewPKCE() (PKCE, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return PKCE{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate code verifier")
	}
	verifier := base64.RawURLEncoding.EncodeToString(b)
	return PKCE{
		Verifier:  verifier,
		Challenge: codeChallenge(verifier),
		Method:    "S256",
	}, nil
}

func codeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func generateNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

func stateError(base *goerrors.Error, err error) error {
	clone := base.Clone()
	clone.Source = err
	return clone.WithMetadata(map[string]any{"cause": err.Error()})
}
