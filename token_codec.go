package auth

import (
	stderrors "errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 14 * 24 * time.Hour
)

var errUnsupportedAlgorithm = stderrors.New("unexpected signing method")

// TokenCodecConfig configures a TokenCodec.
type TokenCodecConfig struct {
	SigningKey []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   []string
}

// TokenCodec signs and verifies access and refresh tokens with a single
// HS256 key. It holds no mutable state and is safe for concurrent use.
type TokenCodec struct {
	signingKey []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenCodecOption customizes a TokenCodec.
type TokenCodecOption func(*TokenCodec)

// WithCodecClock injects a clock used for issued-at and expiry.
func WithCodecClock(now func() time.Time) TokenCodecOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCodecLogger sets the codec logger.
func WithCodecLogger(logger Logger) TokenCodecOption {
	return func(c *TokenCodec) {
		c.logger = normalizeLogger(logger)
	}
}

// NewTokenCodec creates a new TokenCodec instance
func NewTokenCodec(cfg TokenCodecConfig, opts ...TokenCodecOption) *TokenCodec {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTokenTTL
	}

	var aud jwt.ClaimStrings
	if len(cfg.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(cfg.Audience))
		copy(aud, cfg.Audience)
	}

	c := &TokenCodec{
		signingKey: cfg.SigningKey,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		audience:   aud,
		now:        time.Now,
		logger:     defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// NewTokenCodecFromConfig builds a codec from Config getters.
func NewTokenCodecFromConfig(cfg Config, opts ...TokenCodecOption) *TokenCodec {
	return NewTokenCodec(TokenCodecConfig{
		SigningKey: []byte(cfg.GetSigningKey()),
		AccessTTL:  cfg.GetAccessTokenTTL(),
		RefreshTTL: cfg.GetRefreshTokenTTL(),
		Issuer:     cfg.GetIssuer(),
		Audience:   cfg.GetAudience(),
	}, opts...)
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime.
func (c *TokenCodec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

// IssueAccess signs a short lived access token for opaqueID.
func (c *TokenCodec) IssueAccess(opaqueID string, role UserRole, extra *ExtraClaims) (*IssuedToken, error) {
	claims := c.baseClaims(opaqueID, "", c.accessTTL)
	claims.TokenUse = TokenUseAccess
	claims.UserRole = role

	if extra != nil {
		claims.DeviceID = extra.DeviceID
		if len(extra.Metadata) > 0 {
			claims.Metadata = make(map[string]any, len(extra.Metadata))
			for k, v := range extra.Metadata {
				claims.Metadata[k] = v
			}
		}
	}

	return c.sign(claims)
}

// IssueRefresh signs a long lived refresh token bound to deviceID. A random
// jti is used when none is given.
func (c *TokenCodec) IssueRefresh(opaqueID, jti, deviceID string) (*IssuedToken, error) {
	claims := c.baseClaims(opaqueID, jti, c.refreshTTL)
	claims.TokenUse = TokenUseRefresh
	claims.DeviceID = deviceID
	return c.sign(claims)
}

func (c *TokenCodec) baseClaims(subject, jti string, ttl time.Duration) *JWTClaims {
	now := c.now()
	if strings.TrimSpace(jti) == "" {
		jti = uuid.NewString()
	}
	return &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			Audience:  c.audience,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (c *TokenCodec) sign(claims *JWTClaims) (*IssuedToken, error) {
	if claims.Subject() == "" {
		return nil, errors.New("token subject must not be empty", errors.CategoryBadInput)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return &IssuedToken{
		Token:     signed,
		JTI:       claims.JTI(),
		ExpiresAt: claims.Expires(),
	}, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
func (c *TokenCodec) Verify(tokenString string) (*JWTClaims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, withSource(ErrTokenMissing, nil, nil)
	}

	if strings.Count(tokenString, ".") != 2 {
		return nil, withSource(ErrTokenMalformed, nil, map[string]any{
			"reason": "token must have three segments",
		})
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		// issued tokens carry every configured audience
		parserOptions = append(parserOptions, jwt.WithAudience(c.audience[0]))
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			c.logger.Warn("token codec rejected signing method", "alg", t.Header["alg"])
			return nil, errUnsupportedAlgorithm
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, classifyParseError(err)
	}

	if !token.Valid {
		return nil, withSource(ErrTokenMalformed, nil, nil)
	}

	if claims.Subject() == "" {
		return nil, withSource(ErrTokenMalformed, nil, map[string]any{
			"reason": "missing subject",
		})
	}

	return claims, nil
}

// VerifyAccess verifies an access token.
func (c *TokenCodec) VerifyAccess(tokenString string) (*JWTClaims, error) {
	return c.verifyUse(tokenString, TokenUseAccess)
}

// VerifyRefresh verifies a refresh token and requires a jti.
func (c *TokenCodec) VerifyRefresh(tokenString string) (*JWTClaims, error) {
	claims, err := c.verifyUse(tokenString, TokenUseRefresh)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.JTI()) == "" {
		return nil, withSource(ErrTokenMalformed, nil, map[string]any{
			"reason": "missing jti",
		})
	}
	return claims, nil
}

func (c *TokenCodec) verifyUse(tokenString, use string) (*JWTClaims, error) {
	claims, err := c.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenUse != use {
		return nil, withSource(ErrTokenMalformed, nil, map[string]any{
			"reason":   "unexpected token use",
			"expected": use,
			"actual":   claims.TokenUse,
		})
	}
	return claims, nil
}

// Subject extracts the subject of a token that already passed Verify.
func (c *TokenCodec) Subject(tokenString string) string {
	if claims := unverifiedClaims(tokenString); claims != nil {
		return claims.Subject()
	}
	return ""
}

// JTI extracts the token id of a token that already passed Verify.
func (c *TokenCodec) JTI(tokenString string) string {
	if claims := unverifiedClaims(tokenString); claims != nil {
		return claims.JTI()
	}
	return ""
}

// Role extracts the role of a token that already passed Verify.
func (c *TokenCodec) Role(tokenString string) string {
	if claims := unverifiedClaims(tokenString); claims != nil {
		return claims.Role()
	}
	return ""
}

// Expiry extracts the expiry of a token that already passed Verify.
func (c *TokenCodec) Expiry(tokenString string) time.Time {
	if claims := unverifiedClaims(tokenString); claims != nil {
		return claims.Expires()
	}
	return time.Time{}
}

func unverifiedClaims(tokenString string) *JWTClaims {
	claims := &JWTClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}

func classifyParseError(err error) error {
	meta := map[string]any{"cause": err.Error()}
	switch {
	case errors.Is(err, errUnsupportedAlgorithm), errors.Is(err, jwt.ErrTokenUnverifiable):
		return withSource(ErrTokenUnsupported, err, meta)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return withSource(ErrTokenInvalidSignature, err, meta)
	case errors.Is(err, jwt.ErrTokenExpired):
		return withSource(ErrTokenExpired, err, meta)
	default:
		return withSource(ErrTokenMalformed, err, meta)
	}
}
