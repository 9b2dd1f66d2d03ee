package social

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-authd"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// LoginAdapter binds one SocialProvider to one provider type and turns the
// code exchange into the normalized user the auth core consumes.
type LoginAdapter struct {
	providerType         auth.ProviderType
	provider             SocialProvider
	requireVerifiedEmail bool
	logger               auth.Logger
}

var _ auth.LoginProvider = (*LoginAdapter)(nil)

// LoginAdapterOption customizes a LoginAdapter.
type LoginAdapterOption func(*LoginAdapter)

// WithRequireVerifiedEmail rejects profiles without a verified email.
func WithRequireVerifiedEmail(required bool) LoginAdapterOption {
	return func(a *LoginAdapter) {
		a.requireVerifiedEmail = required
	}
}

// WithAdapterLogger sets the adapter logger.
func WithAdapterLogger(logger auth.Logger) LoginAdapterOption {
	return func(a *LoginAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewLoginAdapter(providerType auth.ProviderType, provider SocialProvider, opts ...LoginAdapterOption) *LoginAdapter {
	a := &LoginAdapter{
		providerType: providerType,
		provider:     provider,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Supports implements auth.LoginProvider.
func (a *LoginAdapter) Supports(providerType auth.ProviderType) bool {
	return a != nil && a.provider != nil && a.providerType == providerType
}

// ProcessLogin implements auth.LoginProvider.
func (a *LoginAdapter) ProcessLogin(ctx context.Context, req auth.LoginRequest) (*auth.OAuthUser, error) {
	name := a.provider.Name()

	if strings.TrimSpace(req.AuthCode) == "" {
		return nil, ErrMissingAuthCode.Clone()
	}

	token, err := a.provider.Exchange(ctx, req.AuthCode,
		WithCodeVerifier(req.CodeVerifier),
		WithState(req.State),
	)
	if err != nil {
		return nil, a.fail(ErrTokenExchangeFailed, name, opExchange, err)
	}

	profile, err := a.provider.UserInfo(ctx, token)
	if err != nil {
		return nil, a.fail(ErrUserInfoFailed, name, opUserInfo, err)
	}

	if profile == nil || strings.TrimSpace(profile.ProviderUserID) == "" {
		return nil, a.fail(ErrInvalidProfile, name, opUserInfo, nil)
	}

	if a.requireVerifiedEmail && (!profile.EmailVerified || profile.Email == "") {
		return nil, a.fail(ErrEmailNotVerified, name, opUserInfo, nil)
	}

	return ToOAuthUser(profile), nil
}

// Begin starts a round trip: it generates a PKCE pair, seals it with state
// and returns the consent URL to redirect the user to.
func (a *LoginAdapter) Begin(codec *StateCodec, state AuthState, opts ...AuthCodeOption) (string, error) {
	pkce, err := NewPKCE()
	if err != nil {
		return "", err
	}

	state.Provider = a.provider.Name()
	state.CodeVerifier = pkce.Verifier

	token, err := codec.Encode(state)
	if err != nil {
		return "", err
	}

	opts = append(opts, WithPKCE(pkce.Challenge, pkce.Method))
	return a.provider.AuthCodeURL(token, opts...), nil
}

// Complete verifies the returned state and builds the LoginRequest for the
// callback's authorization code.
func (a *LoginAdapter) Complete(codec *StateCodec, stateToken, code string) (auth.LoginRequest, *AuthState, error) {
	state, err := codec.Decode(stateToken)
	if err != nil {
		return auth.LoginRequest{}, nil, err
	}

	if state.Provider != a.provider.Name() {
		return auth.LoginRequest{}, nil, ErrProviderMismatch.Clone().WithMetadata(map[string]any{
			"expected": a.provider.Name(),
			"actual":   state.Provider,
		})
	}

	return auth.LoginRequest{
		AuthCode:     code,
		CodeVerifier: state.CodeVerifier,
		State:        stateToken,
	}, state, nil
}

// ToOAuthUser maps a provider profile onto the core's normalized user.
func ToOAuthUser(profile *SocialProfile) *auth.OAuthUser {
	if profile == nil {
		return nil
	}

	display := profile.Nickname
	if display == "" {
		display = profile.Name
	}

	email := strings.TrimSpace(profile.Email)
	return &auth.OAuthUser{
		ProviderID:    profile.ProviderUserID,
		Email:         email,
		EmailVerified: profile.EmailVerified && email != "",
		DisplayName:   display,
		GivenName:     profile.FirstName,
	}
}

func (a *LoginAdapter) fail(base *goerrors.Error, provider, operation string, err error) error {
	wrapped := wrapProviderError(base, provider, operation, err)
	if a.logger != nil {
		details := map[string]any{}
		var rich *goerrors.Error
		if goerrors.As(wrapped, &rich) {
			details = rich.Metadata
		}
		a.logger.Warn("social login failed",
			"provider", provider,
			"operation", operation,
			"details", print.MaybePrettyJSON(details),
		)
	}
	return wrapped
}
