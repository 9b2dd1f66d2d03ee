package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
)

// EmailLoginRequest is a code verified email login or signup.
type EmailLoginRequest struct {
	Email    string
	Code     string
	DeviceID *string
}

// SocialLoginRequest is an authorization code login through a provider.
type SocialLoginRequest struct {
	Provider ProviderType
	LoginRequest
	DeviceID *string
}

// Service coordinates the login, link, refresh and logout flows.
type Service struct {
	repos        RepositoryManager
	cfg          Config
	codec        *TokenCodec
	store        *RefreshTokenStore
	resolver     *IdentityResolver
	merger       *AccountMergeEngine
	providers    *ProviderRegistry
	emails       EmailVerifier
	activitySink ActivitySink
	resolverOpts []ResolverOption
	now          func() time.Time
	logger       Logger
}

// NewService returns a Service backed by repos. Email login rejects every
// code until an EmailVerifier is configured.
func NewService(repos RepositoryManager, cfg Config) *Service {
	s := &Service{
		repos:        repos,
		cfg:          cfg,
		providers:    NewProviderRegistry(),
		emails:       NewEmailGate(nil),
		activitySink: noopActivitySink{},
		now:          time.Now,
		logger:       defLogger{},
	}
	return s.build()
}

func (s *Service) build() *Service {
	s.codec = NewTokenCodecFromConfig(s.cfg,
		WithCodecClock(s.now),
		WithCodecLogger(s.logger),
	)
	s.store = NewRefreshTokenStore(s.repos, s.codec,
		WithStoreClock(s.now),
		WithStoreLogger(s.logger),
	)

	opts := []ResolverOption{
		WithNicknameMaxAttempts(s.cfg.GetNicknameMaxAttempts()),
		WithResolverClock(s.now),
		WithResolverLogger(s.logger),
	}
	s.resolver = NewIdentityResolver(s.repos, append(opts, s.resolverOpts...)...)

	s.merger = NewAccountMergeEngine(s.repos, s.resolver, s.store,
		WithMergeClock(s.now),
		WithMergeLogger(s.logger),
	)
	return s
}

func (s *Service) WithLogger(logger Logger) *Service {
	s.logger = normalizeLogger(logger)
	return s.build()
}

// WithClock replaces the clock of every component.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s.build()
}

// WithResolverOptions forwards options such as WithNicknameGenerator to
// the identity resolver.
func (s *Service) WithResolverOptions(opts ...ResolverOption) *Service {
	s.resolverOpts = append(s.resolverOpts, opts...)
	return s.build()
}

// WithEmailVerifier sets the gate consulted before email login.
func (s *Service) WithEmailVerifier(verifier EmailVerifier) *Service {
	if verifier != nil {
		s.emails = verifier
	}
	return s
}

// WithLoginProviders registers provider adapters for social login and link.
func (s *Service) WithLoginProviders(providers ...LoginProvider) *Service {
	s.providers.Register(providers...)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

func (s *Service) Codec() *TokenCodec {
	return s.codec
}

func (s *Service) Store() *RefreshTokenStore {
	return s.store
}

func (s *Service) Resolver() *IdentityResolver {
	return s.resolver
}

func (s *Service) MergeEngine() *AccountMergeEngine {
	return s.merger
}

func (s *Service) Providers() *ProviderRegistry {
	return s.providers
}

// EmailLogin verifies the one time code, resolves or creates the account
// owning the address and rotates the session for the device.
func (s *Service) EmailLogin(ctx context.Context, req EmailLoginRequest) (*TokenPair, error) {
	if err := s.emails.ValidateEmailFormat(req.Email); err != nil {
		s.logFailure("email login rejected", err)
		return nil, err
	}

	if err := s.emails.VerifyCode(ctx, req.Email, req.Code); err != nil {
		s.logFailure("email login code rejected", err)
		return nil, err
	}

	var (
		account *Account
		created bool
		pair    *TokenPair
	)

	err := s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, created, err = s.resolver.ResolveOrCreateForEmailTx(ctx, tx, req.Email)
		if err != nil {
			return err
		}
		pair, err = s.loginTx(ctx, tx, account, req.DeviceID)
		return err
	})
	if err != nil {
		s.logFailure("email login failed", err)
		return nil, err
	}

	pair.IsNewAccount = created
	device := deviceKey(normalizeDeviceID(req.DeviceID))
	if created {
		s.emit(ctx, ActivityEventSignup, account.OpaqueID, ProviderEmail, device, nil)
	}
	s.emit(ctx, ActivityEventEmailLogin, account.OpaqueID, ProviderEmail, device, map[string]any{
		"new_account": created,
	})

	return pair, nil
}

// SocialLogin completes the provider exchange, resolves or creates the
// account owning the external identity, refreshes the link snapshot and
// rotates the session for the device.
func (s *Service) SocialLogin(ctx context.Context, req SocialLoginRequest) (*TokenPair, error) {
	user, err := s.processLogin(ctx, req)
	if err != nil {
		return nil, err
	}

	var (
		account *Account
		created bool
		pair    *TokenPair
	)

	err = s.repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, created, err = s.resolver.ResolveOrCreateForOAuthTx(ctx, tx, user, req.Provider)
		if err != nil {
			return err
		}
		if _, err = s.resolver.CreateOrUpdateLinkTx(ctx, tx, account, user, req.Provider); err != nil {
			return err
		}
		pair, err = s.loginTx(ctx, tx, account, req.DeviceID)
		return err
	})
	if err != nil {
		s.logFailure("social login failed", err, "provider", req.Provider)
		return nil, err
	}

	pair.IsNewAccount = created
	device := deviceKey(normalizeDeviceID(req.DeviceID))
	if created {
		s.emit(ctx, ActivityEventSignup, account.OpaqueID, req.Provider, device, nil)
	}
	s.emit(ctx, ActivityEventSocialLogin, account.OpaqueID, req.Provider, device, map[string]any{
		"new_account": created,
	})

	return pair, nil
}

// LinkAccount binds the external identity behind req to the account
// identified by opaqueID, merging the account that owned it if any.
func (s *Service) LinkAccount(ctx context.Context, opaqueID string, req SocialLoginRequest) (*LinkResult, error) {
	current, err := s.repos.Accounts().FindByOpaqueID(ctx, opaqueID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, withSource(ErrIdentityNotFound, nil, map[string]any{
			"opaque_id": opaqueID,
		})
	}

	user, err := s.processLogin(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := s.merger.Link(ctx, current, user, req.Provider)
	if err != nil {
		s.logFailure("account link failed", err, "provider", req.Provider)
		return nil, err
	}

	device := deviceKey(normalizeDeviceID(req.DeviceID))
	meta := map[string]any{"outcome": string(result.Outcome)}
	if result.ReplacedID != "" {
		meta["replaced_provider_id"] = result.ReplacedID
	}
	s.emit(ctx, ActivityEventLink, current.OpaqueID, req.Provider, device, meta)
	if result.Outcome == LinkMerged && result.Merged != nil {
		s.emit(ctx, ActivityEventMerge, current.OpaqueID, req.Provider, device, map[string]any{
			"absorbed":         result.Merged.OpaqueID,
			"reassigned":       len(result.Reassigned),
			"removed":          len(result.Removed),
			"revoked_sessions": result.RevokedSessions,
		})
	}

	return result, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// consumed: presenting it again fails with ErrSessionRevoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	opaqueID, jti := claims.Subject(), claims.JTI()

	session, err := s.store.Validate(ctx, opaqueID, jti)
	if err != nil {
		if IsErrorKind(err, TextCodeSessionRevoked) {
			s.logger.Warn("refresh token replayed", "opaque_id", opaqueID, "jti", jti)
			s.emit(ctx, ActivityEventRefreshReplay, opaqueID, "", claims.DeviceID, map[string]any{
				"jti": jti,
			})
		}
		return nil, err
	}

	account, err := s.repos.Accounts().FindByOpaqueID(ctx, opaqueID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		if err := s.store.Revoke(ctx, session, s.now(), RevokeMerged); err != nil {
			return nil, err
		}
		return nil, withSource(ErrSessionRevoked, nil, map[string]any{
			"reason": "account is no longer active",
		})
	}

	rotation, err := s.store.RotateSession(ctx, account, session)
	if err != nil {
		if IsErrorKind(err, TextCodeSessionRevoked) {
			s.emit(ctx, ActivityEventRefreshReplay, opaqueID, "", deviceKey(session.DeviceID), map[string]any{
				"jti":        jti,
				"concurrent": true,
			})
		}
		return nil, err
	}

	pair, err := s.pair(account, rotation)
	if err != nil {
		return nil, err
	}

	s.emit(ctx, ActivityEventRefresh, account.OpaqueID, "", deviceKey(session.DeviceID), nil)

	return pair, nil
}

// Logout revokes the session behind refreshToken. A blank or expired token
// is a successful no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}

	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		if IsTokenExpiredError(err) {
			s.logger.Debug("logout with expired token")
			return nil
		}
		s.logFailure("logout token rejected", err)
		return withSource(ErrLogoutFailed, err, map[string]any{
			"cause": err.Error(),
		})
	}

	revoked, err := s.store.RevokeByToken(ctx, claims.Subject(), claims.JTI(), RevokeLogout)
	if err != nil {
		s.logFailure("logout revoke failed", err)
		return withSource(ErrLogoutFailed, err, map[string]any{
			"cause": err.Error(),
		})
	}

	s.emit(ctx, ActivityEventLogout, claims.Subject(), "", claims.DeviceID, map[string]any{
		"revoked": revoked,
	})

	return nil
}

func (s *Service) processLogin(ctx context.Context, req SocialLoginRequest) (*OAuthUser, error) {
	provider, err := s.providers.Find(req.Provider)
	if err != nil {
		s.logFailure("login provider not found", err, "provider", req.Provider)
		return nil, err
	}

	user, err := provider.ProcessLogin(ctx, req.LoginRequest)
	if err != nil {
		s.logFailure("provider login failed", err, "provider", req.Provider)
		return nil, err
	}
	if user == nil {
		return nil, errors.New("provider returned no user", errors.CategoryExternal).
			WithTextCode("PROVIDER_EMPTY_USER").
			WithCode(errors.CodeUnauthorized)
	}
	return user, nil
}

func (s *Service) loginTx(ctx context.Context, tx bun.IDB, account *Account, deviceID *string) (*TokenPair, error) {
	now := s.now()
	if err := s.repos.Accounts().TouchLastLoginTx(ctx, tx, account.ID, now); err != nil {
		return nil, err
	}
	account.LastLoginAt = &now

	rotation, err := s.store.RotateTx(ctx, tx, account, deviceID, nil)
	if err != nil {
		return nil, err
	}
	return s.pair(account, rotation)
}

func (s *Service) pair(account *Account, rotation *Rotation) (*TokenPair, error) {
	var extra *ExtraClaims
	if device := deviceKey(rotation.Session.DeviceID); device != "" {
		extra = &ExtraClaims{DeviceID: device}
	}

	access, err := s.codec.IssueAccess(account.OpaqueID, account.Role, extra)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		OpaqueID:         account.OpaqueID,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     rotation.Token.Token,
		RefreshExpiresAt: rotation.Token.ExpiresAt,
	}, nil
}

func (s *Service) emit(ctx context.Context, eventType ActivityEventType, opaqueID string, provider ProviderType, deviceID string, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	event := ActivityEvent{
		EventType:  eventType,
		OpaqueID:   opaqueID,
		Provider:   provider,
		DeviceID:   deviceID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error", "event", eventType, "error", err)
	}
}

func (s *Service) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err)
	var rich *errors.Error
	if errors.As(err, &rich) {
		args = append(args,
			"text_code", rich.TextCode,
			"metadata", print.MaybePrettyJSON(rich.Metadata),
		)
	}
	s.logger.Warn(msg, args...)
}
