package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// IdentityResolver maps a verified email or an OAuth profile onto an
// account, creating the account and its first link when none exists.
type IdentityResolver struct {
	tx        TransactionManager
	accounts  Accounts
	links     ProviderLinks
	nicknames nicknameAllocator
	now       func() time.Time
	logger    Logger
}

// ResolverOption customizes an IdentityResolver.
type ResolverOption func(*IdentityResolver)

// WithNicknameGenerator replaces the random nickname generator.
func WithNicknameGenerator(gen NicknameGenerator) ResolverOption {
	return func(r *IdentityResolver) {
		if gen != nil {
			r.nicknames.generator = gen
		}
	}
}

// WithNicknameMaxAttempts bounds the nickname collision loop.
func WithNicknameMaxAttempts(n int) ResolverOption {
	return func(r *IdentityResolver) {
		if n > 0 {
			r.nicknames.maxAttempts = n
		}
	}
}

// WithResolverClock overrides the clock used for login timestamps.
func WithResolverClock(now func() time.Time) ResolverOption {
	return func(r *IdentityResolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithResolverLogger sets the resolver logger.
func WithResolverLogger(logger Logger) ResolverOption {
	return func(r *IdentityResolver) {
		r.logger = normalizeLogger(logger)
	}
}

func NewIdentityResolver(repos RepositoryManager, opts ...ResolverOption) *IdentityResolver {
	r := &IdentityResolver{
		tx:       repos,
		accounts: repos.Accounts(),
		links:    repos.ProviderLinks(),
		nicknames: nicknameAllocator{
			accounts:    repos.Accounts(),
			generator:   NewRandomNicknameGenerator(),
			maxAttempts: DefaultNicknameMaxAttempts,
		},
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// ResolveOrCreateForEmail returns the account owning the email link, or a
// new email verified account. The bool reports whether it was created.
func (r *IdentityResolver) ResolveOrCreateForEmail(ctx context.Context, email string) (*Account, bool, error) {
	var (
		account *Account
		created bool
	)
	err := r.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, created, err = r.ResolveOrCreateForEmailTx(ctx, tx, email)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return account, created, nil
}

func (r *IdentityResolver) ResolveOrCreateForEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, bool, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, false, withSource(ErrInvalidEmailFormat, nil, nil)
	}

	link, err := r.links.FindByProviderTx(ctx, tx, ProviderEmail, normalized)
	if err != nil {
		return nil, false, err
	}
	if link != nil {
		account, err := r.ownerTx(ctx, tx, link)
		return account, false, err
	}

	account, err := r.createAccountTx(ctx, tx, "", true)
	if err != nil {
		return nil, false, err
	}

	if _, err := r.links.SaveTx(ctx, tx, &ProviderLink{
		AccountID:    account.ID,
		ProviderType: ProviderEmail,
		ProviderID:   normalized,
		Email:        normalized,
	}); err != nil {
		return nil, false, err
	}

	r.logger.Info("account created from email", "opaque_id", account.OpaqueID)

	return account, true, nil
}

// ResolveOrCreateForOAuth returns the account owning (providerType,
// user.ProviderID), or a new account named after the profile.
func (r *IdentityResolver) ResolveOrCreateForOAuth(ctx context.Context, user *OAuthUser, providerType ProviderType) (*Account, bool, error) {
	var (
		account *Account
		created bool
	)
	err := r.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		account, created, err = r.ResolveOrCreateForOAuthTx(ctx, tx, user, providerType)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return account, created, nil
}

func (r *IdentityResolver) ResolveOrCreateForOAuthTx(ctx context.Context, tx bun.IDB, user *OAuthUser, providerType ProviderType) (*Account, bool, error) {
	if err := validateOAuthUser(user, providerType); err != nil {
		return nil, false, err
	}

	link, err := r.links.FindByProviderTx(ctx, tx, providerType, user.ProviderID)
	if err != nil {
		return nil, false, err
	}
	if link != nil {
		account, err := r.ownerTx(ctx, tx, link)
		return account, false, err
	}

	account, err := r.createAccountTx(ctx, tx, profileNickname(user), user.EmailVerified)
	if err != nil {
		return nil, false, err
	}

	if _, err := r.links.SaveTx(ctx, tx, &ProviderLink{
		AccountID:    account.ID,
		ProviderType: providerType,
		ProviderID:   user.ProviderID,
		Email:        NormalizeEmail(user.Email),
	}); err != nil {
		return nil, false, err
	}

	r.logger.Info("account created from provider",
		"opaque_id", account.OpaqueID,
		"provider", providerType,
	)

	return account, true, nil
}

// CreateOrUpdateLink refreshes the account's link for providerType in place,
// or inserts it when the account has none.
func (r *IdentityResolver) CreateOrUpdateLink(ctx context.Context, account *Account, user *OAuthUser, providerType ProviderType) (*ProviderLink, error) {
	var link *ProviderLink
	err := r.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		link, err = r.CreateOrUpdateLinkTx(ctx, tx, account, user, providerType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *IdentityResolver) CreateOrUpdateLinkTx(ctx context.Context, tx bun.IDB, account *Account, user *OAuthUser, providerType ProviderType) (*ProviderLink, error) {
	if account == nil {
		return nil, withSource(ErrIdentityNotFound, nil, nil)
	}
	if err := validateOAuthUser(user, providerType); err != nil {
		return nil, err
	}

	email := NormalizeEmail(user.Email)

	link, err := r.links.FindByAccountAndProviderTx(ctx, tx, account.ID, providerType)
	if err != nil {
		return nil, err
	}

	if link == nil {
		return r.links.SaveTx(ctx, tx, &ProviderLink{
			AccountID:    account.ID,
			ProviderType: providerType,
			ProviderID:   user.ProviderID,
			Email:        email,
		})
	}

	if link.ProviderID == user.ProviderID && link.Email == email {
		return link, nil
	}

	link.ProviderID = user.ProviderID
	link.Email = email
	return r.links.SaveTx(ctx, tx, link)
}

func (r *IdentityResolver) ownerTx(ctx context.Context, tx bun.IDB, link *ProviderLink) (*Account, error) {
	account, err := r.accounts.FindByIDTx(ctx, tx, link.AccountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, withSource(ErrIdentityNotFound, nil, map[string]any{
			"provider":    link.ProviderType,
			"provider_id": link.ProviderID,
		})
	}
	return account, nil
}

func (r *IdentityResolver) createAccountTx(ctx context.Context, tx bun.IDB, preferredNickname string, emailVerified bool) (*Account, error) {
	nickname, err := r.nicknames.allocateTx(ctx, tx, preferredNickname)
	if err != nil {
		return nil, err
	}

	now := r.now()
	account, err := r.accounts.CreateTx(ctx, tx, &Account{
		Nickname:        nickname,
		Role:            RoleMember,
		IsEmailVerified: emailVerified,
		LastLoginAt:     &now,
		CreatedAt:       &now,
		UpdatedAt:       &now,
	})
	if err != nil {
		return nil, saveFailed(err, "account")
	}
	return account, nil
}

func validateOAuthUser(user *OAuthUser, providerType ProviderType) error {
	if !providerType.IsValid() {
		return withSource(ErrUnsupportedProvider, nil, map[string]any{
			"provider": providerType,
		})
	}
	if user == nil || strings.TrimSpace(user.ProviderID) == "" {
		return errors.New("provider user id is required", errors.CategoryBadInput).
			WithTextCode("PROVIDER_ID_REQUIRED").
			WithCode(errors.CodeBadRequest)
	}
	return nil
}
