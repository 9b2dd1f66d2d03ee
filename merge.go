package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// LinkOutcome tells which branch a link request took.
type LinkOutcome string

const (
	LinkCreated   LinkOutcome = "created"
	LinkUnchanged LinkOutcome = "unchanged"
	LinkMerged    LinkOutcome = "merged"
	LinkReplaced  LinkOutcome = "replaced"
)

// LinkResult describes a completed link request.
type LinkResult struct {
	Outcome         LinkOutcome
	Account         *Account
	Link            *ProviderLink
	ReplacedID      string // provider id unlinked by LinkReplaced
	Merged          *Account
	Reassigned      []*ProviderLink
	Removed         []*ProviderLink
	RevokedSessions int64
}

// AccountMergeEngine binds an external identity to the authenticated
// account, absorbing the account that owned it when they differ. The
// initiating account always survives.
type AccountMergeEngine struct {
	tx       TransactionManager
	accounts Accounts
	links    ProviderLinks
	resolver *IdentityResolver
	store    *RefreshTokenStore
	now      func() time.Time
	logger   Logger
}

// MergeOption customizes an AccountMergeEngine.
type MergeOption func(*AccountMergeEngine)

// WithMergeClock overrides the clock used for merge timestamps.
func WithMergeClock(now func() time.Time) MergeOption {
	return func(m *AccountMergeEngine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithMergeLogger sets the merge engine logger.
func WithMergeLogger(logger Logger) MergeOption {
	return func(m *AccountMergeEngine) {
		m.logger = normalizeLogger(logger)
	}
}

func NewAccountMergeEngine(repos RepositoryManager, resolver *IdentityResolver, store *RefreshTokenStore, opts ...MergeOption) *AccountMergeEngine {
	m := &AccountMergeEngine{
		tx:       repos,
		accounts: repos.Accounts(),
		links:    repos.ProviderLinks(),
		resolver: resolver,
		store:    store,
		now:      time.Now,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Link binds (providerType, user.ProviderID) to current. Everything runs in
// one transaction; a failure leaves both accounts untouched.
func (m *AccountMergeEngine) Link(ctx context.Context, current *Account, user *OAuthUser, providerType ProviderType) (*LinkResult, error) {
	var result *LinkResult
	err := m.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = m.LinkTx(ctx, tx, current, user, providerType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (m *AccountMergeEngine) LinkTx(ctx context.Context, tx bun.IDB, current *Account, user *OAuthUser, providerType ProviderType) (*LinkResult, error) {
	if current == nil {
		return nil, withSource(ErrIdentityNotFound, nil, nil)
	}
	if err := validateOAuthUser(user, providerType); err != nil {
		return nil, err
	}

	if err := m.accounts.LockTx(ctx, tx, current.ID); err != nil {
		return nil, err
	}

	survivor, err := m.accounts.FindByIDTx(ctx, tx, current.ID)
	if err != nil {
		return nil, err
	}
	if survivor == nil {
		return nil, withSource(ErrIdentityNotFound, nil, map[string]any{
			"opaque_id": current.OpaqueID,
		})
	}

	existing, err := m.links.FindByProviderTx(ctx, tx, providerType, user.ProviderID)
	if err != nil {
		return nil, err
	}

	result := &LinkResult{Account: survivor}

	switch {
	case existing == nil:
		prior, err := m.links.FindByAccountAndProviderTx(ctx, tx, survivor.ID, providerType)
		if err != nil {
			return nil, err
		}
		result.Outcome = LinkCreated
		if prior != nil {
			result.Outcome = LinkReplaced
			result.ReplacedID = prior.ProviderID
			m.logger.Info("provider identity replaced",
				"opaque_id", survivor.OpaqueID,
				"provider", providerType,
				"previous_provider_id", prior.ProviderID,
				"provider_id", user.ProviderID,
			)
		}

		link, err := m.resolver.CreateOrUpdateLinkTx(ctx, tx, survivor, user, providerType)
		if err != nil {
			return nil, err
		}
		result.Link = link

	case existing.AccountID == survivor.ID:
		link, err := m.resolver.CreateOrUpdateLinkTx(ctx, tx, survivor, user, providerType)
		if err != nil {
			return nil, err
		}
		result.Outcome = LinkUnchanged
		result.Link = link

	default:
		if err := m.mergeTx(ctx, tx, survivor, existing, result); err != nil {
			return nil, err
		}
		result.Outcome = LinkMerged
	}

	now := m.now()
	if err := m.accounts.TouchLastLoginTx(ctx, tx, survivor.ID, now); err != nil {
		return nil, err
	}
	survivor.LastLoginAt = &now

	return result, nil
}

func (m *AccountMergeEngine) mergeTx(ctx context.Context, tx bun.IDB, survivor *Account, trigger *ProviderLink, result *LinkResult) error {
	absorbed, err := m.accounts.FindByIDTx(ctx, tx, trigger.AccountID)
	if err != nil {
		return err
	}
	if absorbed == nil {
		return withSource(ErrIdentityNotFound, nil, map[string]any{
			"provider":    trigger.ProviderType,
			"provider_id": trigger.ProviderID,
		})
	}

	if err := m.accounts.LockTx(ctx, tx, absorbed.ID); err != nil {
		return err
	}

	links, err := m.links.FindAllForAccountTx(ctx, tx, absorbed.ID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return withSource(ErrNoLinksToMerge, nil, map[string]any{
			"opaque_id": absorbed.OpaqueID,
		})
	}

	for _, link := range links {
		own, err := m.links.FindByAccountAndProviderTx(ctx, tx, survivor.ID, link.ProviderType)
		if err != nil {
			return err
		}

		if own != nil {
			if err := m.links.RemoveTx(ctx, tx, link); err != nil {
				return err
			}
			result.Removed = append(result.Removed, link)
			if link.ID == trigger.ID {
				result.Link = own
			}
			continue
		}

		if err := m.links.ReassignTx(ctx, tx, link, survivor.ID); err != nil {
			return err
		}
		result.Reassigned = append(result.Reassigned, link)
		if link.ID == trigger.ID {
			result.Link = link
		}
	}

	now := m.now()

	if absorbed.IsEmailVerified && !survivor.IsEmailVerified {
		if err := m.accounts.MarkEmailVerifiedTx(ctx, tx, survivor.ID, now); err != nil {
			return err
		}
		survivor.IsEmailVerified = true
	}

	revoked, err := m.store.RevokeAllTx(ctx, tx, absorbed.ID, RevokeMerged)
	if err != nil {
		return err
	}
	result.RevokedSessions = revoked

	if err := m.accounts.SoftDeleteTx(ctx, tx, absorbed.ID, now); err != nil {
		return err
	}
	absorbed.DeletedAt = &now
	result.Merged = absorbed

	m.logger.Info("accounts merged",
		"survivor", survivor.OpaqueID,
		"absorbed", absorbed.OpaqueID,
		"reassigned", len(result.Reassigned),
		"removed", len(result.Removed),
	)

	return nil
}
