package auth

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager owns the three repositories and the transaction they
// share. Tx variants of repository methods take the bun.Tx handed to RunInTx.
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	DB() *bun.DB
	Accounts() Accounts
	ProviderLinks() ProviderLinks
	RefreshSessions() RefreshSessions
}

type mngr struct {
	db              *bun.DB
	accounts        Accounts
	providerLinks   ProviderLinks
	refreshSessions RefreshSessions
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:              db,
		accounts:        NewAccountsRepository(db),
		providerLinks:   NewProviderLinksRepository(db),
		refreshSessions: NewRefreshSessionsRepository(db),
	}
}

// Validate reports repositories left nil by a custom manager.
func (m mngr) Validate() error {
	var missing []string
	if m.accounts == nil {
		missing = append(missing, "accounts")
	}
	if m.providerLinks == nil {
		missing = append(missing, "provider_links")
	}
	if m.refreshSessions == nil {
		missing = append(missing, "refresh_sessions")
	}
	if len(missing) == 0 {
		return nil
	}
	return errors.New("repositories not initialized: "+strings.Join(missing, ", "), errors.CategoryInternal).
		WithCode(errors.CodeInternal).
		WithMetadata(map[string]any{"missing": missing})
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		panic(err)
	}
}

// RunInTx fails fast on a cancelled context before opening a transaction.
func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.db.RunInTx(ctx, opts, f)
}

func (m mngr) DB() *bun.DB {
	return m.db
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) ProviderLinks() ProviderLinks {
	return m.providerLinks
}

func (m mngr) RefreshSessions() RefreshSessions {
	return m.refreshSessions
}
