package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts persists canonical accounts. Soft deleted rows are invisible to
// every finder.
type Accounts interface {
	repository.Repository[*Account]

	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	FindByOpaqueID(ctx context.Context, opaqueID string) (*Account, error)
	FindByOpaqueIDTx(ctx context.Context, tx bun.IDB, opaqueID string) (*Account, error)
	NicknameTakenTx(ctx context.Context, tx bun.IDB, nickname string) (bool, error)

	LockTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	TouchLastLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
)

// NewAccountsRepository returns the bun backed Accounts repository.
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "opaque_id"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (r *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	if record == nil {
		return nil, errors.New("account record is required", errors.CategoryBadInput)
	}
	prepareAccountDefaults(record)
	return r.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (r *accounts) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.FindByIDTx(ctx, r.db, id)
}

func (r *accounts) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account")
	}
	return record, nil
}

func (r *accounts) FindByOpaqueID(ctx context.Context, opaqueID string) (*Account, error) {
	return r.FindByOpaqueIDTx(ctx, r.db, opaqueID)
}

func (r *accounts) FindByOpaqueIDTx(ctx context.Context, tx bun.IDB, opaqueID string) (*Account, error) {
	opaqueID = strings.TrimSpace(opaqueID)
	if opaqueID == "" {
		return nil, nil
	}

	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.opaque_id = ?", opaqueID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account")
	}
	return record, nil
}

func (r *accounts) NicknameTakenTx(ctx context.Context, tx bun.IDB, nickname string) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*Account)(nil)).
		Where("?TableAlias.nickname = ?", nickname).
		Exists(ctx)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to check nickname")
	}
	return exists, nil
}

// LockTx takes a row lock on the account where the dialect supports it. It
// serializes rotations for the same account across transactions.
func (r *accounts) LockTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if !supportsRowLocks(tx) {
		return nil
	}
	var locked uuid.UUID
	err := tx.NewSelect().
		Model((*Account)(nil)).
		Column("id").
		Where("?TableAlias.id = ?", id).
		For("UPDATE").
		Scan(ctx, &locked)
	if err != nil && !isNotFound(err) {
		return errors.Wrap(err, errors.CategoryInternal, "failed to lock account")
	}
	return nil
}

func (r *accounts) TouchLastLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("last_login_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return saveFailed(err, "account")
	}
	return nil
}

func (r *accounts) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("is_email_verified = ?", true).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return saveFailed(err, "account")
	}
	return nil
}

func (r *accounts) SoftDeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewUpdate().
		Model((*Account)(nil)).
		Set("deleted_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return saveFailed(err, "account")
	}
	return nil
}

func prepareAccountDefaults(record *Account) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if strings.TrimSpace(record.OpaqueID) == "" {
		record.OpaqueID = uuid.NewString()
	}
	if record.Role == "" {
		record.Role = RoleMember
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
	if record.UpdatedAt == nil {
		record.UpdatedAt = record.CreatedAt
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
