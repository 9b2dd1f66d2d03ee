package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProviderLinks is the lookup and persistence boundary for provider links.
// It holds no policy; uniqueness is enforced by the store.
type ProviderLinks interface {
	repository.Repository[*ProviderLink]

	FindByProvider(ctx context.Context, providerType ProviderType, providerID string) (*ProviderLink, error)
	FindByProviderTx(ctx context.Context, tx bun.IDB, providerType ProviderType, providerID string) (*ProviderLink, error)
	FindAllForAccount(ctx context.Context, accountID uuid.UUID) ([]*ProviderLink, error)
	FindAllForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*ProviderLink, error)
	FindByAccountAndProvider(ctx context.Context, accountID uuid.UUID, providerType ProviderType) (*ProviderLink, error)
	FindByAccountAndProviderTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, providerType ProviderType) (*ProviderLink, error)

	Save(ctx context.Context, link *ProviderLink) (*ProviderLink, error)
	SaveTx(ctx context.Context, tx bun.IDB, link *ProviderLink) (*ProviderLink, error)
	ReassignTx(ctx context.Context, tx bun.IDB, link *ProviderLink, accountID uuid.UUID) error
	RemoveTx(ctx context.Context, tx bun.IDB, link *ProviderLink) error
}

type providerLinks struct {
	repository.Repository[*ProviderLink]
	db  *bun.DB
	now func() time.Time
}

var _ ProviderLinks = (*providerLinks)(nil)

// NewProviderLinksRepository returns the bun backed ProviderLinks repository.
func NewProviderLinksRepository(db *bun.DB) ProviderLinks {
	repo := repository.NewRepository[*ProviderLink](db, repository.ModelHandlers[*ProviderLink]{
		NewRecord: func() *ProviderLink { return &ProviderLink{} },
		GetID: func(l *ProviderLink) uuid.UUID {
			if l == nil {
				return uuid.Nil
			}
			return l.ID
		},
		SetID: func(l *ProviderLink, id uuid.UUID) {
			if l != nil {
				l.ID = id
			}
		},
		GetIdentifier: func() string {
			return "provider_id"
		},
	})

	return &providerLinks{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

func (r *providerLinks) FindByProvider(ctx context.Context, providerType ProviderType, providerID string) (*ProviderLink, error) {
	return r.FindByProviderTx(ctx, r.db, providerType, providerID)
}

func (r *providerLinks) FindByProviderTx(ctx context.Context, tx bun.IDB, providerType ProviderType, providerID string) (*ProviderLink, error) {
	return r.findOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.provider_type = ?", providerType).
			Where("?TableAlias.provider_id = ?", providerID)
	})
}

func (r *providerLinks) FindAllForAccount(ctx context.Context, accountID uuid.UUID) ([]*ProviderLink, error) {
	return r.FindAllForAccountTx(ctx, r.db, accountID)
}

func (r *providerLinks) FindAllForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*ProviderLink, error) {
	records := []*ProviderLink{}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Order("created_at ASC", "provider_type ASC").
		Scan(ctx)
	if err != nil && !isNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list provider links")
	}
	return records, nil
}

func (r *providerLinks) FindByAccountAndProvider(ctx context.Context, accountID uuid.UUID, providerType ProviderType) (*ProviderLink, error) {
	return r.FindByAccountAndProviderTx(ctx, r.db, accountID, providerType)
}

func (r *providerLinks) FindByAccountAndProviderTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, providerType ProviderType) (*ProviderLink, error) {
	return r.findOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.account_id = ?", accountID).
			Where("?TableAlias.provider_type = ?", providerType)
	})
}

func (r *providerLinks) findOne(ctx context.Context, tx bun.IDB, criteria repository.SelectCriteria) (*ProviderLink, error) {
	record := &ProviderLink{}
	err := tx.NewSelect().
		Model(record).
		Apply(criteria).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load provider link")
	}
	return record, nil
}

func (r *providerLinks) Save(ctx context.Context, link *ProviderLink) (*ProviderLink, error) {
	return r.SaveTx(ctx, r.db, link)
}

// SaveTx inserts new links and updates the provider id and email snapshot of
// existing ones.
func (r *providerLinks) SaveTx(ctx context.Context, tx bun.IDB, link *ProviderLink) (*ProviderLink, error) {
	if link == nil {
		return nil, errors.New("provider link record is required", errors.CategoryBadInput)
	}

	now := r.now()

	if link.ID == uuid.Nil {
		link.ID = uuid.New()
		link.CreatedAt = &now
		link.UpdatedAt = &now
		if _, err := tx.NewInsert().Model(link).Exec(ctx); err != nil {
			return nil, saveFailed(err, "provider_link")
		}
		return link, nil
	}

	link.UpdatedAt = &now
	_, err := tx.NewUpdate().
		Model(link).
		Column("provider_id", "email", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, saveFailed(err, "provider_link")
	}
	return link, nil
}

func (r *providerLinks) ReassignTx(ctx context.Context, tx bun.IDB, link *ProviderLink, accountID uuid.UUID) error {
	now := r.now()
	_, err := tx.NewUpdate().
		Model((*ProviderLink)(nil)).
		Set("account_id = ?", accountID).
		Set("updated_at = ?", now).
		Where("id = ?", link.ID).
		Exec(ctx)
	if err != nil {
		return saveFailed(err, "provider_link")
	}
	link.AccountID = accountID
	link.UpdatedAt = &now
	return nil
}

// RemoveTx soft deletes the link so the identity can be bound again.
func (r *providerLinks) RemoveTx(ctx context.Context, tx bun.IDB, link *ProviderLink) error {
	now := r.now()
	_, err := tx.NewUpdate().
		Model((*ProviderLink)(nil)).
		Set("deleted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", link.ID).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return saveFailed(err, "provider_link")
	}
	link.DeletedAt = &now
	return nil
}
