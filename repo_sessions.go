package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RefreshSessions persists refresh sessions. Revocation is a soft delete;
// only the replay lookup sees revoked rows.
type RefreshSessions interface {
	repository.Repository[*RefreshSession]

	InsertTx(ctx context.Context, tx bun.IDB, session *RefreshSession) (*RefreshSession, error)
	FindLiveForDeviceTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, deviceID *string) (*RefreshSession, error)
	FindLiveByTokenTx(ctx context.Context, tx bun.IDB, opaqueID, jti string) (*RefreshSession, error)
	FindAnyByTokenTx(ctx context.Context, tx bun.IDB, opaqueID, jti string) (*RefreshSession, error)
	ListLiveForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*RefreshSession, error)
	RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time, reason string) (bool, error)
	RevokeAllForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, at time.Time, reason string) (int64, error)
}

type refreshSessions struct {
	repository.Repository[*RefreshSession]
	db *bun.DB
}

var _ RefreshSessions = (*refreshSessions)(nil)

// NewRefreshSessionsRepository returns the bun backed RefreshSessions repository.
func NewRefreshSessionsRepository(db *bun.DB) RefreshSessions {
	repo := repository.NewRepository[*RefreshSession](db, repository.ModelHandlers[*RefreshSession]{
		NewRecord: func() *RefreshSession { return &RefreshSession{} },
		GetID: func(s *RefreshSession) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *RefreshSession, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "jti"
		},
	})

	return &refreshSessions{
		Repository: repo,
		db:         db,
	}
}

func (r *refreshSessions) InsertTx(ctx context.Context, tx bun.IDB, session *RefreshSession) (*RefreshSession, error) {
	if session == nil {
		return nil, errors.New("refresh session record is required", errors.CategoryBadInput)
	}
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.DeviceID = normalizeDeviceID(session.DeviceID)

	if _, err := tx.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, saveFailed(err, "refresh_session")
	}
	return session, nil
}

func (r *refreshSessions) FindLiveForDeviceTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, deviceID *string) (*RefreshSession, error) {
	deviceID = normalizeDeviceID(deviceID)
	return r.findOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("?TableAlias.account_id = ?", accountID)
		if deviceID == nil {
			return q.Where("?TableAlias.device_id IS NULL")
		}
		return q.Where("?TableAlias.device_id = ?", *deviceID)
	})
}

func (r *refreshSessions) FindLiveByTokenTx(ctx context.Context, tx bun.IDB, opaqueID, jti string) (*RefreshSession, error) {
	return r.findOne(ctx, tx, byToken(opaqueID, jti))
}

// FindAnyByTokenTx includes revoked rows. It backs replay classification.
func (r *refreshSessions) FindAnyByTokenTx(ctx context.Context, tx bun.IDB, opaqueID, jti string) (*RefreshSession, error) {
	return r.findOne(ctx, tx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return byToken(opaqueID, jti)(q.WhereAllWithDeleted())
	})
}

func (r *refreshSessions) ListLiveForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) ([]*RefreshSession, error) {
	records := []*RefreshSession{}
	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil && !isNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list refresh sessions")
	}
	return records, nil
}

// RevokeTx reports whether a live row was revoked. Revoking an already
// revoked session is not an error.
func (r *refreshSessions) RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time, reason string) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshSession)(nil)).
		Set("deleted_at = ?", at).
		Set("revoke_reason = ?", reason).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, saveFailed(err, "refresh_session")
	}
	n, err := rowsAffected(res, "refresh_session")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *refreshSessions) RevokeAllForAccountTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, at time.Time, reason string) (int64, error) {
	res, err := tx.NewUpdate().
		Model((*RefreshSession)(nil)).
		Set("deleted_at = ?", at).
		Set("revoke_reason = ?", reason).
		Where("account_id = ?", accountID).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, saveFailed(err, "refresh_session")
	}
	return rowsAffected(res, "refresh_session")
}

func rowsAffected(res sql.Result, entity string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to read affected rows").
			WithMetadata(map[string]any{"entity": entity})
	}
	return n, nil
}

func (r *refreshSessions) findOne(ctx context.Context, tx bun.IDB, criteria repository.SelectCriteria) (*RefreshSession, error) {
	record := &RefreshSession{}
	err := tx.NewSelect().
		Model(record).
		Apply(criteria).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load refresh session")
	}
	return record, nil
}

func byToken(opaqueID, jti string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.opaque_id = ?", opaqueID).
			Where("?TableAlias.jti = ?", jti)
	}
}
