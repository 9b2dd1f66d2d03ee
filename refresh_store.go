package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Rotation is the outcome of a rotation: the new refresh token and the
// session row that backs it.
type Rotation struct {
	Token   *IssuedToken
	Session *RefreshSession
	Revoked *RefreshSession
}

// RefreshTokenStore keeps at most one active refresh session per
// (account, device) and validates presented refresh tokens against the
// store of record.
type RefreshTokenStore struct {
	tx       TransactionManager
	conn     bun.IDB
	accounts Accounts
	sessions RefreshSessions
	codec    *TokenCodec
	now      func() time.Time
	logger   Logger
}

// RefreshStoreOption customizes a RefreshTokenStore.
type RefreshStoreOption func(*RefreshTokenStore)

// WithStoreClock overrides the clock used for expiry and revocation times.
func WithStoreClock(now func() time.Time) RefreshStoreOption {
	return func(s *RefreshTokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLogger sets the store logger.
func WithStoreLogger(logger Logger) RefreshStoreOption {
	return func(s *RefreshTokenStore) {
		s.logger = normalizeLogger(logger)
	}
}

// NewRefreshTokenStore wires the store on top of the repository manager.
func NewRefreshTokenStore(repos RepositoryManager, codec *TokenCodec, opts ...RefreshStoreOption) *RefreshTokenStore {
	s := &RefreshTokenStore{
		tx:       repos,
		conn:     repos.DB(),
		accounts: repos.Accounts(),
		sessions: repos.RefreshSessions(),
		codec:    codec,
		now:      time.Now,
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// FindActiveForDevice returns the live, unexpired session for the device or
// nil. A nil deviceID addresses browser sessions.
func (s *RefreshTokenStore) FindActiveForDevice(ctx context.Context, accountID uuid.UUID, deviceID *string) (*RefreshSession, error) {
	session, err := s.sessions.FindLiveForDeviceTx(ctx, s.db(), accountID, deviceID)
	if err != nil || session == nil {
		return nil, err
	}
	if session.IsExpiredAt(s.now()) {
		return nil, nil
	}
	return session, nil
}

// FindActive looks a session up by the (opaqueID, jti) pair carried in a
// refresh token.
func (s *RefreshTokenStore) FindActive(ctx context.Context, opaqueID, jti string) (*RefreshSession, error) {
	session, err := s.sessions.FindLiveByTokenTx(ctx, s.db(), opaqueID, jti)
	if err != nil || session == nil {
		return nil, err
	}
	if session.IsExpiredAt(s.now()) {
		return nil, nil
	}
	return session, nil
}

// ListActive returns every live session of the account, one per device.
func (s *RefreshTokenStore) ListActive(ctx context.Context, accountID uuid.UUID) ([]*RefreshSession, error) {
	sessions, err := s.sessions.ListLiveForAccountTx(ctx, s.db(), accountID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := make([]*RefreshSession, 0, len(sessions))
	for _, session := range sessions {
		if !session.IsExpiredAt(now) {
			active = append(active, session)
		}
	}
	return active, nil
}

// Create inserts a session without touching existing ones. Rotation is the
// normal path; Create is exposed for imports and tests.
func (s *RefreshTokenStore) Create(ctx context.Context, account *Account, jti string, deviceID *string, expiresAt time.Time) (*RefreshSession, error) {
	return s.createTx(ctx, s.db(), account, jti, deviceID, expiresAt)
}

func (s *RefreshTokenStore) createTx(ctx context.Context, tx bun.IDB, account *Account, jti string, deviceID *string, expiresAt time.Time) (*RefreshSession, error) {
	if account == nil {
		return nil, errors.New("account is required to create a refresh session", errors.CategoryBadInput)
	}
	if strings.TrimSpace(jti) == "" {
		return nil, errors.New("jti is required to create a refresh session", errors.CategoryBadInput)
	}

	now := s.now()
	if expiresAt.IsZero() {
		expiresAt = now.Add(s.codec.RefreshTTL())
	}

	return s.sessions.InsertTx(ctx, tx, &RefreshSession{
		AccountID: account.ID,
		JTI:       jti,
		OpaqueID:  account.OpaqueID,
		DeviceID:  deviceID,
		ExpiredAt: expiresAt,
		CreatedAt: &now,
	})
}

// Revoke soft deletes the session. Revoking a revoked session is a no-op.
func (s *RefreshTokenStore) Revoke(ctx context.Context, session *RefreshSession, at time.Time, reason string) error {
	return s.revokeTx(ctx, s.db(), session, at, reason)
}

func (s *RefreshTokenStore) revokeTx(ctx context.Context, tx bun.IDB, session *RefreshSession, at time.Time, reason string) error {
	if session == nil || session.IsRevoked() {
		return nil
	}
	if at.IsZero() {
		at = s.now()
	}

	if _, err := s.sessions.RevokeTx(ctx, tx, session.ID, at, reason); err != nil {
		return err
	}
	session.DeletedAt = &at
	session.RevokeReason = reason
	return nil
}

// RevokeByToken revokes the live session behind (opaqueID, jti). It reports
// false when there was nothing left to revoke.
func (s *RefreshTokenStore) RevokeByToken(ctx context.Context, opaqueID, jti, reason string) (bool, error) {
	var revoked bool
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		session, err := s.sessions.FindLiveByTokenTx(ctx, tx, opaqueID, jti)
		if err != nil || session == nil {
			return err
		}
		revoked, err = s.sessions.RevokeTx(ctx, tx, session.ID, s.now(), reason)
		return err
	})
	if err != nil {
		return false, err
	}
	return revoked, nil
}

// Validate checks that a presented refresh token still maps to a live
// session. A revoked row means the token was replayed; an expired row is
// revoked on the spot and reported as expired.
func (s *RefreshTokenStore) Validate(ctx context.Context, opaqueID, jti string) (*RefreshSession, error) {
	var (
		session *RefreshSession
		failure error
	)

	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		live, err := s.sessions.FindLiveByTokenTx(ctx, tx, opaqueID, jti)
		if err != nil {
			return err
		}

		if live == nil {
			failure = s.classifyMissingTx(ctx, tx, opaqueID, jti)
			return nil
		}

		now := s.now()
		if live.IsExpiredAt(now) {
			if err := s.revokeTx(ctx, tx, live, now, RevokeExpired); err != nil {
				return err
			}
			failure = withSource(ErrTokenExpired, nil, map[string]any{
				"reason":     "refresh session expired",
				"expired_at": live.ExpiredAt,
			})
			return nil
		}

		session = live
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failure != nil {
		return nil, failure
	}
	return session, nil
}

func (s *RefreshTokenStore) classifyMissingTx(ctx context.Context, tx bun.IDB, opaqueID, jti string) error {
	row, err := s.sessions.FindAnyByTokenTx(ctx, tx, opaqueID, jti)
	if err != nil {
		return err
	}
	if row == nil {
		return withSource(ErrSessionNotFound, nil, nil)
	}
	return withSource(ErrSessionRevoked, nil, map[string]any{
		"revoke_reason": row.RevokeReason,
		"revoked_at":    row.DeletedAt,
	})
}

// Rotate replaces the account's session for deviceID with a fresh one in a
// single transaction. It is the login path.
func (s *RefreshTokenStore) Rotate(ctx context.Context, account *Account, deviceID *string) (*Rotation, error) {
	var rotation *Rotation
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		rotation, err = s.RotateTx(ctx, tx, account, deviceID, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rotation, nil
}

// RotateSession rotates the session a refresh token was presented for. Only
// one caller can consume current; the others get ErrSessionRevoked.
func (s *RefreshTokenStore) RotateSession(ctx context.Context, account *Account, current *RefreshSession) (*Rotation, error) {
	if current == nil {
		return nil, withSource(ErrSessionNotFound, nil, nil)
	}

	var rotation *Rotation
	err := s.tx.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		rotation, err = s.RotateTx(ctx, tx, account, current.DeviceID, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rotation, nil
}

// RotateTx runs the rotation inside tx: lock the account, revoke the live
// session for the device, mint a refresh token and insert its session. When
// expect is set it must still be live or the rotation fails.
func (s *RefreshTokenStore) RotateTx(ctx context.Context, tx bun.IDB, account *Account, deviceID *string, expect *RefreshSession) (*Rotation, error) {
	if account == nil {
		return nil, errors.New("account is required for rotation", errors.CategoryBadInput)
	}

	deviceID = normalizeDeviceID(deviceID)

	if err := s.accounts.LockTx(ctx, tx, account.ID); err != nil {
		return nil, err
	}

	now := s.now()
	rotation := &Rotation{}

	if expect != nil {
		revoked, err := s.sessions.RevokeTx(ctx, tx, expect.ID, now, RevokeRotated)
		if err != nil {
			return nil, err
		}
		if !revoked {
			s.logger.Warn("refresh session consumed concurrently",
				"opaque_id", expect.OpaqueID,
				"jti", expect.JTI,
			)
			return nil, withSource(ErrSessionRevoked, nil, map[string]any{
				"reason": "session consumed concurrently",
			})
		}
		expect.DeletedAt = &now
		expect.RevokeReason = RevokeRotated
		rotation.Revoked = expect
	}

	previous, err := s.sessions.FindLiveForDeviceTx(ctx, tx, account.ID, deviceID)
	if err != nil {
		return nil, err
	}
	if previous != nil {
		reason := RevokeRotated
		if previous.IsExpiredAt(now) {
			reason = RevokeExpired
		}
		if err := s.revokeTx(ctx, tx, previous, now, reason); err != nil {
			return nil, err
		}
		if rotation.Revoked == nil {
			rotation.Revoked = previous
		}
	}

	token, err := s.codec.IssueRefresh(account.OpaqueID, "", deviceKey(deviceID))
	if err != nil {
		return nil, err
	}

	session, err := s.createTx(ctx, tx, account, token.JTI, deviceID, token.ExpiresAt)
	if err != nil {
		return nil, err
	}

	rotation.Token = token
	rotation.Session = session

	s.logger.Debug("refresh session rotated",
		"opaque_id", account.OpaqueID,
		"device_id", deviceKey(deviceID),
		"jti", token.JTI,
	)

	return rotation, nil
}

// RevokeAllTx revokes every live session of the account.
func (s *RefreshTokenStore) RevokeAllTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, reason string) (int64, error) {
	return s.sessions.RevokeAllForAccountTx(ctx, tx, accountID, s.now(), reason)
}

func (s *RefreshTokenStore) db() bun.IDB {
	return s.conn
}
