package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	auth "github.com/goliatone/go-authd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFixture struct {
	repos   auth.RepositoryManager
	codec   *auth.TokenCodec
	store   *auth.RefreshTokenStore
	clock   *testClock
	account *auth.Account
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	repos, opts := newTestRepos(t)
	clock := newTestClock()
	codec := auth.NewTokenCodecFromConfig(opts, auth.WithCodecClock(clock.Now))
	store := auth.NewRefreshTokenStore(repos, codec, auth.WithStoreClock(clock.Now))

	return &storeFixture{
		repos:   repos,
		codec:   codec,
		store:   store,
		clock:   clock,
		account: createAccount(t, repos, "storeOwner"),
	}
}

func TestRefreshStoreRotateKeepsOneSessionPerDevice(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	first, err := f.store.Rotate(ctx, f.account, nil)
	require.NoError(t, err)
	assert.Nil(t, first.Revoked)
	assert.Nil(t, first.Session.DeviceID)

	claims, err := f.codec.VerifyRefresh(first.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, f.account.OpaqueID, claims.Subject())
	assert.Equal(t, first.Session.JTI, claims.JTI())
	assert.True(t, first.Session.ExpiredAt.Equal(first.Token.ExpiresAt))

	f.clock.Advance(time.Minute)
	second, err := f.store.Rotate(ctx, f.account, nil)
	require.NoError(t, err)
	require.NotNil(t, second.Revoked)
	assert.Equal(t, first.Session.ID, second.Revoked.ID)
	assert.Equal(t, auth.RevokeRotated, second.Revoked.RevokeReason)

	_, err = f.store.Rotate(ctx, f.account, strPtr("ios"))
	require.NoError(t, err)

	active, err := f.store.ListActive(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	browser, err := f.store.FindActiveForDevice(ctx, f.account.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, browser)
	assert.Equal(t, second.Session.ID, browser.ID)

	stale, err := f.store.FindActive(ctx, f.account.OpaqueID, first.Session.JTI)
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestRefreshStoreSequentialRotationRejectsOldTokens(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)
	device := strPtr("android-7")

	rotation, err := f.store.Rotate(ctx, f.account, device)
	require.NoError(t, err)

	issued := []*auth.RefreshSession{rotation.Session}
	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Second)

		current, err := f.store.Validate(ctx, f.account.OpaqueID, issued[len(issued)-1].JTI)
		require.NoError(t, err)

		next, err := f.store.RotateSession(ctx, f.account, current)
		require.NoError(t, err)
		issued = append(issued, next.Session)

		active, err := f.store.ListActive(ctx, f.account.ID)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, next.Session.ID, active[0].ID)

		for _, old := range issued[:len(issued)-1] {
			_, err := f.store.Validate(ctx, f.account.OpaqueID, old.JTI)
			assert.True(t, auth.IsErrorKind(err, auth.TextCodeSessionRevoked), "old jti %s got %v", old.JTI, err)
		}
	}
}

func TestRefreshStoreRotateSessionConsumesOnce(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	rotation, err := f.store.Rotate(ctx, f.account, nil)
	require.NoError(t, err)

	current, err := f.store.Validate(ctx, f.account.OpaqueID, rotation.Session.JTI)
	require.NoError(t, err)
	copyOfCurrent := *current

	_, err = f.store.RotateSession(ctx, f.account, current)
	require.NoError(t, err)

	_, err = f.store.RotateSession(ctx, f.account, &copyOfCurrent)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeSessionRevoked))

	active, err := f.store.ListActive(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestServiceConcurrentRefreshConsumesTokenOnce(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)

	pair, err := f.service.EmailLogin(ctx, auth.EmailLoginRequest{
		Email:    "user@example.com",
		Code:     validCode,
		DeviceID: strPtr("ios-1"),
	})
	require.NoError(t, err)

	const callers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := f.service.Refresh(ctx, pair.RefreshToken); err == nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())

	account, err := f.repos.Accounts().FindByOpaqueID(ctx, pair.OpaqueID)
	require.NoError(t, err)
	active, err := f.service.Store().ListActive(ctx, account.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRefreshStoreValidateClassifiesFailures(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	_, err := f.store.Validate(ctx, f.account.OpaqueID, "never-issued")
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeSessionNotFound))

	rotation, err := f.store.Rotate(ctx, f.account, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.Revoke(ctx, rotation.Session, time.Time{}, auth.RevokeLogout))
	require.NoError(t, f.store.Revoke(ctx, rotation.Session, time.Time{}, auth.RevokeLogout), "revoke is idempotent")

	_, err = f.store.Validate(ctx, f.account.OpaqueID, rotation.Session.JTI)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeSessionRevoked))
}

func TestRefreshStoreStoredExpiryIsAuthoritative(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	// the stored expiry is shorter than the token's own exp claim
	token, err := f.codec.IssueRefresh(f.account.OpaqueID, "", "")
	require.NoError(t, err)
	session, err := f.store.Create(ctx, f.account, token.JTI, nil, f.clock.Now().Add(time.Minute))
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)

	_, err = f.codec.VerifyRefresh(token.Token)
	require.NoError(t, err, "the token itself is still valid")

	_, err = f.store.Validate(ctx, f.account.OpaqueID, token.JTI)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeTokenExpired))

	row, err := f.repos.RefreshSessions().FindAnyByTokenTx(ctx, f.repos.DB(), f.account.OpaqueID, session.JTI)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.IsRevoked(), "expired session is revoked on detection")
	assert.Equal(t, auth.RevokeExpired, row.RevokeReason)

	_, err = f.store.Validate(ctx, f.account.OpaqueID, token.JTI)
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeSessionRevoked))
}

func TestRefreshStoreRevokeByToken(t *testing.T) {
	ctx := context.Background()
	f := newStoreFixture(t)

	rotation, err := f.store.Rotate(ctx, f.account, nil)
	require.NoError(t, err)

	revoked, err := f.store.RevokeByToken(ctx, f.account.OpaqueID, rotation.Session.JTI, auth.RevokeLogout)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = f.store.RevokeByToken(ctx, f.account.OpaqueID, rotation.Session.JTI, auth.RevokeLogout)
	require.NoError(t, err)
	assert.False(t, revoked)
}
