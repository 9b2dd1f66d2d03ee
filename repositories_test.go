package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-authd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func createAccount(t *testing.T, repos auth.RepositoryManager, nickname string) *auth.Account {
	t.Helper()
	account, err := repos.Accounts().Create(context.Background(), &auth.Account{Nickname: nickname})
	require.NoError(t, err)
	return account
}

func TestAccountsRepository(t *testing.T) {
	ctx := context.Background()
	repos, _ := newTestRepos(t)

	account := createAccount(t, repos, "merryOtter0001")
	assert.NotEmpty(t, account.OpaqueID)
	assert.Equal(t, auth.RoleMember, account.Role)

	found, err := repos.Accounts().FindByOpaqueID(ctx, account.OpaqueID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, account.ID, found.ID)

	missing, err := repos.Accounts().FindByOpaqueID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)

	taken, err := repos.Accounts().NicknameTakenTx(ctx, repos.DB(), "merryOtter0001")
	require.NoError(t, err)
	assert.True(t, taken)

	_, err = repos.Accounts().Create(ctx, &auth.Account{Nickname: "merryOtter0001"})
	assert.Error(t, err, "nicknames are unique among live accounts")

	at := time.Now().UTC()
	require.NoError(t, repos.Accounts().SoftDeleteTx(ctx, repos.DB(), account.ID, at))

	found, err = repos.Accounts().FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Nil(t, found)

	taken, err = repos.Accounts().NicknameTakenTx(ctx, repos.DB(), "merryOtter0001")
	require.NoError(t, err)
	assert.False(t, taken, "nickname of a deleted account is free again")
}

func TestProviderLinksRepository(t *testing.T) {
	ctx := context.Background()
	repos, _ := newTestRepos(t)
	links := repos.ProviderLinks()

	a := createAccount(t, repos, "alpha")
	b := createAccount(t, repos, "beta")

	link, err := links.Save(ctx, &auth.ProviderLink{
		AccountID:    a.ID,
		ProviderType: auth.ProviderGoogle,
		ProviderID:   "g-1",
		Email:        "a@example.com",
	})
	require.NoError(t, err)

	_, err = links.Save(ctx, &auth.ProviderLink{
		AccountID:    b.ID,
		ProviderType: auth.ProviderGoogle,
		ProviderID:   "g-1",
	})
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeDatabaseSaveFailed), "identity can only be bound once")

	_, err = links.Save(ctx, &auth.ProviderLink{
		AccountID:    a.ID,
		ProviderType: auth.ProviderGoogle,
		ProviderID:   "g-2",
	})
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeDatabaseSaveFailed), "one link per provider type per account")

	found, err := links.FindByProvider(ctx, auth.ProviderGoogle, "g-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.AccountID)

	link.Email = "new@example.com"
	_, err = links.Save(ctx, link)
	require.NoError(t, err)

	found, err = links.FindByAccountAndProvider(ctx, a.ID, auth.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", found.Email)

	require.NoError(t, repos.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return links.ReassignTx(ctx, tx, link, b.ID)
	}))
	assert.Equal(t, []auth.ProviderType{auth.ProviderGoogle}, linkTypes(t, repos, b.ID))
	assert.Empty(t, linkTypes(t, repos, a.ID))

	require.NoError(t, links.RemoveTx(ctx, repos.DB(), link))
	found, err = links.FindByProvider(ctx, auth.ProviderGoogle, "g-1")
	require.NoError(t, err)
	assert.Nil(t, found)

	_, err = links.Save(ctx, &auth.ProviderLink{
		AccountID:    a.ID,
		ProviderType: auth.ProviderGoogle,
		ProviderID:   "g-1",
	})
	require.NoError(t, err, "a removed identity can be bound again")
}

func TestRefreshSessionsOnePerDeviceBackstop(t *testing.T) {
	ctx := context.Background()
	repos, _ := newTestRepos(t)
	sessions := repos.RefreshSessions()
	account := createAccount(t, repos, "gamma")

	expires := time.Now().Add(time.Hour).UTC()
	first, err := sessions.InsertTx(ctx, repos.DB(), &auth.RefreshSession{
		AccountID: account.ID,
		OpaqueID:  account.OpaqueID,
		JTI:       "jti-1",
		ExpiredAt: expires,
	})
	require.NoError(t, err)

	_, err = sessions.InsertTx(ctx, repos.DB(), &auth.RefreshSession{
		AccountID: account.ID,
		OpaqueID:  account.OpaqueID,
		JTI:       "jti-2",
		ExpiredAt: expires,
	})
	assert.True(t, auth.IsErrorKind(err, auth.TextCodeDatabaseSaveFailed))

	_, err = sessions.InsertTx(ctx, repos.DB(), &auth.RefreshSession{
		AccountID: account.ID,
		OpaqueID:  account.OpaqueID,
		JTI:       "jti-3",
		DeviceID:  strPtr("ios"),
		ExpiredAt: expires,
	})
	require.NoError(t, err, "other devices are independent")

	revoked, err := sessions.RevokeTx(ctx, repos.DB(), first.ID, time.Now(), auth.RevokeLogout)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = sessions.RevokeTx(ctx, repos.DB(), first.ID, time.Now(), auth.RevokeLogout)
	require.NoError(t, err)
	assert.False(t, revoked, "second revoke is a no-op")

	live, err := sessions.FindLiveByTokenTx(ctx, repos.DB(), account.OpaqueID, "jti-1")
	require.NoError(t, err)
	assert.Nil(t, live)

	row, err := sessions.FindAnyByTokenTx(ctx, repos.DB(), account.OpaqueID, "jti-1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.IsRevoked())
	assert.Equal(t, auth.RevokeLogout, row.RevokeReason)

	_, err = sessions.InsertTx(ctx, repos.DB(), &auth.RefreshSession{
		AccountID: account.ID,
		OpaqueID:  account.OpaqueID,
		JTI:       "jti-4",
		DeviceID:  strPtr("  "),
		ExpiredAt: expires,
	})
	require.NoError(t, err, "blank device ids are browser sessions")

	n, err := sessions.RevokeAllForAccountTx(ctx, repos.DB(), account.ID, time.Now(), auth.RevokeMerged)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
