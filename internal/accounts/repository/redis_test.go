package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/rvd-backend/internal/accounts/domain"
)

func setupRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client)
	tick := fixedNow
	store.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return store, mr
}

func TestRedisStore_AddAndGet(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	parent := &domain.Account{Sid: "AC1", FriendlyName: "Acme", Email: "Admin@Acme.io", Status: domain.StatusActive, Role: domain.RoleAdministrator}
	require.NoError(t, store.AddAccount(ctx, parent))
	assert.True(t, mr.Exists("rvd:account:AC1"))

	t.Run("duplicate sid", func(t *testing.T) {
		dup := &domain.Account{Sid: "AC1", Email: "other@acme.io", Role: domain.RoleDeveloper}
		assert.ErrorIs(t, store.AddAccount(ctx, dup), domain.ErrAccountExists)
		assert.False(t, mr.Exists("rvd:account:email:other@acme.io"), "email reservation released")
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := &domain.Account{Sid: "AC9", Email: "admin@acme.io", Role: domain.RoleDeveloper}
		assert.ErrorIs(t, store.AddAccount(ctx, dup), domain.ErrAccountExists)
	})

	got, err := store.GetAccount(ctx, "AC1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.FriendlyName)

	got, err = store.GetAccountToAuthenticate(ctx, "admin@acme.io")
	require.NoError(t, err)
	assert.Equal(t, "AC1", got.Sid)

	_, err = store.GetAccountToAuthenticate(ctx, "Acme")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	got, err = store.GetAccountByName(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, "AC1", got.Sid)

	_, err = store.GetAccount(ctx, "ACnope")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRedisStore_SubAccountsAndRemove(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddAccount(ctx, &domain.Account{Sid: "AC1", Email: "p@x.io", Role: domain.RoleAdministrator, Status: domain.StatusActive}))
	require.NoError(t, store.AddAccount(ctx, &domain.Account{Sid: "ACb", ParentSid: "AC1", Email: "b@x.io", Role: domain.RoleDeveloper}))
	require.NoError(t, store.AddAccount(ctx, &domain.Account{Sid: "ACa", ParentSid: "AC1", Email: "a@x.io", Role: domain.RoleDeveloper}))

	subs, err := store.GetSubAccounts(ctx, "AC1")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "ACb", subs[0].Sid, "oldest first")

	require.NoError(t, store.RemoveAccount(ctx, "ACb"))
	assert.ErrorIs(t, store.RemoveAccount(ctx, "ACb"), domain.ErrAccountNotFound)

	subs, err = store.GetSubAccounts(ctx, "AC1")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	_, err = store.GetAccountToAuthenticate(ctx, "b@x.io")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRedisStore_Update(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	a := &domain.Account{Sid: "AC1", FriendlyName: "Old", Email: "old@x.io", Role: domain.RoleDeveloper, Status: domain.StatusActive}
	require.NoError(t, store.AddAccount(ctx, a))
	require.NoError(t, store.AddAccount(ctx, &domain.Account{Sid: "AC2", Email: "taken@x.io", Role: domain.RoleDeveloper}))
	created := a.DateCreated

	upd := &domain.Account{Sid: "AC1", FriendlyName: "New", Email: "new@x.io", Role: domain.RoleAdministrator, Status: domain.StatusSuspended}
	require.NoError(t, store.UpdateAccount(ctx, upd))
	assert.Equal(t, created, upd.DateCreated)
	assert.True(t, upd.DateUpdated.After(created))

	assert.False(t, mr.Exists("rvd:account:email:old@x.io"))
	got, err := store.GetAccountByName(ctx, "New")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdministrator, got.Role)
	assert.False(t, got.Active())

	_, err = store.GetAccountByName(ctx, "Old")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)

	upd.Email = "taken@x.io"
	assert.ErrorIs(t, store.UpdateAccount(ctx, upd), domain.ErrAccountExists)

	assert.ErrorIs(t, store.UpdateAccount(ctx, &domain.Account{Sid: "AC404", Email: "z@x.io", Role: domain.RoleDeveloper}), domain.ErrAccountNotFound)
}
