package stores

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/wsauthz"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisMembershipStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisMembershipStore(client)

	got, err := store.GetMembership(ctx, "u1", "ws-a")
	require.NoError(t, err)
	require.Nil(t, got)

	m := &wsauthz.Membership{PrincipalID: "u1", WorkspaceID: "ws-a", RoleID: wsauthz.RoleOperator, GrantedBy: "root"}
	require.NoError(t, store.PutMembership(ctx, m, 0))
	require.EqualValues(t, 1, m.Version)
	require.True(t, mr.Exists("wsauthz:members:ws-a"))

	stale := &wsauthz.Membership{PrincipalID: "u1", WorkspaceID: "ws-a", RoleID: wsauthz.RoleAdmin}
	require.ErrorIs(t, store.PutMembership(ctx, stale, 0), wsauthz.ErrConcurrencyConflict)
	require.Zero(t, stale.Version)

	m.RoleID = wsauthz.RoleAdmin
	require.NoError(t, store.PutMembership(ctx, m, 1))

	got, err = store.GetMembership(ctx, "u1", "ws-a")
	require.NoError(t, err)
	require.Equal(t, wsauthz.RoleAdmin, got.RoleID)
	require.EqualValues(t, 2, got.Version)

	require.ErrorIs(t, store.DeleteMembership(ctx, "u1", "ws-a", 1), wsauthz.ErrConcurrencyConflict)
	require.NoError(t, store.DeleteMembership(ctx, "u1", "ws-a", 2))
	got, err = store.GetMembership(ctx, "u1", "ws-a")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestRedisMembershipStoreList(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisMembershipStore(client)
	for _, m := range []*wsauthz.Membership{
		{PrincipalID: "zed", WorkspaceID: "ws-b", RoleID: wsauthz.RoleOperator},
		{PrincipalID: "amy", WorkspaceID: "ws-a", RoleID: wsauthz.RoleAdmin},
		{PrincipalID: "bob", WorkspaceID: "ws-a", RoleID: wsauthz.RoleOperator},
	} {
		require.NoError(t, store.PutMembership(ctx, m, 0))
	}
	// unrelated keys are ignored
	require.NoError(t, client.Set(ctx, "other:key", "x", 0).Err())

	rows, err := store.ListMemberships(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "amy", rows[0].PrincipalID)
	require.Equal(t, "bob", rows[1].PrincipalID)
	require.Equal(t, "ws-b", rows[2].WorkspaceID)
}

func TestRedisMembershipStoreBacksService(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	catalog, err := wsauthz.NewDefaultCatalog()
	require.NoError(t, err)
	roles, err := wsauthz.NewDefaultRoleRegistry(catalog)
	require.NoError(t, err)
	workspaces := wsauthz.NewWorkspaceRegistry(NewMemoryWorkspaceStore())
	_, err = workspaces.Create(ctx, wsauthz.Workspace{ID: "ws-a", Active: true})
	require.NoError(t, err)

	svc := wsauthz.NewMembershipService(roles, workspaces, wsauthz.WithMembershipStore(NewRedisMembershipStore(client)))
	require.NoError(t, svc.Grant(ctx, "root", "sara", "ws-a", wsauthz.RoleSuperadmin))

	fresh := wsauthz.NewMembershipService(roles, workspaces, wsauthz.WithMembershipStore(NewRedisMembershipStore(client)))
	require.NoError(t, fresh.Load(ctx))
	require.True(t, fresh.IsSuperadmin("sara"))
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisSessionStore(client, time.Minute)
	switched := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	rec := wsauthz.SessionRecord{ID: "s1", PrincipalID: "adam", WorkspaceID: "ws-a", SwitchedAt: switched, CreatedAt: switched}
	require.NoError(t, store.SaveSession(ctx, rec))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "ws-a", got.WorkspaceID)
	require.True(t, got.SwitchedAt.Equal(switched))

	mr.FastForward(2 * time.Minute)
	_, err = store.GetSession(ctx, "s1")
	require.ErrorIs(t, err, wsauthz.ErrSessionNotFound)

	require.NoError(t, store.SaveSession(ctx, rec))
	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSession(ctx, "s1")
	require.ErrorIs(t, err, wsauthz.ErrSessionNotFound)
}

func TestRistrettoSessionStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewRistrettoSessionStore(1000, time.Hour)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	rec := wsauthz.SessionRecord{ID: "s1", PrincipalID: "olivia", WorkspaceID: "ws-b", CreatedAt: time.Now()}
	require.NoError(t, store.SaveSession(ctx, rec))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "olivia", got.PrincipalID)
	require.Equal(t, "ws-b", got.Session().Context().WorkspaceID)

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSession(ctx, "s1")
	require.ErrorIs(t, err, wsauthz.ErrSessionNotFound)
}
