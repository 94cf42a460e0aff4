package stores

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/wsauthz"
)

func TestMemoryMembershipStoreConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMembershipStore()
	m := &wsauthz.Membership{PrincipalID: "u1", WorkspaceID: "ws-a", RoleID: wsauthz.RoleOperator}
	require.NoError(t, store.PutMembership(ctx, m, 0))
	require.ErrorIs(t, store.PutMembership(ctx, &wsauthz.Membership{PrincipalID: "u1", WorkspaceID: "ws-a"}, 0), wsauthz.ErrConcurrencyConflict)
	require.ErrorIs(t, store.DeleteMembership(ctx, "u1", "ws-a", 7), wsauthz.ErrConcurrencyConflict)
	require.ErrorIs(t, store.DeleteMembership(ctx, "ghost", "ws-a", 0), wsauthz.ErrConcurrencyConflict)
	require.NoError(t, store.DeleteMembership(ctx, "u1", "ws-a", 1))

	rows, err := store.ListMemberships(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMemoryAuditStoreLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()
	base := time.Now()
	for i, target := range []string{"u1", "u2", "u1", "u1"} {
		require.NoError(t, store.RecordRoleChange(ctx, &wsauthz.RoleChange{
			ID: target + "-" + string(rune('a'+i)), Actor: "root", Target: target, WorkspaceID: "ws-a",
			NewRole: wsauthz.RoleOperator, Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.Equal(t, 4, store.Len())
	got, err := store.ListRoleChanges(ctx, wsauthz.AuditFilter{Target: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "u1-a", got[0].ID)
	require.Equal(t, "u1-c", got[1].ID)
}

// End to end through Bootstrap with in-memory stores: seeded memberships are
// persisted and audited, and a second bootstrap over the same stores is a
// no-op for memberships that already match.
func TestBootstrapWithMemoryStores(t *testing.T) {
	ctx := context.Background()
	cfg := &wsauthz.Config{
		Workspaces: []wsauthz.Workspace{{ID: "ws-a", Name: "Trattoria", Active: true}},
		Memberships: []wsauthz.Membership{
			{PrincipalID: "adam", WorkspaceID: "ws-a", RoleID: wsauthz.RoleAdmin},
			{PrincipalID: "olivia", WorkspaceID: "ws-a", RoleID: wsauthz.RoleOperator},
		},
	}
	b := wsauthz.Backends{
		Memberships: NewMemoryMembershipStore(),
		Workspaces:  NewMemoryWorkspaceStore(),
		Audit:       NewMemoryAuditStore(),
	}
	rt, err := wsauthz.Bootstrap(ctx, cfg, b)
	require.NoError(t, err)
	require.Equal(t, 2, b.Audit.(*MemoryAuditStore).Len())

	d := rt.Engine.Authorize(wsauthz.WorkspaceContext{PrincipalID: "olivia", WorkspaceID: "ws-a"}, wsauthz.PermOrderUpdate, nil)
	require.True(t, d.Allowed, d.String())

	_, err = wsauthz.Bootstrap(ctx, cfg, b)
	require.NoError(t, err)
	require.Equal(t, 2, b.Audit.(*MemoryAuditStore).Len())

	ws, err := b.Workspaces.GetWorkspace(ctx, "ws-a")
	require.NoError(t, err)
	require.Equal(t, "Trattoria", ws.Name)
}
