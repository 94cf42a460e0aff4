package wsauthz

import (
	"context"
	"sync"
	"testing"
)

// recordingAudit keeps role changes in memory for assertions.
type recordingAudit struct {
	mu      sync.Mutex
	changes []*RoleChange
}

func (a *recordingAudit) RecordRoleChange(ctx context.Context, c *RoleChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	dup := *c
	a.changes = append(a.changes, &dup)
	return nil
}

func (a *recordingAudit) ListRoleChanges(ctx context.Context, f AuditFilter) ([]*RoleChange, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*RoleChange
	for _, c := range a.changes {
		if f.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *recordingAudit) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.changes)
}

type testCore struct {
	engine  *Engine
	members *MembershipService
	audit   *recordingAudit
}

// newTestCore wires the default catalog and roles with three workspaces:
// ws-a and ws-b active, ws-off inactive.
func newTestCore(t *testing.T) *testCore {
	t.Helper()
	return newTestCoreWithRoles(t)
}

// newTestCoreWithRoles is newTestCore with extra roles next to the defaults.
func newTestCoreWithRoles(t *testing.T, extra ...RoleDefinition) *testCore {
	t.Helper()
	ctx := context.Background()
	catalog, err := NewDefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	roles, err := NewSealedRoleRegistry(catalog, append(DefaultRoles(catalog), extra...))
	if err != nil {
		t.Fatalf("roles: %v", err)
	}
	workspaces := NewWorkspaceRegistry(nil)
	for _, ws := range []Workspace{
		{ID: "ws-a", Name: "Trattoria A", Active: true},
		{ID: "ws-b", Name: "Bistro B", Active: true},
		{ID: "ws-off", Name: "Closed Diner", Active: false},
	} {
		if _, err := workspaces.Create(ctx, ws); err != nil {
			t.Fatalf("create workspace %s: %v", ws.ID, err)
		}
	}
	audit := &recordingAudit{}
	members := NewMembershipService(roles, workspaces, WithAuditStore(audit))
	engine, err := NewEngine(roles, members, workspaces)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return &testCore{engine: engine, members: members, audit: audit}
}

func (c *testCore) grant(t *testing.T, principal, workspace, role string) {
	t.Helper()
	if err := c.members.Grant(context.Background(), "root", principal, workspace, role); err != nil {
		t.Fatalf("grant %s %s in %s: %v", principal, role, workspace, err)
	}
}

func wctx(principal, workspace string) WorkspaceContext {
	return WorkspaceContext{PrincipalID: principal, WorkspaceID: workspace}
}
