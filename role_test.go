package wsauthz

import (
	"errors"
	"testing"
)

func TestDefaultRolesReferentialIntegrity(t *testing.T) {
	c, _ := NewDefaultCatalog()
	reg, err := NewDefaultRoleRegistry(c)
	if err != nil {
		t.Fatalf("default roles: %v", err)
	}
	for _, r := range reg.List() {
		for _, k := range r.Permissions().Keys() {
			if !c.Has(k) {
				t.Fatalf("role %s references unknown key %s", r.ID, k)
			}
		}
	}
}

func TestDefaultRoleContents(t *testing.T) {
	c, _ := NewDefaultCatalog()
	reg, _ := NewDefaultRoleRegistry(c)

	super, _ := reg.Expand(RoleSuperadmin)
	if super.Len() != c.Len() {
		t.Fatalf("superadmin should hold all %d permissions, has %d", c.Len(), super.Len())
	}
	admin, _ := reg.Expand(RoleAdmin)
	if admin.Has(PermWorkspaceManage) {
		t.Fatalf("admin must not hold workspace.manage")
	}
	if !admin.Has(PermUserManage) || !admin.Has("analytics.revenue") {
		t.Fatalf("admin should hold every workspace-scoped permission")
	}
	op, _ := reg.Expand(RoleOperator)
	if op.Len() != 6 {
		t.Fatalf("operator should hold the 6 order permissions, has %v", op.Keys())
	}
	for _, k := range op.Keys() {
		if k.Resource() != "order" {
			t.Fatalf("operator holds non-order key %s", k)
		}
	}
	if r, _ := reg.Get(RoleSuperadmin); !r.Global() || r.Rank <= 2 {
		t.Fatalf("superadmin must be GLOBAL and top ranked")
	}
	if list := reg.List(); list[0].ID != RoleSuperadmin || list[2].ID != RoleOperator {
		t.Fatalf("List must order by rank, got %s..%s", list[0].ID, list[2].ID)
	}
}

func TestDefineRoleUnknownPermission(t *testing.T) {
	c, _ := NewDefaultCatalog()
	reg := NewRoleRegistry(c)
	_, err := reg.DefineRole(RoleDefinition{ID: "waiter", Scope: ScopeWorkspace, Rank: 1, Permissions: []PermissionKey{"order.read", "order.teleport"}})
	if !errors.Is(err, ErrUnknownPermission) || !IsConfigurationError(err) {
		t.Fatalf("expected configuration error wrapping ErrUnknownPermission, got %v", err)
	}
	if reg.Has("waiter") {
		t.Fatalf("invalid role must not be stored")
	}
}

func TestDefineRoleScopeViolation(t *testing.T) {
	c, _ := NewDefaultCatalog()
	reg := NewRoleRegistry(c)
	_, err := reg.DefineRole(RoleDefinition{ID: "manager", Scope: ScopeWorkspace, Rank: 2, Permissions: []PermissionKey{PermWorkspaceManage}})
	if !errors.Is(err, ErrScopeViolation) {
		t.Fatalf("expected ErrScopeViolation, got %v", err)
	}
}

func TestDefineRoleDuplicate(t *testing.T) {
	c, _ := NewDefaultCatalog()
	reg := NewRoleRegistry(c)
	def := RoleDefinition{ID: "host", Scope: ScopeWorkspace, Rank: 1, Permissions: []PermissionKey{"table.read"}}
	if _, err := reg.DefineRole(def); err != nil {
		t.Fatalf("define: %v", err)
	}
	if _, err := reg.DefineRole(def); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestExpandUnknownRole(t *testing.T) {
	c, _ := NewDefaultCatalog()
	reg, _ := NewDefaultRoleRegistry(c)
	if _, err := reg.Expand("owner"); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}
