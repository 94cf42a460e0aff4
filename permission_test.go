package wsauthz

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDefaultCatalogShape(t *testing.T) {
	c, err := NewDefaultCatalog()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	if c.Len() != 38 {
		t.Fatalf("expected 38 permissions, got %d", c.Len())
	}
	want := map[string]int{"workspace": 6, "venue": 5, "menu": 5, "order": 6, "table": 5, "user": 7, "analytics": 4}
	groups := c.ByResource()
	if len(c.Resources()) != len(want) {
		t.Fatalf("expected %d resources, got %v", len(want), c.Resources())
	}
	for res, n := range want {
		if len(groups[res]) != n {
			t.Fatalf("resource %s: expected %d permissions, got %d", res, n, len(groups[res]))
		}
	}
	p, err := c.Lookup(PermWorkspaceManage)
	if err != nil || p.Scope != ScopeGlobal {
		t.Fatalf("workspace.manage must be GLOBAL, got %v (%v)", p.Scope, err)
	}
	p, _ = c.Lookup("user.profile")
	if p.Scope != ScopeOwn {
		t.Fatalf("user.profile must be OWN, got %v", p.Scope)
	}
}

func TestCatalogRejectsDuplicateKey(t *testing.T) {
	c := NewCatalog()
	if err := c.Register(Permission{Resource: "menu", Action: "read", Scope: ScopeWorkspace}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := c.Register(Permission{Resource: "menu", Action: "read", Scope: ScopeOwn})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %T", err)
	}
	if c.Len() != 1 {
		t.Fatalf("duplicate must not be stored")
	}
}

func TestCatalogSealedRejectsRegister(t *testing.T) {
	c := NewCatalog()
	c.Seal()
	err := c.Register(Permission{Resource: "menu", Action: "read", Scope: ScopeWorkspace})
	if !errors.Is(err, ErrCatalogSealed) {
		t.Fatalf("expected ErrCatalogSealed, got %v", err)
	}
}

func TestCatalogRejectsMalformedPermissions(t *testing.T) {
	c := NewCatalog()
	bad := []Permission{
		{Resource: "", Action: "read", Scope: ScopeWorkspace},
		{Resource: "menu.item", Action: "read", Scope: ScopeWorkspace},
		{Resource: "menu", Action: "read", Scope: Scope(9)},
	}
	for _, p := range bad {
		if err := c.Register(p); !IsConfigurationError(err) {
			t.Fatalf("expected configuration error for %+v, got %v", p, err)
		}
	}
}

func TestCatalogLookupUnknown(t *testing.T) {
	c, _ := NewDefaultCatalog()
	_, err := c.Lookup("order.teleport")
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "permission" {
		t.Fatalf("expected NotFoundError for permission, got %v", err)
	}
}

func TestScopeParsingAndJSON(t *testing.T) {
	if _, err := ParseScope("tenant"); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
	s, err := ParseScope(" workspace ")
	if err != nil || s != ScopeWorkspace {
		t.Fatalf("expected WORKSPACE, got %v (%v)", s, err)
	}
	b, err := json.Marshal(Permission{Resource: "user", Action: "profile", Scope: ScopeOwn})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p Permission
	if err := json.Unmarshal(b, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Scope != ScopeOwn || p.Key() != "user.profile" {
		t.Fatalf("unexpected permission after decode: %+v", p)
	}
	if !ScopeGlobal.Covers(ScopeWorkspace) || ScopeWorkspace.Covers(ScopeGlobal) {
		t.Fatalf("scope ordering broken")
	}
}
