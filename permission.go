package wsauthz

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// PERMISSION CATALOG
// ============================================================================

// Scope is the breadth a permission applies to.
type Scope uint8

const (
	ScopeOwn Scope = iota + 1
	ScopeWorkspace
	ScopeGlobal
)

var scopeNames = map[Scope]string{
	ScopeOwn:       "OWN",
	ScopeWorkspace: "WORKSPACE",
	ScopeGlobal:    "GLOBAL",
}

func (s Scope) String() string {
	if n, ok := scopeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("Scope(%d)", uint8(s))
}

// Covers reports whether a role of scope s may carry a permission of scope other.
func (s Scope) Covers(other Scope) bool { return s >= other }

func ParseScope(v string) (Scope, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "OWN":
		return ScopeOwn, nil
	case "WORKSPACE":
		return ScopeWorkspace, nil
	case "GLOBAL":
		return ScopeGlobal, nil
	}
	return 0, fmt.Errorf("invalid scope %q", v)
}

func (s Scope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Scope) MarshalYAML() (any, error) { return s.String(), nil }

func (s *Scope) UnmarshalYAML(n *yaml.Node) error { return s.UnmarshalText([]byte(n.Value)) }

// PermissionKey is the stable "resource.action" identifier used by route guards.
type PermissionKey string

func (k PermissionKey) Resource() string {
	r, _, _ := strings.Cut(string(k), ".")
	return r
}

// Permission is an immutable (resource, action, scope) triple.
type Permission struct {
	Resource    string `json:"resource" yaml:"resource" validate:"required"`
	Action      string `json:"action" yaml:"action" validate:"required"`
	Scope       Scope  `json:"scope" yaml:"scope" validate:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

func (p Permission) Key() PermissionKey { return PermissionKey(p.Resource + "." + p.Action) }

// Well-known keys referenced by the engine and by route guards.
const (
	PermWorkspaceManage PermissionKey = "workspace.manage"
	PermUserManage      PermissionKey = "user.manage"
	PermOrderUpdate     PermissionKey = "order.update"
)

// DefaultPermissions returns the fixed catalog shipped with the platform.
func DefaultPermissions() []Permission {
	return []Permission{
		{"workspace", "read", ScopeWorkspace, "View workspace details"},
		{"workspace", "update", ScopeWorkspace, "Edit workspace settings"},
		{"workspace", "transfer", ScopeGlobal, "Transfer workspace ownership"},
		{"workspace", "create", ScopeGlobal, "Create workspaces"},
		{"workspace", "delete", ScopeGlobal, "Delete workspaces"},
		{"workspace", "manage", ScopeGlobal, "Activate and deactivate workspaces"},

		{"venue", "create", ScopeWorkspace, "Create venues"},
		{"venue", "read", ScopeWorkspace, "View venues"},
		{"venue", "update", ScopeWorkspace, "Edit venues"},
		{"venue", "delete", ScopeWorkspace, "Delete venues"},
		{"venue", "manage", ScopeWorkspace, "Open, close and configure venues"},

		{"menu", "create", ScopeWorkspace, "Create menu items and categories"},
		{"menu", "read", ScopeWorkspace, "View menus"},
		{"menu", "update", ScopeWorkspace, "Edit menu items"},
		{"menu", "delete", ScopeWorkspace, "Delete menu items"},
		{"menu", "publish", ScopeWorkspace, "Publish menus to customers"},

		{"order", "create", ScopeWorkspace, "Create orders"},
		{"order", "read", ScopeWorkspace, "View orders"},
		{"order", "update", ScopeWorkspace, "Transition order status"},
		{"order", "cancel", ScopeWorkspace, "Cancel orders"},
		{"order", "refund", ScopeWorkspace, "Refund orders"},
		{"order", "manage", ScopeWorkspace, "Manage order settings"},

		{"table", "create", ScopeWorkspace, "Create tables and areas"},
		{"table", "read", ScopeWorkspace, "View tables"},
		{"table", "update", ScopeWorkspace, "Edit tables and table status"},
		{"table", "delete", ScopeWorkspace, "Delete tables"},
		{"table", "qrcode", ScopeWorkspace, "Generate table QR codes"},

		{"user", "create", ScopeWorkspace, "Create users"},
		{"user", "read", ScopeWorkspace, "View users"},
		{"user", "update", ScopeWorkspace, "Edit users"},
		{"user", "delete", ScopeWorkspace, "Delete users"},
		{"user", "manage", ScopeWorkspace, "Assign roles to users"},
		{"user", "profile", ScopeOwn, "Edit own profile"},
		{"user", "password", ScopeOwn, "Change own password"},

		{"analytics", "read", ScopeWorkspace, "View analytics"},
		{"analytics", "dashboard", ScopeWorkspace, "View the dashboard"},
		{"analytics", "export", ScopeWorkspace, "Export reports"},
		{"analytics", "revenue", ScopeWorkspace, "View revenue figures"},
	}
}

// Catalog is the closed set of permissions. It is populated at startup and
// sealed; after Seal it is read without locking.
type Catalog struct {
	mu     sync.Mutex
	sealed bool
	byKey  map[PermissionKey]Permission
	order  []PermissionKey
}

func NewCatalog() *Catalog {
	return &Catalog{byKey: make(map[PermissionKey]Permission)}
}

// NewDefaultCatalog registers DefaultPermissions and seals the catalog.
func NewDefaultCatalog() (*Catalog, error) {
	return NewSealedCatalog(DefaultPermissions())
}

func NewSealedCatalog(perms []Permission) (*Catalog, error) {
	c := NewCatalog()
	for _, p := range perms {
		if err := c.Register(p); err != nil {
			return nil, err
		}
	}
	c.Seal()
	return c, nil
}

func (c *Catalog) Register(p Permission) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := p.Key()
	if c.sealed {
		return configErr("permission", string(key), ErrCatalogSealed)
	}
	if p.Resource == "" || p.Action == "" || strings.Contains(p.Resource, ".") {
		return configErr("permission", string(key), fmt.Errorf("malformed key"))
	}
	if _, ok := scopeNames[p.Scope]; !ok {
		return configErr("permission", string(key), fmt.Errorf("invalid scope %d", p.Scope))
	}
	if _, exists := c.byKey[key]; exists {
		return configErr("permission", string(key), ErrDuplicateKey)
	}
	c.byKey[key] = p
	c.order = append(c.order, key)
	return nil
}

func (c *Catalog) Seal() {
	c.mu.Lock()
	c.sealed = true
	c.mu.Unlock()
}

func (c *Catalog) Sealed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sealed
}

func (c *Catalog) Lookup(key PermissionKey) (Permission, error) {
	p, ok := c.byKey[key]
	if !ok {
		return Permission{}, notFound("permission", string(key), ErrUnknownPermission)
	}
	return p, nil
}

func (c *Catalog) Has(key PermissionKey) bool {
	_, ok := c.byKey[key]
	return ok
}

func (c *Catalog) Len() int { return len(c.order) }

// List returns permissions in registration order.
func (c *Catalog) List() []Permission {
	out := make([]Permission, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}

func (c *Catalog) Keys() []PermissionKey {
	out := make([]PermissionKey, len(c.order))
	copy(out, c.order)
	return out
}

func (c *Catalog) Resources() []string {
	res := lo.Uniq(lo.Map(c.order, func(k PermissionKey, _ int) string { return k.Resource() }))
	sort.Strings(res)
	return res
}

// ByResource groups the catalog by resource, the shape of the permission matrix.
func (c *Catalog) ByResource() map[string][]Permission {
	return lo.GroupBy(c.List(), func(p Permission) string { return p.Resource })
}

// MarshalJSON exports the catalog as a list, for the CLI and admin tooling.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}
