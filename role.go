package wsauthz

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ============================================================================
// ROLE REGISTRY
// ============================================================================

// Built-in role identifiers.
const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleOperator   = "operator"
)

// PermissionSet is an immutable set of permission keys.
type PermissionSet struct {
	keys map[PermissionKey]struct{}
}

func newPermissionSet(keys []PermissionKey) PermissionSet {
	m := make(map[PermissionKey]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return PermissionSet{keys: m}
}

// Has is allocation-free; it sits on the hot path of every check.
func (s PermissionSet) Has(key PermissionKey) bool {
	_, ok := s.keys[key]
	return ok
}

func (s PermissionSet) Len() int { return len(s.keys) }

// Keys returns the set sorted.
func (s PermissionSet) Keys() []PermissionKey {
	out := make([]PermissionKey, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Role is a named, flat bundle of permissions. Roles do not inherit from one
// another; every role stores its full set.
type Role struct {
	ID          string
	DisplayName string
	Scope       Scope
	Rank        int
	permissions PermissionSet
}

func (r *Role) Permissions() PermissionSet { return r.permissions }

// Global reports whether holders of the role are superadmin-tier.
func (r *Role) Global() bool { return r.Scope == ScopeGlobal }

// RoleDefinition is the declarative form of a role, used by configuration.
type RoleDefinition struct {
	ID          string          `json:"id" yaml:"id" validate:"required"`
	DisplayName string          `json:"display_name" yaml:"display_name"`
	Scope       Scope           `json:"scope" yaml:"scope" validate:"required"`
	Rank        int             `json:"rank" yaml:"rank" validate:"gte=0"`
	Permissions []PermissionKey `json:"permissions" yaml:"permissions" validate:"dive,permkey"`
}

// RoleRegistry holds role definitions. Definition happens at startup; once
// sealed the registry is read-only and lock-free for readers.
type RoleRegistry struct {
	catalog *Catalog
	mu      sync.Mutex
	sealed  bool
	roles   map[string]*Role
}

func NewRoleRegistry(catalog *Catalog) *RoleRegistry {
	return &RoleRegistry{catalog: catalog, roles: make(map[string]*Role)}
}

// DefineRole validates every key against the catalog and stores the role.
// Referential integrity is enforced here so that checks never fail on a
// dangling key.
func (r *RoleRegistry) DefineRole(def RoleDefinition) (*Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil, configErr("role", def.ID, fmt.Errorf("registry is sealed"))
	}
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return nil, configErr("role", def.ID, fmt.Errorf("role id is required"))
	}
	if _, exists := r.roles[id]; exists {
		return nil, configErr("role", id, ErrDuplicateKey)
	}
	if _, ok := scopeNames[def.Scope]; !ok {
		return nil, configErr("role", id, fmt.Errorf("invalid scope %d", def.Scope))
	}
	for _, k := range def.Permissions {
		p, err := r.catalog.Lookup(k)
		if err != nil {
			return nil, configErr("role", id, fmt.Errorf("%w: %s", ErrUnknownPermission, k))
		}
		if !def.Scope.Covers(p.Scope) {
			return nil, configErr("role", id, fmt.Errorf("%w: %s is %s", ErrScopeViolation, k, p.Scope))
		}
	}
	name := def.DisplayName
	if name == "" {
		name = id
	}
	role := &Role{
		ID:          id,
		DisplayName: name,
		Scope:       def.Scope,
		Rank:        def.Rank,
		permissions: newPermissionSet(def.Permissions),
	}
	r.roles[id] = role
	return role, nil
}

func (r *RoleRegistry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Expand returns the permission set of a role.
func (r *RoleRegistry) Expand(roleID string) (PermissionSet, error) {
	role, ok := r.roles[roleID]
	if !ok {
		return PermissionSet{}, notFound("role", roleID, ErrUnknownRole)
	}
	return role.permissions, nil
}

func (r *RoleRegistry) Get(roleID string) (*Role, bool) {
	role, ok := r.roles[roleID]
	return role, ok
}

func (r *RoleRegistry) Has(roleID string) bool {
	_, ok := r.roles[roleID]
	return ok
}

func (r *RoleRegistry) Catalog() *Catalog { return r.catalog }

// List returns roles ordered by rank, highest first.
func (r *RoleRegistry) List() []*Role {
	out := make([]*Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DefaultRoles computes the three built-in roles from the catalog:
// superadmin holds everything, admin everything that is not GLOBAL, and
// operator the order resource only.
func DefaultRoles(catalog *Catalog) []RoleDefinition {
	var all, workspace, orders []PermissionKey
	for _, p := range catalog.List() {
		k := p.Key()
		all = append(all, k)
		if p.Scope != ScopeGlobal {
			workspace = append(workspace, k)
		}
		if p.Resource == "order" && p.Scope != ScopeGlobal {
			orders = append(orders, k)
		}
	}
	return []RoleDefinition{
		{ID: RoleSuperadmin, DisplayName: "Super Admin", Scope: ScopeGlobal, Rank: 3, Permissions: all},
		{ID: RoleAdmin, DisplayName: "Admin", Scope: ScopeWorkspace, Rank: 2, Permissions: workspace},
		{ID: RoleOperator, DisplayName: "Operator", Scope: ScopeWorkspace, Rank: 1, Permissions: orders},
	}
}

// NewDefaultRoleRegistry defines the built-in roles and seals the registry.
func NewDefaultRoleRegistry(catalog *Catalog) (*RoleRegistry, error) {
	return NewSealedRoleRegistry(catalog, DefaultRoles(catalog))
}

func NewSealedRoleRegistry(catalog *Catalog, defs []RoleDefinition) (*RoleRegistry, error) {
	reg := NewRoleRegistry(catalog)
	for _, def := range defs {
		if _, err := reg.DefineRole(def); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return reg, nil
}
