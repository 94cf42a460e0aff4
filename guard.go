package wsauthz

import (
	"fmt"
	"sort"

	"github.com/oarkflow/wsauthz/utils"
)

// ============================================================================
// ROUTE GUARDS
// ============================================================================

// Guard declares the permissions a route requires. OwnerParam names the
// route parameter holding the owning principal for OWN-scoped keys, for
// example "id" in "PUT /users/:id/profile".
type Guard struct {
	Route       string          `json:"route" yaml:"route" validate:"required"`
	Permissions []PermissionKey `json:"permissions" yaml:"permissions" validate:"required,min=1,dive,permkey"`
	OwnerParam  string          `json:"owner_param,omitempty" yaml:"owner_param,omitempty"`
}

// GuardTable maps route patterns to guards. It is built at startup and read
// concurrently afterwards.
type GuardTable struct {
	guards []Guard
}

func NewGuardTable(guards ...Guard) *GuardTable {
	t := &GuardTable{}
	for _, g := range guards {
		t.Add(g)
	}
	return t
}

// Add keeps guards ordered most specific first.
func (t *GuardTable) Add(g Guard) {
	t.guards = append(t.guards, g)
	sort.SliceStable(t.guards, func(i, j int) bool {
		return utils.Specificity(t.guards[i].Route) > utils.Specificity(t.guards[j].Route)
	})
}

func (t *GuardTable) Guards() []Guard { return append([]Guard(nil), t.guards...) }

// Validate fails on any key the catalog does not know, so a typo in a guard
// stops startup instead of denying every request.
func (t *GuardTable) Validate(c *Catalog) error {
	for _, g := range t.guards {
		if len(g.Permissions) == 0 {
			return configErr("guard", g.Route, fmt.Errorf("no permissions declared"))
		}
		for _, k := range g.Permissions {
			if !c.Has(k) {
				return configErr("guard", g.Route, fmt.Errorf("%w: %s", ErrUnknownPermission, k))
			}
		}
	}
	return nil
}

// Match returns the most specific guard for the request and its route params.
func (t *GuardTable) Match(method, path string) (Guard, map[string]string, bool) {
	route := method + " " + path
	for _, g := range t.guards {
		if params, ok := utils.RouteParams(route, g.Route); ok {
			return g, params, true
		}
	}
	return Guard{}, nil, false
}

// Check authorizes a request against its guard. Unguarded routes are denied.
// When owner is nil and the guard names an OwnerParam, ownership is the
// caller matching that parameter.
func (t *GuardTable) Check(e *Engine, wctx WorkspaceContext, method, path string, owner OwnershipPredicate) Decision {
	g, params, ok := t.Match(method, path)
	if !ok {
		return Decision{Reason: ReasonUnknownPermission}
	}
	if owner == nil && g.OwnerParam != "" {
		owner = Owns(wctx, params[g.OwnerParam])
	}
	return e.AuthorizeAll(wctx, g.Permissions, owner)
}
