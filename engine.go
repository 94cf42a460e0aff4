package wsauthz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/oarkflow/wsauthz/logger"
)

// ============================================================================
// AUTHORIZATION ENGINE
// ============================================================================

// Reason explains a DENY. The zero value accompanies ALLOW.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonWorkspaceNotFound Reason = "WorkspaceNotFound"
	ReasonWorkspaceInactive Reason = "WorkspaceInactive"
	ReasonNoMembership      Reason = "NoMembership"
	ReasonUnknownPermission Reason = "UnknownPermission"
	ReasonPermissionMissing Reason = "PermissionMissing"
	ReasonNotOwner          Reason = "NotOwner"
	ReasonInsufficientRank  Reason = "InsufficientRank"
	ReasonInternal          Reason = "Internal"
)

// Decision is the outcome of a check. A denial is not an error.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason,omitempty"`
	Permission PermissionKey `json:"permission"`
	RoleID     string        `json:"role_id,omitempty"`
	Trace      []string      `json:"trace,omitempty"`
}

func (d Decision) String() string {
	if d.Allowed {
		return "ALLOW"
	}
	return "DENY(" + string(d.Reason) + ")"
}

// OwnershipPredicate answers "is the caller the owner of the target?" for
// OWN-scoped permissions. It is supplied by the caller per check.
type OwnershipPredicate func() bool

// Owns is a convenience predicate comparing the caller to a resource owner.
func Owns(wctx WorkspaceContext, ownerID string) OwnershipPredicate {
	return func() bool { return ownerID != "" && wctx.PrincipalID == ownerID }
}

// Request is one check in a batch.
type Request struct {
	Context    WorkspaceContext
	Permission PermissionKey
	Owner      OwnershipPredicate
}

// Engine evaluates checks against the catalog, roles, memberships and
// workspaces. Authorize is read-only and lock-free.
type Engine struct {
	catalog    *Catalog
	roles      *RoleRegistry
	members    *MembershipService
	workspaces *WorkspaceRegistry
	sessions   SessionStore
	logger     logger.Logger
	batchLimit int
	now        func() time.Time
}

type EngineOption func(*Engine) error

func NewEngine(roles *RoleRegistry, members *MembershipService, workspaces *WorkspaceRegistry, opts ...EngineOption) (*Engine, error) {
	if roles == nil || members == nil || workspaces == nil {
		return nil, fmt.Errorf("engine: roles, members and workspaces are required")
	}
	e := &Engine{
		catalog:    roles.Catalog(),
		roles:      roles,
		members:    members,
		workspaces: workspaces,
		logger:     logger.NewNullLogger(),
		batchLimit: 16,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) Catalog() *Catalog { return e.catalog }
func (e *Engine) Roles() *RoleRegistry { return e.roles }
func (e *Engine) Members() *MembershipService { return e.members }
func (e *Engine) Workspaces() *WorkspaceRegistry { return e.workspaces }
func (e *Engine) Sessions() SessionStore { return e.sessions }

// Authorize decides whether the principal of wctx may use key in the active
// workspace. It never returns an error; anything unexpected is a DENY.
func (e *Engine) Authorize(wctx WorkspaceContext, key PermissionKey, owner OwnershipPredicate) Decision {
	return e.evaluate(wctx, key, owner, nil)
}

// Explain is Authorize with a step-by-step trace.
func (e *Engine) Explain(wctx WorkspaceContext, key PermissionKey, owner OwnershipPredicate) Decision {
	trace := make([]string, 0, 6)
	d := e.evaluate(wctx, key, owner, &trace)
	d.Trace = trace
	return d
}

func note(trace *[]string, format string, args ...any) {
	if trace != nil {
		*trace = append(*trace, fmt.Sprintf(format, args...))
	}
}

func (e *Engine) evaluate(wctx WorkspaceContext, key PermissionKey, owner OwnershipPredicate, trace *[]string) (d Decision) {
	d.Permission = key
	deny := func(r Reason) Decision {
		d.Reason = r
		note(trace, "DENY: %s", r)
		return d
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("authorization panic", "principal", wctx.PrincipalID, "workspace", wctx.WorkspaceID, "permission", string(key), "panic", rec)
			d = Decision{Permission: key, Reason: ReasonInternal}
		}
	}()

	ws, ok := e.workspaces.Get(wctx.WorkspaceID)
	if !ok {
		return deny(ReasonWorkspaceNotFound)
	}
	note(trace, "workspace %s active=%t, superadmin=%t", ws.ID, ws.Active, e.members.IsSuperadmin(wctx.PrincipalID))
	if !ws.Active && (key != PermWorkspaceManage || !e.members.HoldsGlobally(wctx.PrincipalID, PermWorkspaceManage)) {
		return deny(ReasonWorkspaceInactive)
	}

	roleID, ok := e.members.RoleFor(wctx.PrincipalID, ws.ID)
	if !ok {
		return deny(ReasonNoMembership)
	}
	d.RoleID = roleID
	note(trace, "role %s", roleID)

	perm, err := e.catalog.Lookup(key)
	if err != nil {
		return deny(ReasonUnknownPermission)
	}
	set, err := e.roles.Expand(roleID)
	if err != nil {
		return deny(ReasonInternal)
	}
	if !set.Has(key) {
		return deny(ReasonPermissionMissing)
	}
	if perm.Scope == ScopeOwn {
		if owner == nil || !owner() {
			return deny(ReasonNotOwner)
		}
		note(trace, "ownership confirmed")
	}
	d.Allowed = true
	note(trace, "ALLOW: %s grants %s", roleID, key)
	return d
}

// AuthorizeAll requires every key. It returns the first denial, or ALLOW when
// all pass. An empty key list is denied.
func (e *Engine) AuthorizeAll(wctx WorkspaceContext, keys []PermissionKey, owner OwnershipPredicate) Decision {
	if len(keys) == 0 {
		return Decision{Reason: ReasonUnknownPermission}
	}
	var last Decision
	for _, k := range keys {
		last = e.evaluate(wctx, k, owner, nil)
		if !last.Allowed {
			return last
		}
	}
	return last
}

// AuthorizeBatch evaluates independent requests in parallel. Decisions are
// returned in request order. The only error is context cancellation.
func (e *Engine) AuthorizeBatch(ctx context.Context, reqs []Request) ([]Decision, error) {
	out := make([]Decision, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchLimit)
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r := reqs[i]
			out[i] = e.evaluate(r.Context, r.Permission, r.Owner, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckMany reports, per key, whether it would be allowed without an
// ownership predicate. OWN-scoped keys are therefore always false.
func (e *Engine) CheckMany(wctx WorkspaceContext, keys []PermissionKey) map[PermissionKey]bool {
	out := make(map[PermissionKey]bool, len(keys))
	for _, k := range keys {
		out[k] = e.evaluate(wctx, k, nil, nil).Allowed
	}
	return out
}

// EffectivePermissions lists the keys the principal holds in the active
// workspace, sorted. OWN-scoped keys are included; they still need an
// ownership predicate at check time.
func (e *Engine) EffectivePermissions(wctx WorkspaceContext) []PermissionKey {
	ws, ok := e.workspaces.Get(wctx.WorkspaceID)
	if !ok {
		return nil
	}
	if !ws.Active && !e.members.HoldsGlobally(wctx.PrincipalID, PermWorkspaceManage) {
		return nil
	}
	roleID, ok := e.members.RoleFor(wctx.PrincipalID, ws.ID)
	if !ok {
		return nil
	}
	set, err := e.roles.Expand(roleID)
	if err != nil {
		return nil
	}
	if !ws.Active {
		if set.Has(PermWorkspaceManage) {
			return []PermissionKey{PermWorkspaceManage}
		}
		return nil
	}
	return set.Keys()
}

// ----------------------------------------------------------------------------
// Workspace switching and sessions
// ----------------------------------------------------------------------------

// resolveContext checks that principal may enter workspaceID. Entering an
// inactive workspace takes workspace.manage through a GLOBAL role.
func (e *Engine) resolveContext(principal, workspaceID string) (WorkspaceContext, error) {
	ws, err := e.workspaces.Lookup(workspaceID)
	if err != nil {
		return WorkspaceContext{}, err
	}
	if !ws.Active && !e.members.HoldsGlobally(principal, PermWorkspaceManage) {
		return WorkspaceContext{}, fmt.Errorf("workspace %s: %w", ws.ID, ErrWorkspaceInactive)
	}
	if _, ok := e.members.RoleFor(principal, ws.ID); !ok {
		return WorkspaceContext{}, fmt.Errorf("principal %s in workspace %s: %w", principal, ws.ID, ErrNoMembership)
	}
	return WorkspaceContext{PrincipalID: principal, WorkspaceID: ws.ID, SwitchedAt: e.now()}, nil
}

// SwitchWorkspace moves the session to workspaceID. On failure the session
// keeps its previous context.
func (e *Engine) SwitchWorkspace(ctx context.Context, s *Session, workspaceID string) (WorkspaceContext, error) {
	principal := s.PrincipalID()
	wctx, err := e.resolveContext(principal, workspaceID)
	if err != nil {
		e.logger.Debug("workspace switch rejected", "session", s.ID, "principal", principal, "workspace", workspaceID, "error", err)
		return WorkspaceContext{}, err
	}
	if e.sessions != nil {
		rec := s.Record()
		rec.WorkspaceID, rec.SwitchedAt = wctx.WorkspaceID, wctx.SwitchedAt
		if err := e.sessions.SaveSession(ctx, rec); err != nil {
			e.logger.Error("session save failed", "session", s.ID, "error", err)
			return WorkspaceContext{}, fmt.Errorf("save session: %w", err)
		}
	}
	s.swap(wctx)
	e.logger.Debug("workspace switched", "session", s.ID, "principal", principal, "workspace", wctx.WorkspaceID)
	return wctx, nil
}

// OpenSession starts a session for principal in workspaceID, applying the
// same rules as SwitchWorkspace.
func (e *Engine) OpenSession(ctx context.Context, principal, workspaceID string) (*Session, error) {
	wctx, err := e.resolveContext(principal, workspaceID)
	if err != nil {
		e.logger.Debug("session rejected", "principal", principal, "workspace", workspaceID, "error", err)
		return nil, err
	}
	s := newSession(uuid.NewString(), wctx, wctx.SwitchedAt)
	if e.sessions != nil {
		if err := e.sessions.SaveSession(ctx, s.Record()); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
	}
	return s, nil
}

// ResumeSession loads a stored session.
func (e *Engine) ResumeSession(ctx context.Context, id string) (*Session, error) {
	if e.sessions == nil {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	rec, err := e.sessions.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	return rec.Session(), nil
}

func (e *Engine) CloseSession(ctx context.Context, id string) error {
	if e.sessions == nil {
		return nil
	}
	return e.sessions.DeleteSession(ctx, id)
}

// ----------------------------------------------------------------------------
// Administrative operations
// ----------------------------------------------------------------------------

// SetWorkspaceActive activates or deactivates a workspace. The caller needs
// workspace.manage in their active context.
func (e *Engine) SetWorkspaceActive(ctx context.Context, wctx WorkspaceContext, workspaceID string, active bool) (Workspace, error) {
	d := e.Authorize(wctx, PermWorkspaceManage, nil)
	if !d.Allowed {
		return Workspace{}, &DeniedError{Decision: d}
	}
	ws, err := e.workspaces.SetActive(ctx, workspaceID, active)
	if err != nil {
		return Workspace{}, err
	}
	e.logger.Info("workspace status changed", "actor", wctx.PrincipalID, "workspace", workspaceID, "active", active)
	return ws, nil
}

func (e *Engine) rank(principal, workspace string) int {
	roleID, ok := e.members.RoleFor(principal, workspace)
	if !ok {
		return 0
	}
	if r, ok := e.roles.Get(roleID); ok {
		return r.Rank
	}
	return 0
}

// manageDecision applies the management rule: user.manage plus a rank
// strictly above the target's in the active workspace.
func (e *Engine) manageDecision(wctx WorkspaceContext, target string) Decision {
	d := e.Authorize(wctx, PermUserManage, nil)
	if !d.Allowed {
		return d
	}
	if target == wctx.PrincipalID || e.rank(wctx.PrincipalID, wctx.WorkspaceID) <= e.rank(target, wctx.WorkspaceID) {
		return Decision{Permission: PermUserManage, RoleID: d.RoleID, Reason: ReasonInsufficientRank}
	}
	return d
}

// CanManage reports whether the caller may change target's role in the
// active workspace.
func (e *Engine) CanManage(wctx WorkspaceContext, target string) bool {
	return e.manageDecision(wctx, target).Allowed
}

// GrantAs grants roleID to target in the caller's active workspace. The
// caller must be able to manage target and may only hand out roles ranked
// below their own.
func (e *Engine) GrantAs(ctx context.Context, wctx WorkspaceContext, target, roleID string) error {
	role, ok := e.roles.Get(roleID)
	if !ok {
		return notFound("role", roleID, ErrUnknownRole)
	}
	d := e.manageDecision(wctx, target)
	if d.Allowed && role.Rank >= e.rank(wctx.PrincipalID, wctx.WorkspaceID) {
		d = Decision{Permission: PermUserManage, RoleID: d.RoleID, Reason: ReasonInsufficientRank}
	}
	if !d.Allowed {
		e.logger.Debug("grant rejected", "actor", wctx.PrincipalID, "target", target, "role", roleID, "reason", string(d.Reason))
		return &DeniedError{Decision: d}
	}
	return e.members.Grant(ctx, wctx.PrincipalID, target, wctx.WorkspaceID, roleID)
}

// RevokeAs removes target's membership in the caller's active workspace.
func (e *Engine) RevokeAs(ctx context.Context, wctx WorkspaceContext, target string) error {
	d := e.manageDecision(wctx, target)
	if !d.Allowed {
		e.logger.Debug("revoke rejected", "actor", wctx.PrincipalID, "target", target, "reason", string(d.Reason))
		return &DeniedError{Decision: d}
	}
	return e.members.Revoke(ctx, wctx.PrincipalID, target, wctx.WorkspaceID)
}
