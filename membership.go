package wsauthz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/wsauthz/logger"
)

// ============================================================================
// MEMBERSHIP STORE
// ============================================================================

// Membership binds a principal to exactly one role inside one workspace.
type Membership struct {
	PrincipalID string    `json:"principal_id" yaml:"principal_id" validate:"required"`
	WorkspaceID string    `json:"workspace_id" yaml:"workspace_id" validate:"required"`
	RoleID      string    `json:"role_id" yaml:"role_id" validate:"required"`
	GrantedAt   time.Time `json:"granted_at" yaml:"granted_at,omitempty"`
	GrantedBy   string    `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	// Version is bumped by the store on every write; 0 means not persisted.
	Version int64 `json:"version" yaml:"-"`
}

// MembershipStore persists memberships. Writes are conditional on the version
// the caller last read so concurrent writers in other processes are detected;
// a stale version yields ErrConcurrencyConflict.
type MembershipStore interface {
	// GetMembership returns nil, nil when no row exists.
	GetMembership(ctx context.Context, principalID, workspaceID string) (*Membership, error)
	// PutMembership inserts (expectedVersion 0) or replaces the row and sets
	// m.Version to the stored version.
	PutMembership(ctx context.Context, m *Membership, expectedVersion int64) error
	DeleteMembership(ctx context.Context, principalID, workspaceID string, expectedVersion int64) error
	ListMemberships(ctx context.Context) ([]*Membership, error)
}

// MembershipService owns the membership read model and serializes changes
// per (principal, workspace). Reads never lock.
type MembershipService struct {
	roles      *RoleRegistry
	workspaces *WorkspaceRegistry
	store      MembershipStore
	audit      AuditStore
	logger     logger.Logger
	index      *membershipIndex
	locks      lockTable
	retries    int
	now        func() time.Time
}

type MembershipOption func(*MembershipService)

// WithMembershipStore sets the persistence backend. Without one the service
// keeps memberships in memory only.
func WithMembershipStore(s MembershipStore) MembershipOption {
	return func(m *MembershipService) { m.store = s }
}

func WithAuditStore(s AuditStore) MembershipOption {
	return func(m *MembershipService) { m.audit = s }
}

func WithMembershipLogger(l logger.Logger) MembershipOption {
	return func(m *MembershipService) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithGrantRetries bounds retries on ErrConcurrencyConflict.
func WithGrantRetries(n int) MembershipOption {
	return func(m *MembershipService) {
		if n > 0 {
			m.retries = n
		}
	}
}

func WithClock(now func() time.Time) MembershipOption {
	return func(m *MembershipService) { m.now = now }
}

func NewMembershipService(roles *RoleRegistry, workspaces *WorkspaceRegistry, opts ...MembershipOption) *MembershipService {
	s := &MembershipService{
		roles:      roles,
		workspaces: workspaces,
		logger:     logger.NewNullLogger(),
		index:      newMembershipIndex(),
		retries:    3,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory index with the contents of the store. Rows that
// reference a role that no longer exists are skipped and logged.
func (s *MembershipService) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	rows, err := s.store.ListMemberships(ctx)
	if err != nil {
		return fmt.Errorf("load memberships: %w", err)
	}
	valid := make([]Membership, 0, len(rows))
	for _, m := range rows {
		if !s.roles.Has(m.RoleID) {
			s.logger.Error("skipping membership with unknown role",
				"principal", m.PrincipalID, "workspace", m.WorkspaceID, "role", m.RoleID)
			continue
		}
		valid = append(valid, *m)
	}
	s.index.reset(valid, s.isGlobal)
	s.logger.Info("memberships loaded", "count", len(valid))
	return nil
}

func (s *MembershipService) isGlobal(roleID string) bool {
	r, ok := s.roles.Get(roleID)
	return ok && r.Global()
}

// Grant assigns role to principal in workspace, replacing any existing role.
func (s *MembershipService) Grant(ctx context.Context, actor, principal, workspace, roleID string) error {
	role, ok := s.roles.Get(roleID)
	if !ok {
		return notFound("role", roleID, ErrUnknownRole)
	}
	if s.workspaces != nil {
		if _, ok := s.workspaces.Get(workspace); !ok {
			return notFound("workspace", workspace, ErrWorkspaceNotFound)
		}
	}
	if principal == "" {
		return fmt.Errorf("grant: principal is required")
	}
	unlock := s.locks.lock(principal, workspace)
	defer unlock()

	m := Membership{
		PrincipalID: principal,
		WorkspaceID: workspace,
		RoleID:      roleID,
		GrantedAt:   s.now(),
		GrantedBy:   actor,
	}
	previous, _, err := s.persist(ctx, principal, workspace, func(cur *Membership) (bool, error) {
		var expected int64
		if cur != nil {
			expected = cur.Version
		}
		return true, s.store.PutMembership(ctx, &m, expected)
	})
	if err != nil {
		s.logger.Error("grant failed", "actor", actor, "principal", principal, "workspace", workspace, "role", roleID, "error", err)
		return err
	}
	s.index.put(m, role.Global())
	return s.record(ctx, actor, principal, workspace, previous, roleID)
}

// Revoke removes the membership. Revoking a missing membership is a no-op and
// is not audited.
//
// Grant and Revoke return the audit error when the role change could not be
// recorded. The change itself is already applied at that point.
func (s *MembershipService) Revoke(ctx context.Context, actor, principal, workspace string) error {
	unlock := s.locks.lock(principal, workspace)
	defer unlock()

	previous, existed, err := s.persist(ctx, principal, workspace, func(cur *Membership) (bool, error) {
		if cur == nil {
			return false, nil
		}
		return true, s.store.DeleteMembership(ctx, principal, workspace, cur.Version)
	})
	if err != nil {
		s.logger.Error("revoke failed", "actor", actor, "principal", principal, "workspace", workspace, "error", err)
		return err
	}
	s.index.remove(principal, workspace)
	if !existed {
		return nil
	}
	return s.record(ctx, actor, principal, workspace, previous, "")
}

// persist reads the current row, hands it to write and retries on version
// conflicts. It returns the role held before the write and whether a row
// existed. Without a store the index is authoritative and write is skipped.
func (s *MembershipService) persist(ctx context.Context, principal, workspace string, write func(cur *Membership) (bool, error)) (string, bool, error) {
	if s.store == nil {
		cur, ok := s.index.get(principal, workspace)
		return cur.RoleID, ok, nil
	}
	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}
		cur, err := s.store.GetMembership(ctx, principal, workspace)
		if err != nil {
			return "", false, fmt.Errorf("read membership: %w", err)
		}
		previous := ""
		if cur != nil {
			previous = cur.RoleID
		}
		wrote, err := write(cur)
		if err == nil {
			return previous, wrote, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return "", false, err
		}
		lastErr = err
		s.logger.Debug("membership write conflict, retrying",
			"principal", principal, "workspace", workspace, "attempt", attempt+1)
	}
	return "", false, lastErr
}

func (s *MembershipService) record(ctx context.Context, actor, principal, workspace, previous, next string) error {
	change := &RoleChange{
		ID:           uuid.NewString(),
		Actor:        actor,
		Target:       principal,
		WorkspaceID:  workspace,
		PreviousRole: previous,
		NewRole:      next,
		Timestamp:    s.now(),
	}
	s.logger.Info("role changed",
		"actor", actor, "target", principal, "workspace", workspace,
		"previous_role", previous, "new_role", next)
	if s.audit == nil {
		return nil
	}
	if err := s.audit.RecordRoleChange(ctx, change); err != nil {
		s.logger.Error("audit write failed", "change_id", change.ID, "error", err)
		return fmt.Errorf("audit role change %s: %w", change.ID, err)
	}
	return nil
}

// RoleFor returns the role a principal holds in workspace. A principal with a
// GLOBAL-scoped role anywhere holds it implicitly in every workspace; when both
// apply the higher-ranked role wins.
func (s *MembershipService) RoleFor(principal, workspace string) (string, bool) {
	m, explicit := s.index.get(principal, workspace)
	global, hasGlobal := s.GlobalRole(principal)
	switch {
	case explicit && hasGlobal:
		if s.rank(global) > s.rank(m.RoleID) {
			return global, true
		}
		return m.RoleID, true
	case explicit:
		return m.RoleID, true
	case hasGlobal:
		return global, true
	}
	return "", false
}

// GlobalRole returns the highest-ranked GLOBAL-scoped role the principal
// holds in any workspace. Holding one makes the principal superadmin-tier.
func (s *MembershipService) GlobalRole(principal string) (string, bool) {
	held := s.index.globalRoles(principal)
	if len(held) == 0 {
		return "", false
	}
	best := held[0]
	for _, r := range held[1:] {
		if s.rank(r) > s.rank(best) {
			best = r
		}
	}
	return best, true
}

// IsSuperadmin reports whether the principal is superadmin-tier.
func (s *MembershipService) IsSuperadmin(principal string) bool {
	return s.index.hasGlobal(principal)
}

// HoldsGlobally reports whether one of the principal's GLOBAL-scoped roles
// grants key.
func (s *MembershipService) HoldsGlobally(principal string, key PermissionKey) bool {
	for _, roleID := range s.index.globalRoles(principal) {
		if set, err := s.roles.Expand(roleID); err == nil && set.Has(key) {
			return true
		}
	}
	return false
}

func (s *MembershipService) rank(roleID string) int {
	if r, ok := s.roles.Get(roleID); ok {
		return r.Rank
	}
	return 0
}

// Membership returns the explicit membership row, ignoring implicit global roles.
func (s *MembershipService) Membership(principal, workspace string) (Membership, bool) {
	return s.index.get(principal, workspace)
}

// Members lists explicit memberships of a workspace sorted by principal.
func (s *MembershipService) Members(workspace string) []Membership {
	var out []Membership
	s.index.scan(func(m Membership) {
		if m.WorkspaceID == workspace {
			out = append(out, m)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out
}

// MembershipsOf lists a principal's explicit memberships sorted by workspace.
func (s *MembershipService) MembershipsOf(principal string) []Membership {
	out := s.index.ofPrincipal(principal)
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out
}

func (s *MembershipService) Roles() *RoleRegistry { return s.roles }
