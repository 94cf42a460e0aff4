package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oarkflow/wsauthz"
)

type membershipKey struct {
	workspace string
	principal string
}

// MemoryMembershipStore keeps versioned memberships in a map. Useful for tests
// and single-process deployments.
type MemoryMembershipStore struct {
	mu   sync.RWMutex
	rows map[membershipKey]wsauthz.Membership
}

func NewMemoryMembershipStore() *MemoryMembershipStore {
	return &MemoryMembershipStore{rows: make(map[membershipKey]wsauthz.Membership)}
}

func (s *MemoryMembershipStore) GetMembership(ctx context.Context, principalID, workspaceID string) (*wsauthz.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[membershipKey{workspaceID, principalID}]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *MemoryMembershipStore) PutMembership(ctx context.Context, m *wsauthz.Membership, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{m.WorkspaceID, m.PrincipalID}
	if cur := s.rows[k].Version; cur != expectedVersion {
		return fmt.Errorf("membership %s/%s at version %d, expected %d: %w",
			m.WorkspaceID, m.PrincipalID, cur, expectedVersion, wsauthz.ErrConcurrencyConflict)
	}
	m.Version = expectedVersion + 1
	s.rows[k] = *m
	return nil
}

func (s *MemoryMembershipStore) DeleteMembership(ctx context.Context, principalID, workspaceID string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{workspaceID, principalID}
	cur, ok := s.rows[k]
	if !ok || cur.Version != expectedVersion {
		return fmt.Errorf("membership %s/%s: %w", workspaceID, principalID, wsauthz.ErrConcurrencyConflict)
	}
	delete(s.rows, k)
	return nil
}

func (s *MemoryMembershipStore) ListMemberships(ctx context.Context) ([]*wsauthz.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsauthz.Membership, 0, len(s.rows))
	for _, m := range s.rows {
		dup := m
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkspaceID != out[j].WorkspaceID {
			return out[i].WorkspaceID < out[j].WorkspaceID
		}
		return out[i].PrincipalID < out[j].PrincipalID
	})
	return out, nil
}

// MemoryWorkspaceStore implements in-memory workspace persistence
type MemoryWorkspaceStore struct {
	mu         sync.RWMutex
	workspaces map[string]*wsauthz.Workspace
}

func NewMemoryWorkspaceStore() *MemoryWorkspaceStore {
	return &MemoryWorkspaceStore{workspaces: make(map[string]*wsauthz.Workspace)}
}

func (s *MemoryWorkspaceStore) SaveWorkspace(ctx context.Context, ws *wsauthz.Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *ws
	s.workspaces[ws.ID] = &dup
	return nil
}

func (s *MemoryWorkspaceStore) GetWorkspace(ctx context.Context, id string) (*wsauthz.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("workspace %s: %w", id, wsauthz.ErrWorkspaceNotFound)
	}
	dup := *ws
	return &dup, nil
}

func (s *MemoryWorkspaceStore) ListWorkspaces(ctx context.Context) ([]*wsauthz.Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*wsauthz.Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		dup := *ws
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryAuditStore implements in-memory role change logging
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*wsauthz.RoleChange
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*wsauthz.RoleChange, 0)}
}

func (s *MemoryAuditStore) RecordRoleChange(ctx context.Context, c *wsauthz.RoleChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *c
	s.entries = append(s.entries, &dup)
	return nil
}

func (s *MemoryAuditStore) ListRoleChanges(ctx context.Context, filter wsauthz.AuditFilter) ([]*wsauthz.RoleChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*wsauthz.RoleChange, 0)
	for _, c := range s.entries {
		if !filter.Matches(c) {
			continue
		}
		dup := *c
		result = append(result, &dup)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
