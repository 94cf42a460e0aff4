package wsauthz

import (
	"context"
	"time"
)

// ============================================================================
// AUDIT TRAIL
// ============================================================================

// RoleChange records one effective grant or revoke. An empty PreviousRole is a
// first grant; an empty NewRole is a revoke.
type RoleChange struct {
	ID           string    `json:"id"`
	Actor        string    `json:"actor"`
	Target       string    `json:"target"`
	WorkspaceID  string    `json:"workspace_id"`
	PreviousRole string    `json:"previous_role,omitempty"`
	NewRole      string    `json:"new_role,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Revoke reports whether the change removed a membership.
func (c *RoleChange) Revoke() bool { return c.NewRole == "" }

type AuditFilter struct {
	Actor       string
	Target      string
	WorkspaceID string
	StartTime   time.Time
	EndTime     time.Time
	Limit       int
}

// Matches applies every non-zero field of the filter.
func (f AuditFilter) Matches(c *RoleChange) bool {
	if f.Actor != "" && c.Actor != f.Actor {
		return false
	}
	if f.Target != "" && c.Target != f.Target {
		return false
	}
	if f.WorkspaceID != "" && c.WorkspaceID != f.WorkspaceID {
		return false
	}
	if !f.StartTime.IsZero() && c.Timestamp.Before(f.StartTime) {
		return false
	}
	if !f.EndTime.IsZero() && c.Timestamp.After(f.EndTime) {
		return false
	}
	return true
}

// AuditStore persists role changes. Entries are append-only.
type AuditStore interface {
	RecordRoleChange(ctx context.Context, change *RoleChange) error
	ListRoleChanges(ctx context.Context, filter AuditFilter) ([]*RoleChange, error)
}
