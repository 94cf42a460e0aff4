package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/wsauthz"
)

// SQLAuditStore appends role changes to the role_changes table.
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) RecordRoleChange(ctx context.Context, c *wsauthz.RoleChange) error {
	q := `INSERT INTO role_changes(id, actor, target, workspace_id, previous_role, new_role, created_at) VALUES(:id, :actor, :target, :workspace_id, :previous_role, :new_role, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            c.ID,
		"actor":         c.Actor,
		"target":        c.Target,
		"workspace_id":  c.WorkspaceID,
		"previous_role": c.PreviousRole,
		"new_role":      c.NewRole,
		"created_at":    formatTime(c.Timestamp),
	})
	return err
}

func (s *SQLAuditStore) ListRoleChanges(ctx context.Context, filter wsauthz.AuditFilter) ([]*wsauthz.RoleChange, error) {
	q := `SELECT id, actor, target, workspace_id, previous_role, new_role, created_at FROM role_changes WHERE 1=1`
	params := map[string]any{}
	if filter.Actor != "" {
		q += " AND actor = :actor"
		params["actor"] = filter.Actor
	}
	if filter.Target != "" {
		q += " AND target = :target"
		params["target"] = filter.Target
	}
	if filter.WorkspaceID != "" {
		q += " AND workspace_id = :workspace_id"
		params["workspace_id"] = filter.WorkspaceID
	}
	if !filter.StartTime.IsZero() {
		q += " AND created_at >= :start"
		params["start"] = formatTime(filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		q += " AND created_at <= :end"
		params["end"] = formatTime(filter.EndTime)
	}
	q += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*wsauthz.RoleChange, 0)
	for r.Next() {
		c := &wsauthz.RoleChange{}
		var createdRaw any
		if err := r.Scan(&c.ID, &c.Actor, &c.Target, &c.WorkspaceID, &c.PreviousRole, &c.NewRole, &createdRaw); err != nil {
			return nil, err
		}
		c.Timestamp = scanTime(createdRaw)
		out = append(out, c)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
