package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/wsauthz"
)

// SQLWorkspaceStore persists workspaces in SQL (squealx).
type SQLWorkspaceStore struct {
	db *squealx.DB
}

func NewSQLWorkspaceStore(db *squealx.DB) *SQLWorkspaceStore {
	return &SQLWorkspaceStore{db: db}
}

func (s *SQLWorkspaceStore) SaveWorkspace(ctx context.Context, ws *wsauthz.Workspace) error {
	q := `INSERT INTO workspaces(id, name, active, created_at, updated_at) VALUES(:id, :name, :active, :created_at, :updated_at)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, active = excluded.active, updated_at = excluded.updated_at`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         ws.ID,
		"name":       ws.Name,
		"active":     boolToInt(ws.Active),
		"created_at": formatTime(ws.CreatedAt),
		"updated_at": formatTime(ws.UpdatedAt),
	})
	return err
}

func (s *SQLWorkspaceStore) GetWorkspace(ctx context.Context, id string) (*wsauthz.Workspace, error) {
	q := `SELECT id, name, active, created_at, updated_at FROM workspaces WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		if err := r.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("workspace %s: %w", id, wsauthz.ErrWorkspaceNotFound)
	}
	return scanWorkspace(r)
}

func (s *SQLWorkspaceStore) ListWorkspaces(ctx context.Context) ([]*wsauthz.Workspace, error) {
	q := `SELECT id, name, active, created_at, updated_at FROM workspaces ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*wsauthz.Workspace, 0)
	for r.Next() {
		ws, err := scanWorkspace(r)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanWorkspace(r rowScanner) (*wsauthz.Workspace, error) {
	ws := &wsauthz.Workspace{}
	var active int
	var createdRaw, updatedRaw any
	if err := r.Scan(&ws.ID, &ws.Name, &active, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	ws.Active = active != 0
	ws.CreatedAt = scanTime(createdRaw)
	ws.UpdatedAt = scanTime(updatedRaw)
	return ws, nil
}
