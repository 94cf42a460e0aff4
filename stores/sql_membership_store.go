package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/wsauthz"
)

// SQLMembershipStore keeps memberships in workspace_memberships. Every row
// carries a version; writes only apply when the version still matches.
type SQLMembershipStore struct {
	db *squealx.DB
}

func NewSQLMembershipStore(db *squealx.DB) *SQLMembershipStore {
	return &SQLMembershipStore{db: db}
}

const membershipColumns = `workspace_id, principal_id, role_id, granted_at, granted_by, version`

func (s *SQLMembershipStore) GetMembership(ctx context.Context, principalID, workspaceID string) (*wsauthz.Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM workspace_memberships WHERE workspace_id = :workspace_id AND principal_id = :principal_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"workspace_id": workspaceID, "principal_id": principalID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, r.Err()
	}
	return scanMembership(r)
}

func (s *SQLMembershipStore) PutMembership(ctx context.Context, m *wsauthz.Membership, expectedVersion int64) error {
	params := map[string]any{
		"workspace_id": m.WorkspaceID,
		"principal_id": m.PrincipalID,
		"role_id":      m.RoleID,
		"granted_at":   formatTime(m.GrantedAt),
		"granted_by":   m.GrantedBy,
		"version":      expectedVersion,
	}
	var q string
	if expectedVersion == 0 {
		q = `INSERT INTO workspace_memberships(` + membershipColumns + `) VALUES(:workspace_id, :principal_id, :role_id, :granted_at, :granted_by, 1) ON CONFLICT(workspace_id, principal_id) DO NOTHING`
	} else {
		q = `UPDATE workspace_memberships SET role_id = :role_id, granted_at = :granted_at, granted_by = :granted_by, version = version + 1 WHERE workspace_id = :workspace_id AND principal_id = :principal_id AND version = :version`
	}
	if err := s.execOne(ctx, q, params); err != nil {
		return err
	}
	m.Version = expectedVersion + 1
	return nil
}

func (s *SQLMembershipStore) DeleteMembership(ctx context.Context, principalID, workspaceID string, expectedVersion int64) error {
	q := `DELETE FROM workspace_memberships WHERE workspace_id = :workspace_id AND principal_id = :principal_id AND version = :version`
	return s.execOne(ctx, q, map[string]any{"workspace_id": workspaceID, "principal_id": principalID, "version": expectedVersion})
}

// execOne runs a conditional write and maps "no row touched" to a conflict.
func (s *SQLMembershipStore) execOne(ctx context.Context, q string, params map[string]any) error {
	res, err := s.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("membership %v/%v: %w", params["workspace_id"], params["principal_id"], wsauthz.ErrConcurrencyConflict)
	}
	return nil
}

func (s *SQLMembershipStore) ListMemberships(ctx context.Context) ([]*wsauthz.Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM workspace_memberships ORDER BY workspace_id, principal_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*wsauthz.Membership, 0)
	for r.Next() {
		m, err := scanMembership(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(r rowScanner) (*wsauthz.Membership, error) {
	m := &wsauthz.Membership{}
	var grantedRaw any
	if err := r.Scan(&m.WorkspaceID, &m.PrincipalID, &m.RoleID, &grantedRaw, &m.GrantedBy, &m.Version); err != nil {
		return nil, err
	}
	m.GrantedAt = scanTime(grantedRaw)
	return m, nil
}
