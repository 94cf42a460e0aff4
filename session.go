package wsauthz

import (
	"context"
	"sync/atomic"
	"time"
)

// ============================================================================
// WORKSPACE CONTEXT
// ============================================================================

// WorkspaceContext is the (principal, active workspace) pair every check
// runs against. It is a plain value and is passed explicitly.
type WorkspaceContext struct {
	PrincipalID string    `json:"principal_id"`
	WorkspaceID string    `json:"workspace_id"`
	SwitchedAt  time.Time `json:"switched_at"`
}

// Session holds exactly one active WorkspaceContext. Switching replaces it
// atomically; concurrent readers see either the old or the new context.
type Session struct {
	ID        string
	CreatedAt time.Time
	current   atomic.Pointer[WorkspaceContext]
}

func newSession(id string, wctx WorkspaceContext, created time.Time) *Session {
	s := &Session{ID: id, CreatedAt: created}
	s.current.Store(&wctx)
	return s
}

// Context returns the active context.
func (s *Session) Context() WorkspaceContext { return *s.current.Load() }

func (s *Session) PrincipalID() string { return s.current.Load().PrincipalID }

func (s *Session) swap(wctx WorkspaceContext) { s.current.Store(&wctx) }

// Record returns the persistable form of the session.
func (s *Session) Record() SessionRecord {
	c := s.Context()
	return SessionRecord{
		ID:          s.ID,
		PrincipalID: c.PrincipalID,
		WorkspaceID: c.WorkspaceID,
		SwitchedAt:  c.SwitchedAt,
		CreatedAt:   s.CreatedAt,
	}
}

// SessionRecord is what a SessionStore keeps.
type SessionRecord struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principal_id"`
	WorkspaceID string    `json:"workspace_id"`
	SwitchedAt  time.Time `json:"switched_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session rebuilds a live session from a stored record.
func (r SessionRecord) Session() *Session {
	return newSession(r.ID, WorkspaceContext{
		PrincipalID: r.PrincipalID,
		WorkspaceID: r.WorkspaceID,
		SwitchedAt:  r.SwitchedAt,
	}, r.CreatedAt)
}

type SessionStore interface {
	SaveSession(ctx context.Context, rec SessionRecord) error
	// GetSession wraps ErrSessionNotFound for unknown or expired sessions.
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
}
