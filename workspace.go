package wsauthz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// WORKSPACES
// ============================================================================

// Workspace is a tenant boundary, typically one restaurant business.
type Workspace struct {
	ID        string    `json:"id" yaml:"id" validate:"required"`
	Name      string    `json:"name" yaml:"name"`
	Active    bool      `json:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at,omitempty"`
}

type WorkspaceStore interface {
	// SaveWorkspace inserts or updates by ID.
	SaveWorkspace(ctx context.Context, ws *Workspace) error
	// GetWorkspace wraps ErrWorkspaceNotFound when absent.
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*Workspace, error)
}

// WorkspaceRegistry serves workspace lookups from an immutable snapshot.
// Writes go through to the store first and then publish a new snapshot.
type WorkspaceRegistry struct {
	store WorkspaceStore
	mu    sync.Mutex
	snap  atomic.Pointer[map[string]Workspace]
	now   func() time.Time
}

// NewWorkspaceRegistry creates an empty registry; store may be nil.
func NewWorkspaceRegistry(store WorkspaceStore) *WorkspaceRegistry {
	r := &WorkspaceRegistry{store: store, now: time.Now}
	empty := map[string]Workspace{}
	r.snap.Store(&empty)
	return r
}

// Load replaces the snapshot with the store contents.
func (r *WorkspaceRegistry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	list, err := r.store.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("load workspaces: %w", err)
	}
	next := make(map[string]Workspace, len(list))
	for _, ws := range list {
		next[ws.ID] = *ws
	}
	r.mu.Lock()
	r.snap.Store(&next)
	r.mu.Unlock()
	return nil
}

func (r *WorkspaceRegistry) Get(id string) (Workspace, bool) {
	ws, ok := (*r.snap.Load())[id]
	return ws, ok
}

// Lookup is Get with a NotFoundError.
func (r *WorkspaceRegistry) Lookup(id string) (Workspace, error) {
	ws, ok := r.Get(id)
	if !ok {
		return Workspace{}, notFound("workspace", id, ErrWorkspaceNotFound)
	}
	return ws, nil
}

// List returns workspaces sorted by ID.
func (r *WorkspaceRegistry) List() []Workspace {
	cur := *r.snap.Load()
	out := make([]Workspace, 0, len(cur))
	for _, ws := range cur {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create registers a new workspace. It fails if the ID is taken.
func (r *WorkspaceRegistry) Create(ctx context.Context, ws Workspace) (Workspace, error) {
	ws.ID = strings.TrimSpace(ws.ID)
	if ws.ID == "" {
		return Workspace{}, fmt.Errorf("workspace id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := (*r.snap.Load())[ws.ID]; exists {
		return Workspace{}, fmt.Errorf("workspace %q: %w", ws.ID, ErrDuplicateKey)
	}
	now := r.now()
	if ws.CreatedAt.IsZero() {
		ws.CreatedAt = now
	}
	ws.UpdatedAt = now
	return ws, r.publish(ctx, ws)
}

// SetActive flips the active flag. Callers go through Engine.SetWorkspaceActive,
// which checks workspace.manage first.
func (r *WorkspaceRegistry) SetActive(ctx context.Context, id string, active bool) (Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := (*r.snap.Load())[id]
	if !ok {
		return Workspace{}, notFound("workspace", id, ErrWorkspaceNotFound)
	}
	ws.Active = active
	ws.UpdatedAt = r.now()
	return ws, r.publish(ctx, ws)
}

// publish must be called with mu held.
func (r *WorkspaceRegistry) publish(ctx context.Context, ws Workspace) error {
	if r.store != nil {
		cp := ws
		if err := r.store.SaveWorkspace(ctx, &cp); err != nil {
			return fmt.Errorf("save workspace %s: %w", ws.ID, err)
		}
	}
	cur := *r.snap.Load()
	next := make(map[string]Workspace, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[ws.ID] = ws
	r.snap.Store(&next)
	return nil
}
