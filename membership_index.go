package wsauthz

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const indexShards = 64

type memberKey struct {
	principal string
	workspace string
}

// shardView is an immutable view of one shard. Writers build a fresh view and
// publish it; readers load the pointer and never lock.
type shardView struct {
	byKey map[memberKey]Membership
	// principal -> workspace -> role id, for roles with GLOBAL scope only
	global map[string]map[string]string
}

type indexShard struct {
	mu   sync.Mutex
	view atomic.Pointer[shardView]
}

// membershipIndex is the in-memory read model of all memberships, sharded by
// principal so that a principal's rows and global roles live in one view.
type membershipIndex struct {
	shards [indexShards]indexShard
}

func newMembershipIndex() *membershipIndex {
	idx := &membershipIndex{}
	for i := range idx.shards {
		idx.shards[i].view.Store(&shardView{
			byKey:  map[memberKey]Membership{},
			global: map[string]map[string]string{},
		})
	}
	return idx
}

func (idx *membershipIndex) shard(principal string) *indexShard {
	return &idx.shards[xxhash.Sum64String(principal)%indexShards]
}

func (idx *membershipIndex) get(principal, workspace string) (Membership, bool) {
	v := idx.shard(principal).view.Load()
	m, ok := v.byKey[memberKey{principal, workspace}]
	return m, ok
}

// globalRoles returns the GLOBAL-scoped role ids a principal holds anywhere.
func (idx *membershipIndex) globalRoles(principal string) []string {
	v := idx.shard(principal).view.Load()
	held := v.global[principal]
	if len(held) == 0 {
		return nil
	}
	out := make([]string, 0, len(held))
	for _, roleID := range held {
		out = append(out, roleID)
	}
	sort.Strings(out)
	return out
}

func (idx *membershipIndex) hasGlobal(principal string) bool {
	return len(idx.shard(principal).view.Load().global[principal]) > 0
}

// update copies the shard view, applies fn and publishes the result.
func (idx *membershipIndex) update(principal string, fn func(v *shardView)) {
	sh := idx.shard(principal)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	old := sh.view.Load()
	next := &shardView{
		byKey:  make(map[memberKey]Membership, len(old.byKey)+1),
		global: make(map[string]map[string]string, len(old.global)),
	}
	for k, m := range old.byKey {
		next.byKey[k] = m
	}
	for p, held := range old.global {
		next.global[p] = held
	}
	fn(next)
	sh.view.Store(next)
}

func (idx *membershipIndex) put(m Membership, global bool) {
	idx.update(m.PrincipalID, func(v *shardView) {
		v.byKey[memberKey{m.PrincipalID, m.WorkspaceID}] = m
		setGlobal(v, m.PrincipalID, m.WorkspaceID, m.RoleID, global)
	})
}

func (idx *membershipIndex) remove(principal, workspace string) {
	idx.update(principal, func(v *shardView) {
		delete(v.byKey, memberKey{principal, workspace})
		setGlobal(v, principal, workspace, "", false)
	})
}

// setGlobal replaces the inner map rather than mutating it; the old map is
// still shared with the previous view.
func setGlobal(v *shardView, principal, workspace, roleID string, global bool) {
	old := v.global[principal]
	_, had := old[workspace]
	if !global && !had {
		return
	}
	held := make(map[string]string, len(old)+1)
	for ws, r := range old {
		held[ws] = r
	}
	if global {
		held[workspace] = roleID
	} else {
		delete(held, workspace)
	}
	if len(held) == 0 {
		delete(v.global, principal)
		return
	}
	v.global[principal] = held
}

// reset replaces the whole index, used by Load.
func (idx *membershipIndex) reset(rows []Membership, isGlobal func(roleID string) bool) {
	views := make([]*shardView, indexShards)
	for i := range views {
		views[i] = &shardView{byKey: map[memberKey]Membership{}, global: map[string]map[string]string{}}
	}
	for _, m := range rows {
		v := views[xxhash.Sum64String(m.PrincipalID)%indexShards]
		v.byKey[memberKey{m.PrincipalID, m.WorkspaceID}] = m
		setGlobal(v, m.PrincipalID, m.WorkspaceID, m.RoleID, isGlobal(m.RoleID))
	}
	for i := range idx.shards {
		sh := &idx.shards[i]
		sh.mu.Lock()
		sh.view.Store(views[i])
		sh.mu.Unlock()
	}
}

// scan visits every membership in every shard.
func (idx *membershipIndex) scan(fn func(m Membership)) {
	for i := range idx.shards {
		for _, m := range idx.shards[i].view.Load().byKey {
			fn(m)
		}
	}
}

func (idx *membershipIndex) ofPrincipal(principal string) []Membership {
	v := idx.shard(principal).view.Load()
	var out []Membership
	for k, m := range v.byKey {
		if k.principal == principal {
			out = append(out, m)
		}
	}
	return out
}

// lockTable serializes writers per (principal, workspace) over a fixed set of
// stripes.
type lockTable struct {
	stripes [256]sync.Mutex
}

func (t *lockTable) lock(principal, workspace string) func() {
	d := xxhash.New()
	_, _ = d.WriteString(principal)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(workspace)
	mu := &t.stripes[d.Sum64()%uint64(len(t.stripes))]
	mu.Lock()
	return mu.Unlock
}
