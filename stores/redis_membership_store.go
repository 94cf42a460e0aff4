package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/wsauthz"
)

// RedisMembershipStore keeps one hash per workspace (key:
// wsauthz:members:{workspaceID}) mapping principal ID to the JSON membership.
// Writes run under WATCH so a concurrent writer aborts the transaction.
type RedisMembershipStore struct {
	client *redis.Client
	prefix string
}

func NewRedisMembershipStore(client *redis.Client) *RedisMembershipStore {
	return &RedisMembershipStore{client: client, prefix: "wsauthz:members:"}
}

func (r *RedisMembershipStore) key(workspaceID string) string {
	return r.prefix + workspaceID
}

func (r *RedisMembershipStore) GetMembership(ctx context.Context, principalID, workspaceID string) (*wsauthz.Membership, error) {
	return readMembership(ctx, r.client, r.key(workspaceID), principalID)
}

// hashReader is satisfied by both *redis.Client and *redis.Tx.
type hashReader interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readMembership(ctx context.Context, c hashReader, key, principalID string) (*wsauthz.Membership, error) {
	raw, err := c.HGet(ctx, key, principalID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m := &wsauthz.Membership{}
	if err := json.Unmarshal([]byte(raw), m); err != nil {
		return nil, fmt.Errorf("decode membership %s/%s: %w", key, principalID, err)
	}
	return m, nil
}

// checked runs apply inside WATCH key after verifying the stored version.
func (r *RedisMembershipStore) checked(ctx context.Context, workspaceID, principalID string, expectedVersion int64, apply func(p redis.Pipeliner)) error {
	key := r.key(workspaceID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readMembership(ctx, tx, key, principalID)
		if err != nil {
			return err
		}
		var version int64
		if cur != nil {
			version = cur.Version
		}
		if version != expectedVersion {
			return wsauthz.ErrConcurrencyConflict
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			apply(p)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) || errors.Is(err, wsauthz.ErrConcurrencyConflict) {
		return fmt.Errorf("membership %s/%s: %w", workspaceID, principalID, wsauthz.ErrConcurrencyConflict)
	}
	return err
}

func (r *RedisMembershipStore) PutMembership(ctx context.Context, m *wsauthz.Membership, expectedVersion int64) error {
	next := *m
	next.Version = expectedVersion + 1
	payload, err := json.Marshal(next)
	if err != nil {
		return err
	}
	err = r.checked(ctx, m.WorkspaceID, m.PrincipalID, expectedVersion, func(p redis.Pipeliner) {
		p.HSet(ctx, r.key(m.WorkspaceID), m.PrincipalID, payload)
	})
	if err != nil {
		return err
	}
	m.Version = next.Version
	return nil
}

func (r *RedisMembershipStore) DeleteMembership(ctx context.Context, principalID, workspaceID string, expectedVersion int64) error {
	return r.checked(ctx, workspaceID, principalID, expectedVersion, func(p redis.Pipeliner) {
		p.HDel(ctx, r.key(workspaceID), principalID)
	})
}

func (r *RedisMembershipStore) ListMemberships(ctx context.Context) ([]*wsauthz.Membership, error) {
	out := make([]*wsauthz.Membership, 0)
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		rows, err := r.client.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, err
		}
		for principal, raw := range rows {
			m := &wsauthz.Membership{}
			if err := json.Unmarshal([]byte(raw), m); err != nil {
				return nil, fmt.Errorf("decode membership %s/%s: %w", iter.Val(), principal, err)
			}
			out = append(out, m)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkspaceID != out[j].WorkspaceID {
			return out[i].WorkspaceID < out[j].WorkspaceID
		}
		return out[i].PrincipalID < out[j].PrincipalID
	})
	return out, nil
}
