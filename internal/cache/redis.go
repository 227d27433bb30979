// Package cache provides the Redis-backed permission cache. Entries are
// boolean "grant exists" answers with a bounded freshness TTL; the grant
// store stays canonical and every write path invalidates explicitly.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sunnahaudio.org/internal/auth"
)

const (
	permKeyPrefix  = "perm:"
	indexKeyPrefix = "permidx:"
)

// NewRedisClient connects and pings within a short timeout.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// PermissionCache implements auth.PermissionCache on Redis. Each entry is
// also registered in a per-account index set so InvalidateAccount purges
// every key for the account in one round trip, without a keyspace scan.
type PermissionCache struct {
	client *redis.Client
}

var _ auth.PermissionCache = (*PermissionCache)(nil)

// New wraps an existing client.
func New(client *redis.Client) *PermissionCache {
	return &PermissionCache{client: client}
}

func permKey(accountID, scholarID string) string {
	return permKeyPrefix + accountID + ":" + scholarID
}

func indexKey(accountID string) string {
	return indexKeyPrefix + accountID
}

// Get returns the cached answer for the pair; ok=false on a miss.
func (c *PermissionCache) Get(ctx context.Context, accountID, scholarID string) (granted, ok bool, err error) {
	val, err := c.client.Get(ctx, permKey(accountID, scholarID)).Result()
	switch {
	case err == redis.Nil:
		return false, false, nil
	case err != nil:
		return false, false, fmt.Errorf("%w: %v", auth.ErrCacheUnavailable, err)
	}
	return val == "1", true, nil
}

// Set stores the answer under the freshness TTL and indexes the key. The
// index lives at least as long as the newest entry because it is
// re-expired on every write.
func (c *PermissionCache) Set(ctx context.Context, accountID, scholarID string, granted bool, ttl time.Duration) error {
	val := "0"
	if granted {
		val = "1"
	}
	key := permKey(accountID, scholarID)
	idx := indexKey(accountID)

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, key, val, ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrCacheUnavailable, err)
	}
	return nil
}

// Invalidate removes a single pair entry, called by grant and revoke so
// writes are visible to the next check immediately.
func (c *PermissionCache) Invalidate(ctx context.Context, accountID, scholarID string) error {
	key := permKey(accountID, scholarID)
	idx := indexKey(accountID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, idx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrCacheUnavailable, err)
	}
	return nil
}

// InvalidateAccount purges every cached entry for the account. Used when
// an account is disabled: cached positive decisions must die now, not at
// TTL expiry.
func (c *PermissionCache) InvalidateAccount(ctx context.Context, accountID string) error {
	idx := indexKey(accountID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", auth.ErrCacheUnavailable, err)
	}
	keys = append(keys, idx)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", auth.ErrCacheUnavailable, err)
	}
	return nil
}
