package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// NameCache caches user display names in redis as plain string keys
// ("<prefix>:name:<userID>") with a TTL.
type NameCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewNameCache(client *redis.Client, prefix string, ttl time.Duration) *NameCache {
	if prefix == "" {
		prefix = "fz"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &NameCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *NameCache) key(userID string) string {
	return fmt.Sprintf("%s:name:%s", c.prefix, userID)
}

// GetNames returns the cached names for ids; ids absent from the map missed.
func (c *NameCache) GetNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return out, err
	}
	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[ids[i]] = str
		}
	}
	c.hits.Add(int64(len(out)))
	c.misses.Add(int64(len(ids) - len(out)))
	return out, nil
}

// SetNames overwrites cached names; used when a name changes.
func (c *NameCache) SetNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for id, name := range names {
		pipe.Set(ctx, c.key(id), name, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// FillNames caches names loaded from the store with SETNX, so a fill that
// raced with SetNames never replaces the newer value.
func (c *NameCache) FillNames(ctx context.Context, names map[string]string) error {
	if len(names) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for id, name := range names {
		pipe.SetNX(ctx, c.key(id), name, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *NameCache) Invalidate(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

// Counters reports cache hits and misses since start.
func (c *NameCache) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
