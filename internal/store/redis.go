package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each collection as a hash (id -> body), a sorted set
// (id -> insertion seq) and a seq counter. Writes of one Update are sent
// in a single MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
	// isolates View snapshots from in-flight commits of this process
	mu sync.RWMutex
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fz"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) docsKey(collection string) string {
	return fmt.Sprintf("%s:%s:docs", s.prefix, collection)
}

func (s *RedisStore) orderKey(collection string) string {
	return fmt.Sprintf("%s:%s:order", s.prefix, collection)
}

func (s *RedisStore) seqKey(collection string) string {
	return fmt.Sprintf("%s:%s:seq", s.prefix, collection)
}

type redisReader struct{ s *RedisStore }

func (r redisReader) Get(ctx context.Context, collection, id string) ([]byte, error) {
	b, err := r.s.client.HGet(ctx, r.s.docsKey(collection), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r redisReader) List(ctx context.Context, collection string) ([]Document, error) {
	ids, err := r.s.client.ZRange(ctx, r.s.orderKey(collection), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Document{}, nil
	}
	vals, err := r.s.client.HMGet(ctx, r.s.docsKey(collection), ids...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		out = append(out, Document{ID: ids[i], Body: []byte(str)})
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return redisReader{s}.Get(ctx, collection, id)
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return redisReader{s}.List(ctx, collection)
}

func (s *RedisStore) View(ctx context.Context, fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(redisReader{s})
}

func (s *RedisStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := newOverlay(redisReader{s})
	if err := fn(o); err != nil {
		return err
	}
	return s.commit(ctx, o)
}

func (s *RedisStore) commit(ctx context.Context, o *overlay) error {
	type plan struct {
		collection string
		updated    map[string][]byte
		deleted    []string
		added      []Document
		firstSeq   int64
	}
	plans := make([]plan, 0, len(o.writes))
	for collection := range o.writes {
		updated, deleted, added := o.changes(collection)
		p := plan{collection: collection, updated: updated, deleted: deleted, added: added}
		if len(added) > 0 {
			last, err := s.client.IncrBy(ctx, s.seqKey(collection), int64(len(added))).Result()
			if err != nil {
				return fmt.Errorf("reserve seq for %s: %w", collection, err)
			}
			p.firstSeq = last - int64(len(added)) + 1
		}
		plans = append(plans, p)
	}
	if len(plans) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range plans {
			docs, order := s.docsKey(p.collection), s.orderKey(p.collection)
			for id, b := range p.updated {
				pipe.HSet(ctx, docs, id, b)
			}
			if len(p.deleted) > 0 {
				members := make([]interface{}, len(p.deleted))
				for i, id := range p.deleted {
					members[i] = id
				}
				pipe.HDel(ctx, docs, p.deleted...)
				pipe.ZRem(ctx, order, members...)
			}
			for i, d := range p.added {
				pipe.HSet(ctx, docs, d.ID, d.Body)
				pipe.ZAdd(ctx, order, redis.Z{Score: float64(p.firstSeq + int64(i)), Member: d.ID})
			}
		}
		return nil
	})
	return err
}

func (s *RedisStore) Close() error { return s.client.Close() }
