package store

import (
	"context"
	"sync"
)

type memCollection struct {
	order []string
	docs  map[string][]byte
}

// MemoryStore keeps every collection in process memory. Update holds the
// write lock for the whole read-modify-write cycle.
type MemoryStore struct {
	mu   sync.RWMutex
	cols map[string]*memCollection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cols: make(map[string]*memCollection)}
}

// memReader reads without locking; callers hold s.mu.
type memReader struct{ s *MemoryStore }

func (r memReader) Get(_ context.Context, collection, id string) ([]byte, error) {
	c := r.s.cols[collection]
	if c == nil {
		return nil, ErrNotFound
	}
	b, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (r memReader) List(_ context.Context, collection string) ([]Document, error) {
	c := r.s.cols[collection]
	if c == nil {
		return []Document{}, nil
	}
	out := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, Document{ID: id, Body: clone(c.docs[id])})
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memReader{s}.Get(ctx, collection, id)
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return memReader{s}.List(ctx, collection)
}

func (s *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(memReader{s})
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := newOverlay(memReader{s})
	if err := fn(o); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.commit(o)
	return nil
}

func (s *MemoryStore) commit(o *overlay) {
	for collection := range o.writes {
		c := s.cols[collection]
		if c == nil {
			c = &memCollection{docs: make(map[string][]byte)}
			s.cols[collection] = c
		}
		updated, deleted, added := o.changes(collection)
		for id, b := range updated {
			c.docs[id] = b
		}
		if len(deleted) > 0 {
			gone := make(map[string]struct{}, len(deleted))
			for _, id := range deleted {
				delete(c.docs, id)
				gone[id] = struct{}{}
			}
			order := c.order[:0]
			for _, id := range c.order {
				if _, ok := gone[id]; !ok {
					order = append(order, id)
				}
			}
			c.order = order
		}
		for _, d := range added {
			c.docs[d.ID] = d.Body
			c.order = append(c.order, d.ID)
		}
	}
}

func (s *MemoryStore) Close() error { return nil }
