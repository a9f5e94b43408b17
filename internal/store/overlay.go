package store

import (
	"context"
	"errors"
)

// overlay buffers the writes of one transaction on top of a base reader.
// A nil body in writes marks a deletion.
type overlay struct {
	base   Reader
	writes map[string]map[string][]byte
	added  map[string][]string
}

func newOverlay(base Reader) *overlay {
	return &overlay{
		base:   base,
		writes: make(map[string]map[string][]byte),
		added:  make(map[string][]string),
	}
}

func (o *overlay) writeSet(collection string) map[string][]byte {
	m := o.writes[collection]
	if m == nil {
		m = make(map[string][]byte)
		o.writes[collection] = m
	}
	return m
}

func (o *overlay) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if b, ok := o.writes[collection][id]; ok {
		if b == nil {
			return nil, ErrNotFound
		}
		return clone(b), nil
	}
	return o.base.Get(ctx, collection, id)
}

func (o *overlay) List(ctx context.Context, collection string) ([]Document, error) {
	docs, err := o.base.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	m := o.writes[collection]
	if len(m) == 0 {
		return docs, nil
	}
	out := make([]Document, 0, len(docs)+len(o.added[collection]))
	for _, d := range docs {
		if b, ok := m[d.ID]; ok {
			if b != nil {
				out = append(out, Document{ID: d.ID, Body: clone(b)})
			}
			continue
		}
		out = append(out, d)
	}
	for _, id := range o.added[collection] {
		if b := m[id]; b != nil {
			out = append(out, Document{ID: id, Body: clone(b)})
		}
	}
	return out, nil
}

func (o *overlay) Put(ctx context.Context, collection, id string, body []byte) error {
	if body == nil {
		return ErrNilBody
	}
	m := o.writeSet(collection)
	if _, seen := m[id]; !seen {
		_, err := o.base.Get(ctx, collection, id)
		switch {
		case errors.Is(err, ErrNotFound):
			o.added[collection] = append(o.added[collection], id)
		case err != nil:
			return err
		}
	}
	m[id] = clone(body)
	return nil
}

func (o *overlay) Delete(ctx context.Context, collection, id string) error {
	if _, err := o.Get(ctx, collection, id); err != nil {
		return err
	}
	o.writeSet(collection)[id] = nil
	return nil
}

// changes splits the buffered writes of one collection into updates of
// existing documents, deletions and additions (in insertion order).
func (o *overlay) changes(collection string) (updated map[string][]byte, deleted []string, added []Document) {
	m := o.writes[collection]
	isNew := make(map[string]struct{}, len(o.added[collection]))
	for _, id := range o.added[collection] {
		isNew[id] = struct{}{}
		if b := m[id]; b != nil {
			added = append(added, Document{ID: id, Body: b})
		}
	}
	updated = make(map[string][]byte)
	for id, b := range m {
		if _, ok := isNew[id]; ok {
			continue
		}
		if b == nil {
			deleted = append(deleted, id)
		} else {
			updated[id] = b
		}
	}
	return updated, deleted, added
}
