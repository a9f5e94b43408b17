package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/d60-Lab/friendzone/internal/store"
)

// ErrNotFound 与 store.ErrNotFound 为同一个值，上层统一用 errors.Is 判断
var ErrNotFound = store.ErrNotFound

func getDoc[T any](ctx context.Context, r store.Reader, collection, id string) (*T, error) {
	b, err := r.Get(ctx, collection, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s %s: %w", collection, id, err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", collection, id, err)
	}
	return &v, nil
}

func listDocs[T any](ctx context.Context, r store.Reader, collection string) ([]*T, error) {
	docs, err := r.List(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]*T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", collection, d.ID, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

func putDoc(ctx context.Context, tx store.Tx, collection, id string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", collection, id, err)
	}
	if err := tx.Put(ctx, collection, id, b); err != nil {
		return fmt.Errorf("put %s %s: %w", collection, id, err)
	}
	return nil
}

func deleteDoc(ctx context.Context, tx store.Tx, collection, id string) error {
	if err := tx.Delete(ctx, collection, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
		}
		return fmt.Errorf("delete %s %s: %w", collection, id, err)
	}
	return nil
}
