// Package store is the persistent collection store: id-keyed JSON documents
// grouped in named collections, with insertion order kept per collection.
package store

import (
	"context"
	"errors"
)

const (
	CollectionUsers          = "users"
	CollectionPosts          = "posts"
	CollectionFriendRequests = "friendRequests"
	CollectionMessages       = "messages"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrReadOnly = errors.New("store: write in read-only transaction")
	ErrNilBody  = errors.New("store: nil document body")
)

// Document is one stored body together with its id.
type Document struct {
	ID   string
	Body []byte
}

// Reader reads documents. List returns a collection in insertion order.
type Reader interface {
	Get(ctx context.Context, collection, id string) ([]byte, error)
	List(ctx context.Context, collection string) ([]Document, error)
}

// Tx is a Reader that can also write. Put of a new id appends it to the
// collection order; Put of an existing id keeps its position.
type Tx interface {
	Reader
	Put(ctx context.Context, collection, id string, body []byte) error
	Delete(ctx context.Context, collection, id string) error
}

// Store runs snapshot reads and atomic read-modify-write transactions.
// Update applies every write of fn or none of them.
type Store interface {
	Reader
	View(ctx context.Context, fn func(r Reader) error) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type readOnly struct{ Reader }

// ReadOnly wraps r as a Tx whose writes fail with ErrReadOnly.
func ReadOnly(r Reader) Tx { return readOnly{r} }

func (readOnly) Put(context.Context, string, string, []byte) error { return ErrReadOnly }
func (readOnly) Delete(context.Context, string, string) error      { return ErrReadOnly }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
