package store

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracedStore wraps a Store with one span per top-level operation.
// Reads and writes inside View/Update are recorded as events on the
// enclosing span.
type TracedStore struct {
	inner  Store
	tracer trace.Tracer
}

func NewTracedStore(inner Store, tracer trace.Tracer) *TracedStore {
	return &TracedStore{inner: inner, tracer: tracer}
}

func (s *TracedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
}

// end ErrNotFound 属于正常结果，不标记为错误
func end(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *TracedStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	ctx, span := s.start(ctx, "Get", attribute.String("store.collection", collection), attribute.String("store.id", id))
	b, err := s.inner.Get(ctx, collection, id)
	end(span, err)
	return b, err
}

func (s *TracedStore) List(ctx context.Context, collection string) ([]Document, error) {
	ctx, span := s.start(ctx, "List", attribute.String("store.collection", collection))
	docs, err := s.inner.List(ctx, collection)
	span.SetAttributes(attribute.Int("store.documents", len(docs)))
	end(span, err)
	return docs, err
}

func (s *TracedStore) View(ctx context.Context, fn func(r Reader) error) error {
	ctx, span := s.start(ctx, "View")
	err := s.inner.View(ctx, func(r Reader) error {
		return fn(tracedTx{Tx: ReadOnly(r), span: span})
	})
	end(span, err)
	return err
}

func (s *TracedStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	ctx, span := s.start(ctx, "Update")
	err := s.inner.Update(ctx, func(tx Tx) error {
		return fn(tracedTx{Tx: tx, span: span})
	})
	end(span, err)
	return err
}

func (s *TracedStore) Close() error { return s.inner.Close() }

type tracedTx struct {
	Tx
	span trace.Span
}

func (t tracedTx) event(op, collection, id string) {
	t.span.AddEvent(op, trace.WithAttributes(
		attribute.String("store.collection", collection),
		attribute.String("store.id", id),
	))
}

func (t tracedTx) Get(ctx context.Context, collection, id string) ([]byte, error) {
	t.event("get", collection, id)
	return t.Tx.Get(ctx, collection, id)
}

func (t tracedTx) List(ctx context.Context, collection string) ([]Document, error) {
	t.event("list", collection, "")
	return t.Tx.List(ctx, collection)
}

func (t tracedTx) Put(ctx context.Context, collection, id string, body []byte) error {
	t.event("put", collection, id)
	return t.Tx.Put(ctx, collection, id, body)
}

func (t tracedTx) Delete(ctx context.Context, collection, id string) error {
	t.event("delete", collection, id)
	return t.Tx.Delete(ctx, collection, id)
}
