package repository

import (
	"context"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/store"
)

type MessageRepository interface {
	Create(ctx context.Context, m *model.Message) error
	Save(ctx context.Context, m *model.Message) error
	// ListFor 返回 userID 收发的全部消息，按插入顺序
	ListFor(ctx context.Context, userID string) ([]*model.Message, error)
	ListBetween(ctx context.Context, a, b string) ([]*model.Message, error)
	ListUnreadTo(ctx context.Context, toID string) ([]*model.Message, error)
}

type messageRepository struct {
	tx store.Tx
}

func NewMessageRepository(tx store.Tx) MessageRepository { return &messageRepository{tx: tx} }

func (r *messageRepository) Create(ctx context.Context, m *model.Message) error {
	return r.Save(ctx, m)
}

func (r *messageRepository) Save(ctx context.Context, m *model.Message) error {
	return putDoc(ctx, r.tx, store.CollectionMessages, m.ID, m)
}

func (r *messageRepository) ListFor(ctx context.Context, userID string) ([]*model.Message, error) {
	return r.filter(ctx, func(m *model.Message) bool { return m.FromID == userID || m.ToID == userID })
}

func (r *messageRepository) ListBetween(ctx context.Context, a, b string) ([]*model.Message, error) {
	return r.filter(ctx, func(m *model.Message) bool { return m.Between(a, b) })
}

func (r *messageRepository) ListUnreadTo(ctx context.Context, toID string) ([]*model.Message, error) {
	return r.filter(ctx, func(m *model.Message) bool { return m.ToID == toID && !m.Read })
}

func (r *messageRepository) filter(ctx context.Context, match func(*model.Message) bool) ([]*model.Message, error) {
	all, err := listDocs[model.Message](ctx, r.tx, store.CollectionMessages)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Message, 0)
	for _, m := range all {
		if match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}
