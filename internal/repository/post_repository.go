package repository

import (
	"context"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/store"
)

type PostRepository interface {
	Get(ctx context.Context, id string) (*model.Post, error)
	// List 按插入顺序（旧 -> 新）返回
	List(ctx context.Context) ([]*model.Post, error)
	ListByAuthor(ctx context.Context, authorID string) ([]*model.Post, error)
	Save(ctx context.Context, p *model.Post) error
}

type postRepository struct {
	tx store.Tx
}

func NewPostRepository(tx store.Tx) PostRepository { return &postRepository{tx: tx} }

func (r *postRepository) Get(ctx context.Context, id string) (*model.Post, error) {
	return getDoc[model.Post](ctx, r.tx, store.CollectionPosts, id)
}

func (r *postRepository) List(ctx context.Context) ([]*model.Post, error) {
	return listDocs[model.Post](ctx, r.tx, store.CollectionPosts)
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID string) ([]*model.Post, error) {
	posts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Post, 0)
	for _, p := range posts {
		if p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *postRepository) Save(ctx context.Context, p *model.Post) error {
	if p.Likes == nil {
		p.Likes = []string{}
	}
	if p.Comments == nil {
		p.Comments = []model.Comment{}
	}
	return putDoc(ctx, r.tx, store.CollectionPosts, p.ID, p)
}
