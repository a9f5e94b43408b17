package repository

import (
	"context"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/store"
)

type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	Save(ctx context.Context, u *model.User) error
}

type userRepository struct {
	tx store.Tx
}

func NewUserRepository(tx store.Tx) UserRepository { return &userRepository{tx: tx} }

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	return getDoc[model.User](ctx, r.tx, store.CollectionUsers, id)
}

// FindByEmail 精确匹配（区分大小写）
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, ErrNotFound
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	return listDocs[model.User](ctx, r.tx, store.CollectionUsers)
}

func (r *userRepository) Save(ctx context.Context, u *model.User) error {
	if u.Friends == nil {
		u.Friends = []string{}
	}
	return putDoc(ctx, r.tx, store.CollectionUsers, u.ID, u)
}
