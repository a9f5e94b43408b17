package repository

import (
	"context"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/store"
)

type FriendRequestRepository interface {
	Create(ctx context.Context, req *model.FriendRequest) error
	Get(ctx context.Context, id string) (*model.FriendRequest, error)
	Save(ctx context.Context, req *model.FriendRequest) error
	Delete(ctx context.Context, id string) error
	// PendingExists 判断有序对 (from, to) 是否已有 pending 申请
	PendingExists(ctx context.Context, fromID, toID string) (bool, error)
	ListPendingTo(ctx context.Context, toID string) ([]*model.FriendRequest, error)
	ListPendingFrom(ctx context.Context, fromID string) ([]*model.FriendRequest, error)
}

type friendRequestRepository struct {
	tx store.Tx
}

func NewFriendRequestRepository(tx store.Tx) FriendRequestRepository {
	return &friendRequestRepository{tx: tx}
}

func (r *friendRequestRepository) Create(ctx context.Context, req *model.FriendRequest) error {
	return r.Save(ctx, req)
}

func (r *friendRequestRepository) Get(ctx context.Context, id string) (*model.FriendRequest, error) {
	return getDoc[model.FriendRequest](ctx, r.tx, store.CollectionFriendRequests, id)
}

func (r *friendRequestRepository) Save(ctx context.Context, req *model.FriendRequest) error {
	return putDoc(ctx, r.tx, store.CollectionFriendRequests, req.ID, req)
}

func (r *friendRequestRepository) Delete(ctx context.Context, id string) error {
	return deleteDoc(ctx, r.tx, store.CollectionFriendRequests, id)
}

func (r *friendRequestRepository) PendingExists(ctx context.Context, fromID, toID string) (bool, error) {
	pending, err := r.ListPendingFrom(ctx, fromID)
	if err != nil {
		return false, err
	}
	for _, req := range pending {
		if req.ToID == toID {
			return true, nil
		}
	}
	return false, nil
}

func (r *friendRequestRepository) ListPendingTo(ctx context.Context, toID string) ([]*model.FriendRequest, error) {
	return r.listPending(ctx, func(req *model.FriendRequest) bool { return req.ToID == toID })
}

func (r *friendRequestRepository) ListPendingFrom(ctx context.Context, fromID string) ([]*model.FriendRequest, error) {
	return r.listPending(ctx, func(req *model.FriendRequest) bool { return req.FromID == fromID })
}

func (r *friendRequestRepository) listPending(ctx context.Context, match func(*model.FriendRequest) bool) ([]*model.FriendRequest, error) {
	all, err := listDocs[model.FriendRequest](ctx, r.tx, store.CollectionFriendRequests)
	if err != nil {
		return nil, err
	}
	out := make([]*model.FriendRequest, 0)
	for _, req := range all {
		if req.IsPending() && match(req) {
			out = append(out, req)
		}
	}
	return out, nil
}
