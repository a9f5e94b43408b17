package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/repository"
	"github.com/d60-Lab/friendzone/internal/store"
	"github.com/d60-Lab/friendzone/pkg/logger"
)

// FriendService 好友关系：申请 -> 接受/拒绝，接受时落地双向好友边
type FriendService interface {
	SendRequest(ctx context.Context, fromID, toID string) (*model.FriendRequest, error)
	// Accept 非 pending 的申请返回 false（重复接受是 no-op）
	Accept(ctx context.Context, requestID string) (bool, error)
	// Decline 直接删除申请
	Decline(ctx context.Context, requestID string) error
	PendingFor(ctx context.Context, userID string) ([]*model.FriendRequest, error)
	OutgoingFor(ctx context.Context, userID string) ([]*model.FriendRequest, error)
	FriendsOf(ctx context.Context, userID string) ([]*model.User, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

type friendService struct {
	store  store.Store
	locker *KeyLocker
	opts   options
}

func NewFriendService(st store.Store, locker *KeyLocker, opts ...Option) FriendService {
	return &friendService{store: st, locker: locker, opts: buildOptions(opts)}
}

func (s *friendService) SendRequest(ctx context.Context, fromID, toID string) (*model.FriendRequest, error) {
	if fromID == toID {
		return nil, ErrInvalidRequest
	}

	unlock := s.locker.Lock(userKey(fromID), userKey(toID))
	defer unlock()

	req := &model.FriendRequest{
		ID:        s.opts.newID(),
		FromID:    fromID,
		ToID:      toID,
		Status:    model.FriendRequestPending,
		CreatedAt: s.opts.timestamp(),
	}
	err := s.store.Update(ctx, func(tx store.Tx) error {
		users := repository.NewUserRepository(tx)
		from, err := users.Get(ctx, fromID)
		if err != nil {
			return err
		}
		if _, err := users.Get(ctx, toID); err != nil {
			return err
		}
		if from.HasFriend(toID) {
			return ErrAlreadyFriends
		}

		reqs := repository.NewFriendRequestRepository(tx)
		exists, err := reqs.PendingExists(ctx, fromID, toID)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateRequest
		}
		return reqs.Create(ctx, req)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateRequest) || errors.Is(err, ErrAlreadyFriends) {
			logger.Warn("friend request refused", zap.String("from", fromID), zap.String("to", toID), zap.Error(err))
		}
		return nil, err
	}
	logger.Debug("friend request sent", zap.String("request", req.ID), zap.String("from", fromID), zap.String("to", toID))
	return req, nil
}

func (s *friendService) Accept(ctx context.Context, requestID string) (bool, error) {
	// 先读出双方 id 才知道要锁哪些用户；from/to 不会变
	peek, err := repository.NewFriendRequestRepository(store.ReadOnly(s.store)).Get(ctx, requestID)
	if err != nil {
		return false, err
	}

	unlock := s.locker.Lock(requestKey(requestID), userKey(peek.FromID), userKey(peek.ToID))
	defer unlock()

	accepted := false
	err = s.store.Update(ctx, func(tx store.Tx) error {
		reqs := repository.NewFriendRequestRepository(tx)
		req, err := reqs.Get(ctx, requestID)
		if err != nil {
			return err
		}
		if !req.IsPending() {
			return nil
		}
		req.Status = model.FriendRequestAccepted
		if err := reqs.Save(ctx, req); err != nil {
			return err
		}
		if err := addFriendEdge(ctx, repository.NewUserRepository(tx), req.FromID, req.ToID); err != nil {
			return fmt.Errorf("add friend edge: %w", err)
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !accepted {
		logger.Warn("friend request not pending", zap.String("request", requestID))
		return false, nil
	}
	logger.Debug("friend request accepted", zap.String("request", requestID))
	return true, nil
}

func (s *friendService) Decline(ctx context.Context, requestID string) error {
	unlock := s.locker.Lock(requestKey(requestID))
	defer unlock()

	return s.store.Update(ctx, func(tx store.Tx) error {
		return repository.NewFriendRequestRepository(tx).Delete(ctx, requestID)
	})
}

func (s *friendService) PendingFor(ctx context.Context, userID string) ([]*model.FriendRequest, error) {
	reqs, err := repository.NewFriendRequestRepository(store.ReadOnly(s.store)).ListPendingTo(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortRequests(reqs)
	return reqs, nil
}

func (s *friendService) OutgoingFor(ctx context.Context, userID string) ([]*model.FriendRequest, error) {
	reqs, err := repository.NewFriendRequestRepository(store.ReadOnly(s.store)).ListPendingFrom(ctx, userID)
	if err != nil {
		return nil, err
	}
	sortRequests(reqs)
	return reqs, nil
}

func (s *friendService) FriendsOf(ctx context.Context, userID string) ([]*model.User, error) {
	var friends []*model.User
	err := s.store.View(ctx, func(r store.Reader) error {
		users := repository.NewUserRepository(store.ReadOnly(r))
		u, err := users.Get(ctx, userID)
		if err != nil {
			return err
		}
		friends = make([]*model.User, 0, len(u.Friends))
		for _, id := range u.Friends {
			f, err := users.Get(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			friends = append(friends, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return friends, nil
}

func (s *friendService) AreFriends(ctx context.Context, a, b string) (bool, error) {
	u, err := repository.NewUserRepository(store.ReadOnly(s.store)).Get(ctx, a)
	if err != nil {
		return false, err
	}
	return u.HasFriend(b), nil
}

// sortRequests createdAt 升序，相同时间保持插入顺序
func sortRequests(reqs []*model.FriendRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}
