package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/repository"
	"github.com/d60-Lab/friendzone/internal/store"
	"github.com/d60-Lab/friendzone/pkg/logger"
)

// NameCache 显示名缓存；cache.NameCache 为 redis 实现。
// SetNames 覆盖写（改名时），FillNames 只在 key 不存在时写（读穿回填）。
type NameCache interface {
	GetNames(ctx context.Context, ids []string) (map[string]string, error)
	SetNames(ctx context.Context, names map[string]string) error
	FillNames(ctx context.Context, names map[string]string) error
}

type CreateUserInput struct {
	Name     string `validate:"required,min=2,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// UpdateUserInput 部分更新，nil 字段保持不变
type UpdateUserInput struct {
	Name *string `validate:"omitempty,min=2,max=50"`
	Bio  *string `validate:"omitempty,max=300"`
}

// DirectoryService 用户目录
type DirectoryService interface {
	Create(ctx context.Context, in CreateUserInput) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, id string, in UpdateUserInput) (*model.User, error)
	CountFriends(ctx context.Context, id string) (int, error)
	// DisplayNames 批量取显示名；不存在的用户退回 id
	DisplayNames(ctx context.Context, ids []string) (map[string]string, error)
	Search(ctx context.Context, query string) ([]*model.User, error)
}

type directoryService struct {
	store  store.Store
	locker *KeyLocker
	cache  NameCache
	opts   options
	group  singleflight.Group
}

// NewDirectoryService nameCache 可以为 nil
func NewDirectoryService(st store.Store, locker *KeyLocker, nameCache NameCache, opts ...Option) DirectoryService {
	return &directoryService{store: st, locker: locker, cache: nameCache, opts: buildOptions(opts)}
}

func (s *directoryService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.opts.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	unlock := s.locker.Lock(emailKey(in.Email))
	defer unlock()

	u := &model.User{
		ID:           s.opts.newID(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Friends:      []string{},
		CreatedAt:    s.opts.timestamp(),
	}
	err = s.store.Update(ctx, func(tx store.Tx) error {
		users := repository.NewUserRepository(tx)
		_, err := users.FindByEmail(ctx, in.Email)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, in.Email)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		return users.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("user created", zap.String("user", u.ID))
	return u, nil
}

func (s *directoryService) FindByID(ctx context.Context, id string) (*model.User, error) {
	return repository.NewUserRepository(store.ReadOnly(s.store)).Get(ctx, id)
}

func (s *directoryService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := repository.NewUserRepository(store.ReadOnly(s.store)).FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user with email %s: %w", email, err)
	}
	return u, nil
}

func (s *directoryService) Update(ctx context.Context, id string, in UpdateUserInput) (*model.User, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		in.Name = &name
	}
	if err := validateInput(in); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(userKey(id))
	defer unlock()

	var updated *model.User
	err := s.store.Update(ctx, func(tx store.Tx) error {
		users := repository.NewUserRepository(tx)
		u, err := users.Get(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			u.Name = *in.Name
		}
		if in.Bio != nil {
			u.Bio = *in.Bio
		}
		updated = u
		return users.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	// 仍持有 user 锁时覆盖缓存，并发的回填用 SETNX 不会盖掉新名字
	if s.cache != nil && in.Name != nil {
		if err := s.cache.SetNames(ctx, map[string]string{id: updated.DisplayName()}); err != nil {
			logger.Warn("name cache set failed", zap.String("user", id), zap.Error(err))
		}
	}
	return updated, nil
}

func (s *directoryService) CountFriends(ctx context.Context, id string) (int, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return len(u.Friends), nil
}

func (s *directoryService) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	ids = dedupe(ids)
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	if s.cache != nil {
		cached, err := s.cache.GetNames(ctx, ids)
		if err != nil {
			logger.Warn("name cache get failed", zap.Error(err))
		}
		for id, n := range cached {
			names[id] = n
		}
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := names[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return names, nil
	}

	// 同一批 id 的并发加载合并成一次；共享的加载不跟随某个调用方取消
	loadCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(strings.Join(missing, ","), func() (interface{}, error) {
		return s.loadNames(loadCtx, missing)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		return nil, res.Err
	}
	loaded := res.Val.(map[string]string)
	for id, n := range loaded {
		names[id] = n
	}
	if s.cache != nil && len(loaded) > 0 {
		if err := s.cache.FillNames(ctx, loaded); err != nil {
			logger.Warn("name cache fill failed", zap.Error(err))
		}
	}
	for _, id := range missing {
		if _, ok := names[id]; !ok {
			names[id] = id
		}
	}
	return names, nil
}

func (s *directoryService) loadNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	err := s.store.View(ctx, func(r store.Reader) error {
		users := repository.NewUserRepository(store.ReadOnly(r))
		for _, id := range ids {
			u, err := users.Get(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[id] = u.DisplayName()
		}
		return nil
	})
	return out, err
}

// Search 名字或邮箱包含关键字（不区分大小写），最多 20 条
func (s *directoryService) Search(ctx context.Context, query string) ([]*model.User, error) {
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	users, err := repository.NewUserRepository(store.ReadOnly(s.store)).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.User, 0)
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

// addFriendEdge 在调用方事务内同时写双方 friends，幂等
func addFriendEdge(ctx context.Context, users repository.UserRepository, a, b string) error {
	if a == b {
		return ErrInvalidRequest
	}
	ua, err := users.Get(ctx, a)
	if err != nil {
		return err
	}
	ub, err := users.Get(ctx, b)
	if err != nil {
		return err
	}
	if ua.AddFriend(b) {
		if err := users.Save(ctx, ua); err != nil {
			return err
		}
	}
	if ub.AddFriend(a) {
		if err := users.Save(ctx, ub); err != nil {
			return err
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
