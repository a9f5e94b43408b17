package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/store"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// stepClock 每次调用前进 1 秒，保证时间严格递增
func stepClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return baseTime.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func fixedClock() func() time.Time {
	return func() time.Time { return baseTime }
}

type testEnv struct {
	ctx       context.Context
	store     store.Store
	locker    *KeyLocker
	directory DirectoryService
	friends   FriendService
	feed      FeedService
	messaging MessagingService
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	all := append([]Option{WithBcryptCost(bcrypt.MinCost), WithClock(stepClock())}, opts...)

	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })
	locker := NewKeyLocker()
	dir := NewDirectoryService(st, locker, nil, all...)
	return &testEnv{
		ctx:       context.Background(),
		store:     st,
		locker:    locker,
		directory: dir,
		friends:   NewFriendService(st, locker, all...),
		feed:      NewFeedService(st, locker, dir, all...),
		messaging: NewMessagingService(st, locker, dir, all...),
	}
}

func (e *testEnv) user(t *testing.T, name string) *model.User {
	t.Helper()
	u, err := e.directory.Create(e.ctx, CreateUserInput{
		Name:     name,
		Email:    fmt.Sprintf("%s@example.com", name),
		Password: "secret",
	})
	require.NoError(t, err)
	return u
}

// befriend 走一遍 申请 -> 接受
func (e *testEnv) befriend(t *testing.T, a, b string) {
	t.Helper()
	req, err := e.friends.SendRequest(e.ctx, a, b)
	require.NoError(t, err)
	ok, err := e.friends.Accept(e.ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)
}
