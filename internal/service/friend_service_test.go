package service

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/repository"
	"github.com/d60-Lab/friendzone/internal/store"
)

func TestFriend_RequestLifecycle(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "ann"), e.user(t, "ben")

	req, err := e.friends.SendRequest(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.FriendRequestPending, req.Status)

	_, err = e.friends.SendRequest(e.ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, ErrDuplicateRequest)

	ok, err := e.friends.Accept(e.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.friends.SendRequest(e.ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyFriends)
	_, err = e.friends.SendRequest(e.ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, ErrAlreadyFriends)
}

func TestFriend_SendRequestRejects(t *testing.T) {
	e := newTestEnv(t)
	a := e.user(t, "ann")

	_, err := e.friends.SendRequest(e.ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.friends.SendRequest(e.ctx, a.ID, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = e.friends.SendRequest(e.ctx, "ghost", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFriend_ReverseRequestCoexists(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "ann"), e.user(t, "ben")

	_, err := e.friends.SendRequest(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = e.friends.SendRequest(e.ctx, b.ID, a.ID)
	require.NoError(t, err)

	pendingA, err := e.friends.PendingFor(e.ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, pendingA, 1)
	pendingB, err := e.friends.PendingFor(e.ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, pendingB, 1)
}

func TestFriend_AcceptIdempotent(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "ann"), e.user(t, "ben")

	req, err := e.friends.SendRequest(e.ctx, a.ID, b.ID)
	require.NoError(t, err)

	ok, err := e.friends.Accept(e.ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.friends.Accept(e.ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ua, err := e.directory.FindByID(e.ctx, a.ID)
	require.NoError(t, err)
	ub, err := e.directory.FindByID(e.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ua.Friends)
	assert.Equal(t, []string{a.ID}, ub.Friends)

	pending, err := e.friends.PendingFor(e.ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFriend_AcceptNotFound(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.friends.Accept(e.ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFriend_AcceptAllOrNothing(t *testing.T) {
	e := newTestEnv(t)
	a := e.user(t, "ann")

	// 对方用户文档不存在：状态和好友边都不能落地
	req := &model.FriendRequest{ID: "r1", FromID: a.ID, ToID: "ghost", Status: model.FriendRequestPending, CreatedAt: baseTime}
	require.NoError(t, e.store.Update(e.ctx, func(tx store.Tx) error {
		return repository.NewFriendRequestRepository(tx).Create(e.ctx, req)
	}))

	ok, err := e.friends.Accept(e.ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, ok)

	got, err := repository.NewFriendRequestRepository(store.ReadOnly(e.store)).Get(e.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPending())

	ua, err := e.directory.FindByID(e.ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, ua.Friends)
}

func TestFriend_Decline(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "ann"), e.user(t, "ben")

	req, err := e.friends.SendRequest(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NoError(t, e.friends.Decline(e.ctx, req.ID))

	assert.ErrorIs(t, e.friends.Decline(e.ctx, req.ID), ErrNotFound)
	_, err = e.friends.Accept(e.ctx, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// 拒绝后可以重新申请
	_, err = e.friends.SendRequest(e.ctx, a.ID, b.ID)
	assert.NoError(t, err)

	ok, err := e.friends.AreFriends(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFriend_PendingOrdering(t *testing.T) {
	e := newTestEnv(t, WithClock(fixedClock()))
	target := e.user(t, "target")
	s1, s2, s3 := e.user(t, "s1"), e.user(t, "s2"), e.user(t, "s3")

	for _, s := range []*model.User{s2, s1, s3} {
		_, err := e.friends.SendRequest(e.ctx, s.ID, target.ID)
		require.NoError(t, err)
	}
	_, err := e.friends.SendRequest(e.ctx, target.ID, s1.ID)
	require.NoError(t, err)

	pending, err := e.friends.PendingFor(e.ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	// 时间相同按插入顺序
	assert.Equal(t, s2.ID, pending[0].FromID)
	assert.Equal(t, s1.ID, pending[1].FromID)
	assert.Equal(t, s3.ID, pending[2].FromID)

	out, err := e.friends.OutgoingFor(e.ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, s1.ID, out[0].ToID)
}

func TestFriend_PendingAscendingByCreatedAt(t *testing.T) {
	e := newTestEnv(t)
	target := e.user(t, "target")
	s1, s2 := e.user(t, "s1"), e.user(t, "s2")

	r1, err := e.friends.SendRequest(e.ctx, s1.ID, target.ID)
	require.NoError(t, err)
	r2, err := e.friends.SendRequest(e.ctx, s2.ID, target.ID)
	require.NoError(t, err)

	pending, err := e.friends.PendingFor(e.ctx, target.ID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, r1.ID, pending[0].ID)
	assert.Equal(t, r2.ID, pending[1].ID)
	assert.True(t, pending[0].CreatedAt.Before(pending[1].CreatedAt))
}

func TestFriend_FriendsOf(t *testing.T) {
	e := newTestEnv(t)
	a, b, c := e.user(t, "ann"), e.user(t, "ben"), e.user(t, "cal")
	e.befriend(t, a.ID, c.ID)
	e.befriend(t, b.ID, a.ID)

	friends, err := e.friends.FriendsOf(e.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, c.ID, friends[0].ID)
	assert.Equal(t, b.ID, friends[1].ID)

	_, err = e.friends.FriendsOf(e.ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := e.friends.AreFriends(e.ctx, c.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = e.friends.AreFriends(e.ctx, b.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFriend_ConcurrentAcceptsStaySymmetric(t *testing.T) {
	e := newTestEnv(t)
	const n = 8
	users := make([]*model.User, n)
	for i := range users {
		users[i] = e.user(t, fmt.Sprintf("user%d", i))
	}

	var reqs []*model.FriendRequest
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			req, err := e.friends.SendRequest(e.ctx, users[i].ID, users[j].ID)
			require.NoError(t, err)
			reqs = append(reqs, req)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(reqs)*2)
	for _, req := range reqs {
		// 每个申请并发接受两次，只能成功一次
		for k := 0; k < 2; k++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := e.friends.Accept(e.ctx, id); err != nil {
					errs <- err
				}
			}(req.ID)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, u := range users {
		got, err := e.directory.FindByID(e.ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, got.Friends, n-1)
		for _, f := range got.Friends {
			ok, err := e.friends.AreFriends(e.ctx, f, u.ID)
			require.NoError(t, err)
			assert.True(t, ok, "friendship %s -> %s not symmetric", u.ID, f)
		}
	}
}
