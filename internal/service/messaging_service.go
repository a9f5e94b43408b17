package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/repository"
	"github.com/d60-Lab/friendzone/internal/store"
	"github.com/d60-Lab/friendzone/pkg/logger"
)

// MessagingService 私信
type MessagingService interface {
	Send(ctx context.Context, fromID, toID, text string) (*model.Message, error)
	// Thread 双向消息，旧 -> 新
	Thread(ctx context.Context, userID, otherID string) ([]*model.Message, error)
	// Conversations 每个对方一条，按最后一条消息时间倒序
	Conversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkThreadRead(ctx context.Context, userID, otherID string) error
}

type messagingService struct {
	store     store.Store
	locker    *KeyLocker
	directory DirectoryService
	opts      options
}

func NewMessagingService(st store.Store, locker *KeyLocker, directory DirectoryService, opts ...Option) MessagingService {
	return &messagingService{store: st, locker: locker, directory: directory, opts: buildOptions(opts)}
}

func (s *messagingService) Send(ctx context.Context, fromID, toID, text string) (*model.Message, error) {
	if blank(text) {
		return nil, fmt.Errorf("%w: message text is required", ErrInvalidInput)
	}
	msg := &model.Message{
		ID:        s.opts.newID(),
		FromID:    fromID,
		ToID:      toID,
		Text:      text,
		Read:      false,
		CreatedAt: s.opts.timestamp(),
	}
	err := s.store.Update(ctx, func(tx store.Tx) error {
		return repository.NewMessageRepository(tx).Create(ctx, msg)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("message sent", zap.String("message", msg.ID), zap.String("from", fromID), zap.String("to", toID))
	return msg, nil
}

func (s *messagingService) Thread(ctx context.Context, userID, otherID string) ([]*model.Message, error) {
	msgs, err := repository.NewMessageRepository(store.ReadOnly(s.store)).ListBetween(ctx, userID, otherID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

func (s *messagingService) Conversations(ctx context.Context, userID string) ([]*model.Conversation, error) {
	msgs, err := repository.NewMessageRepository(store.ReadOnly(s.store)).ListFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	type entry struct {
		conv    *model.Conversation
		lastIdx int
	}
	byPeer := make(map[string]*entry)
	order := make([]*entry, 0)
	for i, m := range msgs {
		peer := m.Counterpart(userID)
		e := byPeer[peer]
		if e == nil {
			e = &entry{conv: &model.Conversation{CounterpartID: peer}}
			byPeer[peer] = e
			order = append(order, e)
		}
		e.conv.MessageCount++
		if m.ToID == userID && m.FromID == peer && !m.Read {
			e.conv.UnreadCount++
		}
		// 时间相同取后插入的
		if e.conv.LastMessage == nil || !m.CreatedAt.Before(e.conv.LastMessage.CreatedAt) {
			e.conv.LastMessage = m
			e.lastIdx = i
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i].conv.LastMessage.CreatedAt, order[j].conv.LastMessage.CreatedAt
		if !a.Equal(b) {
			return a.After(b)
		}
		return order[i].lastIdx > order[j].lastIdx
	})

	ids := make([]string, len(order))
	for i, e := range order {
		ids[i] = e.conv.CounterpartID
	}
	names, err := s.directory.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Conversation, len(order))
	for i, e := range order {
		e.conv.CounterpartName = names[e.conv.CounterpartID]
		out[i] = e.conv
	}
	return out, nil
}

func (s *messagingService) UnreadCount(ctx context.Context, userID string) (int, error) {
	msgs, err := repository.NewMessageRepository(store.ReadOnly(s.store)).ListUnreadTo(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}

func (s *messagingService) MarkThreadRead(ctx context.Context, userID, otherID string) error {
	unlock := s.locker.Lock(inboxKey(userID))
	defer unlock()

	marked := 0
	err := s.store.Update(ctx, func(tx store.Tx) error {
		repo := repository.NewMessageRepository(tx)
		unread, err := repo.ListUnreadTo(ctx, userID)
		if err != nil {
			return err
		}
		for _, m := range unread {
			if m.FromID != otherID {
				continue
			}
			m.Read = true
			if err := repo.Save(ctx, m); err != nil {
				return err
			}
			marked++
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Debug("thread marked read", zap.String("user", userID), zap.String("other", otherID), zap.Int("marked", marked))
	return nil
}
