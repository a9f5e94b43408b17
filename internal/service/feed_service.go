package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/friendzone/internal/model"
	"github.com/d60-Lab/friendzone/internal/repository"
	"github.com/d60-Lab/friendzone/internal/store"
	"github.com/d60-Lab/friendzone/pkg/logger"
)

type postInput struct {
	Content string `validate:"max=5000"`
}

// FeedService 动态流：发帖、点赞、评论
type FeedService interface {
	CreatePost(ctx context.Context, authorID, content string) (*model.Post, error)
	GetPost(ctx context.Context, postID string) (*model.Post, error)
	// ListFeed 新 -> 旧；同一时间戳后插入的在前
	ListFeed(ctx context.Context) ([]*model.Post, error)
	ListByAuthor(ctx context.Context, authorID string) ([]*model.Post, error)
	SearchPosts(ctx context.Context, query string) ([]*model.Post, error)
	ToggleLike(ctx context.Context, postID, userID string) (*model.Post, error)
	AddComment(ctx context.Context, postID, authorID, text string) (*model.Comment, error)
	// DeleteComment 只有评论作者能删；其他情况返回 false，不报错
	DeleteComment(ctx context.Context, postID, commentID, requesterID string) (bool, error)
	CountPosts(ctx context.Context, authorID string) (int, error)
	CountFriends(ctx context.Context, userID string) (int, error)
}

type feedService struct {
	store     store.Store
	locker    *KeyLocker
	directory DirectoryService
	opts      options
}

func NewFeedService(st store.Store, locker *KeyLocker, directory DirectoryService, opts ...Option) FeedService {
	return &feedService{store: st, locker: locker, directory: directory, opts: buildOptions(opts)}
}

func (s *feedService) CreatePost(ctx context.Context, authorID, content string) (*model.Post, error) {
	if blank(content) {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if err := validateInput(postInput{Content: content}); err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:        s.opts.newID(),
		AuthorID:  authorID,
		Content:   content,
		Likes:     []string{},
		Comments:  []model.Comment{},
		CreatedAt: s.opts.timestamp(),
	}
	err := s.store.Update(ctx, func(tx store.Tx) error {
		author, err := repository.NewUserRepository(tx).Get(ctx, authorID)
		if err != nil {
			return err
		}
		post.AuthorName = author.DisplayName()
		return repository.NewPostRepository(tx).Save(ctx, post)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("post created", zap.String("post", post.ID), zap.String("author", authorID))
	return post, nil
}

func (s *feedService) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	return repository.NewPostRepository(store.ReadOnly(s.store)).Get(ctx, postID)
}

func (s *feedService) ListFeed(ctx context.Context) ([]*model.Post, error) {
	posts, err := repository.NewPostRepository(store.ReadOnly(s.store)).List(ctx)
	if err != nil {
		return nil, err
	}
	return feedOrder(posts), nil
}

func (s *feedService) ListByAuthor(ctx context.Context, authorID string) ([]*model.Post, error) {
	posts, err := repository.NewPostRepository(store.ReadOnly(s.store)).ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	return feedOrder(posts), nil
}

// SearchPosts 内容包含关键字（不区分大小写），按 feed 顺序，最多 20 条
func (s *feedService) SearchPosts(ctx context.Context, query string) ([]*model.Post, error) {
	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	posts, err := s.ListFeed(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Post, 0)
	for _, p := range posts {
		if strings.Contains(strings.ToLower(p.Content), q) {
			out = append(out, p)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

func (s *feedService) ToggleLike(ctx context.Context, postID, userID string) (*model.Post, error) {
	unlock := s.locker.Lock(postKey(postID))
	defer unlock()

	var post *model.Post
	err := s.store.Update(ctx, func(tx store.Tx) error {
		posts := repository.NewPostRepository(tx)
		p, err := posts.Get(ctx, postID)
		if err != nil {
			return err
		}
		p.ToggleLike(userID)
		post = p
		return posts.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (s *feedService) AddComment(ctx context.Context, postID, authorID, text string) (*model.Comment, error) {
	if blank(text) {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidInput)
	}

	unlock := s.locker.Lock(postKey(postID))
	defer unlock()

	var comment *model.Comment
	err := s.store.Update(ctx, func(tx store.Tx) error {
		posts := repository.NewPostRepository(tx)
		p, err := posts.Get(ctx, postID)
		if err != nil {
			return err
		}
		author, err := repository.NewUserRepository(tx).Get(ctx, authorID)
		if err != nil {
			return err
		}
		c := model.Comment{
			ID:         s.opts.newID(),
			PostID:     postID,
			AuthorID:   authorID,
			AuthorName: author.DisplayName(),
			Text:       text,
			CreatedAt:  s.opts.timestamp(),
		}
		p.Comments = append(p.Comments, c)
		comment = &c
		return posts.Save(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("comment added", zap.String("post", postID), zap.String("comment", comment.ID))
	return comment, nil
}

func (s *feedService) DeleteComment(ctx context.Context, postID, commentID, requesterID string) (bool, error) {
	unlock := s.locker.Lock(postKey(postID))
	defer unlock()

	deleted := false
	reason := ""
	err := s.store.Update(ctx, func(tx store.Tx) error {
		posts := repository.NewPostRepository(tx)
		p, err := posts.Get(ctx, postID)
		if errors.Is(err, repository.ErrNotFound) {
			reason = "post not found"
			return nil
		}
		if err != nil {
			return err
		}
		i := p.CommentIndex(commentID)
		switch {
		case i < 0:
			reason = "comment not found"
			return nil
		case p.Comments[i].AuthorID != requesterID:
			reason = "requester is not the author"
			return nil
		}
		p.Comments = append(p.Comments[:i], p.Comments[i+1:]...)
		deleted = true
		return posts.Save(ctx, p)
	})
	if err != nil {
		logger.Error("delete comment failed", zap.String("post", postID), zap.Error(err))
		return false, err
	}
	if !deleted {
		logger.Warn("delete comment refused",
			zap.String("post", postID),
			zap.String("comment", commentID),
			zap.String("requester", requesterID),
			zap.String("reason", reason),
		)
	}
	return deleted, nil
}

func (s *feedService) CountPosts(ctx context.Context, authorID string) (int, error) {
	posts, err := repository.NewPostRepository(store.ReadOnly(s.store)).ListByAuthor(ctx, authorID)
	if err != nil {
		return 0, err
	}
	return len(posts), nil
}

func (s *feedService) CountFriends(ctx context.Context, userID string) (int, error) {
	return s.directory.CountFriends(ctx, userID)
}

// feedOrder 输入为插入顺序：先反转，再按 createdAt 降序稳定排序
func feedOrder(posts []*model.Post) []*model.Post {
	out := make([]*model.Post, len(posts))
	for i, p := range posts {
		out[len(posts)-1-i] = p
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
