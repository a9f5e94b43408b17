package service

import (
	"errors"

	"github.com/d60-Lab/friendzone/internal/repository"
)

var (
	// ErrNotFound 引用的实体不存在（与 repository.ErrNotFound 同值）
	ErrNotFound         = repository.ErrNotFound
	ErrDuplicateEmail   = errors.New("email already registered")
	ErrDuplicateRequest = errors.New("friend request already pending")
	ErrAlreadyFriends   = errors.New("users are already friends")
	ErrInvalidRequest   = errors.New("cannot send a friend request to yourself")
	ErrInvalidInput     = errors.New("invalid input")
)
