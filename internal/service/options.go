package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type options struct {
	now        func() time.Time
	newID      func() string
	bcryptCost int
}

type Option func(*options)

// WithClock 替换时间源（测试里用固定/步进时钟）
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

func buildOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		newID:      uuid.NewString,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func (o options) timestamp() time.Time { return o.now().UTC() }

var validate = validator.New()

// validateInput 校验失败统一包装为 ErrInvalidInput
func validateInput(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

const (
	minQueryLen = 2
	searchLimit = 20
)

// normalizeQuery 搜索关键字：去空白、转小写，至少 2 个字符
func normalizeQuery(q string) (string, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	if len([]rune(q)) < minQueryLen {
		return "", fmt.Errorf("%w: query must be at least %d characters", ErrInvalidInput, minQueryLen)
	}
	return q, nil
}
