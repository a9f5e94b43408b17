// Package app 按配置组装存储后端、显示名缓存与各个服务
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/d60-Lab/friendzone/config"
	"github.com/d60-Lab/friendzone/internal/cache"
	"github.com/d60-Lab/friendzone/internal/service"
	"github.com/d60-Lab/friendzone/internal/store"
	"github.com/d60-Lab/friendzone/pkg/database"
	"github.com/d60-Lab/friendzone/pkg/logger"
	"github.com/d60-Lab/friendzone/pkg/tracing"
)

type App struct {
	Store     store.Store
	Names     *cache.NameCache
	Directory service.DirectoryService
	Friends   service.FriendService
	Feed      service.FeedService
	Messaging service.MessagingService

	redis *redis.Client

	// redis 后端时 client 随 store 一起关闭
	storeOwnsRedis  bool
	shutdownTracing tracing.ShutdownFunc
}

// New opts 追加在配置派生的选项之后，测试可覆盖时钟等
func New(ctx context.Context, cfg *config.Config, opts ...service.Option) (*App, error) {
	a := &App{}

	needRedis := cfg.Store.Backend == config.BackendRedis || cfg.Redis.NameCache
	if needRedis {
		client, err := database.InitRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.redis = client
	}

	st, err := openStore(cfg, a.redis)
	if err != nil {
		_ = a.closeRedis()
		return nil, err
	}
	a.storeOwnsRedis = cfg.Store.Backend == config.BackendRedis

	shutdown, err := tracing.Init(ctx, cfg)
	if err != nil {
		_ = st.Close()
		if !a.storeOwnsRedis {
			_ = a.closeRedis()
		}
		return nil, err
	}
	a.shutdownTracing = shutdown
	if cfg.Tracing.Enabled {
		st = store.NewTracedStore(st, otel.Tracer("github.com/d60-Lab/friendzone/internal/store"))
	}
	a.Store = st

	// 传 nil 接口而不是 nil 指针，服务里才能判空
	var names service.NameCache
	if cfg.Redis.NameCache {
		a.Names = cache.NewNameCache(a.redis, cfg.Redis.KeyPrefix, cfg.Redis.CacheTTL)
		names = a.Names
	}

	all := append([]service.Option{service.WithBcryptCost(cfg.Security.BcryptCost)}, opts...)
	locker := service.NewKeyLocker()
	a.Directory = service.NewDirectoryService(st, locker, names, all...)
	a.Friends = service.NewFriendService(st, locker, all...)
	a.Feed = service.NewFeedService(st, locker, a.Directory, all...)
	a.Messaging = service.NewMessagingService(st, locker, a.Directory, all...)

	logger.Info("app initialized",
		zap.String("backend", cfg.Store.Backend),
		zap.Bool("name_cache", cfg.Redis.NameCache),
		zap.Bool("tracing", cfg.Tracing.Enabled),
	)
	return a, nil
}

func openStore(cfg *config.Config, client *redis.Client) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendSQL:
		db, err := database.InitDB(cfg)
		if err != nil {
			return nil, err
		}
		return store.NewSQLStore(db)
	case config.BackendRedis:
		return store.NewRedisStore(client, cfg.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close 关闭存储并刷新 trace；redis 后端的 client 由 store 负责关闭
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if !a.storeOwnsRedis {
		if err := a.closeRedis(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) closeRedis() error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}
