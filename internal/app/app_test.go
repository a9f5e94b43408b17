package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/friendzone/config"
	"github.com/d60-Lab/friendzone/internal/service"
	"github.com/d60-Lab/friendzone/internal/store"
)

func baseConfig() *config.Config {
	return &config.Config{
		App:      config.AppConfig{Name: "friendzone", Env: "test"},
		Store:    config.StoreConfig{Backend: config.BackendMemory},
		Redis:    config.RedisConfig{KeyPrefix: "test", CacheTTL: time.Minute},
		Security: config.SecurityConfig{BcryptCost: bcrypt.MinCost},
	}
}

// exercise 跑一遍申请好友 -> 发帖 -> 私信，确认组装好的服务能协同工作
func exercise(t *testing.T, a *App) {
	t.Helper()
	ctx := context.Background()

	alice, err := a.Directory.Create(ctx, service.CreateUserInput{Name: "alice", Email: "alice@example.com", Password: "p"})
	require.NoError(t, err)
	bob, err := a.Directory.Create(ctx, service.CreateUserInput{Name: "bob", Email: "bob@example.com", Password: "p"})
	require.NoError(t, err)

	req, err := a.Friends.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	ok, err := a.Friends.Accept(ctx, req.ID)
	require.NoError(t, err)
	require.True(t, ok)

	p, err := a.Feed.CreatePost(ctx, alice.ID, "hello")
	require.NoError(t, err)
	_, err = a.Feed.ToggleLike(ctx, p.ID, bob.ID)
	require.NoError(t, err)

	_, err = a.Messaging.Send(ctx, bob.ID, alice.ID, "hi alice")
	require.NoError(t, err)
	convs, err := a.Messaging.Conversations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "bob", convs[0].CounterpartName)

	n, err := a.Feed.CountFriends(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_Memory(t *testing.T) {
	a, err := New(context.Background(), baseConfig())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.Nil(t, a.Names)
	exercise(t, a)
}

func TestNew_SQLite(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Backend = config.BackendSQL
	cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "fz.db")}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &store.SQLStore{}, a.Store)
	exercise(t, a)
}

func TestNew_RedisWithNameCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Store.Backend = config.BackendRedis
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.NameCache = true

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &store.RedisStore{}, a.Store)
	require.NotNil(t, a.Names)
	exercise(t, a)

	_, misses := a.Names.Counters()
	assert.Positive(t, misses)
	assert.True(t, mr.Exists("test:users:docs"))
}

func TestNew_MemoryWithNameCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Redis.NameCache = true

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	exercise(t, a)
	require.NoError(t, a.Close())
}

func TestNew_Errors(t *testing.T) {
	cfg := baseConfig()
	cfg.Store.Backend = "etcd"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg = baseConfig()
	cfg.Store.Backend = config.BackendRedis
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_TracingWrapsStore(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	cfg := baseConfig()
	// 采样率 0：不产生需要导出的 span，关闭时不会连 collector
	cfg.Tracing = config.TracingConfig{Enabled: true, Endpoint: "127.0.0.1:4318", Insecure: true, SampleRatio: 0}

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.TracedStore{}, a.Store)
	exercise(t, a)
	require.NoError(t, a.Close())
}
