package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp 切到空目录，避免读到仓库里的 config.yaml
func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "fz", cfg.Redis.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 10, cfg.Security.BcryptCost)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FRIENDZONE_STORE_BACKEND", "redis")
	t.Setenv("FRIENDZONE_REDIS_ADDR", "127.0.0.1:6390")
	t.Setenv("FRIENDZONE_APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "127.0.0.1:6390", cfg.Redis.Addr)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "memory ok", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mongo" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Backend = BackendSQL; c.Database.Driver = "mysql" }, wantErr: true},
		{name: "sql without dsn", mutate: func(c *Config) { c.Store.Backend = BackendSQL; c.Database.DSN = "" }, wantErr: true},
		{name: "redis without addr", mutate: func(c *Config) { c.Store.Backend = BackendRedis; c.Redis.Addr = "" }, wantErr: true},
		{name: "tracing ok", mutate: func(c *Config) { c.Tracing = TracingConfig{Enabled: true, Endpoint: "otel:4318", SampleRatio: 0.5} }},
		{name: "tracing without endpoint", mutate: func(c *Config) { c.Tracing = TracingConfig{Enabled: true, SampleRatio: 1} }, wantErr: true},
		{name: "tracing ratio out of range", mutate: func(c *Config) { c.Tracing = TracingConfig{Enabled: true, Endpoint: "otel:4318", SampleRatio: 2} }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Store:    StoreConfig{Backend: BackendMemory},
				Database: DatabaseConfig{Driver: DriverSQLite, DSN: "x.db"},
				Redis:    RedisConfig{Addr: "localhost:6379"},
			}
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
