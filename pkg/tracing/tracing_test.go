package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/d60-Lab/friendzone/config"
)

func TestInit_Disabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Init(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Equal(t, before, otel.GetTracerProvider())
}

func TestInit_Enabled(t *testing.T) {
	before := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(before) })

	cfg := &config.Config{
		App:     config.AppConfig{Name: "friendzone", Env: "test"},
		Tracing: config.TracingConfig{Enabled: true, Endpoint: "127.0.0.1:4318", Insecure: true, SampleRatio: 1},
	}
	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)

	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	// 没有产生 span，关闭时不会连接 collector
	assert.NoError(t, shutdown(context.Background()))
}
