package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flohub/flohub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) config.Redis {
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return config.Redis{Enabled: true, Addr: fmt.Sprintf("%s:%d", host, port.Int())}
}

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("redis container tests skipped in short mode")
	}
	ctx := context.Background()
	c, err := NewRedisCache(ctx, startRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	t.Run("should store and read value", func(t *testing.T) {
		// given
		require.NoError(t, c.Set(ctx, "aggregate:1:window", []byte(`{"events":[]}`), time.Minute))

		// when
		value, found, err := c.Get(ctx, "aggregate:1:window")

		// then
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `{"events":[]}`, string(value))
	})

	t.Run("should report missing key", func(t *testing.T) {
		_, found, err := c.Get(ctx, "aggregate:404:window")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("should delete keys by prefix", func(t *testing.T) {
		// given
		require.NoError(t, c.Set(ctx, "aggregate:5:a", []byte("a"), time.Minute))
		require.NoError(t, c.Set(ctx, "aggregate:6:a", []byte("b"), time.Minute))

		// when
		require.NoError(t, c.DeletePrefix(ctx, "aggregate:5:"))

		// then
		_, found, _ := c.Get(ctx, "aggregate:5:a")
		assert.False(t, found)
		_, found, _ = c.Get(ctx, "aggregate:6:a")
		assert.True(t, found)
	})
}
