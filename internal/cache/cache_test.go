package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flohub/flohub/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("should return stored value until it expires", func(t *testing.T) {
		// given
		clock := &utils.MockClock{FixedNow: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
		c := NewMemoryCache(clock)
		require.NoError(t, c.Set(ctx, "aggregate:1:a", []byte("value"), time.Minute))

		// when
		value, found, err := c.Get(ctx, "aggregate:1:a")

		// then
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("value"), value)

		// when
		clock.Advance(time.Minute)
		_, found, err = c.Get(ctx, "aggregate:1:a")

		// then
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("should sweep expired entries of other keys on write", func(t *testing.T) {
		// given
		clock := &utils.MockClock{FixedNow: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
		c := NewMemoryCache(clock)
		for i := range 10000 {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("aggregate:1:%d", i), []byte("value"), time.Minute))
		}

		// when
		clock.Advance(time.Hour)
		require.NoError(t, c.Set(ctx, "aggregate:1:fresh", []byte("value"), time.Minute))

		// then
		assert.Len(t, c.entries, 1)
		value, found, err := c.Get(ctx, "aggregate:1:fresh")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("value"), value)
	})

	t.Run("should keep unexpired entries when sweeping", func(t *testing.T) {
		// given
		clock := &utils.MockClock{FixedNow: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
		c := NewMemoryCache(clock)
		require.NoError(t, c.Set(ctx, "short", []byte("a"), time.Minute))
		require.NoError(t, c.Set(ctx, "long", []byte("b"), time.Hour))

		// when
		clock.Advance(2 * time.Minute)
		require.NoError(t, c.Set(ctx, "other", []byte("c"), time.Minute))

		// then
		assert.Len(t, c.entries, 2)
		_, found, _ := c.Get(ctx, "long")
		assert.True(t, found)
	})

	t.Run("should not store values with non-positive ttl", func(t *testing.T) {
		c := NewMemoryCache(&utils.MockClock{})
		require.NoError(t, c.Set(ctx, "key", []byte("value"), 0))

		_, found, err := c.Get(ctx, "key")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("should delete only keys with prefix", func(t *testing.T) {
		// given
		c := NewMemoryCache(&utils.MockClock{FixedNow: time.Now()})
		require.NoError(t, c.Set(ctx, "aggregate:1:a", []byte("a"), time.Minute))
		require.NoError(t, c.Set(ctx, "aggregate:1:b", []byte("b"), time.Minute))
		require.NoError(t, c.Set(ctx, "aggregate:2:a", []byte("c"), time.Minute))

		// when
		require.NoError(t, c.DeletePrefix(ctx, "aggregate:1:"))

		// then
		_, found, _ := c.Get(ctx, "aggregate:1:a")
		assert.False(t, found)
		_, found, _ = c.Get(ctx, "aggregate:1:b")
		assert.False(t, found)
		_, found, _ = c.Get(ctx, "aggregate:2:a")
		assert.True(t, found)
	})
}
