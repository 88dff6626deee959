package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRateCounter_Increment(t *testing.T) {
	counter := NewInMemoryRateCounter()
	ctx := context.Background()

	t.Run("accumulates within the window", func(t *testing.T) {
		val, err := counter.Increment(ctx, "seller-a", 1, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val)

		val, err = counter.Increment(ctx, "seller-a", 1, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(2), val)
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		val, err := counter.Increment(ctx, "seller-b", 3, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(3), val)

		current, err := counter.Current(ctx, "seller-a")
		require.NoError(t, err)
		assert.Equal(t, int64(2), current)
	})

	t.Run("resets after the window expires", func(t *testing.T) {
		val, err := counter.Increment(ctx, "seller-c", 5, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(5), val)

		time.Sleep(20 * time.Millisecond)

		current, err := counter.Current(ctx, "seller-c")
		require.NoError(t, err)
		assert.Equal(t, int64(0), current)

		val, err = counter.Increment(ctx, "seller-c", 1, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, int64(1), val, "expired counter should restart from zero")
	})
}

func TestInMemoryRateCounter_Current(t *testing.T) {
	counter := NewInMemoryRateCounter()
	ctx := context.Background()

	t.Run("returns zero for unknown key", func(t *testing.T) {
		current, err := counter.Current(ctx, "never-seen")
		require.NoError(t, err)
		assert.Equal(t, int64(0), current)
	})

	t.Run("does not consume the counter", func(t *testing.T) {
		_, err := counter.Increment(ctx, "seller-d", 4, time.Hour)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			current, err := counter.Current(ctx, "seller-d")
			require.NoError(t, err)
			assert.Equal(t, int64(4), current)
		}
	})
}
