package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 60))
	assert.Equal(t, int64(60), c.MemoryUsage())

	// Over the limit: non-blocking acquire must fail.
	assert.False(t, c.TryAcquireMemory(50))
	assert.Equal(t, int64(60), c.MemoryUsage())

	c.ReleaseMemory(60)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(100))
	c.ReleaseMemory(100)
}

func TestController_MemoryBlocksUntilCancel(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	require.NoError(t, c.AcquireMemory(context.Background(), 10))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.AcquireMemory(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(10)
}

func TestController_MemoryClampsOversizedRequest(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 10})
	ctx := context.Background()

	// A reservation beyond the whole budget caps at the budget instead
	// of blocking forever.
	require.NoError(t, c.AcquireMemory(ctx, 1000))
	assert.Equal(t, int64(10), c.MemoryUsage())

	c.ReleaseMemory(1000)
	assert.Equal(t, int64(0), c.MemoryUsage())
	assert.True(t, c.TryAcquireMemory(1000))
	c.ReleaseMemory(1000)
}

func TestController_IOBeyondBurst(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Larger than one second's budget; must wait, not fail.
	assert.NoError(t, c.AcquireIO(ctx, (1<<20)+1024))
}

func TestController_ReadSlots(t *testing.T) {
	c := NewController(Config{MaxConcurrentReads: 2})

	assert.True(t, c.TryAcquireRead())
	assert.True(t, c.TryAcquireRead())
	assert.False(t, c.TryAcquireRead())

	c.ReleaseRead()
	assert.True(t, c.TryAcquireRead())

	c.ReleaseRead()
	c.ReleaseRead()
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.AcquireMemory(context.Background(), 10))
	assert.True(t, c.TryAcquireMemory(10))
	c.ReleaseMemory(10)
	assert.NoError(t, c.AcquireRead(context.Background()))
	c.ReleaseRead()
	assert.NoError(t, c.AcquireIO(context.Background(), 1024))
}
