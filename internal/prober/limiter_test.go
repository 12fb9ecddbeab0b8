package prober

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSemaphoreLimiterRejectsZeroCapacity(t *testing.T) {
	_, err := NewSemaphoreLimiter(0)
	assert.Error(t, err)
}

func TestSemaphoreLimiterBoundsConcurrentHolders(t *testing.T) {
	const capacity = 5
	const holders = 50

	l, err := NewSemaphoreLimiter(capacity)
	require.NoError(t, err)

	var current, max atomic.Int32
	var wg sync.WaitGroup
	wg.Add(holders)
	for i := 0; i < holders; i++ {
		go func() {
			defer wg.Done()
			release, ok := l.Acquire(context.Background())
			require.True(t, ok)
			defer release()

			n := current.Add(1)
			for {
				m := max.Load()
				if n <= m || max.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(max.Load()), capacity)
}

func TestSemaphoreLimiterAcquireRespectsCanceledContext(t *testing.T) {
	l, err := NewSemaphoreLimiter(1)
	require.NoError(t, err)

	release, ok := l.Acquire(context.Background())
	require.True(t, ok)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok = l.Acquire(ctx)
	assert.False(t, ok)
}

func TestSemaphoreLimiterStringIncludesCapacity(t *testing.T) {
	l, err := NewSemaphoreLimiter(7)
	require.NoError(t, err)
	assert.Contains(t, l.String(), "7")
}
