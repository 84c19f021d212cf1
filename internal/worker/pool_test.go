package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMap_PreservesOrder(t *testing.T) {
	t.Parallel()

	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}

	out := Map(context.Background(), 4, items, func(_ context.Context, n int) int {
		return n * 2
	})

	assert.Len(t, out, 100)
	for i, v := range out {
		assert.Equal(t, i*2, v)
	}
}

func TestMap_BoundsConcurrency(t *testing.T) {
	t.Parallel()

	const poolSize = 4
	var inFlight, peak atomic.Int64
	var mu sync.Mutex

	items := make([]int, 50)
	Map(context.Background(), poolSize, items, func(_ context.Context, _ int) struct{} {
		n := inFlight.Add(1)
		mu.Lock()
		if n > peak.Load() {
			peak.Store(n)
		}
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return struct{}{}
	})

	assert.LessOrEqual(t, peak.Load(), int64(poolSize))
	assert.Positive(t, peak.Load())
}

func TestMap_Empty(t *testing.T) {
	t.Parallel()

	out := Map(context.Background(), 4, nil, func(_ context.Context, _ int) int { return 1 })
	assert.Empty(t, out)
}

func TestMap_ZeroPoolSizeStillRuns(t *testing.T) {
	t.Parallel()

	out := Map(context.Background(), 0, []int{1, 2, 3}, func(_ context.Context, n int) int { return n })
	assert.Equal(t, []int{1, 2, 3}, out)
}

func TestMap_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var processed atomic.Int64

	items := make([]int, 1000)
	Map(ctx, 2, items, func(ctx context.Context, _ int) struct{} {
		if processed.Add(1) == 10 {
			cancel()
		}
		return struct{}{}
	})

	assert.Less(t, processed.Load(), int64(1000), "cancellation must stop the cursor")
}
