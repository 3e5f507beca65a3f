package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keys(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestRunChunksAndCap(t *testing.T) {
	s := NewScheduler(16, time.Millisecond)

	var current, peak atomic.Int32
	var seen sync.Map
	stats, err := Run(context.Background(), s, keys(104), func(_ context.Context, key int) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		current.Add(-1)
		seen.Store(key, true)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 7, stats.Batches)
	assert.Equal(t, 104, stats.Items)
	assert.LessOrEqual(t, int(peak.Load()), 16)
	assert.LessOrEqual(t, stats.MaxInFlight, 16)

	count := 0
	seen.Range(func(any, any) bool { count++; return true })
	assert.Equal(t, 104, count)
}

func TestRunChunkOrdering(t *testing.T) {
	s := NewScheduler(4, 0)

	var mu sync.Mutex
	var starts, ends []time.Time
	chunkOf := func(key int) int { return (key - 1) / 4 }
	startByChunk := map[int]time.Time{}
	endByChunk := map[int]time.Time{}

	_, err := Run(context.Background(), s, keys(12), func(_ context.Context, key int) error {
		mu.Lock()
		now := time.Now()
		starts = append(starts, now)
		c := chunkOf(key)
		if first, ok := startByChunk[c]; !ok || now.Before(first) {
			startByChunk[c] = now
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		now = time.Now()
		ends = append(ends, now)
		if last, ok := endByChunk[c]; !ok || now.After(last) {
			endByChunk[c] = now
		}
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, starts, 12)
	assert.Len(t, ends, 12)

	for c := 1; c < 3; c++ {
		assert.False(t, startByChunk[c].Before(endByChunk[c-1]),
			"chunk %d started before chunk %d settled", c, c-1)
	}
}

func TestRunCollectsFailuresWithoutStopping(t *testing.T) {
	s := NewScheduler(3, 0)
	var calls atomic.Int32
	stats, err := Run(context.Background(), s, keys(9), func(_ context.Context, key int) error {
		calls.Add(1)
		if key%3 == 0 {
			return errors.New("short read")
		}
		return nil
	})

	assert.Error(t, err)
	assert.Equal(t, int32(9), calls.Load())
	assert.Equal(t, 3, stats.Failed)
	assert.Equal(t, 3, stats.Batches)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(2, 0)
	var calls atomic.Int32
	stats, err := Run(ctx, s, keys(10), func(_ context.Context, key int) error {
		calls.Add(1)
		if key == 2 {
			cancel()
		}
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunEmpty(t *testing.T) {
	stats, err := Run(context.Background(), NewScheduler(0, 0), []int{}, func(context.Context, int) error {
		t.Fatal("unexpected call")
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 0, stats.Batches)
}

func TestOnChunkProgress(t *testing.T) {
	s := NewScheduler(5, 0)
	var progress []int
	s.OnChunk = func(done, total int) {
		assert.Equal(t, 12, total)
		progress = append(progress, done)
	}
	_, err := Run(context.Background(), s, keys(12), func(context.Context, int) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, []int{5, 10, 12}, progress)
}
