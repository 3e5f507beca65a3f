// Package batch runs per-key keyboard calls in fixed-size concurrent chunks.
//
// A chunk's items all start together, the scheduler waits for every one of
// them to settle, sleeps for the throttle interval and only then starts the
// next chunk. At most Size calls are ever in flight. Individual failures are
// collected, never retried, and never stop later chunks.
package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/retry"
)

const (
	// DefaultSize is the default number of concurrent calls per chunk
	DefaultSize = 16

	// DefaultThrottle is the default pause between chunks
	DefaultThrottle = 100 * time.Millisecond
)

// Scheduler splits work into chunks of Size items.
type Scheduler struct {
	// Size is the chunk size and the in-flight cap.
	Size int

	// Throttle is the pause between consecutive chunks.
	Throttle time.Duration

	// OnChunk, if set, is called after each chunk settles with the number of
	// items completed so far.
	OnChunk func(done, total int)
}

// NewScheduler creates a scheduler. Non-positive sizes fall back to DefaultSize.
func NewScheduler(size int, throttle time.Duration) *Scheduler {
	if size <= 0 {
		size = DefaultSize
	}
	return &Scheduler{Size: size, Throttle: throttle}
}

// Stats describes one Run.
type Stats struct {
	Items       int
	Batches     int
	Failed      int
	MaxInFlight int
	Elapsed     time.Duration
}

// Run calls fn once for every item. The returned error joins every item
// failure; it is nil when all calls succeed. A cancelled ctx stops the run
// before the next chunk starts.
func Run[T any](ctx context.Context, s *Scheduler, items []T, fn func(ctx context.Context, item T) error) (Stats, error) {
	size := s.Size
	if size <= 0 {
		size = DefaultSize
	}

	var (
		stats    = Stats{Items: len(items)}
		start    = time.Now()
		mu       sync.Mutex
		failures []error
		inFlight atomic.Int64
		peak     atomic.Int64
	)

	for offset := 0; offset < len(items); offset += size {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = time.Since(start)
			return stats, err
		}

		end := min(offset+size, len(items))
		chunk := items[offset:end]
		stats.Batches++

		var g errgroup.Group
		g.SetLimit(size)
		for _, item := range chunk {
			g.Go(func() error {
				n := inFlight.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				defer inFlight.Add(-1)

				if err := fn(ctx, item); err != nil {
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()

		if s.OnChunk != nil {
			s.OnChunk(end, len(items))
		}

		if end < len(items) {
			if err := retry.Sleep(ctx, s.Throttle); err != nil {
				stats.Elapsed = time.Since(start)
				return stats, err
			}
		}
	}

	stats.Failed = len(failures)
	stats.MaxInFlight = int(peak.Load())
	stats.Elapsed = time.Since(start)

	if len(failures) > 0 {
		logging.Debug("Batch run finished with failures",
			zap.Int("items", stats.Items),
			zap.Int("failed", stats.Failed),
		)
		return stats, errors.Join(failures...)
	}
	return stats, nil
}
