package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/keytune/internal/errs"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	r := Do(context.Background(), Fixed(3, time.Millisecond), "get_axis", func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errs.NewTransportError("get_axis", errors.New("short read"))
		}
		return 2, nil
	})

	require.True(t, r.IsOk())
	assert.Equal(t, 2, r.Value())
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	r := Do(context.Background(), Exponential(3, time.Millisecond, 4*time.Millisecond), "get_dks", func(context.Context) (int, error) {
		calls++
		return 0, errs.NewTimeoutError("get_dks", "no reply")
	})

	assert.False(t, r.IsOk())
	assert.Equal(t, errs.KindTimeout, r.Kind())
	assert.Equal(t, 3, calls)
}

func TestDoDoesNotRetryDisconnected(t *testing.T) {
	calls := 0
	r := Do(context.Background(), Fixed(5, time.Millisecond), "get_mt", func(context.Context) (int, error) {
		calls++
		return 0, errs.NewDisconnectedError("get_mt")
	})

	assert.True(t, errs.IsDisconnected(r.Err()))
	assert.Equal(t, 1, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	r := Do(ctx, Fixed(10, 50*time.Millisecond), "get_tgl", func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("flaky")
	})

	assert.False(t, r.IsOk())
	assert.Equal(t, 1, calls)
}

func TestZeroAttemptsMeansOne(t *testing.T) {
	calls := 0
	Do(context.Background(), Policy{}, "get_end", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("flaky")
	})
	assert.Equal(t, 1, calls)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestRetryableOverride(t *testing.T) {
	assert.False(t, Retryable(errs.ErrNotDiscoverable))
	assert.True(t, Retryable(&errs.Error{Kind: errs.KindNotDiscoverable, Retryable: true}))
	assert.True(t, Retryable(errors.New("plain")))
}
