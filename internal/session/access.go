package session

import (
	"context"
	"time"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/result"
	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/transport"
)

// Handle returns the live handle or a KindNoDevice error.
func (s *Session) Handle() (transport.Handle, error) {
	return s.liveHandle("handle")
}

func (s *Session) liveHandle(op string) (transport.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil, errs.NewNoDeviceError(op)
	}
	return s.handle, nil
}

// read runs an idempotent call against the live handle with the read policy.
func read[T any](ctx context.Context, s *Session, op string, fn func(context.Context, transport.Handle) (T, error)) (T, error) {
	return retry.Do(ctx, s.opts.Reads, op, func(ctx context.Context) (T, error) {
		h, err := s.liveHandle(op)
		if err != nil {
			var zero T
			return zero, err
		}
		return result.Try(func() (T, error) {
			start := time.Now()
			v, err := fn(ctx, h)
			logging.LogTransportCall(op, 0, time.Since(start), err)
			return v, err
		}).Unwrap()
	}).Unwrap()
}

// Call runs fn once against the live handle. Panics inside fn come back as
// errors.
func (s *Session) Call(ctx context.Context, fn func(context.Context, transport.Handle) error) error {
	h, err := s.liveHandle("call")
	if err != nil {
		return err
	}
	return result.Try(func() (struct{}, error) {
		return struct{}{}, fn(ctx, h)
	}).Err()
}

// BaseInfo returns the keyboard identity, cached from initialization.
func (s *Session) BaseInfo(ctx context.Context) (transport.BaseInfo, error) {
	s.mu.Lock()
	if s.handle != nil && s.base != nil {
		b := *s.base
		s.mu.Unlock()
		return b, nil
	}
	s.mu.Unlock()

	b, err := read(ctx, s, "get_base_info", func(ctx context.Context, h transport.Handle) (transport.BaseInfo, error) {
		return h.BaseInfo(ctx)
	})
	if err != nil {
		return b, err
	}
	s.mu.Lock()
	if s.handle != nil {
		s.base = &b
	}
	s.mu.Unlock()
	return b, nil
}

// BaseLayout returns the physical layout rows.
func (s *Session) BaseLayout(ctx context.Context) ([][]transport.KeyInfo, error) {
	return read(ctx, s, "get_base_layout", func(ctx context.Context, h transport.Handle) ([][]transport.KeyInfo, error) {
		return h.BaseLayout(ctx)
	})
}

// LayerBindings reads the bindings of keys on one function layer.
func (s *Session) LayerBindings(ctx context.Context, layer int, keys []int) ([]transport.KeyInfo, error) {
	req := make([]transport.LayerKey, len(keys))
	for i, k := range keys {
		req[i] = transport.LayerKey{Key: k, Layer: layer}
	}
	return read(ctx, s, "get_layout_key_info", func(ctx context.Context, h transport.Handle) ([]transport.KeyInfo, error) {
		return h.LayoutKeyInfo(ctx, req)
	})
}

// GetPollingRate returns the polling-rate index.
func (s *Session) GetPollingRate(ctx context.Context) (int, error) {
	return read(ctx, s, "get_polling_rate", func(ctx context.Context, h transport.Handle) (int, error) {
		return h.PollingRate(ctx)
	})
}
