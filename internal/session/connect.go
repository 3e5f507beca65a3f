package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/transport"
)

// enumerateTimeout bounds the discoverability check at a recovery deadline.
const enumerateTimeout = 2 * time.Second

// Scan lists every attached keyboard.
func (s *Session) Scan(ctx context.Context) ([]transport.DeviceInfo, error) {
	devices, err := s.t.Enumerate(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, "scan", "failed to enumerate keyboards", err)
	}
	return devices, nil
}

// AutoConnect re-attaches the paired keyboard. Concurrent callers share a
// single attempt. It returns (nil, nil) and stays Disconnected when nothing
// is paired or the paired keyboard cannot be found.
func (s *Session) AutoConnect(ctx context.Context) (*transport.DeviceInfo, error) {
	s.mu.Lock()
	if s.handle != nil {
		d := *s.device
		s.mu.Unlock()
		return &d, nil
	}
	if c := s.connecting; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.device, c.err
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindTimeout, "auto_connect", "cancelled while waiting for connect", ctx.Err())
		}
	}
	c := &connectCall{done: make(chan struct{})}
	s.connecting = c
	s.mu.Unlock()

	c.device, c.err = s.autoConnect(ctx)

	s.mu.Lock()
	s.connecting = nil
	s.mu.Unlock()
	close(c.done)
	return c.device, c.err
}

func (s *Session) autoConnect(ctx context.Context) (*transport.DeviceInfo, error) {
	id, err := s.store.Load()
	if err != nil {
		return nil, errs.Wrap(errs.KindUnknown, "auto_connect", "failed to read pairing", err)
	}
	if id == "" {
		logging.Debug("No paired keyboard; skipping auto-connect")
		return nil, nil
	}

	found := retry.Do(ctx, s.opts.AutoConnect, "discover", func(ctx context.Context) (transport.DeviceInfo, error) {
		devices, err := s.t.Enumerate(ctx)
		if err != nil {
			return transport.DeviceInfo{}, errs.NewTransportError("enumerate", err)
		}
		info, ok := transport.Find(devices, id)
		if !ok {
			return transport.DeviceInfo{}, &errs.Error{
				Kind:      errs.KindNotDiscoverable,
				Op:        "discover",
				Message:   fmt.Sprintf("keyboard %s is not attached", id),
				Retryable: true,
			}
		}
		return info, nil
	})
	info, err := found.Unwrap()
	if err != nil {
		if errs.KindOf(err) == errs.KindNotDiscoverable {
			logging.Info("Paired keyboard not found", zap.String("stable_id", string(id)))
			return nil, nil
		}
		return nil, err
	}

	h, err := s.open(ctx, info)
	if err != nil {
		return nil, err
	}
	if err := s.initialize(ctx, h); err != nil {
		return &info, err
	}
	return &info, nil
}

// Pair connects to the chosen keyboard and persists it as the one paired
// device, replacing any earlier pairing.
func (s *Session) Pair(ctx context.Context, info transport.DeviceInfo) (*transport.DeviceInfo, error) {
	s.mu.Lock()
	if s.guard.current != nil {
		s.mu.Unlock()
		return nil, errs.New(errs.KindBusy, "pair", "a polling-rate change or reset is still settling")
	}
	old := s.handle
	s.handle = nil
	s.device = nil
	s.base = nil
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	h, err := s.open(ctx, info)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(info); err != nil {
		return &info, errs.Wrap(errs.KindUnknown, "pair", "failed to save pairing", err)
	}
	logging.Info("Paired keyboard", zap.String("stable_id", string(info.StableID())), zap.String("name", info.Name()))
	if err := s.initialize(ctx, h); err != nil {
		return &info, err
	}
	return &info, nil
}

// Disconnect closes the handle. The pairing is kept.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.device = nil
	s.base = nil
	if op := s.guard.current; op != nil {
		s.endGuardLocked(op, errs.NewDisconnectedError(op.name))
	}
	s.setStateLocked(Disconnected, "Disconnected")
	s.mu.Unlock()
	if h != nil {
		return h.Close()
	}
	return nil
}

// Forget disconnects and clears the pairing.
func (s *Session) Forget() error {
	if err := s.Disconnect(); err != nil {
		logging.Debug("Close failed during forget", zap.Error(err))
	}
	return s.store.Clear()
}

// open transitions Connecting then Connected around Transport.Open.
func (s *Session) open(ctx context.Context, info transport.DeviceInfo) (transport.Handle, error) {
	s.mu.Lock()
	s.device = &info
	s.setStateLocked(Connecting, fmt.Sprintf("Connecting to %s...", info.Name()))
	s.mu.Unlock()

	h, err := s.t.Open(ctx, info)
	if err != nil {
		s.mu.Lock()
		if s.handle == nil {
			s.device = nil
			s.setStateLocked(Disconnected, fmt.Sprintf("Could not open %s", info.Name()))
		}
		s.mu.Unlock()
		return nil, errs.Wrap(errs.KindOf(err), "open", "failed to open keyboard", err)
	}

	s.mu.Lock()
	prev := s.handle
	s.handle = h
	s.device = &info
	s.base = nil
	s.setStateLocked(Connected, fmt.Sprintf("Connected to %s", info.Name()))
	s.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return h, nil
}

// initialize runs the readiness probe. When the probe is exhausted it
// closes the handle, opens a fresh one and probes again, up to InitRetries
// times.
func (s *Session) initialize(ctx context.Context, h transport.Handle) error {
	var lastErr error
	for attempt := 0; attempt <= s.opts.InitRetries; attempt++ {
		if attempt > 0 {
			next, err := s.reopen(ctx, h)
			if err != nil {
				lastErr = err
				break
			}
			h = next
		}
		if !s.setStateFor(h, Initializing, "Waiting for keyboard to become ready...") {
			return errs.NewDisconnectedError("initialize")
		}
		err := s.probe(ctx, h)
		if err == nil {
			return s.finishInit(ctx, h)
		}
		lastErr = err
		if ctx.Err() != nil || errs.IsDisconnected(err) {
			break
		}
		logging.Noise("Readiness probe exhausted", zap.Int("attempt", attempt+1), zap.Error(err))
		s.setStateFor(h, InitializationError, "Keyboard did not become ready")
	}
	err := errs.Wrap(errs.KindInitialization, "initialize", "keyboard did not become ready", lastErr)
	s.mu.Lock()
	if s.handle == h {
		s.setStateLocked(InitializationError, "Keyboard did not become ready. Reconnect it and try again.")
		s.settleReattachLocked(h, err)
	}
	s.mu.Unlock()
	return err
}

// reopen replaces h with a fresh handle to the same keyboard.
func (s *Session) reopen(ctx context.Context, h transport.Handle) (transport.Handle, error) {
	s.mu.Lock()
	if s.handle != h || s.device == nil {
		s.mu.Unlock()
		return nil, errs.NewDisconnectedError("initialize")
	}
	info := *s.device
	s.mu.Unlock()
	logging.Debug("Reopening keyboard before retrying initialization", zap.String("stable_id", string(info.StableID())))
	return s.open(ctx, info)
}

// probe polls a cheap idempotent read with a linearly growing delay.
func (s *Session) probe(ctx context.Context, h transport.Handle) error {
	var lastErr error
	for i := 1; i <= s.opts.ProbeAttempts; i++ {
		start := time.Now()
		_, err := h.GlobalTouchTravel(ctx)
		logging.LogTransportCall("probe", 0, time.Since(start), err)
		if err == nil {
			return nil
		}
		if errs.IsDisconnected(err) {
			return err
		}
		lastErr = err
		if i < s.opts.ProbeAttempts {
			if err := retry.Sleep(ctx, s.opts.ProbeStep*time.Duration(i)); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (s *Session) finishInit(ctx context.Context, h transport.Handle) error {
	base, err := retry.Do(ctx, s.opts.Reads, "get_base_info", h.BaseInfo).Unwrap()
	if err != nil {
		logging.Warn("Failed to read base info", zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != h {
		return errs.NewDisconnectedError("initialize")
	}
	if err == nil {
		s.base = &base
	}
	name := s.device.Name()
	if err == nil && base.KeyboardName != "" {
		name = base.KeyboardName
	}
	s.setStateLocked(Initialized, fmt.Sprintf("%s is ready", name))
	s.settleReattachLocked(h, nil)
	return nil
}

// run consumes transport events until the session closes.
func (s *Session) run() {
	defer s.wg.Done()
	events := s.t.Events()
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev transport.Event) {
	logging.Debug("Transport event",
		zap.String("kind", ev.Kind.String()),
		zap.String("stable_id", string(ev.Device.StableID())))
	switch ev.Kind {
	case transport.EventConnect:
		s.onConnect(ev.Device)
	case transport.EventDisconnect:
		s.onDisconnect(ev.Device)
	}
}

func (s *Session) onConnect(info transport.DeviceInfo) {
	id, err := s.store.Load()
	if err != nil || id == "" || info.StableID() != id {
		return
	}

	s.mu.Lock()
	if s.handle != nil {
		// Someone else reattached first.
		if s.state == Initialized {
			s.settleReattachLocked(s.handle, nil)
		}
		s.mu.Unlock()
		logging.Debug("Connect event ignored; keyboard already open")
		return
	}
	if op := s.guard.current; op != nil && op.stableID == id {
		if op.timer != nil {
			op.timer.Stop()
		}
		op.phase = guardReattaching
		token := op.token
		s.mu.Unlock()
		s.reattach(token)
		return
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.AutoConnect(s.ctx); err != nil {
			logging.Warn("Auto-connect after plug failed", zap.Error(err))
		}
	}()
}

// reattach runs auto-connect in the background for the risky op holding
// token, which must already be in the reattaching phase.
func (s *Session) reattach(token uint64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		dev, err := s.AutoConnect(s.ctx)
		s.finishReattach(token, dev, err)
	}()
}

func (s *Session) onDisconnect(info transport.DeviceInfo) {
	s.mu.Lock()
	if s.device == nil || info.StableID() != s.device.StableID() {
		s.mu.Unlock()
		return
	}
	h := s.handle
	s.handle = nil

	if op := s.guard.current; op != nil {
		// Expected: the keyboard re-enumerates after a risky write.
		op.dropped = true
		s.mu.Unlock()
		logging.Noise("Keyboard dropped off the bus", zap.String("op", op.name))
		if h != nil {
			_ = h.Close()
		}
		return
	}

	s.device = nil
	s.base = nil
	s.setStateLocked(Disconnected, "Keyboard disconnected. Plug it back in to reconnect.")
	s.mu.Unlock()
	if h != nil {
		_ = h.Close()
	}
}

// discoverable reports whether id currently enumerates. An enumeration
// failure counts as discoverable so the pairing is never dropped on a
// transient error.
func (s *Session) discoverable(id transport.StableID) bool {
	ctx, cancel := context.WithTimeout(s.ctx, enumerateTimeout)
	defer cancel()
	devices, err := s.t.Enumerate(ctx)
	if err != nil {
		logging.Noise("Enumeration failed during recovery check", zap.Error(err))
		return true
	}
	_, ok := transport.Find(devices, id)
	return ok
}
