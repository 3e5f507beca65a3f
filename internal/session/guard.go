package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/snapshot"
	"github.com/muurk/keytune/internal/transport"
)

// MaxPollingRate is the highest polling-rate index (125 Hz).
const MaxPollingRate = 6

// PollingRateLabel returns the human label for a polling-rate index.
func PollingRateLabel(rate int) string { return snapshot.RateLabel(rate) }

type guardPhase int

const (
	guardIdle guardPhase = iota
	// guardAwaitReconnect waits for the keyboard to re-announce itself.
	guardAwaitReconnect
	// guardReattaching runs auto-connect after a matching connect event.
	guardReattaching
	// guardGrace gives a still-enumerable keyboard one more chance.
	guardGrace
)

func (p guardPhase) String() string {
	switch p {
	case guardAwaitReconnect:
		return "await_reconnect"
	case guardReattaching:
		return "reattaching"
	case guardGrace:
		return "grace"
	default:
		return "idle"
	}
}

// riskyOp tracks one risky write from the write until the keyboard is back
// or the session has been force-cleaned.
type riskyOp struct {
	token    uint64
	name     string
	stableID transport.StableID
	// handle is the one the write went through. Any other handle to the
	// same keyboard reaching Initialized means it came back.
	handle   transport.Handle
	phase    guardPhase
	dropped  bool
	writeErr error
	timer    *time.Timer
	done     chan struct{}
	err      error
}

// guard holds the active risky operation. Callbacks carry the token they
// were armed with and do nothing once it is no longer current.
type guard struct {
	generation uint64
	current    *riskyOp
}

// SetPollingRate changes the report rate (0 = 8000 Hz .. 6 = 125 Hz). The
// keyboard re-enumerates afterwards; the session re-attaches on its own.
func (s *Session) SetPollingRate(ctx context.Context, rate int) error {
	if rate < 0 || rate > MaxPollingRate {
		return errs.NewValidationError("set_polling_rate", "polling rate must be between 0 and 6")
	}
	return s.risky(ctx, "set_polling_rate", func(ctx context.Context, h transport.Handle) error {
		return h.SetPollingRate(ctx, rate)
	})
}

// FactoryReset restores factory settings. Like SetPollingRate it makes the
// keyboard drop off the bus.
func (s *Session) FactoryReset(ctx context.Context) error {
	return s.risky(ctx, "factory_reset", func(ctx context.Context, h transport.Handle) error {
		return h.FactoryReset(ctx)
	})
}

// RiskyActive reports whether a risky operation is still settling.
func (s *Session) RiskyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guard.current != nil
}

// WaitRisky blocks until the current risky operation settles and returns
// its outcome. It returns nil immediately when none is active.
func (s *Session) WaitRisky(ctx context.Context) error {
	s.mu.Lock()
	op := s.guard.current
	s.mu.Unlock()
	if op == nil {
		return nil
	}
	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return errs.Wrap(errs.KindTimeout, op.name, "gave up waiting for the keyboard", ctx.Err())
	}
}

func (s *Session) risky(ctx context.Context, name string, write func(context.Context, transport.Handle) error) error {
	s.mu.Lock()
	h := s.handle
	if h == nil || s.device == nil {
		s.mu.Unlock()
		return errs.NewNoDeviceError(name)
	}
	op := s.beginGuardLocked(name, s.device.StableID(), h)
	s.mu.Unlock()

	logging.Info("Starting risky operation", zap.String("op", name), zap.Uint64("token", op.token))
	err := write(ctx, h)
	if err != nil && !ambiguousWriteErr(err) {
		s.mu.Lock()
		s.endGuardLocked(op, err)
		s.mu.Unlock()
		return err
	}
	if err != nil {
		// The keyboard may have applied the change and reset before it
		// answered; the recovery deadline decides.
		logging.Noise("Risky write did not answer", zap.String("op", name), zap.Error(err))
	}

	s.mu.Lock()
	if s.guard.current == op && op.phase == guardAwaitReconnect {
		op.writeErr = err
		token := op.token
		op.timer = time.AfterFunc(s.opts.RiskyTimeout, func() { s.onRecoveryDeadline(token) })
	}
	s.mu.Unlock()
	return nil
}

// ambiguousWriteErr reports whether a failed risky write may still have
// reached the keyboard.
func ambiguousWriteErr(err error) bool {
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindUnsupported, errs.KindNoDevice:
		return false
	}
	return true
}

// beginGuardLocked supersedes any active guard with a fresh token and opens
// the noise window for it.
func (s *Session) beginGuardLocked(name string, id transport.StableID, h transport.Handle) *riskyOp {
	if prev := s.guard.current; prev != nil {
		s.endGuardLocked(prev, errs.New(errs.KindUnknown, prev.name, "superseded by "+name))
	}
	s.guard.generation++
	op := &riskyOp{
		token:    s.guard.generation,
		name:     name,
		stableID: id,
		handle:   h,
		phase:    guardAwaitReconnect,
		done:     make(chan struct{}),
	}
	s.guard.current = op
	window := s.opts.RiskyTimeout + s.opts.RiskyGrace + enumerateTimeout
	logging.OpenSuppression(op.token, time.Now().Add(window))
	return op
}

func (s *Session) endGuardLocked(op *riskyOp, err error) {
	if op.phase == guardIdle {
		return
	}
	if op.timer != nil {
		op.timer.Stop()
	}
	op.phase = guardIdle
	op.err = err
	close(op.done)
	if s.guard.current == op {
		s.guard.current = nil
	}
	logging.CloseSuppression(op.token)
	if err != nil {
		logging.Warn("Risky operation ended", zap.String("op", op.name), zap.Error(err))
	} else {
		logging.Info("Risky operation settled", zap.String("op", op.name))
	}
}

// activeLocked returns the current op if it still carries token and is in
// one of the given phases.
func (s *Session) activeLocked(token uint64, phases ...guardPhase) *riskyOp {
	op := s.guard.current
	if op == nil || op.token != token {
		return nil
	}
	for _, p := range phases {
		if op.phase == p {
			return op
		}
	}
	return nil
}

// onRecoveryDeadline fires RiskyTimeout after the write.
func (s *Session) onRecoveryDeadline(token uint64) {
	s.mu.Lock()
	op := s.activeLocked(token, guardAwaitReconnect)
	if op == nil {
		s.mu.Unlock()
		return
	}
	stale := false
	if h := s.handle; !op.dropped && h != nil {
		s.mu.Unlock()
		alive := s.linkAlive(h)
		s.mu.Lock()
		if op = s.activeLocked(token, guardAwaitReconnect); op == nil {
			s.mu.Unlock()
			return
		}
		if alive && s.handle == h {
			// The link never dropped.
			s.endGuardLocked(op, op.writeErr)
			s.mu.Unlock()
			return
		}
		// Re-enumerated between two hotplug polls; h points at nothing.
		if s.handle == h {
			s.handle = nil
			defer h.Close()
		}
		op.dropped = true
		stale = true
	}
	id := op.stableID
	s.mu.Unlock()

	present := s.discoverable(id)

	s.mu.Lock()
	if op = s.activeLocked(token, guardAwaitReconnect); op == nil {
		s.mu.Unlock()
		return
	}
	if present && stale {
		logging.Noise("Keyboard re-enumerated unnoticed; reattaching", zap.String("op", op.name))
		op.phase = guardReattaching
		s.mu.Unlock()
		s.reattach(token)
		return
	}
	if present {
		logging.Noise("Keyboard still enumerable; waiting a little longer", zap.String("op", op.name))
		op.phase = guardGrace
		op.timer = time.AfterFunc(s.opts.RiskyGrace, func() { s.onGraceExpired(token) })
		s.mu.Unlock()
		return
	}
	h := s.forceCleanLocked("Keyboard did not come back. Pair it again.")
	s.endGuardLocked(op, errs.ErrNotDiscoverable)
	s.mu.Unlock()
	s.afterForceClean(h, true)
}

// linkAlive runs the readiness probe against h, bounded like the
// discoverability check.
func (s *Session) linkAlive(h transport.Handle) bool {
	ctx, cancel := context.WithTimeout(s.ctx, enumerateTimeout)
	defer cancel()
	return s.probe(ctx, h) == nil
}

// onGraceExpired fires RiskyGrace after a deadline that found the keyboard
// still enumerable.
func (s *Session) onGraceExpired(token uint64) {
	s.mu.Lock()
	op := s.activeLocked(token, guardGrace)
	if op == nil {
		s.mu.Unlock()
		return
	}
	id := op.stableID
	s.mu.Unlock()

	present := s.discoverable(id)

	s.mu.Lock()
	if op = s.activeLocked(token, guardGrace); op == nil {
		s.mu.Unlock()
		return
	}
	var h transport.Handle
	if present {
		h = s.forceCleanLocked("Keyboard is attached but did not reconnect. Replug it to continue.")
		s.endGuardLocked(op, errs.New(errs.KindTimeout, op.name, "keyboard did not reconnect"))
	} else {
		h = s.forceCleanLocked("Keyboard did not come back. Pair it again.")
		s.endGuardLocked(op, errs.ErrNotDiscoverable)
	}
	s.mu.Unlock()
	s.afterForceClean(h, !present)
}

// settleReattachLocked ends the current guard when h, a handle other than
// the one the risky write used, has just finished initializing the guarded
// keyboard. It covers every path that reattaches, not only connect events.
func (s *Session) settleReattachLocked(h transport.Handle, err error) {
	op := s.guard.current
	if op == nil || op.handle == h || s.handle != h || s.device == nil || s.device.StableID() != op.stableID {
		return
	}
	s.endGuardLocked(op, err)
}

// finishReattach ends the guard once auto-connect after a matching connect
// event has run.
func (s *Session) finishReattach(token uint64, dev *transport.DeviceInfo, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.activeLocked(token, guardReattaching)
	if op == nil {
		return
	}
	switch {
	case err != nil:
		s.endGuardLocked(op, err)
	case dev == nil:
		op.phase = guardGrace
		op.timer = time.AfterFunc(s.opts.RiskyGrace, func() { s.onGraceExpired(token) })
	default:
		s.endGuardLocked(op, nil)
	}
}

// forceCleanLocked drops the session to Disconnected and returns the handle
// for the caller to close outside the lock.
func (s *Session) forceCleanLocked(message string) transport.Handle {
	h := s.handle
	s.handle = nil
	s.device = nil
	s.base = nil
	s.setStateLocked(Disconnected, message)
	return h
}

func (s *Session) afterForceClean(h transport.Handle, clearPairing bool) {
	if h != nil {
		_ = h.Close()
	}
	if !clearPairing {
		return
	}
	if err := s.store.Clear(); err != nil {
		logging.Error("Failed to clear pairing", zap.Error(err))
		return
	}
	logging.Info("Cleared pairing for a keyboard that did not come back")
}
