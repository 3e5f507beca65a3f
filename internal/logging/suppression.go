package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// gate tracks open suppression windows keyed by operation token. While any
// window is open, Noise downgrades to debug so that the disconnect/reconnect
// chatter of a polling-rate change or factory reset stays out of the way.
var gate = &noiseGate{
	windows: make(map[uint64]time.Time),
	now:     time.Now,
}

type noiseGate struct {
	mu      sync.Mutex
	windows map[uint64]time.Time
	now     func() time.Time
}

// OpenSuppression opens (or extends) the window owned by token until deadline.
func OpenSuppression(token uint64, deadline time.Time) {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	gate.windows[token] = deadline
	Debug("Suppression window opened", zap.Uint64("token", token), zap.Time("until", deadline))
}

// CloseSuppression closes the window owned by token. Windows owned by other
// tokens stay open.
func CloseSuppression(token uint64) {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if _, ok := gate.windows[token]; !ok {
		return
	}
	delete(gate.windows, token)
	Debug("Suppression window closed", zap.Uint64("token", token), zap.Int("remaining", len(gate.windows)))
}

// Suppressed reports whether any unexpired window is open. Expired windows
// are pruned.
func Suppressed() bool {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	now := gate.now()
	for token, deadline := range gate.windows {
		if !now.Before(deadline) {
			delete(gate.windows, token)
		}
	}
	return len(gate.windows) > 0
}

// Noise logs an expected-but-alarming event: a warning normally, a debug
// line while a suppression window is open.
func Noise(msg string, fields ...zap.Field) {
	if Suppressed() {
		Debug(msg, append(fields, zap.Bool("suppressed", true))...)
		return
	}
	Warn(msg, fields...)
}
