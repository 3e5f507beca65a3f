package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func resetGate(t *testing.T, now func() time.Time) {
	t.Helper()
	gate.mu.Lock()
	gate.windows = make(map[uint64]time.Time)
	gate.now = now
	gate.mu.Unlock()
	t.Cleanup(func() {
		gate.mu.Lock()
		gate.windows = make(map[uint64]time.Time)
		gate.now = time.Now
		gate.mu.Unlock()
	})
}

func TestSuppressionTokenScoped(t *testing.T) {
	resetGate(t, time.Now)
	deadline := time.Now().Add(time.Minute)

	OpenSuppression(1, deadline)
	OpenSuppression(2, deadline)
	assert.True(t, Suppressed())

	// Closing the older token must not close the newer window.
	CloseSuppression(1)
	assert.True(t, Suppressed())

	CloseSuppression(2)
	assert.False(t, Suppressed())

	// Closing an unknown token is a no-op.
	CloseSuppression(42)
	assert.False(t, Suppressed())
}

func TestSuppressionExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	resetGate(t, func() time.Time { return now })

	OpenSuppression(7, now.Add(5*time.Second))
	assert.True(t, Suppressed())

	now = now.Add(6 * time.Second)
	assert.False(t, Suppressed())
}

func TestNoiseLevel(t *testing.T) {
	resetGate(t, time.Now)
	core, logs := observer.New(zapcore.DebugLevel)
	prev := GetLogger()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	Noise("device vanished")
	OpenSuppression(3, time.Now().Add(time.Minute))
	Noise("device vanished")
	CloseSuppression(3)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	}
}
