package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeLevels(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })
	t.Setenv(LogLevelEnvVar, "")

	require.NoError(t, Initialize(""))
	assert.False(t, GetLogger().Core().Enabled(zapcore.ErrorLevel), "silent by default")

	require.NoError(t, Initialize("WARN"))
	assert.True(t, GetLogger().Core().Enabled(zapcore.WarnLevel))
	assert.False(t, GetLogger().Core().Enabled(zapcore.InfoLevel))

	t.Setenv(LogLevelEnvVar, "debug")
	require.NoError(t, InitializeFromEnv())
	assert.True(t, GetLogger().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, Initialize("loud"))
}

func TestLogTransportCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	LogTransportCall("get_rt_travel", 0x29, 3*time.Millisecond, nil)
	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, int64(0x29), entries[0].ContextMap()["key"])

	LogTransportCall("base_info", 0, time.Millisecond, assert.AnError)
	entries = logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.NotContains(t, entries[0].ContextMap(), "key")
}

func TestDumps(t *testing.T) {
	data := []byte{0x55, 'O', 'K', 0x00, 0x7f}
	assert.Equal(t, "554f4b007f", hexDump(data))
	assert.Equal(t, "UOK..", asciiDump(data))

	long := make([]byte, maxDump+10)
	assert.Len(t, hexDump(long), maxDump*2+3)
	assert.Len(t, asciiDump(long), maxDump)
}
