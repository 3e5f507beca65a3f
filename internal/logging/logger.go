package logging

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevelEnvVar selects the log level when none is passed to Initialize.
// Valid values are debug, info, warn and error.
const LogLevelEnvVar = "KEYTUNE_LOG_LEVEL"

// maxDump bounds how much of a report is written to the log.
const maxDump = 256

var current atomic.Pointer[zap.Logger]

// Initialize builds the global logger. An empty level falls back to
// KEYTUNE_LOG_LEVEL; with neither set, logging stays silent.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		SetLogger(zap.NewNop())
		return nil
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: use debug, info, warn or error", level)
	}
	l, err := consoleConfig(lvl).Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	SetLogger(l)
	return nil
}

// consoleConfig writes coloured, human-readable lines to stderr so they
// never mix with snapshots streamed over stdout.
func consoleConfig(lvl zapcore.Level) zap.Config {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// InitializeFromEnv initializes the logger from KEYTUNE_LOG_LEVEL.
func InitializeFromEnv() error {
	return Initialize("")
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// GetLogger returns the global logger, silent until initialized.
func GetLogger() *zap.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	nop := zap.NewNop()
	if current.CompareAndSwap(nil, nop) {
		return nop
	}
	return current.Load()
}

func Info(msg string, fields ...zap.Field)  { GetLogger().Info(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { GetLogger().Debug(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { GetLogger().Error(msg, fields...) }

// LogTransition logs a connection state change.
func LogTransition(from, to, message string) {
	Info("Connection state changed",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("message", message),
	)
}

// LogTransportCall logs one HID request/response round trip. Failures go
// through Noise so they are quiet while a keyboard is re-enumerating.
func LogTransportCall(op string, key int, elapsed time.Duration, err error) {
	fields := []zap.Field{zap.String("op", op), zap.Duration("elapsed", elapsed)}
	if key != 0 {
		fields = append(fields, zap.Int("key", key))
	}
	if err != nil {
		Noise("Transport call failed", append(fields, zap.Error(err))...)
		return
	}
	Debug("Transport call", fields...)
}

// LogRawReport logs a raw feature report at debug level.
func LogRawReport(direction string, data []byte) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug("HID report",
		zap.String("direction", direction),
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) > maxDump {
		return hex.EncodeToString(data[:maxDump]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) > maxDump {
		data = data[:maxDump]
	}
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '.'
	}, string(data))
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = GetLogger().Sync()
}
