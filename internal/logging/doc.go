// Package logging provides structured logging for keytune.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the session, transport and sync layers.
//
// # Log Levels
//
//   - Debug: HID report hex dumps, per-call transport timing, retries
//   - Info: state transitions, pairing, sync phase boundaries
//   - Warn: degraded reads, unexpected disconnects
//   - Error: failures surfaced to the user
//
// Logging is silent unless a level is passed to Initialize or set through
// KEYTUNE_LOG_LEVEL.
//
// # Noise Suppression
//
// Changing the polling rate or factory-resetting a keyboard makes it drop off
// the bus and re-enumerate. The resulting disconnect and transport errors are
// expected, so the session opens a suppression window tagged with the
// operation's token:
//
//	logging.OpenSuppression(token, time.Now().Add(10*time.Second))
//	defer logging.CloseSuppression(token)
//
// Events logged through Noise are warnings normally and debug lines while any
// window is open. Windows are keyed by token, so closing a stale token never
// closes a window opened by a newer operation, and expired windows are pruned
// on every check.
//
// # Specialized Logging
//
//	logging.LogTransition("Connected", "Initializing", "Reading keyboard settings...")
//	logging.LogTransportCall("get_rt_travel", 0x04, elapsed, err)
//	logging.LogRawReport("out", report)
package logging
