// Package config provides user configuration management for keytune.
//
// This package manages a YAML file holding tuning preferences (batch size,
// throttle, retry policies, risky-operation timeouts, log level), the one
// paired keyboard and remembered data about that keyboard. The file follows
// OS-specific conventions for its location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/keytune/config.yaml or $HOME/.config/keytune/config.yaml
//   - macOS: $HOME/.config/keytune/config.yaml
//   - Windows: %LOCALAPPDATA%\keytune\config.yaml
//
// # Example
//
//	version: 1
//	preferences:
//	  sync:
//	    batch_size: 16
//	    throttle: 100ms
//	  session:
//	    reads:
//	      max_attempts: 3
//	      delay: 500ms
//	pairing:
//	  stable_id: 13652-64009-A1B2C3
//
// # Usage Example
//
//	reg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := config.NewPairingFile("")
//	sess := session.New(t, store, opts)
//
// Writes are atomic (temporary file then rename) and serialized within the
// process.
package config
