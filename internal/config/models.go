package config

import (
	"time"

	"github.com/muurk/keytune/internal/retry"
	"github.com/muurk/keytune/internal/transport"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// Registry represents the entire user configuration file.
type Registry struct {
	Version     int                `yaml:"version"`
	Preferences *Preferences       `yaml:"preferences,omitempty"`
	Pairing     *Pairing           `yaml:"pairing,omitempty"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by StableID
}

// Pairing holds the one paired keyboard.
type Pairing struct {
	StableID string    `yaml:"stable_id"`
	PairedAt time.Time `yaml:"paired_at"`
}

// Device represents what keytune remembers about a keyboard between runs.
type Device struct {
	Name      string    `yaml:"name,omitempty"`
	VendorID  uint16    `yaml:"vendor_id"`
	ProductID uint16    `yaml:"product_id"`
	Serial    string    `yaml:"serial,omitempty"`
	Nickname  string    `yaml:"nickname,omitempty"`
	LastSeen  time.Time `yaml:"last_seen,omitempty"`
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	LogLevel string        `yaml:"log_level,omitempty"` // debug, info, warn or error
	Session  *SessionPrefs `yaml:"session,omitempty"`
	Sync     *SyncPrefs    `yaml:"sync,omitempty"`
	Bridge   *BridgePrefs  `yaml:"bridge,omitempty"`
}

// SessionPrefs tunes connection handling.
type SessionPrefs struct {
	AutoConnect   retry.Policy  `yaml:"auto_connect"`   // Discovery attempts when re-attaching
	Reads         retry.Policy  `yaml:"reads"`          // Idempotent single-value reads
	ProbeAttempts int           `yaml:"probe_attempts"` // Readiness probe attempts
	ProbeStep     time.Duration `yaml:"probe_step"`     // Probe delay grows by this each attempt
	InitRetries   int           `yaml:"init_retries"`   // Whole-initialization retries after probe exhaustion
	RiskyTimeout  time.Duration `yaml:"risky_timeout"`  // Wait for re-announce after a risky write
	RiskyGrace    time.Duration `yaml:"risky_grace"`    // Extra wait when still discoverable
}

// SyncPrefs tunes bulk export/import.
type SyncPrefs struct {
	BatchSize  int           `yaml:"batch_size"`  // Concurrent per-key calls
	Throttle   time.Duration `yaml:"throttle"`    // Pause between batches
	PhasePause time.Duration `yaml:"phase_pause"` // Settle pause between phases
	Layers     int           `yaml:"layers"`      // Function layers to export
	Fields     retry.Policy  `yaml:"fields"`      // Per-field read retries
}

// BridgePrefs configures `keytune serve`.
type BridgePrefs struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Advertise bool   `yaml:"advertise"` // Announce over mDNS
}

// DefaultPreferences returns the built-in defaults.
func DefaultPreferences() *Preferences {
	return &Preferences{
		Session: &SessionPrefs{
			AutoConnect:   retry.DefaultDiscoveryPolicy(),
			Reads:         retry.DefaultReadPolicy(),
			ProbeAttempts: 5,
			ProbeStep:     200 * time.Millisecond,
			InitRetries:   1,
			RiskyTimeout:  5 * time.Second,
			RiskyGrace:    3 * time.Second,
		},
		Sync: &SyncPrefs{
			BatchSize:  16,
			Throttle:   100 * time.Millisecond,
			PhasePause: 100 * time.Millisecond,
			Layers:     4,
			Fields:     retry.DefaultFieldPolicy(),
		},
		Bridge: &BridgePrefs{
			Host:      "127.0.0.1",
			Port:      7878,
			Advertise: true,
		},
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Preferences: DefaultPreferences(),
		Devices:     make(map[string]*Device),
	}
}

// fillDefaults replaces missing sections with defaults so callers never see
// nil preference blocks.
func (r *Registry) fillDefaults() {
	def := DefaultPreferences()
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	if r.Preferences == nil {
		r.Preferences = def
		return
	}
	if r.Preferences.Session == nil {
		r.Preferences.Session = def.Session
	}
	if r.Preferences.Sync == nil {
		r.Preferences.Sync = def.Sync
	}
	if r.Preferences.Bridge == nil {
		r.Preferences.Bridge = def.Bridge
	}
}

// GetDevice retrieves remembered device data by StableID.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(id transport.StableID) *Device {
	return r.Devices[string(id)]
}

// RememberDevice records info under its StableID and updates LastSeen.
func (r *Registry) RememberDevice(info transport.DeviceInfo) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	id := string(info.StableID())
	device, ok := r.Devices[id]
	if !ok {
		device = &Device{}
		r.Devices[id] = device
	}
	device.Name = info.Name()
	device.VendorID = info.VendorID
	device.ProductID = info.ProductID
	device.Serial = info.Serial
	device.LastSeen = time.Now()
	return device
}

// SetDeviceNickname sets a user-friendly nickname for a remembered device.
func (r *Registry) SetDeviceNickname(id transport.StableID, nickname string) bool {
	device := r.GetDevice(id)
	if device == nil {
		return false
	}
	device.Nickname = nickname
	return true
}

// ForgetOthers removes remembered data for every device except keep.
func (r *Registry) ForgetOthers(keep transport.StableID) int {
	removed := 0
	for id := range r.Devices {
		if id != string(keep) {
			delete(r.Devices, id)
			removed++
		}
	}
	return removed
}
