// Package simulator provides an in-memory keyboard that implements
// transport.Transport. It backs --simulate and the session, sync and server
// tests: latency, failures and hotplug behaviour are all scriptable.
package simulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/transport"
)

const (
	// DefaultVendorID and DefaultProductID identify the simulated keyboard
	DefaultVendorID  = 0x3554
	DefaultProductID = 0xFA09

	// DefaultKeyCount is the size of the simulated base layout
	DefaultKeyCount = 104

	// FirstKeyValue is the key value of the first simulated key. Values 0
	// and 1 are the "not remapped" sentinels, so keys start above them.
	FirstKeyValue = 4

	rowWidth = 16
)

// RiskyBehavior scripts what the keyboard does after a polling-rate change
// or factory reset.
type RiskyBehavior int

const (
	// RiskyStay keeps the link up.
	RiskyStay RiskyBehavior = iota
	// RiskyReconnect drops the link and re-announces after ReconnectDelay.
	RiskyReconnect
	// RiskyVanish drops the link and never comes back.
	RiskyVanish
	// RiskySilent drops the link, becomes enumerable again after
	// ReconnectDelay, but never emits a connect event.
	RiskySilent
	// RiskyRebind re-enumerates faster than a hotplug poll would notice:
	// open handles go stale and no event is emitted.
	RiskyRebind
)

// Options configures a simulated keyboard.
type Options struct {
	Serial         string
	ProductName    string
	KeyCount       int
	Latency        time.Duration
	Risky          RiskyBehavior
	ReconnectDelay time.Duration

	// Fail, if set, is consulted before every handle call. A non-nil return
	// fails that call.
	Fail func(op string, key int) error

	// ProbeFailures makes the first n GlobalTouchTravel reads fail.
	ProbeFailures int
}

type keyState struct {
	info     transport.KeyInfo
	bindings [4]int
	mode     transport.PerformanceMode
	single   float64
	rt       transport.TravelPair
	dead     transport.TravelPair
	axis     int
	advanced map[transport.AdvancedKind]transport.AdvancedConfig
	light    transport.RGB
	macro    []transport.MacroStep
}

// Keyboard is a simulated transport with a single keyboard attached.
type Keyboard struct {
	opts Options
	info transport.DeviceInfo

	mu           sync.Mutex
	attached     bool
	enumerable   bool
	generation   uint64
	keys         []*keyState
	byValue      map[int]*keyState
	globalTravel float64
	pollingRate  int
	topDeadBand  int
	lighting     map[transport.LightZone]transport.LightConfig
	probeFails   int
	calls        map[string]int
	closed       bool

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	events chan transport.Event
	timers []*time.Timer
}

// New creates a simulated keyboard in its factory state, attached.
func New(opts Options) *Keyboard {
	if opts.KeyCount <= 0 {
		opts.KeyCount = DefaultKeyCount
	}
	if opts.ProductName == "" {
		opts.ProductName = "Simulated HE Keyboard"
	}
	if opts.Serial == "" {
		opts.Serial = "SIM0001"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 50 * time.Millisecond
	}

	k := &Keyboard{
		opts: opts,
		info: transport.DeviceInfo{
			Path:        "sim://" + opts.Serial,
			VendorID:    DefaultVendorID,
			ProductID:   DefaultProductID,
			Serial:      opts.Serial,
			ProductName: opts.ProductName,
			Vendor:      "keytune",
			UsagePage:   0xFFA0,
			Usage:       1,
		},
		attached:   true,
		enumerable: true,
		generation: 1,
		probeFails: opts.ProbeFailures,
		calls:      make(map[string]int),
		events:     make(chan transport.Event, 32),
	}
	k.resetLocked()
	return k
}

func (k *Keyboard) resetLocked() {
	k.keys = make([]*keyState, 0, k.opts.KeyCount)
	k.byValue = make(map[int]*keyState, k.opts.KeyCount)
	for i := 0; i < k.opts.KeyCount; i++ {
		ks := &keyState{
			info: transport.KeyInfo{
				KeyValue: FirstKeyValue + i,
				Row:      i / rowWidth,
				Col:      i % rowWidth,
			},
			mode:     transport.PerformanceMode{TouchMode: transport.TouchModeGlobal},
			single:   2.0,
			rt:       transport.TravelPair{Press: 0.3, Release: 0.3},
			dead:     transport.TravelPair{Press: 0.2, Release: 0.2},
			advanced: make(map[transport.AdvancedKind]transport.AdvancedConfig),
			light:    transport.RGB{R: 255, G: 255, B: 255},
		}
		k.keys = append(k.keys, ks)
		k.byValue[ks.info.KeyValue] = ks
	}
	k.globalTravel = 2.0
	k.pollingRate = 3
	k.topDeadBand = 0
	k.lighting = map[transport.LightZone]transport.LightConfig{
		transport.ZoneMain: defaultLight(),
		transport.ZoneLogo: defaultLight(),
	}
}

func defaultLight() transport.LightConfig {
	return transport.LightConfig{
		Open:         true,
		StaticColors: []string{"#FF0000"},
		Luminance:    100,
		Speed:        50,
		Direction:    true,
	}
}

// Info returns the simulated keyboard's identity.
func (k *Keyboard) Info() transport.DeviceInfo { return k.info }

// Enumerate lists the keyboard while it is enumerable.
func (k *Keyboard) Enumerate(ctx context.Context) ([]transport.DeviceInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls["enumerate"]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !k.enumerable {
		return nil, nil
	}
	return []transport.DeviceInfo{k.info}, nil
}

// Open returns a handle bound to the current link generation.
func (k *Keyboard) Open(ctx context.Context, info transport.DeviceInfo) (transport.Handle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls["open"]++
	if info.StableID() != k.info.StableID() || !k.enumerable {
		return nil, errs.New(errs.KindNotDiscoverable, "open", "no such keyboard")
	}
	k.attached = true
	return &handle{kb: k, generation: k.generation}, nil
}

// Events returns the hotplug event stream.
func (k *Keyboard) Events() <-chan transport.Event { return k.events }

// Close stops pending reconnect timers and closes the event stream.
func (k *Keyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	for _, t := range k.timers {
		t.Stop()
	}
	close(k.events)
	return nil
}

// Unplug drops the link and emits a disconnect event.
func (k *Keyboard) Unplug() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.unplugLocked()
}

// Plug re-attaches the keyboard and emits a connect event.
func (k *Keyboard) Plug() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.enumerable = true
	k.emitLocked(transport.EventConnect)
}

// SetFail replaces the failure hook.
func (k *Keyboard) SetFail(fn func(op string, key int) error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.opts.Fail = fn
}

// Calls returns how often op was invoked.
func (k *Keyboard) Calls(op string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls[op]
}

// MaxInFlight returns the peak number of concurrent handle calls.
func (k *Keyboard) MaxInFlight() int { return int(k.maxInFlight.Load()) }

// ResetStats clears call counters and the in-flight peak.
func (k *Keyboard) ResetStats() {
	k.mu.Lock()
	k.calls = make(map[string]int)
	k.mu.Unlock()
	k.maxInFlight.Store(0)
}

// KeyValues returns every key value of the layout in order.
func (k *Keyboard) KeyValues() []int {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]int, len(k.keys))
	for i, ks := range k.keys {
		out[i] = ks.info.KeyValue
	}
	return out
}

// SetBinding stores a raw layer binding value, including the 0/1 sentinels.
func (k *Keyboard) SetBinding(key, layer, value int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ks, ok := k.byValue[key]; ok && layer >= 0 && layer < len(ks.bindings) {
		ks.bindings[layer] = value
	}
}

// SetMacroSteps stores a macro directly.
func (k *Keyboard) SetMacroSteps(key int, steps []transport.MacroStep) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ks, ok := k.byValue[key]; ok {
		ks.macro = append([]transport.MacroStep(nil), steps...)
	}
}

// SetAdvancedConfig stores an advanced key config directly.
func (k *Keyboard) SetAdvancedConfig(key int, kind transport.AdvancedKind, cfg transport.AdvancedConfig) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if ks, ok := k.byValue[key]; ok {
		ks.advanced[kind] = cfg
	}
}

// PollingRateValue returns the stored polling rate.
func (k *Keyboard) PollingRateValue() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pollingRate
}

func (k *Keyboard) unplugLocked() {
	if !k.attached && !k.enumerable {
		return
	}
	k.attached = false
	k.enumerable = false
	k.generation++
	k.emitLocked(transport.EventDisconnect)
}

func (k *Keyboard) emitLocked(kind transport.EventKind) {
	if k.closed {
		return
	}
	select {
	case k.events <- transport.Event{Kind: kind, Device: k.info}:
	default:
	}
}

// riskyLocked applies the scripted post-risky-op behaviour.
func (k *Keyboard) riskyLocked() {
	switch k.opts.Risky {
	case RiskyStay:
		return
	case RiskyVanish:
		k.unplugLocked()
	case RiskyRebind:
		k.generation++
	case RiskyReconnect, RiskySilent:
		k.unplugLocked()
		silent := k.opts.Risky == RiskySilent
		k.timers = append(k.timers, time.AfterFunc(k.opts.ReconnectDelay, func() {
			k.mu.Lock()
			defer k.mu.Unlock()
			k.enumerable = true
			if !silent {
				k.emitLocked(transport.EventConnect)
			}
		}))
	}
}

func (k *Keyboard) String() string {
	return fmt.Sprintf("simulator(%s, %d keys)", k.info.StableID(), k.opts.KeyCount)
}
