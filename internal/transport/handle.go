package transport

import (
	"context"
	"fmt"
)

// Touch modes reported by PerformanceMode.
const (
	TouchModeGlobal = "global"
	TouchModeSingle = "single"
	TouchModeRT     = "rt"
)

// Lighting zones.
type LightZone int

const (
	ZoneMain LightZone = iota
	ZoneLogo
)

func (z LightZone) String() string {
	if z == ZoneLogo {
		return "logo"
	}
	return "main"
}

// AdvancedKind enumerates the advanced key functions, in the priority order
// used to pick a key's active mode.
type AdvancedKind int

const (
	AdvancedNone AdvancedKind = iota
	AdvancedDKS
	AdvancedMPT
	AdvancedSOCD
	AdvancedMT
	AdvancedTGL
	AdvancedEND
)

// AdvancedKinds lists every advanced kind in priority order.
var AdvancedKinds = []AdvancedKind{AdvancedDKS, AdvancedMPT, AdvancedSOCD, AdvancedMT, AdvancedTGL, AdvancedEND}

func (k AdvancedKind) String() string {
	switch k {
	case AdvancedDKS:
		return "dks"
	case AdvancedMPT:
		return "mpt"
	case AdvancedSOCD:
		return "socd"
	case AdvancedMT:
		return "mt"
	case AdvancedTGL:
		return "tgl"
	case AdvancedEND:
		return "end"
	case AdvancedNone:
		return ""
	default:
		return fmt.Sprintf("advanced(%d)", int(k))
	}
}

// BaseInfo is the keyboard's identity block.
type BaseInfo struct {
	KeyboardName    string
	VendorID        uint16
	ProductID       uint16
	Usage           uint16
	UsagePage       uint16
	FirmwareVersion string
}

// KeyInfo is one key position of the base layout or a layer lookup.
type KeyInfo struct {
	KeyValue int
	Row      int
	Col      int
}

// LayerKey addresses one key on one function layer.
type LayerKey struct {
	Key   int
	Layer int
}

// KeyBinding remaps Key on Layer to Value.
type KeyBinding struct {
	Key   int
	Layer int
	Value int
}

// PerformanceMode is a key's trigger mode plus its advanced-mode code.
type PerformanceMode struct {
	TouchMode       string
	AdvancedKeyMode int
}

// TravelPair holds press/release distances in millimetres.
type TravelPair struct {
	Press   float64
	Release float64
}

// RGB is a per-key color.
type RGB struct {
	R, G, B uint8
}

// LightConfig is a lighting zone's effect configuration.
type LightConfig struct {
	Open          bool
	Mode          int
	StaticColors  []string
	SelectedColor int
	Luminance     int
	Speed         int
	SleepTime     int
	Direction     bool
	Dynamic       int
}

// AdvancedConfig is the configuration of one advanced key function. Fields
// not used by a kind stay zero.
type AdvancedConfig struct {
	Enabled bool      `json:"enabled"`
	Keys    []int     `json:"keys,omitempty"`
	Travels []float64 `json:"travels,omitempty"`
	Mode    int       `json:"mode,omitempty"`
	Time    int       `json:"time,omitempty"`
}

// MacroStep is one timed press or release in a macro.
type MacroStep struct {
	KeyCode int
	Pressed bool
	Delay   int // milliseconds since the previous step
}

// Handle is an open keyboard. Implementations must be safe for concurrent use;
// calls may be serialized internally.
type Handle interface {
	Info() DeviceInfo
	Close() error

	BaseInfo(ctx context.Context) (BaseInfo, error)
	BaseLayout(ctx context.Context) ([][]KeyInfo, error)
	LayoutKeyInfo(ctx context.Context, keys []LayerKey) ([]KeyInfo, error)
	SetKey(ctx context.Context, bindings []KeyBinding) error

	GlobalTouchTravel(ctx context.Context) (float64, error)
	SetGlobalTouchTravel(ctx context.Context, travel float64) error

	PerformanceMode(ctx context.Context, key int) (PerformanceMode, error)
	SetPerformanceMode(ctx context.Context, key int, mode PerformanceMode) error
	SingleTravel(ctx context.Context, key int) (float64, error)
	SetSingleTravel(ctx context.Context, key int, travel float64) error
	RtTravel(ctx context.Context, key int) (TravelPair, error)
	SetRtTravel(ctx context.Context, key int, travel TravelPair) error
	DeadZones(ctx context.Context, key int) (TravelPair, error)
	SetDeadZones(ctx context.Context, key int, zones TravelPair) error
	Axis(ctx context.Context, key int) (int, error)
	SetAxis(ctx context.Context, key int, axis int) error

	Advanced(ctx context.Context, key int, kind AdvancedKind) (AdvancedConfig, error)
	SetAdvanced(ctx context.Context, key int, kind AdvancedKind, cfg AdvancedConfig) error

	CustomLight(ctx context.Context, key int) (RGB, error)
	SetCustomLight(ctx context.Context, key int, color RGB) error
	Lighting(ctx context.Context, zone LightZone) (LightConfig, error)
	SetLighting(ctx context.Context, zone LightZone, cfg LightConfig) error

	Macro(ctx context.Context, key int) ([]MacroStep, error)
	SetMacro(ctx context.Context, key int, steps []MacroStep) error

	PollingRate(ctx context.Context) (int, error)
	SetPollingRate(ctx context.Context, rate int) error
	TopDeadBandSwitch(ctx context.Context) (int, error)
	SetTopDeadBandSwitch(ctx context.Context, value int) error
	FactoryReset(ctx context.Context) error
}
