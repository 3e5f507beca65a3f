package snapshot

import (
	"encoding/json"

	"github.com/muurk/keytune/internal/transport"
)

// Layers is the number of function layers a key carries bindings for.
const Layers = 4

// Defaults applied to the system block when a read fails.
const (
	DefaultRateOfReturn      = 3
	DefaultTopDeadBandSwitch = 0
)

// Snapshot is the complete exported configuration of one keyboard.
type Snapshot struct {
	System    System       `json:"system"`
	Light     Lighting     `json:"light"`
	Keyboards []Key        `json:"keyboards"`
	Macro     MacroLibrary `json:"macro"`

	Version         string `json:"version,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
}

// System holds the global keyboard settings.
type System struct {
	RateOfReturn      int    `json:"rateOfReturn"` // polling-rate index 0..6
	TopDeadBandSwitch int    `json:"topDeadBandSwitch"`
	ProductID         uint16 `json:"productId"`
	VendorID          uint16 `json:"vendorId"`
	KeyboardName      string `json:"keyboardName"`
	Usage             uint16 `json:"usage"`
	UsagePage         uint16 `json:"usagePage"`
}

// Lighting holds the global lighting zones.
type Lighting struct {
	Main  LightConfig `json:"main"`
	Logo  LightConfig `json:"logo"`
	Other LightConfig `json:"other"`
}

// LightConfig is one lighting zone.
type LightConfig struct {
	Open              bool     `json:"open"`
	Mode              int      `json:"mode"`
	StaticColors      []string `json:"staticColors"`
	SelectStaticColor int      `json:"selectStaticColor"`
	Luminance         int      `json:"luminance"`
	Speed             int      `json:"speed"`
	SleepTime         int      `json:"sleepTime"`
	Direction         bool     `json:"direction"`
	Dynamic           int      `json:"dynamic"`
}

// DefaultLightConfig returns the zone used when a lighting read fails.
func DefaultLightConfig() LightConfig {
	return LightConfig{
		Open:         true,
		StaticColors: []string{"#FF0000"},
		Luminance:    100,
		Speed:        50,
		Direction:    true,
	}
}

// LightFromTransport converts a device lighting zone.
func LightFromTransport(c transport.LightConfig) LightConfig {
	colors := append([]string(nil), c.StaticColors...)
	if len(colors) == 0 {
		colors = []string{"#FF0000"}
	}
	return LightConfig{
		Open:              c.Open,
		Mode:              c.Mode,
		StaticColors:      colors,
		SelectStaticColor: c.SelectedColor,
		Luminance:         c.Luminance,
		Speed:             c.Speed,
		SleepTime:         c.SleepTime,
		Direction:         c.Direction,
		Dynamic:           c.Dynamic,
	}
}

// Transport converts the zone back for a write.
func (l LightConfig) Transport() transport.LightConfig {
	return transport.LightConfig{
		Open:          l.Open,
		Mode:          l.Mode,
		StaticColors:  append([]string(nil), l.StaticColors...),
		SelectedColor: l.SelectStaticColor,
		Luminance:     l.Luminance,
		Speed:         l.Speed,
		SleepTime:     l.SleepTime,
		Direction:     l.Direction,
		Dynamic:       l.Dynamic,
	}
}

// Key is the snapshot of one physical key.
type Key struct {
	Col          int          `json:"col"`
	Row          int          `json:"row"`
	KeyValue     int          `json:"keyValue"`
	Performance  Performance  `json:"performance"`
	AdvancedKeys AdvancedKeys `json:"advancedKeys"`
	CustomKeys   CustomKeys   `json:"customKeys"`
	Light        KeyLight     `json:"light"`
}

// NewKey returns a key seeded with defaults for every block.
func NewKey(info transport.KeyInfo) Key {
	return Key{
		Col:         info.Col,
		Row:         info.Row,
		KeyValue:    info.KeyValue,
		Performance: DefaultPerformance(),
		Light:       KeyLight{Custom: CustomColor{R: 255, G: 255, B: 255, Key: info.KeyValue}},
	}
}

// Performance holds the travel and trigger settings of a key. Travel values
// are millimetres.
type Performance struct {
	IsGlobalTriggering    bool    `json:"isGlobalTriggering"`
	GlobalTriggeringValue float64 `json:"globalTriggeringValue"`
	IsRt                  bool    `json:"isRt"`
	IsSingle              bool    `json:"isSingle"`
	SingleTriggeringValue float64 `json:"singleTriggeringValue"`
	RtPressValue          float64 `json:"rtPressValue"`
	RtReleaseValue        float64 `json:"rtReleaseValue"`
	AxisID                int     `json:"axisID"`
	DeadBandPressValue    float64 `json:"deadBandPressValue"`
	DeadBandReleaseValue  float64 `json:"deadBandReleaseValue"`
	AdvancedKeyMode       int     `json:"advancedKeyMode"`
}

// DefaultPerformance is the block a key keeps when its reads fail.
func DefaultPerformance() Performance {
	return Performance{IsGlobalTriggering: true}
}

// TouchMode returns the transport touch mode the flags describe.
func (p Performance) TouchMode() string {
	switch {
	case p.IsRt:
		return transport.TouchModeRT
	case p.IsSingle:
		return transport.TouchModeSingle
	default:
		return transport.TouchModeGlobal
	}
}

// SetMode applies a device performance mode to the flags.
func (p *Performance) SetMode(m transport.PerformanceMode) {
	p.IsGlobalTriggering = m.TouchMode == transport.TouchModeGlobal || m.TouchMode == ""
	p.IsSingle = m.TouchMode == transport.TouchModeSingle
	p.IsRt = m.TouchMode == transport.TouchModeRT
	p.AdvancedKeyMode = m.AdvancedKeyMode
}

// Mode returns the device performance mode of the block.
func (p Performance) Mode() transport.PerformanceMode {
	return transport.PerformanceMode{TouchMode: p.TouchMode(), AdvancedKeyMode: p.AdvancedKeyMode}
}

// AdvancedKeys retains every advanced sub-config read from the key, active
// or not, plus the resolved active mode.
type AdvancedKeys struct {
	AdvancedType string                    `json:"advancedType,omitempty"`
	Value        int                       `json:"value"`
	DKS          *transport.AdvancedConfig `json:"dks,omitempty"`
	MPT          *transport.AdvancedConfig `json:"mpt,omitempty"`
	SOCD         *transport.AdvancedConfig `json:"socd,omitempty"`
	MT           *transport.AdvancedConfig `json:"mt,omitempty"`
	TGL          *transport.AdvancedConfig `json:"tgl,omitempty"`
	END          *transport.AdvancedConfig `json:"end,omitempty"`
}

func (a *AdvancedKeys) slot(kind transport.AdvancedKind) **transport.AdvancedConfig {
	switch kind {
	case transport.AdvancedDKS:
		return &a.DKS
	case transport.AdvancedMPT:
		return &a.MPT
	case transport.AdvancedSOCD:
		return &a.SOCD
	case transport.AdvancedMT:
		return &a.MT
	case transport.AdvancedTGL:
		return &a.TGL
	case transport.AdvancedEND:
		return &a.END
	}
	return nil
}

// Get returns the sub-config of kind, or nil.
func (a AdvancedKeys) Get(kind transport.AdvancedKind) *transport.AdvancedConfig {
	if p := a.slot(kind); p != nil {
		return *p
	}
	return nil
}

// Set stores the sub-config of kind.
func (a *AdvancedKeys) Set(kind transport.AdvancedKind, cfg *transport.AdvancedConfig) {
	if p := a.slot(kind); p != nil {
		*p = cfg
	}
}

// ResolveActive picks the active advanced mode: the first enabled kind in
// transport.AdvancedKinds order wins. It returns AdvancedNone when nothing is
// enabled.
func (a AdvancedKeys) ResolveActive() transport.AdvancedKind {
	for _, kind := range transport.AdvancedKinds {
		if cfg := a.Get(kind); cfg != nil && cfg.Enabled {
			return kind
		}
	}
	return transport.AdvancedNone
}

// Resolve sets AdvancedType and Value from the enabled sub-configs.
func (a *AdvancedKeys) Resolve() {
	kind := a.ResolveActive()
	if kind == transport.AdvancedNone {
		a.AdvancedType = ""
		a.Value = 0
		return
	}
	a.AdvancedType = kind.String()
	a.Value = int(kind)
}

// Binding is one non-default layer remap.
type Binding struct {
	KeyValue     int `json:"keyValue"`
	BindKeyValue int `json:"bindKeyValue"`
}

// BindingFromRaw turns a raw layer value into a binding. The sentinels 0
// and 1, and a key bound to itself, mean "not remapped" and give nil.
func BindingFromRaw(key, value int) *Binding {
	if value == 0 || value == 1 || value == key {
		return nil
	}
	return &Binding{KeyValue: key, BindKeyValue: value}
}

// CustomKeys holds the per-layer remaps. A nil layer is not remapped.
type CustomKeys struct {
	Fn0 *Binding `json:"fn0"`
	Fn1 *Binding `json:"fn1"`
	Fn2 *Binding `json:"fn2"`
	Fn3 *Binding `json:"fn3"`
}

// Layer returns the binding of layer 0..3.
func (c CustomKeys) Layer(layer int) *Binding {
	switch layer {
	case 0:
		return c.Fn0
	case 1:
		return c.Fn1
	case 2:
		return c.Fn2
	case 3:
		return c.Fn3
	}
	return nil
}

// SetLayer stores the binding of layer 0..3.
func (c *CustomKeys) SetLayer(layer int, b *Binding) {
	switch layer {
	case 0:
		c.Fn0 = b
	case 1:
		c.Fn1 = b
	case 2:
		c.Fn2 = b
	case 3:
		c.Fn3 = b
	}
}

// KeyLight holds the per-key color.
type KeyLight struct {
	Custom CustomColor `json:"custom"`
}

// CustomColor is the per-key RGB color.
type CustomColor struct {
	R   uint8 `json:"R"`
	G   uint8 `json:"G"`
	B   uint8 `json:"B"`
	Key int   `json:"key"`
}

// RGB returns the color for a write.
func (c CustomColor) RGB() transport.RGB {
	return transport.RGB{R: c.R, G: c.G, B: c.B}
}

// MacroLibrary holds the keys with recorded macros.
type MacroLibrary struct {
	List   []Macro           `json:"list"`
	V2List []json.RawMessage `json:"v2list"`
}

// Macro is the recorded macro of one key.
type Macro struct {
	Date string      `json:"date"`
	ID   int         `json:"id"`
	Name string      `json:"name"`
	Key  int         `json:"key"`
	Step []MacroStep `json:"step"`
}

// MacroStep is one timed press or release.
type MacroStep struct {
	ID       int `json:"id"`
	KeyValue int `json:"keyValue"`
	Status   int `json:"status"` // 1 press, 0 release
	Delay    int `json:"delay"`  // milliseconds since the previous step
}

// StepsFromTransport converts device macro steps.
func StepsFromTransport(steps []transport.MacroStep) []MacroStep {
	out := make([]MacroStep, len(steps))
	for i, s := range steps {
		status := 0
		if s.Pressed {
			status = 1
		}
		out[i] = MacroStep{ID: i, KeyValue: s.KeyCode, Status: status, Delay: s.Delay}
	}
	return out
}

// TransportSteps converts the macro back for a write.
func (m Macro) TransportSteps() []transport.MacroStep {
	out := make([]transport.MacroStep, len(m.Step))
	for i, s := range m.Step {
		out[i] = transport.MacroStep{KeyCode: s.KeyValue, Pressed: s.Status == 1, Delay: s.Delay}
	}
	return out
}

// New returns an empty snapshot with every global block defaulted.
func New() *Snapshot {
	return &Snapshot{
		System: System{RateOfReturn: DefaultRateOfReturn, TopDeadBandSwitch: DefaultTopDeadBandSwitch},
		Light: Lighting{
			Main:  DefaultLightConfig(),
			Logo:  DefaultLightConfig(),
			Other: DefaultLightConfig(),
		},
		Keyboards: []Key{},
		Macro:     MacroLibrary{List: []Macro{}, V2List: []json.RawMessage{}},
	}
}

// FindKey returns the entry for keyValue.
func (s *Snapshot) FindKey(keyValue int) (*Key, bool) {
	for i := range s.Keyboards {
		if s.Keyboards[i].KeyValue == keyValue {
			return &s.Keyboards[i], true
		}
	}
	return nil, false
}
