package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/muurk/keytune/internal/transport"
)

// Travel distances are carried as uint16 hundredths of a millimetre.
const travelScale = 100

// Page sizes for multi-report transfers
const (
	layoutEntrySize   = 4 // keyValue(2) + row + col
	layoutPageHeader  = 3 // total(2) + count
	LayoutPageEntries = (MaxDataSize - layoutPageHeader) / layoutEntrySize

	macroStepSize    = 5 // keyCode(2) + pressed + delay(2)
	macroPageHeader  = 2 // total + count
	MacroPageEntries = (MaxDataSize - macroPageHeader) / macroStepSize

	maxAdvancedItems = 4
	maxStaticColors  = 8
)

func need(data []byte, n int, what string) error {
	if len(data) < n {
		return fmt.Errorf("%s: need %d data bytes, got %d", what, n, len(data))
	}
	return nil
}

// EncodeTravel converts millimetres to the wire representation.
func EncodeTravel(mm float64) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(math.Round(mm*travelScale)))
	return b
}

// DecodeTravel converts the wire representation to millimetres.
func DecodeTravel(data []byte) (float64, error) {
	if err := need(data, 2, "travel"); err != nil {
		return 0, err
	}
	return float64(binary.LittleEndian.Uint16(data)) / travelScale, nil
}

// EncodeTravelPair encodes press then release travel.
func EncodeTravelPair(p transport.TravelPair) []byte {
	return append(EncodeTravel(p.Press), EncodeTravel(p.Release)...)
}

// DecodeTravelPair decodes press then release travel.
func DecodeTravelPair(data []byte) (transport.TravelPair, error) {
	if err := need(data, 4, "travel pair"); err != nil {
		return transport.TravelPair{}, err
	}
	press, _ := DecodeTravel(data[0:2])
	release, _ := DecodeTravel(data[2:4])
	return transport.TravelPair{Press: press, Release: release}, nil
}

var touchModes = []string{transport.TouchModeGlobal, transport.TouchModeSingle, transport.TouchModeRT}

// EncodePerformanceMode encodes the touch mode index and advanced-mode code.
func EncodePerformanceMode(m transport.PerformanceMode) ([]byte, error) {
	for i, name := range touchModes {
		if name == m.TouchMode {
			return []byte{byte(i), byte(m.AdvancedKeyMode)}, nil
		}
	}
	return nil, fmt.Errorf("unknown touch mode %q", m.TouchMode)
}

// DecodePerformanceMode decodes a performance-mode payload.
func DecodePerformanceMode(data []byte) (transport.PerformanceMode, error) {
	if err := need(data, 2, "performance mode"); err != nil {
		return transport.PerformanceMode{}, err
	}
	if int(data[0]) >= len(touchModes) {
		return transport.PerformanceMode{}, fmt.Errorf("unknown touch mode index %d", data[0])
	}
	return transport.PerformanceMode{TouchMode: touchModes[data[0]], AdvancedKeyMode: int(data[1])}, nil
}

// EncodeUint16 encodes a small integer setting.
func EncodeUint16(v int) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

// DecodeUint16 decodes a small integer setting.
func DecodeUint16(data []byte) (int, error) {
	if err := need(data, 2, "uint16"); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint16(data)), nil
}

// DecodeBaseInfo decodes the identity block:
// vid(2) pid(2) usage(2) usagePage(2) fw(3) nameLen(1) name.
func DecodeBaseInfo(data []byte) (transport.BaseInfo, error) {
	if err := need(data, 12, "base info"); err != nil {
		return transport.BaseInfo{}, err
	}
	nameLen := int(data[11])
	if err := need(data, 12+nameLen, "base info name"); err != nil {
		return transport.BaseInfo{}, err
	}
	return transport.BaseInfo{
		VendorID:        binary.LittleEndian.Uint16(data[0:2]),
		ProductID:       binary.LittleEndian.Uint16(data[2:4]),
		Usage:           binary.LittleEndian.Uint16(data[4:6]),
		UsagePage:       binary.LittleEndian.Uint16(data[6:8]),
		FirmwareVersion: fmt.Sprintf("%d.%d.%d", data[8], data[9], data[10]),
		KeyboardName:    strings.TrimRight(string(data[12:12+nameLen]), "\x00"),
	}, nil
}

// DecodeLayoutPage decodes one page of the base layout and returns the total
// key count announced by the keyboard.
func DecodeLayoutPage(data []byte) (total int, keys []transport.KeyInfo, err error) {
	if err := need(data, layoutPageHeader, "layout page"); err != nil {
		return 0, nil, err
	}
	total = int(binary.LittleEndian.Uint16(data[0:2]))
	count := int(data[2])
	if err := need(data, layoutPageHeader+count*layoutEntrySize, "layout page entries"); err != nil {
		return 0, nil, err
	}
	for i := 0; i < count; i++ {
		off := layoutPageHeader + i*layoutEntrySize
		keys = append(keys, transport.KeyInfo{
			KeyValue: int(binary.LittleEndian.Uint16(data[off : off+2])),
			Row:      int(data[off+2]),
			Col:      int(data[off+3]),
		})
	}
	return total, keys, nil
}

// EncodeRGB encodes a per-key color.
func EncodeRGB(c transport.RGB) []byte {
	return []byte{c.R, c.G, c.B}
}

// DecodeRGB decodes a per-key color.
func DecodeRGB(data []byte) (transport.RGB, error) {
	if err := need(data, 3, "rgb"); err != nil {
		return transport.RGB{}, err
	}
	return transport.RGB{R: data[0], G: data[1], B: data[2]}, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// EncodeLighting encodes a zone config:
// open mode selected luminance speed sleep direction dynamic nColors colors(3 each).
func EncodeLighting(cfg transport.LightConfig) ([]byte, error) {
	if len(cfg.StaticColors) > maxStaticColors {
		return nil, fmt.Errorf("too many static colors: %d (max %d)", len(cfg.StaticColors), maxStaticColors)
	}
	out := []byte{
		boolByte(cfg.Open), byte(cfg.Mode), byte(cfg.SelectedColor), byte(cfg.Luminance),
		byte(cfg.Speed), byte(cfg.SleepTime), boolByte(cfg.Direction), byte(cfg.Dynamic),
		byte(len(cfg.StaticColors)),
	}
	for _, hex := range cfg.StaticColors {
		c, err := ParseHexColor(hex)
		if err != nil {
			return nil, err
		}
		out = append(out, c.R, c.G, c.B)
	}
	return out, nil
}

// DecodeLighting decodes a zone config.
func DecodeLighting(data []byte) (transport.LightConfig, error) {
	if err := need(data, 9, "lighting"); err != nil {
		return transport.LightConfig{}, err
	}
	n := int(data[8])
	if err := need(data, 9+n*3, "lighting colors"); err != nil {
		return transport.LightConfig{}, err
	}
	cfg := transport.LightConfig{
		Open:          data[0] != 0,
		Mode:          int(data[1]),
		SelectedColor: int(data[2]),
		Luminance:     int(data[3]),
		Speed:         int(data[4]),
		SleepTime:     int(data[5]),
		Direction:     data[6] != 0,
		Dynamic:       int(data[7]),
	}
	for i := 0; i < n; i++ {
		off := 9 + i*3
		cfg.StaticColors = append(cfg.StaticColors, FormatHexColor(transport.RGB{R: data[off], G: data[off+1], B: data[off+2]}))
	}
	return cfg, nil
}

// ParseHexColor parses "#RRGGBB".
func ParseHexColor(s string) (transport.RGB, error) {
	var c transport.RGB
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q", s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

// FormatHexColor formats "#RRGGBB".
func FormatHexColor(c transport.RGB) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// EncodeAdvanced encodes an advanced key config:
// enabled mode time(2) nKeys keys(2 each) nTravels travels(2 each).
func EncodeAdvanced(cfg transport.AdvancedConfig) ([]byte, error) {
	if len(cfg.Keys) > maxAdvancedItems || len(cfg.Travels) > maxAdvancedItems {
		return nil, fmt.Errorf("advanced config holds at most %d keys and %d travels", maxAdvancedItems, maxAdvancedItems)
	}
	out := []byte{boolByte(cfg.Enabled), byte(cfg.Mode)}
	out = append(out, EncodeUint16(cfg.Time)...)
	out = append(out, byte(len(cfg.Keys)))
	for _, k := range cfg.Keys {
		out = append(out, EncodeUint16(k)...)
	}
	out = append(out, byte(len(cfg.Travels)))
	for _, t := range cfg.Travels {
		out = append(out, EncodeTravel(t)...)
	}
	return out, nil
}

// DecodeAdvanced decodes an advanced key config.
func DecodeAdvanced(data []byte) (transport.AdvancedConfig, error) {
	if err := need(data, 5, "advanced"); err != nil {
		return transport.AdvancedConfig{}, err
	}
	cfg := transport.AdvancedConfig{
		Enabled: data[0] != 0,
		Mode:    int(data[1]),
		Time:    int(binary.LittleEndian.Uint16(data[2:4])),
	}
	off := 4
	nKeys := int(data[off])
	off++
	if err := need(data, off+nKeys*2+1, "advanced keys"); err != nil {
		return transport.AdvancedConfig{}, err
	}
	for i := 0; i < nKeys; i++ {
		cfg.Keys = append(cfg.Keys, int(binary.LittleEndian.Uint16(data[off:off+2])))
		off += 2
	}
	nTravels := int(data[off])
	off++
	if err := need(data, off+nTravels*2, "advanced travels"); err != nil {
		return transport.AdvancedConfig{}, err
	}
	for i := 0; i < nTravels; i++ {
		t, _ := DecodeTravel(data[off : off+2])
		cfg.Travels = append(cfg.Travels, t)
		off += 2
	}
	return cfg, nil
}

// EncodeMacroPage encodes one page of macro steps.
func EncodeMacroPage(total int, steps []transport.MacroStep) ([]byte, error) {
	if len(steps) > MacroPageEntries {
		return nil, fmt.Errorf("macro page holds at most %d steps", MacroPageEntries)
	}
	out := []byte{byte(total), byte(len(steps))}
	for _, s := range steps {
		out = append(out, EncodeUint16(s.KeyCode)...)
		out = append(out, boolByte(s.Pressed))
		out = append(out, EncodeUint16(s.Delay)...)
	}
	return out, nil
}

// DecodeMacroPage decodes one page of macro steps.
func DecodeMacroPage(data []byte) (total int, steps []transport.MacroStep, err error) {
	if err := need(data, macroPageHeader, "macro page"); err != nil {
		return 0, nil, err
	}
	total = int(data[0])
	count := int(data[1])
	if err := need(data, macroPageHeader+count*macroStepSize, "macro steps"); err != nil {
		return 0, nil, err
	}
	for i := 0; i < count; i++ {
		off := macroPageHeader + i*macroStepSize
		steps = append(steps, transport.MacroStep{
			KeyCode: int(binary.LittleEndian.Uint16(data[off : off+2])),
			Pressed: data[off+2] != 0,
			Delay:   int(binary.LittleEndian.Uint16(data[off+3 : off+5])),
		})
	}
	return total, steps, nil
}

// EncodeBaseInfo is the inverse of DecodeBaseInfo. The firmware version must
// be "major.minor.patch".
func EncodeBaseInfo(info transport.BaseInfo) ([]byte, error) {
	var major, minor, patch byte
	if info.FirmwareVersion != "" {
		if _, err := fmt.Sscanf(info.FirmwareVersion, "%d.%d.%d", &major, &minor, &patch); err != nil {
			return nil, fmt.Errorf("invalid firmware version %q: %w", info.FirmwareVersion, err)
		}
	}
	name := info.KeyboardName
	if len(name) > MaxDataSize-12 {
		name = name[:MaxDataSize-12]
	}
	out := make([]byte, 12, 12+len(name))
	binary.LittleEndian.PutUint16(out[0:2], info.VendorID)
	binary.LittleEndian.PutUint16(out[2:4], info.ProductID)
	binary.LittleEndian.PutUint16(out[4:6], info.Usage)
	binary.LittleEndian.PutUint16(out[6:8], info.UsagePage)
	out[8], out[9], out[10] = major, minor, patch
	out[11] = byte(len(name))
	return append(out, name...), nil
}

// EncodeLayoutPage is the inverse of DecodeLayoutPage.
func EncodeLayoutPage(total int, keys []transport.KeyInfo) ([]byte, error) {
	if len(keys) > LayoutPageEntries {
		return nil, fmt.Errorf("layout page holds at most %d keys", LayoutPageEntries)
	}
	out := make([]byte, layoutPageHeader, layoutPageHeader+len(keys)*layoutEntrySize)
	binary.LittleEndian.PutUint16(out[0:2], uint16(total))
	out[2] = byte(len(keys))
	for _, k := range keys {
		out = append(out, EncodeUint16(k.KeyValue)...)
		out = append(out, byte(k.Row), byte(k.Col))
	}
	return out, nil
}
