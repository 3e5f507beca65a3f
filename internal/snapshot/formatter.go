package snapshot

import (
	"fmt"
	"strings"
)

// Stats counts what a snapshot carries.
type Stats struct {
	Keys         int
	Remapped     int // keys with at least one layer binding
	Advanced     int // keys with an active advanced mode
	CustomTravel int // keys not on global triggering
	Macros       int
}

// Stats computes the snapshot's counters.
func (s *Snapshot) Stats() Stats {
	st := Stats{Keys: len(s.Keyboards), Macros: len(s.Macro.List)}
	for _, k := range s.Keyboards {
		for layer := 0; layer < Layers; layer++ {
			if k.CustomKeys.Layer(layer) != nil {
				st.Remapped++
				break
			}
		}
		if k.AdvancedKeys.AdvancedType != "" {
			st.Advanced++
		}
		if !k.Performance.IsGlobalTriggering {
			st.CustomTravel++
		}
	}
	return st
}

// Summary returns a one-line summary of the snapshot
func (s *Snapshot) Summary() string {
	name := s.System.KeyboardName
	if name == "" {
		name = fmt.Sprintf("%04x:%04x", s.System.VendorID, s.System.ProductID)
	}
	st := s.Stats()
	return fmt.Sprintf("%s: %d keys, %d remapped, %d macros", name, st.Keys, st.Remapped, st.Macros)
}

// FormatCompact returns a compact multi-line format suitable for terminal display
func (s *Snapshot) FormatCompact() string {
	var b strings.Builder
	st := s.Stats()

	b.WriteString(fmt.Sprintf("Keyboard:     %s (%04x:%04x)\n", s.System.KeyboardName, s.System.VendorID, s.System.ProductID))
	if s.FirmwareVersion != "" {
		b.WriteString(fmt.Sprintf("Firmware:     %s\n", s.FirmwareVersion))
	}
	b.WriteString(fmt.Sprintf("Polling rate: %s\n", RateLabel(s.System.RateOfReturn)))
	b.WriteString(fmt.Sprintf("Top deadband: %v\n", s.System.TopDeadBandSwitch == 1))
	b.WriteString(fmt.Sprintf("Keys:         %d (%d remapped, %d advanced, %d custom travel)\n",
		st.Keys, st.Remapped, st.Advanced, st.CustomTravel))
	b.WriteString(fmt.Sprintf("Macros:       %d\n", st.Macros))
	b.WriteString(fmt.Sprintf("Lighting:     %s\n", formatLight(s.Light.Main)))

	return b.String()
}

var rateLabels = []string{"8000 Hz", "4000 Hz", "2000 Hz", "1000 Hz", "500 Hz", "250 Hz", "125 Hz"}

// RateLabel returns the label of a rateOfReturn index.
func RateLabel(rate int) string {
	if rate < 0 || rate >= len(rateLabels) {
		return fmt.Sprintf("unknown (%d)", rate)
	}
	return rateLabels[rate]
}

func formatLight(l LightConfig) string {
	if !l.Open {
		return "off"
	}
	color := "-"
	if l.SelectStaticColor >= 0 && l.SelectStaticColor < len(l.StaticColors) {
		color = l.StaticColors[l.SelectStaticColor]
	}
	return fmt.Sprintf("mode %d, %s, %d%% brightness", l.Mode, color, l.Luminance)
}
