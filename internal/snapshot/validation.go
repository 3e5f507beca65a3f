package snapshot

import (
	"fmt"
	"strings"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/protocol"
)

// Value ranges accepted on import.
const (
	MaxRateOfReturn = 6
	MaxTravel       = 4.0 // millimetres
	MaxLuminance    = 100
	MaxSpeed        = 100
	MaxKeyValue     = 0xFFFF
)

// ValidateRateOfReturn validates a polling-rate index.
// Valid range is 0-6:
//   - 0: 8000 Hz
//   - 1: 4000 Hz
//   - 2: 2000 Hz
//   - 3: 1000 Hz
//   - 4: 500 Hz
//   - 5: 250 Hz
//   - 6: 125 Hz
func ValidateRateOfReturn(rate int) error {
	if rate < 0 || rate > MaxRateOfReturn {
		return errs.NewValidationError("validate", fmt.Sprintf("rateOfReturn must be 0-6, got %d", rate))
	}
	return nil
}

// ValidateTravel validates a travel distance in millimetres.
func ValidateTravel(name string, mm float64) error {
	if mm < 0 || mm > MaxTravel {
		return errs.NewValidationError("validate", fmt.Sprintf("%s must be 0-%.1f mm, got %.2f", name, MaxTravel, mm))
	}
	return nil
}

// ValidateKeyValue validates a key code.
func ValidateKeyValue(name string, v int) error {
	if v < 0 || v > MaxKeyValue {
		return errs.NewValidationError("validate", fmt.Sprintf("%s must be 0-%d, got %d", name, MaxKeyValue, v))
	}
	return nil
}

// ValidateLightConfig validates a lighting zone.
func ValidateLightConfig(zone string, l LightConfig) []error {
	var errors []error

	if l.Luminance < 0 || l.Luminance > MaxLuminance {
		errors = append(errors, errs.NewValidationError("validate", fmt.Sprintf("light.%s.luminance must be 0-100, got %d", zone, l.Luminance)))
	}
	if l.Speed < 0 || l.Speed > MaxSpeed {
		errors = append(errors, errs.NewValidationError("validate", fmt.Sprintf("light.%s.speed must be 0-100, got %d", zone, l.Speed)))
	}
	for i, c := range l.StaticColors {
		if _, err := protocol.ParseHexColor(c); err != nil {
			errors = append(errors, errs.NewValidationError("validate", fmt.Sprintf("light.%s.staticColors[%d]: %q is not #RRGGBB", zone, i, c)))
		}
	}
	if len(l.StaticColors) > 0 && (l.SelectStaticColor < 0 || l.SelectStaticColor >= len(l.StaticColors)) {
		errors = append(errors, errs.NewValidationError("validate", fmt.Sprintf("light.%s.selectStaticColor %d is out of range", zone, l.SelectStaticColor)))
	}

	return errors
}

// ValidatePerformance validates a key's performance block.
func ValidatePerformance(prefix string, p Performance) []error {
	var errors []error

	if p.IsRt && p.IsSingle {
		errors = append(errors, errs.NewValidationError("validate", prefix+": isRt and isSingle are both set"))
	}
	checks := []struct {
		name string
		mm   float64
	}{
		{"globalTriggeringValue", p.GlobalTriggeringValue},
		{"singleTriggeringValue", p.SingleTriggeringValue},
		{"rtPressValue", p.RtPressValue},
		{"rtReleaseValue", p.RtReleaseValue},
		{"deadBandPressValue", p.DeadBandPressValue},
		{"deadBandReleaseValue", p.DeadBandReleaseValue},
	}
	for _, c := range checks {
		if err := ValidateTravel(prefix+"."+c.name, c.mm); err != nil {
			errors = append(errors, err)
		}
	}

	return errors
}

// ValidateKey validates one keyboards[] entry.
func ValidateKey(i int, k Key) []error {
	var errors []error
	prefix := fmt.Sprintf("keyboards[%d]", i)

	if err := ValidateKeyValue(prefix+".keyValue", k.KeyValue); err != nil {
		errors = append(errors, err)
	}
	if k.Row < 0 || k.Col < 0 {
		errors = append(errors, errs.NewValidationError("validate", prefix+": row and col must not be negative"))
	}
	errors = append(errors, ValidatePerformance(prefix+".performance", k.Performance)...)

	for layer := 0; layer < Layers; layer++ {
		b := k.CustomKeys.Layer(layer)
		if b == nil {
			continue
		}
		if b.KeyValue != k.KeyValue {
			errors = append(errors, errs.NewValidationError("validate",
				fmt.Sprintf("%s.customKeys.fn%d.keyValue %d does not match key %d", prefix, layer, b.KeyValue, k.KeyValue)))
		}
		if err := ValidateKeyValue(fmt.Sprintf("%s.customKeys.fn%d.bindKeyValue", prefix, layer), b.BindKeyValue); err != nil {
			errors = append(errors, err)
		}
	}

	if k.Light.Custom.Key != 0 && k.Light.Custom.Key != k.KeyValue {
		errors = append(errors, errs.NewValidationError("validate",
			fmt.Sprintf("%s.light.custom.key %d does not match key %d", prefix, k.Light.Custom.Key, k.KeyValue)))
	}

	return errors
}

// ValidateMacro validates one macro library entry.
func ValidateMacro(i int, m Macro) []error {
	var errors []error
	prefix := fmt.Sprintf("macro.list[%d]", i)

	if len(m.Step) == 0 {
		errors = append(errors, errs.NewValidationError("validate", prefix+": macro has no steps"))
	}
	for j, s := range m.Step {
		if s.Status != 0 && s.Status != 1 {
			errors = append(errors, errs.NewValidationError("validate", fmt.Sprintf("%s.step[%d].status must be 0 or 1, got %d", prefix, j, s.Status)))
		}
		if s.Delay < 0 {
			errors = append(errors, errs.NewValidationError("validate", fmt.Sprintf("%s.step[%d].delay must not be negative", prefix, j)))
		}
	}

	return errors
}

// Validate validates a complete snapshot. This is the main validation entry
// point for import.
// Returns a slice of validation errors (empty if valid).
func Validate(s *Snapshot) []error {
	var allErrors []error

	if err := ValidateRateOfReturn(s.System.RateOfReturn); err != nil {
		allErrors = append(allErrors, err)
	}
	if s.System.TopDeadBandSwitch != 0 && s.System.TopDeadBandSwitch != 1 {
		allErrors = append(allErrors, errs.NewValidationError("validate",
			fmt.Sprintf("system.topDeadBandSwitch must be 0 or 1, got %d", s.System.TopDeadBandSwitch)))
	}

	allErrors = append(allErrors, ValidateLightConfig("main", s.Light.Main)...)
	allErrors = append(allErrors, ValidateLightConfig("logo", s.Light.Logo)...)
	allErrors = append(allErrors, ValidateLightConfig("other", s.Light.Other)...)

	seen := make(map[int]int, len(s.Keyboards))
	for i, k := range s.Keyboards {
		if j, dup := seen[k.KeyValue]; dup {
			allErrors = append(allErrors, errs.NewValidationError("validate",
				fmt.Sprintf("keyboards[%d] duplicates key %d from keyboards[%d]", i, k.KeyValue, j)))
		}
		seen[k.KeyValue] = i
		allErrors = append(allErrors, ValidateKey(i, k)...)
	}

	for i, m := range s.Macro.List {
		allErrors = append(allErrors, ValidateMacro(i, m)...)
	}

	return allErrors
}

// FormatValidationErrors formats a slice of validation errors into a user-friendly message.
func FormatValidationErrors(errors []error) string {
	if len(errors) == 0 {
		return "No validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Snapshot validation failed with %d error(s):\n", len(errors)))

	for i, err := range errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, errs.ShortMessage(err)))
	}

	return sb.String()
}
