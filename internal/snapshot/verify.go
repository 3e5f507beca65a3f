package snapshot

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff of the two snapshots' canonical JSON. It
// returns "" when they are identical.
func Diff(from, to *Snapshot, fromName, toName string) (string, error) {
	a, err := Marshal(from)
	if err != nil {
		return "", err
	}
	b, err := Marshal(to)
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	})
}

// Compare lists the per-key differences an import would leave behind:
// bindings, performance and per-key light of expected that actual does not
// match. Keys missing on either side are reported once.
// Returns a list of mismatches (empty if all match).
func Compare(expected, actual *Snapshot) []string {
	var mismatches []string

	if expected.System.TopDeadBandSwitch != actual.System.TopDeadBandSwitch {
		mismatches = append(mismatches, fmt.Sprintf("topDeadBandSwitch: expected %d, got %d",
			expected.System.TopDeadBandSwitch, actual.System.TopDeadBandSwitch))
	}

	for _, want := range expected.Keyboards {
		got, ok := actual.FindKey(want.KeyValue)
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("key %d: missing on keyboard", want.KeyValue))
			continue
		}
		for layer := 0; layer < Layers; layer++ {
			w, g := want.CustomKeys.Layer(layer), got.CustomKeys.Layer(layer)
			if w == nil {
				continue
			}
			if g == nil || g.BindKeyValue != w.BindKeyValue {
				mismatches = append(mismatches, fmt.Sprintf("key %d fn%d: expected %d, got %s",
					want.KeyValue, layer, w.BindKeyValue, formatBinding(g)))
			}
		}
		if want.Performance != got.Performance {
			mismatches = append(mismatches, fmt.Sprintf("key %d: performance differs", want.KeyValue))
		}
		if want.Light.Custom.RGB() != got.Light.Custom.RGB() {
			mismatches = append(mismatches, fmt.Sprintf("key %d: light expected %v, got %v",
				want.KeyValue, want.Light.Custom.RGB(), got.Light.Custom.RGB()))
		}
	}

	return mismatches
}

func formatBinding(b *Binding) string {
	if b == nil {
		return "unmapped"
	}
	return fmt.Sprintf("%d", b.BindKeyValue)
}

// FormatMismatches creates a human-readable summary of mismatches.
func FormatMismatches(mismatches []string) string {
	if len(mismatches) == 0 {
		return "none"
	}
	if len(mismatches) == 1 {
		return mismatches[0]
	}
	return fmt.Sprintf("%d mismatches: %s", len(mismatches), strings.Join(mismatches, "; "))
}
