package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/transport"
)

func sample() *Snapshot {
	s := New()
	s.System.KeyboardName = "Test Board"
	s.System.VendorID = 0x3554
	s.System.ProductID = 0xFA09
	k := NewKey(transport.KeyInfo{KeyValue: 4, Row: 0, Col: 0})
	k.CustomKeys.SetLayer(1, &Binding{KeyValue: 4, BindKeyValue: 7})
	s.Keyboards = append(s.Keyboards, k, NewKey(transport.KeyInfo{KeyValue: 5, Row: 0, Col: 1}))
	s.Macro.List = append(s.Macro.List, Macro{ID: 1, Name: "Macro 5", Key: 5, Step: []MacroStep{
		{ID: 0, KeyValue: 4, Status: 1, Delay: 0},
		{ID: 1, KeyValue: 4, Status: 0, Delay: 30},
	}})
	return s
}

func TestBindingFromRaw(t *testing.T) {
	tests := []struct {
		name  string
		key   int
		value int
		want  *Binding
	}{
		{"sentinel zero", 4, 0, nil},
		{"sentinel one", 4, 1, nil},
		{"bound to itself", 4, 4, nil},
		{"remapped", 4, 7, &Binding{KeyValue: 4, BindKeyValue: 7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BindingFromRaw(tt.key, tt.value))
		})
	}
}

func TestBindingsSerializeAsNullOrObject(t *testing.T) {
	k := NewKey(transport.KeyInfo{KeyValue: 4})
	for layer, raw := range []int{0, 7, 1} {
		k.CustomKeys.SetLayer(layer, BindingFromRaw(k.KeyValue, raw))
	}

	data, err := json.Marshal(k.CustomKeys)
	require.NoError(t, err)
	assert.JSONEq(t, `{"fn0":null,"fn1":{"keyValue":4,"bindKeyValue":7},"fn2":null,"fn3":null}`, string(data))
}

func TestResolveActive(t *testing.T) {
	var a AdvancedKeys
	assert.Equal(t, transport.AdvancedNone, a.ResolveActive())

	a.Set(transport.AdvancedEND, &transport.AdvancedConfig{Enabled: true})
	a.Set(transport.AdvancedMT, &transport.AdvancedConfig{Enabled: true})
	a.Set(transport.AdvancedDKS, &transport.AdvancedConfig{Enabled: false})
	assert.Equal(t, transport.AdvancedMT, a.ResolveActive())

	a.Resolve()
	assert.Equal(t, "mt", a.AdvancedType)
	assert.Equal(t, int(transport.AdvancedMT), a.Value)
	assert.NotNil(t, a.DKS, "inactive configs are retained")

	a.Set(transport.AdvancedDKS, &transport.AdvancedConfig{Enabled: true})
	assert.Equal(t, transport.AdvancedDKS, a.ResolveActive())
}

func TestPerformanceMode(t *testing.T) {
	p := DefaultPerformance()
	assert.Equal(t, transport.TouchModeGlobal, p.TouchMode())

	p.SetMode(transport.PerformanceMode{TouchMode: transport.TouchModeRT, AdvancedKeyMode: 2})
	assert.True(t, p.IsRt)
	assert.False(t, p.IsGlobalTriggering)
	assert.Equal(t, transport.PerformanceMode{TouchMode: transport.TouchModeRT, AdvancedKeyMode: 2}, p.Mode())
}

func TestMacroStepConversion(t *testing.T) {
	steps := []transport.MacroStep{{KeyCode: 4, Pressed: true}, {KeyCode: 4, Delay: 25}}
	out := StepsFromTransport(steps)
	assert.Equal(t, []MacroStep{{ID: 0, KeyValue: 4, Status: 1}, {ID: 1, KeyValue: 4, Status: 0, Delay: 25}}, out)
	assert.Equal(t, steps, Macro{Step: out}.TransportSteps())
}

func TestMarshalUnmarshal(t *testing.T) {
	s := sample()
	data, err := Marshal(s)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestUnmarshalShape(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		kind errs.Kind
	}{
		{"not an object", `[1,2]`, errs.KindParse},
		{"missing macro", `{"system":{},"light":{},"keyboards":[]}`, errs.KindValidation},
		{"null section", `{"system":null,"light":{},"keyboards":[],"macro":{}}`, errs.KindValidation},
		{"keyboards not array", `{"system":{},"light":{},"keyboards":{},"macro":{}}`, errs.KindValidation},
		{"key missing field", `{"system":{},"light":{},"keyboards":[{"col":0,"row":0,"keyValue":4}],"macro":{}}`, errs.KindValidation},
		{"wrong type", `{"system":{"rateOfReturn":"fast"},"light":{},"keyboards":[],"macro":{}}`, errs.KindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.doc))
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestUnmarshalKeepsDefaults(t *testing.T) {
	s, err := Unmarshal([]byte(`{"system":{"keyboardName":"x"},"light":{},"keyboards":[],"macro":{}}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultRateOfReturn, s.System.RateOfReturn)
	assert.Equal(t, DefaultLightConfig(), s.Light.Main)
	assert.NotNil(t, s.Macro.List)
}

func TestValidate(t *testing.T) {
	assert.Empty(t, Validate(sample()))

	bad := sample()
	bad.System.RateOfReturn = 9
	bad.System.TopDeadBandSwitch = 2
	bad.Light.Main.StaticColors = []string{"red"}
	bad.Keyboards[0].Performance.RtPressValue = 9
	bad.Keyboards[0].Performance.IsSingle = true
	bad.Keyboards[0].Performance.IsRt = true
	bad.Keyboards[1].KeyValue = 4
	bad.Keyboards[1].Light.Custom.Key = 4
	bad.Macro.List[0].Step[0].Status = 3

	problems := Validate(bad)
	assert.Len(t, problems, 7)
	for _, p := range problems {
		assert.True(t, errs.IsValidation(p), "%v", p)
	}
	assert.Contains(t, FormatValidationErrors(problems), "7 error(s)")
}

func TestValidateRateOfReturn(t *testing.T) {
	for rate := 0; rate <= MaxRateOfReturn; rate++ {
		assert.NoError(t, ValidateRateOfReturn(rate))
	}
	assert.Error(t, ValidateRateOfReturn(-1))
	assert.Error(t, ValidateRateOfReturn(7))
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "board.json")
	require.NoError(t, Save(path, sample()))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestDiff(t *testing.T) {
	a := sample()
	b := sample()

	d, err := Diff(a, b, "file", "keyboard")
	require.NoError(t, err)
	assert.Empty(t, d)

	b.Keyboards[0].CustomKeys.Fn1.BindKeyValue = 9
	d, err = Diff(a, b, "file", "keyboard")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(d, "--- file\n+++ keyboard\n"))
	assert.Regexp(t, `(?m)^-\s+"bindKeyValue": 7,?$`, d)
	assert.Regexp(t, `(?m)^\+\s+"bindKeyValue": 9,?$`, d)
}

func TestCompare(t *testing.T) {
	want := sample()
	got := sample()
	assert.Empty(t, Compare(want, got))

	got.Keyboards[0].CustomKeys.Fn1 = nil
	got.Keyboards[1].Light.Custom.R = 0
	m := Compare(want, got)
	assert.Len(t, m, 2)
	assert.Contains(t, m[0], "fn1: expected 7, got unmapped")
	assert.Contains(t, FormatMismatches(m), "2 mismatches")
}

func TestSummary(t *testing.T) {
	s := sample()
	assert.Equal(t, "Test Board: 2 keys, 1 remapped, 1 macros", s.Summary())
	assert.Contains(t, s.FormatCompact(), "1000 Hz")
	assert.Equal(t, "unknown (9)", RateLabel(9))
}
