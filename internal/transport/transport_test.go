package transport

import (
	"testing"
)

func TestStableID(t *testing.T) {
	tests := []struct {
		name string
		info DeviceInfo
		want StableID
	}{
		{"with serial", DeviceInfo{VendorID: 13652, ProductID: 4097, Serial: "A1B2"}, "13652-4097-A1B2"},
		{"no serial", DeviceInfo{VendorID: 13652, ProductID: 4097}, "13652-4097-unknown"},
		{"native id wins", DeviceInfo{VendorID: 1, ProductID: 2, Serial: "x", SessionID: "hid-session-9"}, "hid-session-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.StableID(); got != tt.want {
				t.Errorf("StableID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFind(t *testing.T) {
	devices := []DeviceInfo{
		{VendorID: 1, ProductID: 2, Serial: "a"},
		{VendorID: 1, ProductID: 2, Serial: "b"},
	}

	got, ok := Find(devices, "1-2-b")
	if !ok || got.Serial != "b" {
		t.Errorf("Find() = %+v, %v", got, ok)
	}
	if _, ok := Find(devices, "1-2-c"); ok {
		t.Error("Expected no match for unknown id")
	}
}

func TestAdvancedKindOrder(t *testing.T) {
	want := []string{"dks", "mpt", "socd", "mt", "tgl", "end"}
	if len(AdvancedKinds) != len(want) {
		t.Fatalf("AdvancedKinds has %d entries", len(AdvancedKinds))
	}
	for i, k := range AdvancedKinds {
		if k.String() != want[i] {
			t.Errorf("AdvancedKinds[%d] = %s, want %s", i, k, want[i])
		}
	}
}
