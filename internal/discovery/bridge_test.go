package discovery

import "testing"

func TestBridge_String(t *testing.T) {
	b := &Bridge{
		Instance: "keytune-desk",
		Hostname: "desk.local.",
		IP:       "192.168.4.16",
		Port:     7878,
		Metadata: map[string]string{"keyboard": "13652-64009-SIM0001"},
	}

	expected := "keytune-desk (desk.local.) at 192.168.4.16:7878 serving 13652-64009-SIM0001"
	if b.String() != expected {
		t.Errorf("Bridge.String() = %v, want %v", b.String(), expected)
	}
}

func TestBridge_URLs(t *testing.T) {
	tests := []struct {
		name     string
		bridge   *Bridge
		wantBase string
		wantFeed string
	}{
		{
			name:     "plain",
			bridge:   &Bridge{IP: "192.168.4.16", Port: 7878},
			wantBase: "http://192.168.4.16:7878",
			wantFeed: "ws://192.168.4.16:7878/ws",
		},
		{
			name:     "tls",
			bridge:   &Bridge{IP: "10.0.0.5", Port: 8443, Metadata: map[string]string{"tls": "1"}},
			wantBase: "https://10.0.0.5:8443",
			wantFeed: "wss://10.0.0.5:8443/ws",
		},
		{
			name:     "ipv6",
			bridge:   &Bridge{IP: "fe80::1", Port: 7878},
			wantBase: "http://[fe80::1]:7878",
			wantFeed: "ws://[fe80::1]:7878/ws",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.bridge.BaseURL(); got != tt.wantBase {
				t.Errorf("Bridge.BaseURL() = %v, want %v", got, tt.wantBase)
			}
			if got := tt.bridge.StatusFeedURL(); got != tt.wantFeed {
				t.Errorf("Bridge.StatusFeedURL() = %v, want %v", got, tt.wantFeed)
			}
		})
	}
}

func TestBridge_GetMetadata(t *testing.T) {
	b := &Bridge{Metadata: map[string]string{"version": "1.0"}}
	if got := b.GetMetadata("version"); got != "1.0" {
		t.Errorf("GetMetadata(version) = %q, want 1.0", got)
	}
	if got := b.GetMetadata("missing"); got != "" {
		t.Errorf("GetMetadata(missing) = %q, want empty", got)
	}
	if got := (&Bridge{}).Keyboard(); got != "" {
		t.Errorf("Keyboard() with nil metadata = %q, want empty", got)
	}
}
