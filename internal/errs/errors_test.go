package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"no device", NewNoDeviceError("get_base_info"), KindNoDevice},
		{"wrapped", fmt.Errorf("export: %w", NewDisconnectedError("get_axis")), KindDisconnected},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"busy", NewBusyError("export"), KindBusy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinelsMatchByKind(t *testing.T) {
	err := fmt.Errorf("import: %w", NewBusyError("import"))
	if !errors.Is(err, ErrBusy) {
		t.Error("Expected busy error to match ErrBusy")
	}
	if errors.Is(err, ErrNoDevice) {
		t.Error("Busy error should not match ErrNoDevice")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewTransportError("get_rt_travel", errors.New("short read"))) {
		t.Error("Expected transport error to be retryable")
	}
	if !IsRetryable(NewTimeoutError("get_axis", "no reply")) {
		t.Error("Expected timeout error to be retryable")
	}
	if IsRetryable(NewValidationError("set_polling_rate", "out of range")) {
		t.Error("Validation error should not be retryable")
	}
	if IsRetryable(errors.New("boom")) {
		t.Error("Unknown error should not be retryable")
	}
}

func TestErrorString(t *testing.T) {
	err := NewTransportError("get_dks", errors.New("short read"))
	got := err.Error()
	for _, want := range []string{"Transport Error", "get_dks", "short read"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestTroubleshootingHint(t *testing.T) {
	hint := TroubleshootingHint(NewNoDeviceError("status"))
	if !strings.Contains(hint, "keytune pair") {
		t.Errorf("Expected pairing advice, got %q", hint)
	}
}

func TestShortMessage(t *testing.T) {
	if got := ShortMessage(NewValidationError("import", "rateOfReturn out of range")); got != "rateOfReturn out of range" {
		t.Errorf("ShortMessage() = %q", got)
	}
	if got := ShortMessage(ErrDisconnected); got != "Keyboard disconnected" {
		t.Errorf("ShortMessage() = %q", got)
	}
	if got := ShortMessage(nil); got != "" {
		t.Errorf("ShortMessage(nil) = %q", got)
	}
}
