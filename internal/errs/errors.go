package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind represents the category of error that occurred
type Kind int

const (
	// KindUnknown indicates an unknown or unexpected error
	KindUnknown Kind = iota
	// KindNoDevice indicates no keyboard is paired or attached
	KindNoDevice
	// KindTransport indicates a HID read/write failure
	KindTransport
	// KindTimeout indicates the keyboard did not answer in time
	KindTimeout
	// KindDisconnected indicates the link dropped while a call was in flight
	KindDisconnected
	// KindValidation indicates an out-of-range parameter or malformed snapshot
	KindValidation
	// KindParse indicates a malformed report or snapshot document
	KindParse
	// KindNotDiscoverable indicates the paired keyboard is no longer enumerable
	KindNotDiscoverable
	// KindInitialization indicates the readiness probe never succeeded
	KindInitialization
	// KindBusy indicates a bulk sync is already running
	KindBusy
	// KindUnsupported indicates the keyboard does not implement a command
	KindUnsupported
)

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "Unknown Error"
	case KindNoDevice:
		return "No Device"
	case KindTransport:
		return "Transport Error"
	case KindTimeout:
		return "Timeout"
	case KindDisconnected:
		return "Disconnected"
	case KindValidation:
		return "Validation Error"
	case KindParse:
		return "Parse Error"
	case KindNotDiscoverable:
		return "Device Not Found"
	case KindInitialization:
		return "Initialization Error"
	case KindBusy:
		return "Busy"
	case KindUnsupported:
		return "Unsupported"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Error is the error value returned across every public boundary of the
// session, transport and sync layers.
type Error struct {
	Kind      Kind   // Category of error
	Op        string // Operation that failed (e.g. "get_rt_travel")
	Message   string // Human-readable error message
	Err       error  // Underlying error (if any)
	Retryable bool   // Whether the operation may be retried
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" [")
		b.WriteString(e.Op)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so the package
// sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrNoDevice        = &Error{Kind: KindNoDevice, Message: "no keyboard connected"}
	ErrDisconnected    = &Error{Kind: KindDisconnected, Message: "keyboard disconnected"}
	ErrBusy            = &Error{Kind: KindBusy, Message: "another sync is already running"}
	ErrNotDiscoverable = &Error{Kind: KindNotDiscoverable, Message: "paired keyboard not found"}
)

// New creates an error of the given kind
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap creates an error of the given kind around err
func Wrap(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err, Retryable: kind == KindTransport || kind == KindTimeout}
}

// NewNoDeviceError creates an error for calls made without a live handle
func NewNoDeviceError(op string) *Error {
	return &Error{Kind: KindNoDevice, Op: op, Message: "no keyboard connected"}
}

// NewTransportError creates a retryable HID transport error
func NewTransportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: "HID transfer failed", Err: err, Retryable: true}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, message string) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: message, Retryable: true}
}

// NewDisconnectedError creates an error for a link that dropped mid-call
func NewDisconnectedError(op string) *Error {
	return &Error{Kind: KindDisconnected, Op: op, Message: "keyboard disconnected"}
}

// NewValidationError creates a validation error
func NewValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// NewParseError creates a parsing error
func NewParseError(op, message string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Message: message, Err: err}
}

// NewBusyError creates the error returned when a bulk sync is already running
func NewBusyError(op string) *Error {
	return &Error{Kind: KindBusy, Op: op, Message: "another sync is already running"}
}

// KindOf returns the Kind of the first *Error in err's chain. Context
// cancellation maps to KindTimeout; anything else is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// IsNoDevice checks if an error reports a missing handle
func IsNoDevice(err error) bool {
	return KindOf(err) == KindNoDevice
}

// IsDisconnected checks if an error reports a dropped link
func IsDisconnected(err error) bool {
	return KindOf(err) == KindDisconnected
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsBusy checks if an error reports a concurrent bulk sync
func IsBusy(err error) bool {
	return KindOf(err) == KindBusy
}

// TroubleshootingHint returns user-friendly troubleshooting advice for an error
func TroubleshootingHint(err error) string {
	switch KindOf(err) {
	case KindNoDevice:
		return strings.Join([]string{
			"No keyboard is connected.",
			"Troubleshooting:",
			"  • Run 'keytune scan' to list attached keyboards",
			"  • Run 'keytune pair' to pair one",
			"  • Check the USB cable and try another port",
		}, "\n")

	case KindDisconnected:
		return strings.Join([]string{
			"The keyboard dropped off the bus during the operation.",
			"Troubleshooting:",
			"  • Reconnect the keyboard and run the command again",
			"  • Avoid USB hubs that power-cycle downstream ports",
		}, "\n")

	case KindTimeout:
		return strings.Join([]string{
			"The keyboard did not answer in time.",
			"Troubleshooting:",
			"  • Unplug and replug the keyboard",
			"  • Close other configurator software holding the HID interface",
		}, "\n")

	case KindNotDiscoverable:
		return strings.Join([]string{
			"The paired keyboard is no longer visible to the system.",
			"Troubleshooting:",
			"  • Reconnect the keyboard",
			"  • Run 'keytune pair' again if it still is not found",
		}, "\n")

	case KindInitialization:
		return strings.Join([]string{
			"The keyboard was opened but never became ready.",
			"Troubleshooting:",
			"  • Wait a few seconds and run 'keytune status'",
			"  • Replug the keyboard if the problem persists",
		}, "\n")

	case KindTransport:
		return strings.Join([]string{
			"A HID transfer failed.",
			"Troubleshooting:",
			"  • On Linux, check udev permissions for /dev/hidraw*",
			"  • Make sure no other application has the device open",
		}, "\n")

	case KindBusy:
		return "Another import or export is already running. Wait for it to finish."

	case KindValidation, KindParse:
		return "The input is invalid. Check the error message for details."

	case KindUnsupported:
		return "This keyboard does not support the requested setting."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindNoDevice:
		return "No keyboard connected"
	case KindDisconnected:
		return "Keyboard disconnected"
	case KindTimeout:
		return "Keyboard did not respond"
	case KindNotDiscoverable:
		return "Keyboard not found"
	case KindInitialization:
		return "Keyboard failed to initialize"
	case KindBusy:
		return "Sync already running"
	case KindValidation, KindParse:
		if e.Message != "" {
			return e.Message
		}
		return e.Kind.String()
	default:
		return e.Kind.String()
	}
}
