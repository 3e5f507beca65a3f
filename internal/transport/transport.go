// Package transport defines how keytune talks to a keyboard: enumeration,
// opening a device, typed get/set calls on an open handle and a stream of
// connect/disconnect events.
//
// Two implementations exist: hidraw (real hardware through hidapi) and
// simulator (an in-memory keyboard used by tests and --simulate).
package transport

import (
	"context"
	"fmt"

	"github.com/muurk/keytune/internal/errs"
)

// StableID identifies a keyboard across restarts and re-enumeration.
type StableID string

// DeviceInfo describes an enumerated keyboard interface.
type DeviceInfo struct {
	Path        string `json:"path" yaml:"path"`
	VendorID    uint16 `json:"vendorId" yaml:"vendor_id"`
	ProductID   uint16 `json:"productId" yaml:"product_id"`
	Serial      string `json:"serial,omitempty" yaml:"serial,omitempty"`
	ProductName string `json:"productName,omitempty" yaml:"product_name,omitempty"`
	Vendor      string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	UsagePage   uint16 `json:"usagePage" yaml:"usage_page"`
	Usage       uint16 `json:"usage" yaml:"usage"`

	// SessionID is a native identifier some transports provide. When set
	// it is used as the StableID verbatim.
	SessionID string `json:"sessionId,omitempty" yaml:"session_id,omitempty"`
}

// StableID returns "<vid>-<pid>-<serial>" with "unknown" standing in for a
// missing serial, or the native SessionID when present.
func (d DeviceInfo) StableID() StableID {
	if d.SessionID != "" {
		return StableID(d.SessionID)
	}
	serial := d.Serial
	if serial == "" {
		serial = "unknown"
	}
	return StableID(fmt.Sprintf("%d-%d-%s", d.VendorID, d.ProductID, serial))
}

// Name returns the product name, falling back to the vid:pid pair.
func (d DeviceInfo) Name() string {
	if d.ProductName != "" {
		return d.ProductName
	}
	return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
}

// EventKind distinguishes connect from disconnect notifications.
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
)

func (k EventKind) String() string {
	if k == EventConnect {
		return "connect"
	}
	return "disconnect"
}

// Event is a transport-level hotplug notification.
type Event struct {
	Kind   EventKind
	Device DeviceInfo
}

// Transport enumerates and opens keyboards.
type Transport interface {
	// Enumerate lists every keyboard configuration interface currently attached.
	Enumerate(ctx context.Context) ([]DeviceInfo, error)

	// Open opens the given interface.
	Open(ctx context.Context, info DeviceInfo) (Handle, error)

	// Events delivers hotplug notifications until Close is called.
	Events() <-chan Event

	// Close stops event delivery and releases transport resources.
	Close() error
}

// Find returns the enumerated device with the given StableID.
func Find(devices []DeviceInfo, id StableID) (DeviceInfo, bool) {
	for _, d := range devices {
		if d.StableID() == id {
			return d, true
		}
	}
	return DeviceInfo{}, false
}

// Attach enumerates, finds the keyboard with the given StableID and opens it.
// It returns a KindNotDiscoverable error when the keyboard is not attached.
func Attach(ctx context.Context, t Transport, id StableID) (Handle, DeviceInfo, error) {
	devices, err := t.Enumerate(ctx)
	if err != nil {
		return nil, DeviceInfo{}, err
	}
	info, ok := Find(devices, id)
	if !ok {
		return nil, DeviceInfo{}, errs.New(errs.KindNotDiscoverable, "attach", fmt.Sprintf("keyboard %s is not attached", id))
	}
	h, err := t.Open(ctx, info)
	if err != nil {
		return nil, DeviceInfo{}, err
	}
	return h, info, nil
}
