// Package hidraw talks to real keyboards through hidapi
// (github.com/sstallion/go-hid).
//
// Keyboards expose their configuration interface on a vendor usage page.
// Requests are written as feature reports and answered by reading the
// feature report back. hidapi has no hotplug API, so connect and disconnect
// events come from a watcher that re-enumerates on a fixed interval.
package hidraw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sstallion/go-hid"
	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/transport"
)

const (
	// DefaultUsagePage is the vendor usage page of the configuration interface
	DefaultUsagePage = 0xFFA0

	// DefaultUsage is the usage of the configuration interface
	DefaultUsage = 0x01

	// DefaultPollInterval is how often the hotplug watcher re-enumerates
	DefaultPollInterval = time.Second

	// DefaultRequestTimeout bounds a single request/response exchange
	DefaultRequestTimeout = 2 * time.Second
)

// Options configures the HID transport.
type Options struct {
	// VendorID restricts enumeration to one vendor. Zero matches any.
	VendorID uint16
	// UsagePage and Usage select the configuration interface.
	UsagePage uint16
	Usage     uint16
	// PollInterval is the hotplug watcher period.
	PollInterval time.Duration
	// RequestTimeout bounds each exchange when the context has no deadline.
	RequestTimeout time.Duration
}

// DefaultOptions returns options matching the stock firmware.
func DefaultOptions() Options {
	return Options{
		UsagePage:      DefaultUsagePage,
		Usage:          DefaultUsage,
		PollInterval:   DefaultPollInterval,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// Transport is the hidapi-backed transport.Transport.
type Transport struct {
	opts   Options
	events chan transport.Event
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	// enumerate is swapped out in tests.
	enumerate func() ([]transport.DeviceInfo, error)
	open      func(path string) (reportDevice, error)
}

// New initialises hidapi and starts the hotplug watcher.
func New(opts Options) (*Transport, error) {
	if opts.UsagePage == 0 {
		opts.UsagePage = DefaultUsagePage
	}
	if opts.Usage == 0 {
		opts.Usage = DefaultUsage
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	if err := hid.Init(); err != nil {
		return nil, errs.Wrap(errs.KindTransport, "hid_init", "failed to initialise hidapi", err)
	}

	t := &Transport{
		opts:   opts,
		events: make(chan transport.Event, 16),
		stop:   make(chan struct{}),
	}
	t.enumerate = t.enumerateHID
	t.open = func(path string) (reportDevice, error) {
		dev, err := hid.OpenPath(path)
		if err != nil {
			return nil, err
		}
		return dev, nil
	}

	t.wg.Add(1)
	go t.watch()
	return t, nil
}

func (t *Transport) enumerateHID() ([]transport.DeviceInfo, error) {
	var out []transport.DeviceInfo
	err := hid.Enumerate(t.opts.VendorID, 0, func(info *hid.DeviceInfo) error {
		if info.UsagePage != t.opts.UsagePage || info.Usage != t.opts.Usage {
			return nil
		}
		out = append(out, transport.DeviceInfo{
			Path:        info.Path,
			VendorID:    info.VendorID,
			ProductID:   info.ProductID,
			Serial:      info.SerialNbr,
			ProductName: info.ProductStr,
			Vendor:      info.MfrStr,
			UsagePage:   info.UsagePage,
			Usage:       info.Usage,
		})
		return nil
	})
	if err != nil {
		return nil, errs.NewTransportError("enumerate", err)
	}
	return out, nil
}

// Enumerate lists attached keyboards exposing the configuration interface.
func (t *Transport) Enumerate(ctx context.Context) ([]transport.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.enumerate()
}

// Open opens the keyboard's configuration interface.
func (t *Transport) Open(ctx context.Context, info transport.DeviceInfo) (transport.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dev, err := t.open(info.Path)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, "open", fmt.Sprintf("failed to open %s", info.Path), err)
	}
	logging.Info("Opened keyboard", zap.String("path", info.Path), zap.String("stable_id", string(info.StableID())))
	return newHandle(dev, info, t.opts.RequestTimeout), nil
}

// Events returns the hotplug event stream.
func (t *Transport) Events() <-chan transport.Event { return t.events }

// Close stops the watcher and shuts hidapi down.
func (t *Transport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.stop)
		t.wg.Wait()
		close(t.events)
		err = hid.Exit()
	})
	return err
}

// watch re-enumerates periodically and emits the difference as events.
func (t *Transport) watch() {
	defer t.wg.Done()

	known := make(map[transport.StableID]transport.DeviceInfo)
	if devices, err := t.enumerate(); err == nil {
		for _, d := range devices {
			known[d.StableID()] = d
		}
	}

	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
		}

		devices, err := t.enumerate()
		if err != nil {
			logging.Noise("Hotplug enumeration failed", zap.Error(err))
			continue
		}
		known = t.diff(known, devices)
	}
}

// diff emits disconnect events for vanished devices and connect events for
// new ones, returning the new set. A device whose path changed between two
// polls re-enumerated in between and gets both.
func (t *Transport) diff(known map[transport.StableID]transport.DeviceInfo, devices []transport.DeviceInfo) map[transport.StableID]transport.DeviceInfo {
	current := make(map[transport.StableID]transport.DeviceInfo, len(devices))
	for _, d := range devices {
		current[d.StableID()] = d
	}
	for id, d := range known {
		if now, ok := current[id]; !ok || now.Path != d.Path {
			t.emit(transport.Event{Kind: transport.EventDisconnect, Device: d})
		}
	}
	for id, d := range current {
		if old, ok := known[id]; !ok || old.Path != d.Path {
			t.emit(transport.Event{Kind: transport.EventConnect, Device: d})
		}
	}
	return current
}

func (t *Transport) emit(ev transport.Event) {
	logging.Debug("Hotplug event", zap.Stringer("kind", ev.Kind), zap.String("stable_id", string(ev.Device.StableID())))
	select {
	case t.events <- ev:
	case <-t.stop:
	}
}
