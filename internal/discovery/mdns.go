package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/keytune/internal/logging"
)

const (
	// ServiceType is the mDNS service type keytune bridges advertise
	ServiceType = "_keytune._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for bridge discovery
	DefaultScanTimeout = 3 * time.Second

	// InstancePrefix starts every advertised instance name
	InstancePrefix = "keytune-"
)

// Scanner handles mDNS bridge discovery
type Scanner struct {
	// Timeout is the maximum time to wait for responses
	Timeout time.Duration
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
	}
}

// Scan browses for bridges until the timeout or ctx ends. Each instance is
// reported once.
func (s *Scanner) Scan(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu      sync.Mutex
		bridges []*Bridge
		seen    = make(map[string]bool)
		done    = make(chan struct{})
	)
	go func() {
		defer close(done)
		for entry := range entries {
			b := parseServiceEntry(entry)
			if b == nil {
				continue
			}
			mu.Lock()
			if !seen[b.Instance] {
				seen[b.Instance] = true
				bridges = append(bridges, b)
				logging.Debug("Found bridge", zap.String("bridge", b.String()))
			}
			mu.Unlock()
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	// The resolver closes entries once it notices ctx is done.
	select {
	case <-done:
	case <-time.After(time.Second):
	}

	mu.Lock()
	defer mu.Unlock()
	return append([]*Bridge(nil), bridges...), nil
}

// parseServiceEntry converts a zeroconf service entry to a Bridge.
// Returns nil if the entry is not a usable keytune bridge.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || !strings.HasPrefix(entry.Instance, InstancePrefix) {
		return nil
	}
	if entry.Port <= 0 {
		return nil
	}

	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		// TXT records are in "key=value" format
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Bridge{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// Advertisement is a running mDNS registration.
type Advertisement struct {
	server   *zeroconf.Server
	instance string
	once     sync.Once
}

// AdvertiseOptions describes what a bridge announces.
type AdvertiseOptions struct {
	// Name is appended to InstancePrefix; the hostname is used when empty.
	Name     string
	Port     int
	Version  string
	Keyboard string
	TLS      bool
}

// InstanceName returns the full instance name for opts.
func (o AdvertiseOptions) InstanceName() string {
	name := o.Name
	if name == "" {
		name, _ = os.Hostname()
	}
	if name == "" {
		name = "bridge"
	}
	name = strings.TrimSuffix(name, ".local")
	return InstancePrefix + name
}

// TXT returns the TXT records for opts.
func (o AdvertiseOptions) TXT() []string {
	txt := []string{"path=/", "version=" + o.Version}
	if o.Keyboard != "" {
		txt = append(txt, "keyboard="+o.Keyboard)
	}
	if o.TLS {
		txt = append(txt, "tls=1")
	}
	return txt
}

// Advertise registers the bridge on every multicast interface.
func Advertise(opts AdvertiseOptions) (*Advertisement, error) {
	if opts.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", opts.Port)
	}
	instance := opts.InstanceName()
	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, opts.Port, opts.TXT(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}
	logging.Info("Advertising bridge",
		zap.String("instance", instance),
		zap.String("service", ServiceType),
		zap.Int("port", opts.Port),
	)
	return &Advertisement{server: server, instance: instance}, nil
}

// Instance returns the advertised instance name.
func (a *Advertisement) Instance() string { return a.instance }

// Shutdown withdraws the advertisement. It is safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.once.Do(func() {
		a.server.Shutdown()
		logging.Debug("Withdrew bridge advertisement", zap.String("instance", a.instance))
	})
}

// QuickScan browses with the default timeout.
func QuickScan(ctx context.Context) ([]*Bridge, error) {
	return NewScanner().Scan(ctx)
}
