package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge is a keytune bridge found on the network
type Bridge struct {
	// Instance is the advertised service instance name (e.g., "keytune-desk")
	Instance string

	// Hostname is the mDNS hostname (e.g., "desk.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the bridge HTTP port
	Port int

	// Metadata holds the TXT records: "version", "keyboard", "tls"
	Metadata map[string]string

	// DiscoveredAt is when the bridge was seen
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	s := fmt.Sprintf("%s (%s) at %s", b.Instance, b.Hostname, b.hostPort())
	if kb := b.Keyboard(); kb != "" {
		s += " serving " + kb
	}
	return s
}

func (b *Bridge) hostPort() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// BaseURL returns the HTTP base URL for the bridge
func (b *Bridge) BaseURL() string {
	scheme := "http"
	if b.GetMetadata("tls") == "1" {
		scheme = "https"
	}
	return scheme + "://" + b.hostPort()
}

// StatusFeedURL returns the WebSocket status feed URL.
func (b *Bridge) StatusFeedURL() string {
	scheme := "ws"
	if b.GetMetadata("tls") == "1" {
		scheme = "wss"
	}
	return scheme + "://" + b.hostPort() + "/ws"
}

// Keyboard returns the StableID of the keyboard the bridge is paired with.
func (b *Bridge) Keyboard() string {
	return b.GetMetadata("keyboard")
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
