// Package discovery advertises keytune bridges over mDNS and finds them.
//
// A bridge (`keytune serve`) registers a "_keytune._tcp" service whose
// instance name starts with "keytune-". TXT records carry the build version,
// the StableID of the paired keyboard and "tls=1" when the bridge serves
// HTTPS. `keytune bridges` browses for these services.
//
// # Usage Example
//
//	ad, err := discovery.Advertise(discovery.AdvertiseOptions{Port: 7878, Version: version.Version})
//	if err != nil {
//	    return err
//	}
//	defer ad.Shutdown()
//
//	bridges, err := discovery.QuickScan(ctx)
//	for _, b := range bridges {
//	    fmt.Println(b, b.BaseURL())
//	}
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Bridges must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
package discovery
