package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/enbility/zeroconf/v3"

	"github.com/battwatch/battwatch-go/pkg/transport"
	"github.com/battwatch/battwatch-go/pkg/version"
)

// mDNS service identity.
const (
	// ServiceType is the bridge agent service type.
	ServiceType = "_battwatch._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen caps the advertised instance name per DNS label
	// rules.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	txtKeyID      = "id"
	txtKeyName    = "name"
	txtKeyVersion = "v"
)

// ErrNoAgent indicates browsing found no matching agent.
var ErrNoAgent = errors.New("no bridge agent found")

// encodeTXT builds the TXT records advertising a device.
func encodeTXT(deviceID, deviceName string) []string {
	return []string{
		txtKeyID + "=" + deviceID,
		txtKeyName + "=" + deviceName,
		txtKeyVersion + "=" + version.Current,
	}
}

// decodeTXT extracts the device identity from TXT records. Unknown keys are
// ignored; a missing id or an incompatible protocol version makes the entry
// unusable. A missing version record is treated as current: the record was
// introduced after 1.0 agents shipped.
func decodeTXT(txt []string) (deviceID, deviceName string, ok bool) {
	advertised := version.MustParse(version.Current)
	for _, record := range txt {
		key, value, found := strings.Cut(record, "=")
		if !found {
			continue
		}
		switch key {
		case txtKeyID:
			deviceID = value
		case txtKeyName:
			deviceName = value
		case txtKeyVersion:
			v, err := version.Parse(value)
			if err != nil {
				return "", "", false
			}
			advertised = v
		}
	}
	if !advertised.Compatible(version.MustParse(version.Current)) {
		return "", "", false
	}
	return deviceID, deviceName, deviceID != ""
}

// instanceName derives the advertised instance name for a device.
func instanceName(deviceID string) string {
	name := "battwatch-" + deviceID
	if len(name) > MaxInstanceNameLen {
		name = name[:MaxInstanceNameLen]
	}
	return name
}

// found is one discovered agent.
type found struct {
	info transport.DeviceInfo
	addr string // host:port
}

// selectIfaces returns the interfaces to bind, nil for all.
func selectIfaces(ifaceName string) []net.Interface {
	if ifaceName == "" {
		return nil
	}
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// browse collects agents until the context ends. Entries are aggregated by
// instance name; the first usable address wins.
func browse(ctx context.Context, ifaceName string) ([]found, error) {
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := selectIfaces(ifaceName); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	browseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- zeroconf.Browse(browseCtx, ServiceType, Domain, entries, removed, opts...)
	}()

	var results []found
	seen := make(map[string]bool)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			f, usable := entryToFound(entry)
			if !usable || seen[entry.Instance] {
				continue
			}
			seen[entry.Instance] = true
			results = append(results, f)

		case <-removed:
			// Addresses vanishing mid-browse do not retract a result; a
			// later dial failure reports it instead.

		case <-browseCtx.Done():
			// Browse error only matters when it prevented any discovery.
			select {
			case err := <-errCh:
				if err != nil && len(results) == 0 && ctx.Err() == nil {
					return nil, fmt.Errorf("mdns browse: %w", err)
				}
			default:
			}
			if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return results, ctx.Err()
			}
			return results, nil
		}
	}
}

// entryToFound converts a zeroconf entry, preferring IPv4 addresses.
func entryToFound(entry *zeroconf.ServiceEntry) (found, bool) {
	deviceID, deviceName, ok := decodeTXT(entry.Text)
	if !ok {
		return found{}, false
	}

	var host string
	switch {
	case len(entry.AddrIPv4) > 0:
		host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		host = entry.AddrIPv6[0].String()
	default:
		return found{}, false
	}

	return found{
		info: transport.DeviceInfo{ID: deviceID, Name: deviceName},
		addr: net.JoinHostPort(host, fmt.Sprintf("%d", entry.Port)),
	}, true
}
