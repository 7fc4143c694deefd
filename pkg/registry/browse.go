package registry

import (
	"context"
	"net"

	"github.com/enbility/zeroconf/v3"
)

// BrowseConfig configures endpoint browsing.
type BrowseConfig struct {
	// Interface specifies which network interface to browse on.
	// Empty string means all interfaces.
	Interface string

	// Domain is the mDNS domain. Empty means Domain ("local").
	Domain string
}

// Browse searches for exposed endpoints. Results are aggregated by
// instance name: addresses seen on multiple interfaces are merged into a
// single entry, and an entry whose addresses all disappear is dropped.
// The returned channel closes when ctx is cancelled.
func Browse(ctx context.Context, config BrowseConfig) (<-chan *EndpointService, error) {
	domain := config.Domain
	if domain == "" {
		domain = Domain
	}

	out := make(chan *EndpointService)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if config.Interface != "" {
		iface, err := net.InterfaceByName(config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	go func() {
		defer close(out)

		// Track services by instance name, aggregating addresses.
		services := make(map[string]*EndpointService)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToEndpoint(entry)
				if svc == nil {
					continue
				}

				existing, found := services[svc.InstanceName]
				if found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
				} else {
					services[svc.InstanceName] = svc
					select {
					case out <- svc:
					case <-ctx.Done():
						return
					}
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, domain, entries, removed, opts...)
	}()

	return out, nil
}

// entryToEndpoint converts a zeroconf entry to an EndpointService.
// Entries with malformed TXT records are dropped.
func entryToEndpoint(entry *zeroconf.ServiceEntry) *EndpointService {
	txt := StringsToTXTRecords(entry.Text)
	info, err := DecodeEndpointTXT(txt)
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &EndpointService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         uint16(entry.Port),
		Addresses:    addrs,
		Identity:     info.Identity,
		Class:        info.Class,
		Version:      info.Version,
	}
}

// mergeAddresses adds new addresses to the existing list, avoiding
// duplicates.
func mergeAddresses(existing, extra []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range extra {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the addresses carried by a zeroconf entry from
// the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
