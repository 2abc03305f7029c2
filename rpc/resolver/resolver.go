// Package resolver converts host/port pairs into socket addresses, the
// "address resolver" external collaborator from spec.md section 1.
// Grounded on original_source/src/dns.rs's resolve_hostports, but
// deliberately omitting its local-interface cache (ifaces/LOCAL_ADDRS):
// spec.md's Design Notes mark that as a separate external collaborator
// the core does not require.
package resolver

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
)

// Resolve converts each "host:port" pair in hostports into every
// net.TCPAddr it resolves to, de-duplicating and sorting the result for
// deterministic ordering across calls. A hostname that fails DNS
// resolution is skipped rather than failing the whole batch, matching
// resolve_hostports's per-hostname error handling.
func Resolve(ctx context.Context, hostports []string) ([]*net.TCPAddr, error) {
	seen := make(map[string]struct{})
	var addrs []*net.TCPAddr

	for _, hp := range hostports {
		host, portStr, err := net.SplitHostPort(hp)
		if err != nil {
			return nil, fmt.Errorf("resolver: invalid host:port %q: %w", hp, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("resolver: invalid port in %q: %w", hp, err)
		}

		ipAddrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			continue
		}
		for _, ip := range ipAddrs {
			addr := &net.TCPAddr{IP: ip.IP, Port: port, Zone: ip.Zone}
			key := addr.String()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			addrs = append(addrs, addr)
		}
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i].String() < addrs[j].String() })
	return addrs, nil
}

// IsLoopback reports whether addr is a loopback address, the one piece of
// is_local_addr's behavior that does not depend on the interface cache.
func IsLoopback(addr *net.TCPAddr) bool {
	return addr != nil && addr.IP.IsLoopback()
}
