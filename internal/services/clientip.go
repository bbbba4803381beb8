package services

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// clientIPHeaders lists the headers consulted, in priority order, before the
// socket address. Each may carry a comma-separated list.
var clientIPHeaders = []string{
	"CF-Connecting-IP",
	"X-Client-IP",
	"Client-IP",
	"X-Forwarded-For",
	"X-Forwarded",
	"X-Cluster-Client-IP",
	"Forwarded-For",
	"Forwarded",
}

var reservedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.18.0.0/15",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"240.0.0.0/4",
	"64:ff9b:1::/48",
	"100::/64",
	"2001::/23",
	"2001:db8::/32",
)

// ResolveClientIP picks the first public address found in the forwarding
// headers, falling back to the socket address even when it is private.
func ResolveClientIP(headers http.Header, remoteAddr string) string {
	for _, name := range clientIPHeaders {
		for _, value := range headers.Values(name) {
			for _, candidate := range headerCandidates(name, value) {
				if addr, ok := parseAddr(candidate); ok && isPublic(addr) {
					return addr.String()
				}
			}
		}
	}

	if addr, ok := parseAddr(remoteAddr); ok {
		return addr.String()
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return host
}

func headerCandidates(name, value string) []string {
	parts := strings.Split(value, ",")
	usesForSyntax := strings.EqualFold(name, "Forwarded") ||
		(strings.EqualFold(name, "X-Forwarded") && strings.Contains(strings.ToLower(value), "for="))
	if !usesForSyntax {
		return parts
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		for _, pair := range strings.Split(part, ";") {
			key, val, found := strings.Cut(strings.TrimSpace(pair), "=")
			if found && strings.EqualFold(strings.TrimSpace(key), "for") {
				out = append(out, val)
			}
		}
	}
	return out
}

// parseAddr accepts bare addresses, host:port, [v6]:port and quoted forms.
func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return netip.Addr{}, false
	}
	if addr, err := netip.ParseAddr(raw); err == nil {
		return addr.Unmap(), true
	}
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		if addr, err := netip.ParseAddr(raw[1 : len(raw)-1]); err == nil {
			return addr.Unmap(), true
		}
	}
	return netip.Addr{}, false
}

func isPublic(addr netip.Addr) bool {
	if !addr.IsValid() ||
		addr.IsPrivate() ||
		addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() {
		return false
	}
	if addr.Is4() && addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return false
	}
	for _, prefix := range reservedPrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}
	return true
}

func mustPrefixes(values ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(values))
	for _, value := range values {
		out = append(out, netip.MustParsePrefix(value))
	}
	return out
}
