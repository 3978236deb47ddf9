// Package privacy masks personal data before it reaches logs or audit events.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP truncates an address to its network prefix: /24 for IPv4 and
// /48 for IPv6. Returns "unknown" for empty input and "invalid" when the
// value does not parse.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskDestination hides most of an OTP destination so it can be logged.
// Email addresses keep the first character of the local part and the domain;
// anything else keeps its last four characters.
func MaskDestination(destination string) string {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return ""
	}
	if at := strings.LastIndex(destination, "@"); at > 0 {
		local, domain := destination[:at], destination[at+1:]
		return local[:1] + strings.Repeat("*", max(len(local)-1, 3)) + "@" + domain
	}
	const keep = 4
	if len(destination) <= keep {
		return strings.Repeat("*", len(destination))
	}
	return strings.Repeat("*", len(destination)-keep) + destination[len(destination)-keep:]
}
