package enrichment

import (
	"net"
	"regexp"
	"strings"

	"github.com/mlidstrom/castellan/internal/event"
)

// ipPattern matches both IPv4 dotted-quad and IPv6 colon-hex addresses
// inside free-text log messages.
var ipPattern = regexp.MustCompile(`\b(?:(?:[0-9]{1,3}\.){3}[0-9]{1,3}|(?:[0-9a-fA-F]{1,4}:){2,7}[0-9a-fA-F]{1,4})\b`)

// sourceNetworkAddressPattern pulls the value out of the Windows Security
// log's "Source Network Address:\t<value>" field, the preferred source for
// authentication-channel events.
var sourceNetworkAddressPattern = regexp.MustCompile(`(?i)Source Network Address:\s*([0-9a-fA-F.:]+)`)

// authenticationEventIDs are Security-channel event IDs where "Source
// Network Address" is the authoritative address field rather than the
// first address mentioned in the message.
var authenticationEventIDs = map[int]bool{
	4624: true, // successful logon
	4625: true, // failed logon
	4648: true, // explicit credential logon
}

// ExtractIP returns the first candidate address relevant to evt, preferring
// the "Source Network Address" field for authentication events and falling
// back to the first non-loopback address found anywhere in the message.
func ExtractIP(evt event.LogEvent) (string, bool) {
	if evt.Channel == "Security" && authenticationEventIDs[evt.EventID] {
		if m := sourceNetworkAddressPattern.FindStringSubmatch(evt.Message); m != nil {
			addr := strings.TrimSpace(m[1])
			if addr != "-" && addr != "" {
				return addr, true
			}
		}
	}

	for _, candidate := range ipPattern.FindAllString(evt.Message, -1) {
		ip := net.ParseIP(candidate)
		if ip == nil {
			continue
		}

		if ip.IsLoopback() {
			continue
		}

		return candidate, true
	}

	return "", false
}

// IsPrivate reports whether addr falls in an RFC1918/RFC4193 private range
// or is a loopback or link-local unicast address.
func IsPrivate(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}

	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast()
}
