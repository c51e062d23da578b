// Package enrich annotates raw events with an environment tag and an
// optional synthetic reverse-DNS name. It is a pure function: it never
// mutates its input and never performs I/O.
package enrich

import (
	"fmt"
	"net"
	"strings"

	"github.com/sgerhart/aegisflux-etl/pkg/models"
)

// IsIPv4 reports whether s is a valid dotted-quad IPv4 literal. IPv6
// literals and hostnames are rejected.
func IsIPv4(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	return ip.To4() != nil && strings.Count(s, ".") == 3
}

// lastOctet returns the final dot-separated component of an IPv4 literal.
func lastOctet(ip string) string {
	parts := strings.Split(ip, ".")
	return parts[len(parts)-1]
}

// Enrich produces a new EnrichedEvent from ev. env is copied verbatim into
// context.env. rdns is populated only when fakeRDNS is true and dstIP is a
// valid IPv4 literal; it is nil otherwise. ev itself is never modified.
func Enrich(ev models.Event, env string, fakeRDNS bool, dstIP string) models.EnrichedEvent {
	ctx := models.Context{Env: env, Rdns: nil}

	if fakeRDNS && dstIP != "" && IsIPv4(dstIP) {
		rdns := fmt.Sprintf("host-%s.local", lastOctet(dstIP))
		ctx.Rdns = &rdns
	}

	return models.EnrichedEvent{Event: ev, Context: ctx}
}

// ValidateEnriched reports whether an enriched event carries the required
// context field: a non-empty env.
func ValidateEnriched(e models.EnrichedEvent) bool {
	return e.Context.Env != ""
}
