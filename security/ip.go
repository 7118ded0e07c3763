package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// GetClientIP returns the address the request is rate limited and audited under.
//
// Forwarding headers are only read when trustProxy is set. X-Forwarded-For is
// read from the right: the last trustedProxyCount entries were appended by our
// own proxies (at least one is assumed), the entry before them is the client.
// A short header falls back to its leftmost entry.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if addr, ok := forwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ok {
			return addr.String()
		}
		if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
			return addr.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedFor(header string, trustedProxyCount int) (netip.Addr, bool) {
	if header == "" {
		return netip.Addr{}, false
	}

	hops := strings.Split(header, ",")
	idx := len(hops) - max(trustedProxyCount, 1) - 1
	if idx < 0 {
		idx = 0
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(hops[idx]))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}
