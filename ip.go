package shield

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client IP address from the request.
// Supports X-Forwarded-For and X-Real-IP headers when behind a proxy.
//
// Only enable trustProxy when behind a trusted reverse proxy: the headers
// are attacker-controlled otherwise, and the IP feeds the rate limiter and
// the audit trail. trustedProxyCount specifies how many proxies to trust
// from the right of X-Forwarded-For; zero assumes one.
func ClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := ipFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := r.Header.Get("X-Real-IP"); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ipFromRemoteAddr(r.RemoteAddr)
}

// ipFromForwardedFor parses X-Forwarded-For ("client, proxy1, proxy2, ...").
// The rightmost entries are the proxies we control; the client IP sits at
// len(ips) - trustedProxyCount - 1, clamped to the leftmost entry.
func ipFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")

	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}
	clientIndex := len(ips) - proxyCount - 1
	if clientIndex < 0 {
		clientIndex = 0
	}

	candidate := strings.TrimSpace(ips[clientIndex])
	if net.ParseIP(candidate) != nil {
		return candidate
	}
	return ""
}

// ipFromRemoteAddr strips the port from the socket address.
func ipFromRemoteAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	// RemoteAddr without a port (tests, unix sockets)
	if net.ParseIP(remoteAddr) != nil {
		return remoteAddr
	}
	return ""
}
