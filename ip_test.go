package shield

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name              string
		remoteAddr        string
		xForwardedFor     string
		xRealIP           string
		trustProxy        bool
		trustedProxyCount int
		want              string
	}{
		{
			name:       "direct connection",
			remoteAddr: "203.0.113.7:55012",
			want:       "203.0.113.7",
		},
		{
			name:          "proxy headers ignored when untrusted",
			remoteAddr:    "203.0.113.7:55012",
			xForwardedFor: "198.51.100.1",
			xRealIP:       "198.51.100.2",
			want:          "203.0.113.7",
		},
		{
			name:          "single proxy",
			remoteAddr:    "10.0.0.1:80",
			xForwardedFor: "198.51.100.1",
			trustProxy:    true,
			want:          "198.51.100.1",
		},
		{
			name:          "client plus one proxy",
			remoteAddr:    "10.0.0.1:80",
			xForwardedFor: "198.51.100.1, 10.0.0.1",
			trustProxy:    true,
			want:          "198.51.100.1",
		},
		{
			name:              "two trusted proxies",
			remoteAddr:        "10.0.0.1:80",
			xForwardedFor:     "198.51.100.1, 10.0.0.2, 10.0.0.1",
			trustProxy:        true,
			trustedProxyCount: 2,
			want:              "198.51.100.1",
		},
		{
			name:          "spoofed prefix beyond trusted proxies is not consulted",
			remoteAddr:    "10.0.0.1:80",
			xForwardedFor: "6.6.6.6, 198.51.100.1, 10.0.0.1",
			trustProxy:    true,
			want:          "198.51.100.1",
		},
		{
			name:              "more proxies claimed than entries clamps to leftmost",
			remoteAddr:        "10.0.0.1:80",
			xForwardedFor:     "198.51.100.1",
			trustProxy:        true,
			trustedProxyCount: 5,
			want:              "198.51.100.1",
		},
		{
			name:       "x-real-ip fallback",
			remoteAddr: "10.0.0.1:80",
			xRealIP:    "198.51.100.1",
			trustProxy: true,
			want:       "198.51.100.1",
		},
		{
			name:          "garbage forwarded-for falls through",
			remoteAddr:    "203.0.113.7:55012",
			xForwardedFor: "not-an-ip",
			trustProxy:    true,
			want:          "203.0.113.7",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "203.0.113.7",
			want:       "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xForwardedFor != "" {
				r.Header.Set("X-Forwarded-For", tt.xForwardedFor)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}

			if got := ClientIP(r, tt.trustProxy, tt.trustedProxyCount); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
