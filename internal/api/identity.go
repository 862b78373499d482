package api

import (
	"net"
	"net/http"
	"strings"
)

// clientIP derives the network identity for a request: the first
// X-Forwarded-For hop when present, otherwise the peer address without its
// port. Every access decision keys off this value.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
