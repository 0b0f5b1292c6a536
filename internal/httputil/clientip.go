package httputil

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address: the first hop of
// X-Forwarded-For when a proxy set it, otherwise RemoteAddr without
// the port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
