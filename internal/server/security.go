package server

import (
	"fmt"
	"net/http"
	"strings"
)

type SecurityConfig struct {
	BaseURL         string
	StorageEndpoint string
}

// securityHeaders hardens every response. The watch page streams video from
// object storage and carries an inline stylesheet, so the CSP whitelists the
// storage endpoint for media and allows inline styles; nothing serves
// scripts.
func securityHeaders(cfg SecurityConfig) func(http.Handler) http.Handler {
	strictTransport := strings.HasPrefix(cfg.BaseURL, "https://")

	mediaSrc := "'self'"
	if cfg.StorageEndpoint != "" {
		mediaSrc += " " + cfg.StorageEndpoint
	}
	csp := fmt.Sprintf(
		"default-src 'self'; img-src 'self' data:; media-src %s; script-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'self';",
		mediaSrc,
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy", csp)

			if strictTransport {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
