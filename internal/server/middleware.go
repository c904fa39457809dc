// middleware.go - Host and Origin validation plus CORS for the ingest API.
package server

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// isAllowedOrigin accepts empty origins (CLI/curl), localhost variants,
// browser extensions and any origin listed in extra.
func isAllowedOrigin(origin string, extra []string) bool {
	if origin == "" {
		return true
	}
	if strings.HasPrefix(origin, "chrome-extension://") || strings.HasPrefix(origin, "moz-extension://") {
		return true
	}
	for _, o := range extra {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return isLoopback(u.Hostname())
}

// isAllowedHost rejects Host headers that are not loopback, which blocks
// DNS rebinding against a locally bound collector.
func isAllowedHost(host string) bool {
	if host == "" {
		return true
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	hostname = strings.TrimPrefix(hostname, "[")
	hostname = strings.TrimSuffix(hostname, "]")
	return isLoopback(hostname)
}

func isLoopback(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

// guard validates Host (unless disabled for non-loopback binds) and Origin,
// echoes the allowed origin for CORS and answers preflight requests.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowAnyHost && !isAllowedHost(r.Host) {
			http.Error(w, "Invalid Host header", http.StatusForbidden)
			return
		}
		origin := r.Header.Get("Origin")
		if !isAllowedOrigin(origin, s.opts.AllowedOrigins) {
			http.Error(w, "Origin not allowed", http.StatusForbidden)
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
