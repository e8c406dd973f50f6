// Package auth guards calculation routes with a static bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// Policy lists the routes that stay public when auth is enabled. Entries
// ending in "/" match every path below them; others match exactly.
type Policy []string

// public reports whether path needs no token under p.
func (p Policy) public(path string) bool {
	for _, entry := range p {
		if strings.HasSuffix(entry, "/") && entry != "/" {
			if strings.HasPrefix(path, entry) {
				return true
			}
			continue
		}
		if path == entry {
			return true
		}
	}
	return false
}

// bearer extracts the token of an "Authorization: Bearer <token>" header.
func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

// Middleware returns an HTTP middleware that requires the configured token on
// every path outside public. It passes everything through when auth is off.
func Middleware(cfg Config, public Policy) func(http.Handler) http.Handler {
	want := []byte(cfg.Token)
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="lunar-stations"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
