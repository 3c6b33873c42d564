package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// QueryParam is the query parameter websocket clients put their token in;
// browsers cannot set headers on a websocket handshake.
const QueryParam = "token"

// Checker validates access tokens on incoming HTTP and websocket requests.
type Checker struct {
	mode string
	key  string
}

// NewChecker returns a Checker for the given mode ("token" or "none") and
// expected key.
//
// In token mode an empty key rejects every request.
func NewChecker(mode, key string) *Checker {
	return &Checker{mode: mode, key: key}
}

// Enabled reports whether requests are checked at all.
func (c *Checker) Enabled() bool {
	return c.mode != "none"
}

// Allow reports whether r carries the expected token, either as
// ?token=... or as an Authorization: Bearer header.
func (c *Checker) Allow(r *http.Request) bool {
	if !c.Enabled() {
		return true
	}
	if c.key == "" {
		return false
	}
	got := FromRequest(r)
	if got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(c.key)) == 1
}

// Middleware rejects requests that fail Allow with 401 and a JSON body.
func (c *Checker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.Allow(r) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="stationlink"`)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FromRequest extracts the presented token. The query parameter wins over
// the Authorization header.
func FromRequest(r *http.Request) string {
	if t := r.URL.Query().Get(QueryParam); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
