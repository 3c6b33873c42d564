package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func req(target, authz string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	return r
}

func TestChecker_ModeNone_PassesThrough(t *testing.T) {
	c := NewChecker("none", "secret")
	if !c.Allow(req("/ws/events/", "")) {
		t.Fatal("mode none should allow requests without a token")
	}
	if c.Enabled() {
		t.Error("Enabled(): got true for mode none")
	}
}

func TestChecker_EmptyKey_RejectsEverything(t *testing.T) {
	c := NewChecker("token", "")
	if c.Allow(req("/ws/events/?token=", "")) {
		t.Error("empty presented token accepted")
	}
	if c.Allow(req("/ws/events/?token=anything", "")) {
		t.Error("token accepted although no key is configured")
	}
}

func TestChecker_Token(t *testing.T) {
	c := NewChecker("token", "secret")

	tests := []struct {
		name   string
		target string
		authz  string
		want   bool
	}{
		{"query param", "/ws/events/?token=secret", "", true},
		{"bearer header", "/api/v1/events", "Bearer secret", true},
		{"bearer lowercase", "/api/v1/events", "bearer secret", true},
		{"wrong query", "/ws/events/?token=nope", "", false},
		{"wrong header", "/api/v1/events", "Bearer nope", false},
		{"basic header", "/api/v1/events", "Basic c2VjcmV0", false},
		{"missing", "/ws/station/A/", "", false},
		{"query wins over header", "/ws/events/?token=nope", "Bearer secret", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Allow(req(tc.target, tc.authz)); got != tc.want {
				t.Errorf("Allow: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	c := NewChecker("token", "secret")
	h := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req("/api/v1/events", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type: got %q", ct)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req("/api/v1/events", "Bearer secret"))
	if rr.Code != http.StatusNoContent {
		t.Errorf("valid token: got %d, want 204", rr.Code)
	}
}
