package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCheck_PlainURLs(t *testing.T) {
	for _, u := range []string{"ws://relay:8000", "http://relay", "::bad::"} {
		if cs := Check(context.Background(), u, false); cs != nil {
			t.Errorf("Check(%q): got %+v, want nil", u, cs)
		}
	}
}

func TestCheck_TLSServer(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	defer srv.Close()
	wss := "wss" + strings.TrimPrefix(srv.URL, "https")

	cert := srv.Certificate()

	tests := []struct {
		name string
		now  time.Time
		want string
	}{
		{"valid", cert.NotAfter.Add(-365 * 24 * time.Hour), "valid"},
		{"expiring", cert.NotAfter.Add(-24 * time.Hour), "expiring"},
		{"expired", cert.NotAfter.Add(time.Hour), "expired"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cs := check(context.Background(), wss, true, func() time.Time { return tc.now })
			if cs == nil {
				t.Fatal("got nil status for wss URL")
			}
			if cs.Status != tc.want {
				t.Errorf("status: got %q, want %q", cs.Status, tc.want)
			}
			if !cs.NotAfter.Equal(cert.NotAfter) {
				t.Errorf("not_after: got %v, want %v", cs.NotAfter, cert.NotAfter)
			}
		})
	}
}

func TestCheck_Unreachable(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	addr := srv.Listener.Addr().String()
	srv.Close()

	cs := Check(context.Background(), "wss://"+addr, true)
	if cs == nil || cs.Status != "unreachable" {
		t.Fatalf("got %+v, want unreachable", cs)
	}
}
