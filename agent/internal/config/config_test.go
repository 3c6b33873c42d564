package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_url: "https://relay.example.com"
  station: "packing-3"
  auth:
    token_env: STATION_TOKEN
  reconnect:
    delay: 1s
    backoff: exponential
    max_delay: 20s
  connect_timeout: 5s
  state:
    backend: sqlite
    path: /var/lib/stationlink/state.db
  log_level: debug
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ServerURL != "https://relay.example.com" {
		t.Errorf("server_url: got %q", cfg.Agent.ServerURL)
	}
	if cfg.Agent.Station != "packing-3" {
		t.Errorf("station: got %q", cfg.Agent.Station)
	}
	if cfg.Agent.Reconnect.Delay != time.Second {
		t.Errorf("reconnect.delay: got %v", cfg.Agent.Reconnect.Delay)
	}
	if cfg.Agent.Reconnect.Backoff != "exponential" {
		t.Errorf("reconnect.backoff: got %q", cfg.Agent.Reconnect.Backoff)
	}
	if cfg.Agent.ConnectTimeout != 5*time.Second {
		t.Errorf("connect_timeout: got %v", cfg.Agent.ConnectTimeout)
	}
	if cfg.Agent.State.Backend != "sqlite" {
		t.Errorf("state.backend: got %q", cfg.Agent.State.Backend)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  server_url: "ws://localhost:8000"
`)

	if cfg.Agent.Reconnect.Delay != DefaultReconnectDelay {
		t.Errorf("default reconnect.delay: got %v, want %v", cfg.Agent.Reconnect.Delay, DefaultReconnectDelay)
	}
	if cfg.Agent.Reconnect.Backoff != "fixed" {
		t.Errorf("default reconnect.backoff: got %q, want fixed", cfg.Agent.Reconnect.Backoff)
	}
	if cfg.Agent.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("default connect_timeout: got %v, want %v", cfg.Agent.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Agent.ReadTimeout != DefaultReadTimeout {
		t.Errorf("default read_timeout: got %v, want %v", cfg.Agent.ReadTimeout, DefaultReadTimeout)
	}
	if cfg.Agent.State.Backend != DefaultStateBackend {
		t.Errorf("default state.backend: got %q, want %q", cfg.Agent.State.Backend, DefaultStateBackend)
	}
	if cfg.Agent.LogLevel != DefaultLogLevel {
		t.Errorf("default log_level: got %q, want %q", cfg.Agent.LogLevel, DefaultLogLevel)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server_url", `
agent:
  station: a
`},
		{"bad scheme", `
agent:
  server_url: "ftp://relay"
`},
		{"missing host", `
agent:
  server_url: "ws:///path"
`},
		{"unknown backoff", `
agent:
  server_url: "ws://relay"
  reconnect:
    backoff: fibonacci
`},
		{"max below delay", `
agent:
  server_url: "ws://relay"
  reconnect:
    delay: 10s
    backoff: exponential
    max_delay: 1s
`},
		{"zero delay", `
agent:
  server_url: "ws://relay"
  reconnect:
    delay: 0s
`},
		{"file backend without path", `
agent:
  server_url: "ws://relay"
  state:
    backend: file
`},
		{"unknown backend", `
agent:
  server_url: "ws://relay"
  state:
    backend: redis
`},
		{"unknown log level", `
agent:
  server_url: "ws://relay"
  log_level: loud
`},
		{"not yaml", "agent: [unclosed"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestAuthConfig_TokenEnv(t *testing.T) {
	t.Setenv("TEST_STATION_TOKEN", "mytoken")
	a := AuthConfig{TokenEnv: "TEST_STATION_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestAuthConfig_TokenEmpty(t *testing.T) {
	if got := (AuthConfig{}).Token(); got != "" {
		t.Errorf("Token() with nothing configured: got %q, want empty", got)
	}
}

func TestAuthConfig_TokenFileRereadEachCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("first\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_STATION_TOKEN", "from-env")
	a := AuthConfig{TokenFile: path, TokenEnv: "TEST_STATION_TOKEN"}

	if got := a.Token(); got != "first" {
		t.Errorf("Token(): got %q, want %q", got, "first")
	}
	if err := os.WriteFile(path, []byte("second"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := a.Token(); got != "second" {
		t.Errorf("Token() after rotation: got %q, want %q", got, "second")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if got := a.Token(); got != "" {
		t.Errorf("Token() with missing file: got %q, want empty", got)
	}
}

func writeStation(t *testing.T, path, station string) {
	t.Helper()
	content := "agent:\n  server_url: \"ws://relay\"\n  station: \"" + station + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

// saveAtomic replaces path the way editors do: write a sibling, rename it
// over the original.
func saveAtomic(t *testing.T, path, station string) {
	t.Helper()
	tmp := path + ".swp"
	writeStation(t, tmp, station)
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func TestWatchStation_AppliesOnlyNewNonEmptyStation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeStation(t, path, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- WatchStation(ctx, path,
			func() string { return "a" },
			func(id string) error { applied <- id; return nil })
	}()

	// The watcher may not be registered yet, so repeat the edits until one
	// lands. Only "b" may ever be applied.
	deadline := time.After(5 * time.Second)
	for {
		for _, station := range []string{"", "a", "b"} {
			saveAtomic(t, path, station)
			time.Sleep(3 * saveSettle)
		}
		select {
		case got := <-applied:
			if got != "b" {
				t.Fatalf("applied station: got %q, want b", got)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("WatchStation returned %v", err)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for station change")
		default:
		}
	}
}

func TestWatch_CoalescesSaveBurst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeStation(t, path, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const settle = 200 * time.Millisecond
	var reloads atomic.Int32
	last := make(chan string, 64)
	go func() {
		_ = watch(ctx, path, settle, func(c *Config) {
			reloads.Add(1)
			last <- c.Agent.Station
		})
	}()

	// Wait until the watcher sees writes at all.
	deadline := time.After(5 * time.Second)
	for reloads.Load() == 0 {
		writeStation(t, path, "warm")
		select {
		case <-deadline:
			t.Fatal("watcher never reloaded")
		case <-time.After(3 * settle):
		}
	}
	time.Sleep(3 * settle)
	for len(last) > 0 {
		<-last
	}
	reloads.Store(0)

	// One save: sibling write, rename over, then a follow-up write, plus
	// noise on an unrelated file in the same directory.
	saveAtomic(t, path, "b")
	writeStation(t, path, "c")
	writeStation(t, filepath.Join(dir, "other.yaml"), "x")
	time.Sleep(5 * settle)

	if n := reloads.Load(); n != 1 {
		t.Fatalf("reloads after one save: got %d, want 1", n)
	}
	if got := <-last; got != "c" {
		t.Errorf("reloaded station: got %q, want c", got)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
