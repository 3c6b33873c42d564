package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultReconnectDelay = 3 * time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 60 * time.Second
	DefaultStateBackend   = "memory"
	DefaultLogLevel       = "info"
)

// Config is the top-level configuration for the station agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// ServerURL is the relay base URL (http, https, ws or wss).
	ServerURL string `yaml:"server_url"`

	// Station is the station id to bind to. Empty means "use whatever the
	// state backend remembers".
	Station string `yaml:"station"`

	// Auth resolves the access token sent on every connect.
	Auth AuthConfig `yaml:"auth"`

	Reconnect ReconnectConfig `yaml:"reconnect"`

	// ConnectTimeout bounds one websocket handshake.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ReadTimeout drops a socket that has been silent this long. Zero keeps
	// the default; a negative value disables it.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// State selects where the station id is persisted across restarts.
	State StateConfig `yaml:"state"`

	TLS TLSConfig `yaml:"tls"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// AuthConfig locates the access token. The token is resolved again on
// every call to Token, so a rotated secret is picked up on the next connect.
type AuthConfig struct {
	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// TokenFile is a file whose trimmed contents are the token. It takes
	// precedence over TokenEnv when both are set.
	TokenFile string `yaml:"token_file"`
}

// Token returns the current access token, or "" when none is configured or
// the source cannot be read.
func (a AuthConfig) Token() string {
	if a.TokenFile != "" {
		data, err := os.ReadFile(a.TokenFile)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(data))
	}
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// ReconnectConfig controls the wait between a dropped socket and the next dial.
type ReconnectConfig struct {
	// Delay is the fixed wait, or the first wait for exponential backoff.
	Delay time.Duration `yaml:"delay"`

	// Backoff is one of: fixed | exponential.
	Backoff string `yaml:"backoff"`

	// MaxDelay caps exponential backoff.
	MaxDelay time.Duration `yaml:"max_delay"`
}

// StateConfig selects the station-id storage backend.
type StateConfig struct {
	// Backend is one of: memory | file | sqlite.
	Backend string `yaml:"backend"`

	// Path is the file (file backend) or database (sqlite backend) location.
	Path string `yaml:"path"`
}

// TLSConfig holds dial options for wss:// relays.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			Reconnect: ReconnectConfig{
				Delay:    DefaultReconnectDelay,
				Backoff:  "fixed",
				MaxDelay: DefaultMaxDelay,
			},
			ConnectTimeout: DefaultConnectTimeout,
			ReadTimeout:    DefaultReadTimeout,
			State:          StateConfig{Backend: DefaultStateBackend},
			LogLevel:       DefaultLogLevel,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerURL == "" {
		return fmt.Errorf("agent.server_url is required")
	}
	u, err := url.Parse(a.ServerURL)
	if err != nil {
		return fmt.Errorf("agent.server_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("agent.server_url: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("agent.server_url: host is required")
	}

	if a.Reconnect.Delay <= 0 {
		return fmt.Errorf("agent.reconnect.delay must be positive")
	}
	switch a.Reconnect.Backoff {
	case "fixed":
	case "exponential":
		if a.Reconnect.MaxDelay < a.Reconnect.Delay {
			return fmt.Errorf("agent.reconnect.max_delay must be >= delay")
		}
	default:
		return fmt.Errorf("agent.reconnect.backoff: unknown mode %q", a.Reconnect.Backoff)
	}
	if a.ConnectTimeout <= 0 {
		return fmt.Errorf("agent.connect_timeout must be positive")
	}

	switch a.State.Backend {
	case "memory":
	case "file", "sqlite":
		if a.State.Path == "" {
			return fmt.Errorf("agent.state.path is required for backend %q", a.State.Backend)
		}
	default:
		return fmt.Errorf("agent.state.backend: unknown backend %q", a.State.Backend)
	}

	switch a.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level: unknown level %q", a.LogLevel)
	}
	return nil
}
