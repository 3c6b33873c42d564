package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort      = 8000
	DefaultEventTTL      = 10 * time.Minute
	DefaultEventMax      = 1000
	DefaultSendBuffer    = 64
	DefaultReadLimit     = 64 * 1024
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the websocket relay, REST API and /metrics listen
	// on (default 8000).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how the server authenticates websocket and REST clients.
	Auth AuthConfig `yaml:"auth"`

	// Events controls the recent-event buffer behind GET /api/v1/events.
	Events EventsConfig `yaml:"events"`

	// Hub tunes per-connection limits.
	Hub HubConfig `yaml:"hub"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
}

// AuthConfig controls client authentication on the server side.
type AuthConfig struct {
	// Mode is one of: token | none.
	Mode string `yaml:"mode"`

	// TokenEnv is the name of the environment variable that holds the
	// expected access token. Used when Mode == "token".
	TokenEnv string `yaml:"token_env"`
}

// Token returns the expected token resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// EventsConfig controls in-memory retention of relayed events.
type EventsConfig struct {
	// TTL is how long a relayed event stays listable. Default: 10m.
	TTL time.Duration `yaml:"ttl"`

	// Max caps the number of retained events; the oldest go first.
	Max int `yaml:"max"`
}

// HubConfig holds websocket connection limits.
type HubConfig struct {
	// SendBuffer is the per-client outgoing queue depth. A client whose
	// queue fills is disconnected.
	SendBuffer int `yaml:"send_buffer"`

	// ReadLimit is the largest inbound frame accepted, in bytes.
	ReadLimit int64 `yaml:"read_limit"`
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Auth:     AuthConfig{Mode: "token"},
			Events: EventsConfig{
				TTL: DefaultEventTTL,
				Max: DefaultEventMax,
			},
			Hub: HubConfig{
				SendBuffer: DefaultSendBuffer,
				ReadLimit:  DefaultReadLimit,
			},
			LogLevel: "info",
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	switch s.Auth.Mode {
	case "token":
		if s.Auth.TokenEnv == "" {
			return fmt.Errorf("server.auth.token_env is required when mode is token")
		}
	case "none":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want token|none", s.Auth.Mode)
	}
	if s.Events.TTL <= 0 {
		return fmt.Errorf("server.events.ttl must be positive")
	}
	if s.Events.Max <= 0 {
		return fmt.Errorf("server.events.max must be positive")
	}
	if s.Hub.SendBuffer <= 0 {
		return fmt.Errorf("server.hub.send_buffer must be positive")
	}
	if s.Hub.ReadLimit <= 0 {
		return fmt.Errorf("server.hub.read_limit must be positive")
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown", s.LogLevel)
	}
	return nil
}
