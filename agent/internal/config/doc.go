// Package config loads and watches the station agent configuration file
// (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: server_url, station, auth, reconnect, connect_timeout,
//     read_timeout, state, tls, log_level
//   - AuthConfig: token_env and token_file. Token() resolves the secret on
//     every call so a rotated token is used on the next connect
//   - ReconnectConfig: delay, backoff (fixed|exponential), max_delay
//   - StateConfig: backend (memory|file|sqlite) and path
//
// Load(path) reads the YAML file, applies defaults (3s fixed reconnect, 30s
// backoff cap, 10s handshake, 60s read timeout, memory state, info logs),
// then validates required fields and enums.
//
// WatchStation(ctx, path, current, apply) watches the file's directory with
// fsnotify, reloads once per settled burst of writes (an atomic save is one
// reload) and calls apply when agent.station names a different, non-empty
// station.
package config
