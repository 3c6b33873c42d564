// Package config loads the relay server configuration from the `server:`
// section of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - HTTPPort: port for the websocket relay, REST API and /metrics (default 8000)
//   - Auth.Mode: "token" (default) or "none"
//   - Auth.TokenEnv: environment variable holding the expected access token
//   - Events.TTL, Events.Max: retention of relayed events (default 10m, 1000)
//   - Hub.SendBuffer, Hub.ReadLimit: per-connection queue depth and frame cap
//   - LogLevel: debug | info | warn | error
//
// Load(path) applies defaults before unmarshalling, then validates.
package config
