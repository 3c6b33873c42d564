// Package types defines shared Go types used by both the agent and server.
// These are the canonical in-memory representations of realtime events and
// connection state, and double as the JSON wire format on both websocket
// channels.
package types
