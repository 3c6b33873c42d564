// Package security inspects the TLS certificate of a wss:// relay before the
// agent connects to it, so an expired or soon-to-expire certificate shows up
// in the agent log rather than as an endless reconnect loop.
package security
