package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/nextintranet/stationlink/pkg/types"
)

// Scope selects the outbound socket for Emit.
type Scope string

const (
	// ScopeStation targets the current station; it is the default.
	ScopeStation Scope = "station"
	// ScopeBroadcast targets every connected client.
	ScopeBroadcast Scope = "broadcast"
)

const (
	eventsPath  = "/ws/events/"
	stationPath = "/ws/station/%s/"
)

// decodeFrame parses one inbound frame. ok is false for anything that is
// not a JSON object, null included.
func decodeFrame(frame string) (ev types.Event, ok bool) {
	if !strings.HasPrefix(strings.TrimSpace(frame), "{") {
		return types.Event{}, false
	}
	if err := json.Unmarshal([]byte(frame), &ev); err != nil {
		return types.Event{}, false
	}
	return ev, true
}

// Emit sends ev best-effort. ScopeBroadcast always uses the events socket.
// ScopeStation (or the zero Scope) uses the station socket when it is open
// and the events socket otherwise, and stamps the current station onto an
// event that has no StationID. If the chosen socket is not open the event is
// dropped and Emit still returns nil: realtime delivery is not guaranteed.
func (c *Client) Emit(ev types.Event, scope Scope) error {
	if scope == "" {
		scope = ScopeStation
	}
	if scope != ScopeStation && scope != ScopeBroadcast {
		return fmt.Errorf("realtime: emit: unknown scope %q", scope)
	}

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	conn := c.targetLocked(scope)
	if scope == ScopeStation && ev.StationID == "" {
		ev.StationID = c.scope
	}
	c.mu.Unlock()

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: emit %q: marshal: %w", ev.Type, err)
	}

	if conn == nil || !conn.Open() {
		c.logger.Debug("realtime: emit dropped, socket not open", "type", ev.Type, "scope", scope)
		return nil
	}
	if err := conn.Send(data); err != nil {
		c.logger.Debug("realtime: emit dropped", "type", ev.Type, "scope", scope, "err", err)
	}
	return nil
}

// targetLocked picks the outbound connection for scope. Caller holds c.mu.
func (c *Client) targetLocked(scope Scope) Conn {
	if scope == ScopeStation && c.station.conn != nil && c.station.conn.Open() {
		return c.station.conn
	}
	return c.events.conn
}

// channelURL joins escapedPath onto the base URL and adds the current token.
func (c *Client) channelURL(escapedPath string) string {
	u := *c.base
	u.RawPath = strings.TrimSuffix(c.base.EscapedPath(), "/") + escapedPath
	if p, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = p
	}

	q := u.Query()
	if token := c.getToken(); token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func stationURLPath(id string) string {
	return fmt.Sprintf(stationPath, url.PathEscape(id))
}

// redactURL hides the token in URLs written to logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "redacted")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
