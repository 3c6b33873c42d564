// Package realtime is the station-side connection manager for the intranet
// realtime relay.
//
// A Client keeps two independent websocket channels open:
//
//	events:  /ws/events/            global broadcast stream
//	station: /ws/station/{id}/      stream scoped to the current station
//
// New(baseURL, getToken, opts...) creates a Client. Initialize() seeds the
// station from the "station" or "stationId" query parameter (WithQuery),
// falling back to the persisted "stationId" key in Storage, then dials both
// channels. Every dial re-reads getToken() and appends it as the "token"
// query parameter, so a token rotated between reconnects is honoured.
//
// Each channel moves through disconnected → connecting → connected. An
// unexpected close marks the channel disconnected and arms one reconnect
// timer (fixed 3s by default, see WithReconnectDelay). Duplicate reconnect
// requests coalesce. Retries never stop until Destroy().
//
// SetStation(id) persists the new station and force-reconnects only the
// station channel; the events channel is untouched. An empty id closes the
// station channel without scheduling a retry.
//
// Inbound frames are decoded as types.Event; malformed frames are dropped.
// Every OnMessage handler sees every event in registration order, and a
// panicking handler does not stop the rest. OnConnectionState handlers are
// called immediately with the current state and again on every transition.
//
// Emit(event, scope) is best-effort: ScopeBroadcast writes to the events
// socket, ScopeStation writes to the station socket when it is open and
// otherwise falls back to the events socket, stamping StationID with the
// current station when the event carries none. Writes to a socket that is
// not open are dropped without error.
//
// Notifications are delivered through a serial dispatcher: all handlers run
// one at a time in the order the underlying transitions happened, and a
// handler may call back into the Client (Emit, SetStation, unsubscribe)
// without deadlocking.
package realtime
