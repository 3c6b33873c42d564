// Package ws implements the websocket relay for stationlink-server.
//
// Two endpoints are mounted by Hub.Register:
//
//	/ws/events/                joins group "broadcast"
//	/ws/station/{stationID}/   joins "broadcast" and "station-{stationID}"
//
// A socket without a valid token (see package auth) is accepted and then
// closed with code 4401 so clients can tell it from a network failure.
//
// Every inbound text frame is decoded as an event and normalized: a missing
// id gets a UUID, ts the current time in milliseconds, type "event" and
// payload {}. The event then goes to station-{stationId} when it names a
// station, else to the sending connection's station group, else to
// broadcast. Frames that are not a JSON object are dropped. The sender
// receives its own event when it is a member of the target group.
//
// Each client has a buffered send queue drained by a write pump that also
// pings every 54s; a client whose queue is full is disconnected. Relayed
// events are recorded in the store and counted in metrics.
//
// Hub.Publish lets the server itself push an event (POST /api/v1/events).
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
package ws
