// Package api implements the HTTP REST API for stationlink-server.
//
// Handler.Register(router, middleware...) mounts:
//
//	GET  /api/v1/health    status, connected clients, stations, recent events, uptime
//	GET  /api/v1/events    recent relayed events, newest first (?station=, ?limit=)
//	POST /api/v1/events    publish one event from the server side; 202 + event as sent
//	GET  /api/v1/stations  connected clients per station ([]StationResponse)
//
// Health is always open. The other routes run behind the supplied middleware,
// which the server sets to the token check from package auth.
//
// All endpoints respond with Content-Type: application/json. Routing and
// method matching (405 for a wrong method) come from gorilla/mux.
package api
