package api

import "encoding/json"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	Clients       int    `json:"clients"`
	Stations      int    `json:"stations"`
	RecentEvents  int    `json:"recent_events"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// EventResponse is one entry in GET /api/v1/events. Event fields keep their
// wire names.
type EventResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	StationID  string          `json:"stationId,omitempty"`
	DeviceID   string          `json:"deviceId,omitempty"`
	TS         int64           `json:"ts"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Group      string          `json:"group"`
	ReceivedAt string          `json:"received_at"`
}

// StationResponse is one entry in GET /api/v1/stations.
type StationResponse struct {
	StationID string `json:"station_id"`
	Clients   int    `json:"clients"`
}

// errorResponse is the JSON body for all error responses.
type errorResponse struct {
	Error string `json:"error"`
}
