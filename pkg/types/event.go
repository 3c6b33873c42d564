package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one realtime message. Type is an open tag interpreted by
// consumers; the transport layer never inspects it.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	StationID string          `json:"stationId,omitempty"`
	DeviceID  string          `json:"deviceId,omitempty"`
	TS        int64           `json:"ts,omitempty"` // unix milliseconds
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an Event with payload marshalled to JSON.
// A nil payload leaves Payload empty.
func NewEvent(eventType string, payload any) (Event, error) {
	ev := Event{Type: eventType}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("types: marshal payload for %q: %w", eventType, err)
	}
	ev.Payload = raw
	return ev, nil
}

// DecodePayload unmarshals the event payload into v.
func (e Event) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("types: event %q has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, v)
}

// Time returns TS as a time.Time, or the zero time when TS is unset.
func (e Event) Time() time.Time {
	if e.TS == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.TS)
}

// ConnectionStatus is the lifecycle state of one logical channel.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ConnectionState reports both channels. It is passed by value, so a copy
// handed to a subscriber never changes underneath it.
type ConnectionState struct {
	Events  ConnectionStatus `json:"events"`
	Station ConnectionStatus `json:"station"`
}

// Connected reports whether at least one channel is up.
func (s ConnectionState) Connected() bool {
	return s.Events == StatusConnected || s.Station == StatusConnected
}

// Connecting reports whether no channel is up but one is dialing.
func (s ConnectionState) Connecting() bool {
	return !s.Connected() && (s.Events == StatusConnecting || s.Station == StatusConnecting)
}
