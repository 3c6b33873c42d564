package realtime

import "github.com/nextintranet/stationlink/pkg/types"

// Subscriber is anything that fans out inbound events; *Client implements it.
type Subscriber interface {
	OnMessage(h MessageHandler) (unsubscribe func())
}

// OnEventTypes subscribes fn to events whose Type is one of eventTypes.
// Typical use is invalidating a cached view when a related entity changes.
func OnEventTypes(s Subscriber, eventTypes []string, fn MessageHandler) (unsubscribe func()) {
	want := make(map[string]struct{}, len(eventTypes))
	for _, t := range eventTypes {
		want[t] = struct{}{}
	}
	return s.OnMessage(func(ev types.Event) {
		if _, ok := want[ev.Type]; ok {
			fn(ev)
		}
	})
}
