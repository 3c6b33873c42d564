package realtime

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextintranet/stationlink/pkg/types"
)

func TestRouter_MalformedFrameDropped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Initialize())
	ev := h.events(t)
	ev.accept()

	calls := 0
	h.client.OnMessage(func(types.Event) { calls++ })

	for _, frame := range []string{"{not json", "", "[1,2]", `"text"`, "null", " null\n", "42"} {
		assert.NotPanics(t, func() { ev.deliver(frame) })
	}
	assert.Zero(t, calls)
	assert.Equal(t, types.StatusConnected, h.client.State().Events, "malformed frames do not affect state")
}

func TestRouter_FansOutToEveryHandler(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Initialize())
	ev := h.events(t)
	ev.accept()

	var first, second []types.Event
	h.client.OnMessage(func(e types.Event) { first = append(first, e) })
	h.client.OnMessage(func(e types.Event) { second = append(second, e) })

	ev.deliver(`{"type":"ping","payload":{"n":1}}`)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	for _, got := range []types.Event{first[0], second[0]} {
		assert.Equal(t, "ping", got.Type)
		assert.JSONEq(t, `{"n":1}`, string(got.Payload))

		var p struct{ N int }
		require.NoError(t, got.DecodePayload(&p))
		assert.Equal(t, 1, p.N)
	}
}

func TestRouter_RegistrationOrder(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Initialize())
	ev := h.events(t)
	ev.accept()

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		h.client.OnMessage(func(types.Event) { order = append(order, i) })
	}
	ev.deliver(`{"type":"x"}`)
	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestRouter_PanickingHandlerIsolated(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Initialize())
	ev := h.events(t)
	ev.accept()

	after := 0
	h.client.OnMessage(func(types.Event) { panic("boom") })
	h.client.OnMessage(func(types.Event) { after++ })

	assert.NotPanics(t, func() { ev.deliver(`{"type":"x"}`) })
	assert.Equal(t, 1, after)

	// The dispatcher is still usable afterwards.
	ev.deliver(`{"type":"y"}`)
	assert.Equal(t, 2, after)
}

func TestRouter_StationFramesReachHandlers(t *testing.T) {
	h := newHarness(t, WithQuery(url.Values{"station": {"A"}}))
	require.NoError(t, h.client.Initialize())
	st := h.station(t)
	st.accept()

	var got []string
	h.client.OnMessage(func(e types.Event) { got = append(got, e.StationID) })
	st.deliver(`{"type":"label.print","stationId":"A"}`)
	assert.Equal(t, []string{"A"}, got)
}

func decodeSent(t *testing.T, raw string) types.Event {
	t.Helper()
	var ev types.Event
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func TestEmit_StationScopeStampsCurrentStation(t *testing.T) {
	h := newHarness(t, WithQuery(url.Values{"station": {"A"}}))
	require.NoError(t, h.client.Initialize())
	h.events(t).accept()
	st := h.station(t)
	st.accept()

	require.NoError(t, h.client.Emit(types.Event{Type: "scan"}, ScopeStation))
	require.NoError(t, h.client.Emit(types.Event{Type: "scan"}, ""))

	sent := st.Sent()
	require.Len(t, sent, 2)
	for _, raw := range sent {
		assert.Equal(t, "A", decodeSent(t, raw).StationID)
	}
	assert.Empty(t, h.events(t).Sent())
}

func TestEmit_ExplicitStationKept(t *testing.T) {
	h := newHarness(t, WithQuery(url.Values{"station": {"A"}}))
	require.NoError(t, h.client.Initialize())
	st := h.station(t)
	st.accept()

	require.NoError(t, h.client.Emit(types.Event{Type: "scan", StationID: "other"}, ScopeStation))
	require.Len(t, st.Sent(), 1)
	assert.Equal(t, "other", decodeSent(t, st.Sent()[0]).StationID)
}

func TestEmit_BroadcastNeverStamps(t *testing.T) {
	h := newHarness(t, WithQuery(url.Values{"station": {"A"}}))
	require.NoError(t, h.client.Initialize())
	ev := h.events(t)
	ev.accept()
	h.station(t).accept()

	require.NoError(t, h.client.Emit(types.Event{Type: "notice"}, ScopeBroadcast))
	require.Len(t, ev.Sent(), 1)
	assert.Empty(t, decodeSent(t, ev.Sent()[0]).StationID)
	assert.Empty(t, h.station(t).Sent())
}

func TestEmit_StationFallsBackToEvents(t *testing.T) {
	h := newHarness(t, WithQuery(url.Values{"station": {"A"}}))
	require.NoError(t, h.client.Initialize())
	ev := h.events(t)
	ev.accept() // station socket still connecting

	require.NoError(t, h.client.Emit(types.Event{Type: "scan"}, ScopeStation))
	require.Len(t, ev.Sent(), 1)
	assert.Equal(t, "A", decodeSent(t, ev.Sent()[0]).StationID)
}

func TestEmit_DroppedWhenNothingOpen(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Initialize())

	assert.NoError(t, h.client.Emit(types.Event{Type: "scan"}, ScopeStation))
	assert.NoError(t, h.client.Emit(types.Event{Type: "scan"}, ScopeBroadcast))
	assert.Empty(t, h.events(t).Sent())
}

func TestEmit_Errors(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Initialize())
	h.events(t).accept()

	assert.Error(t, h.client.Emit(types.Event{Type: "x"}, Scope("everyone")))
	assert.Error(t, h.client.Emit(types.Event{Type: "x", Payload: json.RawMessage(`{broken`)}, ScopeBroadcast))
}
