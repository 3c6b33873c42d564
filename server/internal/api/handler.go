package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/nextintranet/stationlink/pkg/types"
	"github.com/nextintranet/stationlink/server/internal/store"
	"github.com/nextintranet/stationlink/server/internal/ws"
)

// maxBody caps POST /api/v1/events request bodies.
const maxBody = 64 * 1024

// Relay is the part of the websocket hub the API needs.
type Relay interface {
	Publish(ev types.Event) types.Event
	Count() int
	Stations() map[string]int
}

// Handler serves the /api/v1 endpoints.
type Handler struct {
	store   *store.Store
	relay   Relay
	started time.Time
	now     func() time.Time // injectable for deterministic tests
}

// New creates a Handler reading recent events from st and publishing
// through relay.
func New(st *store.Store, relay Relay) *Handler {
	return &Handler{store: st, relay: relay, started: time.Now(), now: time.Now}
}

// Register mounts the routes on r. Health stays open for load-balancer
// liveness checks; every other route is wrapped in mw (typically the token check).
func (h *Handler) Register(r *mux.Router, mw ...mux.MiddlewareFunc) {
	guarded := func(fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		for i := len(mw) - 1; i >= 0; i-- {
			next = mw[i](next)
		}
		return next
	}

	r.HandleFunc("/api/v1/health", h.health).Methods(http.MethodGet)
	r.Handle("/api/v1/events", guarded(h.listEvents)).Methods(http.MethodGet)
	r.Handle("/api/v1/events", guarded(h.publishEvent)).Methods(http.MethodPost)
	r.Handle("/api/v1/stations", guarded(h.listStations)).Methods(http.MethodGet)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health: liveness plus hub counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Clients:       h.relay.Count(),
		Stations:      len(h.relay.Stations()),
		RecentEvents:  len(h.store.List("", "", 0)),
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
	})
}

// listEvents returns GET /api/v1/events?station=&limit=: live relayed
// events, newest first.
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	station := q.Get("station")
	group := ""
	if station != "" {
		group = ws.StationGroup(station)
	}
	entries := h.store.List(station, group, limit)
	out := make([]EventResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEventResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// publishEvent handles POST /api/v1/events: the body is one event, relayed
// to its station group or to broadcast. Responds 202 with the event as sent.
func (h *Handler) publishEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			jsonErr(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, "read body")
		return
	}

	var ev types.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		jsonErr(w, http.StatusBadRequest, "body must be a JSON event object")
		return
	}
	if ev.Type == "" {
		jsonErr(w, http.StatusBadRequest, "type is required")
		return
	}

	jsonResp(w, http.StatusAccepted, h.relay.Publish(ev))
}

// listStations returns GET /api/v1/stations: connected clients per station,
// ordered by station id.
func (h *Handler) listStations(w http.ResponseWriter, r *http.Request) {
	counts := h.relay.Stations()
	out := make([]StationResponse, 0, len(counts))
	for id, n := range counts {
		out = append(out, StationResponse{StationID: id, Clients: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// toEventResponse maps a store.Entry to its JSON representation.
func toEventResponse(e store.Entry) EventResponse {
	ev := e.Event
	return EventResponse{
		ID:         ev.ID,
		Type:       ev.Type,
		StationID:  ev.StationID,
		DeviceID:   ev.DeviceID,
		TS:         ev.TS,
		Payload:    ev.Payload,
		Group:      e.Group,
		ReceivedAt: e.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
}
