package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nextintranet/stationlink/pkg/types"
	"github.com/nextintranet/stationlink/server/internal/auth"
	"github.com/nextintranet/stationlink/server/internal/metrics"
	"github.com/nextintranet/stationlink/server/internal/store"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating the
	// connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping frames.
	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	defaultSendBuffer = 64
	defaultReadLimit  = 64 * 1024
)

// CloseUnauthorized is the close code sent to a socket that presented no
// valid token.
const CloseUnauthorized = 4401

// GroupBroadcast is joined by every connection.
const GroupBroadcast = "broadcast"

// StationGroup names the group joined by connections bound to station id.
func StationGroup(id string) string { return "station-" + id }

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Options configures a Hub. Nil Store and Metrics are allowed.
type Options struct {
	Auth    *auth.Checker
	Store   *store.Store
	Metrics *metrics.Metrics

	// SendBuffer is the per-client outgoing queue depth (default 64).
	SendBuffer int
	// ReadLimit caps inbound frame size in bytes (default 64 KiB).
	ReadLimit int64
}

// Hub relays events between websocket clients grouped by station.
type Hub struct {
	auth      *auth.Checker
	store     *store.Store
	metrics   *metrics.Metrics
	sendBuf   int
	readLimit int64

	now   func() time.Time // injectable for deterministic tests
	newID func() string

	mu      sync.RWMutex
	clients map[*client]struct{}
	groups  map[string]map[*client]struct{}
	closed  bool
}

// client represents one connected WebSocket client.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	station string
	groups  []string
	send    chan []byte
}

// New creates a Hub.
func New(opts Options) *Hub {
	if opts.Auth == nil {
		opts.Auth = auth.NewChecker("none", "")
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	h := &Hub{
		auth:      opts.Auth,
		store:     opts.Store,
		metrics:   opts.Metrics,
		sendBuf:   opts.SendBuffer,
		readLimit: opts.ReadLimit,
		now:       time.Now,
		newID:     uuid.NewString,
		clients:   make(map[*client]struct{}),
		groups:    make(map[string]map[*client]struct{}),
	}
	if opts.Metrics != nil {
		opts.Metrics.SetLive(h)
	}
	return h
}

// Register mounts the websocket endpoints on r. The router should be built
// with UseEncodedPath so escaped station ids survive routing.
func (h *Hub) Register(r *mux.Router) {
	r.HandleFunc("/ws/events/", h.ServeEvents)
	r.HandleFunc("/ws/station/{stationID}/", h.ServeStation)
}

// Run blocks until ctx is cancelled, then closes all active connections.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// ServeEvents serves /ws/events/: the connection joins only the broadcast
// group.
func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "")
}

// ServeStation serves /ws/station/{stationID}/: the connection joins the
// broadcast group and the station's group.
func (h *Hub) ServeStation(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["stationID"]
	id, err := url.PathUnescape(raw)
	if err != nil || id == "" {
		http.Error(w, "bad station id", http.StatusBadRequest)
		return
	}
	h.serve(w, r, id)
}

// Publish normalizes ev and relays it to its station group, or to broadcast
// when it carries no StationID. It returns the event as sent.
func (h *Hub) Publish(ev types.Event) types.Event {
	ev, _ = h.relay(ev, "")
	return ev
}

// Count returns the number of currently connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stations returns the number of clients joined to each station group.
func (h *Hub) Stations() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int)
	for c := range h.clients {
		if c.station != "" {
			out[c.station]++
		}
	}
	return out
}

// --- internal ---------------------------------------------------------------

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, station string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	if !h.auth.Allow(r) {
		slog.Info("ws: unauthenticated, closing", "path", r.URL.Path)
		h.metrics.AuthRejected()
		msg := websocket.FormatCloseMessage(CloseUnauthorized, "unauthorized")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		station: station,
		groups:  []string{GroupBroadcast},
		send:    make(chan []byte, h.sendBuf),
	}
	if station != "" {
		c.groups = append(c.groups, StationGroup(station))
	}
	if !h.register(c) {
		conn.Close()
		return
	}
	defer h.unregister(c)

	h.metrics.ConnectionAccepted()
	slog.Debug("ws: connected", "path", r.URL.Path, "groups", c.groups)

	go c.writePump()
	c.readPump() // blocks until connection closes
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	for _, g := range c.groups {
		members, ok := h.groups[g]
		if !ok {
			members = make(map[*client]struct{})
			h.groups[g] = members
		}
		members[c] = struct{}{}
	}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for _, g := range c.groups {
		if members, ok := h.groups[g]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.groups, g)
			}
		}
	}
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// normalize fills the fields a sender may omit.
func (h *Hub) normalize(ev types.Event) types.Event {
	if ev.ID == "" {
		ev.ID = h.newID()
	}
	if ev.TS == 0 {
		ev.TS = h.now().UnixMilli()
	}
	if ev.Type == "" {
		ev.Type = "event"
	}
	if len(ev.Payload) == 0 {
		ev.Payload = json.RawMessage(`{}`)
	}
	return ev
}

// relay normalizes ev and fans it out. connStation is the station of the
// sending connection, used when the event names none.
func (h *Hub) relay(ev types.Event, connStation string) (types.Event, string) {
	ev = h.normalize(ev)

	target := ev.StationID
	if target == "" {
		target = connStation
	}
	group, kind := GroupBroadcast, metrics.TargetBroadcast
	if target != "" {
		group, kind = StationGroup(target), metrics.TargetStation
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("ws: encode event failed", "type", ev.Type, "err", err)
		return ev, group
	}

	slog.Debug("ws: relay", "type", ev.Type, "group", group)
	h.sendGroup(group, data)
	h.metrics.EventRelayed(kind)
	if h.store != nil {
		h.store.Put(ev, group)
	}
	return ev, group
}

func (h *Hub) sendGroup(group string, data []byte) {
	h.mu.RLock()
	members := h.groups[group]
	targets := make([]*client, 0, len(members))
	for c := range members {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !h.trySend(c, data) {
			// Client's outgoing buffer is full; disconnect it.
			slog.Warn("ws: slow client disconnected", "station", c.station)
			h.metrics.SlowClientDropped()
			h.unregister(c)
		}
	}
}

// trySend queues data for c without blocking. It reports false when the
// queue is full. A client removed concurrently is skipped.
func (h *Hub) trySend(c *client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writePump drains the client's send channel and forwards messages to the
// WebSocket connection. It also sends periodic ping frames. Runs in its own
// goroutine per client.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Channel was closed (hub is shutting down or client removed).
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
				c.conn.WriteMessage(websocket.CloseMessage, msg) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound frames and relays each event. Frames that are not a
// JSON object are dropped. Blocks until the connection closes.
func (c *client) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(c.hub.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		c.hub.metrics.FrameReceived()

		var ev types.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.hub.metrics.FrameMalformed()
			slog.Debug("ws: dropped malformed frame", "station", c.station, "err", err)
			continue
		}
		c.hub.relay(ev, c.station)
	}
}
