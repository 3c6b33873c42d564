package realtime

import (
	"log/slog"
	"sync"

	"github.com/nextintranet/stationlink/pkg/types"
)

// MessageHandler receives every decoded inbound event.
type MessageHandler func(types.Event)

// StateHandler receives the connection state after every transition.
type StateHandler func(types.ConnectionState)

// registry holds the two subscriber sets. Entries are keyed by a
// registration id, so the same func registered twice is two subscriptions
// and each unsubscribe removes exactly its own entry.
type registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   uint64
	messages []messageEntry
	states   []*stateEntry
	closed   bool
}

type messageEntry struct {
	id uint64
	fn MessageHandler
}

// stateEntry is one state subscription. since is the state sequence the
// handler was registered at; notifications at or before it are skipped.
// Until primed, notifications queue in backlog so the initial call always
// runs first and never overlaps a later one.
type stateEntry struct {
	id    uint64
	since uint64
	fn    StateHandler

	mu      sync.Mutex
	primed  bool
	removed bool
	backlog []types.ConnectionState
}

func newRegistry(logger *slog.Logger) *registry {
	return &registry{logger: logger}
}

func (r *registry) addMessage(fn MessageHandler) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || fn == nil {
		return 0, false
	}
	r.nextID++
	r.messages = append(r.messages, messageEntry{id: r.nextID, fn: fn})
	return r.nextID, true
}

func (r *registry) addState(fn StateHandler, since uint64) (*stateEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || fn == nil {
		return nil, false
	}
	r.nextID++
	e := &stateEntry{id: r.nextID, since: since, fn: fn}
	r.states = append(r.states, e)
	return e, true
}

func (r *registry) removeMessage(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.messages {
		if e.id == id {
			r.messages = append(r.messages[:i:i], r.messages[i+1:]...)
			return
		}
	}
}

func (r *registry) removeState(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.states {
		if e.id == id {
			r.states = append(r.states[:i:i], r.states[i+1:]...)
			e.mu.Lock()
			e.removed = true
			e.backlog = nil
			e.mu.Unlock()
			return
		}
	}
}

// clear drops every subscription and refuses new ones.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.states {
		e.mu.Lock()
		e.removed = true
		e.backlog = nil
		e.mu.Unlock()
	}
	r.messages = nil
	r.states = nil
	r.closed = true
}

func (r *registry) counts() (messages, states int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages), len(r.states)
}

// deliverMessage calls the handlers registered at delivery time, in
// registration order.
func (r *registry) deliverMessage(ev types.Event) {
	r.mu.RLock()
	targets := make([]messageEntry, len(r.messages))
	copy(targets, r.messages)
	r.mu.RUnlock()

	for _, e := range targets {
		r.call("message", func() { e.fn(ev) })
	}
}

// deliverState hands state seq to every handler registered before it.
func (r *registry) deliverState(seq uint64, st types.ConnectionState) {
	r.mu.RLock()
	targets := make([]*stateEntry, len(r.states))
	copy(targets, r.states)
	r.mu.RUnlock()

	for _, e := range targets {
		if e.since >= seq {
			continue
		}
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		if !e.primed {
			e.backlog = append(e.backlog, st)
			e.mu.Unlock()
			continue
		}
		e.mu.Unlock()
		r.call("state", func() { e.fn(st) })
	}
}

// prime makes the initial call to e on the calling goroutine, then replays
// whatever the dispatcher queued for e meanwhile.
func (r *registry) prime(e *stateEntry, current types.ConnectionState) {
	r.call("state", func() { e.fn(current) })
	for {
		e.mu.Lock()
		if e.removed || len(e.backlog) == 0 {
			e.primed = true
			e.backlog = nil
			e.mu.Unlock()
			return
		}
		pending := e.backlog
		e.backlog = nil
		e.mu.Unlock()

		for _, st := range pending {
			r.call("state", func() { e.fn(st) })
		}
	}
}

func (r *registry) call(kind string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("realtime: subscriber panicked", "kind", kind, "panic", v)
		}
	}()
	fn()
}

// dispatcher runs queued notifications one at a time, in enqueue order.
// Whichever goroutine finds the queue idle drains it; everyone else just
// enqueues. A handler that re-enters the client therefore never blocks on
// itself, and its own notifications run after it returns.
type dispatcher struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
}

func (d *dispatcher) drain() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.mu.Unlock()
		fn()
		d.mu.Lock()
	}
	d.draining = false
	d.mu.Unlock()
}
