package realtime

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// --- manual clock ------------------------------------------------------------

type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*manualTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

// Armed counts timers that have neither fired nor been stopped.
func (c *manualClock) Armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// --- fake transport ----------------------------------------------------------

type fakeConn struct {
	url string
	cb  Callbacks

	mu     sync.Mutex
	open   bool
	closed bool
	sent   []string
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrNotOpen
	}
	f.sent = append(f.sent, string(data))
	return nil
}

func (f *fakeConn) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.open = false
}

func (f *fakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

// accept simulates a completed handshake.
func (f *fakeConn) accept() {
	f.mu.Lock()
	f.open = true
	f.mu.Unlock()
	f.cb.OnOpen()
}

// drop simulates an error or server-side close.
func (f *fakeConn) drop() {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.cb.OnClose()
}

func (f *fakeConn) deliver(frame string) {
	f.cb.OnMessage(frame)
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (d *fakeDialer) Dial(url string, cb Callbacks) Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeConn{url: url, cb: cb}
	d.conns = append(d.conns, c)
	return c
}

// dials returns every connection whose URL contains pathPart, oldest first.
func (d *fakeDialer) dials(pathPart string) []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeConn
	for _, c := range d.conns {
		if strings.Contains(c.url, pathPart) {
			out = append(out, c)
		}
	}
	return out
}

func (d *fakeDialer) last(t *testing.T, pathPart string) *fakeConn {
	t.Helper()
	conns := d.dials(pathPart)
	require.NotEmpty(t, conns, "no dial matching %q", pathPart)
	return conns[len(conns)-1]
}

// --- harness -----------------------------------------------------------------

const testBase = "ws://relay.test"

type harness struct {
	client  *Client
	dialer  *fakeDialer
	clock   *manualClock
	storage *MemoryStorage
	token   string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		dialer:  &fakeDialer{},
		clock:   &manualClock{},
		storage: NewMemoryStorage(),
		token:   "tok-1",
	}
	base := []Option{WithDialer(h.dialer), WithClock(h.clock), WithStorage(h.storage)}
	c, err := New(testBase, func() string { return h.token }, append(base, opts...)...)
	require.NoError(t, err)
	h.client = c
	t.Cleanup(c.Destroy)
	return h
}

func (h *harness) events(t *testing.T) *fakeConn { return h.dialer.last(t, "/ws/events/") }

func (h *harness) station(t *testing.T) *fakeConn { return h.dialer.last(t, "/ws/station/") }
