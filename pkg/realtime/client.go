package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/nextintranet/stationlink/pkg/types"
)

var (
	// ErrNotInitialized is returned when the Client is used before Initialize.
	ErrNotInitialized = errors.New("realtime: client not initialized")

	// ErrDestroyed is returned when the Client is used after Destroy.
	ErrDestroyed = errors.New("realtime: client destroyed")
)

// Client is the dual-channel realtime connection manager.
//
// All exported methods are safe for concurrent use.
type Client struct {
	base     *url.URL
	getToken func() string
	dialer   Dialer
	sched    *Scheduler
	storage  Storage
	query    url.Values
	logger   *slog.Logger

	mu          sync.Mutex
	persistMu   sync.Mutex
	events      *channel
	station     *channel
	scope       string
	state       types.ConnectionState
	stateSeq    uint64
	initialized bool
	destroyed   bool

	reg      *registry
	dispatch *dispatcher
}

type options struct {
	dialer  Dialer
	clock   Clock
	delay   DelayPolicy
	storage Storage
	query   url.Values
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*options)

// WithDialer replaces the default WebSocketDialer.
func WithDialer(d Dialer) Option { return func(o *options) { o.dialer = d } }

// WithClock replaces the system clock used for reconnect timers.
func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

// WithReconnectDelay replaces Fixed(DefaultReconnectDelay).
func WithReconnectDelay(p DelayPolicy) Option { return func(o *options) { o.delay = p } }

// WithStorage sets where the station id is persisted. Defaults to a
// MemoryStorage.
func WithStorage(s Storage) Option { return func(o *options) { o.storage = s } }

// WithQuery supplies the launch query string consulted once by Initialize
// for "station" / "stationId".
func WithQuery(q url.Values) Option { return func(o *options) { o.query = q } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New creates a Client for baseURL (ws, wss, http or https; http schemes are
// mapped to their websocket equivalents). getToken is called on every dial;
// it may be nil when the relay does not require a token.
func New(baseURL string, getToken func() string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = &WebSocketDialer{}
	}
	if o.storage == nil {
		o.storage = NewMemoryStorage()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if getToken == nil {
		getToken = func() string { return "" }
	}

	return &Client{
		base:     base,
		getToken: getToken,
		dialer:   o.dialer,
		sched:    NewScheduler(o.clock, o.delay),
		storage:  o.storage,
		query:    o.query,
		logger:   o.logger,
		events:   newChannel(ChannelEvents),
		station:  newChannel(ChannelStation),
		state: types.ConnectionState{
			Events:  types.StatusDisconnected,
			Station: types.StatusDisconnected,
		},
		reg:      newRegistry(o.logger),
		dispatch: &dispatcher{},
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("realtime: base url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("realtime: base url %q: unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("realtime: base url %q: missing host", raw)
	}
	u.Fragment = ""
	return u, nil
}

// Initialize seeds the station scope and opens both channels. Calling it
// again is a no-op.
func (c *Client) Initialize() error {
	c.mu.Lock()
	done := c.destroyed || c.initialized
	c.mu.Unlock()
	if done {
		return c.initializedErr()
	}

	seed, fromQuery := c.loadScope()

	c.mu.Lock()
	if c.destroyed || c.initialized {
		c.mu.Unlock()
		return c.initializedErr()
	}
	c.initialized = true
	c.scope = seed
	c.logger.Info("realtime: initializing", "base_url", c.base.String(), "station", c.scope)
	c.connectEventsLocked()
	c.connectStationLocked(false)
	c.mu.Unlock()

	if fromQuery {
		c.persistScope()
	}
	c.dispatch.drain()
	return nil
}

// initializedErr is what a repeated Initialize returns.
func (c *Client) initializedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}
	return nil
}

// usableLocked rejects calls before Initialize or after Destroy.
func (c *Client) usableLocked() error {
	if c.destroyed {
		return ErrDestroyed
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// State returns the current connection state.
func (c *Client) State() types.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnMessage registers h for every inbound event and returns its
// unsubscribe func. The subscription survives reconnects and station
// changes.
func (c *Client) OnMessage(h MessageHandler) (unsubscribe func()) {
	id, ok := c.reg.addMessage(h)
	if !ok {
		return func() {}
	}
	return func() { c.reg.removeMessage(id) }
}

// OnConnectionState registers h for state transitions and calls it once
// with the current state before returning. The initial call runs on the
// calling goroutine; transitions that happen meanwhile reach h after it.
func (c *Client) OnConnectionState(h StateHandler) (unsubscribe func()) {
	c.mu.Lock()
	e, ok := c.reg.addState(h, c.stateSeq)
	current := c.state
	c.mu.Unlock()

	if !ok {
		return func() {}
	}
	c.reg.prime(e, current)
	return func() { c.reg.removeState(e.id) }
}

// Destroy closes both sockets, cancels pending reconnects and drops every
// subscription. It is idempotent.
func (c *Client) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true

	c.sched.Stop()
	for _, ch := range []*channel{c.events, c.station} {
		c.teardownLocked(ch)
		ch.status = types.StatusDisconnected
	}
	c.state = types.ConnectionState{
		Events:  types.StatusDisconnected,
		Station: types.StatusDisconnected,
	}
	c.reg.clear()
	c.logger.Info("realtime: client destroyed")
}
