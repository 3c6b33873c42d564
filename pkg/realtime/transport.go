package realtime

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// defaultHandshakeTimeout bounds a single dial; a stalled handshake
	// surfaces as a close like any other failure.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultReadTimeout is how long the transport waits for any frame
	// (data or server ping) before treating the peer as dead.
	defaultReadTimeout = 60 * time.Second

	// writeTimeout is the deadline for a single write to the server.
	writeTimeout = 10 * time.Second
)

// ErrNotOpen is returned by Conn.Send when the connection is not open.
var ErrNotOpen = errors.New("realtime: connection not open")

// Callbacks receive the lifecycle of one connection. OnClose fires at most
// once, for a failed dial as well as for a drop after open.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(frame string)
	OnClose   func()
}

// Conn is a handle to one connection attempt.
type Conn interface {
	// Send writes one text frame. It fails with ErrNotOpen before OnOpen
	// and after close.
	Send(data []byte) error
	// Open reports whether the connection is currently usable.
	Open() bool
	// Close terminates the connection. Safe to call more than once.
	Close()
}

// Dialer opens connections. Dial must return without blocking on the
// network, and neither Dial nor Conn.Close may invoke the callbacks on the
// calling goroutine.
type Dialer interface {
	Dial(url string, cb Callbacks) Conn
}

// WebSocketDialer is the production Dialer backed by gorilla/websocket.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the opening handshake (default 10s).
	HandshakeTimeout time.Duration

	// ReadTimeout closes the connection when no frame or ping arrives
	// within this window (default 60s). Negative disables it.
	ReadTimeout time.Duration

	// TLSClientConfig is used for wss:// URLs. Nil means system defaults.
	TLSClientConfig *tls.Config
}

// Dial starts a connection attempt in its own goroutine and returns at once.
func (d *WebSocketDialer) Dial(url string, cb Callbacks) Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{cb: cb, cancel: cancel}
	go c.run(ctx, d, url)
	return c
}

func (d *WebSocketDialer) handshakeTimeout() time.Duration {
	if d.HandshakeTimeout > 0 {
		return d.HandshakeTimeout
	}
	return defaultHandshakeTimeout
}

func (d *WebSocketDialer) readTimeout() time.Duration {
	switch {
	case d.ReadTimeout < 0:
		return 0
	case d.ReadTimeout == 0:
		return defaultReadTimeout
	default:
		return d.ReadTimeout
	}
}

// wsConn is one gorilla/websocket connection plus its read loop.
type wsConn struct {
	cb     Callbacks
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *websocket.Conn
	open   bool
	closed bool

	writeMu sync.Mutex
}

func (c *wsConn) run(ctx context.Context, d *WebSocketDialer, url string) {
	defer c.finish()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.handshakeTimeout(),
		TLSClientConfig:  d.TLSClientConfig,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.open = true
	c.mu.Unlock()

	if c.cb.OnOpen != nil {
		c.cb.OnOpen()
	}

	readTimeout := d.readTimeout()
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(string(data))
		}
	}
}

// finish releases the socket and reports the close exactly once.
func (c *wsConn) finish() {
	c.mu.Lock()
	conn := c.conn
	c.open = false
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.cancel()
	if c.cb.OnClose != nil {
		c.cb.OnClose()
	}
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	conn, open := c.conn, c.open
	c.mu.Unlock()
	if !open {
		return ErrNotOpen
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.open = false
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		conn.Close()
	}
}
