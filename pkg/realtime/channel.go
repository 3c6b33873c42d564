package realtime

import (
	"github.com/nextintranet/stationlink/pkg/types"
)

// ChannelName identifies one of the two logical channels.
type ChannelName string

const (
	ChannelEvents  ChannelName = "events"
	ChannelStation ChannelName = "station"
)

// channel is the state machine for one logical stream. conn is nil exactly
// when status is disconnected. gen increases on every teardown, so
// callbacks from a superseded connection can be told apart and ignored.
type channel struct {
	name   ChannelName
	status types.ConnectionStatus
	conn   Conn
	gen    uint64
}

func newChannel(name ChannelName) *channel {
	return &channel{name: name, status: types.StatusDisconnected}
}

// connectEventsLocked (re)opens the events channel. Caller holds c.mu.
func (c *Client) connectEventsLocked() {
	c.openLocked(c.events, c.channelURL(eventsPath))
}

// connectStationLocked (re)opens the station channel for the current scope.
// Without force it leaves a connected socket alone. With no scope the
// channel is closed and stays closed. Caller holds c.mu.
func (c *Client) connectStationLocked(force bool) {
	if c.scope == "" {
		c.teardownLocked(c.station)
		c.setStatusLocked(c.station, types.StatusDisconnected)
		return
	}
	if !force && c.station.conn != nil && c.station.status == types.StatusConnected {
		return
	}
	c.openLocked(c.station, c.channelURL(stationURLPath(c.scope)))
}

func (c *Client) openLocked(ch *channel, url string) {
	c.teardownLocked(ch)
	gen := ch.gen
	c.setStatusLocked(ch, types.StatusConnecting)
	c.logger.Debug("realtime: dialing", "channel", ch.name, "url", redactURL(url))

	ch.conn = c.dialer.Dial(url, Callbacks{
		OnOpen:    func() { c.handleOpen(ch, gen) },
		OnMessage: func(frame string) { c.handleFrame(ch, gen, frame) },
		OnClose:   func() { c.handleClose(ch, gen) },
	})
}

// teardownLocked closes the channel's socket and cancels its retry timer.
// The status is left for the caller to set.
func (c *Client) teardownLocked(ch *channel) {
	ch.gen++
	c.sched.Cancel(string(ch.name))
	if ch.conn != nil {
		ch.conn.Close()
		ch.conn = nil
	}
}

// setStatusLocked records a transition, replaces the shared state value and
// queues its broadcast. Caller holds c.mu and drains afterwards.
func (c *Client) setStatusLocked(ch *channel, status types.ConnectionStatus) {
	ch.status = status
	next := c.state
	switch ch.name {
	case ChannelEvents:
		next.Events = status
	case ChannelStation:
		next.Station = status
	}
	c.state = next
	c.stateSeq++
	seq := c.stateSeq
	c.dispatch.enqueue(func() { c.reg.deliverState(seq, next) })
}

// current reports whether gen still names the live connection of ch.
func (c *Client) currentLocked(ch *channel, gen uint64) bool {
	return !c.destroyed && ch.gen == gen && ch.conn != nil
}

func (c *Client) handleOpen(ch *channel, gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(ch, gen) {
		c.mu.Unlock()
		return
	}
	c.sched.Reset(string(ch.name))
	c.setStatusLocked(ch, types.StatusConnected)
	c.logger.Info("realtime: channel connected", "channel", ch.name)
	c.mu.Unlock()

	c.dispatch.drain()
}

func (c *Client) handleFrame(ch *channel, gen uint64, frame string) {
	ev, ok := decodeFrame(frame)

	c.mu.Lock()
	if !c.currentLocked(ch, gen) {
		c.mu.Unlock()
		return
	}
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("realtime: dropped malformed frame", "channel", ch.name, "bytes", len(frame))
		return
	}
	c.dispatch.enqueue(func() { c.reg.deliverMessage(ev) })
	c.mu.Unlock()

	c.dispatch.drain()
}

func (c *Client) handleClose(ch *channel, gen uint64) {
	c.mu.Lock()
	if !c.currentLocked(ch, gen) {
		c.mu.Unlock()
		return
	}
	ch.conn = nil
	c.setStatusLocked(ch, types.StatusDisconnected)

	if ch.name == ChannelStation && c.scope == "" {
		c.mu.Unlock()
		c.dispatch.drain()
		return
	}
	if c.sched.Schedule(string(ch.name), func() { c.retry(ch, gen) }) {
		c.logger.Warn("realtime: channel closed, reconnect scheduled", "channel", ch.name)
	}
	c.mu.Unlock()

	c.dispatch.drain()
}

// retry runs on the scheduler's timer. A timer that fired while a teardown
// was cancelling it carries an old gen and is dropped.
func (c *Client) retry(ch *channel, gen uint64) {
	c.mu.Lock()
	if c.destroyed || ch.gen != gen {
		c.mu.Unlock()
		return
	}
	switch ch.name {
	case ChannelEvents:
		c.connectEventsLocked()
	case ChannelStation:
		c.connectStationLocked(false)
	}
	c.mu.Unlock()

	c.dispatch.drain()
}
