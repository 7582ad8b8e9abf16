// Package sync implements the client side of the push channel: a
// persistent websocket connection that authenticates with a bearer
// credential, delivers typed events in arrival order, and recovers from
// unexpected closes with a fixed-interval reconnect.
package sync

import (
	"net/http"
	stdsync "sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"scenarioflow/pkg/models"
)

// ConnState is the connectivity state surfaced to the UI
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// DefaultReconnectInterval is the fixed delay between reconnect attempts.
// The backoff is deliberately flat, not exponential.
const DefaultReconnectInterval = 5 * time.Second

// Channel is one persistent push connection bound to one credential. It is
// created via Dial and lives until Disconnect or until its owner swaps the
// credential; credentials are never shared across channels.
type Channel struct {
	url               string
	credential        string
	dialer            *websocket.Dialer
	reconnectInterval time.Duration
	eventBuffer       int
	log               *logrus.Logger

	events chan models.PushEvent
	states chan ConnState
	done   chan struct{}

	mu             stdsync.Mutex
	conn           *websocket.Conn
	state          ConnState
	reconnectTimer *time.Timer
	closed         bool
}

// Option configures a Channel
type Option func(*Channel)

// WithReconnectInterval overrides the fixed reconnect delay
func WithReconnectInterval(d time.Duration) Option {
	return func(c *Channel) { c.reconnectInterval = d }
}

// WithLogger sets the channel's logger
func WithLogger(log *logrus.Logger) Option {
	return func(c *Channel) { c.log = log }
}

// WithEventBuffer overrides the event channel's buffer size
func WithEventBuffer(n int) Option {
	return func(c *Channel) { c.eventBuffer = n }
}

// Dial creates a channel for the given endpoint and credential and starts
// its first connection attempt.
func Dial(url, credential string, opts ...Option) *Channel {
	c := &Channel{
		url:               url,
		credential:        credential,
		dialer:            websocket.DefaultDialer,
		reconnectInterval: DefaultReconnectInterval,
		eventBuffer:       256,
		log:               logrus.StandardLogger(),
		states:            make(chan ConnState, 16),
		done:              make(chan struct{}),
		state:             StateConnecting,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.events = make(chan models.PushEvent, c.eventBuffer)

	go c.dial(StateConnecting)
	return c
}

// Events returns the stream of push events in arrival order. The channel
// is never closed; consumers watch States for StateClosed.
func (c *Channel) Events() <-chan models.PushEvent {
	return c.events
}

// States returns connectivity state changes. Delivery is best-effort; use
// State for the current value.
func (c *Channel) States() <-chan ConnState {
	return c.states
}

// State returns the current connectivity state
func (c *Channel) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectPending reports whether a reconnect attempt is scheduled
func (c *Channel) ReconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnectTimer != nil
}

// Disconnect closes the channel intentionally. No reconnect is scheduled
// and any pending reconnect timer is cancelled.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

// dial performs one connection attempt, entering the given state first
func (c *Channel) dial(entering ConnState) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(entering)
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.credential)

	conn, resp, err := c.dialer.Dial(c.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.log.WithError(err).Warn("Push channel dial failed")
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.setStateLocked(StateOpen)
	c.mu.Unlock()

	c.readLoop(conn)
}

// readLoop delivers frames in arrival order until the connection drops
func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var event models.PushEvent
		if err := conn.ReadJSON(&event); err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if !closed {
				c.log.WithError(err).Warn("Push channel closed unexpectedly")
				c.scheduleReconnect()
			}
			return
		}
		// A send into a full buffer must not outlive Disconnect
		select {
		case c.events <- event:
		case <-c.done:
			return
		}
	}
}

// scheduleReconnect arms the single reconnect timer. A credential must
// still be available and at most one timer ever exists.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.credential == "" || c.reconnectTimer != nil {
		return
	}
	c.setStateLocked(StateReconnecting)
	c.reconnectTimer = time.AfterFunc(c.reconnectInterval, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			c.dial(StateReconnecting)
		}
	})
}

// setStateLocked updates the state and pushes a best-effort notification.
// Callers hold c.mu.
func (c *Channel) setStateLocked(s ConnState) {
	if c.state == s {
		return
	}
	c.state = s
	select {
	case c.states <- s:
	default:
	}
}
