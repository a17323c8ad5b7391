package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agentstation/neowatch/pkg/errors"
)

// State is an observer connection's lifecycle state. A connection moves
// forward only: connecting, connected, draining, closed.
type State int32

// Connection states.
const (
	StateConnecting State = iota
	StateConnected
	StateDraining
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport writes frames to one client.
type Transport interface {
	// WriteNotification delivers one notification.
	WriteNotification(n Notification) error

	// WriteHeartbeat writes a keep-alive.
	WriteHeartbeat() error

	// Close ends the client stream.
	Close() error
}

// Connection is one observer attached to the hub.
type Connection struct {
	id       string
	hub      *Hub
	queue    chan Notification
	startSeq uint64
	state    atomic.Int32
	lastSeen atomic.Int64

	// Written by the hub before unregistered is closed.
	reason Reason

	unregistered chan struct{}
	done         chan struct{}
}

func newConnection(id string, hub *Hub) *Connection {
	return &Connection{
		id:           id,
		hub:          hub,
		queue:        make(chan Notification, hub.config.QueueDepth),
		unregistered: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// StartSequence returns the last sequence published before the connection
// was registered. Every later sequence is delivered to it.
func (c *Connection) StartSequence() uint64 { return c.startSeq }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Pending returns the number of queued notifications.
func (c *Connection) Pending() int { return len(c.queue) }

// Reason returns why the connection was unregistered. It is empty while
// the connection is live.
func (c *Connection) Reason() Reason {
	select {
	case <-c.unregistered:
		return c.reason
	default:
		return ""
	}
}

// Touch records a liveness acknowledgment from the client.
func (c *Connection) Touch() {
	c.lastSeen.Store(c.hub.now().UnixNano())
}

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Serve is the connection's writer. It drains the queue to t in FIFO order,
// writes heartbeats while idle and reaps the connection when heartbeats go
// unacknowledged. When ctx is canceled or a write fails the connection
// unregisters itself. Once unregistered it flushes what is already queued,
// for at most the flush timeout, then closes t.
//
// Serve returns the transport error that ended the connection, if any.
func (c *Connection) Serve(ctx context.Context, t Transport) error {
	cfg := c.hub.config
	logger := c.hub.logger.With().Str("connection_id", c.id).Logger()

	heartbeat := time.NewTicker(cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	heartbeatC := heartbeat.C

	var (
		ctxDone      = ctx.Done()
		unregistered = c.unregistered
		flushC       <-chan time.Time
		lastWrite    = c.hub.now()
		outstanding  time.Time // first heartbeat not yet acknowledged
		transportErr error
	)

	for {
		select {
		case <-ctxDone:
			ctxDone = nil
			c.hub.Unregister(c, ReasonDisconnect)

		case <-unregistered:
			unregistered = nil
			heartbeatC = nil
			flush := time.NewTimer(cfg.FlushTimeout)
			defer flush.Stop()
			flushC = flush.C

		case <-flushC:
			logger.Warn().
				Int("dropped", len(c.queue)).
				Msg("Flush timeout elapsed, closing observer")
			return c.close(t, transportErr)

		case n, ok := <-c.queue:
			if !ok {
				return c.close(t, transportErr)
			}
			if err := t.WriteNotification(n); err != nil {
				transportErr = errors.NewTransportError(c.id, "write", err)
				logger.Debug().Err(err).Msg("Observer write failed")
				c.hub.Unregister(c, ReasonTransport)
				return c.close(t, transportErr)
			}
			lastWrite = c.hub.now()

		case <-heartbeatC:
			now := c.hub.now()
			if !outstanding.IsZero() && c.lastSeen.Load() >= outstanding.UnixNano() {
				outstanding = time.Time{}
			}
			if !outstanding.IsZero() && now.Sub(outstanding) >= time.Duration(cfg.HeartbeatMisses)*cfg.HeartbeatInterval {
				c.hub.Unregister(c, ReasonHeartbeat)
				continue
			}
			if now.Sub(lastWrite) < cfg.HeartbeatInterval*9/10 {
				continue
			}
			if outstanding.IsZero() {
				outstanding = now
			}
			if err := t.WriteHeartbeat(); err != nil {
				transportErr = errors.NewTransportError(c.id, "ping", err)
				c.hub.Unregister(c, ReasonTransport)
				return c.close(t, transportErr)
			}
			lastWrite = now
		}
	}
}

func (c *Connection) close(t Transport, cause error) error {
	if err := t.Close(); err != nil && cause == nil {
		c.hub.logger.Debug().Err(err).Str("connection_id", c.id).Msg("Observer transport close failed")
	}
	c.setState(StateClosed)
	close(c.done)
	c.hub.logger.Debug().
		Str("connection_id", c.id).
		Str("reason", string(c.Reason())).
		Msg("Observer closed")
	return cause
}
