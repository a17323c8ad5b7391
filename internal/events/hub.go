package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/pkg/errors"
)

// Config holds hub and connection settings.
type Config struct {
	// QueueDepth bounds each connection's outbound queue.
	QueueDepth int

	// HeartbeatInterval is how long a connection may be idle before a
	// heartbeat is written.
	HeartbeatInterval time.Duration

	// HeartbeatMisses is how many intervals an unacknowledged heartbeat may
	// stay outstanding before the connection is reaped.
	HeartbeatMisses int

	// FlushTimeout bounds how long a draining connection keeps flushing.
	FlushTimeout time.Duration
}

// DefaultConfig returns the default hub configuration.
func DefaultConfig() Config {
	return Config{
		QueueDepth:        64,
		HeartbeatInterval: 15 * time.Second,
		HeartbeatMisses:   3,
		FlushTimeout:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatMisses <= 0 {
		c.HeartbeatMisses = d.HeartbeatMisses
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = d.FlushTimeout
	}
	return c
}

// Reason records why a connection left the live set.
type Reason string

// Reasons a connection is unregistered.
const (
	ReasonDisconnect   Reason = "client_disconnect"
	ReasonSlowConsumer Reason = "slow_consumer"
	ReasonHeartbeat    Reason = "heartbeat_timeout"
	ReasonTransport    Reason = "transport_failure"
	ReasonShutdown     Reason = "server_shutdown"
)

// Stats is a snapshot of hub counters.
type Stats struct {
	Connections       int    `json:"connections"`
	Published         uint64 `json:"published"`
	LastSequence      uint64 `json:"lastSequence"`
	Evicted           uint64 `json:"evicted"`
	Reaped            uint64 `json:"reaped"`
	Disconnected      uint64 `json:"disconnected"`
	TransportFailures uint64 `json:"transportFailures"`
}

// Hub is the registry of live observer connections.
type Hub struct {
	mu      sync.Mutex
	conns   map[string]*Connection
	closed  bool
	lastSeq uint64
	stats   Stats

	config Config
	now    func() time.Time
	logger *zerolog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithClock overrides the hub clock used for emission timestamps and
// liveness tracking.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithStartSequence sets the sequence reported before anything is
// published, typically the store revision at startup.
func WithStartSequence(seq uint64) HubOption {
	return func(h *Hub) {
		h.lastSeq = seq
		h.stats.LastSequence = seq
	}
}

// NewHub creates a hub.
func NewHub(cfg Config, logger *zerolog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		conns:  make(map[string]*Connection),
		config: cfg.withDefaults(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the effective configuration.
func (h *Hub) Config() Config {
	return h.config
}

// Register adds a connection with the given id to the live set. It receives
// only notifications published after this call.
func (h *Hub) Register(id string) (*Connection, error) {
	c := newConnection(id, h)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		c.setState(StateClosed)
		close(c.done)
		return nil, errors.ErrClosed
	}
	if _, exists := h.conns[id]; exists {
		c.setState(StateClosed)
		close(c.done)
		return nil, errors.NewConflictError("connection", id, "already registered")
	}

	c.startSeq = h.lastSeq
	c.Touch()
	c.setState(StateConnected)
	h.conns[id] = c
	h.stats.Connections = len(h.conns)

	h.logger.Info().
		Str("connection_id", id).
		Uint64("start_sequence", c.startSeq).
		Int("total_connections", len(h.conns)).
		Msg("Observer connected")
	return c, nil
}

// Publish stamps the notification's emission time and enqueues it on every
// live connection. It never blocks; a connection whose queue is full is
// evicted. Notifications are enqueued everywhere in the order Publish is
// called.
func (h *Hub) Publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	n.EmittedAt = h.now().UnixMilli()
	if n.Sequence > h.lastSeq {
		h.lastSeq = n.Sequence
	}
	h.stats.Published++
	h.stats.LastSequence = h.lastSeq

	for _, c := range h.conns {
		select {
		case c.queue <- n:
		default:
			h.unregisterLocked(c, ReasonSlowConsumer)
		}
	}

	h.logger.Debug().
		Str("frame", n.Frame()).
		Str("event_id", n.ID).
		Uint64("sequence", n.Sequence).
		Int("connections", len(h.conns)).
		Msg("Notification published")
}

// Unregister removes a connection from the live set and closes its queue,
// moving it to draining. It is idempotent.
func (h *Hub) Unregister(c *Connection, reason Reason) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c, reason)
}

func (h *Hub) unregisterLocked(c *Connection, reason Reason) {
	if h.conns[c.id] != c {
		return
	}
	delete(h.conns, c.id)
	c.reason = reason
	c.setState(StateDraining)
	close(c.queue)
	close(c.unregistered)

	switch reason {
	case ReasonSlowConsumer:
		h.stats.Evicted++
	case ReasonHeartbeat:
		h.stats.Reaped++
	case ReasonTransport:
		h.stats.TransportFailures++
	default:
		h.stats.Disconnected++
	}
	h.stats.Connections = len(h.conns)

	event := h.logger.Info()
	if reason == ReasonSlowConsumer || reason == ReasonHeartbeat {
		event = h.logger.Warn()
	}
	event.
		Str("connection_id", c.id).
		Str("reason", string(reason)).
		Int("total_connections", len(h.conns)).
		Msg("Observer unregistered")
}

// Close unregisters every connection and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, c := range h.conns {
		h.unregisterLocked(c, ReasonShutdown)
	}
	h.logger.Info().Msg("Broadcast hub shut down")
}

// Closed reports whether Close was called.
func (h *Hub) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// LastSequence returns the sequence of the last published notification.
// A snapshot read after calling it is at least as new as that sequence.
func (h *Hub) LastSequence() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeq
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
