// Package sse provides Server-Sent Events support for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/pkg/errors"
)

// EventConnected is the first frame on every stream.
const EventConnected = "connected"

// Event represents an SSE event.
type Event struct {
	Event string `json:"event,omitempty"` // Event type (optional)
	ID    string `json:"id,omitempty"`    // Event ID (optional)
	Data  any    `json:"data"`            // Event data
}

// Connected is the payload of the connected frame. Sequence is the last
// sequence published before the stream attached; every later one follows.
type Connected struct {
	ConnectionID string `json:"connectionId"`
	Sequence     uint64 `json:"sequence"`
}

// Stream is one SSE response. It implements events.Transport and is only
// written from a single goroutine.
type Stream struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
	onAck        func()
	closed       bool
}

// Option configures a Stream.
type Option func(*Stream)

// WithWriteTimeout bounds each frame write. Zero leaves writes unbounded.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Stream) { s.writeTimeout = d }
}

// OnAck registers a callback run after each heartbeat reaches the client.
// SSE has no client-to-server channel, so a flushed heartbeat is the only
// liveness signal available.
func OnAck(fn func()) Option {
	return func(s *Stream) { s.onAck = fn }
}

// Open writes the SSE response headers and returns the stream.
func Open(w http.ResponseWriter, opts ...Option) (*Stream, error) {
	s := &Stream{w: w, rc: http.NewResponseController(w)}
	for _, opt := range opts {
		opt(s)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := s.flush(); err != nil {
		return nil, err
	}
	return s, nil
}

// WriteEvent writes an SSE event and flushes it.
func (s *Stream) WriteEvent(event Event) error {
	if s.closed {
		return errors.ErrClosed
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", event.Event, err)
	}

	s.deadline()
	if event.Event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event.Event); err != nil {
			return err
		}
	}
	if event.ID != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", event.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.flush()
}

// WriteConnected writes the connected frame.
func (s *Stream) WriteConnected(c Connected) error {
	return s.WriteEvent(Event{Event: EventConnected, Data: c})
}

// WriteNotification implements events.Transport. The SSE id is the
// notification sequence, so Last-Event-ID tells a reconnecting client where
// it left off.
func (s *Stream) WriteNotification(n events.Notification) error {
	return s.WriteEvent(Event{
		Event: n.Frame(),
		ID:    strconv.FormatUint(n.Sequence, 10),
		Data:  n,
	})
}

// WriteHeartbeat implements events.Transport with a comment frame.
func (s *Stream) WriteHeartbeat() error {
	if s.closed {
		return errors.ErrClosed
	}
	s.deadline()
	if _, err := fmt.Fprintf(s.w, ": heartbeat %d\n\n", time.Now().UnixMilli()); err != nil {
		return err
	}
	if err := s.flush(); err != nil {
		return err
	}
	if s.onAck != nil {
		s.onAck()
	}
	return nil
}

// Close implements events.Transport. The response itself ends when the
// handler returns.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}

func (s *Stream) deadline() {
	var d time.Time
	if s.writeTimeout > 0 {
		d = time.Now().Add(s.writeTimeout)
	}
	// Recorders and some proxies do not support deadlines.
	_ = s.rc.SetWriteDeadline(d)
}

func (s *Stream) flush() error {
	if err := s.rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return fmt.Errorf("streaming not supported: %w", err)
		}
		return err
	}
	return nil
}
