package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server/response"
	"github.com/agentstation/neowatch/internal/server/sse"
	ws "github.com/agentstation/neowatch/internal/server/websocket"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/logging"
)

// HandleSSE handles Server-Sent Events at /api/v1/events/stream.
// @Summary Special event change stream
// @Description Server-Sent Events: a connected frame, then event:new, event:update and event:delete frames in sequence order
// @Tags events
// @Produce text/event-stream
// @Success 200 "Event stream"
// @Failure 503 {object} response.Response{error=response.Error}
// @Router /api/v1/events/stream [get].
func (h *Handlers) HandleSSE(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	ctx := logging.WithConnection(r.Context(), id)
	logger := logging.FromContext(ctx).With().Str("transport", "sse").Logger()

	conn, err := h.hub.Register(id)
	if err != nil {
		h.registerFailed(w, err)
		return
	}

	stream, err := sse.Open(w,
		sse.WithWriteTimeout(h.opts.StreamWriteTimeout),
		sse.OnAck(conn.Touch),
	)
	if err != nil {
		logger.Error().Err(err).Msg("SSE stream could not be opened")
		h.hub.Unregister(conn, events.ReasonTransport)
		return
	}

	h.streams.Add(1)
	defer h.streams.Done()

	err = stream.WriteConnected(sse.Connected{ConnectionID: id, Sequence: conn.StartSequence()})
	if err != nil {
		h.hub.Unregister(conn, events.ReasonTransport)
	}
	if err := conn.Serve(ctx, stream); err != nil {
		logger.Debug().Err(err).Msg("SSE stream ended with transport error")
	}
}

// HandleWebSocket handles WebSocket connections at /api/v1/events/ws.
// @Summary Special event change socket
// @Description WebSocket carrying the same JSON frames as the SSE stream; pings are heartbeats
// @Tags events
// @Success 101 "Switching Protocols"
// @Router /api/v1/events/ws [get].
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub.Closed() {
		response.ServiceUnavailable(w, "server is shutting down")
		return
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(logging.WithConnection(r.Context(), id))
	defer cancel()
	logger := logging.FromContext(ctx).With().Str("transport", "websocket").Logger()
	client := ws.NewClient(id, socket, &logger)
	client.SetWriteWait(h.opts.StreamWriteTimeout)

	conn, err := h.hub.Register(id)
	if err != nil {
		logger.Warn().Err(err).Msg("WebSocket observer rejected")
		_ = client.Close()
		return
	}

	h.streams.Add(1)
	defer h.streams.Done()

	go func() {
		client.ReadPump(conn.Touch)
		cancel()
	}()

	if err := client.WriteConnected(conn.StartSequence()); err != nil {
		h.hub.Unregister(conn, events.ReasonTransport)
	}
	if err := conn.Serve(ctx, client); err != nil {
		logger.Debug().Err(err).Msg("WebSocket stream ended with transport error")
	}
}

func (h *Handlers) registerFailed(w http.ResponseWriter, err error) {
	if errors.IsClosed(err) {
		response.ServiceUnavailable(w, "server is shutting down")
		return
	}
	h.logger.Error().Err(err).Msg("Observer registration failed")
	response.InternalError(w, err)
}
