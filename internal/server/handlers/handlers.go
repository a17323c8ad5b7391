package handlers

import (
	"context"
	"sync"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server/cache"
	"github.com/agentstation/neowatch/pkg/special"
)

// EventService is the mutation and read path the handlers drive.
type EventService interface {
	Create(ctx context.Context, fields special.Fields) (special.Event, error)
	Update(ctx context.Context, id string, patch special.Patch) (special.Event, error)
	Delete(ctx context.Context, id string) (special.Event, error)
	Get(ctx context.Context, id string) (special.Event, error)
	Query(ctx context.Context, filter special.Filter) ([]special.Event, error)
	Sequence() uint64
}

// Options holds handler settings.
type Options struct {
	// StreamWriteTimeout bounds each frame written to an observer.
	StreamWriteTimeout time.Duration

	// MaxBodyBytes bounds mutation request bodies.
	MaxBodyBytes int64

	// Ready reports whether backing services are reachable.
	Ready func(ctx context.Context) error
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	events    EventService
	hub       *events.Hub
	cache     *cache.Cache
	upgrader  *gorillaws.Upgrader
	opts      Options
	logger    *zerolog.Logger
	streams   sync.WaitGroup
	startTime time.Time
}

// New creates a new Handlers instance.
func New(
	svc EventService,
	hub *events.Hub,
	cache *cache.Cache,
	upgrader *gorillaws.Upgrader,
	opts Options,
	logger *zerolog.Logger,
) *Handlers {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &Handlers{
		events:    svc,
		hub:       hub,
		cache:     cache,
		upgrader:  upgrader,
		opts:      opts,
		logger:    logger,
		startTime: time.Now(),
	}
}

// WaitStreams blocks until every observer stream has returned or ctx is
// done.
func (h *Handlers) WaitStreams(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.streams.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
