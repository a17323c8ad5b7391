package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server/cache"
	"github.com/agentstation/neowatch/internal/server/handlers"
	"github.com/agentstation/neowatch/internal/server/middleware"
	ws "github.com/agentstation/neowatch/internal/server/websocket"
	"github.com/agentstation/neowatch/pkg/errors"
)

// Deps are the services the server exposes.
type Deps struct {
	// Events is the mutation serializer.
	Events handlers.EventService

	// Hub is the broadcast hub the serializer publishes to.
	Hub *events.Hub

	// Gate guards the mutation endpoints.
	Gate *auth.Gate

	// Cache, when set, is shared with whoever invalidates it on commit.
	Cache *cache.Cache

	// Ready reports whether the store is reachable.
	Ready func(ctx context.Context) error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	deps        Deps
	cache       *cache.Cache
	upgrader    *gorillaws.Upgrader
	handlers    *handlers.Handlers
	rateLimiter *middleware.RateLimiter
	logger      *zerolog.Logger
	config      Config
	startTime   time.Time
}

// New creates a new server instance with the given configuration.
func New(deps Deps, cfg Config, logger *zerolog.Logger) (*Server, error) {
	if deps.Events == nil || deps.Hub == nil || deps.Gate == nil {
		return nil, errors.NewConfigError("server", "events, hub and gate are required", nil)
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = DefaultConfig().PathPrefix
	}

	c := deps.Cache
	if c == nil {
		c = cache.New(cfg.CacheTTL, cfg.CacheTTL*2)
	}

	origins := cfg.CORSOrigins
	if !cfg.CORSEnabled {
		origins = nil
	}

	s := &Server{
		deps:      deps,
		cache:     c,
		upgrader:  ws.NewUpgrader(origins),
		logger:    logger,
		config:    cfg,
		startTime: time.Now(),
	}
	s.handlers = handlers.New(deps.Events, deps.Hub, c, s.upgrader, handlers.Options{
		StreamWriteTimeout: cfg.StreamWriteTimeout,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		Ready:              deps.Ready,
	}, logger)
	if cfg.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(cfg.RateLimit, logger)
	}

	logger.Debug().
		Str("prefix", cfg.PathPrefix).
		Dur("cache_ttl", cfg.CacheTTL).
		Int("rate_limit", cfg.RateLimit).
		Msg("Server instance created")
	return s, nil
}

// Start starts background services until ctx is canceled.
func (s *Server) Start(ctx context.Context) {
	if s.rateLimiter != nil {
		go s.rateLimiter.Run(ctx)
	}
}

// Handler returns the configured http.Handler with middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.setupRouter()
}

// HTTPServer returns an http.Server for the configured address. Its
// shutdown closes the hub first so observer streams drain instead of
// holding the server open.
func (s *Server) HTTPServer() *http.Server {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)),
		Handler:           s.Handler(),
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	srv.RegisterOnShutdown(s.deps.Hub.Close)
	return srv
}

// Shutdown closes the hub and waits for observer streams to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Int("observers", s.deps.Hub.ConnectionCount()).Msg("Shutting down observer streams")
	s.deps.Hub.Close()
	if err := s.handlers.WaitStreams(ctx); err != nil {
		return fmt.Errorf("waiting for observer streams: %w", err)
	}
	return nil
}

// Cache returns the server's cache instance.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Config returns the server configuration.
func (s *Server) Config() Config {
	return s.config
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
