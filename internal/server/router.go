package server

import (
	"net/http"

	"github.com/agentstation/neowatch/internal/server/handlers"
	"github.com/agentstation/neowatch/internal/server/middleware"
)

// setupRouter creates the HTTP handler with routes and middleware.
func (s *Server) setupRouter() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux, s.handlers)
	return s.applyMiddleware(mux)
}

// registerRoutes registers all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux, h *handlers.Handlers) {
	prefix := s.config.PathPrefix
	protect := middleware.Auth(s.deps.Gate, s.logger)

	// Favicon handler (return 204 No Content to avoid 404 logs)
	mux.HandleFunc("GET /favicon.ico", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Public health endpoints
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/health", h.HandleHealth)
	mux.HandleFunc("GET "+prefix+"/ready", h.HandleReady)
	mux.HandleFunc("GET "+prefix+"/stats", h.HandleStats)

	// Reads
	mux.HandleFunc("GET "+prefix+"/events", h.HandleListEvents)
	mux.HandleFunc("GET "+prefix+"/events/active", h.HandleActiveEvents)
	mux.HandleFunc("GET "+prefix+"/events/{id}", h.HandleGetEvent)

	// Observer streams
	mux.HandleFunc("GET "+prefix+"/events/stream", h.HandleSSE)
	mux.HandleFunc("GET "+prefix+"/events/ws", h.HandleWebSocket)

	// Mutations (operator only)
	mux.Handle("POST "+prefix+"/events", protect(http.HandlerFunc(h.HandleCreateEvent)))
	mux.Handle("PATCH "+prefix+"/events/{id}", protect(http.HandlerFunc(h.HandleUpdateEvent)))
	mux.Handle("DELETE "+prefix+"/events/{id}", protect(http.HandlerFunc(h.HandleDeleteEvent)))
}

// applyMiddleware wraps handler with middleware chain.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	cfg := s.config

	// Rate limiting (if enabled)
	if s.rateLimiter != nil {
		handler = middleware.RateLimit(s.rateLimiter)(handler)
	}

	// CORS (if enabled)
	if cfg.CORSEnabled {
		corsConfig := middleware.DefaultCORSConfig()
		if len(cfg.CORSOrigins) > 0 {
			corsConfig.AllowedOrigins = cfg.CORSOrigins
			corsConfig.AllowAll = false
		} else {
			corsConfig.AllowAll = true
		}
		handler = middleware.CORS(corsConfig)(handler)
	}

	// Logging and recovery (always enabled)
	handler = middleware.Logger(s.logger)(handler)
	handler = middleware.Recovery(s.logger)(handler)

	return handler
}
