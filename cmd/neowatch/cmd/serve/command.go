// Package serve provides the neowatch serve command.
package serve

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/neowatch/internal/archive"
	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/cmd/application"
	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/mutation"
	"github.com/agentstation/neowatch/internal/seed"
	"github.com/agentstation/neowatch/internal/server"
	"github.com/agentstation/neowatch/internal/server/cache"
	"github.com/agentstation/neowatch/internal/store"
)

// NewCommand creates the serve command using app context.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"server"},
		GroupID: "core",
		Short:   "Start the API server with SSE and WebSocket change streams",
		Long: `Start the neowatch API server.

Features:
  - Public read API for special events (/api/v1/events, /api/v1/events/active)
  - Authorized create, update and delete (operator token or API key)
  - Change notifications over Server-Sent Events (/api/v1/events/stream)
    and WebSocket (/api/v1/events/ws), in commit order
  - Listings carry X-Stream-Sequence so clients can line snapshots up
    with the stream
  - Slow observers are evicted instead of slowing everyone down
  - Optional archiver that deactivates long-past events on a schedule
  - Graceful shutdown that drains observer streams`,
		Example: `  # Start on the default port with an in-memory store
  neowatch serve

  # SQLite store, seeded on startup
  NEOWATCH_STORE_DRIVER=sqlite3 NEOWATCH_STORE_DSN=neowatch.db neowatch serve --seed events.yaml

  # Enable CORS for a dashboard and the hourly archiver
  neowatch serve --cors-origins https://dash.example.com --archive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd, app)
		},
	}

	defaults := server.DefaultConfig()

	// Server configuration flags
	cmd.Flags().Int("port", defaults.Port, "Server port")
	cmd.Flags().String("host", defaults.Host, "Bind address")
	cmd.Flags().String("prefix", defaults.PathPrefix, "API path prefix")

	// CORS flags
	cmd.Flags().Bool("cors", false, "Enable CORS for all origins")
	cmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (comma-separated)")

	// Performance flags
	cmd.Flags().Int("rate-limit", defaults.RateLimit, "Requests per minute per IP (0 to disable)")
	cmd.Flags().Duration("cache-ttl", defaults.CacheTTL, "Listing cache TTL")

	// Timeout flags
	cmd.Flags().Duration("read-timeout", defaults.ReadTimeout, "HTTP read timeout")
	cmd.Flags().Duration("write-timeout", defaults.WriteTimeout, "HTTP write timeout (streams use --stream-write-timeout)")
	cmd.Flags().Duration("idle-timeout", defaults.IdleTimeout, "HTTP idle timeout")
	cmd.Flags().Duration("stream-write-timeout", defaults.StreamWriteTimeout, "Per-frame write timeout for observer streams")
	cmd.Flags().Duration("shutdown-timeout", defaults.ShutdownTimeout, "Graceful shutdown timeout")
	cmd.Flags().Duration("change-poll-interval", defaults.ChangePollInterval, "How often to check a shared SQL store for outside writes (0 to disable)")

	// Feature flags
	cmd.Flags().String("seed", "", "YAML file of events to create on startup")
	cmd.Flags().Bool("archive", false, "Enable the archiver (overrides archive.enabled)")

	return cmd
}

// parseConfig applies explicitly set flags over the configured values.
func parseConfig(cmd *cobra.Command, cfg server.Config) server.Config {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = mustGetInt(cmd, "port")
	}
	if flags.Changed("host") {
		cfg.Host = mustGetString(cmd, "host")
	}
	if flags.Changed("prefix") {
		cfg.PathPrefix = mustGetString(cmd, "prefix")
	}
	if flags.Changed("cors") {
		cfg.CORSEnabled = mustGetBool(cmd, "cors")
	}
	if flags.Changed("cors-origins") {
		cfg.CORSOrigins = mustGetStringSlice(cmd, "cors-origins")
		cfg.CORSEnabled = true
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimit = mustGetInt(cmd, "rate-limit")
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL = mustGetDuration(cmd, "cache-ttl")
	}
	if flags.Changed("read-timeout") {
		cfg.ReadTimeout = mustGetDuration(cmd, "read-timeout")
	}
	if flags.Changed("write-timeout") {
		cfg.WriteTimeout = mustGetDuration(cmd, "write-timeout")
	}
	if flags.Changed("idle-timeout") {
		cfg.IdleTimeout = mustGetDuration(cmd, "idle-timeout")
	}
	if flags.Changed("stream-write-timeout") {
		cfg.StreamWriteTimeout = mustGetDuration(cmd, "stream-write-timeout")
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = mustGetDuration(cmd, "shutdown-timeout")
	}
	if flags.Changed("change-poll-interval") {
		cfg.ChangePollInterval = mustGetDuration(cmd, "change-poll-interval")
	}
	return cfg
}

// runServer starts the API server.
func runServer(cmd *cobra.Command, app application.Application) error {
	ctx := cmd.Context()
	logger := app.Logger()
	cfg := parseConfig(cmd, app.ServerConfig())

	archiveCfg, archiveEnabled := app.ArchiveConfig()
	if cmd.Flags().Changed("archive") {
		archiveEnabled = mustGetBool(cmd, "archive")
	}

	svc, err := newService(ctx, app, cfg, options{
		seedFile:       mustGetString(cmd, "seed"),
		archiveEnabled: archiveEnabled,
		archive:        archiveCfg,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", svc.http.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", svc.http.Addr, err)
	}

	logger.Info().
		Int("port", cfg.Port).
		Str("host", cfg.Host).
		Str("prefix", cfg.PathPrefix).
		Bool("cors", cfg.CORSEnabled).
		Int("rate_limit", cfg.RateLimit).
		Dur("cache_ttl", cfg.CacheTTL).
		Msg("Starting API server")

	return svc.run(ctx, ln)
}

type options struct {
	seedFile       string
	archiveEnabled bool
	archive        archive.Config
}

// service is a fully wired server: store, serializer, hub, HTTP server and
// optional archiver.
type service struct {
	events   *mutation.Serializer
	hub      *events.Hub
	server   *server.Server
	http     *http.Server
	archiver *archive.Archiver

	// pollInterval is non-zero when the store is shared with other
	// processes and should be watched for their writes.
	pollInterval    time.Duration
	shutdownTimeout time.Duration
	logger          *zerolog.Logger
}

func newService(ctx context.Context, app application.Application, cfg server.Config, opts options) (*service, error) {
	logger := app.Logger()

	st, err := app.Store(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	rev, err := st.Revision(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store revision: %w", err)
	}

	hub := events.NewHub(app.StreamConfig(), logger, events.WithStartSequence(rev))
	listings := cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)

	serializer, err := mutation.New(ctx, st, hub,
		mutation.WithLogger(logger),
		mutation.OnCommit(func(events.Notification) { listings.Clear() }),
	)
	if err != nil {
		return nil, err
	}

	if opts.seedFile != "" {
		entries, err := seed.Load(opts.seedFile)
		if err != nil {
			return nil, err
		}
		res, err := seed.Apply(ctx, serializer, entries)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("file", opts.seedFile).Int("created", len(res.Created)).Msg("Seeded events")
	}

	gateCfg := app.AuthConfig()
	if !gateCfg.Disabled && gateCfg.Secret == "" && gateCfg.APIKey == "" {
		logger.Warn().Msg("No token secret or API key configured; mutations will be rejected")
	}

	srv, err := server.New(server.Deps{
		Events: serializer,
		Hub:    hub,
		Gate:   auth.NewGate(gateCfg),
		Cache:  listings,
		Ready:  readiness(st),
	}, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	svc := &service{
		events:          serializer,
		hub:             hub,
		server:          srv,
		http:            srv.HTTPServer(),
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}

	if _, shared := st.(store.ChangeLog); shared {
		svc.pollInterval = cfg.ChangePollInterval
	}

	if opts.archiveEnabled {
		svc.archiver, err = archive.New(serializer, opts.archive, logger)
		if err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// readiness pings stores that can be pinged.
func readiness(st store.Store) func(context.Context) error {
	pinger, ok := st.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping
}

// run serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *service) run(ctx context.Context, ln net.Listener) error {
	s.server.Start(ctx)
	if s.pollInterval > 0 {
		go s.events.Watch(ctx, s.pollInterval)
	}
	if s.archiver != nil {
		s.archiver.Start(ctx)
		defer s.archiver.Stop()
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("service", "API").
			Msg("HTTP server listening")
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			serverErr <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown signal received via context")
	}

	// Fresh context: the parent is already cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	// Closes the hub first through RegisterOnShutdown, so streams drain.
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Observer streams did not drain in time")
	}

	s.logger.Info().Msg("Server stopped gracefully")
	return nil
}

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

func mustGetDuration(cmd *cobra.Command, name string) time.Duration {
	val, err := cmd.Flags().GetDuration(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
