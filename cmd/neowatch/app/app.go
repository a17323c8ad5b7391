// Package app provides the application context and dependency management
// for the neowatch CLI: configuration, logging, the entity store and
// lifecycle.
package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/archive"
	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/cmd/application"
	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server"
	"github.com/agentstation/neowatch/internal/store"
	"github.com/agentstation/neowatch/internal/store/memory"
	"github.com/agentstation/neowatch/internal/store/sqlstore"
	"github.com/agentstation/neowatch/pkg/errors"
)

// App represents the neowatch application with all its dependencies.
type App struct {
	version string
	commit  string
	date    string
	builtBy string

	config *Config
	logger *zerolog.Logger

	// store is opened lazily and shared by every command in the process.
	mu    sync.Mutex
	store store.Store
}

var _ application.Application = (*App)(nil)

// New creates a new App instance with the given version information.
func New(version, commit, date, builtBy string, opts ...Option) (*App, error) {
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		builtBy: builtBy,
	}

	config, err := LoadConfig("")
	if err != nil {
		return nil, errors.WrapResource("load", "config", "", err)
	}
	app.config = config

	logger := NewLogger(config)
	app.logger = &logger

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Version returns the version information.
func (a *App) Version() string {
	return a.version
}

// Commit returns the git commit hash.
func (a *App) Commit() string {
	return a.commit
}

// Date returns the build date.
func (a *App) Date() string {
	return a.date
}

// BuiltBy returns the build system identifier.
func (a *App) BuiltBy() string {
	return a.builtBy
}

// Config returns the application configuration.
func (a *App) Config() *Config {
	return a.config
}

// Logger returns the application logger.
func (a *App) Logger() *zerolog.Logger {
	return a.logger
}

// OutputFormat returns the --format value, empty when unset.
func (a *App) OutputFormat() string {
	return a.config.Format
}

// ServerConfig implements application.Application.
func (a *App) ServerConfig() server.Config {
	return a.config.Server
}

// AuthConfig implements application.Application.
func (a *App) AuthConfig() auth.Config {
	return a.config.Auth
}

// StreamConfig implements application.Application.
func (a *App) StreamConfig() events.Config {
	return a.config.Stream
}

// ArchiveConfig implements application.Application.
func (a *App) ArchiveConfig() (archive.Config, bool) {
	return a.config.Archive.Config, a.config.Archive.Enabled
}

// Store returns the entity store, opening it on first use.
func (a *App) Store(ctx context.Context) (store.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}

	st, err := openStore(ctx, a.config.Store)
	if err != nil {
		return nil, err
	}
	a.logger.Debug().
		Str("driver", a.config.Store.Driver).
		Str("tie_break", string(a.config.Store.TieBreak)).
		Msg("Opened entity store")
	a.store = st
	return st, nil
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	opts := []store.Option{store.WithTieBreak(cfg.TieBreak)}
	switch cfg.Driver {
	case DriverMemory, "":
		return memory.New(opts...), nil
	case sqlstore.DriverSQLite, sqlstore.DriverPostgres:
		if cfg.DSN == "" {
			return nil, errors.NewConfigError("store", "a dsn is required for driver "+cfg.Driver, nil)
		}
		return sqlstore.Open(ctx, cfg.Driver, cfg.DSN, opts...)
	default:
		return nil, errors.NewConfigError("store", "unsupported driver "+cfg.Driver, nil)
	}
}

// Shutdown releases the application's resources.
func (a *App) Shutdown(_ context.Context) error {
	a.mu.Lock()
	st := a.store
	a.store = nil
	a.mu.Unlock()

	if st == nil {
		return nil
	}
	if err := st.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close entity store during shutdown")
		return errors.WrapResource("close", "store", "", err)
	}
	return nil
}

// Option is a functional option for configuring the App.
type Option func(*App) error

// WithConfig sets a custom configuration.
func WithConfig(config *Config) Option {
	return func(a *App) error {
		a.config = config
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithStore sets a custom store (useful for testing).
func WithStore(st store.Store) Option {
	return func(a *App) error {
		a.store = st
		return nil
	}
}
