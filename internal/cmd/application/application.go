// Package application defines what neowatch commands need from the
// application. The App in cmd/neowatch/app implements it; tests use Mock.
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            st, err := app.Store(cmd.Context())
//	            if err != nil {
//	                return err
//	            }
//	            // ... use st
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/agentstation/neowatch/internal/archive"
	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server"
	"github.com/agentstation/neowatch/internal/store"
)

// Application provides the application interface that commands need.
// All methods must be safe for concurrent use.
type Application interface {
	// Store returns the configured entity store, opening it on first use.
	// The application owns it and closes it on shutdown.
	Store(ctx context.Context) (store.Store, error)

	// ServerConfig returns the HTTP server configuration.
	ServerConfig() server.Config

	// AuthConfig returns the authorization gate configuration.
	AuthConfig() auth.Config

	// StreamConfig returns the broadcast hub configuration.
	StreamConfig() events.Config

	// ArchiveConfig returns the archiver configuration and whether the
	// archiver is enabled.
	ArchiveConfig() (archive.Config, bool)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml, wide).
	OutputFormat() string

	Version() string
	Commit() string
	Date() string
	BuiltBy() string
}
