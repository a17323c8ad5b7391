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

// Mock provides a mock implementation of Application for testing.
// Each method can be customized by setting the corresponding function field.
// If a function field is nil, the method returns a default value.
//
//	mock := &application.Mock{
//	    StoreFunc: func(context.Context) (store.Store, error) {
//	        return memory.New(), nil
//	    },
//	}
//	cmd := events.NewCommand(mock)
type Mock struct {
	StoreFunc         func(ctx context.Context) (store.Store, error)
	ServerConfigFunc  func() server.Config
	AuthConfigFunc    func() auth.Config
	StreamConfigFunc  func() events.Config
	ArchiveConfigFunc func() (archive.Config, bool)
	LoggerFunc        func() *zerolog.Logger
	OutputFormatFunc  func() string
	VersionFunc       func() string
}

// Store returns a store using the mock function or nil.
func (m *Mock) Store(ctx context.Context) (store.Store, error) {
	if m.StoreFunc != nil {
		return m.StoreFunc(ctx)
	}
	return nil, nil
}

// ServerConfig returns the mock server config or the default.
func (m *Mock) ServerConfig() server.Config {
	if m.ServerConfigFunc != nil {
		return m.ServerConfigFunc()
	}
	return server.DefaultConfig()
}

// AuthConfig returns the mock auth config or the default.
func (m *Mock) AuthConfig() auth.Config {
	if m.AuthConfigFunc != nil {
		return m.AuthConfigFunc()
	}
	return auth.DefaultConfig()
}

// StreamConfig returns the mock stream config or the default.
func (m *Mock) StreamConfig() events.Config {
	if m.StreamConfigFunc != nil {
		return m.StreamConfigFunc()
	}
	return events.DefaultConfig()
}

// ArchiveConfig returns the mock archive config or a disabled default.
func (m *Mock) ArchiveConfig() (archive.Config, bool) {
	if m.ArchiveConfigFunc != nil {
		return m.ArchiveConfigFunc()
	}
	return archive.DefaultConfig(), false
}

// Logger returns a logger using the mock function or a no-op logger.
func (m *Mock) Logger() *zerolog.Logger {
	if m.LoggerFunc != nil {
		return m.LoggerFunc()
	}
	logger := zerolog.Nop()
	return &logger
}

// OutputFormat returns output format using the mock function or "table".
func (m *Mock) OutputFormat() string {
	if m.OutputFormatFunc != nil {
		return m.OutputFormatFunc()
	}
	return "table"
}

// Version returns version using the mock function or "dev".
func (m *Mock) Version() string {
	if m.VersionFunc != nil {
		return m.VersionFunc()
	}
	return "dev"
}

// Commit returns "unknown".
func (m *Mock) Commit() string { return "unknown" }

// Date returns "unknown".
func (m *Mock) Date() string { return "unknown" }

// BuiltBy returns "test".
func (m *Mock) BuiltBy() string { return "test" }

var _ Application = (*Mock)(nil)
