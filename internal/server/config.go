package server

import "time"

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix string

	// CORS settings
	CORSEnabled bool
	CORSOrigins []string

	// Performance settings
	RateLimit    int // Requests per minute per IP (0 to disable)
	CacheTTL     time.Duration
	MaxBodyBytes int64

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// StreamWriteTimeout bounds each frame written to an observer. Streams
	// are exempt from WriteTimeout.
	StreamWriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown, including draining observers.
	ShutdownTimeout time.Duration

	// ChangePollInterval is how often a shared SQL store is checked for
	// writes made by other processes (0 to disable).
	ChangePollInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "localhost",
		Port:               8080,
		PathPrefix:         "/api/v1",
		CORSEnabled:        false,
		CORSOrigins:        []string{},
		RateLimit:          100,
		CacheTTL:           5 * time.Minute,
		MaxBodyBytes:       1 << 20,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		StreamWriteTimeout: 10 * time.Second,
		ShutdownTimeout:    30 * time.Second,
		ChangePollInterval: 2 * time.Second,
	}
}
