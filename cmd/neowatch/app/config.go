package app

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/agentstation/neowatch/internal/archive"
	"github.com/agentstation/neowatch/internal/auth"
	"github.com/agentstation/neowatch/internal/events"
	"github.com/agentstation/neowatch/internal/server"
	"github.com/agentstation/neowatch/pkg/errors"
	"github.com/agentstation/neowatch/pkg/special"
)

// EnvPrefix prefixes every environment variable neowatch reads, so
// server.port is NEOWATCH_SERVER_PORT.
const EnvPrefix = "NEOWATCH"

// Store drivers.
const (
	DriverMemory = "memory"
)

// Config holds the application configuration loaded from various sources
// including config files, environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	Server  server.Config
	Auth    auth.Config
	Store   StoreConfig
	Stream  events.Config
	Archive ArchiveConfig

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// StoreConfig selects the entity store.
type StoreConfig struct {
	// Driver is memory, sqlite3 or pgx.
	Driver string
	DSN    string

	TieBreak special.TieBreak
}

// ArchiveConfig configures the archiver.
type ArchiveConfig struct {
	Enabled bool
	archive.Config
}

func setDefaults(v *viper.Viper) {
	srv := server.DefaultConfig()
	v.SetDefault("server.host", srv.Host)
	v.SetDefault("server.port", srv.Port)
	v.SetDefault("server.prefix", srv.PathPrefix)
	v.SetDefault("server.cors_enabled", srv.CORSEnabled)
	v.SetDefault("server.cors_origins", srv.CORSOrigins)
	v.SetDefault("server.rate_limit", srv.RateLimit)
	v.SetDefault("server.cache_ttl", srv.CacheTTL)
	v.SetDefault("server.max_body_bytes", srv.MaxBodyBytes)
	v.SetDefault("server.read_timeout", srv.ReadTimeout)
	v.SetDefault("server.write_timeout", srv.WriteTimeout)
	v.SetDefault("server.idle_timeout", srv.IdleTimeout)
	v.SetDefault("server.stream_write_timeout", srv.StreamWriteTimeout)
	v.SetDefault("server.shutdown_timeout", srv.ShutdownTimeout)
	v.SetDefault("server.change_poll_interval", srv.ChangePollInterval)

	gate := auth.DefaultConfig()
	v.SetDefault("auth.disabled", gate.Disabled)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", gate.Issuer)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.api_key_header", gate.APIKeyHeader)
	v.SetDefault("auth.leeway", gate.Leeway)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.tie_break", string(special.TieBreakSoonest))

	stream := events.DefaultConfig()
	v.SetDefault("stream.queue_depth", stream.QueueDepth)
	v.SetDefault("stream.heartbeat_interval", stream.HeartbeatInterval)
	v.SetDefault("stream.heartbeat_misses", stream.HeartbeatMisses)
	v.SetDefault("stream.flush_timeout", stream.FlushTimeout)

	arc := archive.DefaultConfig()
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.schedule", arc.Schedule)
	v.SetDefault("archive.grace", arc.Grace)

	v.SetDefault("log.level", "")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
}

// LoadConfig loads configuration from all sources in order of precedence:
//  1. Command-line flags (handled by cobra)
//  2. Environment variables (NEOWATCH_*)
//  3. .env files
//  4. Config file (--config, else ~/.neowatch.yaml or ./.neowatch.yaml)
//  5. Defaults
func LoadConfig(configFile string) (*Config, error) {
	// Load .env files first (before Viper env binding)
	loadEnvFiles()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile == "" {
		configFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.NewConfigError("config", "reading "+configFile, err)
		}
	} else {
		v.SetConfigType("yaml")
		v.SetConfigName(".neowatch")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.NewConfigError("config", "reading config file", err)
			}
		}
	}

	tieBreak, err := special.ParseTieBreak(v.GetString("store.tie_break"))
	if err != nil {
		return nil, errors.NewConfigError("store", err.Error(), err)
	}

	config := &Config{
		ConfigFile: v.ConfigFileUsed(),

		Server: server.Config{
			Host:               v.GetString("server.host"),
			Port:               v.GetInt("server.port"),
			PathPrefix:         v.GetString("server.prefix"),
			CORSEnabled:        v.GetBool("server.cors_enabled"),
			CORSOrigins:        splitList(v.GetStringSlice("server.cors_origins")),
			RateLimit:          v.GetInt("server.rate_limit"),
			CacheTTL:           v.GetDuration("server.cache_ttl"),
			MaxBodyBytes:       v.GetInt64("server.max_body_bytes"),
			ReadTimeout:        v.GetDuration("server.read_timeout"),
			WriteTimeout:       v.GetDuration("server.write_timeout"),
			IdleTimeout:        v.GetDuration("server.idle_timeout"),
			StreamWriteTimeout: v.GetDuration("server.stream_write_timeout"),
			ShutdownTimeout:    v.GetDuration("server.shutdown_timeout"),
			ChangePollInterval: v.GetDuration("server.change_poll_interval"),
		},

		Auth: auth.Config{
			Disabled:     v.GetBool("auth.disabled"),
			Secret:       v.GetString("auth.jwt_secret"),
			Issuer:       v.GetString("auth.issuer"),
			APIKey:       v.GetString("auth.api_key"),
			APIKeyHeader: v.GetString("auth.api_key_header"),
			Leeway:       v.GetDuration("auth.leeway"),
		},

		Store: StoreConfig{
			Driver:   strings.ToLower(v.GetString("store.driver")),
			DSN:      v.GetString("store.dsn"),
			TieBreak: tieBreak,
		},

		Stream: events.Config{
			QueueDepth:        v.GetInt("stream.queue_depth"),
			HeartbeatInterval: v.GetDuration("stream.heartbeat_interval"),
			HeartbeatMisses:   v.GetInt("stream.heartbeat_misses"),
			FlushTimeout:      v.GetDuration("stream.flush_timeout"),
		},

		Archive: ArchiveConfig{
			Enabled: v.GetBool("archive.enabled"),
			Config: archive.Config{
				Schedule: v.GetString("archive.schedule"),
				Grace:    v.GetDuration("archive.grace"),
			},
		},

		LogLevel:  v.GetString("log.level"),
		LogFormat: v.GetString("log.format"),
		LogOutput: v.GetString("log.output"),
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return nil, errors.NewConfigError("server", "port out of range", nil)
	}
	if config.Server.ShutdownTimeout <= 0 {
		config.Server.ShutdownTimeout = 30 * time.Second
	}

	return config, nil
}

// UpdateFromFlags updates config values from parsed command flags.
// This should be called after cobra parses flags to ensure flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// Variables already set in the environment win.
func loadEnvFiles() {
	// .env.local is loaded first so it wins over .env
	for _, envFile := range []string{".env.local", ".env"} {
		_ = godotenv.Load(envFile)
	}
}

// splitList flattens comma-separated entries, which is how lists arrive
// from environment variables.
func splitList(values []string) []string {
	out := []string{}
	for _, value := range values {
		for part := range strings.SplitSeq(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
