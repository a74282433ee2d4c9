// Package config loads server configuration from the environment, with an
// optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const envPrefix = "CONVEYOR_"

// Config holds the effective server configuration.
type Config struct {
	Host string
	Port int

	// DataDir holds the sqlite database and session state.
	DataDir string

	LogLevel  string
	LogFormat string
	LogFile   string

	AllowedOrigins string

	// SessionTTL is the sliding expiration window for dashboard sessions.
	SessionTTL time.Duration

	// SweepInterval is how often the liveness sweeper runs; MachineTimeout
	// is the silence window after which a machine is marked offline.
	SweepInterval  time.Duration
	MachineTimeout time.Duration

	// SearchLimit bounds item search results returned to the dashboard.
	SearchLimit int

	// CatalogPath optionally points at a catalog.toml overriding the
	// built-in item list.
	CatalogPath string
}

// Defaults returns the baseline configuration before environment overrides.
func Defaults() *Config {
	return &Config{
		Host:           "0.0.0.0",
		Port:           7781,
		DataDir:        "/var/lib/conveyor",
		LogLevel:       "info",
		LogFormat:      "auto",
		SessionTTL:     24 * time.Hour,
		SweepInterval:  30 * time.Second,
		MachineTimeout: 60 * time.Second,
		SearchLimit:    20,
	}
}

// Load builds the configuration from defaults, an optional .env file, and
// CONVEYOR_* environment variables, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg := Defaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if val := os.Getenv(envPrefix + "HOST"); val != "" {
		c.Host = val
	}
	if val := os.Getenv(envPrefix + "PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Port = port
		} else {
			log.Warn().Str("value", val).Msg("Ignoring invalid CONVEYOR_PORT")
		}
	}
	if val := os.Getenv(envPrefix + "DATA_DIR"); val != "" {
		c.DataDir = filepath.Clean(val)
	}
	if val := os.Getenv(envPrefix + "LOG_LEVEL"); val != "" {
		c.LogLevel = strings.ToLower(val)
	}
	if val := os.Getenv(envPrefix + "LOG_FORMAT"); val != "" {
		c.LogFormat = strings.ToLower(val)
	}
	if val := os.Getenv(envPrefix + "LOG_FILE"); val != "" {
		c.LogFile = val
	}
	if val := os.Getenv(envPrefix + "ALLOWED_ORIGINS"); val != "" {
		c.AllowedOrigins = val
	}
	if val := os.Getenv(envPrefix + "SESSION_TTL"); val != "" {
		c.SessionTTL = parseDuration(val, "CONVEYOR_SESSION_TTL", c.SessionTTL)
	}
	if val := os.Getenv(envPrefix + "SWEEP_INTERVAL"); val != "" {
		c.SweepInterval = parseDuration(val, "CONVEYOR_SWEEP_INTERVAL", c.SweepInterval)
	}
	if val := os.Getenv(envPrefix + "MACHINE_TIMEOUT"); val != "" {
		c.MachineTimeout = parseDuration(val, "CONVEYOR_MACHINE_TIMEOUT", c.MachineTimeout)
	}
	if val := os.Getenv(envPrefix + "SEARCH_LIMIT"); val != "" {
		if limit, err := strconv.Atoi(val); err == nil {
			c.SearchLimit = limit
		} else {
			log.Warn().Str("value", val).Msg("Ignoring invalid CONVEYOR_SEARCH_LIMIT")
		}
	}
	if val := os.Getenv(envPrefix + "CATALOG_PATH"); val != "" {
		c.CatalogPath = val
	}
}

func parseDuration(val, name string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	// Bare integers are treated as seconds for parity with older deployments.
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("value", val).Str("variable", name).Msg("Ignoring invalid duration")
	return fallback
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("data directory is required")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.MachineTimeout <= 0 {
		return fmt.Errorf("machine timeout must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.SearchLimit < 1 {
		return fmt.Errorf("search limit must be at least 1")
	}
	return nil
}

// ListenAddr returns the host:port pair for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
