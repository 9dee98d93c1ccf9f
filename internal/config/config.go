package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/intermernet/relayrace/internal/auth"
	"github.com/intermernet/relayrace/internal/database"
)

// Config holds all configuration for the application, loaded once at start-up
// from environment variables.
type Config struct {
	// --- Server & Paths ---
	ServerAddr  string
	DataPath    string
	FrontendURL string

	// --- Store ---
	DBDriver    string
	DatabaseURL string
	// DSN is what database.NewService receives: the sqlite file path, or DatabaseURL.
	DSN string

	// --- Race ---
	EventTimezone string
	PingInterval  time.Duration

	// --- Staff authentication (optional) ---
	JwtSecret         string
	StaffPasswordHash string

	// --- Event relay (optional) ---
	RedisURL     string
	RedisChannel string

	// --- Logging ---
	LogLevel  zerolog.Level
	LogPretty bool

	// --- Parsed & Derived Fields ---
	ParsedFrontendURL *url.URL
	Location          *time.Location
}

// StaffAuthEnabled reports whether race-control endpoints require a staff token.
func (c *Config) StaffAuthEnabled() bool {
	return c.JwtSecret != "" && c.StaffPasswordHash != ""
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// New creates a new Config instance from the environment. Non-critical values
// get defaults; invalid values are rejected so the server does not start
// half-configured.
func New() (*Config, error) {
	cfg := &Config{
		ServerAddr:        getenv("SERVER_ADDR", ":8080"),
		DataPath:          getenv("DATA_PATH", "./data"),
		FrontendURL:       getenv("FRONTEND_URL", "http://localhost:3000"),
		DBDriver:          getenv("DB_DRIVER", database.DriverSQLite),
		DatabaseURL:       getenv("DATABASE_URL", ""),
		EventTimezone:     getenv("EVENT_TIMEZONE", "Europe/Brussels"),
		JwtSecret:         getenv("JWT_SECRET", ""),
		StaffPasswordHash: getenv("STAFF_PASSWORD_HASH", ""),
		RedisURL:          getenv("REDIS_URL", ""),
		RedisChannel:      getenv("REDIS_CHANNEL", "relayrace:events"),
	}

	switch cfg.DBDriver {
	case database.DriverSQLite:
		cfg.DSN = filepath.Join(cfg.DataPath, "relayrace.db")
	case database.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
		cfg.DSN = cfg.DatabaseURL
	default:
		return nil, fmt.Errorf("DB_DRIVER must be %q or %q, got %q", database.DriverSQLite, database.DriverPostgres, cfg.DBDriver)
	}

	loc, err := time.LoadLocation(cfg.EventTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_TIMEZONE %q: %w", cfg.EventTimezone, err)
	}
	cfg.Location = loc

	if cfg.PingInterval, err = time.ParseDuration(getenv("PING_INTERVAL", "25s")); err != nil {
		return nil, fmt.Errorf("invalid PING_INTERVAL: %w", err)
	}
	if cfg.PingInterval <= 0 {
		return nil, errors.New("PING_INTERVAL must be positive")
	}

	parsedURL, err := url.Parse(cfg.FrontendURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid FRONTEND_URL %q", cfg.FrontendURL)
	}
	cfg.ParsedFrontendURL = parsedURL

	// A hash without a secret (or the reverse) is almost always a deployment mistake.
	if (cfg.JwtSecret == "") != (cfg.StaffPasswordHash == "") {
		return nil, errors.New("JWT_SECRET and STAFF_PASSWORD_HASH must be set together")
	}
	if cfg.StaffPasswordHash != "" {
		if err := auth.ValidateHash(cfg.StaffPasswordHash); err != nil {
			return nil, fmt.Errorf("invalid STAFF_PASSWORD_HASH: %w", err)
		}
	}

	if cfg.LogLevel, err = zerolog.ParseLevel(getenv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogPretty = getenv("LOG_PRETTY", "false") == "true"

	return cfg, nil
}
