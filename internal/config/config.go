// Package config loads server configuration from flags, environment variables, and .env files.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config holds the application configuration.
type Config struct {
	App       AppConfig
	Logger    LoggerConfig
	Data      DataConfig
	Store     StoreConfig
	Server    ServerConfig
	Auth      AuthConfig
	Calendar  CalendarConfig
	RateLimit RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds the on-disk location for databases and keys.
type DataConfig struct {
	BasePath string
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string
	// DSN is required for postgres; sqlite and badger default to files under the data path.
	DSN string
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// AuthConfig holds access token configuration.
type AuthConfig struct {
	// KeyHex is an optional hex PASETO key. Empty means the key file under the data path.
	KeyHex string
	// PASETO v4 symmetric key (32 bytes), set by auth.ResolveKey.
	AccessTokenKey      []byte
	AccessTokenDuration time.Duration
}

// CalendarConfig tunes calendar sessions.
type CalendarConfig struct {
	// PollInterval is the period of the full-snapshot reconcile.
	PollInterval time.Duration
	// SessionIdleTimeout closes sessions nobody has touched for this long.
	SessionIdleTimeout time.Duration
	// NotificationTTL is how long transient notifications stay visible.
	NotificationTTL time.Duration
	// PixelsPerHour scales event heights.
	PixelsPerHour float64
}

// RateLimitConfig limits calendar mutations per user.
type RateLimitConfig struct {
	MutationsPerMinute int
	Burst              int
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags.
// 2. Environment variables.
// 3. .env file.
// 4. Defaults.
func LoadConfig() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

// FromEnvironment loads configuration from environment variables and .env
// only. Used by tools that parse their own flags.
func FromEnvironment() (*Config, error) {
	return load(flag.NewFlagSet("env", flag.ContinueOnError), nil)
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for databases and keys")
	storeBackend := fs.String("store", "", "Record store backend (sqlite, badger, postgres)")
	storeDSN := fs.String("store-dsn", "", "Record store connection string")
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0, streams stay open)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	accessTokenDuration := fs.String("access-token-duration", "", "Access token lifetime (e.g., 24h)")
	pollInterval := fs.String("poll-interval", "", "Full reconcile period (default: 30s)")
	sessionIdle := fs.String("session-idle-timeout", "", "Idle calendar session lifetime (default: 30m)")
	notificationTTL := fs.String("notification-ttl", "", "Notification lifetime (default: 5s)")
	pxPerHour := fs.String("px-per-hour", "", "Event height scale (default: 60)")
	rateLimit := fs.String("mutations-per-minute", "", "Calendar mutations per user per minute (default: 120)")
	rateBurst := fs.String("mutations-burst", "", "Calendar mutation burst (default: 20)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Missing .env is fine. godotenv.Load never overrides variables already set.
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", *envFile, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getConfigValue(*storeBackend, "STORE_BACKEND", BackendSQLite)),
			DSN:     getConfigValue(*storeDSN, "STORE_DSN", ""),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*")),
		},
		Auth: AuthConfig{
			KeyHex: os.Getenv("AUTH_KEY"),
		},
		Calendar: CalendarConfig{
			PixelsPerHour: getFloatConfigValue(*pxPerHour, "CALENDAR_PX_PER_HOUR", 60),
		},
		RateLimit: RateLimitConfig{
			MutationsPerMinute: getIntConfigValue(*rateLimit, "RATE_LIMIT_MUTATIONS_PER_MINUTE", 120),
			Burst:              getIntConfigValue(*rateBurst, "RATE_LIMIT_BURST", 20),
		},
	}

	durations := []struct {
		dst      *time.Duration
		flag     string
		env      string
		fallback string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Auth.AccessTokenDuration, *accessTokenDuration, "ACCESS_TOKEN_DURATION", "24h"},
		{&cfg.Calendar.PollInterval, *pollInterval, "POLL_INTERVAL", "30s"},
		{&cfg.Calendar.SessionIdleTimeout, *sessionIdle, "SESSION_IDLE_TIMEOUT", "30m"},
		{&cfg.Calendar.NotificationTTL, *notificationTTL, "NOTIFICATION_TTL", "5s"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flag, d.env, d.fallback)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.env, raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	switch c.Store.Backend {
	case BackendSQLite, BackendBadger:
	case BackendPostgres:
		if c.Store.DSN == "" {
			return errors.New("STORE_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be sqlite, badger, or postgres)", c.Store.Backend)
	}

	if c.Calendar.PollInterval < time.Second {
		return fmt.Errorf("poll interval %s is too short (minimum 1s)", c.Calendar.PollInterval)
	}
	if c.Calendar.PixelsPerHour <= 0 {
		return errors.New("px per hour must be positive")
	}
	if c.RateLimit.MutationsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit values must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty, defaultPath is returned unchanged.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	expanded, err := expandPath(c.Data.BasePath, filepath.Join(homeDir, "Waypoint", "data"))
	if err != nil {
		return err
	}
	c.Data.BasePath = expanded
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(strValue)
	if err != nil {
		return defaultValue
	}
	return result
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	result, err := strconv.ParseFloat(strValue, 64)
	if err != nil {
		return defaultValue
	}
	return result
}

func splitList(raw string) []string {
	var out []string
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
