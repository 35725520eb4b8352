// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:5173"] (Vite dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// JWTSecret verifies HS256 bearer tokens. Required.
	JWTSecret string

	// RedisURL selects the Redis role cache. Empty means an in-process cache.
	RedisURL string

	// RoleCacheTTL bounds how long a cached role is trusted. Defaults to 60s.
	RoleCacheTTL time.Duration

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64

	// MigrateOnStart applies pending goose migrations at startup. Defaults to true.
	MigrateOnStart bool
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	ttl, err := getInt("ROLE_CACHE_TTL_SECONDS", 60)
	if err != nil {
		return Config{}, err
	}
	cfg.RoleCacheTTL = time.Duration(ttl) * time.Second

	maxBody, err := getInt("MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", true); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ClientConfig holds the settings of the tripsync CLI.
// Cobra flags override these values.
type ClientConfig struct {
	// APIURL is the base URL of the itinerary API. Defaults to "http://localhost:8080".
	APIURL string

	// Token is the bearer token sent with every request.
	Token string

	// RetryAttempts is the number of tries per repository call. Defaults to 4.
	RetryAttempts int

	// RetryBase is the first backoff delay. Defaults to 200ms.
	RetryBase time.Duration

	// RoleTTL bounds how long the CLI trusts a role it fetched, so a role change
	// made elsewhere takes effect within it. Defaults to 10s.
	RoleTTL time.Duration
}

// LoadClient reads the CLI configuration from environment variables.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		APIURL: strings.TrimRight(getEnv("TRIPSYNC_API_URL", "http://localhost:8080"), "/"),
		Token:  os.Getenv("TRIPSYNC_TOKEN"),
	}

	var err error
	if cfg.RetryAttempts, err = getInt("TRIPSYNC_RETRY_ATTEMPTS", 4); err != nil {
		return ClientConfig{}, err
	}
	if cfg.RetryAttempts < 1 {
		return ClientConfig{}, fmt.Errorf("TRIPSYNC_RETRY_ATTEMPTS must be at least 1, got %d", cfg.RetryAttempts)
	}
	baseMS, err := getInt("TRIPSYNC_RETRY_BASE_MS", 200)
	if err != nil {
		return ClientConfig{}, err
	}
	cfg.RetryBase = time.Duration(baseMS) * time.Millisecond

	ttlS, err := getInt("TRIPSYNC_ROLE_TTL_SECONDS", 10)
	if err != nil {
		return ClientConfig{}, err
	}
	if ttlS < 1 {
		return ClientConfig{}, fmt.Errorf("TRIPSYNC_ROLE_TTL_SECONDS must be at least 1, got %d", ttlS)
	}
	cfg.RoleTTL = time.Duration(ttlS) * time.Second

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
