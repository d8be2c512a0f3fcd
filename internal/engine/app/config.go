package app

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	DatabaseFile  string // Optional: path to SQLite database file (default: ./palms.db)
	RedisAddr     string // Optional: host:port of Redis for realtime channels (empty = in-process)
	RedisPassword string // Optional
	SigningSecret string // Required in prod: HMAC secret for access tokens
	Issuer        string // Optional: issuer claim for access tokens (default: palms-engine)

	RequireEmailConfirmation bool // Optional: hold new sign-ups until confirmed (default: true)

	ReservedAdminEmail string        // Optional: address always treated as admin without a role row
	RefreshInterval    time.Duration // Optional: session refresh cadence (default: 30m)
	FetchFloor         time.Duration // Optional: minimum spacing between dashboard fetches (default: 5s)
	Debounce           time.Duration // Optional: realtime event coalescing window (default: 1s)

	Env       string // Environment (dev, staging, prod) (default: dev)
	LogLevel  string // Log level (debug, info, warn, error) (default: info)
	LogFormat string // Log format (json, text) (default: json)
}

func LoadConfig() Config {
	return Config{
		DatabaseFile:             getEnvOrDefault("PALMS_DATABASE_FILE", "palms.db"),
		RedisAddr:                os.Getenv("PALMS_REDIS_ADDR"),
		RedisPassword:            os.Getenv("PALMS_REDIS_PASSWORD"),
		SigningSecret:            getEnvOrDefault("PALMS_SIGNING_SECRET", "dev-only-secret"),
		Issuer:                   getEnvOrDefault("PALMS_ISSUER", "palms-engine"),
		RequireEmailConfirmation: getEnvBoolOrDefault("PALMS_REQUIRE_EMAIL_CONFIRMATION", true),
		ReservedAdminEmail:       os.Getenv("PALMS_RESERVED_ADMIN_EMAIL"),
		RefreshInterval:          getEnvDurationOrDefault("PALMS_REFRESH_INTERVAL", 30*time.Minute),
		FetchFloor:               getEnvDurationOrDefault("PALMS_FETCH_FLOOR", 5*time.Second),
		Debounce:                 getEnvDurationOrDefault("PALMS_DEBOUNCE", time.Second),
		Env:                      getEnvOrDefault("ENV", "dev"),
		LogLevel:                 getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:                getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
