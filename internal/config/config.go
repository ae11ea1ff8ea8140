// Package config provides application configuration management.
// It loads settings from environment variables (and an optional .env file)
// and provides defaults for server mode, import mode, and storage backends.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverSQLite  = "sqlite"
	DriverMongoDB = "mongodb"
)

// ValidationMode selects which settings Load requires.
type ValidationMode int

const (
	// ServerMode validates everything the HTTP server needs.
	ServerMode ValidationMode = iota
	// ImportMode validates storage and catalog source only.
	ImportMode
)

func (m ValidationMode) String() string {
	switch m {
	case ServerMode:
		return "server"
	case ImportMode:
		return "import"
	default:
		return "unknown"
	}
}

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	ServerName      string // Reported to Sentry; defaults to the hostname

	// Storage Configuration
	StorageDriver string // "sqlite" (default) or "mongodb"
	DataDir       string // Data directory for the SQLite database
	MongoURI      string
	MongoDatabase string

	// Catalog Configuration
	CatalogSource string // Local path or s3://bucket/key imported at startup
	CatalogForce  bool   // Import even when the store already holds a catalog

	// Object Store Configuration
	ObjectStore ObjectStoreConfig

	// Lookup Configuration
	SuggestionLimit int
	LookupTimeout   time.Duration

	// API Rate Limits (Token Bucket Algorithm, per client IP)
	APIRateBurst  float64 // Maximum burst tokens per IP (default: 30)
	APIRateRefill float64 // Tokens refilled per second (default: 5)

	// Admin API Authentication (empty password = admin API disabled)
	AdminUsername string
	AdminPassword string

	// Metrics Authentication (empty password = no auth)
	MetricsUsername string
	MetricsPassword string

	// Sentry
	SentryDSN              string
	SentryEnvironment      string
	SentrySampleRate       float64
	SentryTracesSampleRate float64

	// Better Stack
	BetterStackToken    string
	BetterStackEndpoint string
}

// ObjectStoreConfig holds S3-compatible object store settings.
type ObjectStoreConfig struct {
	Endpoint    string
	Region      string
	AccessKeyID string
	SecretKey   string
	Bucket      string
}

// Load reads configuration for server mode.
func Load() (*Config, error) {
	return LoadForMode(ServerMode)
}

// LoadForMode reads configuration from environment variables and validates
// it for mode. A .env file in the working directory is loaded first; real
// environment variables win over it.
func LoadForMode(mode ValidationMode) (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		// Server Configuration
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		ServerName:      getEnv(EnvServerName, ""),

		// Storage Configuration
		StorageDriver: strings.ToLower(getEnv(EnvStorageDriver, DriverSQLite)),
		DataDir:       getEnv(EnvDataDir, getDefaultDataDir()),
		MongoURI:      getEnv(EnvMongoURI, ""),
		MongoDatabase: getEnv(EnvMongoDatabase, "academy"),

		// Catalog Configuration
		CatalogSource: getEnv(EnvCatalogSource, ""),
		CatalogForce:  getBoolEnv(EnvCatalogForce, false),

		// Object Store Configuration
		ObjectStore: ObjectStoreConfig{
			Endpoint:    getEnv(EnvObjectStoreEndpoint, ""),
			Region:      getEnv(EnvObjectStoreRegion, "auto"),
			AccessKeyID: getEnv(EnvObjectStoreAccessKey, ""),
			SecretKey:   getEnv(EnvObjectStoreSecretKey, ""),
			Bucket:      getEnv(EnvObjectStoreBucket, ""),
		},

		// Lookup Configuration
		SuggestionLimit: getIntEnv(EnvSuggestionLimit, 5),
		LookupTimeout:   getDurationEnv(EnvLookupTimeout, LookupRequest),

		// API Rate Limits
		APIRateBurst:  getFloatEnv(EnvAPIRateBurst, 30.0),
		APIRateRefill: getFloatEnv(EnvAPIRateRefill, 5.0),

		// Admin API Authentication
		AdminUsername: getEnv(EnvAdminUsername, "admin"),
		AdminPassword: getEnv(EnvAdminPassword, ""),

		// Metrics Authentication
		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		// Sentry
		SentryDSN:              getEnv(EnvSentryDSN, ""),
		SentryEnvironment:      getEnv(EnvSentryEnvironment, "production"),
		SentrySampleRate:       getFloatEnv(EnvSentrySampleRate, 1.0),
		SentryTracesSampleRate: getFloatEnv(EnvSentryTracesRate, 0.0),

		// Better Stack
		BetterStackToken:    getEnv(EnvBetterStackToken, ""),
		BetterStackEndpoint: getEnv(EnvBetterStackEndpoint, ""),
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for server mode.
func (c *Config) Validate() error {
	return c.ValidateForMode(ServerMode)
}

// ValidateForMode checks if required configuration values are set
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	switch c.StorageDriver {
	case DriverSQLite:
		if c.DataDir == "" {
			errs = append(errs, fmt.Errorf("%s is required for the sqlite driver", EnvDataDir))
		}
	case DriverMongoDB:
		if c.MongoURI == "" {
			errs = append(errs, fmt.Errorf("%s is required for the mongodb driver", EnvMongoURI))
		}
		if c.MongoDatabase == "" {
			errs = append(errs, fmt.Errorf("%s is required for the mongodb driver", EnvMongoDatabase))
		}
	default:
		errs = append(errs, fmt.Errorf("%s must be %q or %q, got %q", EnvStorageDriver, DriverSQLite, DriverMongoDB, c.StorageDriver))
	}

	if (c.ObjectStore.AccessKeyID == "") != (c.ObjectStore.SecretKey == "") {
		errs = append(errs, fmt.Errorf("%s and %s must be set together", EnvObjectStoreAccessKey, EnvObjectStoreSecretKey))
	}

	if mode == ImportMode && c.CatalogSource == "" {
		errs = append(errs, fmt.Errorf("%s is required in %s mode", EnvCatalogSource, mode))
	}

	if mode == ServerMode {
		if c.Port == "" {
			errs = append(errs, fmt.Errorf("%s is required", EnvPort))
		}
		if c.ShutdownTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvShutdownTimeout, c.ShutdownTimeout))
		}
		if c.LookupTimeout <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvLookupTimeout, c.LookupTimeout))
		}
		if c.SuggestionLimit <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvSuggestionLimit, c.SuggestionLimit))
		}
		if c.APIRateBurst <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvAPIRateBurst, c.APIRateBurst))
		}
		if c.APIRateRefill <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvAPIRateRefill, c.APIRateRefill))
		}
		if c.SentrySampleRate < 0 || c.SentrySampleRate > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", EnvSentrySampleRate, c.SentrySampleRate))
		}
		if c.SentryTracesSampleRate < 0 || c.SentryTracesSampleRate > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", EnvSentryTracesRate, c.SentryTracesSampleRate))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// AdminEnabled reports whether the admin API is mounted.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassword != ""
}

// MetricsAuthEnabled reports whether /metrics requires Basic Auth.
func (c *Config) MetricsAuthEnabled() bool {
	return c.MetricsPassword != ""
}

// ObjectStoreConfigured reports whether any object store setting is present.
func (c *Config) ObjectStoreConfigured() bool {
	o := c.ObjectStore
	return o.Endpoint != "" || o.AccessKeyID != "" || o.Bucket != "" ||
		strings.HasPrefix(strings.ToLower(c.CatalogSource), "s3://")
}
