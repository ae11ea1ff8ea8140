// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "ACADEMY_PORT"
	EnvLogLevel        = "ACADEMY_LOG_LEVEL"
	EnvShutdownTimeout = "ACADEMY_SHUTDOWN_TIMEOUT"
	EnvServerName      = "ACADEMY_SERVER_NAME"

	// Storage
	EnvStorageDriver = "ACADEMY_STORAGE_DRIVER"
	EnvDataDir       = "ACADEMY_DATA_DIR"
	EnvMongoURI      = "ACADEMY_MONGO_URI"
	EnvMongoDatabase = "ACADEMY_MONGO_DATABASE"

	// Catalog
	EnvCatalogSource = "ACADEMY_CATALOG_SOURCE"
	EnvCatalogForce  = "ACADEMY_CATALOG_FORCE"

	// Object Store
	EnvObjectStoreEndpoint  = "ACADEMY_OBJECTSTORE_ENDPOINT"
	EnvObjectStoreRegion    = "ACADEMY_OBJECTSTORE_REGION"
	EnvObjectStoreAccessKey = "ACADEMY_OBJECTSTORE_ACCESS_KEY_ID"
	EnvObjectStoreSecretKey = "ACADEMY_OBJECTSTORE_SECRET_ACCESS_KEY"
	EnvObjectStoreBucket    = "ACADEMY_OBJECTSTORE_BUCKET"

	// Lookup
	EnvSuggestionLimit = "ACADEMY_SUGGESTION_LIMIT"
	EnvLookupTimeout   = "ACADEMY_LOOKUP_TIMEOUT"

	// Rate Limits
	EnvAPIRateBurst  = "ACADEMY_API_RATE_BURST"
	EnvAPIRateRefill = "ACADEMY_API_RATE_REFILL"

	// Admin API
	EnvAdminUsername = "ACADEMY_ADMIN_USERNAME"
	EnvAdminPassword = "ACADEMY_ADMIN_PASSWORD"

	// Sentry Feature
	EnvSentryDSN         = "ACADEMY_SENTRY_DSN"
	EnvSentryEnvironment = "ACADEMY_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate  = "ACADEMY_SENTRY_SAMPLE_RATE"
	EnvSentryTracesRate  = "ACADEMY_SENTRY_TRACES_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackToken    = "ACADEMY_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "ACADEMY_BETTERSTACK_ENDPOINT"

	// Metrics Auth Feature
	EnvMetricsUsername = "ACADEMY_METRICS_USERNAME"
	EnvMetricsPassword = "ACADEMY_METRICS_PASSWORD"
)
