// Package config provides centralized timeout constants for the application.
//
// These values are tuned for:
//   - Lookup scans over the whole catalog (two linear passes at most)
//   - SQLite write contention during catalog imports (WAL mode, busy timeout)
//   - MongoDB round trips when the document backend is selected
package config

import "time"

// HTTP server timeouts
const (
	// HTTPRead is the server read timeout. The admin catalog upload
	// overrides it per request with CatalogUpload.
	HTTPRead = 30 * time.Second

	// HTTPWrite is the server write timeout, overridden like HTTPRead.
	HTTPWrite = 35 * time.Second

	// HTTPIdle is the idle timeout for keep-alive connections.
	HTTPIdle = 120 * time.Second

	// HTTPReadHeader bounds header reads.
	HTTPReadHeader = 5 * time.Second

	// ReadinessCheck bounds the storage ping and counts behind /readyz.
	ReadinessCheck = 3 * time.Second
)

// Lookup timeouts
const (
	// LookupRequest is the default deadline for one lookup, including the
	// suggestion pass on a miss.
	LookupRequest = 10 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour

	// MongoConnect bounds the initial MongoDB connection and ping.
	MongoConnect = 15 * time.Second
)

// Catalog import timeouts
const (
	// CatalogImport bounds a full import: download, decode and swap.
	// Admin imports run on a detached context with this deadline.
	CatalogImport = 5 * time.Minute

	// CatalogUpload is the read and write deadline of PUT /api/admin/catalog:
	// the body upload plus the import itself.
	CatalogUpload = CatalogImport + 30*time.Second
)

// Background job intervals
const (
	// MetricsUpdateInterval is how often catalog size gauges are refreshed.
	MetricsUpdateInterval = 5 * time.Minute

	// RateLimiterCleanupInterval is how often inactive per-IP limiters are removed.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown. It
	// outlasts HTTPWrite so regular in-flight responses can finish; a
	// running admin catalog upload is cut off and its transaction rolled back.
	GracefulShutdown = 40 * time.Second
)
