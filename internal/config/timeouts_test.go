package config

import (
	"testing"
	"time"
)

// TestHTTPTimeouts verifies HTTP server timeout constants
func TestHTTPTimeouts(t *testing.T) {
	tests := []struct {
		name     string
		got      time.Duration
		expected time.Duration
	}{
		{"HTTPRead", HTTPRead, 30 * time.Second},
		{"HTTPWrite", HTTPWrite, 35 * time.Second},
		{"HTTPIdle", HTTPIdle, 120 * time.Second},
		{"HTTPReadHeader", HTTPReadHeader, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

// TestDatabaseTimeouts verifies database-related timeout constants
func TestDatabaseTimeouts(t *testing.T) {
	tests := []struct {
		name     string
		got      time.Duration
		expected time.Duration
	}{
		{"DatabaseBusyTimeout", DatabaseBusyTimeout, 30 * time.Second},
		{"DatabaseConnMaxLifetime", DatabaseConnMaxLifetime, time.Hour},
		{"MongoConnect", MongoConnect, 15 * time.Second},
		{"ReadinessCheck", ReadinessCheck, 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

// TestLifecycleTimeouts verifies import and shutdown timeout constants
func TestLifecycleTimeouts(t *testing.T) {
	tests := []struct {
		name     string
		got      time.Duration
		expected time.Duration
	}{
		{"LookupRequest", LookupRequest, 10 * time.Second},
		{"CatalogImport", CatalogImport, 5 * time.Minute},
		{"CatalogUpload", CatalogUpload, 5*time.Minute + 30*time.Second},
		{"GracefulShutdown", GracefulShutdown, 40 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}
}

// TestTimeoutRelationships verifies logical relationships between timeouts
func TestTimeoutRelationships(t *testing.T) {
	if HTTPWrite <= HTTPRead {
		t.Errorf("HTTPWrite (%v) should exceed HTTPRead (%v)", HTTPWrite, HTTPRead)
	}
	if LookupRequest >= HTTPWrite {
		t.Errorf("LookupRequest (%v) must finish before HTTPWrite (%v)", LookupRequest, HTTPWrite)
	}
	if HTTPReadHeader >= HTTPRead {
		t.Errorf("HTTPReadHeader (%v) should be shorter than HTTPRead (%v)", HTTPReadHeader, HTTPRead)
	}
	if GracefulShutdown <= HTTPWrite {
		t.Errorf("GracefulShutdown (%v) should let in-flight writes finish (%v)", GracefulShutdown, HTTPWrite)
	}
	if CatalogImport <= LookupRequest {
		t.Errorf("CatalogImport (%v) should exceed LookupRequest (%v)", CatalogImport, LookupRequest)
	}
	if CatalogUpload <= CatalogImport || CatalogUpload <= HTTPWrite {
		t.Errorf("CatalogUpload (%v) should cover CatalogImport (%v) and exceed HTTPWrite (%v)", CatalogUpload, CatalogImport, HTTPWrite)
	}
}
