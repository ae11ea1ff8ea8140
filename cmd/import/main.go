// Package main provides a one-shot catalog import into the configured store.
//
// Usage:
//
//	import -source ./catalog.json.zst
//	import -source s3://catalog/exports/latest.json
//	import -check -source s3://catalog/exports/latest.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/examacademy/academy-server/internal/app"
	"github.com/examacademy/academy-server/internal/catalog"
	"github.com/examacademy/academy-server/internal/config"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	sourceFlag  = flag.String("source", "", "Catalog location: local path or s3://bucket/key (default: $"+config.EnvCatalogSource+")")
	timeoutFlag = flag.Duration("timeout", config.CatalogImport, "Import deadline")
	checkFlag   = flag.Bool("check", false, "Report the source document's size and age without importing")
)

func main() {
	flag.Parse()

	if *sourceFlag != "" {
		_ = os.Setenv(config.EnvCatalogSource, *sourceFlag)
	}

	cfg, err := config.LoadForMode(config.ImportMode)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := app.NewLogger(cfg).WithModule("import")
	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	code := run(ctx, cfg, log)
	cancel()

	if err := log.Shutdown(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Logger shutdown: %v\n", err)
	}
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	start := time.Now()

	if *checkFlag {
		return check(ctx, cfg, log)
	}

	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to open store")
		return 1
	}
	defer func() { _ = store.Close() }()

	objects, err := app.OpenObjectStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create object store client")
		return 1
	}

	loader := catalog.NewLoader(store, objects, log, metrics.New(prometheus.NewRegistry()))
	stats, err := loader.Load(ctx, cfg.CatalogSource, catalog.TriggerCLI)
	if err != nil {
		log.WithError(err).WithField("source", cfg.CatalogSource).Error("Catalog import failed")
		return 1
	}

	fmt.Printf("Imported %d faculties, %d embedded and %d standalone courses in %s (%d converted, %d rejected)\n",
		stats.Faculties, stats.EmbeddedCourses, stats.StandaloneCourses,
		time.Since(start).Round(time.Millisecond), stats.Converted, len(stats.Rejected))
	for _, rej := range stats.Rejected {
		fmt.Printf("  rejected %s %q: %s\n", rej.Kind, rej.Ref, rej.Reason)
	}
	return 0
}

func check(ctx context.Context, cfg *config.Config, log *logger.Logger) int {
	objects, err := app.OpenObjectStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("Failed to create object store client")
		return 1
	}

	loader := catalog.NewLoader(nil, objects, log, nil)
	info, err := loader.Stat(ctx, cfg.CatalogSource)
	if err != nil {
		log.WithError(err).WithField("source", cfg.CatalogSource).Error("Catalog source check failed")
		return 1
	}

	fmt.Printf("%s: %d bytes, modified %s (compressed=%t", info.Location, info.Size,
		info.LastModified.Format(time.RFC3339), info.Compressed)
	if info.ETag != "" {
		fmt.Printf(", etag=%s", info.ETag)
	}
	fmt.Println(")")
	return 0
}
