package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/examacademy/academy-server/internal/course"
	domerrors "github.com/examacademy/academy-server/internal/errors"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/metrics"
	"github.com/examacademy/academy-server/internal/objectstore"
)

// Import triggers, used as the metrics label.
const (
	TriggerStartup = "startup"
	TriggerAdmin   = "admin"
	TriggerCLI     = "cli"
)

// Store is the subset of storage.Store the loader writes to.
type Store interface {
	ReplaceCatalog(ctx context.Context, faculties []course.Faculty, standalone []course.Course) error
	CountFaculties(ctx context.Context) (int, error)
	CountCourses(ctx context.Context) (int, error)
}

// Loader imports catalog documents into a store.
type Loader struct {
	store   Store
	objects *objectstore.Client
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewLoader creates a loader. objects and m may be nil; without an object
// store client only local paths can be loaded.
func NewLoader(store Store, objects *objectstore.Client, log *logger.Logger, m *metrics.Metrics) *Loader {
	return &Loader{
		store:   store,
		objects: objects,
		logger:  log.WithModule("catalog"),
		metrics: m,
	}
}

// Load imports the document at source: a local path or s3://bucket/key.
func (l *Loader) Load(ctx context.Context, source, trigger string) (ImportStats, error) {
	body, compressed, err := l.open(ctx, source)
	if err != nil {
		l.record(trigger, "error", 0)
		return ImportStats{}, err
	}
	defer func() { _ = body.Close() }()

	return l.Import(ctx, body, compressed, trigger)
}

// Import decodes, normalizes and stores one document. An empty document is
// rejected so a truncated export cannot wipe the catalog.
func (l *Loader) Import(ctx context.Context, r io.Reader, compressed bool, trigger string) (ImportStats, error) {
	start := time.Now()
	log := l.logger.WithField("trigger", trigger)
	wrap := domerrors.NewWrapper("catalog", "import_"+trigger)

	doc, err := Decode(r, compressed)
	if err != nil {
		l.record(trigger, "error", time.Since(start).Seconds())
		return ImportStats{}, wrap.Wrap(fmt.Errorf("%w: %w", domerrors.ErrInvalidInput, err), "Catalog document could not be decoded")
	}
	if doc.IsEmpty() {
		l.record(trigger, "error", time.Since(start).Seconds())
		return ImportStats{}, wrap.Wrap(domerrors.ErrInvalidInput, "Catalog document is empty")
	}

	stats := Normalize(doc)
	for _, rej := range stats.Rejected {
		log.WithFields(map[string]any{
			"kind":   rej.Kind,
			"ref":    rej.Ref,
			"reason": rej.Reason,
		}).Warn("Catalog record rejected")
	}
	if doc.IsEmpty() {
		l.record(trigger, "error", time.Since(start).Seconds())
		return stats, wrap.Wrapf(domerrors.ErrInvalidInput, "All %d catalog records were rejected", len(stats.Rejected))
	}

	if err := l.store.ReplaceCatalog(ctx, doc.Faculties, doc.Courses); err != nil {
		l.record(trigger, "error", time.Since(start).Seconds())
		return stats, fmt.Errorf("replace catalog: %w", err)
	}

	duration := time.Since(start)
	l.record(trigger, "success", duration.Seconds())
	if l.metrics != nil {
		l.metrics.RecordCatalogRejected(KindFaculty, stats.RejectedCount(KindFaculty))
		l.metrics.RecordCatalogRejected(KindCourse, stats.RejectedCount(KindCourse))
	}
	l.RefreshSize(ctx)

	log.WithFields(map[string]any{
		"faculties":          stats.Faculties,
		"embedded_courses":   stats.EmbeddedCourses,
		"standalone_courses": stats.StandaloneCourses,
		"converted":          stats.Converted,
		"rejected":           len(stats.Rejected),
		"duration_ms":        duration.Milliseconds(),
	}).Info("Catalog imported")
	return stats, nil
}

// RefreshSize updates the catalog size gauges from the store.
func (l *Loader) RefreshSize(ctx context.Context) {
	if l.metrics == nil {
		return
	}
	faculties, err := l.store.CountFaculties(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to count faculties")
		return
	}
	courses, err := l.store.CountCourses(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to count courses")
		return
	}
	l.metrics.SetCatalogSize(faculties, courses)
}

// SourceInfo describes a catalog document without reading it.
type SourceInfo struct {
	Location     string    `json:"location"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	Compressed   bool      `json:"compressed"`
	LastModified time.Time `json:"last_modified"`
}

// Stat reports size and modification time of the document at source. Object
// locations are checked with a HEAD request.
func (l *Loader) Stat(ctx context.Context, source string) (SourceInfo, error) {
	info := SourceInfo{
		Location:   source,
		Compressed: strings.HasSuffix(strings.ToLower(source), ".zst"),
	}

	if objectstore.IsLocation(source) {
		if l.objects == nil {
			return info, errors.New("catalog: object store is not configured")
		}
		loc, err := objectstore.ParseLocation(source)
		if err != nil {
			return info, err
		}
		obj, err := l.objects.WithBucket(loc.Bucket).HeadObject(ctx, loc.Key)
		if err != nil {
			return info, fmt.Errorf("catalog: head %s: %w", loc, err)
		}
		info.Size = obj.Size
		info.ETag = obj.ETag
		info.LastModified = obj.LastModified
		info.Compressed = info.Compressed || strings.EqualFold(obj.ContentEncoding, "zstd")
		return info, nil
	}

	fi, err := os.Stat(source)
	if err != nil {
		return info, fmt.Errorf("catalog: stat %s: %w", source, err)
	}
	if fi.IsDir() {
		return info, fmt.Errorf("catalog: %s is a directory", source)
	}
	info.Size = fi.Size()
	info.LastModified = fi.ModTime()
	return info, nil
}

func (l *Loader) open(ctx context.Context, source string) (io.ReadCloser, bool, error) {
	compressed := strings.HasSuffix(strings.ToLower(source), ".zst")

	if objectstore.IsLocation(source) {
		if l.objects == nil {
			return nil, false, errors.New("catalog: object store is not configured")
		}
		loc, err := objectstore.ParseLocation(source)
		if err != nil {
			return nil, false, err
		}
		body, info, err := l.objects.WithBucket(loc.Bucket).Download(ctx, loc.Key)
		if err != nil {
			return nil, false, fmt.Errorf("catalog: download %s: %w", loc, err)
		}
		if strings.EqualFold(info.ContentEncoding, "zstd") {
			compressed = true
		}
		return body, compressed, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, false, fmt.Errorf("catalog: open %s: %w", source, err)
	}
	return f, compressed, nil
}

func (l *Loader) record(trigger, status string, seconds float64) {
	if l.metrics != nil {
		l.metrics.RecordCatalogImport(trigger, status, seconds)
	}
}
