// Package storage provides the catalog store: repository interfaces shared
// by every backend and the SQLite implementation.
package storage

import (
	"context"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/lookup"
)

// CatalogReader defines read operations over faculties and courses.
type CatalogReader interface {
	// GetFacultyBySlug returns the faculty with its courses.
	// Returns an error wrapping errors.ErrNotFound when the slug is unknown.
	GetFacultyBySlug(ctx context.Context, slug string) (*course.Faculty, error)
	ListFaculties(ctx context.Context) ([]course.Faculty, error)
	ListCourses(ctx context.Context, filter CourseFilter) ([]course.Candidate, error)
	CountFaculties(ctx context.Context) (int, error)
	CountCourses(ctx context.Context) (int, error)
}

// CatalogWriter defines write operations over faculties and courses.
type CatalogWriter interface {
	// SaveFaculty upserts the faculty and replaces its course list.
	SaveFaculty(ctx context.Context, faculty *course.Faculty) error
	SaveStandaloneCourse(ctx context.Context, c *course.Course) error
	// DeleteFaculty removes the faculty and every course it owns.
	DeleteFaculty(ctx context.Context, slug string) error
	DeleteCourse(ctx context.Context, id string) error
	// ReplaceCatalog swaps the whole catalog in one transaction.
	ReplaceCatalog(ctx context.Context, faculties []course.Faculty, standalone []course.Course) error
}

// SourceProvider exposes the two storage shapes to the lookup service.
type SourceProvider interface {
	FacultyCourseSource() lookup.Source
	StandaloneCourseSource() lookup.Source
}

// HealthRepository defines the interface for health check operations.
type HealthRepository interface {
	// Ping verifies database connection is alive.
	Ping(ctx context.Context) error
}

// Store is the aggregate interface every catalog backend implements.
type Store interface {
	CatalogReader
	CatalogWriter
	SourceProvider
	HealthRepository
	Close() error
}

// Ensure DB implements all repository interfaces at compile time.
var (
	_ CatalogReader    = (*DB)(nil)
	_ CatalogWriter    = (*DB)(nil)
	_ SourceProvider   = (*DB)(nil)
	_ HealthRepository = (*DB)(nil)
	_ Store            = (*DB)(nil)
)
