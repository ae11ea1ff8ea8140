package lookup

import (
	"context"

	"github.com/examacademy/academy-server/internal/course"
)

// Criteria narrows what a Source returns. Sources may return a superset:
// the service applies strategy matching to whatever comes back. An empty
// Criteria asks for every course the source holds.
type Criteria struct {
	// ObjectID restricts results to the course with this ID.
	ObjectID string
	// PaperNumber and CourseType are hints a source may push down.
	PaperNumber *int
	CourseType  string
}

// Source yields candidate courses from one storage shape, such as courses
// embedded in faculty records or standalone course records.
type Source interface {
	Name() string
	FindCandidates(ctx context.Context, criteria Criteria) ([]course.Candidate, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc struct {
	SourceName string
	Find       func(ctx context.Context, criteria Criteria) ([]course.Candidate, error)
}

// Name implements Source.
func (s SourceFunc) Name() string { return s.SourceName }

// FindCandidates implements Source.
func (s SourceFunc) FindCandidates(ctx context.Context, criteria Criteria) ([]course.Candidate, error) {
	return s.Find(ctx, criteria)
}
