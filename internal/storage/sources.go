package storage

import (
	"context"
	"strings"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/lookup"
)

// FacultyCourseSource returns the lookup view over faculty-embedded courses.
func (db *DB) FacultyCourseSource() lookup.Source {
	return lookup.SourceFunc{
		SourceName: FacultySourceName,
		Find: func(ctx context.Context, criteria lookup.Criteria) ([]course.Candidate, error) {
			return db.findCandidates(ctx, `c.faculty_id IS NOT NULL`, criteria)
		},
	}
}

// StandaloneCourseSource returns the lookup view over standalone courses.
func (db *DB) StandaloneCourseSource() lookup.Source {
	return lookup.SourceFunc{
		SourceName: StandaloneSourceName,
		Find: func(ctx context.Context, criteria lookup.Criteria) ([]course.Candidate, error) {
			return db.findCandidates(ctx, `c.faculty_id IS NULL`, criteria)
		},
	}
}

// findCandidates pushes an ObjectID criterion down to the primary key; other
// criteria are left to the lookup strategies, which scan the full shape.
func (db *DB) findCandidates(ctx context.Context, shape string, criteria lookup.Criteria) ([]course.Candidate, error) {
	if criteria.ObjectID != "" {
		return db.queryCandidates(ctx, ` WHERE `+shape+` AND c.id = ?`, strings.ToLower(criteria.ObjectID))
	}
	return db.queryCandidates(ctx, ` WHERE `+shape)
}
