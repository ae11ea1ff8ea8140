package storage

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/lookup"
)

func seedLookupDB(t *testing.T) (*DB, *course.Faculty) {
	t.Helper()
	db := setupTestDB(t)
	ctx := context.Background()

	f := sampleFaculty()
	f.Courses[0].ID = "507F1F77BCF86CD799439011"
	require.NoError(t, db.SaveFaculty(ctx, f))
	require.NoError(t, db.SaveStandaloneCourse(ctx, &course.Course{
		ID:          "507f1f77bcf86cd799439099",
		Subject:     "Advanced Cost Accounting",
		PaperNumber: course.PaperNumberRef(5),
		CourseType:  "CA Inter",
		FacultyName: "Guest Lecturer",
	}))
	return db, f
}

func newLookupService(db *DB) *lookup.Service {
	return lookup.NewService(
		[]lookup.Source{db.FacultyCourseSource(), db.StandaloneCourseSource()},
		logger.NewWithWriter("error", io.Discard),
		nil,
		lookup.Options{},
	)
}

func TestSources_ShapeSeparation(t *testing.T) {
	t.Parallel()
	db, _ := seedLookupDB(t)
	ctx := context.Background()

	embedded, err := db.FacultyCourseSource().FindCandidates(ctx, lookup.Criteria{})
	require.NoError(t, err)
	require.Len(t, embedded, 2)
	for _, c := range embedded {
		require.NotNil(t, c.Faculty)
		assert.Equal(t, "ravi-sharma", c.Faculty.Slug)
	}

	standalone, err := db.StandaloneCourseSource().FindCandidates(ctx, lookup.Criteria{})
	require.NoError(t, err)
	require.Len(t, standalone, 1)
	assert.Nil(t, standalone[0].Faculty)
	assert.True(t, standalone[0].Course.IsStandalone)
}

func TestSources_ObjectIDPushdown(t *testing.T) {
	t.Parallel()
	db, _ := seedLookupDB(t)
	ctx := context.Background()

	got, err := db.FacultyCourseSource().FindCandidates(ctx, lookup.Criteria{ObjectID: "507F1F77BCF86CD799439011"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "507f1f77bcf86cd799439011", got[0].Course.ID)

	// The standalone shape never sees embedded IDs.
	none, err := db.StandaloneCourseSource().FindCandidates(ctx, lookup.Criteria{ObjectID: "507f1f77bcf86cd799439011"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLookupOverSQLite(t *testing.T) {
	t.Parallel()
	db, _ := seedLookupDB(t)
	svc := newLookupService(db)
	ctx := context.Background()

	tests := []struct {
		name         string
		courseID     string
		wantSuccess  bool
		wantStrategy string
		wantSubject  string
	}{
		{"paper number", "cma-final-test5mP", true, lookup.StrategyPaperNumber, "Strategic Cost Management"},
		{"object id", "507f1f77bcf86cd799439011", true, lookup.StrategyObjectID, "Strategic Cost Management"},
		{"standalone object id", "507f1f77bcf86cd799439099", true, lookup.StrategyObjectID, "Advanced Cost Accounting"},
		{"slug", "direct-tax", true, lookup.StrategySlug, "Direct Tax Laws"},
		{"not found", "nonexistent-course-xyz", false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := svc.Lookup(ctx, lookup.Request{CourseID: tt.courseID})
			assert.Equal(t, tt.wantSuccess, result.Success)
			if !tt.wantSuccess {
				assert.True(t, result.NotFound())
				assert.Nil(t, result.Course)
				return
			}
			require.NotNil(t, result.Course)
			assert.Equal(t, tt.wantStrategy, result.MatchStrategy)
			assert.Equal(t, tt.wantSubject, result.Course.Subject)
		})
	}
}

func TestLookupOverSQLite_FacultyInfo(t *testing.T) {
	t.Parallel()
	db, f := seedLookupDB(t)
	svc := newLookupService(db)

	result := svc.Lookup(context.Background(), lookup.Request{CourseID: f.Courses[0].ID})

	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Course.Faculty)
	assert.Equal(t, course.FacultyInfo{
		Name:  "Ravi Sharma",
		Slug:  "ravi-sharma",
		Image: "https://cdn.example/ravi.png",
	}, *result.Course.Faculty)
}
