package lookup

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/metrics"
)

const embeddedID = "507f1f77bcf86cd799439011"

func testLogger() *logger.Logger {
	return logger.NewWithWriter("error", io.Discard)
}

func staticSource(name string, candidates ...course.Candidate) Source {
	return SourceFunc{
		SourceName: name,
		Find: func(_ context.Context, criteria Criteria) ([]course.Candidate, error) {
			if criteria.ObjectID == "" {
				return candidates, nil
			}
			var out []course.Candidate
			for _, c := range candidates {
				if c.Course.ID == criteria.ObjectID {
					out = append(out, c)
				}
			}
			return out, nil
		},
	}
}

func failingSource(name string, err error) Source {
	return SourceFunc{
		SourceName: name,
		Find: func(context.Context, Criteria) ([]course.Candidate, error) {
			return nil, err
		},
	}
}

func facultyFixture() *course.Faculty {
	f := &course.Faculty{
		ID:        "64b000000000000000000001",
		FirstName: "Ravi",
		LastName:  "Sharma",
		Slug:      "ravi-sharma",
		ImageURL:  "https://cdn.example/ravi.png",
	}
	f.Courses = []course.Course{
		{
			ID:          embeddedID,
			Subject:     "Strategic Cost Management",
			PaperNumber: course.PaperNumberRef(5),
			CourseType:  "CMA Final",
			Category:    "CMA",
			Subcategory: "Final",
			FacultyID:   f.ID,
		},
		{
			ID:          "507f1f77bcf86cd799439012",
			Subject:     "Direct Tax Laws",
			PaperNumber: course.PaperTextRef("7"),
			CourseType:  "CA Final",
			Category:    "CA",
			Subcategory: "Final",
			FacultyID:   f.ID,
		},
	}
	return f
}

func facultySource() Source {
	f := facultyFixture()
	candidates := make([]course.Candidate, len(f.Courses))
	for i := range f.Courses {
		candidates[i] = course.Candidate{Course: f.Courses[i], Faculty: f}
	}
	return staticSource("faculty_courses", candidates...)
}

func standaloneSource() Source {
	return staticSource("standalone_courses",
		course.Candidate{Course: course.Course{
			ID:           "507f1f77bcf86cd799439099",
			Subject:      "Advanced Cost Accounting",
			PaperNumber:  course.PaperNumberRef(5),
			CourseType:   "CA Inter",
			FacultyName:  "Guest Lecturer",
			IsStandalone: true,
		}},
	)
}

func newTestService(sources ...Source) *Service {
	return NewService(sources, testLogger(), nil, Options{})
}

func TestLookup_PaperNumberStrategy(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	result := svc.Lookup(context.Background(), Request{CourseID: "cma-final-test5mP"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, StrategyPaperNumber, result.MatchStrategy)
	assert.Equal(t, embeddedID, result.Course.ID)
	assert.Equal(t, "cma-final-test5mP", result.CourseID)
	require.NotNil(t, result.Course.Faculty)
	assert.Equal(t, "Ravi Sharma", result.Course.Faculty.Name)
	assert.Equal(t, "ravi-sharma", result.Course.Faculty.Slug)
	assert.Equal(t, "https://cdn.example/ravi.png", result.Course.Faculty.Image)
	assert.Positive(t, result.Duration)
}

func TestLookup_ObjectIDStrategy(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	result := svc.Lookup(context.Background(), Request{CourseID: embeddedID})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, StrategyObjectID, result.MatchStrategy)
	assert.Equal(t, "Strategic Cost Management", result.Course.Subject)
}

func TestLookup_ObjectIDIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource())

	result := svc.Lookup(context.Background(), Request{CourseID: "507F1F77BCF86CD799439011"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, StrategyObjectID, result.MatchStrategy)
}

func TestLookup_NotFound(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	result := svc.Lookup(context.Background(), Request{CourseID: "nonexistent-course-xyz", Debug: true})

	assert.False(t, result.Success)
	assert.True(t, result.NotFound())
	assert.Equal(t, ErrMsgNotFound, result.Error)
	assert.Nil(t, result.Course)
	assert.Equal(t, "nonexistent-course-xyz", result.CourseID)
	// Only the slug strategy applies, once per source.
	require.Len(t, result.SearchAttempts, 2)
	for _, a := range result.SearchAttempts {
		assert.Equal(t, StrategySlug, a.Strategy)
		assert.False(t, a.Success)
	}
	require.NotNil(t, result.Debug)
	assert.Equal(t, []string{"faculty_courses", "standalone_courses"}, result.Debug.Sources)
}

func TestLookup_EmptyID(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource())

	result := svc.Lookup(context.Background(), Request{CourseID: ""})

	assert.True(t, result.NotFound())
	assert.Empty(t, result.SearchAttempts)
}

func TestLookup_SlugStrategyReachesStandalone(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	result := svc.Lookup(context.Background(), Request{CourseID: "cost-accounting"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, StrategySlug, result.MatchStrategy)
	assert.Equal(t, "Advanced Cost Accounting", result.Course.Subject)
	assert.Nil(t, result.Course.Faculty)
	assert.Equal(t, "Guest Lecturer", result.Course.FacultyName)
}

func TestLookup_FacultySourceScannedFirst(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	result := svc.Lookup(context.Background(), Request{CourseID: "paper-5"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, embeddedID, result.Course.ID)
	require.Len(t, result.SearchAttempts, 1)
	assert.Equal(t, "faculty_courses", result.SearchAttempts[0].Source)
	assert.Equal(t, 2, result.SearchAttempts[0].Candidates)
}

func TestLookup_CourseTypeHintFilters(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	result := svc.Lookup(context.Background(), Request{CourseID: "paper-5", CourseType: "CA Inter"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Advanced Cost Accounting", result.Course.Subject)

	miss := svc.Lookup(context.Background(), Request{CourseID: "paper-5", CourseType: "CA Foundation"})
	assert.True(t, miss.NotFound())
}

func TestLookup_StringPaperNumberCoerced(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource())

	result := svc.Lookup(context.Background(), Request{CourseID: "ca-final-p7"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "Direct Tax Laws", result.Course.Subject)
}

func TestLookup_SourceErrorDegradesToMiss(t *testing.T) {
	t.Parallel()
	svc := newTestService(failingSource("broken", errors.New("connection reset")), facultySource())

	result := svc.Lookup(context.Background(), Request{CourseID: "cma-final-test5mP", Debug: true})

	require.True(t, result.Success, result.Error)
	require.Len(t, result.SearchAttempts, 2)
	assert.Equal(t, "connection reset", result.SearchAttempts[0].Error)
	assert.False(t, result.SearchAttempts[0].Success)
	assert.True(t, result.SearchAttempts[1].Success)
}

func TestLookup_PanicBecomesInternalError(t *testing.T) {
	t.Parallel()

	var reported any
	panicking := SourceFunc{
		SourceName: "panicking",
		Find: func(context.Context, Criteria) ([]course.Candidate, error) {
			panic("nil map write")
		},
	}
	svc := NewService([]Source{panicking}, testLogger(), nil, Options{
		OnPanic: func(_ context.Context, r any) { reported = r },
	})

	plain := svc.Lookup(context.Background(), Request{CourseID: "cma-final"})
	assert.False(t, plain.Success)
	assert.True(t, plain.Internal())
	assert.Equal(t, ErrMsgInternal, plain.Error)
	assert.Nil(t, plain.Debug)
	assert.Equal(t, "nil map write", reported)

	debug := svc.Lookup(context.Background(), Request{CourseID: "cma-final", Debug: true})
	require.NotNil(t, debug.Debug)
	assert.Contains(t, debug.Debug.Detail, "nil map write")
}

func TestLookup_CancelledContext(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := svc.Lookup(ctx, Request{CourseID: "cma-final-test5mP"})

	assert.False(t, result.Success)
	assert.True(t, result.Cancelled())
}

func TestLookup_RecordsMetrics(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService([]Source{facultySource()}, testLogger(), m, Options{})

	svc.Lookup(context.Background(), Request{CourseID: "cma-final-test5mP"})
	svc.Lookup(context.Background(), Request{CourseID: "nonexistent-course-xyz"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("found", StrategyPaperNumber)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LookupsTotal.WithLabelValues("not_found", "none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StrategyAttemptsTotal.WithLabelValues(StrategyPaperNumber, "hit")))
}

func TestSuggest(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	suggestions, err := svc.Suggest(context.Background(), "cma-final-test5mP", "", 0)

	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 5)
	assert.Equal(t, embeddedID, suggestions[0].Course.ID)
	for i := 1; i < len(suggestions); i++ {
		assert.GreaterOrEqual(t, suggestions[i-1].Score, suggestions[i].Score)
	}
}

func TestSuggest_Limit(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), standaloneSource())

	suggestions, err := svc.Suggest(context.Background(), "paper-5", "", 1)

	require.NoError(t, err)
	assert.Len(t, suggestions, 1)
}

func TestSuggest_SourceError(t *testing.T) {
	t.Parallel()
	svc := newTestService(facultySource(), failingSource("broken", errors.New("timeout")))

	_, err := svc.Suggest(context.Background(), "paper-5", "", 0)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
