// Package lookup resolves loosely typed course references to a single
// course by running ordered strategies over every configured Source.
package lookup

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/courseid"
	"github.com/examacademy/academy-server/internal/logger"
	"github.com/examacademy/academy-server/internal/matcher"
	"github.com/examacademy/academy-server/internal/metrics"
)

// Error messages returned in failed results.
const (
	ErrMsgNotFound  = "Course not found"
	ErrMsgInternal  = "Internal error while looking up course"
	ErrMsgCancelled = "Lookup cancelled"
)

// Outcomes reported to metrics.
const (
	outcomeFound    = "found"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// Request is one lookup call.
type Request struct {
	CourseID string
	// CourseType is an optional hint; when empty the type parsed from
	// CourseID is used to filter matches.
	CourseType string
	Debug      bool
}

// Attempt records one strategy run against one source.
type Attempt struct {
	Strategy   string  `json:"strategy"`
	Source     string  `json:"source"`
	Success    bool    `json:"success"`
	Candidates int     `json:"candidatesScanned"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// DebugInfo is only populated for debug requests.
type DebugInfo struct {
	Parsed           courseid.ParsedID `json:"parsed"`
	CourseTypeFilter string            `json:"courseTypeFilter,omitempty"`
	Sources          []string          `json:"sources"`
	Detail           string            `json:"detail,omitempty"`
}

// Result is the tagged outcome of a lookup. Lookups never return a Go error.
type Result struct {
	Success        bool                   `json:"success"`
	Course         *course.EnrichedCourse `json:"course,omitempty"`
	Error          string                 `json:"error,omitempty"`
	CourseID       string                 `json:"courseId"`
	Duration       time.Duration          `json:"-"`
	MatchStrategy  string                 `json:"matchStrategy,omitempty"`
	SearchAttempts []Attempt              `json:"searchAttempts,omitempty"`
	Debug          *DebugInfo             `json:"debugInfo,omitempty"`
}

// NotFound reports whether every strategy ran without a match.
func (r *Result) NotFound() bool {
	return !r.Success && r.Error == ErrMsgNotFound
}

// Internal reports whether the lookup was aborted by an unexpected failure.
func (r *Result) Internal() bool {
	return !r.Success && r.Error == ErrMsgInternal
}

// Cancelled reports whether the caller's context ended the lookup.
func (r *Result) Cancelled() bool {
	return !r.Success && r.Error == ErrMsgCancelled
}

// Options tunes a Service.
type Options struct {
	// SuggestionLimit caps Suggest results; zero means matcher.DefaultLimit.
	SuggestionLimit int
	// OnPanic is called with the recovered value when a lookup panics.
	OnPanic func(ctx context.Context, recovered any)
}

// Service runs lookups. It holds no per-call state and is safe for
// concurrent use.
type Service struct {
	sources []Source
	logger  *logger.Logger
	metrics *metrics.Metrics
	opts    Options
}

// NewService creates a lookup service scanning sources in the given order.
// metrics may be nil.
func NewService(sources []Source, log *logger.Logger, m *metrics.Metrics, opts Options) *Service {
	if opts.SuggestionLimit <= 0 {
		opts.SuggestionLimit = matcher.DefaultLimit
	}
	return &Service{
		sources: sources,
		logger:  log.WithModule("lookup"),
		metrics: m,
		opts:    opts,
	}
}

// Sources returns the configured source names in scan order.
func (s *Service) Sources() []string {
	names := make([]string, len(s.sources))
	for i, src := range s.sources {
		names[i] = src.Name()
	}
	return names
}

// Lookup resolves req.CourseID to one course. Strategies run in fixed order
// (object_id, paper_number, slug), each at most once; the first hit wins.
func (s *Service) Lookup(ctx context.Context, req Request) (result Result) {
	start := time.Now()
	result.CourseID = req.CourseID

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("course_id", req.CourseID).
				WithField("panic", fmt.Sprint(r)).
				ErrorContext(ctx, "Lookup panicked")
			if s.opts.OnPanic != nil {
				s.opts.OnPanic(ctx, r)
			}
			result = Result{
				CourseID:       req.CourseID,
				Error:          ErrMsgInternal,
				SearchAttempts: result.SearchAttempts,
			}
			if req.Debug {
				result.Debug = &DebugInfo{
					Sources: s.Sources(),
					Detail:  fmt.Sprintf("%v\n%s", r, debug.Stack()),
				}
			}
		}
		result.Duration = time.Since(start)
		s.recordLookup(&result)
	}()

	q := query{id: req.CourseID, parsed: courseid.ParseSlugID(req.CourseID), courseType: req.CourseType}
	if q.courseType == "" {
		q.courseType = q.parsed.CourseType
	}
	if req.Debug {
		result.Debug = &DebugInfo{
			Parsed:           q.parsed,
			CourseTypeFilter: q.courseType,
			Sources:          s.Sources(),
		}
	}

	for _, strat := range strategies {
		if !strat.applies(q) {
			continue
		}
		for _, src := range s.sources {
			if err := ctx.Err(); err != nil {
				result.Error = ErrMsgCancelled
				return result
			}
			attempt, found := s.runStrategy(ctx, strat, src, q)
			result.SearchAttempts = append(result.SearchAttempts, attempt)
			if found != nil {
				result.Success = true
				result.Course = found.Enrich()
				result.MatchStrategy = strat.name
				return result
			}
		}
	}

	if ctx.Err() != nil {
		result.Error = ErrMsgCancelled
		return result
	}
	result.Error = ErrMsgNotFound
	return result
}

// runStrategy scans one source. A source error is recorded in the attempt
// and treated as no match.
func (s *Service) runStrategy(ctx context.Context, strat strategy, src Source, q query) (Attempt, *course.Candidate) {
	start := time.Now()
	attempt := Attempt{Strategy: strat.name, Source: src.Name()}
	done := func(result string, found *course.Candidate) (Attempt, *course.Candidate) {
		attempt.DurationMS = float64(time.Since(start).Microseconds()) / 1000
		s.recordAttempt(strat.name, result)
		return attempt, found
	}

	candidates, err := src.FindCandidates(ctx, strat.criteria(q))
	if err != nil {
		attempt.Error = err.Error()
		s.logger.WithField("strategy", strat.name).
			WithField("source", src.Name()).
			WithError(err).
			WarnContext(ctx, "Lookup strategy failed")
		return done("error", nil)
	}

	attempt.Candidates = len(candidates)
	for i := range candidates {
		if strat.match(q, &candidates[i].Course) {
			attempt.Success = true
			return done("hit", &candidates[i])
		}
	}
	return done("miss", nil)
}

func (s *Service) recordAttempt(strategy, result string) {
	if s.metrics != nil {
		s.metrics.RecordStrategyAttempt(strategy, result)
	}
}

func (s *Service) recordLookup(r *Result) {
	if s.metrics == nil {
		return
	}
	outcome := outcomeFound
	switch {
	case r.Success:
	case r.Error == ErrMsgNotFound:
		outcome = outcomeNotFound
	default:
		outcome = outcomeError
	}
	s.metrics.RecordLookup(outcome, r.MatchStrategy, r.Duration.Seconds())
}
