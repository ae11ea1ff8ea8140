package lookup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/courseid"
	"github.com/examacademy/academy-server/internal/matcher"
)

// Suggestion is a ranked "did you mean" candidate.
type Suggestion struct {
	Course    *course.EnrichedCourse `json:"course"`
	Score     float64                `json:"score"`
	Reason    string                 `json:"reason"`
	MatchType string                 `json:"matchType"`
}

// Suggest loads every course from all sources concurrently and ranks them
// against the reference with the additive matchers. A non-positive limit
// uses the configured default.
func (s *Service) Suggest(ctx context.Context, courseID, courseType string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = s.opts.SuggestionLimit
	}

	perSource := make([][]course.Candidate, len(s.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		g.Go(func() error {
			candidates, err := src.FindCandidates(gctx, Criteria{})
			if err != nil {
				return fmt.Errorf("load candidates from %s: %w", src.Name(), err)
			}
			perSource[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if s.metrics != nil {
			s.metrics.RecordSuggestions("error")
		}
		return nil, err
	}

	var all []course.Candidate
	for _, candidates := range perSource {
		all = append(all, candidates...)
	}

	criteria := matcher.CriteriaFromParsed(courseid.ParseSlugID(courseID), courseType)
	ranked := matcher.FindBestMatches(all, criteria, limit)

	suggestions := make([]Suggestion, 0, len(ranked))
	for _, r := range ranked {
		suggestions = append(suggestions, Suggestion{
			Course:    r.Candidate.Enrich(),
			Score:     r.Result.Score,
			Reason:    r.Result.Reason,
			MatchType: r.Result.MatchType,
		})
	}

	if s.metrics != nil {
		if len(suggestions) > 0 {
			s.metrics.RecordSuggestions("served")
		} else {
			s.metrics.RecordSuggestions("empty")
		}
	}
	return suggestions, nil
}
