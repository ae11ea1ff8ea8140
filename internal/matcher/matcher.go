// Package matcher scores courses against parsed search criteria.
//
// Scores are additive, hand-tuned weights that favour strong identifier
// signals (paper number, exact slug) over loose textual overlap. They are
// rankings, not probabilities.
package matcher

import (
	"slices"
	"strconv"
	"strings"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/courseid"
	"github.com/examacademy/academy-server/internal/stringutil"
)

// DefaultLimit is the number of results FindBestMatches returns when no
// positive limit is given.
const DefaultLimit = 5

// Match types reported in Result.MatchType.
const (
	TypePaperNumber = "paper_number"
	TypeSubjectSlug = "subject_slug"
	TypeFacultyName = "faculty_name"
	TypeCourseType  = "course_type"
	TypeCombined    = "combined"
	TypeNone        = "none"
)

// Signal weights.
const (
	weightPaperNumberField  = 50
	weightPaperIDField      = 50
	weightPaperInSubject    = 40
	weightPaperInPaperName  = 40
	weightPaperInTitle      = 35
	weightSubjectSlug       = 45
	weightSubjectParts      = 30
	weightTitleSlug         = 40
	weightTitleParts        = 25
	weightFacultyNamePart   = 20
	weightFacultySlug       = 25
	weightCourseTypeExact   = 30
	weightCourseTypeWords   = 25
	weightCategoryWord      = 15
	minSignificantPartChars = 3
)

// Result is the outcome of scoring one course.
type Result struct {
	Matches   bool    `json:"matches"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	MatchType string  `json:"matchType"`
}

// Criteria are the hints a course is scored against. Zero values disable
// the corresponding matcher.
type Criteria struct {
	PaperNumber *int
	CourseType  string
	SlugParts   []string
	Faculty     *course.Faculty
}

// CriteriaFromParsed builds criteria from a parsed reference. A non-empty
// courseType overrides the type parsed from the reference.
func CriteriaFromParsed(parsed courseid.ParsedID, courseType string) Criteria {
	if courseType == "" {
		courseType = parsed.CourseType
	}
	return Criteria{
		PaperNumber: parsed.PaperNumber,
		CourseType:  courseType,
		SlugParts:   parsed.Parts,
	}
}

// scorer accumulates weighted signals and their reasons.
type scorer struct {
	score   float64
	reasons []string
}

func (s *scorer) add(points float64, reason string) {
	if points <= 0 {
		return
	}
	s.score += points
	s.reasons = append(s.reasons, reason)
}

func (s *scorer) result(matchType string) Result {
	return Result{
		Matches:   s.score > 0,
		Score:     s.score,
		Reason:    strings.Join(s.reasons, "; "),
		MatchType: matchType,
	}
}

// MatchByPaperNumber scores paper-number signals. Each field is checked
// independently. When courseType is set and at least one paper signal
// fired, the course-type score is added as a bonus.
func MatchByPaperNumber(c *course.Course, paperNumber int, courseType string) Result {
	var s scorer
	if c.PaperNumber.Equals(paperNumber) {
		s.add(weightPaperNumberField, "paperNumber equals "+strconv.Itoa(paperNumber))
	}
	if c.PaperID.Equals(paperNumber) {
		s.add(weightPaperIDField, "paperId equals "+strconv.Itoa(paperNumber))
	}

	needle := "paper " + strconv.Itoa(paperNumber)
	if stringutil.ContainsFold(c.Subject, needle) {
		s.add(weightPaperInSubject, "subject mentions "+needle)
	}
	if stringutil.ContainsFold(c.PaperName, needle) {
		s.add(weightPaperInPaperName, "paperName mentions "+needle)
	}
	if stringutil.ContainsFold(c.Title, needle) {
		s.add(weightPaperInTitle, "title mentions "+needle)
	}

	if courseType != "" && s.score > 0 {
		if bonus := MatchCourseType(c, courseType); bonus.Matches {
			s.add(bonus.Score, bonus.Reason)
		}
	}
	return s.result(TypePaperNumber)
}

// MatchBySubjectSlug scores slug overlap against subject and title.
func MatchBySubjectSlug(c *course.Course, slugParts []string) Result {
	var s scorer
	if len(slugParts) == 0 {
		return s.result(TypeSubjectSlug)
	}

	joined := strings.Join(slugParts, "-")
	significant := significantParts(slugParts)

	scoreField := func(field, label string, slugWeight, partsWeight float64) {
		if field == "" {
			return
		}
		if stringutil.ContainsEither(courseid.Slugify(field), joined) {
			s.add(slugWeight, label+" slug overlaps "+joined)
		}
		if len(significant) == 0 {
			return
		}
		words := strings.Fields(strings.ToLower(field))
		found := 0
		for _, part := range significant {
			if slices.ContainsFunc(words, func(w string) bool { return strings.Contains(w, part) }) {
				found++
			}
		}
		if found > 0 {
			fraction := float64(found) / float64(len(significant))
			s.add(partsWeight*fraction, label+" contains "+strconv.Itoa(found)+"/"+strconv.Itoa(len(significant))+" slug parts")
		}
	}

	scoreField(c.Subject, "subject", weightSubjectSlug, weightSubjectParts)
	scoreField(c.Title, "title", weightTitleSlug, weightTitleParts)
	return s.result(TypeSubjectSlug)
}

// MatchByFacultyName scores slug parts against the faculty's names and slug.
func MatchByFacultyName(f *course.Faculty, slugParts []string) Result {
	var s scorer
	if f == nil || len(slugParts) == 0 {
		return s.result(TypeFacultyName)
	}

	first := strings.ToLower(f.FirstName)
	last := strings.ToLower(f.LastName)
	for _, part := range significantParts(slugParts) {
		if stringutil.ContainsEither(first, part) {
			s.add(weightFacultyNamePart, "first name matches "+part)
		}
		if stringutil.ContainsEither(last, part) {
			s.add(weightFacultyNamePart, "last name matches "+part)
		}
	}

	joined := strings.Join(slugParts, "-")
	if stringutil.ContainsEither(strings.ToLower(f.Slug), joined) {
		s.add(weightFacultySlug, "faculty slug overlaps "+joined)
	}
	return s.result(TypeFacultyName)
}

// MatchCourseType scores the course's type, category and subcategory
// against a target course-type label.
func MatchCourseType(c *course.Course, target string) Result {
	var s scorer
	normTarget := courseid.NormalizeCourseType(target)
	if normTarget == "" {
		return s.result(TypeCourseType)
	}
	words := strings.Fields(normTarget)
	normType := courseid.NormalizeCourseType(c.CourseType)

	switch {
	case normType == "":
	case normType == normTarget:
		s.add(weightCourseTypeExact, "course type equals "+target)
	default:
		found := 0
		for _, w := range words {
			if strings.Contains(normType, w) {
				found++
			}
		}
		if found > 0 {
			s.add(weightCourseTypeWords*float64(found)/float64(len(words)), "course type partially matches "+target)
		}
	}

	categories := courseid.NormalizeCourseType(c.Category + " " + c.Subcategory)
	if categories != "" {
		for _, w := range words {
			if strings.Contains(categories, w) {
				s.add(weightCategoryWord, "category matches "+w)
			}
		}
	}
	return s.result(TypeCourseType)
}

// CalculateMatchScore runs every matcher the criteria enable and sums the
// scores. Course type is only scored on its own when no paper number is
// given, since MatchByPaperNumber already folds it in.
func CalculateMatchScore(c *course.Course, criteria Criteria) Result {
	var (
		total   float64
		reasons []string
		types   []string
	)
	collect := func(r Result) {
		if !r.Matches {
			return
		}
		total += r.Score
		reasons = append(reasons, r.Reason)
		types = append(types, r.MatchType)
	}

	if criteria.PaperNumber != nil {
		collect(MatchByPaperNumber(c, *criteria.PaperNumber, criteria.CourseType))
	}
	if len(criteria.SlugParts) > 0 {
		collect(MatchBySubjectSlug(c, criteria.SlugParts))
		if criteria.Faculty != nil {
			collect(MatchByFacultyName(criteria.Faculty, criteria.SlugParts))
		}
	}
	if criteria.CourseType != "" && criteria.PaperNumber == nil {
		collect(MatchCourseType(c, criteria.CourseType))
	}

	matchType := TypeNone
	switch len(types) {
	case 0:
	case 1:
		matchType = types[0]
	default:
		matchType = TypeCombined
	}
	return Result{
		Matches:   total > 0,
		Score:     total,
		Reason:    strings.Join(reasons, "; "),
		MatchType: matchType,
	}
}

// Ranked is a scored candidate.
type Ranked struct {
	Candidate course.Candidate
	Result    Result
}

// FindBestMatches scores every candidate, keeps the matching ones and
// returns at most limit of them by descending score. Ties keep input order.
// When criteria carry no faculty, each candidate's own faculty is used for
// faculty-name scoring.
func FindBestMatches(candidates []course.Candidate, criteria Criteria, limit int) []Ranked {
	if limit <= 0 {
		limit = DefaultLimit
	}

	ranked := make([]Ranked, 0, len(candidates))
	for _, cand := range candidates {
		crit := criteria
		if crit.Faculty == nil {
			crit.Faculty = cand.Faculty
		}
		if r := CalculateMatchScore(&cand.Course, crit); r.Matches {
			ranked = append(ranked, Ranked{Candidate: cand, Result: r})
		}
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.Result.Score > b.Result.Score:
			return -1
		case a.Result.Score < b.Result.Score:
			return 1
		default:
			return 0
		}
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func significantParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) >= minSignificantPartChars {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}
