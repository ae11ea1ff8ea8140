package lookup

import (
	"strings"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/courseid"
)

// Strategy names, in evaluation order.
const (
	StrategyObjectID    = "object_id"
	StrategyPaperNumber = "paper_number"
	StrategySlug        = "slug"
)

// query is the per-call state shared by strategies.
type query struct {
	id         string
	parsed     courseid.ParsedID
	courseType string
}

// strategy is one lookup heuristic. applies gates whether it runs at all;
// match is a first-hit predicate over candidates, not a ranking.
type strategy struct {
	name     string
	applies  func(q query) bool
	criteria func(q query) Criteria
	match    func(q query, c *course.Course) bool
}

var strategies = []strategy{
	{
		name:    StrategyObjectID,
		applies: func(q query) bool { return q.parsed.IsObjectID },
		criteria: func(q query) Criteria {
			return Criteria{ObjectID: strings.ToLower(q.id)}
		},
		match: func(q query, c *course.Course) bool {
			return strings.EqualFold(c.ID, q.id)
		},
	},
	{
		name:    StrategyPaperNumber,
		applies: func(q query) bool { return q.parsed.PaperNumber != nil },
		criteria: func(q query) Criteria {
			return Criteria{PaperNumber: q.parsed.PaperNumber, CourseType: q.courseType}
		},
		match: func(q query, c *course.Course) bool {
			n, ok := c.PaperNumber.Int()
			return ok && n == *q.parsed.PaperNumber && matchesCourseType(c, q.courseType)
		},
	},
	{
		name:    StrategySlug,
		applies: func(q query) bool { return slugTerm(q.id) != "" },
		criteria: func(q query) Criteria {
			return Criteria{CourseType: q.courseType}
		},
		match: func(q query, c *course.Course) bool {
			term := strings.ToLower(slugTerm(q.id))
			return strings.Contains(strings.ToLower(c.Subject), term) && matchesCourseType(c, q.courseType)
		},
	},
}

// slugTerm turns a hyphenated reference back into the text it was built from.
func slugTerm(id string) string {
	return strings.TrimSpace(strings.ReplaceAll(id, "-", " "))
}

// matchesCourseType reports whether the course's type, or its category and
// subcategory, contain the hint after normalization. An empty hint always matches.
func matchesCourseType(c *course.Course, hint string) bool {
	want := courseid.NormalizeCourseType(hint)
	if want == "" {
		return true
	}
	if strings.Contains(courseid.NormalizeCourseType(c.CourseType), want) {
		return true
	}
	return strings.Contains(courseid.NormalizeCourseType(c.Category+" "+c.Subcategory), want)
}
