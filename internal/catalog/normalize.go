package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/courseid"
)

// Rejection kinds.
const (
	KindFaculty = "faculty"
	KindCourse  = "course"
)

// Rejection is one record dropped during normalization.
type Rejection struct {
	Kind   string `json:"kind"`
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// ImportStats summarizes a normalized document.
type ImportStats struct {
	Faculties         int         `json:"faculties"`
	EmbeddedCourses   int         `json:"embeddedCourses"`
	StandaloneCourses int         `json:"standaloneCourses"`
	Converted         int         `json:"convertedFromPlaceholder"`
	Rejected          []Rejection `json:"rejected,omitempty"`
}

// RejectedCount returns rejections of one kind.
func (s ImportStats) RejectedCount(kind string) int {
	n := 0
	for _, r := range s.Rejected {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// Normalize rewrites doc in place so every record passes validation:
//   - placeholder "N/A" faculties are dissolved into standalone courses
//   - category is trimmed and upper-cased, subcategory title-cased
//   - missing faculty slugs are derived from the name
//   - missing IDs are minted, existing ones lower-cased
//   - invalid or duplicate records are dropped and reported
func Normalize(doc *Document) ImportStats {
	var stats ImportStats
	caser := cases.Title(language.English)
	seenIDs := make(map[string]bool)
	seenSlugs := make(map[string]bool)

	standalone := append([]course.Course(nil), doc.Courses...)

	faculties := make([]course.Faculty, 0, len(doc.Faculties))
	for _, f := range doc.Faculties {
		if f.IsPlaceholder() {
			for _, c := range f.Courses {
				c.FacultyID = ""
				standalone = append(standalone, c)
				stats.Converted++
			}
			continue
		}

		normalizeFaculty(&f)
		ref := f.Slug
		if ref == "" {
			ref = f.FullName()
		}
		if seenSlugs[f.Slug] {
			stats.reject(KindFaculty, ref, "duplicate slug")
			continue
		}
		if f.ID != "" && seenIDs[f.ID] {
			stats.reject(KindFaculty, ref, "duplicate id")
			continue
		}

		courses := f.Courses
		f.Courses = nil
		if err := f.Validate(); err != nil {
			stats.reject(KindFaculty, ref, err.Error())
			continue
		}
		if f.ID == "" {
			f.ID = course.NewID()
		}
		seenSlugs[f.Slug] = true
		seenIDs[f.ID] = true

		for _, c := range courses {
			normalizeCourse(&c, caser)
			if c.FacultyName == "" {
				c.FacultyName = f.FullName()
			}
			if !stats.accept(&c, seenIDs) {
				continue
			}
			c.FacultyID = f.ID
			c.IsStandalone = false
			f.Courses = append(f.Courses, c)
		}
		stats.Faculties++
		stats.EmbeddedCourses += len(f.Courses)
		faculties = append(faculties, f)
	}

	courses := make([]course.Course, 0, len(standalone))
	for _, c := range standalone {
		normalizeCourse(&c, caser)
		if !stats.accept(&c, seenIDs) {
			continue
		}
		c.FacultyID = ""
		c.IsStandalone = true
		courses = append(courses, c)
	}
	stats.StandaloneCourses = len(courses)

	doc.Faculties = faculties
	doc.Courses = courses
	return stats
}

// accept validates a normalized course and assigns its ID.
func (s *ImportStats) accept(c *course.Course, seenIDs map[string]bool) bool {
	ref := c.ID
	if ref == "" {
		ref = c.DisplayName()
	}
	if err := c.Validate(); err != nil {
		s.reject(KindCourse, ref, err.Error())
		return false
	}
	if c.ID != "" && seenIDs[c.ID] {
		s.reject(KindCourse, ref, "duplicate id")
		return false
	}
	if c.ID == "" {
		c.ID = course.NewID()
	}
	seenIDs[c.ID] = true
	return true
}

func (s *ImportStats) reject(kind, ref, reason string) {
	s.Rejected = append(s.Rejected, Rejection{Kind: kind, Ref: ref, Reason: reason})
}

func normalizeFaculty(f *course.Faculty) {
	f.ID = strings.ToLower(strings.TrimSpace(f.ID))
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Slug = strings.TrimSpace(f.Slug)
	if f.Slug == "" {
		f.Slug = courseid.Slugify(f.FullName())
	}
}

func normalizeCourse(c *course.Course, caser cases.Caser) {
	c.ID = strings.ToLower(strings.TrimSpace(c.ID))
	c.Subject = strings.TrimSpace(c.Subject)
	c.Title = strings.TrimSpace(c.Title)
	c.Category = strings.ToUpper(strings.TrimSpace(c.Category))
	if sub := strings.TrimSpace(c.Subcategory); sub != "" {
		c.Subcategory = caser.String(sub)
	} else {
		c.Subcategory = ""
	}
	c.CourseType = strings.TrimSpace(c.CourseType)
	c.FacultyName = strings.TrimSpace(c.FacultyName)
}
