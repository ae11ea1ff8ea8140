package storage

import (
	"strings"

	"github.com/examacademy/academy-server/internal/course"
	"github.com/examacademy/academy-server/internal/stringutil"
)

// Source names reported in lookup attempts.
const (
	FacultySourceName    = "faculty_courses"
	StandaloneSourceName = "standalone_courses"
)

// CourseFilter narrows ListCourses. Zero fields are ignored; string fields
// compare case-insensitively.
type CourseFilter struct {
	Category    string
	Subcategory string
	PaperNumber *int
	// Query matches subject or title by substring.
	Query string
}

// Matches applies the filter to one course. Backends that cannot push a
// field down evaluate it with Matches.
func (f CourseFilter) Matches(c *course.Course) bool {
	if f.Category != "" && !strings.EqualFold(strings.TrimSpace(c.Category), strings.TrimSpace(f.Category)) {
		return false
	}
	if f.Subcategory != "" && !strings.EqualFold(strings.TrimSpace(c.Subcategory), strings.TrimSpace(f.Subcategory)) {
		return false
	}
	if f.PaperNumber != nil && !c.PaperNumber.Equals(*f.PaperNumber) && !c.PaperID.Equals(*f.PaperNumber) {
		return false
	}
	if f.Query != "" && !stringutil.ContainsFold(c.Subject, f.Query) && !stringutil.ContainsFold(c.Title, f.Query) {
		return false
	}
	return true
}

// PrepareFaculty assigns missing IDs and links embedded courses to their
// owner. Backends call it before writing.
func PrepareFaculty(f *course.Faculty) {
	if f.ID == "" {
		f.ID = course.NewID()
	}
	f.ID = strings.ToLower(f.ID)
	for i := range f.Courses {
		c := &f.Courses[i]
		if c.ID == "" {
			c.ID = course.NewID()
		}
		c.ID = strings.ToLower(c.ID)
		c.FacultyID = f.ID
		c.IsStandalone = false
		if c.FacultyName == "" {
			c.FacultyName = f.FullName()
		}
	}
}

// PrepareStandalone assigns a missing ID and marks the course standalone.
func PrepareStandalone(c *course.Course) {
	if c.ID == "" {
		c.ID = course.NewID()
	}
	c.ID = strings.ToLower(c.ID)
	c.FacultyID = ""
	c.IsStandalone = true
}
