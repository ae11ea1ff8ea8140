// Package course defines the course catalog domain model shared by the
// lookup core, the storage backends and the HTTP API.
package course

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	domerrors "github.com/examacademy/academy-server/internal/errors"
)

// Categories recognised by the academy.
const (
	CategoryCA  = "CA"
	CategoryCMA = "CMA"
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	idPattern   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
)

// NewID mints a 24-hex ObjectID string for records created without one.
func NewID() string {
	return bson.NewObjectID().Hex()
}

// AttemptPricing is the price of one exam attempt window for a delivery mode.
type AttemptPricing struct {
	Attempt      string  `json:"attempt"`
	CostPrice    float64 `json:"costPrice"`
	SellingPrice float64 `json:"sellingPrice"`
}

// ModePricing groups attempt prices under a delivery mode (e.g. "Live", "Recorded").
type ModePricing struct {
	Mode     string           `json:"mode"`
	Attempts []AttemptPricing `json:"attempts"`
}

// Course is a sellable exam-prep course. It is stored either embedded in a
// Faculty or as a standalone record; FacultyID is empty for standalone courses.
type Course struct {
	ID                 string        `json:"_id,omitempty"`
	Subject            string        `json:"subject,omitempty"`
	Title              string        `json:"title,omitempty"`
	PaperName          string        `json:"paperName,omitempty"`
	PaperID            PaperRef      `json:"paperId"`
	PaperNumber        PaperRef      `json:"paperNumber"`
	Category           string        `json:"category,omitempty"`
	Subcategory        string        `json:"subcategory,omitempty"`
	CourseType         string        `json:"courseType,omitempty"`
	FacultyName        string        `json:"facultyName,omitempty"`
	ModeAttemptPricing []ModePricing `json:"modeAttemptPricing,omitempty"`
	IsStandalone       bool          `json:"isStandalone,omitempty"`
	FacultyID          string        `json:"facultyId,omitempty"`
}

// DisplayName returns the subject, falling back to the title.
func (c *Course) DisplayName() string {
	if c.Subject != "" {
		return c.Subject
	}
	return c.Title
}

// Validate checks the static invariants every stored course must satisfy.
func (c *Course) Validate() error {
	if c.ID != "" && !idPattern.MatchString(c.ID) {
		return domerrors.NewValidationError("_id", "must be a 24 character hex ObjectID")
	}
	if strings.TrimSpace(c.Subject) == "" && strings.TrimSpace(c.Title) == "" {
		return domerrors.NewValidationError("subject", "subject or title is required")
	}
	if c.Category != "" {
		switch strings.ToUpper(strings.TrimSpace(c.Category)) {
		case CategoryCA, CategoryCMA:
		default:
			return domerrors.NewValidationError("category", "must be CA or CMA")
		}
	}
	for _, mode := range c.ModeAttemptPricing {
		if strings.TrimSpace(mode.Mode) == "" {
			return domerrors.NewValidationError("modeAttemptPricing.mode", "mode is required")
		}
		for _, a := range mode.Attempts {
			if a.CostPrice < 0 || a.SellingPrice < 0 {
				return domerrors.NewValidationError("modeAttemptPricing.attempts", "prices cannot be negative")
			}
		}
	}
	return nil
}

// Faculty is an instructor profile. It exclusively owns its embedded courses:
// removing a faculty removes them.
type Faculty struct {
	ID        string   `json:"_id,omitempty"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName,omitempty"`
	Slug      string   `json:"slug"`
	ImageURL  string   `json:"imageUrl,omitempty"`
	Courses   []Course `json:"courses,omitempty"`
}

// FullName joins first and last name.
func (f *Faculty) FullName() string {
	return strings.TrimSpace(f.FirstName + " " + f.LastName)
}

// PlaceholderFacultyName is the legacy faculty name used to hold courses
// that have no faculty. Such courses are stored as standalone instead.
const PlaceholderFacultyName = "N/A"

// IsPlaceholder reports whether f is a legacy "N/A" holder record.
func (f *Faculty) IsPlaceholder() bool {
	return strings.EqualFold(strings.TrimSpace(f.FirstName), PlaceholderFacultyName) ||
		strings.EqualFold(f.FullName(), PlaceholderFacultyName)
}

// Validate checks the faculty record and every embedded course.
func (f *Faculty) Validate() error {
	if f.ID != "" && !idPattern.MatchString(f.ID) {
		return domerrors.NewValidationError("_id", "must be a 24 character hex ObjectID")
	}
	if strings.TrimSpace(f.FirstName) == "" {
		return domerrors.NewValidationError("firstName", "first name is required")
	}
	if f.IsPlaceholder() {
		return domerrors.NewValidationError("firstName", `"N/A" is reserved; save faculty-less courses as standalone`)
	}
	if !slugPattern.MatchString(f.Slug) {
		return domerrors.NewValidationError("slug", "must be lower-case words joined by hyphens")
	}
	for i := range f.Courses {
		if err := f.Courses[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Info returns the display view used to enrich lookup results.
func (f *Faculty) Info() *FacultyInfo {
	return &FacultyInfo{
		Name:  f.FullName(),
		Slug:  f.Slug,
		Image: f.ImageURL,
	}
}

// FacultyInfo is the faculty display data attached to a resolved course.
type FacultyInfo struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Image string `json:"image,omitempty"`
}

// Candidate is one course as yielded by a storage shape, with its owning
// faculty when it has one. Faculty is nil for standalone courses.
type Candidate struct {
	Course  Course
	Faculty *Faculty
}

// Enrich returns the course with faculty display data attached.
func (c Candidate) Enrich() *EnrichedCourse {
	ec := &EnrichedCourse{Course: c.Course}
	if c.Faculty != nil {
		ec.Faculty = c.Faculty.Info()
		if ec.FacultyName == "" {
			ec.FacultyName = ec.Faculty.Name
		}
	}
	return ec
}

// EnrichedCourse is a resolved course as returned to API clients.
type EnrichedCourse struct {
	Course
	Faculty *FacultyInfo `json:"faculty,omitempty"`
}
