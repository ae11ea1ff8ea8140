package mongo

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/examacademy/academy-server/internal/course"
)

// facultyDoc is a document in the faculties collection. Courses are embedded.
type facultyDoc struct {
	ID        bson.ObjectID `bson:"_id"`
	FirstName string        `bson:"firstName"`
	LastName  string        `bson:"lastName,omitempty"`
	Slug      string        `bson:"slug"`
	ImageURL  string        `bson:"imageUrl,omitempty"`
	Courses   []courseDoc   `bson:"courses"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

// courseDoc is an embedded course or a document in the courses collection.
// Paper references keep whatever BSON type they were written with.
type courseDoc struct {
	ID                 bson.ObjectID    `bson:"_id"`
	Subject            string           `bson:"subject,omitempty"`
	Title              string           `bson:"title,omitempty"`
	PaperName          string           `bson:"paperName,omitempty"`
	PaperID            any              `bson:"paperId,omitempty"`
	PaperNumber        any              `bson:"paperNumber,omitempty"`
	Category           string           `bson:"category,omitempty"`
	Subcategory        string           `bson:"subcategory,omitempty"`
	CourseType         string           `bson:"courseType,omitempty"`
	FacultyName        string           `bson:"facultyName,omitempty"`
	ModeAttemptPricing []modePricingDoc `bson:"modeAttemptPricing,omitempty"`
	IsStandalone       bool             `bson:"isStandalone"`
	UpdatedAt          time.Time        `bson:"updatedAt,omitempty"`
}

type modePricingDoc struct {
	Mode     string       `bson:"mode"`
	Attempts []attemptDoc `bson:"attempts"`
}

type attemptDoc struct {
	Attempt      string  `bson:"attempt"`
	CostPrice    float64 `bson:"costPrice"`
	SellingPrice float64 `bson:"sellingPrice"`
}

func parseObjectID(id string) (bson.ObjectID, error) {
	oid, err := bson.ObjectIDFromHex(strings.ToLower(id))
	if err != nil {
		return bson.ObjectID{}, fmt.Errorf("invalid object id %q: %w", id, err)
	}
	return oid, nil
}

// toFacultyDoc expects IDs already assigned by storage.PrepareFaculty.
func toFacultyDoc(f *course.Faculty, now time.Time) (facultyDoc, error) {
	oid, err := parseObjectID(f.ID)
	if err != nil {
		return facultyDoc{}, err
	}
	doc := facultyDoc{
		ID:        oid,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Slug:      f.Slug,
		ImageURL:  f.ImageURL,
		Courses:   make([]courseDoc, 0, len(f.Courses)),
		UpdatedAt: now,
	}
	for i := range f.Courses {
		c, err := toCourseDoc(&f.Courses[i], time.Time{})
		if err != nil {
			return facultyDoc{}, err
		}
		doc.Courses = append(doc.Courses, c)
	}
	return doc, nil
}

// fromFacultyDoc converts a faculty document. Embedded courses get the
// faculty's ID and, when missing, its display name.
func fromFacultyDoc(doc facultyDoc) course.Faculty {
	f := course.Faculty{
		ID:        doc.ID.Hex(),
		FirstName: doc.FirstName,
		LastName:  doc.LastName,
		Slug:      doc.Slug,
		ImageURL:  doc.ImageURL,
	}
	for _, cd := range doc.Courses {
		c := fromCourseDoc(cd)
		c.FacultyID = f.ID
		c.IsStandalone = false
		if c.FacultyName == "" {
			c.FacultyName = f.FullName()
		}
		f.Courses = append(f.Courses, c)
	}
	return f
}

func toCourseDoc(c *course.Course, now time.Time) (courseDoc, error) {
	oid, err := parseObjectID(c.ID)
	if err != nil {
		return courseDoc{}, err
	}
	doc := courseDoc{
		ID:           oid,
		Subject:      c.Subject,
		Title:        c.Title,
		PaperName:    c.PaperName,
		PaperID:      c.PaperID.Value(),
		PaperNumber:  c.PaperNumber.Value(),
		Category:     c.Category,
		Subcategory:  c.Subcategory,
		CourseType:   c.CourseType,
		FacultyName:  c.FacultyName,
		IsStandalone: c.IsStandalone,
		UpdatedAt:    now,
	}
	for _, m := range c.ModeAttemptPricing {
		md := modePricingDoc{Mode: m.Mode, Attempts: make([]attemptDoc, 0, len(m.Attempts))}
		for _, a := range m.Attempts {
			md.Attempts = append(md.Attempts, attemptDoc(a))
		}
		doc.ModeAttemptPricing = append(doc.ModeAttemptPricing, md)
	}
	return doc, nil
}

func fromCourseDoc(doc courseDoc) course.Course {
	c := course.Course{
		ID:           doc.ID.Hex(),
		Subject:      doc.Subject,
		Title:        doc.Title,
		PaperName:    doc.PaperName,
		PaperID:      course.PaperRefFromAny(doc.PaperID),
		PaperNumber:  course.PaperRefFromAny(doc.PaperNumber),
		Category:     doc.Category,
		Subcategory:  doc.Subcategory,
		CourseType:   doc.CourseType,
		FacultyName:  doc.FacultyName,
		IsStandalone: doc.IsStandalone,
	}
	for _, md := range doc.ModeAttemptPricing {
		m := course.ModePricing{Mode: md.Mode}
		for _, a := range md.Attempts {
			m.Attempts = append(m.Attempts, course.AttemptPricing(a))
		}
		c.ModeAttemptPricing = append(c.ModeAttemptPricing, m)
	}
	return c
}

// facultyCandidates flattens a faculty document into lookup candidates that
// share one owner. When only is non-zero, other courses are skipped.
func facultyCandidates(doc facultyDoc, only bson.ObjectID) []course.Candidate {
	f := fromFacultyDoc(doc)
	courses := f.Courses
	f.Courses = nil
	owner := &f

	out := make([]course.Candidate, 0, len(courses))
	for i, c := range courses {
		if !only.IsZero() && doc.Courses[i].ID != only {
			continue
		}
		out = append(out, course.Candidate{Course: c, Faculty: owner})
	}
	return out
}
