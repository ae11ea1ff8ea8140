package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/examacademy/academy-server/internal/course"
	domerrors "github.com/examacademy/academy-server/internal/errors"
)

const candidateSelect = `
	SELECT c.id, c.faculty_id, c.subject, c.title, c.paper_name, c.paper_id, c.paper_number,
		c.category, c.subcategory, c.course_type, c.faculty_name, c.pricing, c.is_standalone,
		f.first_name, f.last_name, f.slug, f.image_url
	FROM courses c
	LEFT JOIN faculties f ON f.id = c.faculty_id`

const candidateOrder = ` ORDER BY c.faculty_id IS NULL, f.rowid, c.position, c.rowid`

const insertCourseQuery = `
	INSERT INTO courses (id, faculty_id, position, subject, title, paper_name, paper_id, paper_number,
		category, subcategory, course_type, faculty_name, pricing, is_standalone, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveFaculty upserts a faculty by slug and replaces its embedded courses.
// A faculty whose ID differs from the one already holding the slug is a conflict.
func (db *DB) SaveFaculty(ctx context.Context, faculty *course.Faculty) error {
	if err := faculty.Validate(); err != nil {
		return err
	}

	start := time.Now()
	now := start.Unix()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var existingID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM faculties WHERE slug = ?`, faculty.Slug).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("query faculty slug: %w", err)
		case faculty.ID == "":
			faculty.ID = existingID
		case !strings.EqualFold(faculty.ID, existingID):
			return fmt.Errorf("faculty slug %q belongs to %s: %w", faculty.Slug, existingID, domerrors.ErrConflict)
		}

		PrepareFaculty(faculty)
		if err := upsertFaculty(ctx, tx, faculty, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE faculty_id = ?`, faculty.ID); err != nil {
			return fmt.Errorf("clear faculty courses: %w", err)
		}
		return insertCourses(ctx, tx, faculty.ID, faculty.Courses, now)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save faculty",
			"slug", faculty.Slug,
			"error", err)
		return err
	}

	warnSlow(ctx, "SaveFaculty", start, slowQueryThreshold, "slug", faculty.Slug, "courses", len(faculty.Courses))
	return nil
}

// SaveStandaloneCourse inserts or updates a course that has no faculty.
// Updating an ID that belongs to a faculty-embedded course is a conflict.
func (db *DB) SaveStandaloneCourse(ctx context.Context, c *course.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	PrepareStandalone(c)

	args, err := courseArgs(c, "", 0, time.Now().Unix())
	if err != nil {
		return err
	}

	query := insertCourseQuery + `
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			title = excluded.title,
			paper_name = excluded.paper_name,
			paper_id = excluded.paper_id,
			paper_number = excluded.paper_number,
			category = excluded.category,
			subcategory = excluded.subcategory,
			course_type = excluded.course_type,
			faculty_name = excluded.faculty_name,
			pricing = excluded.pricing,
			updated_at = excluded.updated_at
		WHERE courses.faculty_id IS NULL`

	start := time.Now()
	res, err := db.writer.ExecContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save standalone course",
			"course_id", c.ID,
			"error", err)
		return fmt.Errorf("failed to save standalone course: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("course %s is owned by a faculty: %w", c.ID, domerrors.ErrConflict)
	}

	warnSlow(ctx, "SaveStandaloneCourse", start, slowQueryThreshold, "course_id", c.ID)
	return nil
}

// DeleteFaculty removes a faculty; its courses go with it via ON DELETE CASCADE.
func (db *DB) DeleteFaculty(ctx context.Context, slug string) error {
	res, err := db.writer.ExecContext(ctx, `DELETE FROM faculties WHERE slug = ?`, slug)
	if err != nil {
		return fmt.Errorf("delete faculty: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("faculty %q: %w", slug, domerrors.ErrNotFound)
	}
	return nil
}

// DeleteCourse removes one course, embedded or standalone.
func (db *DB) DeleteCourse(ctx context.Context, id string) error {
	res, err := db.writer.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, strings.ToLower(id))
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("course %s: %w", id, domerrors.ErrNotFound)
	}
	return nil
}

// ReplaceCatalog deletes every record and writes the given catalog in a
// single transaction. Readers see either the old or the new catalog.
func (db *DB) ReplaceCatalog(ctx context.Context, faculties []course.Faculty, standalone []course.Course) error {
	start := time.Now()
	now := start.Unix()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM courses`); err != nil {
			return fmt.Errorf("clear courses: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM faculties`); err != nil {
			return fmt.Errorf("clear faculties: %w", err)
		}

		for i := range faculties {
			f := &faculties[i]
			if err := f.Validate(); err != nil {
				return fmt.Errorf("faculty %q: %w", f.Slug, err)
			}
			PrepareFaculty(f)
			if err := upsertFaculty(ctx, tx, f, now); err != nil {
				return err
			}
			if err := insertCourses(ctx, tx, f.ID, f.Courses, now); err != nil {
				return err
			}
		}

		for i := range standalone {
			c := &standalone[i]
			if err := c.Validate(); err != nil {
				return fmt.Errorf("standalone course %q: %w", c.DisplayName(), err)
			}
			PrepareStandalone(c)
		}
		return insertCourses(ctx, tx, "", standalone, now)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to replace catalog", "error", err)
		return err
	}

	slog.DebugContext(ctx, "batch operation completed",
		"operation", "ReplaceCatalog",
		"faculties", len(faculties),
		"standalone_courses", len(standalone),
		"duration_ms", time.Since(start).Milliseconds())
	warnSlow(ctx, "ReplaceCatalog", start, slowBatchThreshold, "faculties", len(faculties))
	return nil
}

// GetFacultyBySlug retrieves a faculty and its courses.
func (db *DB) GetFacultyBySlug(ctx context.Context, slug string) (*course.Faculty, error) {
	var f course.Faculty
	err := db.reader.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, slug, image_url FROM faculties WHERE slug = ?`, slug,
	).Scan(&f.ID, &f.FirstName, &f.LastName, &f.Slug, &f.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("faculty %q: %w", slug, domerrors.ErrNotFound)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query faculty",
			"slug", slug,
			"error", err)
		return nil, fmt.Errorf("query faculty: %w", err)
	}

	candidates, err := db.queryCandidates(ctx, ` WHERE c.faculty_id = ?`, f.ID)
	if err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		f.Courses = append(f.Courses, cand.Course)
	}
	return &f, nil
}

// ListFaculties returns every faculty with its courses, ordered by slug.
func (db *DB) ListFaculties(ctx context.Context) ([]course.Faculty, error) {
	start := time.Now()
	rows, err := db.reader.QueryContext(ctx,
		`SELECT id, first_name, last_name, slug, image_url FROM faculties ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("query faculties: %w", err)
	}

	var faculties []course.Faculty
	index := make(map[string]int)
	for rows.Next() {
		var f course.Faculty
		if err := rows.Scan(&f.ID, &f.FirstName, &f.LastName, &f.Slug, &f.ImageURL); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan faculty: %w", err)
		}
		index[f.ID] = len(faculties)
		faculties = append(faculties, f)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate faculties: %w", err)
	}
	_ = rows.Close()

	candidates, err := db.queryCandidates(ctx, ` WHERE c.faculty_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	for _, cand := range candidates {
		if i, ok := index[cand.Course.FacultyID]; ok {
			faculties[i].Courses = append(faculties[i].Courses, cand.Course)
		}
	}

	warnSlow(ctx, "ListFaculties", start, slowQueryThreshold, "count", len(faculties))
	return faculties, nil
}

// ListCourses returns courses of both shapes matching filter, faculty
// courses first.
func (db *DB) ListCourses(ctx context.Context, filter CourseFilter) ([]course.Candidate, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		conds = append(conds, `LOWER(TRIM(c.category)) = LOWER(TRIM(?))`)
		args = append(args, filter.Category)
	}
	if filter.Subcategory != "" {
		conds = append(conds, `LOWER(TRIM(c.subcategory)) = LOWER(TRIM(?))`)
		args = append(args, filter.Subcategory)
	}
	if filter.Query != "" {
		if len(filter.Query) > 100 {
			return nil, fmt.Errorf("search term too long: %w", domerrors.ErrInvalidInput)
		}
		pattern := "%" + sanitizeSearchTerm(filter.Query) + "%"
		conds = append(conds, `(c.subject LIKE ? ESCAPE '\' OR c.title LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	candidates, err := db.queryCandidates(ctx, where, args...)
	if err != nil {
		return nil, err
	}

	// Paper references are stored as raw JSON, so numeric coercion happens here.
	out := candidates[:0]
	for _, cand := range candidates {
		if filter.Matches(&cand.Course) {
			out = append(out, cand)
		}
	}
	return out, nil
}

// CountFaculties returns the total number of faculties
func (db *DB) CountFaculties(ctx context.Context) (int, error) {
	var count int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM faculties`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count faculties: %w", err)
	}
	return count, nil
}

// CountCourses returns the total number of courses of both shapes
func (db *DB) CountCourses(ctx context.Context) (int, error) {
	var count int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return count, nil
}

// queryCandidates runs candidateSelect with the given WHERE clause. All
// courses of one faculty share a single *course.Faculty without its Courses.
func (db *DB) queryCandidates(ctx context.Context, where string, args ...any) ([]course.Candidate, error) {
	start := time.Now()
	rows, err := db.reader.QueryContext(ctx, candidateSelect+where+candidateOrder, args...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query courses", "error", err)
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []course.Candidate
	faculties := make(map[string]*course.Faculty)
	for rows.Next() {
		cand, err := scanCandidate(rows, faculties)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}

	warnSlow(ctx, "queryCandidates", start, slowQueryThreshold, "count", len(candidates))
	return candidates, nil
}

func scanCandidate(rows *sql.Rows, faculties map[string]*course.Faculty) (course.Candidate, error) {
	var (
		c                               course.Course
		facultyID, paperID, paperNumber sql.NullString
		first, last, slug, image        sql.NullString
		pricing                         string
		standalone                      bool
	)
	err := rows.Scan(
		&c.ID, &facultyID, &c.Subject, &c.Title, &c.PaperName, &paperID, &paperNumber,
		&c.Category, &c.Subcategory, &c.CourseType, &c.FacultyName, &pricing, &standalone,
		&first, &last, &slug, &image,
	)
	if err != nil {
		return course.Candidate{}, fmt.Errorf("scan course: %w", err)
	}

	c.FacultyID = facultyID.String
	c.IsStandalone = standalone
	if c.PaperID, err = decodePaper(paperID); err != nil {
		return course.Candidate{}, fmt.Errorf("course %s paperId: %w", c.ID, err)
	}
	if c.PaperNumber, err = decodePaper(paperNumber); err != nil {
		return course.Candidate{}, fmt.Errorf("course %s paperNumber: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(pricing), &c.ModeAttemptPricing); err != nil {
		return course.Candidate{}, fmt.Errorf("course %s pricing: %w", c.ID, err)
	}
	if len(c.ModeAttemptPricing) == 0 {
		c.ModeAttemptPricing = nil
	}

	cand := course.Candidate{Course: c}
	if facultyID.Valid && slug.Valid {
		f, ok := faculties[facultyID.String]
		if !ok {
			f = &course.Faculty{
				ID:        facultyID.String,
				FirstName: first.String,
				LastName:  last.String,
				Slug:      slug.String,
				ImageURL:  image.String,
			}
			faculties[facultyID.String] = f
		}
		cand.Faculty = f
	}
	return cand, nil
}

func upsertFaculty(ctx context.Context, tx *sql.Tx, f *course.Faculty, now int64) error {
	query := `
		INSERT INTO faculties (id, first_name, last_name, slug, image_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			slug = excluded.slug,
			image_url = excluded.image_url,
			updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, f.ID, f.FirstName, f.LastName, f.Slug, f.ImageURL, now); err != nil {
		return fmt.Errorf("upsert faculty %q: %w", f.Slug, mapConstraintError(err))
	}
	return nil
}

func insertCourses(ctx context.Context, tx *sql.Tx, facultyID string, courses []course.Course, now int64) error {
	if len(courses) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, insertCourseQuery)
	if err != nil {
		return fmt.Errorf("prepare course insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range courses {
		args, err := courseArgs(&courses[i], facultyID, i, now)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert course %s: %w", courses[i].ID, mapConstraintError(err))
		}
	}
	return nil
}

func courseArgs(c *course.Course, facultyID string, position int, now int64) ([]any, error) {
	paperID, err := encodePaper(c.PaperID)
	if err != nil {
		return nil, err
	}
	paperNumber, err := encodePaper(c.PaperNumber)
	if err != nil {
		return nil, err
	}
	pricing := []byte("[]")
	if len(c.ModeAttemptPricing) > 0 {
		if pricing, err = json.Marshal(c.ModeAttemptPricing); err != nil {
			return nil, fmt.Errorf("encode pricing: %w", err)
		}
	}
	return []any{
		c.ID, nullString(facultyID), position,
		c.Subject, c.Title, c.PaperName, paperID, paperNumber,
		c.Category, c.Subcategory, c.CourseType, c.FacultyName,
		string(pricing), c.IsStandalone, now,
	}, nil
}

func encodePaper(p course.PaperRef) (sql.NullString, error) {
	if p.IsZero() {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode paper reference: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func decodePaper(ns sql.NullString) (course.PaperRef, error) {
	var p course.PaperRef
	if !ns.Valid {
		return p, nil
	}
	err := json.Unmarshal([]byte(ns.String), &p)
	return p, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// mapConstraintError turns uniqueness violations into ErrConflict.
func mapConstraintError(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %w", domerrors.ErrConflict, err)
	}
	return err
}
