package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all necessary tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if err := createFacultiesTable(ctx, db); err != nil {
		return err
	}
	return createCoursesTable(ctx, db)
}

func createFacultiesTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS faculties (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL DEFAULT '',
		slug TEXT NOT NULL UNIQUE,
		image_url TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create faculties table: %w", err)
	}

	return nil
}

// createCoursesTable holds both shapes: faculty_id is NULL for standalone
// courses. paper_id and paper_number keep the raw JSON value so numbers and
// strings stay distinguishable.
func createCoursesTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		faculty_id TEXT REFERENCES faculties(id) ON DELETE CASCADE,
		position INTEGER NOT NULL DEFAULT 0,
		subject TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		paper_name TEXT NOT NULL DEFAULT '',
		paper_id TEXT,
		paper_number TEXT,
		category TEXT NOT NULL DEFAULT '',
		subcategory TEXT NOT NULL DEFAULT '',
		course_type TEXT NOT NULL DEFAULT '',
		faculty_name TEXT NOT NULL DEFAULT '',
		pricing TEXT NOT NULL DEFAULT '[]',
		is_standalone INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_courses_faculty ON courses(faculty_id, position);
	CREATE INDEX IF NOT EXISTS idx_courses_category ON courses(category, subcategory);
	`

	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create courses table: %w", err)
	}

	return nil
}
