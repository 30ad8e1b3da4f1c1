package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores the catalogue in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a catalogue backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// AddCourse inserts a course record.
func (r *PostgresRepository) AddCourse(ctx context.Context, course Course) error {
	_, err := r.db.Exec(ctx, `INSERT INTO courses (code, lms_id, name) VALUES ($1, $2, $3)`,
		course.Code, course.LMSID, course.Name)
	return err
}

// GetCourse fetches a course by code.
func (r *PostgresRepository) GetCourse(ctx context.Context, code string) (Course, error) {
	row := r.db.QueryRow(ctx, `SELECT code, lms_id, name FROM courses WHERE code = $1`, code)
	var course Course
	if err := row.Scan(&course.Code, &course.LMSID, &course.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, ErrCourseNotFound
		}
		return Course{}, err
	}
	return course, nil
}

// ListCourses returns the whole catalogue.
func (r *PostgresRepository) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := r.db.Query(ctx, `SELECT code, lms_id, name FROM courses ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.Code, &c.LMSID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddAssessment records an assessment for a course and term.
func (r *PostgresRepository) AddAssessment(ctx context.Context, a Assessment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO assessments (course_code, term, name, weight)
        VALUES ($1, $2, $3, $4)`, a.CourseCode, a.Term, a.Name, a.Weight)
	return err
}

// ListAssessments returns the assessments for a course and term.
func (r *PostgresRepository) ListAssessments(ctx context.Context, courseCode, term string) ([]Assessment, error) {
	rows, err := r.db.Query(ctx, `SELECT course_code, term, name, weight FROM assessments
        WHERE course_code = $1 AND term = $2 ORDER BY name`, courseCode, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assessment
	for rows.Next() {
		var a Assessment
		if err := rows.Scan(&a.CourseCode, &a.Term, &a.Name, &a.Weight); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AddAlias upserts a profile-name to gradebook-name mapping.
func (r *PostgresRepository) AddAlias(ctx context.Context, alias Alias) error {
	_, err := r.db.Exec(ctx, `INSERT INTO assessment_aliases (profile_name, gradebook_name)
        VALUES ($1, $2) ON CONFLICT (profile_name) DO UPDATE SET gradebook_name = $2`,
		alias.ProfileName, alias.GradebookName)
	return err
}

// ResolveAlias maps a profile name onto its gradebook name.
func (r *PostgresRepository) ResolveAlias(ctx context.Context, profileName string) (string, error) {
	var mapped string
	err := r.db.QueryRow(ctx, `SELECT gradebook_name FROM assessment_aliases WHERE profile_name = $1`, profileName).Scan(&mapped)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profileName, nil
		}
		return "", err
	}
	return mapped, nil
}
