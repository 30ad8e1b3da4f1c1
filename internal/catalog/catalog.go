package catalog

import (
	"context"
	"errors"
)

// ErrCourseNotFound indicates the course code is not in the catalogue.
var ErrCourseNotFound = errors.New("course not found")

// Course maps a human course code onto the grade source's internal id.
type Course struct {
	Code  string // e.g. "COMP3506"
	LMSID string // opaque id used by the learning management system
	Name  string
}

// Assessment is a named assessment offered in a course for a term.
type Assessment struct {
	CourseCode string
	Term       string
	Name       string
	Weight     float64 // percent of final grade, 0 when unknown
}

// Alias maps the assessment name shown in the course profile onto the
// name the gradebook uses; the two rarely agree.
type Alias struct {
	ProfileName   string
	GradebookName string
}

// Repository is the course/assessment catalogue. It is reference data:
// written by admin endpoints, read by the oracle gateway.
type Repository interface {
	AddCourse(ctx context.Context, course Course) error
	GetCourse(ctx context.Context, code string) (Course, error)
	ListCourses(ctx context.Context) ([]Course, error)

	AddAssessment(ctx context.Context, a Assessment) error
	ListAssessments(ctx context.Context, courseCode, term string) ([]Assessment, error)

	AddAlias(ctx context.Context, alias Alias) error
	// ResolveAlias returns the gradebook name for a profile name, or the
	// input unchanged when no alias exists.
	ResolveAlias(ctx context.Context, profileName string) (string, error)
}
