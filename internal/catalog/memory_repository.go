package catalog

import (
	"context"
	"errors"
	"sync"
)

type memoryRepository struct {
	mu          sync.RWMutex
	courses     map[string]Course
	assessments map[string][]Assessment // keyed by code+"|"+term
	aliases     map[string]string
}

// NewMemoryRepository builds an in-memory catalogue for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		courses:     make(map[string]Course),
		assessments: make(map[string][]Assessment),
		aliases:     make(map[string]string),
	}
}

func (r *memoryRepository) AddCourse(_ context.Context, course Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.courses[course.Code]; exists {
		return errors.New("course exists")
	}
	r.courses[course.Code] = course
	return nil
}

func (r *memoryRepository) GetCourse(_ context.Context, code string) (Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	course, ok := r.courses[code]
	if !ok {
		return Course{}, ErrCourseNotFound
	}
	return course, nil
}

func (r *memoryRepository) ListCourses(_ context.Context) ([]Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Course, 0, len(r.courses))
	for _, c := range r.courses {
		out = append(out, c)
	}
	return out, nil
}

func (r *memoryRepository) AddAssessment(_ context.Context, a Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := a.CourseCode + "|" + a.Term
	r.assessments[key] = append(r.assessments[key], a)
	return nil
}

func (r *memoryRepository) ListAssessments(_ context.Context, courseCode, term string) ([]Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.assessments[courseCode+"|"+term], nil
}

func (r *memoryRepository) AddAlias(_ context.Context, alias Alias) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias.ProfileName] = alias.GradebookName
	return nil
}

func (r *memoryRepository) ResolveAlias(_ context.Context, profileName string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if mapped, ok := r.aliases[profileName]; ok {
		return mapped, nil
	}
	return profileName, nil
}
