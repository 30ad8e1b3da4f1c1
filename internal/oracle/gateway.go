package oracle

import "context"

// GradeStatus classifies what the external grade source reported.
type GradeStatus string

const (
	// StatusAvailable means a definitive percentage was returned.
	StatusAvailable GradeStatus = "available"
	// StatusNotYetAvailable means no grade yet; try again later.
	StatusNotYetAvailable GradeStatus = "not_yet_available"
	// StatusPermanentError means the assessment will never produce a grade.
	StatusPermanentError GradeStatus = "permanent_error"
)

// GradeResult is the oracle's report of fact. The oracle never decides
// wager outcomes.
type GradeResult struct {
	Status  GradeStatus
	Percent float64 // meaningful only when Status == StatusAvailable
}

// Query identifies one assessment grade for one user.
type Query struct {
	Username   string
	CourseCode string
	Term       string
	Assessment string
}

// Gateway abstracts the external grade source. Transient upstream
// failures are reported as StatusNotYetAvailable, never as errors; an
// error return indicates a local fault (bad configuration, cancelled
// context).
type Gateway interface {
	FetchGrade(ctx context.Context, q Query) (GradeResult, error)
}
