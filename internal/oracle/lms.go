package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/grade-stakes/grade_stakes/internal/catalog"
)

// Gradebook entry statuses reported by the learning management system.
const (
	lmsStatusGraded    = "graded"
	lmsStatusPending   = "pending"
	lmsStatusCancelled = "cancelled"
)

const sessionCookieName = "BbRouter"

// LMSGateway fetches grades from the institution's learning management
// system using the per-user session token stored at link time. It only
// reports facts; transient upstream trouble surfaces as not-yet-available.
type LMSGateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenStore
	catalog catalog.Repository
	logger  *slog.Logger
}

// NewLMSGateway builds the gateway against the configured LMS base URL.
func NewLMSGateway(baseURL string, tokens TokenStore, cat catalog.Repository, logger *slog.Logger) *LMSGateway {
	return &LMSGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		catalog: cat,
		logger:  logger,
	}
}

type lmsGradeEntry struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Possible float64 `json:"possible"`
	Status   string  `json:"status"`
}

type lmsGradesResponse struct {
	Grades []lmsGradeEntry `json:"grades"`
}

// FetchGrade queries the user's gradebook for one assessment.
func (g *LMSGateway) FetchGrade(ctx context.Context, q Query) (GradeResult, error) {
	token, err := g.tokens.Get(ctx, q.Username)
	if err != nil {
		if err == ErrNoToken {
			// The user can still link the grade source later.
			return GradeResult{Status: StatusNotYetAvailable}, nil
		}
		return GradeResult{}, err
	}

	course, err := g.catalog.GetCourse(ctx, q.CourseCode)
	if err != nil {
		if err == catalog.ErrCourseNotFound {
			g.logger.Warn("course missing from catalogue", slog.String("course", q.CourseCode))
			return GradeResult{Status: StatusNotYetAvailable}, nil
		}
		return GradeResult{}, err
	}

	gradebookName, err := g.catalog.ResolveAlias(ctx, q.Assessment)
	if err != nil {
		return GradeResult{}, err
	}

	url := fmt.Sprintf("%s/courses/%s/grades?term=%s", g.baseURL, course.LMSID, q.Term)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return GradeResult{}, err
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token.Value})

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return GradeResult{}, ctx.Err()
		}
		g.logger.Warn("grade source unreachable", slog.String("course", q.CourseCode), slog.Any("error", err))
		return GradeResult{Status: StatusNotYetAvailable}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Expired tokens and upstream errors are both transient from the
		// settlement engine's point of view.
		g.logger.Warn("grade source returned non-200",
			slog.Int("status", resp.StatusCode), slog.String("course", q.CourseCode))
		return GradeResult{Status: StatusNotYetAvailable}, nil
	}

	var payload lmsGradesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		g.logger.Warn("grade source returned malformed body", slog.Any("error", err))
		return GradeResult{Status: StatusNotYetAvailable}, nil
	}

	for _, entry := range payload.Grades {
		if entry.Name != gradebookName {
			continue
		}
		switch entry.Status {
		case lmsStatusCancelled:
			return GradeResult{Status: StatusPermanentError}, nil
		case lmsStatusGraded:
			if entry.Possible <= 0 {
				return GradeResult{Status: StatusNotYetAvailable}, nil
			}
			return GradeResult{
				Status:  StatusAvailable,
				Percent: entry.Score / entry.Possible * 100,
			}, nil
		default:
			return GradeResult{Status: StatusNotYetAvailable}, nil
		}
	}

	return GradeResult{Status: StatusNotYetAvailable}, nil
}

// VerifyToken probes the LMS session endpoint with the candidate token.
func (g *LMSGateway) VerifyToken(ctx context.Context, tokenValue string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/session", nil)
	if err != nil {
		return false, err
	}
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: tokenValue})

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}
