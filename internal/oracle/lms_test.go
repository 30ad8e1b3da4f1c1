package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grade-stakes/grade_stakes/internal/catalog"
	"github.com/grade-stakes/grade_stakes/internal/logging"
)

func lmsFixture(t *testing.T, handler http.HandlerFunc) (*LMSGateway, TokenStore, catalog.Repository) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens := NewMemoryTokenStore()
	cat := catalog.NewMemoryRepository()
	gw := NewLMSGateway(srv.URL, tokens, cat, logging.Discard())
	return gw, tokens, cat
}

func seedLMS(t *testing.T, tokens TokenStore, cat catalog.Repository) {
	t.Helper()
	ctx := context.Background()
	if err := tokens.Put(ctx, Token{Username: "alicia", Value: "session-1", Valid: true}); err != nil {
		t.Fatalf("put token: %v", err)
	}
	if err := cat.AddCourse(ctx, catalog.Course{Code: "COMP3506", LMSID: "_1234_1", Name: "Algorithms"}); err != nil {
		t.Fatalf("add course: %v", err)
	}
}

func TestFetchGradeGraded(t *testing.T) {
	var gotCookie string
	gw, tokens, cat := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("BbRouter"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"grades":[{"name":"Final Exam","score":42.5,"possible":50,"status":"graded"}]}`))
	})
	seedLMS(t, tokens, cat)

	result, err := gw.FetchGrade(context.Background(), Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != StatusAvailable || result.Percent != 85 {
		t.Fatalf("expected available/85, got %s/%v", result.Status, result.Percent)
	}
	if gotCookie != "session-1" {
		t.Fatalf("expected session cookie, got %q", gotCookie)
	}
}

func TestFetchGradeResolvesAlias(t *testing.T) {
	gw, tokens, cat := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"grades":[{"name":"FINAL_EXAM_COMBINED","score":30,"possible":50,"status":"graded"}]}`))
	})
	seedLMS(t, tokens, cat)
	if err := cat.AddAlias(context.Background(), catalog.Alias{ProfileName: "Final Exam", GradebookName: "FINAL_EXAM_COMBINED"}); err != nil {
		t.Fatalf("add alias: %v", err)
	}

	result, err := gw.FetchGrade(context.Background(), Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != StatusAvailable || result.Percent != 60 {
		t.Fatalf("expected available/60, got %s/%v", result.Status, result.Percent)
	}
}

func TestFetchGradePendingEntry(t *testing.T) {
	gw, tokens, cat := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"grades":[{"name":"Final Exam","status":"pending"}]}`))
	})
	seedLMS(t, tokens, cat)

	result, err := gw.FetchGrade(context.Background(), Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != StatusNotYetAvailable {
		t.Fatalf("expected not-yet-available, got %s", result.Status)
	}
}

func TestFetchGradeCancelledEntry(t *testing.T) {
	gw, tokens, cat := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"grades":[{"name":"Final Exam","status":"cancelled"}]}`))
	})
	seedLMS(t, tokens, cat)

	result, err := gw.FetchGrade(context.Background(), Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != StatusPermanentError {
		t.Fatalf("expected permanent error, got %s", result.Status)
	}
}

func TestFetchGradeUpstreamFailureIsTransient(t *testing.T) {
	gw, tokens, cat := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	seedLMS(t, tokens, cat)

	result, err := gw.FetchGrade(context.Background(), Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != StatusNotYetAvailable {
		t.Fatalf("expected not-yet-available on 502, got %s", result.Status)
	}
}

func TestFetchGradeWithoutToken(t *testing.T) {
	gw, _, cat := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("should not reach the LMS without a token")
	})
	if err := cat.AddCourse(context.Background(), catalog.Course{Code: "COMP3506", LMSID: "_1234_1"}); err != nil {
		t.Fatalf("add course: %v", err)
	}

	result, err := gw.FetchGrade(context.Background(), Query{Username: "alicia", CourseCode: "COMP3506", Term: "2026S1", Assessment: "Final Exam"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if result.Status != StatusNotYetAvailable {
		t.Fatalf("expected not-yet-available without token, got %s", result.Status)
	}
}

func TestVerifyToken(t *testing.T) {
	gw, _, _ := lmsFixture(t, func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("BbRouter")
		if err != nil || c.Value != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	ok, err := gw.VerifyToken(context.Background(), "good")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected a valid token")
	}

	ok, err = gw.VerifyToken(context.Background(), "stale")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("expected rejection of a stale token")
	}
}
