package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-migrate/migrate/v4"
	"github.com/labstack/echo/v4"

	"github.com/lexhelper/counsel/config"
	"github.com/lexhelper/counsel/internal/agent/core"
	"github.com/lexhelper/counsel/internal/store"
)

var testSecret = []byte("test-secret")

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &store.Store{DB: db}, mock
}

func authedRequest(t *testing.T, method, target string, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	token, err := SignJWT("user-1", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	e := echo.New()
	g := e.Group("/api/sessions")
	h := &SessionsHandler{}
	h.Register(g, testSecret)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsSignedToken(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, user_id, title`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "is_archived", "created_at", "updated_at"}))

	e := echo.New()
	h := &SessionsHandler{Store: st}
	h.Register(e.Group("/api/sessions"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/sessions", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestCreateSessionDefaultsTitle(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO chat_sessions`).
		WithArgs(sqlmock.AnyArg(), "user-1", "New Research Session").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	e := echo.New()
	h := &SessionsHandler{Store: st}
	h.Register(e.Group("/api/sessions"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/sessions", `{}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sess store.ChatSession
	if err := json.Unmarshal(rec.Body.Bytes(), &sess); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Title != "New Research Session" {
		t.Fatalf("unexpected title: %q", sess.Title)
	}
}

func TestRenameSessionNotFound(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE chat_sessions SET title`).
		WithArgs("missing", "user-1", "t").
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := echo.New()
	h := &SessionsHandler{Store: st}
	h.Register(e.Group("/api/sessions"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPut, "/api/sessions/missing", `{"title":"t"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTemplates(t *testing.T) {
	st, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"id", "name", "description", "category", "prompt_template", "is_default", "created_by", "created_at"}).
		AddRow("t-1", "SNAP eligibility", "d", "snap", "p", true, "", time.Now())
	mock.ExpectQuery(`SELECT id, name, description, category`).WillReturnRows(rows)

	e := echo.New()
	h := &TemplatesHandler{Store: st}
	h.Register(e.Group("/api/templates"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/templates", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var templates []store.ResearchTemplate
	if err := json.Unmarshal(rec.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(templates) != 1 || templates[0].Name != "SNAP eligibility" {
		t.Fatalf("unexpected templates: %+v", templates)
	}
}

func TestResearchRequiresQuery(t *testing.T) {
	e := echo.New()
	h := &ResearchHandler{Config: &config.Config{}}
	h.Register(e.Group("/api/research"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/research", `{"session_id":"s1"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestResearchUnknownSession(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, user_id, title`).
		WithArgs("missing", "user-1").
		WillReturnError(sql.ErrNoRows)

	e := echo.New()
	h := &ResearchHandler{Config: &config.Config{}, Store: st}
	h.Register(e.Group("/api/research"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/research",
		`{"session_id":"missing","query":"SNAP rules"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

// scriptedInvoker returns canned responses per role for full-pipeline
// handler tests.
type scriptedInvoker struct{}

func (scriptedInvoker) Invoke(_ context.Context, role core.Role, _ string) (string, error) {
	switch role {
	case core.RolePlanner:
		return `{"searches":[{"reason":"r","query":"q"}]}`, nil
	case core.RoleSearch:
		return "summary", nil
	case core.RoleWriter:
		return `{"short_summary":"s","markdown_report":"# Memo","follow_up_questions":[]}`, nil
	case core.RoleVerifier:
		return `{"verified":true,"overallQuality":"good","qualityScore":8,"specificIssues":[],"recommendRevision":false}`, nil
	}
	return "", nil
}

func TestResearchRunsPipelineAndPersists(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, title`).
		WithArgs("sess-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "is_archived", "created_at", "updated_at"}).
			AddRow("sess-1", "user-1", "Research", false, now, now))
	// user message
	mock.ExpectQuery(`INSERT INTO chat_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec(`UPDATE chat_sessions SET updated_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// assistant message
	mock.ExpectQuery(`INSERT INTO chat_messages`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectExec(`UPDATE chat_sessions SET updated_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &config.Config{Research: config.ResearchConfig{MaxIterations: 3, VerifierMode: "monolithic"}}
	e := echo.New()
	h := &ResearchHandler{Config: cfg, Store: st, Invoker: scriptedInvoker{}}
	h.Register(e.Group("/api/research"), testSecret)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/research",
		`{"session_id":"sess-1","query":"SNAP work requirements"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result core.ResearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.IterationCount != 1 || result.FinalQuality != core.QualityGood {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrationOutcome(t *testing.T) {
	if err := migrationOutcome(nil); err != nil {
		t.Fatalf("nil: %v", err)
	}
	if err := migrationOutcome(migrate.ErrNoChange); err != nil {
		t.Fatalf("current schema should not be fatal: %v", err)
	}
	cause := errors.New("dirty database version 2")
	err := migrationOutcome(fmt.Errorf("up: %w", cause))
	if err == nil || !errors.Is(err, cause) {
		t.Fatalf("expected fatal migration error, got %v", err)
	}
}
