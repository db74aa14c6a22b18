// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/instantprod/proposal-engine/internal/domain"
	"github.com/instantprod/proposal-engine/internal/tools"
	"github.com/jackc/pgx/v5"
)

type mockDispatcher struct {
	lastName tools.Name
	lastArgs tools.Args
	result   string
	err      error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, name tools.Name, args tools.Args) (string, error) {
	m.lastName = name
	m.lastArgs = args
	if m.err != nil {
		return "", m.err
	}
	return m.result, nil
}

type mockRunLister struct {
	runs   []domain.RunSummary
	getErr error
}

func (m *mockRunLister) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *mockRunLister) GetRun(ctx context.Context, id uuid.UUID) (domain.RunSummary, []domain.StageRecord, error) {
	if m.getErr != nil {
		return domain.RunSummary{}, nil, m.getErr
	}
	for _, run := range m.runs {
		if run.ID == id {
			return run, []domain.StageRecord{{Stage: domain.StageAnalyze, Status: domain.RunSuccess}}, nil
		}
	}
	return domain.RunSummary{}, nil, pgx.ErrNoRows
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authedRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer secret")
	return req
}

func TestRouter_DispatchTool(t *testing.T) {
	dispatcher := &mockDispatcher{result: "Live URL: https://acme.example.app"}
	router := NewRouter(Deps{
		Registry: dispatcher,
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	body := bytes.NewBufferString(`{"client_name":"Acme","transcript_text":"hello world"}`)
	req := authedRequest(http.MethodPost, "/tools/quick_proposal", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d: %s", rec.Code, rec.Body)
	}

	var resp toolResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tool != "quick_proposal" || !strings.Contains(resp.Result, "acme.example.app") {
		t.Fatalf("unexpected response %+v", resp)
	}

	if dispatcher.lastName != tools.QuickProposal {
		t.Fatalf("expected quick_proposal dispatched, got %s", dispatcher.lastName)
	}
	if dispatcher.lastArgs.ClientName != "Acme" {
		t.Fatalf("expected args bound, got %+v", dispatcher.lastArgs)
	}
}

func TestRouter_DispatchToolError(t *testing.T) {
	dispatcher := &mockDispatcher{err: errors.New("pipeline failed at DEPLOY: 503")}
	router := NewRouter(Deps{
		Registry: dispatcher,
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodPost, "/tools/quick_proposal", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422 got %d", rec.Code)
	}

	var resp toolResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(resp.Error, "DEPLOY") {
		t.Fatalf("expected failure reason, got %+v", resp)
	}
}

func TestRouter_DispatchUnknownTool(t *testing.T) {
	dispatcher := &mockDispatcher{err: tools.ErrUnknownTool}
	router := NewRouter(Deps{
		Registry: dispatcher,
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodPost, "/tools/nope", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_DispatchRejectsBadJSON(t *testing.T) {
	dispatcher := &mockDispatcher{}
	router := NewRouter(Deps{
		Registry: dispatcher,
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodPost, "/tools/quick_proposal", bytes.NewBufferString(`{"bogus_field":1}`))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestRouter_ToolsRequireAuth(t *testing.T) {
	router := NewRouter(Deps{
		Registry: &mockDispatcher{},
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := httptest.NewRequest(http.MethodPost, "/tools/quick_proposal", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestRouter_NoTokenLeavesToolsOpen(t *testing.T) {
	dispatcher := &mockDispatcher{result: "ok"}
	router := NewRouter(Deps{
		Registry: dispatcher,
		Logger:   discardLogger(),
	})

	// Without a configured token the surface stays usable, not
	// fail-closed.
	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 without configured token, got %d: %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodPost, "/tools/list_proposals", nil)
	rec = httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 without configured token, got %d: %s", rec.Code, rec.Body)
	}
}

func TestRouter_ListTools(t *testing.T) {
	router := NewRouter(Deps{
		Registry: &mockDispatcher{},
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodGet, "/tools", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		Tools []string `json:"tools"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Tools) != len(tools.All()) {
		t.Fatalf("expected %d tools, got %d", len(tools.All()), len(resp.Tools))
	}
}

func TestRouter_Healthz(t *testing.T) {
	router := NewRouter(Deps{
		Registry: &mockDispatcher{},
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected ok body, got %q", rec.Body.String())
	}
}

func TestRouter_GetRun(t *testing.T) {
	runID := uuid.New()
	lister := &mockRunLister{runs: []domain.RunSummary{{
		ID:         runID,
		ClientName: "Acme",
		Status:     domain.RunSuccess,
		LiveURL:    "https://acme.example.app",
	}}}
	router := NewRouter(Deps{
		Registry: &mockDispatcher{},
		Runs:     lister,
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodGet, "/runs/"+runID.String(), nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		Run    domain.RunSummary    `json:"run"`
		Stages []domain.StageRecord `json:"stages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Run.ID != runID || len(resp.Stages) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRouter_GetRunNotFound(t *testing.T) {
	router := NewRouter(Deps{
		Registry: &mockDispatcher{},
		Runs:     &mockRunLister{},
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodGet, "/runs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestRouter_ListRunsInvalidLimit(t *testing.T) {
	router := NewRouter(Deps{
		Registry: &mockDispatcher{},
		Runs:     &mockRunLister{},
		Logger:   discardLogger(),
		APIToken: "secret",
	})

	req := authedRequest(http.MethodGet, "/runs?limit=-1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}
