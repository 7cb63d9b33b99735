// ABOUTME: Tests for the run API and engine wiring using stubbed agent factories.
// ABOUTME: Polls async runs to completion; no model calls are made.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spectra-research/memoforge/agents"
	"github.com/spectra-research/memoforge/memotype"
	"github.com/spectra-research/memoforge/retrieval"
)

func testRegistry() *memotype.Registry {
	return memotype.NewRegistry(&memotype.Spec{
		ID:   "test-memo",
		Name: "Test Memo",
		Sections: []memotype.Section{
			{ID: "identification", Query: "company identification", Required: []string{"company_name"}},
			{ID: "returns", Query: "returns"},
		},
		Structure: []string{"Overview", "Returns"},
	})
}

func twoParagraphs(label string) string {
	p := strings.Repeat(label+" covers the thesis in depth. ", 3)
	return p + "\n\n" + p
}

// stubFactory returns scripted agents; generators can be failed per title.
type stubFactory struct {
	failTitles map[string]bool
}

func (f *stubFactory) Extractor(memoType string, sec memotype.Section) agents.Extractor {
	return agents.ExtractorFunc(func(ctx context.Context, in agents.ExtractInput) (map[string]any, error) {
		if sec.ID == "identification" {
			return map[string]any{"company_name": "Acme Industrial"}, nil
		}
		return map[string]any{"irr_pct": 27.5}, nil
	})
}

func (f *stubFactory) Generator(memoType, title string) agents.Generator {
	return agents.GeneratorFunc(func(ctx context.Context, in agents.GenerateInput) (string, error) {
		if f.failTitles[title] {
			return "", errors.New("model unavailable")
		}
		return twoParagraphs(title), nil
	})
}

func newTestServer(factory AgentFactory) *Server {
	engine := NewEngine(testRegistry(), factory, retrieval.NewMemoryStore(), nil)
	return NewServer(engine)
}

func pollRun(t *testing.T, s *Server, id string) RunStatus {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/"+id, nil))
		if rec.Code != 200 {
			t.Fatalf("GET run: status %d", rec.Code)
		}
		var st RunStatus
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			t.Fatalf("decode status: %v", err)
		}
		if st.Status != StatusRunning {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return RunStatus{}
}

func submitRun(t *testing.T, s *Server, body string) map[string]string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/runs", bytes.NewBufferString(body))
	s.ServeHTTP(rec, req)
	if rec.Code != 202 {
		t.Fatalf("POST /api/runs: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode submit response: %v", err)
	}
	return resp
}

func TestSubmitAndCompleteRun(t *testing.T) {
	s := newTestServer(&stubFactory{})
	resp := submitRun(t, s, `{"memo_type":"test-memo","text":"Acme Industrial generated R$ 40mm of EBITDA."}`)
	if resp["id"] == "" || resp["memo_id"] == "" {
		t.Fatalf("submit response missing ids: %v", resp)
	}

	st := pollRun(t, s, resp["id"])
	if st.Status != StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", st.Status, st.Error)
	}
	if st.Result == nil {
		t.Fatalf("completed run has no result")
	}
	if got := st.Result.Facts["identification"]["company_name"]; got != "Acme Industrial" {
		t.Errorf("extracted company_name = %v", got)
	}
	if len(st.Result.Order) != 2 || st.Result.Order[0] != "Overview" || st.Result.Order[1] != "Returns" {
		t.Errorf("section order = %v", st.Result.Order)
	}
	if len(st.Result.Incomplete) != 0 {
		t.Errorf("incomplete = %v, want none", st.Result.Incomplete)
	}
}

func TestFailingGeneratorMarksSectionIncomplete(t *testing.T) {
	s := newTestServer(&stubFactory{failTitles: map[string]bool{"Returns": true}})
	resp := submitRun(t, s, `{"memo_type":"test-memo","text":"deal text"}`)

	st := pollRun(t, s, resp["id"])
	if st.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed (best-effort output)", st.Status)
	}
	found := false
	for _, sec := range st.Result.Incomplete {
		if sec == "Returns" {
			found = true
		}
	}
	if !found {
		t.Errorf("incomplete = %v, want Returns listed", st.Result.Incomplete)
	}
	if len(st.Result.Sections["Overview"]) == 0 {
		t.Errorf("healthy section must still be generated")
	}
}

func TestSubmitRejectsUnknownMemoType(t *testing.T) {
	s := newTestServer(&stubFactory{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("POST", "/api/runs",
		bytes.NewBufferString(`{"memo_type":"nope","text":"x"}`)))
	if rec.Code != 400 {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	s := newTestServer(&stubFactory{})
	for _, body := range []string{`{}`, `{"memo_type":"test-memo"}`, `{"text":"x"}`, `not json`} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest("POST", "/api/runs", bytes.NewBufferString(body)))
		if rec.Code != 400 {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestGetUnknownRunIs404(t *testing.T) {
	s := newTestServer(&stubFactory{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs/missing", nil))
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestServer(&stubFactory{})
	first := submitRun(t, s, `{"memo_type":"test-memo","text":"first deal"}`)
	pollRun(t, s, first["id"])
	second := submitRun(t, s, `{"memo_type":"test-memo","text":"second deal"}`)
	pollRun(t, s, second["id"])

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest("GET", "/api/runs", nil))
	if rec.Code != 200 {
		t.Fatalf("GET /api/runs: status %d", rec.Code)
	}
	var list []RunStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list has %d runs, want 2", len(list))
	}
	if !list[0].CreatedAt.After(list[1].CreatedAt) && !list[0].CreatedAt.Equal(list[1].CreatedAt) {
		t.Errorf("runs not sorted newest first")
	}
}

func TestEngineFiltersFactsForMemoType(t *testing.T) {
	registry := memotype.DefaultRegistry()
	factory := &leakyFactory{}
	engine := NewEngine(registry, factory, retrieval.NewMemoryStore(), nil)

	out, err := engine.Run(context.Background(), RunRequest{
		MemoType:  memotype.FullPrimary,
		Text:      "deal documents",
		Namespace: "deal-1",
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := out.Facts["identification"]["searcher_name"]; ok {
		t.Errorf("searcher_name must be filtered out for %s", memotype.FullPrimary)
	}
	if out.Facts["identification"]["company_name"] != "Acme" {
		t.Errorf("visible fields must survive filtering: %v", out.Facts["identification"])
	}
}

// leakyFactory extracts fields that visibility filtering should remove.
type leakyFactory struct{}

func (leakyFactory) Extractor(memoType string, sec memotype.Section) agents.Extractor {
	return agents.ExtractorFunc(func(ctx context.Context, in agents.ExtractInput) (map[string]any, error) {
		if sec.ID == "identification" {
			return map[string]any{"company_name": "Acme", "searcher_name": "J. Doe"}, nil
		}
		return map[string]any{"ev_mm": 100.0, "manager_name": "Fund Ops", "fund_name": "Fund I"}, nil
	})
}

func (leakyFactory) Generator(memoType, title string) agents.Generator {
	return agents.GeneratorFunc(func(ctx context.Context, in agents.GenerateInput) (string, error) {
		return twoParagraphs(title), nil
	})
}
