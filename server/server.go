// ABOUTME: HTTP surface for memo runs: submit, poll status, list.
// ABOUTME: Runs execute asynchronously; the registry keeps status, events, and results in memory.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/spectra-research/memoforge/workflow"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run tracks one memo run from submission to completion.
type Run struct {
	ID        string
	MemoID    string
	MemoType  string
	Status    string
	Result    *RunOutput
	Error     string
	Events    []workflow.Event
	CreatedAt time.Time
	mu        sync.RWMutex
}

// RunStatus is the JSON shape for run queries.
type RunStatus struct {
	ID        string     `json:"id"`
	MemoID    string     `json:"memo_id"`
	MemoType  string     `json:"memo_type"`
	Status    string     `json:"status"`
	Result    *RunOutput `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Server exposes the engine over HTTP.
type Server struct {
	engine *Engine
	runs   map[string]*Run
	mu     sync.RWMutex
	router chi.Router
}

// NewServer builds the HTTP server around an engine.
func NewServer(engine *Engine) *Server {
	s := &Server{
		engine: engine,
		runs:   make(map[string]*Run),
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.handleSubmitRun)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
	})
	s.router = r
	return s
}

// ServeHTTP delegates to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleSubmitRun handles POST /api/runs. The run executes asynchronously;
// the response carries the run ID for polling.
func (s *Server) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if req.MemoType == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "memo_type and text are required"})
		return
	}
	if _, err := s.engine.registry.Resolve(req.MemoType); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	run := &Run{
		ID:        uuid.NewString(),
		MemoID:    ulid.Make().String(),
		MemoType:  req.MemoType,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	if req.Namespace == "" {
		req.Namespace = run.MemoID
	}

	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	events := func(evt workflow.Event) {
		run.mu.Lock()
		run.Events = append(run.Events, evt)
		run.mu.Unlock()
	}

	go func() {
		result, err := s.engine.Run(context.Background(), req, events)
		run.mu.Lock()
		defer run.mu.Unlock()
		if err != nil {
			run.Status = StatusFailed
			run.Error = err.Error()
			return
		}
		run.Status = StatusCompleted
		run.Result = result
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":      run.ID,
		"memo_id": run.MemoID,
		"status":  StatusRunning,
	})
}

// handleGetRun handles GET /api/runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.RLock()
	run, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	writeJSON(w, http.StatusOK, run.status())
}

// handleListRuns handles GET /api/runs, newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	statuses := make([]RunStatus, 0, len(s.runs))
	for _, run := range s.runs {
		statuses = append(statuses, run.status())
	}
	s.mu.RUnlock()

	for i := 0; i < len(statuses); i++ {
		for j := i + 1; j < len(statuses); j++ {
			if statuses[j].CreatedAt.After(statuses[i].CreatedAt) {
				statuses[i], statuses[j] = statuses[j], statuses[i]
			}
		}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (r *Run) status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RunStatus{
		ID:        r.ID,
		MemoID:    r.MemoID,
		MemoType:  r.MemoType,
		Status:    r.Status,
		Result:    r.Result,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
