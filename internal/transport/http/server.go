package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"narrativeradar/internal/radar"
	"narrativeradar/internal/report"
	"narrativeradar/internal/store"
)

const defaultRunTimeout = 3 * time.Minute

// Runner produces a fresh run record.
type Runner interface {
	Run(ctx context.Context) (*radar.RunRecord, error)
}

// RunStore persists and serves run records.
type RunStore interface {
	Save(ctx context.Context, run *radar.RunRecord) error
	Latest(ctx context.Context) (*radar.RunRecord, error)
	Get(ctx context.Context, id string) (*radar.RunRecord, error)
	List(ctx context.Context, limit int) ([]store.RunSummary, error)
}

type Server struct {
	runner     Runner
	runs       RunStore
	ingest     *radar.IngestSource
	logger     *slog.Logger
	runTimeout time.Duration
}

// NewServer wires the HTTP surface. runs and ingest may be nil.
func NewServer(runner Runner, runs RunStore, ingest *radar.IngestSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runner:     runner,
		runs:       runs,
		ingest:     ingest,
		logger:     logger,
		runTimeout: defaultRunTimeout,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)
	r.Use(withCORS)

	r.Get("/healthz", s.health)
	r.Get("/api/run", s.handleRun)
	r.Post("/api/run", s.handleRun)
	r.Get("/api/latest", s.handleLatest)
	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{id}", s.handleGetRun)
	r.Get("/api/report", s.handleReport)
	r.Post("/news", s.handleIngest)
	r.Get("/swagger/openapi.yaml", serveSwaggerYAML)
	r.Get("/swagger/openapi.json", serveSwaggerJSON)
	r.Get("/swagger", serveSwaggerUI)
	r.Get("/swagger/", serveSwaggerUI)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// freshRun runs the pipeline, converting panics into errors, and persists the result.
func (s *Server) freshRun(ctx context.Context) (run *radar.RunRecord, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run panicked: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	run, err = s.runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	if s.runs != nil {
		if err := s.runs.Save(ctx, run); err != nil {
			s.logger.ErrorContext(ctx, "save run failed", "run_id", run.ID, "error", err)
		}
	}
	return run, nil
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.freshRun(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "run failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run": run})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "no run store configured")
		return
	}
	run, err := s.runs.Latest(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no stored runs; use /api/run to generate one")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run": run})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runs": []store.RunSummary{}})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, 200)
		}
	}
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "no run store configured")
		return
	}
	run, err := s.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "run": run})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var run *radar.RunRecord
	if s.runs != nil && r.URL.Query().Get("fresh") != "1" {
		latest, err := s.runs.Latest(r.Context())
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		run = latest
	}
	if run == nil {
		fresh, err := s.freshRun(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		run = fresh
	}

	md, err := report.Markdown(run)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ingest disabled")
		return
	}

	var payload struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Link        string `json:"link"`
		Source      string `json:"source"`
		PublishedAt string `json:"published_at"`
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Link) == "" {
		s.writeError(w, http.StatusBadRequest, "title and link are required")
		return
	}

	var published time.Time
	if payload.PublishedAt != "" {
		ts, err := time.Parse(time.RFC3339, payload.PublishedAt)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "published_at must be RFC3339")
			return
		}
		published = ts.UTC()
	}

	stored := s.ingest.Add(radar.Headline{
		ID:          payload.ID,
		Title:       strings.TrimSpace(payload.Title),
		Link:        strings.TrimSpace(payload.Link),
		Source:      strings.TrimSpace(payload.Source),
		PublishedAt: published,
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"id":           stored.ID,
		"published_at": stored.PublishedAt,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
