package server

import (
	"context"
	"net/http"
	"strings"

	"docvault/internal/util"
	"docvault/pkg/queue"
)

// Jobs is the job API exposed over HTTP.
type Jobs interface {
	Enqueue(ctx context.Context, documentID int64) (queue.Job, error)
	GetJob(ctx context.Context, jobID string) (queue.Job, bool, error)
}

type Config struct {
	App Jobs
}

// Server exposes health and job status endpoints for the indexer service.
type Server struct {
	app Jobs
	mux *http.ServeMux
}

func New(cfg Config) *Server {
	s := &Server{
		app: cfg.App,
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/jobs", s.handleJobs)
	s.mux.HandleFunc("/jobs/", s.handleJobByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type reindexRequest struct {
	DocumentID int64 `json:"documentId"`
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		util.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req reindexRequest
	if err := util.DecodeJSON(r, 1<<20, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.DocumentID <= 0 {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "documentId required")
		return
	}
	job, err := s.app.Enqueue(r.Context(), req.DocumentID)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("enqueue reindex failed", "document_id", req.DocumentID, "err", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "enqueue failed")
		return
	}
	util.WriteJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		util.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		util.WriteError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	job, ok, err := s.app.GetJob(r.Context(), id)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("load job failed", "job_id", id, "err", err)
		util.WriteError(w, http.StatusInternalServerError, "internal", "load job failed")
		return
	}
	if !ok {
		util.WriteError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	util.WriteJSON(w, http.StatusOK, job)
}
