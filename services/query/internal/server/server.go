package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"docvault/internal/util"
	"docvault/pkg/rag"
	"docvault/services/query/internal/app"
)

// Asker answers one query request.
type Asker interface {
	Ask(ctx context.Context, req app.Request) (app.Result, error)
}

// Limiter decides whether a client may issue another query.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App            Asker
	Limiter        Limiter
	TrustedProxies *util.TrustedProxies
	DB             Pinger
}

// Server exposes the query endpoint.
type Server struct {
	app     Asker
	limiter Limiter
	proxies *util.TrustedProxies
	db      Pinger
	mux     *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		app:     cfg.App,
		limiter: cfg.Limiter,
		proxies: cfg.TrustedProxies,
		db:      cfg.DB,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler. CORS sits outermost after request
// ids so preflights and error responses carry the headers.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithCORS(util.WithRequestLog(util.WithSecurityHeaders(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/vector", s.handleQuery)
	s.mux.HandleFunc("/query", s.handleQuery)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			util.LoggerFromContext(r.Context()).Warn("health check failed", "err", err)
			util.WriteError(w, http.StatusServiceUnavailable, "store_unavailable", "store unavailable")
			return
		}
	}
	util.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId,omitempty"`
}

type queryResponse struct {
	Text      string `json:"text"`
	Sources   any    `json:"sources"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		util.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if s.limiter != nil && !s.limiter.Allow(r.Context(), "query:"+util.ClientIP(r, s.proxies)) {
		util.WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		return
	}
	var req queryRequest
	if err := util.DecodeJSON(r, 1<<20, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	res, err := s.app.Ask(r.Context(), app.Request{Query: req.Query, SessionID: strings.TrimSpace(req.SessionID)})
	if err != nil {
		status, code := errorStatus(err)
		logger := util.LoggerFromContext(r.Context())
		if status >= http.StatusInternalServerError {
			logger.Error("query failed", "code", code, "state", string(res.State), "err", err)
		}
		util.WriteError(w, status, code, err.Error())
		return
	}
	util.WriteJSON(w, http.StatusOK, queryResponse{
		Text:      res.Answer.Text,
		Sources:   res.Answer.Sources,
		SessionID: res.Answer.SessionID,
	})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, rag.ErrUpstreamTimeout):
		return http.StatusInternalServerError, "upstream_timeout"
	case errors.Is(err, rag.ErrEmbeddingService):
		return http.StatusInternalServerError, "embedding_failed"
	case errors.Is(err, rag.ErrSearchService):
		return http.StatusInternalServerError, "search_failed"
	case errors.Is(err, rag.ErrGenerationService):
		return http.StatusInternalServerError, "generation_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
