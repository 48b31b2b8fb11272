package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docvault/internal/util"
	"docvault/pkg/domain"
	"docvault/services/document/internal/app"
)

const maxJSONBytes = 10 << 20

// Documents is the document application used by the handlers.
type Documents interface {
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	GetDocument(ctx context.Context, id int64) (domain.Document, error)
	CreateText(ctx context.Context, value string) (domain.Document, error)
	UpdateText(ctx context.Context, id int64, value string) (domain.Document, error)
	DeleteDocument(ctx context.Context, id int64) (domain.Document, error)
	UploadPDF(ctx context.Context, filename string, data []byte) (domain.Document, error)
	PDFURL(ctx context.Context, key string, page int) (string, error)
}

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	App            Documents
	MaxUploadBytes int64
	DB             Pinger
}

// Server exposes document CRUD and PDF upload endpoints.
type Server struct {
	app            Documents
	maxUploadBytes int64
	db             Pinger
	mux            *http.ServeMux
}

func New(cfg Config) *Server {
	limit := cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	s := &Server{
		app:            cfg.App,
		maxUploadBytes: limit,
		db:             cfg.DB,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithCORS(util.WithRequestLog(util.WithSecurityHeaders(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/api/document", s.handleDocuments)
	s.mux.HandleFunc("/api/document/", s.handleDocumentByID)
	s.mux.HandleFunc("/api/upload-pdf", s.handleUploadPDF)
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

type documentRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		docs, err := s.app.ListDocuments(r.Context())
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		if docs == nil {
			docs = []domain.Document{}
		}
		util.WriteJSON(w, http.StatusOK, docs)
	case http.MethodPost:
		var req documentRequest
		if err := util.DecodeJSON(r, maxJSONBytes, &req); err != nil {
			util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		doc, err := s.app.CreateText(r.Context(), req.Value)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusCreated, []domain.Document{doc})
	default:
		util.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleDocumentByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/document/"), "/")
	if rest == "" || strings.Contains(rest, "/") {
		util.WriteError(w, http.StatusNotFound, "not_found", "not found")
		return
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid document id")
		return
	}
	switch r.Method {
	case http.MethodGet:
		doc, err := s.app.GetDocument(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, doc)
	case http.MethodPut:
		var req documentRequest
		if err := util.DecodeJSON(r, maxJSONBytes, &req); err != nil {
			util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		doc, err := s.app.UpdateText(r.Context(), id, req.Value)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, []domain.Document{doc})
	case http.MethodDelete:
		doc, err := s.app.DeleteDocument(r.Context(), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, []domain.Document{doc})
	default:
		util.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleUploadPDF(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.uploadPDF(w, r)
	case http.MethodGet:
		page := 0
		if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid page")
				return
			}
			page = n
		}
		url, err := s.app.PDFURL(r.Context(), r.URL.Query().Get("path"), page)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		util.WriteJSON(w, http.StatusOK, url)
	default:
		util.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) uploadPDF(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUploadBytes {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			util.WriteError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file too large")
			return
		}
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "read upload failed")
		return
	}
	doc, err := s.app.UploadPDF(r.Context(), header.Filename, data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, []domain.Document{doc})
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("document request failed", "err", err)
		msg = "internal error"
	}
	util.WriteError(w, status, code, msg)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrIndexing):
		return http.StatusBadGateway, "indexing_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
