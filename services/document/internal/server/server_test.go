package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docvault/pkg/domain"
	"docvault/pkg/index"
	"docvault/pkg/storage"
	"docvault/pkg/store"
	"docvault/services/document/internal/app"
)

type fakeEmbedder struct {
	fail bool
}

func (e fakeEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{1, 2}, nil
}

func newHandler(t *testing.T, embedder fakeEmbedder, maxUpload int64) (http.Handler, *storage.MemoryStore) {
	t.Helper()
	docs := store.NewMemoryStore()
	objects := storage.NewMemoryStore()
	indexer, err := index.New(docs, embedder, index.Options{})
	if err != nil {
		t.Fatalf("indexer: %v", err)
	}
	a, err := app.New(app.Config{Store: docs, Objects: objects, Indexer: indexer})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return New(Config{App: a, MaxUploadBytes: maxUpload}).Router(), objects
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeDocs(t *testing.T, rec *httptest.ResponseRecorder) []domain.Document {
	t.Helper()
	var out []domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestDocumentLifecycle(t *testing.T) {
	h, _ := newHandler(t, fakeEmbedder{}, 0)

	rec := do(t, h, http.MethodPost, "/api/document", `{"value":"<p>Invoices are due in 30 days.</p>"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	created := decodeDocs(t, rec)
	if len(created) != 1 || created[0].Content != "Invoices are due in 30 days." || created[0].FileType != domain.FileTypeText {
		t.Fatalf("unexpected create response %+v", created)
	}
	id := created[0].ID
	path := "/api/document/" + jsonNumber(id)

	rec = do(t, h, http.MethodPut, path, `{"value":"<p>Invoices are due in 45 days.</p>"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if updated := decodeDocs(t, rec); updated[0].Content != "Invoices are due in 45 days." {
		t.Fatalf("unexpected update response %+v", updated)
	}

	rec = do(t, h, http.MethodGet, "/api/document", "")
	if list := decodeDocs(t, rec); rec.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("list: unexpected %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if deleted := decodeDocs(t, rec); len(deleted) != 1 || deleted[0].ID != id {
		t.Fatalf("unexpected delete response %+v", deleted)
	}

	if rec = do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
	if rec = do(t, h, http.MethodDelete, path, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", rec.Code)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	h, _ := newHandler(t, fakeEmbedder{}, 0)
	rec := do(t, h, http.MethodGet, "/api/document", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}
}

func TestCreateValidation(t *testing.T) {
	h, _ := newHandler(t, fakeEmbedder{}, 0)
	if rec := do(t, h, http.MethodPost, "/api/document", `{"value":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty value, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/document", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/document/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPatch, "/api/document", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestIndexFailureReturnsBadGateway(t *testing.T) {
	h, _ := newHandler(t, fakeEmbedder{fail: true}, 0)
	rec := do(t, h, http.MethodPost, "/api/document", `{"value":"<p>hello</p>"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == nil {
		t.Fatalf("expected error body, got %q", rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS header on error")
	}
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadPDFValidation(t *testing.T) {
	h, _ := newHandler(t, fakeEmbedder{}, 1024)

	body, ct := multipartBody(t, "notes.txt", []byte("plain text"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-PDF, got %d: %s", rec.Code, rec.Body.String())
	}

	body, ct = multipartBody(t, "big.pdf", bytes.Repeat([]byte("x"), 4096))
	req = httptest.NewRequest(http.MethodPost, "/api/upload-pdf", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/upload-pdf", strings.NewReader(""))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart body, got %d", rec.Code)
	}
}

func TestPDFURL(t *testing.T) {
	h, objects := newHandler(t, fakeEmbedder{}, 0)
	key := "pdfs/abc/manual.pdf"
	if err := objects.Put(context.Background(), key, strings.NewReader("%PDF-"), 5, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec := do(t, h, http.MethodGet, "/api/upload-pdf?path="+key+"&page=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var url string
	if err := json.Unmarshal(rec.Body.Bytes(), &url); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasSuffix(url, "#page=2") {
		t.Fatalf("unexpected url %q", url)
	}
	if rec := do(t, h, http.MethodGet, "/api/upload-pdf?path="+key+"&page=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page, got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/upload-pdf?path=pdfs/none.pdf", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing object, got %d", rec.Code)
	}
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

type downStore struct{}

func (downStore) Ping(ctx context.Context) error { return errors.New("dial tcp: connection refused") }

func TestHealthFailsWhenStoreDown(t *testing.T) {
	docs := store.NewMemoryStore()
	indexer, err := index.New(docs, fakeEmbedder{}, index.Options{})
	if err != nil {
		t.Fatalf("indexer: %v", err)
	}
	a, err := app.New(app.Config{Store: docs, Objects: storage.NewMemoryStore(), Indexer: indexer})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	rec := httptest.NewRecorder()
	New(Config{App: a, DB: downStore{}}).Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "store_unavailable") {
		t.Fatalf("expected error code in body: %s", rec.Body.String())
	}
}
