package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"docvault/internal/util"
	"docvault/pkg/domain"
	"docvault/pkg/queue"
	"docvault/pkg/storage"
	"docvault/pkg/store"
	"docvault/pkg/textproc"
)

const (
	IndexModeSync  = "sync"
	IndexModeQueue = "queue"

	pdfKeyPrefix = "pdfs/"
)

// Indexer regenerates the chunks of a document in-process.
type Indexer interface {
	Index(ctx context.Context, doc domain.Document) (int, error)
}

// Enqueuer hands a document to the indexer service.
type Enqueuer interface {
	Enqueue(ctx context.Context, documentID int64) (queue.Job, error)
}

// Config holds runtime dependencies for the document service.
type Config struct {
	Store         store.Store
	Objects       storage.ObjectStore
	Indexer       Indexer
	Queue         Enqueuer
	IndexMode     string
	PresignExpiry time.Duration
}

// App manages documents and keeps their chunks in step with their content.
type App struct {
	store         store.Store
	objects       storage.ObjectStore
	indexer       Indexer
	queue         Enqueuer
	mode          string
	presignExpiry time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.IndexMode))
	if mode == "" {
		mode = IndexModeSync
	}
	switch mode {
	case IndexModeSync:
		if cfg.Indexer == nil {
			return nil, fmt.Errorf("indexer required for sync index mode")
		}
	case IndexModeQueue:
		if cfg.Queue == nil {
			return nil, fmt.Errorf("queue required for queue index mode")
		}
	default:
		return nil, fmt.Errorf("unknown index mode: %s", cfg.IndexMode)
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &App{
		store:         cfg.Store,
		objects:       cfg.Objects,
		indexer:       cfg.Indexer,
		queue:         cfg.Queue,
		mode:          mode,
		presignExpiry: expiry,
	}, nil
}

// ListDocuments returns every document ordered by id.
func (a *App) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	return a.store.ListDocuments(ctx)
}

// GetDocument returns one document or ErrNotFound.
func (a *App) GetDocument(ctx context.Context, id int64) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	return doc, nil
}

// CreateText stores an editor document from its HTML value.
func (a *App) CreateText(ctx context.Context, value string) (domain.Document, error) {
	text, err := plainText(value)
	if err != nil {
		return domain.Document{}, err
	}
	doc, err := a.store.CreateDocument(ctx, domain.Document{
		Content:    text,
		FileType:   domain.FileTypeText,
		HTMLString: &value,
	})
	if err != nil {
		return domain.Document{}, err
	}
	return doc, a.reindex(ctx, doc)
}

// UpdateText replaces the whole content of a document.
func (a *App) UpdateText(ctx context.Context, id int64, value string) (domain.Document, error) {
	text, err := plainText(value)
	if err != nil {
		return domain.Document{}, err
	}
	doc, ok, err := a.store.UpdateDocument(ctx, domain.Document{ID: id, Content: text, HTMLString: &value})
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	return doc, a.reindex(ctx, doc)
}

// DeleteDocument removes exactly the document with id, its chunks and its
// uploaded file.
func (a *App) DeleteDocument(ctx context.Context, id int64) (domain.Document, error) {
	doc, ok, err := a.store.DeleteDocument(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok {
		return domain.Document{}, ErrNotFound
	}
	if doc.FilePath != nil && a.objects != nil {
		if err := a.objects.Delete(ctx, *doc.FilePath); err != nil {
			util.LoggerFromContext(ctx).Warn("delete document file failed", "document_id", id, "key", *doc.FilePath, "err", err)
		}
	}
	return doc, nil
}

// UploadPDF stores the file, extracts its text per page and creates a PDF document.
func (a *App) UploadPDF(ctx context.Context, filename string, data []byte) (domain.Document, error) {
	if a.objects == nil {
		return domain.Document{}, fmt.Errorf("object storage not configured")
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return domain.Document{}, fmt.Errorf("%w: file is not a PDF", ErrInvalidInput)
	}
	pages, err := textproc.PDFPages(data)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	key := buildStorageKey(util.NewID(), filename)
	if err := a.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		return domain.Document{}, fmt.Errorf("save file: %w", err)
	}
	doc, err := a.store.CreateDocument(ctx, domain.Document{
		Content:  textproc.JoinPages(pages),
		FileType: domain.FileTypePDF,
		FilePath: &key,
	})
	if err != nil {
		_ = a.objects.Delete(ctx, key)
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	return doc, a.reindex(ctx, doc)
}

// PDFURL returns a presigned URL for an uploaded PDF, pointing at page when
// page is positive.
func (a *App) PDFURL(ctx context.Context, key string, page int) (string, error) {
	if a.objects == nil {
		return "", fmt.Errorf("object storage not configured")
	}
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, pdfKeyPrefix) || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: invalid path", ErrInvalidInput)
	}
	url, err := a.objects.PresignGet(ctx, key, a.presignExpiry)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if page > 0 {
		url += "#page=" + strconv.Itoa(page)
	}
	return url, nil
}

func (a *App) reindex(ctx context.Context, doc domain.Document) error {
	logger := util.LoggerFromContext(ctx)
	switch a.mode {
	case IndexModeQueue:
		job, err := a.queue.Enqueue(ctx, doc.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIndexing, err)
		}
		logger.Info("reindex queued", "document_id", doc.ID, "job_id", job.ID)
	default:
		n, err := a.indexer.Index(ctx, doc)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrIndexing, err)
		}
		logger.Info("document indexed", "document_id", doc.ID, "chunks", n)
	}
	return nil
}

func plainText(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: value is required", ErrInvalidInput)
	}
	text, err := textproc.HTMLToText(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: document has no text", ErrInvalidInput)
	}
	return text, nil
}

func buildStorageKey(id, filename string) string {
	name := sanitizeFilename(filepath.Base(filename))
	if name == "" || name == "." {
		name = "document.pdf"
	}
	return path.Join(strings.TrimSuffix(pdfKeyPrefix, "/"), id, name)
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f && (r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
