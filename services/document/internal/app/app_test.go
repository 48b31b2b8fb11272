package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docvault/pkg/domain"
	"docvault/pkg/index"
	"docvault/pkg/queue"
	"docvault/pkg/storage"
	"docvault/pkg/store"
)

type fakeEmbedder struct {
	fail bool
}

func (e fakeEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{1, float32(len(text))}, nil
}

type recordingQueue struct {
	ids []int64
	err error
}

func (q *recordingQueue) Enqueue(ctx context.Context, documentID int64) (queue.Job, error) {
	if q.err != nil {
		return queue.Job{}, q.err
	}
	q.ids = append(q.ids, documentID)
	return queue.Job{ID: "job-1", DocumentID: documentID, Status: queue.StatusQueued}, nil
}

func newSyncApp(t *testing.T, embedder fakeEmbedder) (*App, *store.MemoryStore, *storage.MemoryStore) {
	t.Helper()
	docs := store.NewMemoryStore()
	objects := storage.NewMemoryStore()
	indexer, err := index.New(docs, embedder, index.Options{ChunkSize: 50, ChunkOverlap: 10})
	if err != nil {
		t.Fatalf("indexer: %v", err)
	}
	a, err := New(Config{Store: docs, Objects: objects, Indexer: indexer})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, docs, objects
}

func TestCreateTextExtractsPlainText(t *testing.T) {
	a, docs, _ := newSyncApp(t, fakeEmbedder{})
	ctx := context.Background()
	html := "<h1>Billing</h1><p>Invoices are due in <b>30</b> days.</p>"
	doc, err := a.CreateText(ctx, html)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.Content != "Billing\nInvoices are due in 30 days." {
		t.Fatalf("unexpected content %q", doc.Content)
	}
	if doc.FileType != domain.FileTypeText || doc.HTMLString == nil || *doc.HTMLString != html {
		t.Fatalf("unexpected document %+v", doc)
	}
	chunks, _ := docs.ListChunksByDocument(ctx, doc.ID)
	if len(chunks) == 0 {
		t.Fatalf("expected chunks after create")
	}
}

func TestCreateTextRejectsEmptyValue(t *testing.T) {
	a, _, _ := newSyncApp(t, fakeEmbedder{})
	for _, value := range []string{"", "   ", "<p> </p>"} {
		if _, err := a.CreateText(context.Background(), value); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("value %q: expected ErrInvalidInput, got %v", value, err)
		}
	}
}

func TestUpdateReplacesChunks(t *testing.T) {
	a, docs, _ := newSyncApp(t, fakeEmbedder{})
	ctx := context.Background()
	doc, err := a.CreateText(ctx, "<p>"+strings.Repeat("alpha ", 40)+"</p>")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	before, _ := docs.ListChunksByDocument(ctx, doc.ID)

	updated, err := a.UpdateText(ctx, doc.ID, "<p>beta</p>")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Content != "beta" {
		t.Fatalf("unexpected content %q", updated.Content)
	}
	after, _ := docs.ListChunksByDocument(ctx, doc.ID)
	if len(after) != 1 || len(before) <= 1 || after[0].Content != "beta" {
		t.Fatalf("expected chunks to be replaced, before=%d after=%+v", len(before), after)
	}

	if _, err := a.UpdateText(ctx, doc.ID+100, "<p>x</p>"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// gatedEmbedder blocks texts containing hold until release is closed.
type gatedEmbedder struct {
	hold    string
	started chan struct{}
	release chan struct{}
}

func (e *gatedEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	if strings.Contains(text, e.hold) {
		close(e.started)
		<-e.release
	}
	return []float32{1, float32(len(text))}, nil
}

func TestConcurrentUpdatesKeepNewestChunks(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryStore()
	embedder := &gatedEmbedder{hold: "alpha", started: make(chan struct{}), release: make(chan struct{})}
	indexer, err := index.New(docs, embedder, index.Options{ChunkSize: 50, ChunkOverlap: 10})
	if err != nil {
		t.Fatalf("indexer: %v", err)
	}
	a, err := New(Config{Store: docs, Objects: storage.NewMemoryStore(), Indexer: indexer})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	doc, err := a.CreateText(ctx, "<p>initial</p>")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.UpdateText(ctx, doc.ID, "<p>alpha old</p>")
		done <- err
	}()
	<-embedder.started
	if _, err := a.UpdateText(ctx, doc.ID, "<p>beta new</p>"); err != nil {
		t.Fatalf("second update: %v", err)
	}
	close(embedder.release)
	if err := <-done; err != nil {
		t.Fatalf("first update: %v", err)
	}

	live, _ := a.GetDocument(ctx, doc.ID)
	chunks, _ := docs.ListChunksByDocument(ctx, doc.ID)
	if live.Content != "beta new" || len(chunks) != 1 || chunks[0].Content != "beta new" {
		t.Fatalf("live content=%q chunks=%+v", live.Content, chunks)
	}
}

func TestSyncIndexFailureKeepsDocument(t *testing.T) {
	a, docs, _ := newSyncApp(t, fakeEmbedder{fail: true})
	ctx := context.Background()
	_, err := a.CreateText(ctx, "<p>hello</p>")
	if !errors.Is(err, ErrIndexing) {
		t.Fatalf("expected ErrIndexing, got %v", err)
	}
	list, _ := docs.ListDocuments(ctx)
	if len(list) != 1 {
		t.Fatalf("expected document to be saved, got %d", len(list))
	}
	chunks, _ := docs.ListChunksByDocument(ctx, list[0].ID)
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks after failed indexing, got %d", len(chunks))
	}
}

func TestDeleteRemovesOnlyTarget(t *testing.T) {
	a, docs, _ := newSyncApp(t, fakeEmbedder{})
	ctx := context.Background()
	first, _ := a.CreateText(ctx, "<p>first</p>")
	second, _ := a.CreateText(ctx, "<p>second</p>")

	deleted, err := a.DeleteDocument(ctx, first.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted.ID != first.ID {
		t.Fatalf("deleted wrong document %+v", deleted)
	}
	list, _ := docs.ListDocuments(ctx)
	if len(list) != 1 || list[0].ID != second.ID {
		t.Fatalf("expected only second document left, got %+v", list)
	}
	if chunks, _ := docs.ListChunksByDocument(ctx, first.ID); len(chunks) != 0 {
		t.Fatalf("expected chunks of deleted document to be gone")
	}
	if _, err := a.DeleteDocument(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestUploadPDFRejectsNonPDF(t *testing.T) {
	a, docs, _ := newSyncApp(t, fakeEmbedder{})
	ctx := context.Background()
	if _, err := a.UploadPDF(ctx, "notes.txt", []byte("plain text")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := a.UploadPDF(ctx, "broken.pdf", []byte("%PDF-1.4 garbage")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unreadable PDF, got %v", err)
	}
	if list, _ := docs.ListDocuments(ctx); len(list) != 0 {
		t.Fatalf("expected no documents, got %d", len(list))
	}
}

func TestPDFURLAppendsPage(t *testing.T) {
	a, _, objects := newSyncApp(t, fakeEmbedder{})
	ctx := context.Background()
	key := "pdfs/abc/manual.pdf"
	if err := objects.Put(ctx, key, strings.NewReader("%PDF-"), 5, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := a.PDFURL(ctx, key, 3)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.HasSuffix(url, "#page=3") || !strings.Contains(url, key) {
		t.Fatalf("unexpected url %q", url)
	}
	if _, err := a.PDFURL(ctx, "pdfs/missing.pdf", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := a.PDFURL(ctx, "../secret", 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestQueueModeEnqueues(t *testing.T) {
	docs := store.NewMemoryStore()
	q := &recordingQueue{}
	a, err := New(Config{Store: docs, Queue: q, IndexMode: IndexModeQueue})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	doc, err := a.CreateText(context.Background(), "<p>queued</p>")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(q.ids) != 1 || q.ids[0] != doc.ID {
		t.Fatalf("expected one enqueued job for %d, got %v", doc.ID, q.ids)
	}

	q.err = errors.New("redis down")
	if _, err := a.CreateText(context.Background(), "<p>again</p>"); !errors.Is(err, ErrIndexing) {
		t.Fatalf("expected ErrIndexing, got %v", err)
	}
}

func TestNewValidatesIndexMode(t *testing.T) {
	docs := store.NewMemoryStore()
	if _, err := New(Config{Store: docs}); err == nil {
		t.Fatalf("expected error without indexer in sync mode")
	}
	if _, err := New(Config{Store: docs, IndexMode: IndexModeQueue}); err == nil {
		t.Fatalf("expected error without queue in queue mode")
	}
	if _, err := New(Config{Store: docs, IndexMode: "later"}); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Annual Report (2024).pdf": "Annual_Report_2024_.pdf",
		"résumé.pdf":               "r_sum_.pdf",
		"   ":                      "",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if key := buildStorageKey("id1", "../../etc/passwd"); key != "pdfs/id1/passwd" {
		t.Fatalf("unexpected key %q", key)
	}
}
