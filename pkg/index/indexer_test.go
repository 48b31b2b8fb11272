package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"docvault/pkg/domain"
	"docvault/pkg/store"
	"docvault/pkg/textproc"
)

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *countingEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errors.New("embedding backend down")
	}
	return []float32{float32(len(text)), 1}, nil
}

type batchEmbedder struct {
	countingEmbedder
	batches int
}

func (e *batchEmbedder) EmbedTexts(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, float32(i)}
	}
	return out, nil
}

func TestIndexStoresEmbeddedChunks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	doc, _ := s.CreateDocument(ctx, domain.Document{Content: strings.Repeat("word ", 100)})
	x, err := New(s, &countingEmbedder{}, Options{ChunkSize: 100, ChunkOverlap: 20, BatchSize: 2, Concurrency: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n, err := x.Reindex(ctx, doc.ID)
	if err != nil {
		t.Fatalf("reindex: %v", err)
	}
	chunks, _ := s.ListChunksByDocument(ctx, doc.ID)
	if n == 0 || len(chunks) != n {
		t.Fatalf("expected %d stored chunks, got %d", n, len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i || len(c.Embedding) != 2 || c.Metadata["chunk"] == "" {
			t.Fatalf("unexpected chunk %d: %+v", i, c)
		}
	}
}

func TestIndexUsesBatchEmbedder(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	content := textproc.JoinPages([]string{strings.Repeat("a", 50), strings.Repeat("b", 50)})
	doc, _ := s.CreateDocument(ctx, domain.Document{Content: content, FileType: domain.FileTypePDF})
	e := &batchEmbedder{}
	x, _ := New(s, e, Options{ChunkSize: 30, ChunkOverlap: 0, BatchSize: 10, Concurrency: 1})
	if _, err := x.Index(ctx, doc); err != nil {
		t.Fatalf("index: %v", err)
	}
	if e.batches != 1 || e.calls != 0 {
		t.Fatalf("expected one batch call, got batches=%d single=%d", e.batches, e.calls)
	}
	chunks, _ := s.ListChunksByDocument(ctx, doc.ID)
	if chunks[0].Metadata["page"] != "1" || chunks[len(chunks)-1].Metadata["page"] != "2" {
		t.Fatalf("expected page metadata, got %+v", chunks)
	}
}

func TestIndexFailureClearsChunks(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	doc, _ := s.CreateDocument(ctx, domain.Document{Content: "old content"})
	ok := &countingEmbedder{}
	x, _ := New(s, ok, Options{})
	if _, err := x.Index(ctx, doc); err != nil {
		t.Fatalf("index: %v", err)
	}

	x.embedder = &countingEmbedder{fail: true}
	doc, _, _ = s.UpdateDocument(ctx, domain.Document{ID: doc.ID, Content: "new content"})
	if _, err := x.Index(ctx, doc); err == nil {
		t.Fatalf("expected embedding failure")
	}
	if chunks, _ := s.ListChunksByDocument(ctx, doc.ID); len(chunks) != 0 {
		t.Fatalf("expected stale chunks cleared, got %d", len(chunks))
	}
}

func TestIndexSkipsSupersededContent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	doc, _ := s.CreateDocument(ctx, domain.Document{Content: "current text"})
	x, _ := New(s, &countingEmbedder{}, Options{})
	if _, err := x.Index(ctx, doc); err != nil {
		t.Fatalf("index: %v", err)
	}

	old := doc
	old.Content = "earlier text"
	n, err := x.Index(ctx, old)
	if err != nil || n != 0 {
		t.Fatalf("expected superseded run to be skipped, n=%d err=%v", n, err)
	}
	chunks, _ := s.ListChunksByDocument(ctx, doc.ID)
	if len(chunks) != 1 || chunks[0].Content != "current text" {
		t.Fatalf("chunks overwritten by superseded run: %+v", chunks)
	}
}

func TestReindexMissingDocument(t *testing.T) {
	x, _ := New(store.NewMemoryStore(), &countingEmbedder{}, Options{})
	if _, err := x.Reindex(context.Background(), 123); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}
