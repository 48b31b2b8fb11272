package store

import (
	"context"
	"errors"
	"testing"

	"docvault/pkg/domain"
)

func seed(t *testing.T, s Store, contents ...string) []domain.Document {
	t.Helper()
	ctx := context.Background()
	docs := make([]domain.Document, 0, len(contents))
	for _, c := range contents {
		doc, err := s.CreateDocument(ctx, domain.Document{Content: c, FileType: domain.FileTypeText})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.ReplaceChunks(ctx, doc.ID, c, []domain.Chunk{{
			ID: c, Index: 0, Content: c, Embedding: []float32{float32(len(docs) + 1), 1},
		}}); err != nil {
			t.Fatalf("replace chunks: %v", err)
		}
		docs = append(docs, doc)
	}
	return docs
}

func TestMemoryStoreDeleteRemovesExactlyOne(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	docs := seed(t, s, "alpha", "beta", "gamma")

	deleted, ok, err := s.DeleteDocument(ctx, docs[1].ID)
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if deleted.Content != "beta" {
		t.Fatalf("expected deleted beta, got %q", deleted.Content)
	}
	list, _ := s.ListDocuments(ctx)
	if len(list) != 2 || list[0].ID != docs[0].ID || list[1].ID != docs[2].ID {
		t.Fatalf("unexpected remaining documents: %+v", list)
	}
	if chunks, _ := s.ListChunksByDocument(ctx, docs[1].ID); len(chunks) != 0 {
		t.Fatalf("expected chunks removed with document")
	}
	if _, ok, _ := s.DeleteDocument(ctx, docs[1].ID); ok {
		t.Fatalf("expected second delete to report missing")
	}
}

func TestMemoryStoreUpdateReplacesContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	docs := seed(t, s, "first")
	html := "<p>second</p>"
	updated, ok, err := s.UpdateDocument(ctx, domain.Document{ID: docs[0].ID, Content: "second", HTMLString: &html})
	if err != nil || !ok {
		t.Fatalf("update: ok=%v err=%v", ok, err)
	}
	if updated.Content != "second" || *updated.HTMLString != html || updated.FileType != domain.FileTypeText {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if _, ok, _ := s.UpdateDocument(ctx, domain.Document{ID: 99, Content: "x"}); ok {
		t.Fatalf("expected missing document")
	}
	if _, err := s.CreateDocument(ctx, domain.Document{Content: "  "}); err != ErrEmptyContent {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestMemoryStoreReplaceChunksRejectsStaleContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	docs := seed(t, s, "old text")
	if _, _, err := s.UpdateDocument(ctx, domain.Document{ID: docs[0].ID, Content: "new text"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	err := s.ReplaceChunks(ctx, docs[0].ID, "old text", []domain.Chunk{{ID: "late", Content: "old text", Embedding: []float32{1, 1}}})
	if !errors.Is(err, ErrStaleContent) {
		t.Fatalf("expected ErrStaleContent, got %v", err)
	}
	chunks, _ := s.ListChunksByDocument(ctx, docs[0].ID)
	if len(chunks) != 1 || chunks[0].ID != "old text" {
		t.Fatalf("stale write must not touch chunks: %+v", chunks)
	}
	if err := s.ReplaceChunks(ctx, 42, "x", nil); !errors.Is(err, ErrStaleContent) {
		t.Fatalf("expected missing document to be stale, got %v", err)
	}
}

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "the quick fox", "lazy dog sleeps", "quick dog runs")

	kw, err := s.KeywordMatchDocuments(ctx, "quick dog", 2)
	if err != nil {
		t.Fatalf("keyword: %v", err)
	}
	if len(kw) != 2 || kw[0].ID != "quick dog runs" {
		t.Fatalf("unexpected keyword results: %+v", kw)
	}

	sim, err := s.MatchDocuments(ctx, []float32{3, 1}, 1)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(sim) != 1 || sim[0].ID != "quick dog runs" {
		t.Fatalf("unexpected similarity results: %+v", sim)
	}
	if sim[0].Embedding != nil {
		t.Fatalf("embedding should not be returned")
	}
	if _, err := s.MatchDocuments(ctx, []float32{1}, 1); err == nil {
		t.Fatalf("expected dimension mismatch")
	}
}

func TestDSNWithPassword(t *testing.T) {
	got, err := DSNWithPassword("postgres://app@db:5432/docs?sslmode=disable", "s3cr@t")
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if got != "postgres://app:s3cr%40t@db:5432/docs?sslmode=disable" {
		t.Fatalf("unexpected dsn %q", got)
	}
	got, _ = DSNWithPassword("host=db user=app", "it's")
	if got != `host=db user=app password='it\'s'` {
		t.Fatalf("unexpected key/value dsn %q", got)
	}
	got, _ = DSNWithPassword("host=db", "")
	if got != "host=db" {
		t.Fatalf("expected untouched dsn, got %q", got)
	}
	if _, err := ParseMetric("l2"); err == nil {
		t.Fatalf("expected unknown metric error")
	}
}
