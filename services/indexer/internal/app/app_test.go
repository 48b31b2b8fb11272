package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"docvault/pkg/domain"
	"docvault/pkg/index"
	"docvault/pkg/queue"
	"docvault/pkg/store"
)

type stubReindexer struct {
	err error
	ids []int64
}

func (s *stubReindexer) Reindex(ctx context.Context, documentID int64) (int, error) {
	s.ids = append(s.ids, documentID)
	return 1, s.err
}

func TestProcessTreatsMissingDocumentAsDone(t *testing.T) {
	a := &App{indexer: &stubReindexer{err: index.ErrDocumentNotFound}, logger: discardLogger()}
	if err := a.process(context.Background(), queue.Job{ID: "j", DocumentID: 9}); err != nil {
		t.Fatalf("expected nil for deleted document, got %v", err)
	}
}

func TestProcessReturnsIndexErrors(t *testing.T) {
	boom := errors.New("embedding backend down")
	a := &App{indexer: &stubReindexer{err: boom}, logger: discardLogger()}
	if err := a.process(context.Background(), queue.Job{ID: "j", DocumentID: 9}); !errors.Is(err, boom) {
		t.Fatalf("expected index error, got %v", err)
	}
}

type vectorEmbedder struct{}

func (vectorEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestConsumesQueuedReindex(t *testing.T) {
	srv := miniredis.RunT(t)
	jobs, err := queue.NewReindexQueue(queue.Config{
		Addr:       srv.Addr(),
		Stream:     "test:reindex",
		Consumer:   "indexer-test",
		Block:      20 * time.Millisecond,
		RetryDelay: -1,
	})
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	docs := store.NewMemoryStore()
	indexer, err := index.New(docs, vectorEmbedder{}, index.Options{})
	if err != nil {
		t.Fatalf("indexer: %v", err)
	}
	a, err := New(Config{Indexer: indexer, Queue: jobs, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	doc, _ := docs.CreateDocument(ctx, domain.Document{Content: "Invoices are due in 30 days.", FileType: domain.FileTypeText})
	job, err := a.Enqueue(ctx, doc.ID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	waitForStatus(t, a, job.ID, queue.StatusDone)
	chunks, _ := docs.ListChunksByDocument(ctx, doc.ID)
	if len(chunks) != 1 || chunks[0].Content != "Invoices are due in 30 days." {
		t.Fatalf("unexpected chunks %+v", chunks)
	}

	missing, err := a.Enqueue(ctx, doc.ID+50)
	if err != nil {
		t.Fatalf("enqueue missing: %v", err)
	}
	waitForStatus(t, a, missing.ID, queue.StatusDone)

	cancel()
	a.Wait()
}

func TestEnqueueRejectsInvalidID(t *testing.T) {
	a := &App{}
	if _, err := a.Enqueue(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero document id")
	}
}

func waitForStatus(t *testing.T, a *App, jobID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job, _, _ := a.GetJob(context.Background(), jobID)
		if job.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s: expected status %q, got %q", jobID, want, job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
