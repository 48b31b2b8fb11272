package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docvault/pkg/index"
	"docvault/pkg/queue"
)

// Reindexer regenerates the chunks of a stored document.
type Reindexer interface {
	Reindex(ctx context.Context, documentID int64) (int, error)
}

// Jobs is the reindex job queue.
type Jobs interface {
	Enqueue(ctx context.Context, documentID int64) (queue.Job, error)
	GetJob(ctx context.Context, jobID string) (queue.Job, bool, error)
	Start(ctx context.Context, concurrency int, handler queue.Handler) error
	Wait()
}

type Config struct {
	Indexer     Reindexer
	Queue       Jobs
	Concurrency int
	Logger      *slog.Logger
}

// App consumes reindex jobs and runs the indexer for each.
type App struct {
	indexer     Reindexer
	queue       Jobs
	concurrency int
	logger      *slog.Logger
}

func New(cfg Config) (*App, error) {
	if cfg.Indexer == nil || cfg.Queue == nil {
		return nil, fmt.Errorf("indexer and queue required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &App{
		indexer:     cfg.Indexer,
		queue:       cfg.Queue,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}, nil
}

// Start launches the queue consumers. They stop when ctx is done; Wait
// blocks until they have.
func (a *App) Start(ctx context.Context) error {
	return a.queue.Start(ctx, a.concurrency, a.process)
}

func (a *App) Wait() { a.queue.Wait() }

// Enqueue schedules a manual reindex of one document.
func (a *App) Enqueue(ctx context.Context, documentID int64) (queue.Job, error) {
	if documentID <= 0 {
		return queue.Job{}, fmt.Errorf("documentId required")
	}
	return a.queue.Enqueue(ctx, documentID)
}

// GetJob returns a job by ID.
func (a *App) GetJob(ctx context.Context, jobID string) (queue.Job, bool, error) {
	return a.queue.GetJob(ctx, jobID)
}

func (a *App) process(ctx context.Context, job queue.Job) error {
	n, err := a.indexer.Reindex(ctx, job.DocumentID)
	if errors.Is(err, index.ErrDocumentNotFound) {
		// deleted after enqueue; its chunks went with it
		a.logger.Info("skip reindex of deleted document", "job_id", job.ID, "document_id", job.DocumentID)
		return nil
	}
	if err != nil {
		a.logger.Warn("reindex failed", "job_id", job.ID, "document_id", job.DocumentID, "attempt", job.Attempts, "err", err)
		return err
	}
	a.logger.Info("document reindexed", "job_id", job.ID, "document_id", job.DocumentID, "chunks", n)
	return nil
}
