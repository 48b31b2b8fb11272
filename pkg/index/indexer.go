// Package index turns stored documents into embedded chunks.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docvault/pkg/ai"
	"docvault/pkg/domain"
	"docvault/pkg/store"
	"docvault/pkg/textproc"
)

// ErrDocumentNotFound is returned by Reindex for a missing document.
var ErrDocumentNotFound = errors.New("document not found")

// ChunkStore is the part of the document store the indexer writes to.
type ChunkStore interface {
	GetDocument(ctx context.Context, id int64) (domain.Document, bool, error)
	ReplaceChunks(ctx context.Context, documentID int64, content string, chunks []domain.Chunk) error
}

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	Concurrency  int
	Logger       *slog.Logger
}

// Indexer chunks documents, embeds the chunks and replaces them in the store.
type Indexer struct {
	store    ChunkStore
	embedder ai.Embedder
	opts     Options
}

func New(store ChunkStore, embedder ai.Embedder, opts Options) (*Indexer, error) {
	if store == nil || embedder == nil {
		return nil, fmt.Errorf("store and embedder required")
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = textproc.DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = min(textproc.DefaultChunkOverlap, opts.ChunkSize/2)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Indexer{store: store, embedder: embedder, opts: opts}, nil
}

// Reindex loads a document by id and indexes it.
func (x *Indexer) Reindex(ctx context.Context, documentID int64) (int, error) {
	doc, ok, err := x.store.GetDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrDocumentNotFound
	}
	return x.Index(ctx, doc)
}

// Index regenerates all chunks of doc and returns how many were stored. On
// an embedding failure the document is left with no chunks. When the stored
// document changed while embedding ran, nothing is written and Index returns
// 0 with a nil error; the run for the newer content owns the chunks.
func (x *Indexer) Index(ctx context.Context, doc domain.Document) (int, error) {
	pieces := textproc.Split(doc.Content, x.opts.ChunkSize, x.opts.ChunkOverlap)
	chunks := make([]domain.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    p.Content,
			Metadata:   p.Metadata,
		}
	}
	if err := x.embed(ctx, chunks); err != nil {
		clearErr := x.store.ReplaceChunks(ctx, doc.ID, doc.Content, nil)
		if clearErr != nil && !errors.Is(clearErr, store.ErrStaleContent) {
			x.opts.Logger.Error("clear stale chunks failed", "document_id", doc.ID, "err", clearErr)
		}
		return 0, fmt.Errorf("embed document %d: %w", doc.ID, err)
	}
	if err := x.store.ReplaceChunks(ctx, doc.ID, doc.Content, chunks); err != nil {
		if errors.Is(err, store.ErrStaleContent) {
			x.opts.Logger.Debug("skip chunks of superseded content", "document_id", doc.ID)
			return 0, nil
		}
		return 0, fmt.Errorf("store chunks for document %d: %w", doc.ID, err)
	}
	x.opts.Logger.Debug("document indexed", "document_id", doc.ID, "chunks", len(chunks))
	return len(chunks), nil
}

// embed fills Embedding on every chunk in place, running batches concurrently.
func (x *Indexer) embed(ctx context.Context, chunks []domain.Chunk) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Concurrency)
	for start := 0; start < len(chunks); start += x.opts.BatchSize {
		batch := chunks[start:min(start+x.opts.BatchSize, len(chunks))]
		g.Go(func() error {
			return x.embedBatch(gctx, batch)
		})
	}
	return g.Wait()
}

func (x *Indexer) embedBatch(ctx context.Context, batch []domain.Chunk) error {
	if be, ok := x.embedder.(ai.BatchEmbedder); ok && len(batch) > 1 {
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := be.EmbedTexts(ctx, texts, ai.TaskRetrievalDocument)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		return nil
	}
	for i := range batch {
		vec, err := x.embedder.EmbedText(ctx, batch[i].Content, ai.TaskRetrievalDocument)
		if err != nil {
			return err
		}
		batch[i].Embedding = vec
	}
	return nil
}
