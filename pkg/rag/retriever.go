package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docvault/pkg/ai"
	"docvault/pkg/domain"
)

const (
	DefaultSimilarityK = 2
	DefaultKeywordK    = 2
	DefaultCallTimeout = 30 * time.Second
)

// Searcher runs the two search primitives of the document store.
type Searcher interface {
	MatchDocuments(ctx context.Context, embedding []float32, k int) ([]domain.Chunk, error)
	KeywordMatchDocuments(ctx context.Context, query string, k int) ([]domain.Chunk, error)
}

// RetrieverOptions tunes HybridRetriever.
type RetrieverOptions struct {
	SimilarityK int
	KeywordK    int
	// CallTimeout bounds each backend call separately.
	CallTimeout time.Duration
	// AllowPartial returns whichever search succeeded instead of failing.
	AllowPartial bool
	Logger       *slog.Logger
}

// HybridRetriever combines vector similarity and keyword search.
type HybridRetriever struct {
	embedder ai.Embedder
	searcher Searcher
	opts     RetrieverOptions
}

func NewHybridRetriever(embedder ai.Embedder, searcher Searcher, opts RetrieverOptions) (*HybridRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher required")
	}
	if opts.SimilarityK <= 0 {
		opts.SimilarityK = DefaultSimilarityK
	}
	if opts.KeywordK <= 0 {
		opts.KeywordK = DefaultKeywordK
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &HybridRetriever{embedder: embedder, searcher: searcher, opts: opts}, nil
}

// Retrieve embeds query, runs similarity and keyword search and returns their
// union: similarity hits first in rank order, then keyword-only hits in theirs.
// A chunk found by both keeps its similarity position. Non-positive k values
// fall back to the configured defaults.
func (r *HybridRetriever) Retrieve(ctx context.Context, query string, kSimilarity, kKeyword int) ([]domain.Chunk, error) {
	if kSimilarity <= 0 {
		kSimilarity = r.opts.SimilarityK
	}
	if kKeyword <= 0 {
		kKeyword = r.opts.KeywordK
	}
	vec, err := r.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	similar, simErr := r.similarity(ctx, vec, kSimilarity)
	if simErr != nil && !r.opts.AllowPartial {
		return nil, simErr
	}
	keyword, kwErr := r.keyword(ctx, query, kKeyword)
	if kwErr != nil && !r.opts.AllowPartial {
		return nil, kwErr
	}
	if simErr != nil && kwErr != nil {
		return nil, simErr
	}
	if simErr != nil {
		r.opts.Logger.Warn("similarity search failed, using keyword results", "err", simErr)
	}
	if kwErr != nil {
		r.opts.Logger.Warn("keyword search failed, using similarity results", "err", kwErr)
	}
	return Merge(similar, keyword), nil
}

func (r *HybridRetriever) embed(ctx context.Context, query string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	vec, err := r.embedder.EmbedText(callCtx, query, ai.TaskRetrievalQuery)
	if err != nil {
		return nil, serviceError(ErrEmbeddingService, err)
	}
	return vec, nil
}

func (r *HybridRetriever) similarity(ctx context.Context, vec []float32, k int) ([]domain.Chunk, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	chunks, err := r.searcher.MatchDocuments(callCtx, vec, k)
	if err != nil {
		return nil, serviceError(ErrSearchService, err)
	}
	return chunks, nil
}

func (r *HybridRetriever) keyword(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	chunks, err := r.searcher.KeywordMatchDocuments(callCtx, query, k)
	if err != nil {
		return nil, serviceError(ErrSearchService, err)
	}
	return chunks, nil
}

// Merge deduplicates by chunk ID keeping the first occurrence.
func Merge(similar, keyword []domain.Chunk) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(similar)+len(keyword))
	seen := make(map[string]struct{}, len(similar)+len(keyword))
	for _, list := range [][]domain.Chunk{similar, keyword} {
		for _, c := range list {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
