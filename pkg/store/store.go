package store

import (
	"context"
	"errors"

	"docvault/pkg/domain"
)

var (
	// ErrEmptyContent is returned when a document has no text to store.
	ErrEmptyContent = errors.New("document content required")
	// ErrStaleContent is returned by ReplaceChunks when the document no longer
	// holds the content the chunks were built from.
	ErrStaleContent = errors.New("document content changed")
)

// Store defines persistence operations for documents and their chunks.
type Store interface {
	// documents
	CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error)
	UpdateDocument(ctx context.Context, doc domain.Document) (domain.Document, bool, error)
	GetDocument(ctx context.Context, id int64) (domain.Document, bool, error)
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	DeleteDocument(ctx context.Context, id int64) (domain.Document, bool, error)

	// chunks
	// ReplaceChunks swaps the chunks of a document only while its stored
	// content still equals content.
	ReplaceChunks(ctx context.Context, documentID int64, content string, chunks []domain.Chunk) error
	ListChunksByDocument(ctx context.Context, documentID int64) ([]domain.Chunk, error)
	MatchDocuments(ctx context.Context, embedding []float32, k int) ([]domain.Chunk, error)
	KeywordMatchDocuments(ctx context.Context, query string, k int) ([]domain.Chunk, error)
}

// Metric is the vector distance used for similarity ordering. It must match
// the operator class of the embedding index.
type Metric string

const (
	MetricCosine       Metric = "cosine"
	MetricInnerProduct Metric = "inner_product"
)

// ParseMetric validates a configured metric name. Empty means cosine.
func ParseMetric(raw string) (Metric, error) {
	switch Metric(raw) {
	case "", MetricCosine:
		return MetricCosine, nil
	case MetricInnerProduct:
		return MetricInnerProduct, nil
	default:
		return "", errors.New("unknown similarity metric: " + raw)
	}
}
