package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"docvault/pkg/domain"
)

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	docs   map[int64]domain.Document
	chunks map[int64][]domain.Chunk
	metric Metric
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[int64]domain.Document),
		chunks: make(map[int64][]domain.Chunk),
		metric: MetricCosine,
	}
}

func (s *MemoryStore) CreateDocument(_ context.Context, doc domain.Document) (domain.Document, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return domain.Document{}, ErrEmptyContent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now().UTC()
	doc.ID = s.nextID
	if doc.FileType == "" {
		doc.FileType = domain.FileTypeText
	}
	doc.CreatedAt, doc.UpdatedAt = now, now
	s.docs[doc.ID] = doc
	return doc, nil
}

func (s *MemoryStore) UpdateDocument(_ context.Context, doc domain.Document) (domain.Document, bool, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return domain.Document{}, false, ErrEmptyContent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[doc.ID]
	if !ok {
		return domain.Document{}, false, nil
	}
	cur.Content = doc.Content
	cur.HTMLString = doc.HTMLString
	if doc.FileType != "" {
		cur.FileType = doc.FileType
	}
	if doc.FilePath != nil {
		cur.FilePath = doc.FilePath
	}
	cur.UpdatedAt = time.Now().UTC()
	s.docs[doc.ID] = cur
	return cur, true, nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id int64) (domain.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id int64) (domain.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, false, nil
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return doc, true, nil
}

func (s *MemoryStore) ReplaceChunks(_ context.Context, documentID int64, content string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[documentID]
	if !ok || doc.Content != content {
		return ErrStaleContent
	}
	if len(chunks) == 0 {
		delete(s.chunks, documentID)
		return nil
	}
	cp := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s: embedding vector is empty", c.ID)
		}
		c.DocumentID = documentID
		cp[i] = c
	}
	s.chunks[documentID] = cp
	return nil
}

func (s *MemoryStore) ListChunksByDocument(_ context.Context, documentID int64) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Chunk(nil), s.chunks[documentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *MemoryStore) MatchDocuments(_ context.Context, embedding []float32, k int) ([]domain.Chunk, error) {
	if k <= 0 {
		return []domain.Chunk{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scored []domain.Chunk
	for _, list := range s.chunks {
		for _, c := range list {
			if len(c.Embedding) != len(embedding) {
				return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), len(c.Embedding))
			}
			c.Score = similarity(s.metric, embedding, c.Embedding)
			scored = append(scored, c)
		}
	}
	return topK(scored, k), nil
}

func (s *MemoryStore) KeywordMatchDocuments(_ context.Context, query string, k int) ([]domain.Chunk, error) {
	terms := tokenize(query)
	if k <= 0 || len(terms) == 0 {
		return []domain.Chunk{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var scored []domain.Chunk
	for _, list := range s.chunks {
		for _, c := range list {
			words := tokenize(c.Content)
			hits := 0
			for term := range terms {
				if _, ok := words[term]; ok {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			c.Score = float64(hits) / float64(len(terms))
			scored = append(scored, c)
		}
	}
	return topK(scored, k), nil
}

func topK(chunks []domain.Chunk, k int) []domain.Chunk {
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].Score != chunks[j].Score {
			return chunks[i].Score > chunks[j].Score
		}
		return chunks[i].ID < chunks[j].ID
	})
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	for i := range chunks {
		chunks[i].Embedding = nil
	}
	return chunks
}

func similarity(metric Metric, a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if metric == MetricInnerProduct {
		return dot
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}
