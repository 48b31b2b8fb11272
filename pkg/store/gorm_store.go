package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"docvault/pkg/domain"
)

const migrateLockID int64 = 40217713

const (
	defaultEmbeddingDim = 1536
	textSearchConfig    = "english"
)

type GormStoreOptions struct {
	EmbeddingDim int
	Metric       Metric
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// WithMetric selects the similarity metric for MatchDocuments and the index.
func WithMetric(metric Metric) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Metric = metric
	}
}

// GormStore implements Store using GORM + Postgres + pgvector.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
	metric       Metric
}

// NewGormStore opens the DB and runs migrations under an advisory lock.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{EmbeddingDim: defaultEmbeddingDim, Metric: MetricCosine}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	if opts.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension: %d", opts.EmbeddingDim)
	}
	if _, err := ParseMetric(string(opts.Metric)); err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &GormStore{db: db, embeddingDim: opts.EmbeddingDim, metric: opts.Metric}
	if err := withMigrationLock(db, s.migrate); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) migrate(tx *gorm.DB) error {
	if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create pgvector extension: %w", err)
	}
	if err := tx.AutoMigrate(&DocumentModel{}, &ChunkModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := tx.Exec(fmt.Sprintf(
		"ALTER TABLE document_chunks ALTER COLUMN embedding TYPE vector(%d)", s.embeddingDim,
	)).Error; err != nil {
		return fmt.Errorf("alter chunk embedding type: %w", err)
	}
	if err := tx.Exec(fmt.Sprintf(`
		ALTER TABLE document_chunks
		ADD COLUMN IF NOT EXISTS content_tsv tsvector
		GENERATED ALWAYS AS (to_tsvector('%s', content)) STORED
	`, textSearchConfig)).Error; err != nil {
		return fmt.Errorf("add chunk tsvector: %w", err)
	}
	if err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS document_chunks_content_tsv_idx ON document_chunks USING gin (content_tsv)",
	).Error; err != nil {
		return fmt.Errorf("create chunk text index: %w", err)
	}
	if err := tx.Exec(fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS document_chunks_embedding_%s_idx ON document_chunks USING hnsw (embedding %s)",
		s.metric, s.opClass(),
	)).Error; err != nil {
		return fmt.Errorf("create chunk vector index: %w", err)
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			DELETE FROM document_chunks c
			WHERE NOT EXISTS (SELECT 1 FROM documents d WHERE d.id = c.document_id);
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'document_chunks'
				AND constraint_name = 'document_chunks_document_id_fkey'
			) THEN
				ALTER TABLE document_chunks
				ADD CONSTRAINT document_chunks_document_id_fkey
				FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure document foreign keys: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateDocument inserts a document and returns it with the assigned ID.
func (s *GormStore) CreateDocument(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return domain.Document{}, ErrEmptyContent
	}
	model := documentToModel(doc)
	model.ID = 0
	now := time.Now().UTC()
	model.CreatedAt, model.UpdatedAt = now, now
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Document{}, err
	}
	return documentFromModel(model), nil
}

// UpdateDocument replaces content, html and file path of an existing document.
func (s *GormStore) UpdateDocument(ctx context.Context, doc domain.Document) (domain.Document, bool, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return domain.Document{}, false, ErrEmptyContent
	}
	var model DocumentModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", doc.ID).Error; err != nil {
			return err
		}
		model.Content = doc.Content
		model.HTMLString = doc.HTMLString
		if doc.FileType != "" {
			model.FileType = string(doc.FileType)
		}
		if doc.FilePath != nil {
			model.FilePath = doc.FilePath
		}
		model.UpdatedAt = time.Now().UTC()
		return tx.Save(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(ctx context.Context, id int64) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns all documents ordered by id.
func (s *GormStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// DeleteDocument removes exactly one document and its chunks, returning the deleted row.
func (s *GormStore) DeleteDocument(ctx context.Context, id int64) (domain.Document, bool, error) {
	var model DocumentModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		res := tx.Delete(&DocumentModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("delete document %d: %d rows affected", id, res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ReplaceChunks replaces all chunks for a document. A nil slice clears them.
// The document row is locked for the swap so a concurrent update either
// waits for it or makes it fail with ErrStaleContent. A deleted document is
// stale as well.
func (s *GormStore) ReplaceChunks(ctx context.Context, documentID int64, content string, chunks []domain.Chunk) error {
	models := make([]ChunkModel, 0, len(chunks))
	now := time.Now().UTC()
	for _, chunk := range chunks {
		if err := s.validateEmbeddingDim(chunk.Embedding); err != nil {
			return fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		model := chunkToModel(chunk)
		model.DocumentID = documentID
		model.CreatedAt = now
		models = append(models, model)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current DocumentModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "content").
			First(&current, "id = ?", documentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStaleContent
			}
			return err
		}
		if current.Content != content {
			return ErrStaleContent
		}
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// ListChunksByDocument returns chunks of a document in chunk order.
func (s *GormStore) ListChunksByDocument(ctx context.Context, documentID int64) ([]domain.Chunk, error) {
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Model(&ChunkModel{}).
		Select("id, document_id, chunk_index, content, metadata").
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rowsToChunks(rows), nil
}

// MatchDocuments returns the k chunks nearest to embedding under the store metric.
func (s *GormStore) MatchDocuments(ctx context.Context, embedding []float32, k int) ([]domain.Chunk, error) {
	if k <= 0 {
		return []domain.Chunk{}, nil
	}
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return nil, err
	}
	vec := pgvector.NewVector(embedding)
	op, score := s.distance()
	query := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, metadata, %s AS score
		FROM document_chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding %s ?
		LIMIT ?`, score, op)
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Raw(query, vec, vec, k).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("match documents: %w", err)
	}
	return rowsToChunks(rows), nil
}

// KeywordMatchDocuments ranks chunks by full-text relevance to query.
func (s *GormStore) KeywordMatchDocuments(ctx context.Context, query string, k int) ([]domain.Chunk, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []domain.Chunk{}, nil
	}
	sqlText := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, metadata,
			ts_rank(content_tsv, plainto_tsquery('%[1]s', ?)) AS score
		FROM document_chunks
		WHERE content_tsv @@ plainto_tsquery('%[1]s', ?)
		ORDER BY score DESC, id ASC
		LIMIT ?`, textSearchConfig)
	var rows []chunkRow
	if err := s.db.WithContext(ctx).Raw(sqlText, query, query, k).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("keyword match documents: %w", err)
	}
	return rowsToChunks(rows), nil
}

// distance returns the ordering operator and score expression; the score
// placeholder is bound to the query vector.
func (s *GormStore) distance() (string, string) {
	if s.metric == MetricInnerProduct {
		return "<#>", "(embedding <#> ?) * -1"
	}
	return "<=>", "1 - (embedding <=> ?)"
}

func (s *GormStore) opClass() string {
	if s.metric == MetricInnerProduct {
		return "vector_ip_ops"
	}
	return "vector_cosine_ops"
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

type chunkRow struct {
	ID         string
	DocumentID int64
	ChunkIndex int
	Content    string
	Metadata   datatypes.JSON
	Score      float64
}

func rowsToChunks(rows []chunkRow) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(rows))
	for _, row := range rows {
		var meta map[string]string
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &meta)
		}
		chunks = append(chunks, domain.Chunk{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Index:      row.ChunkIndex,
			Content:    row.Content,
			Metadata:   meta,
			Score:      row.Score,
		})
	}
	return chunks
}

func documentToModel(d domain.Document) DocumentModel {
	fileType := d.FileType
	if fileType == "" {
		fileType = domain.FileTypeText
	}
	return DocumentModel{
		ID:         d.ID,
		Content:    d.Content,
		FileType:   string(fileType),
		HTMLString: d.HTMLString,
		FilePath:   d.FilePath,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:         m.ID,
		Content:    m.Content,
		FileType:   domain.FileType(m.FileType),
		HTMLString: m.HTMLString,
		FilePath:   m.FilePath,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func chunkToModel(chunk domain.Chunk) ChunkModel {
	meta, _ := json.Marshal(chunk.Metadata)
	vec := pgvector.NewVector(chunk.Embedding)
	return ChunkModel{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		ChunkIndex: chunk.Index,
		Content:    chunk.Content,
		Metadata:   meta,
		Embedding:  &vec,
	}
}
