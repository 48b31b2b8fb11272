package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type DocumentModel struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	Content    string    `gorm:"type:text;not null"`
	FileType   string    `gorm:"not null;default:TEXT"`
	HTMLString *string   `gorm:"column:html_string;type:text"`
	FilePath   *string   `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

// ChunkModel rows are owned by a document. content_tsv is a generated column
// added by migration and never written by gorm.
type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	DocumentID int64            `gorm:"not null;index"`
	ChunkIndex int              `gorm:"not null"`
	Content    string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(1536)"`
	CreatedAt  time.Time        `gorm:"not null"`
}

func (ChunkModel) TableName() string { return "document_chunks" }
