package domain

import "time"

type FileType string

const (
	FileTypeText FileType = "TEXT"
	FileTypePDF  FileType = "PDF"
)

// Document is a stored text or PDF document. ID is assigned by the store.
type Document struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	FileType   FileType  `json:"file_type"`
	HTMLString *string   `json:"html_string,omitempty"`
	FilePath   *string   `json:"file_path,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Chunk is a retrievable span of a document's text. Its embedding lives in the store.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID int64             `json:"documentId"`
	Index      int               `json:"index"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Score      float64           `json:"score"`
	Embedding  []float32         `json:"-"`
}

// Turn is one prior question/answer exchange in a query session.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Source struct {
	Label      string `json:"label"`
	DocumentID int64  `json:"documentId"`
	Location   string `json:"location,omitempty"`
	Snippet    string `json:"snippet"`
}

// Answer is the serialized result of one query orchestration.
type Answer struct {
	Text      string    `json:"text"`
	Question  string    `json:"question"`
	Sources   []Source  `json:"sources"`
	SessionID string    `json:"sessionId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
