package textproc

import (
	"strconv"
	"strings"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200

	// PageBreak separates PDF pages inside stored document content.
	PageBreak = "\f"
)

// Piece is one chunk of text plus its location metadata.
type Piece struct {
	Content  string
	Metadata map[string]string
}

// Normalize strips NULs and invalid UTF-8 and collapses all whitespace runs.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", " ")
	text = strings.ToValidUTF8(text, "")
	return strings.Join(strings.Fields(text), " ")
}

// Chunk splits text into rune windows of size with overlap runes shared
// between neighbours. An overlap not smaller than size disables overlap.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		return nil
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := size - overlap
	if overlap < 0 || step <= 0 {
		step = size
	}
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if part := strings.TrimSpace(string(runes[start:end])); part != "" {
			chunks = append(chunks, part)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Split chunks document content. Content containing PageBreak is treated as
// paged and each piece carries its 1-based page number.
func Split(content string, size, overlap int) []Piece {
	if !strings.Contains(content, PageBreak) {
		parts := Chunk(Normalize(content), size, overlap)
		pieces := make([]Piece, 0, len(parts))
		for idx, part := range parts {
			pieces = append(pieces, Piece{
				Content:  part,
				Metadata: map[string]string{"chunk": strconv.Itoa(idx)},
			})
		}
		return pieces
	}
	var pieces []Piece
	for i, page := range strings.Split(content, PageBreak) {
		for idx, part := range Chunk(Normalize(page), size, overlap) {
			pieces = append(pieces, Piece{
				Content: part,
				Metadata: map[string]string{
					"page":  strconv.Itoa(i + 1),
					"chunk": strconv.Itoa(idx),
				},
			})
		}
	}
	return pieces
}
