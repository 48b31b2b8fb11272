package textproc

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoText is returned for PDFs without an extractable text layer.
var ErrNoText = errors.New("no text extracted from PDF")

// PDFPages extracts plain text per page. Pages that fail to decode are kept
// as empty strings so page numbers stay aligned.
func PDFPages(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	pages = make([]string, 0, total)
	found := false
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			pages = append(pages, "")
			continue
		}
		text = Normalize(text)
		if text != "" {
			found = true
		}
		pages = append(pages, text)
	}
	if !found {
		return nil, ErrNoText
	}
	return pages, nil
}

// JoinPages builds paged document content understood by Split.
func JoinPages(pages []string) string {
	return strings.Join(pages, PageBreak)
}
