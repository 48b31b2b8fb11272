package app

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	// ErrIndexing means the document was saved but its chunks could not be regenerated.
	ErrIndexing = errors.New("indexing failed")
)
