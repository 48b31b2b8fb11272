package rag

import (
	"context"
	"errors"
	"net"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrEmbeddingService  = errors.New("embedding service failed")
	ErrSearchService     = errors.New("search service failed")
	ErrGenerationService = errors.New("generation service failed")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
)

// ServiceError is a failed call to an external backend. Error returns the
// backend message unmodified; errors.Is matches Kind, the wrapped error and,
// when the call ran out of time, ErrUpstreamTimeout.
type ServiceError struct {
	Kind    error
	Timeout bool
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Err.Error()
}

func (e *ServiceError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Timeout {
		errs = append(errs, ErrUpstreamTimeout)
	}
	return errs
}

// serviceError classifies err as a failure of the given kind. Errors already
// classified are returned as is.
func serviceError(kind, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	return &ServiceError{Kind: kind, Timeout: isTimeout(err), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ValidationError is a request rejected before any backend call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}
