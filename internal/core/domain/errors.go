package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrMalformedInput indicates a document with empty or non-text
	// content reached the chunker.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInputLimitExceeded indicates a question over the configured
	// character limit. Recoverable; produces a user-facing message.
	ErrInputLimitExceeded = errors.New("input limit exceeded")

	// ErrIndexUnavailable indicates the index store is unreachable.
	// Search must surface this as a degraded-service response, never as
	// an empty result set.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrEmbeddingModelMismatch indicates the query-time embedding model
	// differs from the one the snapshot was built with. Fatal to that
	// snapshot; requires re-ingestion, not a retry.
	ErrEmbeddingModelMismatch = errors.New("embedding model mismatch")
)

// EmbeddingError wraps a failure from the embedding provider.
type EmbeddingError struct {
	// Model is the embedding model identifier in use.
	Model string

	// Err is the underlying provider error.
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider (%s): %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// GenerationErrorKind classifies chat/completion provider failures.
type GenerationErrorKind string

const (
	// GenerationTimeout means the request exceeded its deadline.
	GenerationTimeout GenerationErrorKind = "timeout"

	// GenerationAuth means the provider rejected the credentials.
	GenerationAuth GenerationErrorKind = "auth"

	// GenerationFailed covers every other provider failure.
	GenerationFailed GenerationErrorKind = "failed"
)

// GenerationError wraps a failure from the chat/completion provider.
// Timeout and auth failures are distinguished so the orchestrator can
// decide retryability.
type GenerationError struct {
	// Kind classifies the failure.
	Kind GenerationErrorKind

	// Status is the HTTP status code, when one was received.
	Status int

	// Err is the underlying error.
	Err error
}

func (e *GenerationError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("generation provider (%s, status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("generation provider (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth a bounded retry.
// Auth failures never are; timeouts and server-side errors are.
func (e *GenerationError) Retryable() bool {
	switch e.Kind {
	case GenerationAuth:
		return false
	case GenerationTimeout:
		return true
	default:
		return e.Status == 0 || e.Status == 429 || e.Status >= 500
	}
}
