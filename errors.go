package papyr

import (
	"errors"
	"fmt"
)

// FailureKind is the stable classification reported for ingestion failures.
// Callers match on the kind, never on the wrapped message.
type FailureKind string

const (
	// FailEmptyDocument: extraction produced no usable text.
	FailEmptyDocument FailureKind = "empty_document"
	// FailUnreadableDocument: the raw bytes could not be parsed at all.
	FailUnreadableDocument FailureKind = "unreadable_document"
	// FailChunking: the chunker produced an empty sequence.
	FailChunking FailureKind = "chunking_failure"
	// FailEmbedding: the embedding capability returned an error.
	FailEmbedding FailureKind = "embedding_failure"
	// FailEmbeddingCountMismatch: batch embedding returned a different
	// number of vectors than texts submitted.
	FailEmbeddingCountMismatch FailureKind = "embedding_count_mismatch"
	// FailStorage: a store read or write failed.
	FailStorage FailureKind = "storage_failure"
)

// IngestError is a typed ingestion failure. By the time it is returned, any
// partial state has already been rolled back by a compensating delete.
type IngestError struct {
	Kind FailureKind
	Err  error
}

func (e *IngestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest: %s", e.Kind)
	}
	return fmt.Sprintf("ingest: %s: %v", e.Kind, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// KindOf returns the FailureKind of err, or "" when err is not an IngestError.
func KindOf(err error) FailureKind {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// CleanupError reports that an ingestion failed AND its compensating delete
// also failed, leaving an orphaned document record that must be reconciled
// out-of-band. It is fatal and never retried at this layer.
type CleanupError struct {
	DocumentID string
	Cause      error
	CleanupErr error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("ingest: cleanup of document %s failed: %v (original failure: %v)",
		e.DocumentID, e.CleanupErr, e.Cause)
}

func (e *CleanupError) Unwrap() error { return e.Cause }

// ErrNotFound is returned by store lookups and deletes for unknown ids.
var ErrNotFound = errors.New("not found")

// ErrInvalidQuery is returned for a missing/empty question or a
// non-positive topK.
var ErrInvalidQuery = errors.New("invalid query")

// ErrHTTP is a transport-level failure from a capability provider.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}
