package papyr

import "context"

// Store abstracts document metadata persistence plus vector search over
// chunk embeddings. All implementations must be safe for concurrent use.
//
// Visibility contract: chunks written by PutChunks become observable to
// SearchChunks all at once, on successful return — a concurrent reader never
// sees a document with a partial chunk set. DeleteDocument removes the
// document and cascades to every chunk atomically.
type Store interface {
	// CreateDocument inserts a new document record. The record carries no
	// chunks yet; it becomes searchable only after PutChunks succeeds.
	CreateDocument(ctx context.Context, doc Document) error
	// GetDocument returns the full record including metadata.
	// Returns ErrNotFound for an unknown id.
	GetDocument(ctx context.Context, id string) (Document, error)
	// ListDocuments returns all documents, most recently created first.
	// Metadata is excluded from the listing; use GetDocument for the
	// full record.
	ListDocuments(ctx context.Context) ([]Document, error)
	// DeleteDocument removes the document and all its chunks.
	// Returns ErrNotFound for an unknown id.
	DeleteDocument(ctx context.Context, id string) error

	// PutChunks stores all chunks for a document as a single logical write:
	// either every chunk becomes visible or none does.
	PutChunks(ctx context.Context, documentID string, chunks []Chunk) error
	// SearchChunks returns at most topK chunks ordered by descending cosine
	// similarity to embedding. Ties break by ascending chunk index, then
	// ascending document id. A non-empty documentID restricts the search to
	// that document.
	SearchChunks(ctx context.Context, embedding []float32, topK int, documentID string) ([]ScoredChunk, error)

	// Init creates the schema. Safe to call multiple times.
	Init(ctx context.Context) error
	Close() error
}
