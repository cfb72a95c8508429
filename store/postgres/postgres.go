// Package postgres implements papyr.Store using PostgreSQL with pgvector
// for native vector similarity search.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	papyr "github.com/papyrhq/papyr"
)

// Store implements papyr.Store backed by PostgreSQL with pgvector.
// Vector search uses an HNSW index with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 384, 768).
// When set, CREATE TABLE uses vector(N) instead of untyped vector, enabling
// better index optimization and catching dimension mismatches at insert time.
// Only affects new table creation (no ALTER on existing tables).
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
// Higher values improve recall at the cost of memory. Default: pgvector's 16.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter (build-time
// candidate list size). Higher values improve index quality at the cost of
// slower builds. Default: pgvector's 64.
// Only affects index creation (CREATE INDEX IF NOT EXISTS).
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter (query-time candidate list
// size). Higher values improve recall at the cost of latency. Default:
// pgvector's 40. Applied during Init().
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

var _ papyr.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// vectorType returns "vector" or "vector(N)" depending on config.
func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

// hnswWithClause returns the WITH (...) clause for HNSW index creation,
// or an empty string if no tuning params are set.
func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all required tables, and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			metadata JSONB,
			created_at BIGINT NOT NULL
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding %s,
			UNIQUE(document_id, chunk_index)
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS chunks_embedding_idx ON chunks USING hnsw (embedding vector_cosine_ops)%s`, hnswWith),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}

	return nil
}

// CreateDocument inserts a new document record. Chunks are attached later
// by PutChunks; until then the document is invisible to search.
func (s *Store) CreateDocument(ctx context.Context, doc papyr.Document) error {
	var metaJSON *string
	if len(doc.Metadata) > 0 {
		data, _ := json.Marshal(doc.Metadata)
		v := string(data)
		metaJSON = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, source, metadata, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		doc.ID, doc.Title, doc.Source, metaJSON, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create document: %w", err)
	}
	return nil
}

// GetDocument returns one document by id, or papyr.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (papyr.Document, error) {
	var d papyr.Document
	var metaJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, source, metadata, created_at FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Title, &d.Source, &metaJSON, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return papyr.Document{}, papyr.ErrNotFound
	}
	if err != nil {
		return papyr.Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	if metaJSON != nil {
		_ = json.Unmarshal(metaJSON, &d.Metadata)
	}
	return d, nil
}

// ListDocuments returns all documents ordered by most recently created
// first. Metadata is not part of the listing; GetDocument returns the
// full record.
func (s *Store) ListDocuments(ctx context.Context) ([]papyr.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, source, created_at
		 FROM documents
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []papyr.Document
	for rows.Next() {
		var d papyr.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document; its chunks cascade via the foreign key.
// Returns papyr.ErrNotFound for an unknown id.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return papyr.ErrNotFound
	}
	return nil
}

// PutChunks writes all chunks for a document in one transaction. Readers see
// either the full chunk set or nothing; existing chunks for the document are
// replaced.
func (s *Store) PutChunks(ctx context.Context, documentID string, chunks []papyr.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("postgres: clear chunks: %w", err)
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			embStr := serializeEmbedding(chunk.Embedding)
			_, err = tx.Exec(ctx,
				`INSERT INTO chunks (id, document_id, chunk_index, content, embedding)
				 VALUES ($1, $2, $3, $4, $5::vector)`,
				chunk.ID, documentID, chunk.Index, chunk.Content, embStr)
		} else {
			_, err = tx.Exec(ctx,
				`INSERT INTO chunks (id, document_id, chunk_index, content, embedding)
				 VALUES ($1, $2, $3, $4, NULL)`,
				chunk.ID, documentID, chunk.Index, chunk.Content)
		}
		if err != nil {
			return fmt.Errorf("postgres: insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// SearchChunks performs vector similarity search over document chunks using
// pgvector's cosine distance operator with the HNSW index. A non-empty
// documentID restricts the search to that document. Results are ordered by
// descending similarity; ties break by ascending chunk index, then ascending
// document id.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int, documentID string) ([]papyr.ScoredChunk, error) {
	embStr := serializeEmbedding(embedding)

	q := `SELECT c.id, c.document_id, c.chunk_index, c.content, d.title,
	        1 - (c.embedding <=> $1::vector) AS score
	 FROM chunks c JOIN documents d ON d.id = c.document_id
	 WHERE c.embedding IS NOT NULL`
	args := []any{embStr, topK}
	if documentID != "" {
		q += ` AND c.document_id = $3`
		args = append(args, documentID)
	}
	q += `
	 ORDER BY c.embedding <=> $1::vector, c.chunk_index, c.document_id
	 LIMIT $2`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: search chunks: %w", err)
	}
	defer rows.Close()

	var results []papyr.ScoredChunk
	for rows.Next() {
		var sc papyr.ScoredChunk
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Index, &sc.Content, &sc.DocumentTitle, &sc.Score); err != nil {
			return nil, fmt.Errorf("postgres: scan chunk: %w", err)
		}
		results = append(results, sc)
	}
	return results, rows.Err()
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error {
	return nil
}

// serializeEmbedding converts []float32 to pgvector text format: [0.1,0.2,...]
func serializeEmbedding(embedding []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
