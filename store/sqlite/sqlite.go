// Package sqlite implements papyr.Store using pure-Go SQLite
// with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	papyr "github.com/papyrhq/papyr"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements papyr.Store backed by a local SQLite file.
// Embeddings are stored as JSON text and vector search is done
// in-process using brute-force cosine similarity.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ papyr.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections. The
// single connection also serializes writes and deletes for the same
// document against each other.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables and indexes.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")

	// Cascade deletes require the pragma; with a single connection it is
	// set once and sticks for the process lifetime.
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			metadata TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			UNIQUE(document_id, chunk_index)
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// CreateDocument inserts a new document record. Chunks are attached later by
// PutChunks; until then the document is invisible to search.
func (s *Store) CreateDocument(ctx context.Context, doc papyr.Document) error {
	start := time.Now()
	s.logger.Debug("sqlite: create document", "id", doc.ID, "title", doc.Title, "source", doc.Source)

	var metaJSON *string
	if len(doc.Metadata) > 0 {
		data, _ := json.Marshal(doc.Metadata)
		v := string(data)
		metaJSON = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, source, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, metaJSON, doc.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: create document failed", "id", doc.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("create document: %w", err)
	}
	s.logger.Debug("sqlite: create document ok", "id", doc.ID, "duration", time.Since(start))
	return nil
}

// GetDocument returns one document by id, or papyr.ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, id string) (papyr.Document, error) {
	var d papyr.Document
	var metaJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, source, metadata, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.Source, &metaJSON, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return papyr.Document{}, papyr.ErrNotFound
	}
	if err != nil {
		return papyr.Document{}, fmt.Errorf("get document: %w", err)
	}
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &d.Metadata)
	}
	return d, nil
}

// ListDocuments returns all documents ordered by creation time (newest
// first). Metadata is not part of the listing; GetDocument returns the
// full record.
func (s *Store) ListDocuments(ctx context.Context) ([]papyr.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list documents")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, source, created_at FROM documents
		 ORDER BY created_at DESC, id DESC`)
	if err != nil {
		s.logger.Error("sqlite: list documents failed", "error", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []papyr.Document
	for rows.Next() {
		var d papyr.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Source, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	s.logger.Debug("sqlite: list documents ok", "count", len(docs), "duration", time.Since(start))
	return docs, rows.Err()
}

// DeleteDocument removes a document and cascades removal of its chunks.
// Returns papyr.ErrNotFound for an unknown id.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	start := time.Now()
	s.logger.Debug("sqlite: delete document", "id", id)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("delete document chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return papyr.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: delete document commit failed", "id", id, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: delete document ok", "id", id, "duration", time.Since(start))
	return nil
}

// PutChunks writes all chunks for a document in one transaction. Readers see
// either the full chunk set or nothing; existing chunks for the document are
// replaced.
func (s *Store) PutChunks(ctx context.Context, documentID string, chunks []papyr.Chunk) error {
	start := time.Now()
	s.logger.Debug("sqlite: put chunks", "document_id", documentID, "chunks", len(chunks))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}

	for _, chunk := range chunks {
		var embJSON *string
		if len(chunk.Embedding) > 0 {
			v := serializeEmbedding(chunk.Embedding)
			embJSON = &v
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (id, document_id, chunk_index, content, embedding)
			 VALUES (?, ?, ?, ?, ?)`,
			chunk.ID, documentID, chunk.Index, chunk.Content, embJSON,
		)
		if err != nil {
			s.logger.Error("sqlite: insert chunk failed", "chunk_id", chunk.ID, "document_id", documentID, "error", err)
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: put chunks commit failed", "document_id", documentID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: put chunks ok", "document_id", documentID, "chunks", len(chunks), "duration", time.Since(start))
	return nil
}

// SearchChunks performs brute-force cosine similarity search over chunks.
// A non-empty documentID restricts the search to that document. Results are
// ordered by descending similarity; ties break by ascending chunk index,
// then ascending document id.
func (s *Store) SearchChunks(ctx context.Context, embedding []float32, topK int, documentID string) ([]papyr.ScoredChunk, error) {
	start := time.Now()
	s.logger.Debug("sqlite: search chunks", "top_k", topK, "embedding_dim", len(embedding), "document_id", documentID)

	query := `SELECT c.id, c.document_id, c.chunk_index, c.content, c.embedding, d.title
		FROM chunks c JOIN documents d ON d.id = c.document_id
		WHERE c.embedding IS NOT NULL`
	var args []any
	if documentID != "" {
		query += ` AND c.document_id = ?`
		args = append(args, documentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var results []papyr.ScoredChunk
	scanned := 0

	for rows.Next() {
		var sc papyr.ScoredChunk
		var embJSON string
		if err := rows.Scan(&sc.ID, &sc.DocumentID, &sc.Index, &sc.Content, &embJSON, &sc.DocumentTitle); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		sc.Score = cosineSimilarity(embedding, stored)
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Index != results[j].Index {
			return results[i].Index < results[j].Index
		}
		return results[i].DocumentID < results[j].DocumentID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	s.logger.Debug("sqlite: search chunks ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: store closed")
	return s.db.Close()
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
