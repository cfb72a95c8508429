// Package ingest provides the write path: extract → normalize → chunk →
// embed → store, with compensating cleanup so that a failed ingestion never
// leaves a partially visible document behind.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	papyr "github.com/papyrhq/papyr"
)

// IngestResult holds the outcome of a successful ingest operation.
type IngestResult struct {
	DocumentID string
	Document   papyr.Document
	ChunkCount int
}

// Ingestor provides end-to-end ingestion. All failures after the document
// record is created trigger a compensating delete of that record; the
// returned error carries the failure kind (see papyr.IngestError).
type Ingestor struct {
	store      papyr.Store
	embedding  papyr.EmbeddingProvider
	chunker    Chunker
	extractors map[ContentType]Extractor
	batchSize  int
	tracer     papyr.Tracer
	logger     *slog.Logger
}

// NewIngestor creates an Ingestor with sensible defaults: a sliding chunker,
// extractors for plain text, HTML, markdown, CSV, JSON and DOCX, and a batch
// size of 64. Register additional extractors (such as pdf.NewExtractor) via
// WithExtractor.
func NewIngestor(store papyr.Store, emb papyr.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store:     store,
		embedding: emb,
		chunker:   NewSlidingChunker(),
		extractors: map[ContentType]Extractor{
			TypePlainText: PlainTextExtractor{},
			TypeHTML:      HTMLExtractor{},
			TypeMarkdown:  MarkdownExtractor{},
			TypeCSV:       CSVExtractor{},
			TypeJSON:      JSONExtractor{},
			TypeDOCX:      DOCXExtractor{},
		},
		batchSize: 64,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// IngestFile ingests file content, detecting the content type from the
// filename extension. metadata is stored verbatim on the document record.
func (ing *Ingestor) IngestFile(ctx context.Context, content []byte, filename string, metadata map[string]string) (IngestResult, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	ct := ContentTypeFromExtension(ext)

	extractor, ok := ing.extractors[ct]
	if !ok {
		extractor = PlainTextExtractor{}
	}

	text, err := extractor.Extract(content)
	if err != nil {
		return IngestResult{}, &papyr.IngestError{
			Kind: papyr.FailUnreadableDocument,
			Err:  fmt.Errorf("extract %s: %w", ct, err),
		}
	}

	doc := papyr.Document{
		Title:    filepath.Base(filename),
		Source:   filename,
		Metadata: metadata,
	}
	return ing.ingest(ctx, text, doc)
}

// IngestReader reads all content from r and ingests it, detecting the
// content type from filename.
func (ing *Ingestor) IngestReader(ctx context.Context, r io.Reader, filename string, metadata map[string]string) (IngestResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return IngestResult{}, &papyr.IngestError{
			Kind: papyr.FailUnreadableDocument,
			Err:  fmt.Errorf("read: %w", err),
		}
	}
	return ing.IngestFile(ctx, data, filename, metadata)
}

// IngestText ingests already-extracted plain text.
func (ing *Ingestor) IngestText(ctx context.Context, text, source, title string) (IngestResult, error) {
	doc := papyr.Document{Title: title, Source: source}
	return ing.ingest(ctx, text, doc)
}

// ingest runs normalization, record creation, chunking, embedding and
// storage. doc arrives without an id or timestamp; both are assigned here.
func (ing *Ingestor) ingest(ctx context.Context, text string, doc papyr.Document) (IngestResult, error) {
	text = normalizeText(text)
	if text == "" {
		return IngestResult{}, &papyr.IngestError{
			Kind: papyr.FailEmptyDocument,
			Err:  fmt.Errorf("no text extracted from %q", doc.Source),
		}
	}

	doc.ID = papyr.NewID()
	doc.CreatedAt = papyr.NowUnix()

	if ing.tracer != nil {
		var span papyr.Span
		ctx, span = ing.tracer.Start(ctx, "papyr.ingest",
			papyr.StringAttr("document_id", doc.ID),
			papyr.IntAttr("text_bytes", len(text)))
		defer span.End()
	}

	if err := ing.store.CreateDocument(ctx, doc); err != nil {
		return IngestResult{}, &papyr.IngestError{
			Kind: papyr.FailStorage,
			Err:  fmt.Errorf("create document: %w", err),
		}
	}

	chunkTexts := ing.chunker.Chunk(text)
	if len(chunkTexts) == 0 {
		return IngestResult{}, ing.cleanup(ctx, doc.ID, &papyr.IngestError{
			Kind: papyr.FailChunking,
			Err:  fmt.Errorf("chunker produced no chunks for document %s", doc.ID),
		})
	}

	chunks := make([]papyr.Chunk, len(chunkTexts))
	for i, t := range chunkTexts {
		chunks[i] = papyr.Chunk{
			ID:         papyr.NewID(),
			DocumentID: doc.ID,
			Index:      i,
			Content:    t,
		}
	}

	if err := ing.batchEmbed(ctx, chunks); err != nil {
		return IngestResult{}, ing.cleanup(ctx, doc.ID, err)
	}

	if err := ing.store.PutChunks(ctx, doc.ID, chunks); err != nil {
		return IngestResult{}, ing.cleanup(ctx, doc.ID, &papyr.IngestError{
			Kind: papyr.FailStorage,
			Err:  fmt.Errorf("put chunks: %w", err),
		})
	}

	ing.logger.Info("document ingested",
		"document_id", doc.ID,
		"title", doc.Title,
		"chunks", len(chunks))

	return IngestResult{
		DocumentID: doc.ID,
		Document:   doc,
		ChunkCount: len(chunks),
	}, nil
}

// cleanup deletes the document record after a post-create failure and
// returns cause. The delete runs on a context detached from request
// cancellation so a client disconnect cannot leave a half-written document.
// When the delete itself fails, a CleanupError is returned instead so the
// orphan can be reconciled out-of-band.
func (ing *Ingestor) cleanup(ctx context.Context, docID string, cause error) error {
	if err := ing.store.DeleteDocument(context.WithoutCancel(ctx), docID); err != nil {
		ing.logger.Error("cleanup after failed ingest also failed",
			"document_id", docID,
			"cause", cause,
			"cleanup_error", err)
		return &papyr.CleanupError{
			DocumentID: docID,
			Cause:      cause,
			CleanupErr: err,
		}
	}
	ing.logger.Warn("ingest failed, document rolled back",
		"document_id", docID,
		"cause", cause)
	return cause
}

// batchEmbed embeds chunks in batches of ing.batchSize, assigning vectors by
// index. Each batch must come back with exactly one vector per text.
func (ing *Ingestor) batchEmbed(ctx context.Context, chunks []papyr.Chunk) error {
	for i := 0; i < len(chunks); i += ing.batchSize {
		end := i + ing.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		batch := chunks[i:end]
		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}

		embeddings, err := ing.embedding.Embed(ctx, texts)
		if err != nil {
			return &papyr.IngestError{
				Kind: papyr.FailEmbedding,
				Err:  fmt.Errorf("embed batch %d-%d: %w", i, end, err),
			}
		}
		if len(embeddings) != len(batch) {
			return &papyr.IngestError{
				Kind: papyr.FailEmbeddingCountMismatch,
				Err:  fmt.Errorf("embed batch %d-%d: got %d vectors for %d texts", i, end, len(embeddings), len(batch)),
			}
		}

		for j := range batch {
			batch[j].Embedding = embeddings[j]
		}
	}
	return nil
}

// normalizeText applies Unicode NFC normalization and collapses runs of
// whitespace to single spaces. Chunk boundaries then see a stable byte
// layout regardless of the source format's line wrapping.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
