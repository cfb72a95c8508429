package ingest

import (
	"log/slog"

	papyr "github.com/papyrhq/papyr"
)

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker sets the chunker (default: NewSlidingChunker()).
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithBatchSize sets the number of chunks per Embed() call (default 64).
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.batchSize = n
		}
	}
}

// WithExtractor registers an Extractor for a given ContentType.
func WithExtractor(ct ContentType, e Extractor) Option {
	return func(ing *Ingestor) { ing.extractors[ct] = e }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) { ing.logger = l }
}

// WithTracer sets an optional tracer for ingest spans.
func WithTracer(t papyr.Tracer) Option {
	return func(ing *Ingestor) { ing.tracer = t }
}
