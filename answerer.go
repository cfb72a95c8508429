package papyr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// NoRelevantInformation is the sentinel answer returned when retrieval finds
// no candidate chunks. It is a normal outcome, not an error.
const NoRelevantInformation = "No relevant information found."

// DefaultTopK is the number of chunks retrieved when the caller does not
// specify one.
const DefaultTopK = 5

// Answerer is the query path: it embeds the question, searches the store,
// assembles context and sources, and calls the answer extraction capability.
// It has no side effects and is safe for concurrent use.
type Answerer struct {
	store     Store
	embedding EmbeddingProvider
	answer    AnswerProvider
	tracer    Tracer
	logger    *slog.Logger
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithTracer sets an optional tracer for query spans.
func WithTracer(t Tracer) AnswererOption {
	return func(a *Answerer) { a.tracer = t }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) AnswererOption {
	return func(a *Answerer) { a.logger = l }
}

// NewAnswerer creates the query pipeline over the given store and capabilities.
func NewAnswerer(store Store, embedding EmbeddingProvider, answer AnswerProvider, opts ...AnswererOption) *Answerer {
	a := &Answerer{
		store:     store,
		embedding: embedding,
		answer:    answer,
		logger:    nopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Answer runs the retrieval pipeline for one question. A non-empty documentID
// restricts the search to that document. topK must be positive; callers apply
// their own default before calling.
//
// When the search returns no hits the sentinel result is returned with a nil
// error: missing evidence is not a failure.
func (a *Answerer) Answer(ctx context.Context, question, documentID string, topK int) (AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return AnswerResult{}, fmt.Errorf("%w: empty question", ErrInvalidQuery)
	}
	if topK <= 0 {
		return AnswerResult{}, fmt.Errorf("%w: topK must be positive, got %d", ErrInvalidQuery, topK)
	}

	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "papyr.answer",
			StringAttr("document_id", documentID),
			IntAttr("top_k", topK))
		defer span.End()
	}

	embs, err := a.embedding.Embed(ctx, []string{question})
	if err != nil {
		return AnswerResult{}, fmt.Errorf("embed question: %w", err)
	}
	if len(embs) == 0 {
		return AnswerResult{}, fmt.Errorf("embed question: no embedding returned")
	}

	hits, err := a.store.SearchChunks(ctx, embs[0], topK, documentID)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("search chunks: %w", err)
	}

	if len(hits) == 0 {
		a.logger.Debug("answer: no relevant chunks", "document_id", documentID, "top_k", topK)
		return AnswerResult{
			Answer:     NoRelevantInformation,
			Confidence: 0,
			Context:    "",
			Sources:    []Source{},
		}, nil
	}

	contextText := buildContext(hits)
	sources := collectSources(hits)

	ans, err := a.answer.ExtractAnswer(ctx, question, contextText)
	if err != nil {
		return AnswerResult{}, fmt.Errorf("extract answer: %w", err)
	}

	a.logger.Debug("answer: extracted",
		"hits", len(hits),
		"sources", len(sources),
		"confidence", ans.Score)

	return AnswerResult{
		Answer:     ans.Text,
		Confidence: ans.Score,
		Context:    contextText,
		Sources:    sources,
	}, nil
}

// buildContext concatenates hit texts in search order (descending similarity)
// joined by a single space. Search order is the only ranking signal.
func buildContext(hits []ScoredChunk) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
	}
	return strings.Join(parts, " ")
}

// collectSources deduplicates hits by document, keeping the first (highest
// similarity) occurrence per document, then sorts by descending similarity.
// The first occurrence already carries the document's best score, so no
// re-ranking is needed.
func collectSources(hits []ScoredChunk) []Source {
	seen := make(map[string]bool, len(hits))
	var sources []Source
	for _, h := range hits {
		if seen[h.DocumentID] {
			continue
		}
		seen[h.DocumentID] = true
		sources = append(sources, Source{
			DocumentID: h.DocumentID,
			Title:      h.DocumentTitle,
			Similarity: h.Score,
		})
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].Similarity > sources[j].Similarity
	})
	return sources
}

// nopLogger discards all output. Components log through it when no logger
// is injected.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
