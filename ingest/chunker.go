package ingest

import "strings"

// Chunker splits extracted text into chunks suitable for embedding.
type Chunker interface {
	Chunk(text string) []string
}

// --- ChunkerOption for configuring chunkers ---

// ChunkerOption configures a chunker implementation.
type ChunkerOption func(*chunkerConfig)

type chunkerConfig struct {
	size    int
	overlap int
}

func defaultChunkerConfig() chunkerConfig {
	return chunkerConfig{size: 250, overlap: 50}
}

// WithChunkSize sets the target chunk size in bytes.
func WithChunkSize(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.size = n }
}

// WithOverlap sets the overlap between consecutive chunks in bytes.
// Must be positive and smaller than the chunk size.
func WithOverlap(n int) ChunkerOption {
	return func(c *chunkerConfig) { c.overlap = n }
}

// --- SlidingChunker ---

// SlidingChunker splits text with a sliding window of targetSize bytes,
// advancing by (window length - overlap) each step. When a window does not
// reach the end of the text, its end snaps backward to the nearest sentence
// terminator (". ", "? ", "! ") past the window midpoint, falling back to
// the nearest whitespace past the midpoint, and otherwise keeping the raw
// boundary. The final chunk may be shorter than targetSize.
//
// Chunking is pure and deterministic: identical input and parameters always
// yield an identical sequence.
type SlidingChunker struct {
	size    int
	overlap int
}

var _ Chunker = (*SlidingChunker)(nil)

// NewSlidingChunker creates a SlidingChunker with the given options.
// The overlap is clamped to [1, size-1].
func NewSlidingChunker(opts ...ChunkerOption) *SlidingChunker {
	cfg := defaultChunkerConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.overlap < 1 {
		cfg.overlap = 1
	}
	if cfg.overlap >= cfg.size {
		cfg.overlap = cfg.size - 1
	}
	return &SlidingChunker{size: cfg.size, overlap: cfg.overlap}
}

// Chunk splits text into overlapping chunks. Empty or whitespace-only input
// yields an empty sequence.
func (sc *SlidingChunker) Chunk(text string) []string {
	spans := slidingSpans(text, sc.size, sc.overlap)
	chunks := make([]string, 0, len(spans))
	for _, sp := range spans {
		c := strings.TrimSpace(text[sp.start:sp.end])
		if c != "" {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// span is a half-open byte range [start, end) in the source text. The spans
// produced for a text cover every byte: each next span starts before the
// previous one ends.
type span struct {
	start, end int
}

// slidingSpans computes the chunk windows. The loop ends once a window
// reaches the end of the text. The advance after each window is
// (end - start) - overlap; a non-positive advance (possible near the end of
// the text after a boundary snap) also terminates the loop immediately after
// the current window to guarantee progress.
func slidingSpans(text string, size, overlap int) []span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var spans []span
	n := len(text)
	start := 0

	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			if t := lastSentenceEnd(text, start, end); t > start+size/2 {
				end = t + 1
			} else if sp := lastSpace(text, start, end); sp > start+size/2 {
				end = sp
			}
		}

		spans = append(spans, span{start: start, end: end})
		if end >= n {
			break
		}

		advance := (end - start) - overlap
		if advance <= 0 {
			break
		}
		start += advance
	}

	return spans
}

// lastSentenceEnd returns the byte index of the last sentence terminator
// (. ? !) followed by a space within [start, end), or -1.
func lastSentenceEnd(text string, start, end int) int {
	window := text[start:end]
	best := -1
	for _, sep := range []string{". ", "? ", "! "} {
		if i := strings.LastIndex(window, sep); i > best {
			best = i
		}
	}
	if best < 0 {
		return -1
	}
	return start + best
}

// lastSpace returns the byte index of the last space within [start, end), or -1.
func lastSpace(text string, start, end int) int {
	if i := strings.LastIndexByte(text[start:end], ' '); i >= 0 {
		return start + i
	}
	return -1
}
