package papyr

// --- Domain types (database records) ---

// Document is the metadata record for one ingested document. It is created
// once when ingestion starts and never mutated afterwards except for deletion.
type Document struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Source    string            `json:"source"`
	CreatedAt int64             `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Chunk is one contiguous, possibly overlapping span of a document's
// extracted text. Index is zero-based and unique within the owning document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a search hit: a chunk with its owning document's title and
// the cosine similarity to the query embedding.
type ScoredChunk struct {
	Chunk
	DocumentTitle string  `json:"document_title"`
	Score         float32 `json:"score"`
}

// Source identifies a document that contributed at least one chunk to a
// query's context, reported with its best similarity score.
type Source struct {
	DocumentID string  `json:"id"`
	Title      string  `json:"title"`
	Similarity float32 `json:"similarity"`
}

// Answer is the raw output of an AnswerProvider: the extracted span and the
// model's confidence in [0, 1].
type Answer struct {
	Text  string  `json:"answer"`
	Score float64 `json:"score"`
}

// AnswerResult is the full outcome of one query: the extracted answer, the
// assembled context, and the contributing sources ordered by similarity.
type AnswerResult struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Context    string   `json:"context"`
	Sources    []Source `json:"sources"`
}
