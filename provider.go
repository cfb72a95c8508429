package papyr

import "context"

// EmbeddingProvider abstracts text embedding.
type EmbeddingProvider interface {
	// Embed returns one embedding vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}

// AnswerProvider abstracts extractive question answering: given a question
// and a context assembled from retrieved chunks, it returns the best answer
// span and a confidence score in [0, 1].
type AnswerProvider interface {
	ExtractAnswer(ctx context.Context, question, contextText string) (Answer, error)
	// Name returns the provider name.
	Name() string
}
