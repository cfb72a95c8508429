package papyr

import (
	"context"
	"sync"
)

// fakeEmbedding returns a fixed vector per text and records calls.
type fakeEmbedding struct {
	mu    sync.Mutex
	dims  int
	calls int
	texts []string
	err   error
}

func (f *fakeEmbedding) Name() string    { return "fake-embedding" }
func (f *fakeEmbedding) Dimensions() int { return f.dims }

func (f *fakeEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dims)
		for j := range v {
			v[j] = 0.5
		}
		out[i] = v
	}
	return out, nil
}

// fakeAnswerProvider records the question and context it receives.
type fakeAnswerProvider struct {
	mu       sync.Mutex
	question string
	context  string
	ans      Answer
	err      error
}

func (f *fakeAnswerProvider) Name() string { return "fake-answer" }

func (f *fakeAnswerProvider) ExtractAnswer(_ context.Context, question, contextText string) (Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.question = question
	f.context = contextText
	if f.err != nil {
		return Answer{}, f.err
	}
	return f.ans, f.err
}

// fakeStore returns canned search hits.
type fakeStore struct {
	hits      []ScoredChunk
	searchErr error
	lastTopK  int
	lastDocID string
}

func (f *fakeStore) CreateDocument(context.Context, Document) error { return nil }
func (f *fakeStore) GetDocument(context.Context, string) (Document, error) {
	return Document{}, ErrNotFound
}
func (f *fakeStore) ListDocuments(context.Context) ([]Document, error) { return nil, nil }
func (f *fakeStore) DeleteDocument(context.Context, string) error      { return nil }
func (f *fakeStore) PutChunks(context.Context, string, []Chunk) error  { return nil }

func (f *fakeStore) SearchChunks(_ context.Context, _ []float32, topK int, documentID string) ([]ScoredChunk, error) {
	f.lastTopK = topK
	f.lastDocID = documentID
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if topK < len(f.hits) {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}

func (f *fakeStore) Init(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }
