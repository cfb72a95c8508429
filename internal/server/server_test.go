package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	papyr "github.com/papyrhq/papyr"
	"github.com/papyrhq/papyr/ingest"
	"github.com/papyrhq/papyr/internal/config"
)

// memStore is an in-memory papyr.Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	docs     map[string]papyr.Document
	chunks   map[string][]papyr.Chunk
	order    []string
	lastTopK int
}

func newMemStore() *memStore {
	return &memStore{
		docs:   make(map[string]papyr.Document),
		chunks: make(map[string][]papyr.Chunk),
	}
}

func (m *memStore) CreateDocument(_ context.Context, doc papyr.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	m.order = append(m.order, doc.ID)
	return nil
}

func (m *memStore) GetDocument(_ context.Context, id string) (papyr.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return papyr.Document{}, papyr.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) ListDocuments(_ context.Context) ([]papyr.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]papyr.Document, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if doc, ok := m.docs[m.order[i]]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memStore) DeleteDocument(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return papyr.ErrNotFound
	}
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

func (m *memStore) PutChunks(_ context.Context, documentID string, chunks []papyr.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[documentID] = chunks
	return nil
}

func (m *memStore) SearchChunks(_ context.Context, _ []float32, topK int, documentID string) ([]papyr.ScoredChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTopK = topK

	var hits []papyr.ScoredChunk
	for docID, chunks := range m.chunks {
		if documentID != "" && docID != documentID {
			continue
		}
		for _, c := range chunks {
			hits = append(hits, papyr.ScoredChunk{
				Chunk:         c,
				DocumentTitle: m.docs[docID].Title,
				Score:         1 - float32(c.Index)*0.01,
			})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *memStore) Init(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

type fakeEmbedding struct{}

func (fakeEmbedding) Name() string    { return "fake" }
func (fakeEmbedding) Dimensions() int { return 3 }
func (fakeEmbedding) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeAnswer struct {
	mu       sync.Mutex
	question string
	context  string
}

func (f *fakeAnswer) Name() string { return "fake" }
func (f *fakeAnswer) ExtractAnswer(_ context.Context, question, contextText string) (papyr.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.question = question
	f.context = contextText
	return papyr.Answer{Text: "an answer", Score: 0.8}, nil
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Addr:            ":0",
		MaxUploadBytes:  1 << 20,
		ShutdownSeconds: 1,
	}
}

func newTestServer(t *testing.T, cfg config.ServerConfig) (*Server, *memStore, *fakeAnswer) {
	t.Helper()
	store := newMemStore()
	emb := fakeEmbedding{}
	ans := &fakeAnswer{}
	ingestor := ingest.NewIngestor(store, emb)
	answerer := papyr.NewAnswerer(store, emb, ans)
	return New(cfg, store, ingestor, answerer), store, ans
}

func multipartBody(t *testing.T, filename, content, metadata string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if metadata != "" {
		if err := mw.WriteField("metadata", metadata); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, s *Server, filename, content, metadata string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, filename, content, metadata)
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndQuestion(t *testing.T) {
	s, _, ans := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "notes.txt", "The capital of France is Paris. It is a large city.", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	var up uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &up); err != nil {
		t.Fatal(err)
	}
	if up.DocumentID == "" || up.ChunkCount < 1 {
		t.Fatalf("unexpected upload response: %+v", up)
	}
	if up.Document.Title != "notes.txt" {
		t.Errorf("title = %q", up.Document.Title)
	}

	q := strings.NewReader(`{"question": "What is the capital of France?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/question", q)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("question status = %d, body %s", rec.Code, rec.Body.String())
	}

	var qr questionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &qr); err != nil {
		t.Fatal(err)
	}
	if qr.Answer != "an answer" || qr.Confidence != 0.8 {
		t.Errorf("unexpected answer: %+v", qr)
	}
	if len(qr.Sources) != 1 || qr.Sources[0].DocumentID != up.DocumentID {
		t.Errorf("unexpected sources: %+v", qr.Sources)
	}
	if ans.question != "What is the capital of France?" {
		t.Errorf("question passed through = %q", ans.question)
	}
}

func TestUploadMissingFile(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("metadata", "{}")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUploadEmptyDocument(t *testing.T) {
	s, store, _ := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "empty.txt", "   \n\t  ", "")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	docs, _ := store.ListDocuments(context.Background())
	if len(docs) != 0 {
		t.Errorf("empty upload must not create a document, got %d", len(docs))
	}
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxUploadBytes = 64
	s, _, _ := newTestServer(t, cfg)

	rec := doUpload(t, s, "big.txt", strings.Repeat("x", 4096), "")
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestUploadInvalidMetadata(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "notes.txt", "some document text here", `{"nested": {"not": "flat"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUploadStoresMetadata(t *testing.T) {
	s, store, _ := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "notes.txt", "some document text here", `{"author": "amir"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var up uploadResponse
	json.Unmarshal(rec.Body.Bytes(), &up)

	doc, err := store.GetDocument(context.Background(), up.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Metadata["author"] != "amir" {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/documents/nope", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "notes.txt", "some document text here", "")
	var up uploadResponse
	json.Unmarshal(rec.Body.Bytes(), &up)

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/"+up.DocumentID, nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec2.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/documents/"+up.DocumentID, nil)
	rec3 := httptest.NewRecorder()
	s.ServeHTTP(rec3, req)
	if rec3.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec3.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/documents/"+up.DocumentID, nil)
	rec4 := httptest.NewRecorder()
	s.ServeHTTP(rec4, req)
	if rec4.Code != http.StatusNotFound {
		t.Errorf("double delete status = %d", rec4.Code)
	}
}

func TestListDocuments(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	for i := 0; i < 3; i++ {
		rec := doUpload(t, s, fmt.Sprintf("doc%d.txt", i), "some document text here", "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("upload %d status = %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var out struct {
		Documents []documentResponse `json:"documents"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Documents) != 3 {
		t.Errorf("got %d documents", len(out.Documents))
	}
}

func TestQuestionEmpty(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/question", strings.NewReader(`{"question": "  "}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestQuestionBadTopK(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		strings.NewReader(`{"question": "why?", "top_k": -1}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestQuestionDefaultTopK(t *testing.T) {
	s, store, _ := newTestServer(t, testServerConfig())

	doUpload(t, s, "notes.txt", "some document text here", "")

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		strings.NewReader(`{"question": "why?"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.lastTopK != papyr.DefaultTopK {
		t.Errorf("topK = %d, want %d", store.lastTopK, papyr.DefaultTopK)
	}
}

func TestQuestionNoRelevantInformation(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/question",
		strings.NewReader(`{"question": "why?"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var qr questionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &qr); err != nil {
		t.Fatal(err)
	}
	if qr.Answer != papyr.NoRelevantInformation {
		t.Errorf("answer = %q", qr.Answer)
	}
	if qr.Sources == nil || len(qr.Sources) != 0 {
		t.Errorf("sources must be an empty list, got %v", qr.Sources)
	}
}

func TestQuestionDocumentFilter(t *testing.T) {
	s, _, ans := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "a.txt", "alpha document body text", "")
	var upA uploadResponse
	json.Unmarshal(rec.Body.Bytes(), &upA)
	doUpload(t, s, "b.txt", "beta document body text", "")

	body := fmt.Sprintf(`{"question": "why?", "document_id": %q}`, upA.DocumentID)
	req := httptest.NewRequest(http.MethodPost, "/api/question", strings.NewReader(body))
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("status = %d", rec2.Code)
	}

	var qr questionResponse
	json.Unmarshal(rec2.Body.Bytes(), &qr)
	if len(qr.Sources) != 1 || qr.Sources[0].DocumentID != upA.DocumentID {
		t.Errorf("sources = %+v", qr.Sources)
	}
	if !strings.Contains(ans.context, "alpha") || strings.Contains(ans.context, "beta") {
		t.Errorf("context = %q", ans.context)
	}
}

func TestQuestionRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.QuestionRPM = 1
	s, _, _ := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/question",
			strings.NewReader(`{"question": "why?"}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)

		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, rec.Code, want)
		}
	}
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestStatusForIngest(t *testing.T) {
	cases := []struct {
		kind papyr.FailureKind
		want int
	}{
		{papyr.FailEmptyDocument, http.StatusUnprocessableEntity},
		{papyr.FailUnreadableDocument, http.StatusUnprocessableEntity},
		{papyr.FailChunking, http.StatusUnprocessableEntity},
		{papyr.FailEmbedding, http.StatusBadGateway},
		{papyr.FailEmbeddingCountMismatch, http.StatusBadGateway},
		{papyr.FailStorage, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := &papyr.IngestError{Kind: tc.kind}
		if got := statusForIngest(err); got != tc.want {
			t.Errorf("statusForIngest(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}

func TestListDocumentsExcludesMetadata(t *testing.T) {
	s, _, _ := newTestServer(t, testServerConfig())

	rec := doUpload(t, s, "notes.txt", "some document text here", `{"author": "ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", rec.Code)
	}
	var up uploadResponse
	json.Unmarshal(rec.Body.Bytes(), &up)

	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec2.Code)
	}
	if strings.Contains(rec2.Body.String(), "metadata") ||
		strings.Contains(rec2.Body.String(), "ada") {
		t.Errorf("bulk listing leaked metadata: %s", rec2.Body.String())
	}

	// Point lookup still returns the full record.
	req = httptest.NewRequest(http.MethodGet, "/api/documents/"+up.DocumentID, nil)
	rec3 := httptest.NewRecorder()
	s.ServeHTTP(rec3, req)
	var doc documentResponse
	if err := json.Unmarshal(rec3.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Metadata["author"] != "ada" {
		t.Errorf("point lookup lost metadata: %+v", doc.Metadata)
	}
}
