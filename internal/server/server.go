// Package server exposes the document question answering pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	papyr "github.com/papyrhq/papyr"
	"github.com/papyrhq/papyr/ingest"
	"github.com/papyrhq/papyr/internal/config"
)

// Server is the HTTP front for ingestion and querying. It owns no
// connections; the store, ingestor and answerer are injected.
type Server struct {
	store    papyr.Store
	ingestor *ingest.Ingestor
	answerer *papyr.Answerer
	cfg      config.ServerConfig
	defTopK  int
	logger   *slog.Logger

	uploads   *clientLimiter
	questions *clientLimiter
	mux       *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithDefaultTopK sets the retrieval depth used when a question omits top_k.
func WithDefaultTopK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.defTopK = k
		}
	}
}

// New wires the HTTP routes over the given pipeline components.
func New(cfg config.ServerConfig, store papyr.Store, ingestor *ingest.Ingestor, answerer *papyr.Answerer, opts ...Option) *Server {
	s := &Server{
		store:     store,
		ingestor:  ingestor,
		answerer:  answerer,
		cfg:       cfg,
		defTopK:   papyr.DefaultTopK,
		logger:    nopLogger,
		uploads:   newClientLimiter(cfg.UploadRPM),
		questions: newClientLimiter(cfg.QuestionRPM),
	}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", s.handleUpload)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /api/question", s.handleQuestion)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux = mux

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured drain window.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server: listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	drain := time.Duration(s.cfg.ShutdownSeconds) * time.Second
	shutCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	s.logger.Info("server: shutting down", "drain", drain)
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type documentResponse struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Source    string            `json:"source"`
	CreatedAt int64             `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func toDocumentResponse(d papyr.Document) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Title:     d.Title,
		Source:    d.Source,
		CreatedAt: d.CreatedAt,
		Metadata:  d.Metadata,
	}
}

type uploadResponse struct {
	DocumentID string           `json:"document_id"`
	ChunkCount int              `json:"chunk_count"`
	Document   documentResponse `json:"document"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.uploads.allow(r) {
		writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "malformed multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable upload")
		return
	}

	var metadata map[string]string
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			writeError(w, http.StatusBadRequest, "metadata must be a JSON string map")
			return
		}
	}

	result, err := s.ingestor.IngestFile(r.Context(), content, header.Filename, metadata)
	if err != nil {
		s.logger.Error("server: ingest failed", "filename", header.Filename, "error", err)
		writeError(w, statusForIngest(err), err.Error())
		return
	}

	s.logger.Info("server: document ingested",
		"document_id", result.DocumentID,
		"chunks", result.ChunkCount)

	writeJSON(w, http.StatusCreated, uploadResponse{
		DocumentID: result.DocumentID,
		ChunkCount: result.ChunkCount,
		Document:   toDocumentResponse(result.Document),
	})
}

// documentListEntry is the bulk-listing shape. Metadata stays off the list
// on purpose; clients fetch the full record by id.
type documentListEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	CreatedAt int64  `json:"created_at"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.store.ListDocuments(r.Context())
	if err != nil {
		s.logger.Error("server: list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	out := make([]documentListEntry, len(docs))
	for i, d := range docs {
		out[i] = documentListEntry{
			ID:        d.ID,
			Title:     d.Title,
			Source:    d.Source,
			CreatedAt: d.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, err := s.store.GetDocument(r.Context(), id)
	if errors.Is(err, papyr.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("server: get document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	err := s.store.DeleteDocument(r.Context(), id)
	if errors.Is(err, papyr.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		s.logger.Error("server: delete document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	s.logger.Info("server: document deleted", "document_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type questionRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id"`
	TopK       *int   `json:"top_k"`
}

type questionResponse struct {
	Answer     string        `json:"answer"`
	Confidence float64       `json:"confidence"`
	Context    string        `json:"context"`
	Sources    []sourceEntry `json:"sources"`
}

type sourceEntry struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Similarity float32 `json:"similarity"`
}

func (s *Server) handleQuestion(w http.ResponseWriter, r *http.Request) {
	if !s.questions.allow(r) {
		writeError(w, http.StatusTooManyRequests, "question rate limit exceeded")
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	topK := s.defTopK
	if req.TopK != nil {
		topK = *req.TopK
	}

	result, err := s.answerer.Answer(r.Context(), req.Question, req.DocumentID, topK)
	if errors.Is(err, papyr.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("server: answer failed", "error", err)
		writeError(w, statusForProvider(err), "failed to answer question")
		return
	}

	sources := make([]sourceEntry, len(result.Sources))
	for i, src := range result.Sources {
		sources[i] = sourceEntry{
			DocumentID: src.DocumentID,
			Title:      src.Title,
			Similarity: src.Similarity,
		}
	}

	writeJSON(w, http.StatusOK, questionResponse{
		Answer:     result.Answer,
		Confidence: result.Confidence,
		Context:    result.Context,
		Sources:    sources,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusForIngest maps a typed ingestion failure to an HTTP status.
func statusForIngest(err error) int {
	switch papyr.KindOf(err) {
	case papyr.FailEmptyDocument, papyr.FailUnreadableDocument, papyr.FailChunking:
		return http.StatusUnprocessableEntity
	case papyr.FailEmbedding, papyr.FailEmbeddingCountMismatch:
		return http.StatusBadGateway
	case papyr.FailStorage:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// statusForProvider distinguishes upstream capability failures from local ones.
func statusForProvider(err error) int {
	var httpErr *papyr.ErrHTTP
	if errors.As(err, &httpErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
