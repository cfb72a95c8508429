// Package hf provides Hugging Face Inference API clients for the two
// model capabilities the pipeline needs: feature extraction (embeddings)
// and extractive question answering.
package hf

import (
	"context"
	"log/slog"
	"net/http"
)

// DefaultBaseURL is the public Hugging Face Inference API endpoint.
const DefaultBaseURL = "https://api-inference.huggingface.co"

const (
	// DefaultEmbeddingModel is a 384-dimension sentence-transformers model.
	DefaultEmbeddingModel      = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultEmbeddingDimensions = 384

	// DefaultQAModel is an extractive question answering model trained on
	// SQuAD 2.0.
	DefaultQAModel = "deepset/roberta-base-squad2"
)

// config holds settings shared by both client types.
type config struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func newConfig(opts []Option) config {
	c := config{
		baseURL: DefaultBaseURL,
		client:  &http.Client{},
		logger:  nopLogger,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// Option configures an Embedding or QA client.
type Option func(*config)

// WithBaseURL overrides the API base URL (e.g. a dedicated inference
// endpoint or a local text-embeddings-inference server).
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.client = hc }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// requestOptions asks the API to queue the call while a cold model loads
// instead of returning 503 immediately.
type requestOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
