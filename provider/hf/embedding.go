package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	papyr "github.com/papyrhq/papyr"
)

// Embedding implements papyr.EmbeddingProvider against the feature
// extraction pipeline. Batch calls preserve input order: vector i belongs
// to texts[i].
type Embedding struct {
	apiKey string
	model  string
	dims   int
	cfg    config
}

// NewEmbedding creates an embedding client. Empty model and zero dims fall
// back to DefaultEmbeddingModel / DefaultEmbeddingDimensions.
func NewEmbedding(apiKey, model string, dims int, opts ...Option) *Embedding {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	return &Embedding{apiKey: apiKey, model: model, dims: dims, cfg: newConfig(opts)}
}

// Name returns the provider name.
func (e *Embedding) Name() string { return "huggingface" }

// Dimensions returns the embedding vector dimension.
func (e *Embedding) Dimensions() int { return e.dims }

type embedRequest struct {
	Inputs  []string       `json:"inputs"`
	Options requestOptions `json:"options"`
}

// Embed computes one vector per input text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	start := time.Now()

	payload, err := json.Marshal(embedRequest{
		Inputs:  texts,
		Options: requestOptions{WaitForModel: true},
	})
	if err != nil {
		return nil, fmt.Errorf("hf: marshal request: %w", err)
	}

	url := e.cfg.baseURL + "/pipeline/feature-extraction/" + e.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("hf: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.cfg.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hf: embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &papyr.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("hf: decode embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("hf: got %d embeddings for %d texts", len(vectors), len(texts))
	}

	e.cfg.logger.Debug("hf: embed ok",
		"model", e.model,
		"texts", len(texts),
		"duration", time.Since(start))
	return vectors, nil
}

var _ papyr.EmbeddingProvider = (*Embedding)(nil)
