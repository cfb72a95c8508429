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

// QA implements papyr.AnswerProvider against an extractive question
// answering model: the answer is a span of the supplied context, scored
// in [0, 1].
type QA struct {
	apiKey string
	model  string
	cfg    config
}

// NewQA creates a question answering client. An empty model falls back to
// DefaultQAModel.
func NewQA(apiKey, model string, opts ...Option) *QA {
	if model == "" {
		model = DefaultQAModel
	}
	return &QA{apiKey: apiKey, model: model, cfg: newConfig(opts)}
}

// Name returns the provider name.
func (q *QA) Name() string { return "huggingface" }

type qaRequest struct {
	Inputs  qaInputs       `json:"inputs"`
	Options requestOptions `json:"options"`
}

type qaInputs struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type qaResponse struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// ExtractAnswer asks the model for the answer span within contextText.
func (q *QA) ExtractAnswer(ctx context.Context, question, contextText string) (papyr.Answer, error) {
	start := time.Now()

	payload, err := json.Marshal(qaRequest{
		Inputs:  qaInputs{Question: question, Context: contextText},
		Options: requestOptions{WaitForModel: true},
	})
	if err != nil {
		return papyr.Answer{}, fmt.Errorf("hf: marshal request: %w", err)
	}

	url := q.cfg.baseURL + "/models/" + q.model
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return papyr.Answer{}, fmt.Errorf("hf: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+q.apiKey)
	}

	resp, err := q.cfg.client.Do(req)
	if err != nil {
		return papyr.Answer{}, fmt.Errorf("hf: extract answer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return papyr.Answer{}, &papyr.ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	var out qaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return papyr.Answer{}, fmt.Errorf("hf: decode answer: %w", err)
	}

	q.cfg.logger.Debug("hf: extract answer ok",
		"model", q.model,
		"score", out.Score,
		"duration", time.Since(start))
	return papyr.Answer{Text: out.Answer, Score: out.Score}, nil
}

var _ papyr.AnswerProvider = (*QA)(nil)
