package papyr

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryConfig holds shared settings for the retrying provider wrappers.
type retryConfig struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// RetryOption configures a retrying provider wrapper.
type RetryOption func(*retryConfig)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(c *retryConfig) { c.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(c *retryConfig) { c.baseDelay = d }
}

// RetryLogger sets the structured logger for retry events. When set, retries
// log at WARN level. If not set, no output.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(c *retryConfig) { c.logger = l }
}

func newRetryConfig(opts []RetryOption) retryConfig {
	c := retryConfig{maxAttempts: 3, baseDelay: time.Second, logger: nopLogger}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// retryEmbedding wraps an EmbeddingProvider and retries transient HTTP
// errors (429 Too Many Requests, 503 Service Unavailable) with exponential
// backoff and jitter.
type retryEmbedding struct {
	inner EmbeddingProvider
	cfg   retryConfig
}

// WithEmbedRetry wraps p with automatic retry on transient HTTP errors.
//
//	embedding = papyr.WithEmbedRetry(hf.NewEmbedding(key, model, dims))
//	embedding = papyr.WithEmbedRetry(provider, papyr.RetryMaxAttempts(5))
func WithEmbedRetry(p EmbeddingProvider, opts ...RetryOption) EmbeddingProvider {
	return &retryEmbedding{inner: p, cfg: newRetryConfig(opts)}
}

func (r *retryEmbedding) Name() string    { return r.inner.Name() }
func (r *retryEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *retryEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return retryCall(ctx, r.cfg, r.inner.Name(), func() ([][]float32, error) {
		return r.inner.Embed(ctx, texts)
	})
}

// retryAnswer wraps an AnswerProvider with the same retry policy.
type retryAnswer struct {
	inner AnswerProvider
	cfg   retryConfig
}

// WithAnswerRetry wraps p with automatic retry on transient HTTP errors.
func WithAnswerRetry(p AnswerProvider, opts ...RetryOption) AnswerProvider {
	return &retryAnswer{inner: p, cfg: newRetryConfig(opts)}
}

func (r *retryAnswer) Name() string { return r.inner.Name() }

func (r *retryAnswer) ExtractAnswer(ctx context.Context, question, contextText string) (Answer, error) {
	return retryCall(ctx, r.cfg, r.inner.Name(), func() (Answer, error) {
		return r.inner.ExtractAnswer(ctx, question, contextText)
	})
}

// retryCall runs fn up to cfg.maxAttempts times, backing off between attempts
// on transient errors. Non-transient errors return immediately.
func retryCall[T any](ctx context.Context, cfg retryConfig, name string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < cfg.maxAttempts; i++ {
		resp, err := fn()
		if err == nil || !isTransient(err) {
			return resp, err
		}

		lastErr = err
		cfg.logger.Warn("retrying transient error",
			"provider", name,
			"status", statusOf(err),
			"attempt", i+1,
			"max_attempts", cfg.maxAttempts)

		if i < cfg.maxAttempts-1 {
			delay := retryDelay(cfg.baseDelay, i)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}

	cfg.logger.Error("all retry attempts exhausted",
		"provider", name,
		"attempts", cfg.maxAttempts,
		"error", lastErr)
	return zero, lastErr
}

// retryDelay returns the backoff for the given attempt: baseDelay doubled
// per attempt, plus up to 25% jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	d := base << attempt
	jitter := time.Duration(rand.Int63n(int64(d) / 4))
	return d + jitter
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *ErrHTTP
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// statusOf extracts the HTTP status code from an ErrHTTP, or 0.
func statusOf(err error) int {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// compile-time checks
var _ EmbeddingProvider = (*retryEmbedding)(nil)
var _ AnswerProvider = (*retryAnswer)(nil)
