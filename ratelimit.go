package papyr

import (
	"context"

	"golang.org/x/time/rate"
)

// rpmLimiter builds a token bucket for a requests-per-minute budget. The
// bucket refills at rpm/60 per second and holds the full minute budget as
// burst, so a quiet client can spend it in one spike. A nil limiter means
// limiting is disabled.
func rpmLimiter(rpm int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rpm)/60, rpm)
}

// rateLimitEmbedding wraps an EmbeddingProvider with proactive rate limiting.
type rateLimitEmbedding struct {
	inner EmbeddingProvider
	lim   *rate.Limiter
}

// WithEmbedRateLimit wraps p so that at most rpm Embed calls proceed per
// minute; excess calls block until the bucket refills or ctx ends. rpm <= 0
// disables limiting. Compose with other wrappers:
//
//	embedding = papyr.WithEmbedRateLimit(papyr.WithEmbedRetry(provider), 60)
func WithEmbedRateLimit(p EmbeddingProvider, rpm int) EmbeddingProvider {
	return &rateLimitEmbedding{inner: p, lim: rpmLimiter(rpm)}
}

func (r *rateLimitEmbedding) Name() string    { return r.inner.Name() }
func (r *rateLimitEmbedding) Dimensions() int { return r.inner.Dimensions() }

func (r *rateLimitEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if r.lim != nil {
		if err := r.lim.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return r.inner.Embed(ctx, texts)
}

// rateLimitAnswer wraps an AnswerProvider with proactive rate limiting.
type rateLimitAnswer struct {
	inner AnswerProvider
	lim   *rate.Limiter
}

// WithAnswerRateLimit wraps p so that at most rpm ExtractAnswer calls proceed
// per minute. rpm <= 0 disables limiting.
func WithAnswerRateLimit(p AnswerProvider, rpm int) AnswerProvider {
	return &rateLimitAnswer{inner: p, lim: rpmLimiter(rpm)}
}

func (r *rateLimitAnswer) Name() string { return r.inner.Name() }

func (r *rateLimitAnswer) ExtractAnswer(ctx context.Context, question, contextText string) (Answer, error) {
	if r.lim != nil {
		if err := r.lim.Wait(ctx); err != nil {
			return Answer{}, err
		}
	}
	return r.inner.ExtractAnswer(ctx, question, contextText)
}

// compile-time checks
var _ EmbeddingProvider = (*rateLimitEmbedding)(nil)
var _ AnswerProvider = (*rateLimitAnswer)(nil)
