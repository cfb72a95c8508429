package papyr

import (
	"context"
	"testing"
	"time"
)

func TestRateLimitAllowsWithinBudget(t *testing.T) {
	inner := &fakeEmbedding{dims: 2}
	p := WithEmbedRateLimit(inner, 60)

	for i := 0; i < 5; i++ {
		if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if inner.calls != 5 {
		t.Errorf("calls = %d", inner.calls)
	}
}

func TestRateLimitBlocksWhenExhausted(t *testing.T) {
	inner := &fakeEmbedding{dims: 2}
	p := WithEmbedRateLimit(inner, 1)

	if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
		t.Fatal(err)
	}

	// Budget spent; the bucket refills in ~60s, so a short deadline must
	// surface an error without reaching the provider.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Embed(ctx, []string{"b"}); err == nil {
		t.Error("expected wait error when budget is exhausted")
	}
	if inner.calls != 1 {
		t.Errorf("provider called %d times, want 1", inner.calls)
	}
}

func TestRateLimitDisabledWhenZero(t *testing.T) {
	inner := &fakeEmbedding{dims: 2}
	p := WithEmbedRateLimit(inner, 0)

	for i := 0; i < 100; i++ {
		if _, err := p.Embed(context.Background(), []string{"a"}); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 100 {
		t.Errorf("calls = %d", inner.calls)
	}
}

func TestRateLimitDelegates(t *testing.T) {
	inner := &fakeEmbedding{dims: 7}
	p := WithEmbedRateLimit(inner, 10)
	if p.Name() != "fake-embedding" || p.Dimensions() != 7 {
		t.Error("Name/Dimensions not delegated")
	}
}

func TestAnswerRateLimit(t *testing.T) {
	inner := &fakeAnswerProvider{ans: Answer{Text: "yes", Score: 0.6}}
	p := WithAnswerRateLimit(inner, 1)

	ans, err := p.ExtractAnswer(context.Background(), "q", "c")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "yes" {
		t.Errorf("ans = %+v", ans)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.ExtractAnswer(ctx, "q", "c"); err == nil {
		t.Error("expected wait error when budget is exhausted")
	}
}

func TestRPMLimiterDisabled(t *testing.T) {
	if rpmLimiter(0) != nil || rpmLimiter(-5) != nil {
		t.Error("non-positive rpm must disable limiting")
	}
	if rpmLimiter(60) == nil {
		t.Error("positive rpm must build a limiter")
	}
}
