package papyr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyEmbedding fails with the queued errors before succeeding.
type flakyEmbedding struct {
	mu     sync.Mutex
	errs   []error
	calls  int
	result [][]float32
}

func (f *flakyEmbedding) Name() string    { return "flaky" }
func (f *flakyEmbedding) Dimensions() int { return 2 }

func (f *flakyEmbedding) Embed(context.Context, []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.result, nil
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyEmbedding{
		errs:   []error{&ErrHTTP{Status: 429}, &ErrHTTP{Status: 503}},
		result: [][]float32{{1, 2}},
	}
	p := WithEmbedRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	got, err := p.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("got %d vectors", len(got))
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyEmbedding{errs: []error{
		&ErrHTTP{Status: 503}, &ErrHTTP{Status: 503}, &ErrHTTP{Status: 503},
	}}
	p := WithEmbedRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	_, err := p.Embed(context.Background(), []string{"a"})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 503 {
		t.Errorf("err = %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyEmbedding{errs: []error{&ErrHTTP{Status: 401, Body: "bad key"}}}
	p := WithEmbedRetry(inner, RetryMaxAttempts(5), RetryBaseDelay(time.Millisecond))

	_, err := p.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	inner := &flakyEmbedding{errs: []error{
		&ErrHTTP{Status: 429}, &ErrHTTP{Status: 429}, &ErrHTTP{Status: 429},
	}}
	p := WithEmbedRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Embed(ctx, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestAnswerRetry(t *testing.T) {
	calls := 0
	inner := answerFunc(func() (Answer, error) {
		calls++
		if calls == 1 {
			return Answer{}, &ErrHTTP{Status: 503, Body: "model loading"}
		}
		return Answer{Text: "ok", Score: 0.5}, nil
	})
	p := WithAnswerRetry(inner, RetryBaseDelay(time.Millisecond))

	ans, err := p.ExtractAnswer(context.Background(), "q", "c")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "ok" || calls != 2 {
		t.Errorf("ans = %+v, calls = %d", ans, calls)
	}
}

// answerFunc adapts a function to AnswerProvider.
type answerFunc func() (Answer, error)

func (answerFunc) Name() string { return "func" }
func (f answerFunc) ExtractAnswer(context.Context, string, string) (Answer, error) {
	return f()
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&ErrHTTP{Status: 429}, true},
		{&ErrHTTP{Status: 503}, true},
		{&ErrHTTP{Status: 500}, false},
		{&ErrHTTP{Status: 400}, false},
		{errors.New("plain"), false},
	}
	for _, tc := range cases {
		if got := isTransient(tc.err); got != tc.want {
			t.Errorf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestRetryDelayGrows(t *testing.T) {
	base := 100 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		d := retryDelay(base, attempt)
		min := base << attempt
		max := min + min/4
		if d < min || d > max {
			t.Errorf("attempt %d: delay %v outside [%v, %v]", attempt, d, min, max)
		}
	}
}
