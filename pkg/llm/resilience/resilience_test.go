package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/pkg/llm"
	"github.com/kart-io/essay-qa/pkg/utils/httpclient"
)

var errUpstream = &httpclient.StatusError{StatusCode: http.StatusBadGateway, Body: "bad gateway"}

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		assert.Error(t, b.Do(func() error { return errUpstream }))
	}
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	require.Error(t, b.Do(func() error { return errUpstream }))
	require.Equal(t, StateOpen, b.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.Do(func() error { return nil }))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("test", &BreakerConfig{MaxFailures: 1, Cooldown: time.Minute})
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errUpstream })
	now = now.Add(2 * time.Minute)
	_ = b.Do(func() error { return errUpstream })

	assert.Equal(t, StateOpen, b.State())
	snap := b.Snapshot()
	assert.Equal(t, "open", snap.State)
	assert.Equal(t, 2, snap.Failures)

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestRetry_EventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return errUpstream
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	badRequest := &httpclient.StatusError{StatusCode: http.StatusBadRequest}
	err := Retry(context.Background(), fastRetry(5), func() error {
		calls++
		return badRequest
	})
	assert.ErrorIs(t, err, badRequest)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustedWrapsLastError(t *testing.T) {
	err := Retry(context.Background(), fastRetry(2), func() error { return errUpstream })
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}

	go cancel()
	err := Retry(ctx, cfg, func() error { return errUpstream })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(ErrCircuitOpen))
	assert.True(t, IsRetryable(&httpclient.StatusError{StatusCode: http.StatusTooManyRequests}))
	assert.False(t, IsRetryable(errors.New("plain")))
}

type flakyChat struct {
	fails int
	calls int
}

func (f *flakyChat) Chat(_ context.Context, _ []llm.Message, _ ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errUpstream
	}
	return &llm.GenerateResponse{Content: "ok"}, nil
}

func (f *flakyChat) Generate(ctx context.Context, prompt, system string, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	return f.Chat(ctx, llm.BuildMessages(prompt, system), opts...)
}

func (f *flakyChat) Name() string { return "flaky" }

func TestWrapChat_RetriesThroughBreaker(t *testing.T) {
	inner := &flakyChat{fails: 1}
	p := WrapChat(inner, fastRetry(3), nil)

	resp, err := p.Generate(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, "flaky", p.Name())
	assert.Equal(t, StateClosed, p.Breaker().State())
}

func TestWrapChat_NoRetryCallsOnce(t *testing.T) {
	inner := &flakyChat{fails: 1}
	p := WrapChat(inner, NoRetryConfig(), nil)

	_, err := p.Generate(context.Background(), "q", "")
	assert.Same(t, errUpstream, err)
	assert.Equal(t, 1, inner.calls)
}
