package biz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/internal/model"
)

func newTestService(s store.DocumentStore, embed *mockEmbedder, chat *mockChat, cache *AnswerCache, synth *SynthesizerConfig) (*QAService, *metrics.QAMetrics) {
	m := metrics.New()
	return NewQAService(s, embed, chat, cache, m, &ServiceConfig{SynthesizerConfig: synth}), m
}

func TestQAService_EmptyRetrievalSkipsSynthesis(t *testing.T) {
	chat := &mockChat{content: "should not be used"}
	svc, m := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{vector: []float32{0, 0, -1}}, chat, nil, nil)

	answer, err := svc.Answer(context.Background(), "What is the capital of Peru?")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantInfoMessage, answer.Text)
	assert.Equal(t, model.OutcomeEmpty, answer.Outcome)
	assert.Empty(t, answer.Citations)
	assert.Empty(t, answer.References)
	assert.Equal(t, 0, chat.callCount())
	assert.Equal(t, uint64(1), m.Stats()["queries"].(map[string]any)["no_result"])
}

func TestQAService_Matched(t *testing.T) {
	chat := &mockChat{content: "Look for problems you have yourself [1]."}
	svc, _ := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{vector: []float32{1, 0, 0}}, chat, nil, nil)

	answer, err := svc.Answer(context.Background(), "  How do I get startup ideas?  ")
	require.NoError(t, err)
	assert.Equal(t, "How do I get startup ideas?", answer.Question)
	assert.Equal(t, "Look for problems you have yourself [1].", answer.Text)
	assert.Equal(t, model.OutcomeMatched, answer.Outcome)
	assert.False(t, answer.Degraded)
	require.Len(t, answer.Citations, 5)
	assert.Equal(t, "How to Start a Startup", answer.Citations[0].Title)
	assert.Len(t, answer.Sources, 5)
	assert.Equal(t, answer.Titles()[1], answer.Sources[1].Essay.Title)
	assert.Equal(t, 1, chat.callCount())
}

func TestQAService_DegradedFallbackStillSynthesizes(t *testing.T) {
	s := &failingStore{MemoryStore: store.NewMemoryStore(corpus()...), searchErr: errRPC}
	chat := &mockChat{content: "answer"}
	svc, m := newTestService(s, &mockEmbedder{vector: []float32{1, 0, 0}}, chat, nil, nil)

	answer, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeDegradedFallback, answer.Outcome)
	assert.Equal(t, "What I Worked On", answer.Citations[1].Title)
	assert.Equal(t, 1, chat.callCount())
	assert.Equal(t, uint64(1), m.Stats()["retrieval"].(map[string]any)["fallbacks"])
}

func TestQAService_TimeoutIsNotAnError(t *testing.T) {
	chat := &mockChat{block: make(chan struct{})}
	t.Cleanup(func() { close(chat.block) })
	svc, m := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{vector: []float32{1, 0, 0}}, chat, nil,
		&SynthesizerConfig{Style: StyleQA, Timeout: 20 * time.Millisecond})

	answer, err := svc.Answer(context.Background(), "q")
	require.NoError(t, err)
	assert.True(t, answer.Degraded)
	assert.Equal(t, TimeoutAnswer, answer.Text)
	assert.Equal(t, TimeoutReferences, answer.References)
	assert.Equal(t, uint64(1), m.Stats()["llm"].(map[string]any)["timeouts"])
}

func TestQAService_Errors(t *testing.T) {
	embedErr := errors.New("embedding backend down")
	svc, m := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{err: embedErr}, &mockChat{}, nil, nil)

	_, err := svc.Answer(context.Background(), "q")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, uint64(1), m.Stats()["queries"].(map[string]any)["errors"])

	_, err = svc.Answer(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)

	_, err = svc.Search(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestQAService_GenerationErrorPropagates(t *testing.T) {
	svc, _ := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{vector: []float32{1, 0, 0}},
		&mockChat{err: errors.New("500")}, nil, nil)

	_, err := svc.Answer(context.Background(), "q")
	var pe *ProviderError
	assert.ErrorAs(t, err, &pe)
}

func TestQAService_Summarize(t *testing.T) {
	chat := &mockChat{content: "A **summary** [1]."}
	svc, _ := newTestService(store.NewMemoryStore(), &mockEmbedder{}, chat, nil, nil)

	got, err := svc.Summarize(context.Background(), "q", candidatesOf(2))
	require.NoError(t, err)
	assert.Equal(t, "A **summary** [1].", got.Answer)
	assert.Equal(t, "[1] \"How to Start a Startup\"\n\n[2] \"What I Worked On\"", got.References)
	assert.Equal(t, 350, chat.options.MaxTokens)

	_, err = svc.Summarize(context.Background(), "q", nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestQAService_CachesMatchedAnswers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := NewAnswerCache(rdb, &AnswerCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "test:"})

	chat := &mockChat{content: "cached answer [1]"}
	svc, m := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{vector: []float32{1, 0, 0}}, chat, cache, nil)

	first, err := svc.Answer(context.Background(), "Why do startups fail?")
	require.NoError(t, err)
	second, err := svc.Answer(context.Background(), "why do   startups fail?")
	require.NoError(t, err)

	assert.Equal(t, 1, chat.callCount())
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Citations, second.Citations)
	assert.Equal(t, uint64(1), m.Stats()["queries"].(map[string]any)["cache_hits"])
}

func TestQAService_DoesNotCacheEmptyOrDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	cache := NewAnswerCache(rdb, &AnswerCacheConfig{Enabled: true, TTL: time.Minute, KeyPrefix: "test:"})

	svc, _ := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{vector: []float32{0, 0, -1}}, &mockChat{}, cache, nil)
	_, err := svc.Answer(context.Background(), "nothing matches")
	require.NoError(t, err)

	s := &failingStore{MemoryStore: store.NewMemoryStore(corpus()...), searchErr: errRPC}
	svc, _ = newTestService(s, &mockEmbedder{vector: []float32{1, 0, 0}}, &mockChat{content: "x"}, cache, nil)
	_, err = svc.Answer(context.Background(), "fallback answer")
	require.NoError(t, err)

	assert.Empty(t, mr.Keys())
}

func TestQAService_Stats(t *testing.T) {
	svc, _ := newTestService(store.NewMemoryStore(corpus()...), &mockEmbedder{}, &mockChat{}, nil, nil)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), stats["essay_count"])
	assert.Equal(t, "mock-embed", stats["embed_provider"])
	assert.Equal(t, "mock-chat", stats["chat_provider"])
	assert.Equal(t, map[string]any{"enabled": false}, stats["cache"])
}
