package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/llm"
)

func TestSynthesizer_CitationIndexing(t *testing.T) {
	for n := 1; n <= 7; n++ {
		t.Run(fmt.Sprintf("%d candidates", n), func(t *testing.T) {
			chat := &mockChat{content: "Founders matter [1]."}
			s := NewSynthesizer(chat, nil)
			candidates := candidatesOf(n)

			got, err := s.Synthesize(context.Background(), "q", candidates)
			require.NoError(t, err)

			want := min(n, MaxCandidates)
			require.Len(t, got.Citations, want)
			entries := strings.Split(got.References, "\n\n")
			require.Len(t, entries, want)
			for i := range want {
				assert.Equal(t, i+1, got.Citations[i].RefIndex)
				assert.Equal(t, candidates[i].Essay.Title, got.Citations[i].Title)
				assert.Equal(t, fmt.Sprintf("[%d] \"%s\"", i+1, candidates[i].Essay.Title), entries[i])
			}
		})
	}
}

func TestSynthesizer_QAPrompt(t *testing.T) {
	chat := &mockChat{content: "  Solve your own problems [1].  ", usage: &llm.TokenUsage{TotalTokens: 42}}
	s := NewSynthesizer(chat, nil)

	got, err := s.Synthesize(context.Background(), "Where do startup ideas come from?", candidatesOf(2))
	require.NoError(t, err)
	assert.Equal(t, "Solve your own problems [1].", got.Answer)
	assert.False(t, got.Degraded)
	assert.Equal(t, 42, got.TokenUsage.TotalTokens)

	require.Len(t, chat.messages, 2)
	assert.Equal(t, llm.RoleSystem, chat.messages[0].Role)
	assert.Contains(t, chat.messages[0].Content, "Answer questions based ONLY on the provided essay extracts.")
	assert.Contains(t, chat.messages[0].Content, "[1], [2]")
	user := chat.messages[1].Content
	assert.True(t, strings.HasPrefix(user, "I want to know about the following: Where do startup ideas come from?"))
	assert.Contains(t, user, "## [1] How to Start a Startup\nStartups are about solving problems.\n")
	assert.Contains(t, user, "## [2] What I Worked On")

	require.NotNil(t, chat.options.Temperature)
	assert.InDelta(t, 0.3, *chat.options.Temperature, 1e-9)
	assert.Equal(t, 1000, chat.options.MaxTokens)
}

func TestSynthesizer_SummaryPrompt(t *testing.T) {
	chat := &mockChat{content: "summary"}
	s := NewSynthesizer(chat, nil)

	_, err := s.SynthesizeAs(context.Background(), StyleSummary, "What makes a good founder?", candidatesOf(1))
	require.NoError(t, err)

	require.Len(t, chat.messages, 1)
	assert.Equal(t, llm.RoleUser, chat.messages[0].Role)
	prompt := chat.messages[0].Content
	assert.Contains(t, prompt, `answer this question: "What makes a good founder?"`)
	assert.Contains(t, prompt, `Essay 1: "How to Start a Startup" (http://paulgraham.com/start.html)`)
	assert.Contains(t, prompt, "1. Use numbered citations like [1], [2], etc. when referencing specific essays")
	assert.Contains(t, prompt, "6. End with a one-sentence summary")

	require.NotNil(t, chat.options.Temperature)
	assert.InDelta(t, 0.7, *chat.options.Temperature, 1e-9)
	assert.Equal(t, 350, chat.options.MaxTokens)
}

func TestSynthesizer_ExcerptTruncation(t *testing.T) {
	long := strings.Repeat("字", 2000)
	candidates := []model.RankedCandidate{{Essay: model.Essay{ID: 1, Title: "Long", Content: long}}}

	chat := &mockChat{content: "ok"}
	_, err := NewSynthesizer(chat, nil).SynthesizeAs(context.Background(), StyleSummary, "q", candidates)
	require.NoError(t, err)
	assert.Contains(t, chat.messages[0].Content, strings.Repeat("字", 500)+"...")
	assert.NotContains(t, chat.messages[0].Content, strings.Repeat("字", 501))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "abc...", excerpt("abcdef", 3))
	assert.Equal(t, "héllo...", excerpt("héllo world", 5))
	assert.Equal(t, "abc", excerpt("abc", 0))
}

func TestSynthesizer_TimeoutDegrades(t *testing.T) {
	chat := &mockChat{block: make(chan struct{})}
	t.Cleanup(func() { close(chat.block) })
	s := NewSynthesizer(chat, &SynthesizerConfig{Style: StyleQA, MaxCandidates: 5, Timeout: 20 * time.Millisecond})

	start := time.Now()
	got, err := s.Synthesize(context.Background(), "q", candidatesOf(3))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, got.Degraded)
	assert.Equal(t, TimeoutAnswer, got.Answer)
	assert.Equal(t, TimeoutReferences, got.References)
	assert.Empty(t, got.Citations)
}

func TestSynthesizer_DeadlineErrorFromProviderDegrades(t *testing.T) {
	chat := &mockChat{}
	s := NewSynthesizer(&deadlineChat{mockChat: chat}, &SynthesizerConfig{Timeout: 10 * time.Millisecond})

	got, err := s.Synthesize(context.Background(), "q", candidatesOf(1))
	require.NoError(t, err)
	assert.True(t, got.Degraded)
}

// deadlineChat 等到 ctx 超时后返回 ctx 错误，模拟遵守取消的 HTTP provider。
type deadlineChat struct {
	*mockChat
}

func (d *deadlineChat) Chat(ctx context.Context, _ []llm.Message, _ ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSynthesizer_ProviderError(t *testing.T) {
	chat := &mockChat{err: errors.New("429 rate limited")}
	s := NewSynthesizer(chat, nil)

	_, err := s.Synthesize(context.Background(), "q", candidatesOf(2))

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "generate", pe.Op)
	assert.Equal(t, "mock-chat", pe.Provider)
	assert.Equal(t, 1, chat.callCount())
}

func TestSynthesizer_CanceledParentIsNotDegraded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSynthesizer(&mockChat{content: "x"}, nil).Synthesize(ctx, "q", candidatesOf(1))
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthesizer_NoCandidates(t *testing.T) {
	chat := &mockChat{content: "x"}
	_, err := NewSynthesizer(chat, nil).Synthesize(context.Background(), "q", nil)

	assert.ErrorIs(t, err, ErrNoCandidates)
	var nce *NoCandidatesError
	assert.ErrorAs(t, err, &nce)
	assert.Equal(t, 0, chat.callCount())
}

func TestSynthesizer_EmptyGeneration(t *testing.T) {
	got, err := NewSynthesizer(&mockChat{content: "   "}, nil).Synthesize(context.Background(), "q", candidatesOf(1))
	require.NoError(t, err)
	assert.Equal(t, EmptyGenerationAnswer, got.Answer)
	assert.Equal(t, `[1] "How to Start a Startup"`, got.References)
}

func TestParseStyle(t *testing.T) {
	s, err := ParseStyle(" Summary ")
	require.NoError(t, err)
	assert.Equal(t, StyleSummary, s)

	_, err = ParseStyle("poem")
	assert.Error(t, err)

	assert.Equal(t, StyleQA.Config(), Style("unknown").Config())
}
