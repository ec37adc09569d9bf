package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/llm"
)

// MaxCandidates 参与生成的最多文章数。
const MaxCandidates = 5

// SynthesizerConfig 生成器配置。
type SynthesizerConfig struct {
	// Style 默认提示词风格。
	Style Style
	// MaxCandidates 参与生成的文章上限。
	MaxCandidates int
	// Timeout 生成超时，超时后返回降级答案。
	Timeout time.Duration
}

// DefaultSynthesizerConfig 返回默认生成配置。
func DefaultSynthesizerConfig() *SynthesizerConfig {
	return &SynthesizerConfig{
		Style:         StyleQA,
		MaxCandidates: MaxCandidates,
		Timeout:       25 * time.Second,
	}
}

// Synthesis 生成结果。
type Synthesis struct {
	Answer     string
	References string
	Citations  []model.Citation
	// Degraded 生成超时，Answer 与 References 为固定文案。
	Degraded   bool
	TokenUsage *llm.TokenUsage
}

// Synthesizer 负责根据候选文章生成带引用的答案。
type Synthesizer struct {
	chatProvider llm.ChatProvider
	config       *SynthesizerConfig
}

// NewSynthesizer 创建生成器实例。
func NewSynthesizer(chatProvider llm.ChatProvider, config *SynthesizerConfig) *Synthesizer {
	if config == nil {
		config = DefaultSynthesizerConfig()
	}
	return &Synthesizer{
		chatProvider: chatProvider,
		config:       config,
	}
}

// Synthesize 使用默认风格生成答案。
func (s *Synthesizer) Synthesize(ctx context.Context, question string, candidates []model.RankedCandidate) (*Synthesis, error) {
	return s.SynthesizeAs(ctx, s.config.Style, question, candidates)
}

// SynthesizeAs 使用指定风格生成答案。
func (s *Synthesizer) SynthesizeAs(ctx context.Context, style Style, question string, candidates []model.RankedCandidate) (*Synthesis, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	// 1. 截断候选并分配引用编号
	limit := s.config.MaxCandidates
	if limit <= 0 {
		limit = MaxCandidates
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	cited := make([]citedEssay, len(candidates))
	citations := make([]model.Citation, len(candidates))
	for i, c := range candidates {
		cited[i] = citedEssay{refIndex: i + 1, essay: c.Essay}
		citations[i] = model.Citation{RefIndex: i + 1, Title: c.Essay.Title, URL: c.Essay.URL}
	}

	// 2. 构建提示词并在超时约束下调用 LLM
	cfg := style.Config()
	messages := buildMessages(style, question, cited)

	resp, err := s.chat(ctx, messages, llm.WithTemperature(cfg.Temperature), llm.WithMaxTokens(cfg.MaxTokens))
	if errors.Is(err, errGenerationTimeout) {
		logger.Warnw("answer generation timed out", "timeout", s.config.Timeout.String(), "candidates", len(cited))
		return &Synthesis{
			Answer:     TimeoutAnswer,
			References: TimeoutReferences,
			Citations:  []model.Citation{},
			Degraded:   true,
		}, nil
	}
	if err != nil {
		logger.Errorw("answer generation failed", "error", err.Error())
		return nil, &ProviderError{Op: "generate", Provider: s.chatProvider.Name(), Err: err}
	}

	// 3. 组装答案与引用
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		answer = EmptyGenerationAnswer
	}
	if resp.TokenUsage != nil {
		logger.Infof("LLM answer generated (length: %d, tokens: %d)", len(answer), resp.TokenUsage.TotalTokens)
	} else {
		logger.Infof("LLM answer generated (length: %d)", len(answer))
	}

	return &Synthesis{
		Answer:     answer,
		References: formatReferences(citations),
		Citations:  citations,
		TokenUsage: resp.TokenUsage,
	}, nil
}

var errGenerationTimeout = errors.New("generation timed out")

type chatResult struct {
	resp *llm.GenerateResponse
	err  error
}

// chat 与超时赛跑，provider 不响应取消时也能按时返回。
func (s *Synthesizer) chat(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (*llm.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	genCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	done := make(chan chatResult, 1)
	go func() {
		resp, err := s.chatProvider.Chat(genCtx, messages, opts...)
		done <- chatResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if genCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, errGenerationTimeout
			}
			return nil, r.err
		}
		if r.resp == nil {
			return nil, errors.New("provider returned no response")
		}
		return r.resp, nil
	case <-genCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errGenerationTimeout
	}
}
