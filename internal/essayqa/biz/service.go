package biz

import (
	"context"
	"strings"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/infra/tracing"
	"github.com/kart-io/essay-qa/pkg/llm"
)

// Service 定义问答服务接口。
type Service interface {
	// Answer 回答问题，交互入口与评测共用。
	Answer(ctx context.Context, question string) (*model.Answer, error)
	// Search 只做检索。
	Search(ctx context.Context, question string) (*RetrievalResult, error)
	// Summarize 对给定文章生成摘要式回答。
	Summarize(ctx context.Context, question string, candidates []model.RankedCandidate) (*Synthesis, error)
	// Stats 获取语料与运行统计。
	Stats(ctx context.Context) (map[string]any, error)
}

// ServiceConfig 问答服务配置。
type ServiceConfig struct {
	RetrieverConfig   *RetrieverConfig
	SynthesizerConfig *SynthesizerConfig
}

// QAService 组合 Retriever 和 Synthesizer 提供完整的问答链路。
type QAService struct {
	retriever     *Retriever
	synthesizer   *Synthesizer
	cache         *AnswerCache
	store         store.DocumentStore
	embedProvider llm.EmbeddingProvider
	chatProvider  llm.ChatProvider
	metrics       *metrics.QAMetrics
}

var _ Service = (*QAService)(nil)

// NewQAService 创建问答服务实例。cache 与 m 可为 nil。
func NewQAService(
	documentStore store.DocumentStore,
	embedProvider llm.EmbeddingProvider,
	chatProvider llm.ChatProvider,
	cache *AnswerCache,
	m *metrics.QAMetrics,
	config *ServiceConfig,
) *QAService {
	if config == nil {
		config = &ServiceConfig{}
	}
	if m == nil {
		m = metrics.Default()
	}
	return &QAService{
		retriever:     NewRetriever(documentStore, embedProvider, config.RetrieverConfig),
		synthesizer:   NewSynthesizer(chatProvider, config.SynthesizerConfig),
		cache:         cache,
		store:         documentStore,
		embedProvider: embedProvider,
		chatProvider:  chatProvider,
		metrics:       m,
	}
}

// Answer 执行完整问答：检索为空时直接返回固定提示，不调用生成。
func (s *QAService) Answer(ctx context.Context, question string) (answer *model.Answer, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, span := tracing.Start(ctx, "qa.answer", attribute.Int("question.length", len(question)))
	defer func() {
		if answer != nil {
			span.SetAttributes(
				attribute.String("retrieval.outcome", string(answer.Outcome)),
				attribute.Bool("answer.degraded", answer.Degraded),
			)
		}
		tracing.End(span, err)
	}()

	// 1. 尝试从缓存获取
	if cached, cacheErr := s.cache.Get(ctx, question); cacheErr == nil && cached != nil {
		s.metrics.RecordQuery(true, nil)
		return cached, nil
	}

	// 2. 检索相关文章
	retrieval, err := s.Search(ctx, question)
	if err != nil {
		s.metrics.RecordQuery(false, err)
		return nil, err
	}

	if retrieval.Outcome == model.OutcomeEmpty {
		s.metrics.RecordNoResult()
		s.metrics.RecordQuery(false, nil)
		return &model.Answer{
			Question:  question,
			Text:      NoRelevantInfoMessage,
			Citations: []model.Citation{},
			Sources:   []model.RankedCandidate{},
			Outcome:   model.OutcomeEmpty,
		}, nil
	}

	// 3. 生成答案
	synthesis, err := s.synthesize(ctx, s.synthesizer.config.Style, question, retrieval.Candidates)
	if err != nil {
		s.metrics.RecordQuery(false, err)
		return nil, err
	}

	used := retrieval.Candidates
	if len(used) > len(synthesis.Citations) && !synthesis.Degraded {
		used = used[:len(synthesis.Citations)]
	}
	answer = &model.Answer{
		Question:   question,
		Text:       synthesis.Answer,
		Citations:  synthesis.Citations,
		References: synthesis.References,
		Sources:    used,
		Outcome:    retrieval.Outcome,
		Degraded:   synthesis.Degraded,
	}

	// 4. 写入缓存，失败不影响返回
	_ = s.cache.Set(ctx, question, answer)

	s.metrics.RecordQuery(false, nil)
	return answer, nil
}

// Search 检索与问题相关的文章。
func (s *QAService) Search(ctx context.Context, question string) (result *RetrievalResult, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	ctx, span := tracing.Start(ctx, "qa.retrieve")
	defer func() {
		if result != nil {
			span.SetAttributes(
				attribute.String("retrieval.outcome", string(result.Outcome)),
				attribute.Int("retrieval.candidates", len(result.Candidates)),
			)
		}
		tracing.End(span, err)
	}()

	start := time.Now()
	result, err = s.retriever.Retrieve(ctx, question, 0)
	outcome := model.RetrievalOutcome("")
	if result != nil {
		outcome = result.Outcome
	}
	s.metrics.RecordRetrieval(time.Since(start), outcome, err)
	return result, err
}

// Summarize 以摘要风格对调用方给出的文章生成回答。
func (s *QAService) Summarize(ctx context.Context, question string, candidates []model.RankedCandidate) (*Synthesis, error) {
	return s.synthesize(ctx, StyleSummary, question, candidates)
}

func (s *QAService) synthesize(ctx context.Context, style Style, question string, candidates []model.RankedCandidate) (result *Synthesis, err error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	ctx, span := tracing.Start(ctx, "qa.synthesize",
		attribute.String("prompt.style", string(style)),
		attribute.String("llm.provider", s.chatProvider.Name()),
	)
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	result, err = s.synthesizer.SynthesizeAs(ctx, style, question, candidates)

	var prompt, completion int
	timedOut := false
	if result != nil {
		timedOut = result.Degraded
		if result.TokenUsage != nil {
			prompt = result.TokenUsage.PromptTokens
			completion = result.TokenUsage.CompletionTokens
		}
	}
	s.metrics.RecordLLMCall(time.Since(start), prompt, completion, timedOut, err)
	return result, err
}

// Stats 获取语料与运行统计。
func (s *QAService) Stats(ctx context.Context) (map[string]any, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		logger.Warnw("failed to count essays", "error", err.Error())
		return nil, err
	}

	stats := map[string]any{
		"essay_count":    count,
		"embed_provider": s.embedProvider.Name(),
		"chat_provider":  s.chatProvider.Name(),
		"metrics":        s.metrics.Stats(),
	}
	if cacheStats, err := s.cache.Stats(ctx); err == nil {
		stats["cache"] = cacheStats
	}
	return stats, nil
}
