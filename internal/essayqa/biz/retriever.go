package biz

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/llm"
)

// DefaultMatchCount 默认检索条数。
const DefaultMatchCount = 5

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// Threshold 相似度阈值，严格大于该值才算命中。
	Threshold float32
	// MatchCount 调用方未指定 limit 时的返回条数。
	MatchCount int
	// Timeout 向量化与检索的总超时，0 表示不限制。
	Timeout time.Duration
}

// DefaultRetrieverConfig 返回默认检索配置。
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		Threshold:  0.5,
		MatchCount: DefaultMatchCount,
		Timeout:    30 * time.Second,
	}
}

// RetrievalResult 带标签的检索结果。
type RetrievalResult struct {
	Outcome    model.RetrievalOutcome
	Candidates []model.RankedCandidate
	// Cause 降级时记录检索失败的原因。
	Cause error
}

// Degraded 报告结果是否来自降级切片。
func (r *RetrievalResult) Degraded() bool {
	return r.Outcome == model.OutcomeDegradedFallback
}

// Titles 返回候选文章标题。
func (r *RetrievalResult) Titles() []string {
	titles := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		titles[i] = c.Essay.Title
	}
	return titles
}

// Retriever 负责文章检索。
type Retriever struct {
	store         store.DocumentStore
	embedProvider llm.EmbeddingProvider
	config        *RetrieverConfig
}

// NewRetriever 创建检索器实例。
func NewRetriever(documentStore store.DocumentStore, embedProvider llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	return &Retriever{
		store:         documentStore,
		embedProvider: embedProvider,
		config:        config,
	}
}

// Retrieve 检索与问题相关的文章，limit <= 0 时使用配置的条数。
func (r *Retriever) Retrieve(ctx context.Context, question string, limit int) (*RetrievalResult, error) {
	if limit <= 0 {
		limit = r.config.MatchCount
	}
	if limit <= 0 {
		limit = DefaultMatchCount
	}
	logger.Infof("Processing query: %s", question)

	searchCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	// 1. 问题向量化
	embedding, err := r.embedProvider.EmbedSingle(searchCtx, question)
	if err != nil {
		return nil, &ProviderError{Op: "embed", Provider: r.embedProvider.Name(), Err: err}
	}

	// 2. 相似度检索
	candidates, err := r.store.SimilaritySearch(searchCtx, embedding, r.config.Threshold, limit)
	if err == nil {
		if len(candidates) == 0 {
			logger.Infow("no essays above threshold", "threshold", r.config.Threshold)
			return &RetrievalResult{Outcome: model.OutcomeEmpty, Candidates: []model.RankedCandidate{}}, nil
		}
		return &RetrievalResult{Outcome: model.OutcomeMatched, Candidates: candidates}, nil
	}

	// 3. 检索链路失败，降级为按 ID 顺序的前 limit 篇
	var qe *StoreQueryError
	if !errors.As(err, &qe) {
		err = &StoreQueryError{Op: "similarity search", Err: err}
	}
	logger.Warnw("similarity search failed, falling back to first essays", "error", err.Error(), "limit", limit)

	essays, fbErr := r.store.FirstN(ctx, limit)
	if fbErr != nil {
		logger.Errorw("fallback query failed", "error", fbErr.Error())
		return nil, &StoreQueryError{Op: "fallback", Err: errors.Join(err, fbErr)}
	}

	if len(essays) == 0 {
		return &RetrievalResult{Outcome: model.OutcomeEmpty, Candidates: []model.RankedCandidate{}, Cause: err}, nil
	}

	fallback := make([]model.RankedCandidate, len(essays))
	for i, e := range essays {
		fallback[i] = model.RankedCandidate{Essay: e}
	}
	return &RetrievalResult{
		Outcome:    model.OutcomeDegradedFallback,
		Candidates: fallback,
		Cause:      err,
	}, nil
}
