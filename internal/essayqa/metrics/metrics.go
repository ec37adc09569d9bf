// Package metrics 提供问答服务的业务指标收集，并以 Prometheus Collector 形式导出。
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/pkg/llm/resilience"
)

// QAMetrics 问答服务业务指标。
type QAMetrics struct {
	// 查询指标
	queriesTotal       atomic.Uint64
	queriesCacheHits   atomic.Uint64
	queriesCacheMisses atomic.Uint64
	queriesErrors      atomic.Uint64
	queriesNoResult    atomic.Uint64

	// 检索指标
	retrievalTotal     atomic.Uint64
	retrievalErrors    atomic.Uint64
	retrievalFallbacks atomic.Uint64

	// LLM 调用指标
	llmCallsTotal       atomic.Uint64
	llmCallsErrors      atomic.Uint64
	llmCallsTimeouts    atomic.Uint64
	llmTokensPrompt     atomic.Uint64
	llmTokensCompletion atomic.Uint64

	// 评测指标
	evalSucceeded atomic.Uint64
	evalFailed    atomic.Uint64

	// 入库指标
	essaysIndexed atomic.Uint64
	indexErrors   atomic.Uint64

	durationMu        sync.Mutex
	retrievalDuration float64
	llmCallsDuration  float64

	breakersMu sync.RWMutex
	breakers   []*resilience.Breaker

	startTime time.Time
}

var (
	defaultMetrics *QAMetrics
	defaultOnce    sync.Once
)

// New 创建独立的指标实例。
func New() *QAMetrics {
	return &QAMetrics{startTime: time.Now()}
}

// Default 返回全局指标实例。
func Default() *QAMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// RecordQuery 记录一次问答。
func (m *QAMetrics) RecordQuery(cacheHit bool, err error) {
	m.queriesTotal.Add(1)
	if err != nil {
		m.queriesErrors.Add(1)
		return
	}
	if cacheHit {
		m.queriesCacheHits.Add(1)
	} else {
		m.queriesCacheMisses.Add(1)
	}
}

// RecordNoResult 记录检索为空、直接返回固定提示的问答。
func (m *QAMetrics) RecordNoResult() {
	m.queriesNoResult.Add(1)
}

// RecordRetrieval 记录一次检索。
func (m *QAMetrics) RecordRetrieval(duration time.Duration, outcome model.RetrievalOutcome, err error) {
	m.retrievalTotal.Add(1)
	if err != nil {
		m.retrievalErrors.Add(1)
		return
	}
	if outcome == model.OutcomeDegradedFallback {
		m.retrievalFallbacks.Add(1)
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordLLMCall 记录一次生成调用，超时降级单独计数。
func (m *QAMetrics) RecordLLMCall(duration time.Duration, promptTokens, completionTokens int, timedOut bool, err error) {
	m.llmCallsTotal.Add(1)
	if err != nil {
		m.llmCallsErrors.Add(1)
		return
	}
	if timedOut {
		m.llmCallsTimeouts.Add(1)
	}

	m.durationMu.Lock()
	m.llmCallsDuration += duration.Seconds()
	m.durationMu.Unlock()

	if promptTokens > 0 {
		m.llmTokensPrompt.Add(uint64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensCompletion.Add(uint64(completionTokens))
	}
}

// RecordEvaluation 记录一道评测题的结果。
func (m *QAMetrics) RecordEvaluation(success bool) {
	if success {
		m.evalSucceeded.Add(1)
	} else {
		m.evalFailed.Add(1)
	}
}

// RecordIndexing 记录入库结果。
func (m *QAMetrics) RecordIndexing(essays int, err error) {
	if err != nil {
		m.indexErrors.Add(1)
		return
	}
	m.essaysIndexed.Add(uint64(essays))
}

// WatchBreaker 将熔断器纳入统计。
func (m *QAMetrics) WatchBreaker(b *resilience.Breaker) {
	if b == nil {
		return
	}
	m.breakersMu.Lock()
	m.breakers = append(m.breakers, b)
	m.breakersMu.Unlock()
}

func (m *QAMetrics) breakerSnapshots() []resilience.Snapshot {
	m.breakersMu.RLock()
	defer m.breakersMu.RUnlock()

	out := make([]resilience.Snapshot, len(m.breakers))
	for i, b := range m.breakers {
		out[i] = b.Snapshot()
	}
	return out
}

func (m *QAMetrics) durations() (retrieval, llm float64) {
	m.durationMu.Lock()
	defer m.durationMu.Unlock()
	return m.retrievalDuration, m.llmCallsDuration
}

// Stats 返回当前统计信息（用于 API）。
func (m *QAMetrics) Stats() map[string]any {
	retrievalDuration, llmDuration := m.durations()

	cacheHits := m.queriesCacheHits.Load()
	cacheMisses := m.queriesCacheMisses.Load()
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	retrievalTotal := m.retrievalTotal.Load()
	avgRetrieval := 0.0
	if ok := retrievalTotal - m.retrievalErrors.Load(); ok > 0 {
		avgRetrieval = retrievalDuration / float64(ok)
	}

	llmTotal := m.llmCallsTotal.Load()
	avgLLM := 0.0
	if ok := llmTotal - m.llmCallsErrors.Load(); ok > 0 {
		avgLLM = llmDuration / float64(ok)
	}

	return map[string]any{
		"queries": map[string]any{
			"total":          m.queriesTotal.Load(),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"no_result":      m.queriesNoResult.Load(),
			"errors":         m.queriesErrors.Load(),
		},
		"retrieval": map[string]any{
			"total":               retrievalTotal,
			"fallbacks":           m.retrievalFallbacks.Load(),
			"errors":              m.retrievalErrors.Load(),
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrieval,
		},
		"llm": map[string]any{
			"calls_total":         llmTotal,
			"errors":              m.llmCallsErrors.Load(),
			"timeouts":            m.llmCallsTimeouts.Load(),
			"tokens_prompt":       m.llmTokensPrompt.Load(),
			"tokens_completion":   m.llmTokensCompletion.Load(),
			"total_duration_secs": llmDuration,
			"avg_duration_secs":   avgLLM,
		},
		"evaluation": map[string]any{
			"succeeded": m.evalSucceeded.Load(),
			"failed":    m.evalFailed.Load(),
		},
		"indexing": map[string]any{
			"essays_indexed": m.essaysIndexed.Load(),
			"errors":         m.indexErrors.Load(),
		},
		"circuit_breakers": m.breakerSnapshots(),
		"uptime_seconds":   time.Since(m.startTime).Seconds(),
	}
}
