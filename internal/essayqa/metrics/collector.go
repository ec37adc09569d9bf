package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kart-io/essay-qa/pkg/llm/resilience"
)

var _ prometheus.Collector = (*Collector)(nil)

// Collector exports QAMetrics counters to Prometheus at scrape time.
type Collector struct {
	m *QAMetrics

	queries       *prometheus.Desc
	retrievals    *prometheus.Desc
	retrievalSecs *prometheus.Desc
	llmCalls      *prometheus.Desc
	llmSecs       *prometheus.Desc
	llmTokens     *prometheus.Desc
	evaluations   *prometheus.Desc
	indexed       *prometheus.Desc
	breakerState  *prometheus.Desc
	uptime        *prometheus.Desc
}

// NewCollector creates a collector for m under the given namespace.
func NewCollector(namespace string, m *QAMetrics) *Collector {
	name := func(n string) string { return prometheus.BuildFQName(namespace, "", n) }
	return &Collector{
		m:             m,
		queries:       prometheus.NewDesc(name("queries_total"), "Questions answered, by result.", []string{"result"}, nil),
		retrievals:    prometheus.NewDesc(name("retrievals_total"), "Retrievals, by outcome.", []string{"outcome"}, nil),
		retrievalSecs: prometheus.NewDesc(name("retrieval_duration_seconds_total"), "Cumulative successful retrieval time.", nil, nil),
		llmCalls:      prometheus.NewDesc(name("llm_calls_total"), "Generation calls, by result.", []string{"result"}, nil),
		llmSecs:       prometheus.NewDesc(name("llm_duration_seconds_total"), "Cumulative generation time.", nil, nil),
		llmTokens:     prometheus.NewDesc(name("llm_tokens_total"), "Tokens consumed by generation, by kind.", []string{"kind"}, nil),
		evaluations:   prometheus.NewDesc(name("evaluations_total"), "Evaluated questions, by status.", []string{"status"}, nil),
		indexed:       prometheus.NewDesc(name("essays_indexed_total"), "Essays embedded and stored.", nil, nil),
		breakerState:  prometheus.NewDesc(name("circuit_breaker_state"), "Circuit breaker state (0 closed, 1 open, 2 half-open).", []string{"name"}, nil),
		uptime:        prometheus.NewDesc(name("uptime_seconds"), "Seconds since the metrics were created.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.queries, c.retrievals, c.retrievalSecs, c.llmCalls, c.llmSecs,
		c.llmTokens, c.evaluations, c.indexed, c.breakerState, c.uptime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.m
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.queries, m.queriesCacheHits.Load(), "cache_hit")
	counter(c.queries, m.queriesCacheMisses.Load(), "cache_miss")
	counter(c.queries, m.queriesErrors.Load(), "error")
	counter(c.queries, m.queriesNoResult.Load(), "no_result")

	total := m.retrievalTotal.Load()
	errs := m.retrievalErrors.Load()
	fallbacks := m.retrievalFallbacks.Load()
	counter(c.retrievals, total-errs-fallbacks, "ok")
	counter(c.retrievals, fallbacks, "degraded_fallback")
	counter(c.retrievals, errs, "error")

	llmTotal := m.llmCallsTotal.Load()
	llmErrs := m.llmCallsErrors.Load()
	timeouts := m.llmCallsTimeouts.Load()
	counter(c.llmCalls, llmTotal-llmErrs-timeouts, "ok")
	counter(c.llmCalls, timeouts, "timeout")
	counter(c.llmCalls, llmErrs, "error")
	counter(c.llmTokens, m.llmTokensPrompt.Load(), "prompt")
	counter(c.llmTokens, m.llmTokensCompletion.Load(), "completion")

	counter(c.evaluations, m.evalSucceeded.Load(), "success")
	counter(c.evaluations, m.evalFailed.Load(), "failed")
	counter(c.indexed, m.essaysIndexed.Load())

	retrievalSecs, llmSecs := m.durations()
	ch <- prometheus.MustNewConstMetric(c.retrievalSecs, prometheus.CounterValue, retrievalSecs)
	ch <- prometheus.MustNewConstMetric(c.llmSecs, prometheus.CounterValue, llmSecs)

	for _, s := range m.breakerSnapshots() {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, breakerValue(s.State), s.Name)
	}
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(m.startTime).Seconds())
}

func breakerValue(state string) float64 {
	switch state {
	case resilience.StateOpen.String():
		return 1
	case resilience.StateHalfOpen.String():
		return 2
	default:
		return 0
	}
}
