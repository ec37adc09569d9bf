package harness

import "github.com/kart-io/essay-qa/internal/pkg/evaluator"

// RunMetrics 一次评测运行的汇总指标。
type RunMetrics struct {
	Total         int               `json:"total"`
	Successful    int               `json:"successful"`
	Failed        int               `json:"failed"`
	AverageScores evaluator.Metrics `json:"averageScores"`
}

// Accumulator 按值传递的累加器，Add 返回新值，不修改接收者。
type Accumulator struct {
	total      int
	successful int
	sum        evaluator.Metrics
}

// Add 累加一条结果，只有成功的结果计入分数。
func (a Accumulator) Add(r Result) Accumulator {
	a.total++
	if r.Status != StatusSuccess {
		return a
	}
	a.successful++
	a.sum.Relevance += r.Metrics.Relevance
	a.sum.Accuracy += r.Metrics.Accuracy
	a.sum.Completeness += r.Metrics.Completeness
	a.sum.Citation += r.Metrics.Citation
	a.sum.Overall += r.Metrics.Overall
	return a
}

// Metrics 返回当前汇总，没有成功结果时平均分为 0。
func (a Accumulator) Metrics() RunMetrics {
	out := RunMetrics{
		Total:      a.total,
		Successful: a.successful,
		Failed:     a.total - a.successful,
	}
	if a.successful == 0 {
		return out
	}
	n := float64(a.successful)
	out.AverageScores = evaluator.Metrics{
		Relevance:    a.sum.Relevance / n,
		Accuracy:     a.sum.Accuracy / n,
		Completeness: a.sum.Completeness / n,
		Citation:     a.sum.Citation / n,
		Overall:      a.sum.Overall / n,
	}
	return out
}

// Aggregate 对一组结果求汇总指标。
func Aggregate(results []Result) RunMetrics {
	var acc Accumulator
	for _, r := range results {
		acc = acc.Add(r)
	}
	return acc.Metrics()
}
