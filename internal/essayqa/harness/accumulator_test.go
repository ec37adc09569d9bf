package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/essay-qa/internal/pkg/evaluator"
)

func scored(overall float64) Result {
	return Result{
		Status:  StatusSuccess,
		Metrics: evaluator.Metrics{Relevance: overall, Accuracy: overall, Completeness: overall, Citation: overall, Overall: overall},
	}
}

func TestAccumulator_AddDoesNotMutate(t *testing.T) {
	var base Accumulator
	next := base.Add(scored(0.8))

	assert.Equal(t, 0, base.Metrics().Total)
	assert.Equal(t, 1, next.Metrics().Total)
	assert.InDelta(t, 0.8, next.Metrics().AverageScores.Overall, 1e-9)
}

func TestAggregate_ExcludesFailed(t *testing.T) {
	results := []Result{
		scored(0.8),
		scored(0.6),
		{Status: StatusFailed, Error: "timeout"},
	}

	m := Aggregate(results)

	assert.Equal(t, 3, m.Total)
	assert.Equal(t, 2, m.Successful)
	assert.Equal(t, 1, m.Failed)
	assert.InDelta(t, 0.7, m.AverageScores.Overall, 1e-9)
	assert.InDelta(t, 0.7, m.AverageScores.Citation, 1e-9)
}

func TestAggregate_SuccessfulZeroScoreCounts(t *testing.T) {
	m := Aggregate([]Result{scored(0.9), scored(0)})

	assert.Equal(t, 2, m.Successful)
	assert.InDelta(t, 0.45, m.AverageScores.Overall, 1e-9)
}

func TestAggregate_NoSuccess(t *testing.T) {
	m := Aggregate([]Result{{Status: StatusFailed}})

	assert.Equal(t, 1, m.Failed)
	assert.Equal(t, evaluator.ZeroMetrics(), m.AverageScores)

	assert.Equal(t, RunMetrics{}, Aggregate(nil))
}
