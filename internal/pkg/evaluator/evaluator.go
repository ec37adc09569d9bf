// Package evaluator 提供问答结果的评分能力。
//
// 两种评分方式共用 Evaluator 接口：
//   - JudgeEvaluator: 由评审模型按固定提示词打分并解析分数
//   - HumanEvaluator: 在终端逐项询问人工评分，并在每题后落盘
//
// 所有分数为 1-10 的整数，对外统一归一化为 0-1。
//
// 使用示例:
//
//	judge := evaluator.NewJudgeEvaluator(chatProvider, evaluator.WithTimeout(time.Minute))
//	metrics, err := judge.Evaluate(ctx, evaluator.EvalInput{
//	    Question:     "How should founders think about fundraising?",
//	    SystemAnswer: answer.Text,
//	    GoldenAnswer: golden.Answer,
//	})
package evaluator

import (
	"context"
	"errors"
)

// ErrInputClosed 人工评分的输入流已结束（EOF 或已 Close），运行应当中止。
var ErrInputClosed = errors.New("evaluation input closed")

// EvalInput 单个问题的评分输入。
type EvalInput struct {
	// Question 原始问题。
	Question string `json:"question"`

	// SystemAnswer 系统生成的答案。
	SystemAnswer string `json:"systemAnswer"`

	// GoldenAnswer 人工撰写的标准答案。
	GoldenAnswer string `json:"goldenAnswer"`

	// KeyPoints 答案应当覆盖的要点。
	KeyPoints []string `json:"keyPoints"`

	// RetrievedEssays 系统引用的文章标题。
	RetrievedEssays []string `json:"retrievedEssays"`
}

// Metrics 五个维度的归一化分数 (0-1)。
type Metrics struct {
	Relevance    float64 `json:"relevance"`
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Citation     float64 `json:"citation"`
	Overall      float64 `json:"overall"`
}

// ZeroMetrics 返回全零分数，用于评审失败的情况。
func ZeroMetrics() Metrics {
	return Metrics{}
}

// RawScores 1-10 的原始整数分数，0 表示缺失。
type RawScores struct {
	Relevance    int `json:"relevance"`
	Accuracy     int `json:"accuracy"`
	Completeness int `json:"completeness"`
	Citation     int `json:"citation"`
	Overall      int `json:"overall"`
}

// Metrics 将原始分数除以 10 归一化。
func (r RawScores) Metrics() Metrics {
	return Metrics{
		Relevance:    float64(r.Relevance) / 10,
		Accuracy:     float64(r.Accuracy) / 10,
		Completeness: float64(r.Completeness) / 10,
		Citation:     float64(r.Citation) / 10,
		Overall:      float64(r.Overall) / 10,
	}
}

// Evaluator 评分器接口。
type Evaluator interface {
	// Evaluate 为一个问题的系统答案打分。
	Evaluate(ctx context.Context, in EvalInput) (Metrics, error)

	// Name 返回评分器名称（judge 或 human）。
	Name() string
}
