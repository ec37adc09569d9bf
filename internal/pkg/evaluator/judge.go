package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/pkg/llm"
)

const (
	defaultJudgeTimeout     = 60 * time.Second
	defaultJudgeTemperature = 0.2
)

// JudgeEvaluator 使用评审模型为答案打分。
type JudgeEvaluator struct {
	chat        llm.ChatProvider
	timeout     time.Duration
	temperature float64
}

var _ Evaluator = (*JudgeEvaluator)(nil)

// Option 配置 JudgeEvaluator。
type Option func(*JudgeEvaluator)

// WithTimeout 设置单次评审调用的超时时间。
func WithTimeout(d time.Duration) Option {
	return func(e *JudgeEvaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTemperature 覆盖评审采样温度。
func WithTemperature(t float64) Option {
	return func(e *JudgeEvaluator) {
		e.temperature = t
	}
}

// NewJudgeEvaluator 创建评审评分器。
func NewJudgeEvaluator(chat llm.ChatProvider, opts ...Option) *JudgeEvaluator {
	e := &JudgeEvaluator{
		chat:        chat,
		timeout:     defaultJudgeTimeout,
		temperature: defaultJudgeTemperature,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name 返回评分器名称。
func (e *JudgeEvaluator) Name() string {
	return "judge"
}

// Evaluate 调用评审模型并解析五项分数。
// 评审调用失败时返回全零分数且不返回错误，只有父 context 取消才返回错误。
func (e *JudgeEvaluator) Evaluate(ctx context.Context, in EvalInput) (Metrics, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.chat.Generate(callCtx, BuildJudgePrompt(in), "", llm.WithTemperature(e.temperature))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ZeroMetrics(), ctxErr
		}
		logger.Warnw("judge evaluation failed, scoring zeros",
			"provider", e.chat.Name(),
			"question", in.Question,
			"error", err.Error(),
		)
		return ZeroMetrics(), nil
	}

	parsed := ParseScores(resp.Content)
	if perr := parsed.Err(); perr != nil {
		logger.Warnw("judge response incomplete",
			"question", in.Question,
			"error", perr.Error(),
		)
	}
	logger.Debugw("judge evaluation done",
		"question", in.Question,
		"overall", parsed.Raw.Overall,
		"suggestions", parsed.Suggestions,
	)
	return parsed.Metrics(), nil
}

// BuildJudgePrompt 构建评审提示词。
func BuildJudgePrompt(in EvalInput) string {
	var b strings.Builder

	b.WriteString("\nYou are an expert evaluator assessing the quality of a RAG (Retrieval-Augmented Generation) system's responses about Paul Graham's essays.\n\n")
	fmt.Fprintf(&b, "QUESTION: \"%s\"\n\n", in.Question)
	fmt.Fprintf(&b, "SYSTEM ANSWER:\n%s\n\n", in.SystemAnswer)
	fmt.Fprintf(&b, "GOLDEN ANSWER (Human expert answer, use this as ground truth):\n%s\n\n", in.GoldenAnswer)
	fmt.Fprintf(&b, "KEY POINTS that should be addressed (check which ones the system covered):\n%s\n\n", bulletList(in.KeyPoints))
	fmt.Fprintf(&b, "RETRIEVED ESSAYS (essays the system used to generate its answer):\n%s\n\n", bulletList(in.RetrievedEssays))
	b.WriteString(judgeCriteria)

	return b.String()
}

func bulletList(items []string) string {
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "- " + item
	}
	return strings.Join(lines, "\n")
}

const judgeCriteria = `Please evaluate the system's answer on the following criteria on a scale from 1 to 10:

1. RELEVANCE (1-10): How relevant were the retrieved essays to answering the question? Did the system retrieve the most appropriate essays?

2. ACCURACY (1-10): How factually accurate is the system's answer compared to the golden answer? Does it contain any factual errors or misrepresentations of Paul Graham's views?

3. COMPLETENESS (1-10): How thoroughly does the system's answer address the key points? Does it miss important aspects covered in the golden answer?

4. CITATION QUALITY (1-10): How well does the system cite specific essays and attribute ideas to the correct sources? Are the citations accurate?

5. OVERALL QUALITY (1-10): What is your overall assessment of the system's answer quality?

For each criterion, provide:
- A numerical score from 1 to 10
- A brief explanation justifying your score

Finally, include brief feedback on how the system's answer could be improved.

FORMAT YOUR RESPONSE LIKE THIS EXACTLY:
RELEVANCE: [score]
[explanation]

ACCURACY: [score]
[explanation]

COMPLETENESS: [score]
[explanation]

CITATION QUALITY: [score]
[explanation]

OVERALL QUALITY: [score]
[explanation]

IMPROVEMENT SUGGESTIONS:
[suggestions]
`
