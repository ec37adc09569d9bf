package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/internal/pkg/docutil"
	"github.com/kart-io/essay-qa/internal/pkg/evaluator"
	infralog "github.com/kart-io/essay-qa/pkg/infra/logger"
	"github.com/kart-io/essay-qa/pkg/infra/tracing"
)

// 结果状态。
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// PersistenceError 结果文件写入失败，运行中止。
type PersistenceError = docutil.PersistenceError

// Answerer 提供问答能力，biz.Service 满足该接口。
type Answerer interface {
	Answer(ctx context.Context, question string) (*model.Answer, error)
}

// Result 单个问题的评测结果。
type Result struct {
	QuestionID      int                    `json:"questionId"`
	Question        string                 `json:"question"`
	SystemAnswer    string                 `json:"systemAnswer"`
	GoldenAnswer    string                 `json:"goldenAnswer"`
	KeyPoints       []string               `json:"keyPoints"`
	RetrievedEssays []string               `json:"retrievedEssays"`
	Metrics         evaluator.Metrics      `json:"metrics"`
	Status          string                 `json:"status"`
	Error           string                 `json:"error,omitempty"`
	Outcome         model.RetrievalOutcome `json:"outcome,omitempty"`
	Degraded        bool                   `json:"degraded,omitempty"`
}

// Config 评测运行配置。
type Config struct {
	// BatchSize 每批题目数，每批结束写一次中间文件。
	BatchSize int
	// OutputDir 中间文件和最终报告目录。
	OutputDir string
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BatchSize: 5,
		OutputDir: "results",
	}
}

// Harness 驱动问答服务逐题作答并评分。
type Harness struct {
	qa      Answerer
	metrics *metrics.QAMetrics
	config  *Config
	now     func() time.Time
}

// New 创建评测驱动。
func New(qa Answerer, m *metrics.QAMetrics, config *Config) *Harness {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Harness{
		qa:      qa,
		metrics: m,
		config:  config,
		now:     time.Now,
	}
}

// Run 按批次顺序评测全部问题，返回已写入磁盘的最终报告。
//
// 缺少标准答案的问题跳过且不记录；问答失败记为 failed。
// 评分输入关闭、context 取消或文件写入失败时先写出已完成部分，再中止运行。
func (h *Harness) Run(ctx context.Context, questions []Question, golden []GoldenAnswer, ev evaluator.Evaluator) (report *Report, err error) {
	runID := ulid.Make().String()
	ctx, span := tracing.Start(ctx, "eval.run",
		attribute.String("eval.run_id", runID),
		attribute.String("eval.evaluator", ev.Name()),
		attribute.Int("eval.questions", len(questions)),
	)
	defer func() { tracing.End(span, err) }()

	ctx = infralog.WithFields(ctx, "run_id", runID)
	log := infralog.GetLogger(ctx)

	answers := make(map[int]GoldenAnswer, len(golden))
	for _, g := range golden {
		answers[g.ID] = g
	}

	interim := filepath.Join(h.config.OutputDir, fmt.Sprintf("eval_interim_%s.json", runID))
	results := make([]Result, 0, len(questions))
	var acc Accumulator

	log.Infof("Running evaluation on %d questions (run %s)", len(questions), runID)

	for start := 0; start < len(questions); start += h.config.BatchSize {
		end := min(start+h.config.BatchSize, len(questions))

		// 1. 顺序处理本批问题
		for _, q := range questions[start:end] {
			gold, ok := answers[q.ID]
			if !ok {
				log.Warnw("no golden answer found, skipping", "question_id", q.ID)
				continue
			}

			log.Infof("Processing question %d: %s", q.ID, q.Question)
			result, abortErr := h.evaluate(ctx, q, gold, ev)
			if abortErr != nil {
				if werr := docutil.WriteJSON(interim, results); werr != nil {
					return nil, errors.Join(abortErr, werr)
				}
				return nil, fmt.Errorf("evaluation aborted after %d results (partial results in %s): %w",
					len(results), interim, abortErr)
			}

			results = append(results, result)
			acc = acc.Add(result)
			h.metrics.RecordEvaluation(result.Status == StatusSuccess)
		}

		// 2. 每批结束覆盖写中间文件
		if err := docutil.WriteJSON(interim, results); err != nil {
			return nil, err
		}
		log.Infow("batch persisted",
			"batch", start/h.config.BatchSize+1,
			"results", len(results),
			"file", interim,
		)
	}

	// 3. 写最终报告
	now := h.now().UTC()
	report = &Report{
		RunID:     runID,
		Timestamp: now.Format(time.RFC3339Nano),
		Evaluator: ev.Name(),
		Metrics:   acc.Metrics(),
		Results:   results,
	}
	report.File = filepath.Join(h.config.OutputDir, fmt.Sprintf("eval_results_%s.json", docutil.FileStamp(now)))
	if err := docutil.WriteJSON(report.File, report); err != nil {
		return nil, err
	}

	log.Infow("evaluation finished",
		"total", report.Metrics.Total,
		"successful", report.Metrics.Successful,
		"failed", report.Metrics.Failed,
		"file", report.File,
	)
	return report, nil
}

// evaluate 处理单个问题。第二个返回值非空表示需要中止整个运行。
func (h *Harness) evaluate(ctx context.Context, q Question, gold GoldenAnswer, ev evaluator.Evaluator) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	log := infralog.GetLogger(ctx)

	result := Result{
		QuestionID:      q.ID,
		Question:        q.Question,
		GoldenAnswer:    gold.Answer,
		KeyPoints:       nonNil(gold.KeyPoints),
		RetrievedEssays: []string{},
	}

	answer, err := h.qa.Answer(ctx, q.Question)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		log.Errorw("failed to answer question", "question_id", q.ID, "error", err.Error())
		return failed(result, err), nil
	}

	result.SystemAnswer = answer.Text
	result.RetrievedEssays = nonNil(answer.SourceTitles())
	result.Outcome = answer.Outcome
	result.Degraded = answer.Degraded

	log.Infof("Evaluating response for question %d", q.ID)
	scores, err := ev.Evaluate(ctx, evaluator.EvalInput{
		Question:        q.Question,
		SystemAnswer:    result.SystemAnswer,
		GoldenAnswer:    gold.Answer,
		KeyPoints:       result.KeyPoints,
		RetrievedEssays: result.RetrievedEssays,
	})
	if err != nil {
		var perr *PersistenceError
		if errors.Is(err, evaluator.ErrInputClosed) || errors.As(err, &perr) || ctx.Err() != nil {
			return Result{}, err
		}
		log.Errorw("failed to evaluate answer", "question_id", q.ID, "evaluator", ev.Name(), "error", err.Error())
		return failed(result, err), nil
	}

	result.Metrics = scores
	result.Status = StatusSuccess
	log.Infow("finished evaluating question",
		"question_id", q.ID,
		"relevance", scores.Relevance,
		"accuracy", scores.Accuracy,
		"completeness", scores.Completeness,
		"citation", scores.Citation,
		"overall", scores.Overall,
	)
	return result, nil
}

func failed(r Result, err error) Result {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.Metrics = evaluator.ZeroMetrics()
	return r
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
