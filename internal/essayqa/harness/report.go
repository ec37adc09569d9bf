package harness

import (
	"fmt"
	"io"

	"github.com/kart-io/essay-qa/internal/pkg/docutil"
	"github.com/kart-io/essay-qa/pkg/utils/json"
)

// Report 一次评测运行的最终报告。
type Report struct {
	RunID     string     `json:"runId"`
	Timestamp string     `json:"timestamp"`
	Evaluator string     `json:"evaluator"`
	Metrics   RunMetrics `json:"metrics"`
	Results   []Result   `json:"results"`

	// File 报告写入的路径。
	File string `json:"-"`
}

// LoadReport 读取最终报告或中间文件。
// 中间文件只有结果数组，此时按结果重新计算汇总指标。
func LoadReport(path string) (*Report, error) {
	var raw json.RawMessage
	if err := docutil.ReadJSON(path, &raw); err != nil {
		return nil, err
	}

	report := &Report{File: path}
	if isArray(raw) {
		if err := json.Unmarshal(raw, &report.Results); err != nil {
			return nil, fmt.Errorf("decode results in %s: %w", path, err)
		}
		report.Metrics = Aggregate(report.Results)
		return report, nil
	}

	if err := json.Unmarshal(raw, report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	report.File = path
	return report, nil
}

// AggregateFile 从文件中的结果重新计算汇总指标，忽略文件里已有的汇总。
func AggregateFile(path string) (RunMetrics, error) {
	report, err := LoadReport(path)
	if err != nil {
		return RunMetrics{}, err
	}
	return Aggregate(report.Results), nil
}

// PrintSummary 输出 1-10 分制的平均分汇总。
func PrintSummary(w io.Writer, report *Report) {
	avg := report.Metrics.AverageScores
	fmt.Fprintln(w, "\nEVALUATION SUMMARY")
	fmt.Fprintln(w, "------------------")
	fmt.Fprintf(w, "Questions evaluated: %d\n", report.Metrics.Successful)
	if report.Metrics.Failed > 0 {
		fmt.Fprintf(w, "Questions failed: %d\n", report.Metrics.Failed)
	}
	fmt.Fprintf(w, "Average Relevance: %.2f/10\n", avg.Relevance*10)
	fmt.Fprintf(w, "Average Accuracy: %.2f/10\n", avg.Accuracy*10)
	fmt.Fprintf(w, "Average Completeness: %.2f/10\n", avg.Completeness*10)
	fmt.Fprintf(w, "Average Citation Quality: %.2f/10\n", avg.Citation*10)
	fmt.Fprintf(w, "Average Overall Quality: %.2f/10\n", avg.Overall*10)
	if report.File != "" {
		fmt.Fprintf(w, "\nResults saved to %s\n", report.File)
	}
}

func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
