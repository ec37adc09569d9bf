// Package eval provides evaluation harness options.
package eval

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/essay-qa/pkg/options"
	llmopts "github.com/kart-io/essay-qa/pkg/options/llm"
)

// Evaluation modes.
const (
	ModeJudge = "judge"
	ModeHuman = "human"
)

var _ options.IOptions = (*Options)(nil)

// Options 评估运行配置。
type Options struct {
	// Mode 评分方式（judge|human）。
	Mode string `json:"mode" mapstructure:"mode"`

	// Questions 问题集文件（JSON 或 YAML）。
	Questions string `json:"questions" mapstructure:"questions"`

	// Golden 标准答案文件（JSON 或 YAML）。
	Golden string `json:"golden" mapstructure:"golden"`

	// OutputDir 中间结果与最终报告的输出目录。
	OutputDir string `json:"output-dir" mapstructure:"output-dir"`

	// BatchSize 每批处理的问题数，每批结束后写一次中间结果。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// JudgeTimeout 单次评审调用的超时时间。
	JudgeTimeout time.Duration `json:"judge-timeout" mapstructure:"judge-timeout"`

	// Judge 评审模型配置。
	Judge *llmopts.ProviderOptions `json:"judge" mapstructure:"judge"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		Mode:         ModeJudge,
		Questions:    "data/questions.json",
		Golden:       "data/golden_answers.json",
		OutputDir:    "results",
		BatchSize:    5,
		JudgeTimeout: 60 * time.Second,
		Judge:        llmopts.NewJudgeOptions(),
	}
}

// AddFlags adds evaluation flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "eval."
	fs.StringVar(&o.Mode, p+"mode", o.Mode, "Scoring mode (judge|human).")
	fs.StringVar(&o.Questions, p+"questions", o.Questions, "Questions dataset (JSON or YAML).")
	fs.StringVar(&o.Golden, p+"golden", o.Golden, "Golden answers dataset (JSON or YAML).")
	fs.StringVar(&o.OutputDir, p+"output-dir", o.OutputDir, "Directory for interim and final result files.")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Questions per batch; interim results are written after each batch.")
	fs.DurationVar(&o.JudgeTimeout, p+"judge-timeout", o.JudgeTimeout, "Timeout of a single judge call.")
	o.Judge.AddFlags(fs, options.Join(prefixes...)+"eval.judge")
}

// Validate validates evaluation options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Mode != ModeJudge && o.Mode != ModeHuman {
		errs = append(errs, fmt.Errorf("eval.mode must be %s or %s", ModeJudge, ModeHuman))
	}
	if o.Questions == "" || o.Golden == "" {
		errs = append(errs, fmt.Errorf("eval.questions and eval.golden are required"))
	}
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("eval.batch-size must be positive"))
	}
	if o.JudgeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("eval.judge-timeout must be positive"))
	}
	if o.Mode == ModeJudge {
		for _, err := range o.Judge.Validate() {
			errs = append(errs, fmt.Errorf("eval.judge: %w", err))
		}
	}
	return errs
}
