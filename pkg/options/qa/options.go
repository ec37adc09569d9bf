// Package qa provides retrieval and answer synthesis options.
package qa

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/essay-qa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 检索与生成参数。
type Options struct {
	// SimilarityThreshold 相似度下限，低于该值的文章不参与回答。
	SimilarityThreshold float64 `json:"similarity-threshold" mapstructure:"similarity-threshold"`

	// MatchCount 单次检索返回的最大文章数。
	MatchCount int `json:"match-count" mapstructure:"match-count"`

	// RetrievalTimeout 向量化与检索的超时时间，0 表示不限制。
	RetrievalTimeout time.Duration `json:"retrieval-timeout" mapstructure:"retrieval-timeout"`

	// GenerationTimeout 答案生成的超时时间，超时后返回降级答案。
	GenerationTimeout time.Duration `json:"generation-timeout" mapstructure:"generation-timeout"`

	// Style 答案提示词风格（qa|summary）。
	Style string `json:"style" mapstructure:"style"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		SimilarityThreshold: 0.5,
		MatchCount:          5,
		RetrievalTimeout:    30 * time.Second,
		GenerationTimeout:   25 * time.Second,
		Style:               "qa",
	}
}

// AddFlags adds QA flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "qa."
	fs.Float64Var(&o.SimilarityThreshold, p+"similarity-threshold", o.SimilarityThreshold, "Minimum cosine similarity for a matched essay.")
	fs.IntVar(&o.MatchCount, p+"match-count", o.MatchCount, "Maximum essays returned by a search.")
	fs.DurationVar(&o.RetrievalTimeout, p+"retrieval-timeout", o.RetrievalTimeout, "Timeout for embedding and search, 0 to disable.")
	fs.DurationVar(&o.GenerationTimeout, p+"generation-timeout", o.GenerationTimeout, "Timeout for answer generation.")
	fs.StringVar(&o.Style, p+"style", o.Style, "Answer prompt style (qa|summary).")
}

// Validate validates QA options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.SimilarityThreshold < -1 || o.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("qa.similarity-threshold must be within [-1, 1]"))
	}
	if o.MatchCount <= 0 {
		errs = append(errs, fmt.Errorf("qa.match-count must be positive"))
	}
	if o.RetrievalTimeout < 0 {
		errs = append(errs, fmt.Errorf("qa.retrieval-timeout must not be negative"))
	}
	if o.GenerationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("qa.generation-timeout must be positive"))
	}
	if o.Style != "qa" && o.Style != "summary" {
		errs = append(errs, fmt.Errorf("qa.style must be qa or summary"))
	}
	return errs
}
