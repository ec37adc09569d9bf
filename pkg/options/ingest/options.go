// Package ingest provides corpus ingestion options.
package ingest

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/essay-qa/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options 语料导入配置。
type Options struct {
	// Corpus 待导入的文章 JSON 文件。
	Corpus string `json:"corpus" mapstructure:"corpus"`

	// BatchSize 每次 embedding 请求包含的文章数。
	BatchSize int `json:"batch-size" mapstructure:"batch-size"`

	// Concurrency 并发 embedding 请求数。
	Concurrency int `json:"concurrency" mapstructure:"concurrency"`

	// MaxChars 每篇文章参与 embedding 的最大字符数。
	MaxChars int `json:"max-chars" mapstructure:"max-chars"`
}

// NewOptions 创建默认配置。
func NewOptions() *Options {
	return &Options{
		Corpus:      "data/essays.json",
		BatchSize:   10,
		Concurrency: 4,
		MaxChars:    8000,
	}
}

// AddFlags adds ingestion flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "ingest."
	fs.StringVar(&o.Corpus, p+"corpus", o.Corpus, "Corpus JSON file ([{title,url,content,date}]).")
	fs.IntVar(&o.BatchSize, p+"batch-size", o.BatchSize, "Essays per embedding request.")
	fs.IntVar(&o.Concurrency, p+"concurrency", o.Concurrency, "Concurrent embedding requests.")
	fs.IntVar(&o.MaxChars, p+"max-chars", o.MaxChars, "Characters of each essay used for its embedding.")
}

// Validate validates ingestion options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch-size must be positive"))
	}
	if o.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must be positive"))
	}
	if o.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("ingest.max-chars must be positive"))
	}
	return errs
}
