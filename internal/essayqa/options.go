package essayqa

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/kart-io/essay-qa/pkg/infra/tracing"
	"github.com/kart-io/essay-qa/pkg/options"
	cacheopts "github.com/kart-io/essay-qa/pkg/options/cache"
	evalopts "github.com/kart-io/essay-qa/pkg/options/eval"
	httpopts "github.com/kart-io/essay-qa/pkg/options/http"
	ingestopts "github.com/kart-io/essay-qa/pkg/options/ingest"
	llmopts "github.com/kart-io/essay-qa/pkg/options/llm"
	loggeropts "github.com/kart-io/essay-qa/pkg/options/logger"
	qaopts "github.com/kart-io/essay-qa/pkg/options/qa"
	storeopts "github.com/kart-io/essay-qa/pkg/options/store"
)

// Options 应用的全部配置，对应 configs/essayqa.yaml 的顶层键。
type Options struct {
	Log       *loggeropts.Options      `json:"log" mapstructure:"log"`
	HTTP      *httpopts.Options        `json:"http" mapstructure:"http"`
	Embedding *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`
	Chat      *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`
	Store     *storeopts.Options       `json:"store" mapstructure:"store"`
	Cache     *cacheopts.Options       `json:"cache" mapstructure:"cache"`
	QA        *qaopts.Options          `json:"qa" mapstructure:"qa"`
	Eval      *evalopts.Options        `json:"eval" mapstructure:"eval"`
	Ingest    *ingestopts.Options      `json:"ingest" mapstructure:"ingest"`
	Tracing   *tracing.Options         `json:"tracing" mapstructure:"tracing"`
}

// NewOptions 创建带默认值的配置。
func NewOptions() *Options {
	return &Options{
		Log:       loggeropts.NewOptions(),
		HTTP:      httpopts.NewOptions(),
		Embedding: llmopts.NewEmbeddingOptions(),
		Chat:      llmopts.NewChatOptions(),
		Store:     storeopts.NewOptions(),
		Cache:     cacheopts.NewOptions(),
		QA:        qaopts.NewOptions(),
		Eval:      evalopts.NewOptions(),
		Ingest:    ingestopts.NewOptions(),
		Tracing:   tracing.NewOptions(),
	}
}

// AddFlags 注册全部配置项的命令行参数。
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.HTTP.AddFlags(fs)
	o.Embedding.AddFlags(fs, "embedding")
	o.Chat.AddFlags(fs, "chat")
	o.Store.AddFlags(fs)
	o.Cache.AddFlags(fs)
	o.QA.AddFlags(fs)
	o.Eval.AddFlags(fs)
	o.Ingest.AddFlags(fs)
	o.Tracing.AddFlags(fs)
}

// Complete 补全派生配置。
func (o *Options) Complete() error {
	if err := o.Embedding.Complete(); err != nil {
		return err
	}
	if err := o.Chat.Complete(); err != nil {
		return err
	}
	if err := o.Eval.Judge.Complete(); err != nil {
		return err
	}
	// 向量维度以 embedding 模型为准
	if o.Embedding.Dimensions > 0 {
		o.Store.Dimension = o.Embedding.Dimensions
		o.Store.Milvus.Dimension = o.Embedding.Dimensions
	}
	return o.Cache.Complete()
}

// Validate 汇总全部配置错误。
func (o *Options) Validate() error {
	return options.Aggregate(
		o.Log.Validate(),
		o.HTTP.Validate(),
		prefixed("embedding", o.Embedding.Validate()),
		prefixed("chat", o.Chat.Validate()),
		o.Store.Validate(),
		o.Cache.Validate(),
		o.QA.Validate(),
		o.Eval.Validate(),
		o.Ingest.Validate(),
		o.Tracing.Validate(),
	)
}

func prefixed(prefix string, errs []error) []error {
	for i, err := range errs {
		errs[i] = fmt.Errorf("%s.%w", prefix, err)
	}
	return errs
}
