// Package cache provides answer and embedding cache options.
package cache

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/essay-qa/pkg/options"
	redisopts "github.com/kart-io/essay-qa/pkg/options/redis"
)

var _ options.IOptions = (*Options)(nil)

// Options 查询缓存配置。
type Options struct {
	// Enabled 是否启用答案缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Embeddings 是否缓存问题向量。
	Embeddings bool `json:"embeddings" mapstructure:"embeddings"`

	// TTL 答案缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 答案缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Redis 连接配置。
	Redis *redisopts.Options `json:"redis" mapstructure:"redis"`
}

// NewOptions 创建默认缓存配置，缓存默认关闭。
func NewOptions() *Options {
	return &Options{
		TTL:       time.Hour,
		KeyPrefix: "essayqa:answer:",
		Redis:     redisopts.NewOptions(),
	}
}

// Active 报告是否需要建立 Redis 连接。
func (o *Options) Active() bool {
	return o != nil && (o.Enabled || o.Embeddings)
}

// AddFlags adds cache flags.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "cache."
	fs.BoolVar(&o.Enabled, p+"enabled", o.Enabled, "Cache answers in Redis.")
	fs.BoolVar(&o.Embeddings, p+"embeddings", o.Embeddings, "Cache question embeddings in Redis.")
	fs.DurationVar(&o.TTL, p+"ttl", o.TTL, "Answer cache TTL.")
	fs.StringVar(&o.KeyPrefix, p+"key-prefix", o.KeyPrefix, "Answer cache key prefix.")
	o.Redis.AddFlags(fs, options.Join(prefixes...)+"cache")
}

// Complete completes the nested redis options.
func (o *Options) Complete() error {
	if o.Redis == nil {
		o.Redis = redisopts.NewOptions()
	}
	return o.Redis.Complete()
}

// Validate validates cache options; redis is only checked when used.
func (o *Options) Validate() []error {
	if !o.Active() {
		return nil
	}
	var errs []error
	if o.Enabled && o.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive"))
	}
	return append(errs, o.Redis.Validate()...)
}
