package essayqa

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/internal/essayqa/biz"
	"github.com/kart-io/essay-qa/internal/essayqa/metrics"
	"github.com/kart-io/essay-qa/internal/essayqa/store"
	"github.com/kart-io/essay-qa/pkg/component/redis"
	"github.com/kart-io/essay-qa/pkg/infra/app"
	"github.com/kart-io/essay-qa/pkg/infra/tracing"
	"github.com/kart-io/essay-qa/pkg/llm"
	"github.com/kart-io/essay-qa/pkg/llm/resilience"
	cacheopts "github.com/kart-io/essay-qa/pkg/options/cache"
	llmopts "github.com/kart-io/essay-qa/pkg/options/llm"

	// 注册 LLM 供应商
	_ "github.com/kart-io/essay-qa/pkg/llm/ollama"
	_ "github.com/kart-io/essay-qa/pkg/llm/openai"
)

// embeddingCacheTTL 问题向量缓存时长。
const embeddingCacheTTL = 24 * time.Hour

// components 命令运行所需的依赖，按需创建。
type components struct {
	metrics *metrics.QAMetrics
	tracer  *tracing.Provider
	redis   *redis.Client
	store   store.DocumentStore
	embed   llm.EmbeddingProvider
	chat    llm.ChatProvider
	service *biz.QAService
}

// newComponents 创建存储与 embedding 供应商；withChat 为 true 时同时创建生成供应商和问答服务。
func newComponents(ctx context.Context, opts *Options, withChat bool) (_ *components, err error) {
	c := &components{metrics: metrics.Default()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// 1. 链路追踪
	if c.tracer, err = tracing.NewProvider(ctx, opts.Tracing, app.GetVersion()); err != nil {
		return nil, err
	}

	// 2. Redis，仅在启用缓存时连接
	if opts.Cache.Active() {
		if c.redis, err = redis.New(ctx, opts.Cache.Redis); err != nil {
			return nil, err
		}
		logger.Infow("redis connected", "addr", opts.Cache.Redis.Addr())
	}

	// 3. Embedding 供应商
	if c.embed, err = c.newEmbeddingProvider(opts); err != nil {
		return nil, err
	}

	// 4. 文章存储
	if c.store, err = store.New(ctx, opts.Store); err != nil {
		return nil, err
	}

	if !withChat {
		return c, nil
	}

	// 5. 生成供应商与问答服务
	if c.chat, err = c.newGenerationProvider(opts.Chat); err != nil {
		return nil, err
	}

	var cache *biz.AnswerCache
	if opts.Cache.Enabled {
		cache = newAnswerCache(c.redis, opts.Cache)
	}

	style, err := biz.ParseStyle(opts.QA.Style)
	if err != nil {
		return nil, err
	}
	c.service = biz.NewQAService(c.store, c.embed, c.chat, cache, c.metrics, &biz.ServiceConfig{
		RetrieverConfig: &biz.RetrieverConfig{
			Threshold:  float32(opts.QA.SimilarityThreshold),
			MatchCount: opts.QA.MatchCount,
			Timeout:    opts.QA.RetrievalTimeout,
		},
		SynthesizerConfig: &biz.SynthesizerConfig{
			Style:         style,
			MaxCandidates: biz.MaxCandidates,
			Timeout:       opts.QA.GenerationTimeout,
		},
	})
	return c, nil
}

// newAnswerCache 按配置创建答案缓存。
func newAnswerCache(client *redis.Client, opts *cacheopts.Options) *biz.AnswerCache {
	return biz.NewAnswerCache(client.Raw(), &biz.AnswerCacheConfig{
		Enabled:   true,
		TTL:       opts.TTL,
		KeyPrefix: opts.KeyPrefix,
	})
}

func (c *components) newEmbeddingProvider(opts *Options) (llm.EmbeddingProvider, error) {
	p, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, err
	}
	wrapped := resilience.WrapEmbedding(p, resilience.DefaultRetryConfig(), resilience.DefaultBreakerConfig())
	c.metrics.WatchBreaker(wrapped.Breaker())

	if !opts.Cache.Embeddings {
		return wrapped, nil
	}
	return llm.NewCachedEmbeddingProvider(wrapped, c.redis.Raw(), &llm.EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       embeddingCacheTTL,
		KeyPrefix: "essayqa:emb:" + opts.Embedding.Model + ":",
	}), nil
}

// newChatProvider 创建带重试与熔断的对话供应商，用于评审模型。
func (c *components) newChatProvider(opts *llmopts.ProviderOptions) (llm.ChatProvider, error) {
	return c.wrapChat(opts.Provider, opts.ToConfigMap(), resilience.DefaultRetryConfig())
}

// newGenerationProvider 创建答案生成供应商，只保留熔断，HTTP 层与包装层都不重试。
func (c *components) newGenerationProvider(opts *llmopts.ProviderOptions) (llm.ChatProvider, error) {
	cfg := opts.ToConfigMap()
	cfg["max_retries"] = 0
	return c.wrapChat(opts.Provider, cfg, resilience.NoRetryConfig())
}

func (c *components) wrapChat(name string, cfg map[string]any, retry *resilience.RetryConfig) (llm.ChatProvider, error) {
	p, err := llm.NewChatProvider(name, cfg)
	if err != nil {
		return nil, err
	}
	wrapped := resilience.WrapChat(p, retry, resilience.DefaultBreakerConfig())
	c.metrics.WatchBreaker(wrapped.Breaker())
	return wrapped, nil
}

// Close 释放全部连接并刷新追踪数据。
func (c *components) Close() {
	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	if c.redis != nil {
		errs = append(errs, c.redis.Close())
	}
	if c.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, c.tracer.Shutdown(ctx))
		cancel()
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warnw("failed to release resources", "error", err.Error())
	}
}
