package biz

import (
	"context"
	"errors"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/essay-qa/internal/model"
	"github.com/kart-io/essay-qa/internal/pkg/textutil"
	"github.com/kart-io/essay-qa/pkg/utils/json"
)

// AnswerCacheConfig 答案缓存配置。
type AnswerCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// AnswerCache 答案缓存，只缓存正常命中且未降级的答案。
type AnswerCache struct {
	redis  goredis.UniversalClient
	config *AnswerCacheConfig
}

// NewAnswerCache 创建答案缓存实例。
func NewAnswerCache(redis goredis.UniversalClient, config *AnswerCacheConfig) *AnswerCache {
	if config == nil {
		config = &AnswerCacheConfig{
			Enabled:   false,
			TTL:       1 * time.Hour,
			KeyPrefix: "essayqa:answer:",
		}
	}
	return &AnswerCache{
		redis:  redis,
		config: config,
	}
}

func (c *AnswerCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// generateCacheKey 基于规范化后的问题生成缓存键。
func (c *AnswerCache) generateCacheKey(question string) string {
	return c.config.KeyPrefix + textutil.HashString(textutil.NormalizeQuestion(question))
}

// Get 从缓存获取答案，未命中返回 nil, nil。
func (c *AnswerCache) Get(ctx context.Context, question string) (*model.Answer, error) {
	if !c.enabled() {
		return nil, nil
	}

	cacheKey := c.generateCacheKey(question)
	data, err := c.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			logger.Debugw("cache miss", "key", cacheKey)
			return nil, nil
		}
		logger.Warnw("failed to get from cache", "error", err.Error(), "key", cacheKey)
		return nil, err
	}

	var answer model.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		logger.Warnw("failed to unmarshal cached answer", "error", err.Error(), "key", cacheKey)
		// 删除损坏的缓存
		_ = c.redis.Del(ctx, cacheKey).Err()
		return nil, err
	}

	logger.Infow("cache hit", "key", cacheKey, "answer_length", len(answer.Text))
	return &answer, nil
}

// Set 写入答案，降级或非命中结果不缓存。
func (c *AnswerCache) Set(ctx context.Context, question string, answer *model.Answer) error {
	if !c.enabled() || answer == nil {
		return nil
	}
	if answer.Degraded || answer.Outcome != model.OutcomeMatched {
		return nil
	}

	cacheKey := c.generateCacheKey(question)
	data, err := json.Marshal(answer)
	if err != nil {
		logger.Warnw("failed to marshal answer for caching", "error", err.Error())
		return err
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.config.TTL).Err(); err != nil {
		logger.Warnw("failed to set cache", "error", err.Error(), "key", cacheKey)
		return err
	}

	logger.Debugw("cached answer", "key", cacheKey, "ttl", c.config.TTL.String())
	return nil
}

// Clear 清除所有答案缓存，返回删除的键数。
func (c *AnswerCache) Clear(ctx context.Context) (int, error) {
	if !c.enabled() {
		return 0, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	logger.Infow("cleared answer cache", "deleted_count", deleted)
	return deleted, nil
}

// Stats 获取缓存统计信息。
func (c *AnswerCache) Stats(ctx context.Context) (map[string]any, error) {
	if !c.enabled() {
		return map[string]any{"enabled": false}, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	keyCount := 0
	for iter.Next(ctx) {
		keyCount++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"enabled":    true,
		"key_count":  keyCount,
		"ttl":        c.config.TTL.String(),
		"key_prefix": c.config.KeyPrefix,
	}, nil
}
