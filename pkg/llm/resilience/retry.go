package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/essay-qa/pkg/utils/httpclient"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（含首次调用）。
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts"`
	// InitialDelay 首次重试前的等待时间。
	InitialDelay time.Duration `json:"initial_delay" mapstructure:"initial_delay"`
	// MaxDelay 单次等待上限。
	MaxDelay time.Duration `json:"max_delay" mapstructure:"max_delay"`
	// Retryable 判断错误是否值得重试，为 nil 时使用 IsRetryable。
	Retryable func(error) bool `json:"-" mapstructure:"-"`
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// NoRetryConfig 返回只调用一次的配置。
func NoRetryConfig() *RetryConfig {
	return &RetryConfig{MaxAttempts: 1}
}

// Retry 以指数退避方式执行 fn，直到成功、错误不可重试或次数耗尽。
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := max(cfg.MaxAttempts, 1)

	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if attempts == 1 || !retryable(err) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		logger.Debugw("retrying llm call", "attempt", attempt, "delay", delay, "error", err.Error())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

// IsRetryable 判断错误是否为瞬时错误。
// 熔断、取消与超时不重试；网络错误、429 与 5xx 重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
