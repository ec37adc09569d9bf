package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 池容量（最大并发 goroutine 数）
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// Nonblocking 池满时提交任务立即返回 ErrPoolOverload
	Nonblocking bool
}

// DefaultConfig 返回默认池配置
func DefaultConfig() *Config {
	return &Config{
		Capacity:       8,
		ExpiryDuration: 10 * time.Second,
	}
}

// Stats contains statistics about the worker pool.
type Stats struct {
	Submitted int64 // 已提交任务数
	Completed int64 // 已完成任务数
	Rejected  int64 // 拒绝任务数
	Panics    int64 // 恢复的 panic 数
}

// Pool is a named, bounded worker pool.
type Pool struct {
	name string
	pool *ants.Pool

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// New creates a new worker pool with the given configuration.
func New(name string, config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Capacity <= 0 {
		return nil, fmt.Errorf("pool %s: capacity must be positive", name)
	}

	p := &Pool{name: name}
	ap, err := ants.NewPool(config.Capacity,
		ants.WithExpiryDuration(config.ExpiryDuration),
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(v any) {
			p.panics.Add(1)
			logger.Errorw("Worker panic recovered", "pool", name, "panic", v)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = ap

	logger.Debugw("Worker pool created", "name", name, "capacity", config.Capacity)
	return p, nil
}

// Name 返回池名称
func (p *Pool) Name() string { return p.name }

// Cap 返回池容量
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running 返回正在运行的 goroutine 数量
func (p *Pool) Running() int { return p.pool.Running() }

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	switch {
	case err == nil:
		p.submitted.Add(1)
		return nil
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	case errors.Is(err, ants.ErrPoolClosed):
		return ErrPoolClosed
	default:
		return err
	}
}

// Release 关闭池，等待运行中的任务最多 timeout。
func (p *Pool) Release(timeout time.Duration) error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		err = p.pool.ReleaseTimeout(timeout)
		logger.Debugw("Worker pool released", "name", p.name)
	})
	return err
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
	}
}
