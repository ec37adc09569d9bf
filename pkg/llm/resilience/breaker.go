// Package resilience 为 LLM 调用提供重试与熔断。
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// ErrCircuitOpen 熔断器处于打开状态，调用被拒绝。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// MaxFailures 连续失败达到该次数时打开熔断器。
	MaxFailures int `json:"max_failures" mapstructure:"max_failures"`
	// Cooldown 打开后经过该时长进入半开状态。
	Cooldown time.Duration `json:"cooldown" mapstructure:"cooldown"`
	// HalfOpenProbes 半开状态允许的探测调用数。
	HalfOpenProbes int `json:"half_open_probes" mapstructure:"half_open_probes"`
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:    5,
		Cooldown:       30 * time.Second,
		HalfOpenProbes: 1,
	}
}

// State 熔断器状态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Snapshot 熔断器在某一时刻的状态快照。
type Snapshot struct {
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Breaker 按名称区分的熔断器，名称用于日志与统计。
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probes      int
	probeOK     int
}

// NewBreaker 创建熔断器，cfg 为 nil 时使用默认配置。
func NewBreaker(name string, cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	c := *cfg
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
	return &Breaker{name: name, cfg: c, now: time.Now}
}

// Do 在熔断器保护下执行 fn。
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailure) < b.cfg.Cooldown {
			return ErrCircuitOpen
		}
		logger.Infow("circuit breaker half-open", "breaker", b.name)
		b.state = StateHalfOpen
		b.probes, b.probeOK = 1, 0
		return nil
	default:
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrCircuitOpen
		}
		b.probes++
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.probeOK++
			if b.probeOK >= b.probes {
				logger.Infow("circuit breaker closed", "breaker", b.name)
				b.state = StateClosed
				b.failures = 0
			}
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.MaxFailures {
			logger.Warnw("circuit breaker opened",
				"breaker", b.name,
				"failures", b.failures,
			)
			b.state = StateOpen
		}
	case StateHalfOpen:
		logger.Warnw("circuit breaker re-opened after failed probe", "breaker", b.name)
		b.state = StateOpen
	}
}

// State 返回当前状态。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 返回状态快照。
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:        b.name,
		State:       b.state.String(),
		Failures:    b.failures,
		LastFailure: b.lastFailure,
	}
}

// Reset 将熔断器恢复为关闭状态。
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures, b.probes, b.probeOK = 0, 0, 0
}
