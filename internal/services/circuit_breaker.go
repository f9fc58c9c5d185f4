package services

import (
	"sync"
	"time"

	"stagesync/internal/config"
)

// BreakerState 熔断器状态
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // 正常
	BreakerOpen                         // 熔断
	BreakerHalfOpen                     // 试探
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker 保护 CRM 调用；连续失败达到阈值后在 ResetTimeout 内拒绝请求
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int

	mu           sync.Mutex
	state        BreakerState
	failures     int
	openedAt     time.Time
	halfOpenReqs int
	now          func() time.Time
}

// NewCircuitBreaker returns nil when the breaker is disabled; a nil breaker allows everything.
func NewCircuitBreaker(cfg config.CircuitBreakerConfig) *CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	cb := &CircuitBreaker{
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMaxReqs,
		now:          time.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = 5
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = 60 * time.Second
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = 1
	}
	return cb
}

// Allow 检查是否允许请求通过
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return false
		}
		cb.state = BreakerHalfOpen
		cb.halfOpenReqs = 1
		return true
	case BreakerHalfOpen:
		if cb.halfOpenReqs >= cb.halfOpenMax {
			return false
		}
		cb.halfOpenReqs++
		return true
	default:
		return true
	}
}

// OnSuccess 成功后回到关闭状态
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.failures = 0
	cb.halfOpenReqs = 0
}

// OnFailure 记录失败；半开状态下一次失败立即熔断
func (cb *CircuitBreaker) OnFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.state == BreakerHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.halfOpenReqs = 0
	}
}

// Release 请求被调用方放弃，不计成功也不计失败，只归还半开探测名额
func (cb *CircuitBreaker) Release() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerHalfOpen && cb.halfOpenReqs > 0 {
		cb.halfOpenReqs--
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	if cb == nil {
		return BreakerClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
