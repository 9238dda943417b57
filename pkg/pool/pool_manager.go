package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SemaphorePool 信号量池（用于限制并发数）
type SemaphorePool struct {
	semaphore chan struct{}
}

// NewSemaphorePool 创建信号量池
func NewSemaphorePool(maxConcurrency int) *SemaphorePool {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &SemaphorePool{
		semaphore: make(chan struct{}, maxConcurrency),
	}
}

// Acquire 获取信号量
func (p *SemaphorePool) Acquire(ctx context.Context) error {
	select {
	case p.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release 释放信号量
func (p *SemaphorePool) Release() {
	<-p.semaphore
}

// Size 最大并发数
func (p *SemaphorePool) Size() int {
	return cap(p.semaphore)
}

// ForEach 以受限并发对 [0, n) 中每个下标执行 fn，全部完成后返回
// ctx 取消后尚未开始的下标不再执行，返回 ctx.Err()
func (p *SemaphorePool) ForEach(ctx context.Context, n int, fn func(i int)) error {
	var wg sync.WaitGroup
	var err error
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		if err = p.Acquire(ctx); err != nil {
			break
		}
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer p.Release()
			fn(index)
		}(i)
	}
	wg.Wait()
	return err
}

// ErrCircuitOpen 熔断器打开
var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker 熔断器
// 连续失败 maxFailures 次后打开，resetTimeout 后半开并只放行一个探测调用
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	failures     int
	lastFailTime time.Time
	state        CircuitState
	probing      bool // 半开状态下已有探测调用在执行
	mu           sync.Mutex
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Call 执行函数调用，fn 执行期间不持有锁
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if time.Since(cb.lastFailTime) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
	}
	// 半开时只放行一个探测调用，其余直接拒绝
	trial := false
	if cb.state == StateHalfOpen {
		if cb.probing {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probing = true
		trial = true
	}
	cb.mu.Unlock()

	if trial {
		// fn panic 时也要释放探测位
		defer func() {
			cb.mu.Lock()
			cb.probing = false
			cb.mu.Unlock()
		}()
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}

	// 成功时重置
	cb.failures = 0
	cb.state = StateClosed
	return nil
}

// State 获取当前状态
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
