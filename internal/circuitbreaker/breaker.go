// Package circuitbreaker provides a three-state circuit breaker used to
// isolate repeatedly failing intelligence sources.
// This package is internal and should not be imported by external projects.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的最大请求数
	HalfOpenMaxCalls int

	// OnStateChange 状态变更回调
	OnStateChange func(from State, to State)
}

// DefaultConfig 返回默认配置
// 针对外部情报源的慢故障场景调整
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		ResetTimeout:     60 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，如果熔断器打开则返回 ErrCircuitOpen
	Call(ctx context.Context, fn func() error) error

	// State 获取当前状态
	State() State

	// Reset 重置熔断器（手动恢复）
	Reset()
}

// breaker 熔断器实现
type breaker struct {
	config *Config
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failureCount      int       // 连续失败次数
	lastFailureTime   time.Time // 最后失败时间
	halfOpenCallCount int       // 半开状态下的调用次数
}

// New 创建熔断器
func New(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}

	// 参数校验
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 2
	}

	return &breaker{
		config: config,
		logger: logger,
		state:  StateClosed,
	}
}

// Call 实现 CircuitBreaker.Call
// 核心逻辑：状态机转换 + 失败计数
// 超时控制由聚合器的查询级 context 负责，这里不再包一层定时器
func (b *breaker) Call(ctx context.Context, fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()

	// context 取消不计入熔断失败（属于调用方主动放弃）
	success := err == nil || errors.Is(err, context.Canceled)
	b.afterCall(success)

	return err
}

// beforeCall 调用前检查
func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		// 检查是否可以进入半开状态
		if time.Since(b.lastFailureTime) > b.config.ResetTimeout {
			b.setState(StateHalfOpen)
			b.halfOpenCallCount = 0
			b.logger.Info("熔断器进入半开状态")
			return nil
		}

		// 仍在熔断中
		return ErrCircuitOpen

	case StateHalfOpen:
		// 半开状态，限制调用次数
		if b.halfOpenCallCount >= b.config.HalfOpenMaxCalls {
			return ErrTooManyCallsInHalfOpen
		}
		b.halfOpenCallCount++
		return nil

	default:
		return fmt.Errorf("未知的熔断器状态: %v", b.state)
	}
}

// afterCall 调用后处理
func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// onSuccess 处理成功调用
func (b *breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failureCount = 0

	case StateHalfOpen:
		// 半开状态，成功后恢复到关闭状态
		b.logger.Info("熔断器恢复正常",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateClosed)
		b.failureCount = 0
		b.halfOpenCallCount = 0

	case StateOpen:
		b.logger.Warn("熔断器打开状态收到成功响应")
	}
}

// onFailure 处理失败调用
func (b *breaker) onFailure() {
	b.failureCount++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("熔断器打开",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.setState(StateOpen)
		}

	case StateHalfOpen:
		b.logger.Warn("熔断器半开状态失败，重新打开",
			zap.Int("half_open_calls", b.halfOpenCallCount),
		)
		b.setState(StateOpen)
		b.halfOpenCallCount = 0

	case StateOpen:
		b.logger.Warn("熔断器打开状态收到失败响应")
	}
}

// setState 设置状态并触发回调
func (b *breaker) setState(newState State) {
	oldState := b.state
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.state = StateClosed
	b.failureCount = 0
	b.halfOpenCallCount = 0

	b.logger.Info("熔断器已重置",
		zap.String("from_state", oldState.String()),
	)

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, StateClosed)
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("熔断器已打开")
	ErrTooManyCallsInHalfOpen = errors.New("半开状态下调用次数过多")
)
