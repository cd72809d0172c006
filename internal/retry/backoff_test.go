package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testPolicy(maxRetries int) *Policy {
	return &Policy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetryer_Success(t *testing.T) {
	retryer := New(testPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil // 第一次就成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount, "应该只调用一次")
}

func TestRetryer_RetryAndSuccess(t *testing.T) {
	retryer := New(testPolicy(3), zap.NewNop())

	callCount := 0
	testErr := errors.New("temporary error")

	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return testErr // 前两次失败
		}
		return nil // 第三次成功
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount, "应该调用三次")
}

func TestRetryer_MaxRetriesExceeded(t *testing.T) {
	retryer := New(testPolicy(2), zap.NewNop())

	callCount := 0
	testErr := errors.New("persistent error")

	err := retryer.Do(context.Background(), func() error {
		callCount++
		return testErr
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, testErr)
	assert.Equal(t, 3, callCount, "初次 + 两次重试")
}

func TestRetryer_ContextCancellation(t *testing.T) {
	policy := testPolicy(5)
	policy.InitialDelay = 100 * time.Millisecond
	retryer := New(policy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryer.Do(ctx, func() error {
		callCount++
		return errors.New("fail")
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, callCount, "取消发生在退避等待期间")
}

func TestRetryer_NonRetryableError(t *testing.T) {
	retryableErr := errors.New("retryable")
	policy := testPolicy(5)
	policy.RetryableErrors = []error{retryableErr}
	retryer := New(policy, zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return errors.New("not in the allowlist")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, callCount, "不可重试的错误立即返回")
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	policy := testPolicy(2)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	retryer := New(policy, zap.NewNop())

	_ = retryer.Do(context.Background(), func() error {
		return errors.New("fail")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryer_NilPolicyUsesDefault(t *testing.T) {
	retryer := New(nil, zap.NewNop())

	err := retryer.Do(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}
