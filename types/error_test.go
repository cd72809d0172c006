package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrTransportUnavailable, "discovery endpoints exhausted").
		WithCause(cause).
		WithRetryable(true).
		WithSource("transport")

	assert.Contains(t, err.Error(), "TRANSPORT_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
	assert.True(t, err.Retryable)
	assert.Equal(t, "transport", err.Source)
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrChannelName, GetErrorCode(NewError(ErrChannelName, "bad name")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
}

func TestIsCode(t *testing.T) {
	err := NewError(ErrSignatureMismatch, "forged")
	assert.True(t, IsCode(err, ErrSignatureMismatch))
	assert.False(t, IsCode(err, ErrChannelName))
	assert.False(t, IsCode(fmt.Errorf("wrapped: %w", err), ErrSignatureMismatch),
		"错误码提取不穿透包装，聚合层直接持有结构化错误")
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "SOURCE_ERROR", ErrorKind(NewError(ErrSourceError, "upstream 500")))
	assert.Equal(t, "exception", ErrorKind(errors.New("panic: nil map")))
}
