package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	e := NewError(ErrRateLimited, "too many requests").
		WithHTTPStatus(429).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, "[LLM_RATE_LIMITED] too many requests", e.Error())
	assert.Equal(t, 429, e.HTTPStatus)
	assert.True(t, e.Retryable)
	assert.Equal(t, "openai", e.Provider)
}

func TestErrorCauseChain(t *testing.T) {
	cause := errors.New("connection reset")
	e := NewError(ErrUpstreamError, "request failed").WithCause(cause)

	assert.Contains(t, e.Error(), "connection reset")
	assert.ErrorIs(t, e, cause)

	wrapped := fmt.Errorf("completion: %w", e)
	var got *Error
	require.True(t, errors.As(wrapped, &got))
	assert.Equal(t, ErrUpstreamError, got.Code)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrRateLimited, "x").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrUnauthorized, "x")))
	assert.False(t, IsRetryable(errors.New("plain error")))
	assert.False(t, IsRetryable(nil))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrQuotaExceeded, CodeOf(NewError(ErrQuotaExceeded, "x")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestFirstChoice(t *testing.T) {
	var nilResp *ChatResponse
	_, ok := nilResp.FirstChoice()
	assert.False(t, ok)

	_, ok = (&ChatResponse{}).FirstChoice()
	assert.False(t, ok)

	resp := &ChatResponse{Choices: []ChatChoice{
		{Index: 0, Message: Message{Content: "first"}},
		{Index: 1, Message: Message{Content: "second"}},
	}}
	msg, ok := resp.FirstChoice()
	require.True(t, ok)
	assert.Equal(t, "first", msg.Content)
}
