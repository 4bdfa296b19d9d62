package providers

import (
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/agentchat/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, "bad key", llm.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "no access", llm.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, "invalid model", llm.ErrInvalidRequest, false},
		{"quota via 400", http.StatusBadRequest, "monthly Quota exhausted", llm.ErrQuotaExceeded, false},
		{"credit via 400", http.StatusBadRequest, "insufficient credit balance", llm.ErrQuotaExceeded, false},
		{"bad gateway", http.StatusBadGateway, "upstream down", llm.ErrUpstreamError, true},
		{"service unavailable", http.StatusServiceUnavailable, "maintenance", llm.ErrUpstreamError, true},
		{"gateway timeout", http.StatusGatewayTimeout, "timeout", llm.ErrUpstreamError, true},
		{"model overloaded", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"unknown 5xx", 599, "weird", llm.ErrUpstreamError, true},
		{"unknown 4xx", 418, "teapot", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "testprov")
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, "testprov", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	t.Run("json error with type", func(t *testing.T) {
		body := strings.NewReader(`{"error":{"message":"model not found","type":"invalid_request_error"}}`)
		got := ReadErrorMessage(body)
		assert.Equal(t, "model not found (type: invalid_request_error)", got)
	})

	t.Run("json error without type", func(t *testing.T) {
		body := strings.NewReader(`{"error":{"message":"boom"}}`)
		assert.Equal(t, "boom", ReadErrorMessage(body))
	})

	t.Run("plain text fallback", func(t *testing.T) {
		body := strings.NewReader("502 Bad Gateway")
		assert.Equal(t, "502 Bad Gateway", ReadErrorMessage(body))
	})

	t.Run("malformed json fallback", func(t *testing.T) {
		body := strings.NewReader(`{"error": not-json`)
		assert.Equal(t, `{"error": not-json`, ReadErrorMessage(body))
	})
}

func TestBearerTokenHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://example.com", nil)
	require.NoError(t, err)

	BearerTokenHeaders(req, "sk-test")
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}
