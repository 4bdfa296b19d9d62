// MockProvider 是 LLM Provider 的测试模拟实现。
//
// 支持固定响应、多轮脚本、工具调用、流式输出与错误注入。
package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentchat/llm"
)

// MockCall 记录一次 Completion 或 Stream 调用。
type MockCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// MockProvider 是 llm.Provider 的模拟实现。
type MockProvider struct {
	mu sync.Mutex

	// 响应配置
	response     string
	script       []llm.Message // 多轮脚本,按调用次序消费
	toolCalls    []llm.ToolCall
	streamChunks []string
	err          error

	promptTokens     int
	completionTokens int

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 第 N+1 次调用开始失败,0 表示不启用

	calls []MockCall
}

// NewMockProvider 创建 MockProvider,默认返回固定文本。
func NewMockProvider() *MockProvider {
	return &MockProvider{
		response:         "mock response",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应内容。
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithScript 设置多轮响应脚本,每次调用依次消费一条;
// 脚本耗尽后回落到固定响应。
func (m *MockProvider) WithScript(replies ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range replies {
		m.script = append(m.script, llm.Message{Role: llm.RoleAssistant, Content: r})
	}
	return m
}

// WithScriptMessages 设置完整消息脚本,可携带工具调用。
func (m *MockProvider) WithScriptMessages(msgs ...llm.Message) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, msgs...)
	return m
}

// WithToolCalls 设置固定响应的工具调用。
func (m *MockProvider) WithToolCalls(calls ...llm.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = calls
	return m
}

// WithError 设置固定返回的错误。
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应的内容分片。
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithTokenUsage 设置响应中报告的 token 用量。
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟。
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 前 n 次调用成功,之后全部失败。
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 完全接管 Completion 行为。
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// Calls 返回调用记录快照。
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount 返回累计调用次数。
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Name 实现 llm.Provider。
func (m *MockProvider) Name() string { return "mock" }

// SupportsNativeFunctionCalling 实现 llm.Provider。
func (m *MockProvider) SupportsNativeFunctionCalling() bool { return true }

// HealthCheck 实现 llm.Provider。
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Completion 实现 llm.Provider。
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	record := func(resp *llm.ChatResponse, err error) (*llm.ChatResponse, error) {
		m.calls = append(m.calls, MockCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	if m.completionFunc != nil {
		fn := m.completionFunc
		m.mu.Unlock()
		resp, err := fn(ctx, req)
		m.mu.Lock()
		return record(resp, err)
	}
	if m.err != nil {
		return record(nil, m.err)
	}
	if m.failAfter > 0 && len(m.calls) >= m.failAfter {
		return record(nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: "mock failure injected", Retryable: false, Provider: "mock",
		})
	}

	msg := llm.Message{Role: llm.RoleAssistant, Content: m.response, ToolCalls: m.toolCalls}
	if len(m.script) > 0 {
		msg = m.script[0]
		m.script = m.script[1:]
	}

	resp := &llm.ChatResponse{
		ID:       fmt.Sprintf("mock-%d", len(m.calls)+1),
		Provider: "mock",
		Model:    modelOf(req),
		Choices: []llm.ChatChoice{
			{Index: 0, FinishReason: finishReason(msg), Message: msg},
		},
		Usage: llm.ChatUsage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		CreatedAt: time.Now(),
	}
	return record(resp, nil)
}

// Stream 实现 llm.Provider,按配置的分片发送后关闭通道。
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	if m.err != nil {
		err := m.err
		m.calls = append(m.calls, MockCall{Request: req, Error: err})
		m.mu.Unlock()
		return nil, err
	}
	chunks := append([]string(nil), m.streamChunks...)
	if len(chunks) == 0 {
		chunks = []string{m.response}
	}
	usage := &llm.ChatUsage{
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
		TotalTokens:      m.promptTokens + m.completionTokens,
	}
	m.calls = append(m.calls, MockCall{Request: req})
	m.mu.Unlock()

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for i, content := range chunks {
			chunk := llm.StreamChunk{
				ID:       "mock-stream",
				Provider: "mock",
				Model:    modelOf(req),
				Delta:    llm.Message{Role: llm.RoleAssistant, Content: content},
			}
			if i == len(chunks)-1 {
				chunk.FinishReason = "stop"
				chunk.Usage = usage
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}

func modelOf(req *llm.ChatRequest) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	return "mock-model"
}

func finishReason(msg llm.Message) string {
	if len(msg.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}
