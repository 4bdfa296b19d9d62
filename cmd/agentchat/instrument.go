package main

import (
	"context"
	"time"

	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/persistence"
	"github.com/BaSui01/agentchat/types"
)

// =============================================================================
// 📏 指标装饰器 — Provider 与 ChatStore
// =============================================================================

// measuredProvider 在 Provider 外层记录请求量、时延、Token 用量与成本。
type measuredProvider struct {
	llm.Provider
	collector *metrics.Collector
}

func newMeasuredProvider(p llm.Provider, collector *metrics.Collector) llm.Provider {
	return &measuredProvider{Provider: p, collector: collector}
}

func (m *measuredProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := m.Provider.Completion(ctx, req)
	duration := time.Since(start)

	status := "success"
	var usage llm.ChatUsage
	if err != nil {
		status = "error"
	} else if resp != nil {
		usage = resp.Usage
	}
	m.collector.RecordLLMRequest(m.Name(), req.Model, status, duration,
		usage.PromptTokens, usage.CompletionTokens, usage.Cost)

	return resp, err
}

// Stream 透传增量通道，在通道关闭时按最终 chunk 携带的 usage 记账。
func (m *measuredProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	start := time.Now()
	inner, err := m.Provider.Stream(ctx, req)
	if err != nil {
		m.collector.RecordLLMRequest(m.Name(), req.Model, "error", time.Since(start), 0, 0, 0)
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		status := "success"
		var usage llm.ChatUsage
		for chunk := range inner {
			if chunk.Err != nil {
				status = "error"
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				m.collector.RecordLLMRequest(m.Name(), req.Model, "canceled", time.Since(start),
					usage.PromptTokens, usage.CompletionTokens, usage.Cost)
				return
			}
		}
		m.collector.RecordLLMRequest(m.Name(), req.Model, status, time.Since(start),
			usage.PromptTokens, usage.CompletionTokens, usage.Cost)
	}()

	return out, nil
}

// measuredStore 在 ChatStore 外层记录各操作的次数、状态与时延。
type measuredStore struct {
	persistence.ChatStore
	backend   string
	collector *metrics.Collector
}

func newMeasuredStore(s persistence.ChatStore, backend string, collector *metrics.Collector) persistence.ChatStore {
	return &measuredStore{ChatStore: s, backend: backend, collector: collector}
}

func (m *measuredStore) SaveResult(ctx context.Context, result *chat.Result) error {
	start := time.Now()
	err := m.ChatStore.SaveResult(ctx, result)
	m.collector.RecordStoreOp(m.backend, "save_result", err, time.Since(start))
	return err
}

func (m *measuredStore) GetResult(ctx context.Context, chatID string) (*chat.Result, error) {
	start := time.Now()
	result, err := m.ChatStore.GetResult(ctx, chatID)
	m.collector.RecordStoreOp(m.backend, "get_result", err, time.Since(start))
	return result, err
}

func (m *measuredStore) ListResults(ctx context.Context, cursor string, limit int) ([]*chat.Result, string, error) {
	start := time.Now()
	results, next, err := m.ChatStore.ListResults(ctx, cursor, limit)
	m.collector.RecordStoreOp(m.backend, "list_results", err, time.Since(start))
	return results, next, err
}

func (m *measuredStore) SaveMessage(ctx context.Context, chatID string, msg types.Message) error {
	start := time.Now()
	err := m.ChatStore.SaveMessage(ctx, chatID, msg)
	m.collector.RecordStoreOp(m.backend, "save_message", err, time.Since(start))
	return err
}

func (m *measuredStore) GetMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	start := time.Now()
	msgs, err := m.ChatStore.GetMessages(ctx, chatID)
	m.collector.RecordStoreOp(m.backend, "get_messages", err, time.Since(start))
	return msgs, err
}

func (m *measuredStore) DeleteChat(ctx context.Context, chatID string) error {
	start := time.Now()
	err := m.ChatStore.DeleteChat(ctx, chatID)
	m.collector.RecordStoreOp(m.backend, "delete_chat", err, time.Since(start))
	return err
}
