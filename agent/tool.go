package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/types"
	"go.uber.org/zap"
)

// ToolFunc 工具执行函数。args 是模型给出的 JSON 实参。
type ToolFunc func(ctx context.Context, args json.RawMessage) (string, error)

// RegisterForLLM 向 LLM 暴露一个工具的 schema。
// 只影响发给模型的工具列表,不注册执行逻辑。
func (a *ConversableAgent) RegisterForLLM(name, description string, parameters json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, t := range a.llmTools {
		if t.Name == name {
			a.llmTools[i] = types.ToolSchema{Name: name, Description: description, Parameters: parameters}
			return
		}
	}
	a.llmTools = append(a.llmTools, types.ToolSchema{Name: name, Description: description, Parameters: parameters})
}

// RegisterForExecution 注册一个工具的执行函数。
// 收到携带该工具调用的消息时,agent 会执行它并以 tool 消息回复。
func (a *ConversableAgent) RegisterForExecution(name string, fn ToolFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.execTools[name] = fn
}

// RegisterFunction 同时在 caller 上暴露 schema、在 executor 上注册执行,
// 对应「助理建议调用、代理执行」的标准分工。
func RegisterFunction(caller, executor *ConversableAgent, name, description string, parameters json.RawMessage, fn ToolFunc) {
	caller.RegisterForLLM(name, description, parameters)
	executor.RegisterForExecution(name, fn)
}

// LLMTools 返回当前暴露给 LLM 的工具 schema 快照。
func (a *ConversableAgent) LLMTools() []types.ToolSchema {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.ToolSchema(nil), a.llmTools...)
}

func (a *ConversableAgent) llmToolSchemas() []llm.ToolSchema {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.llmTools) == 0 {
		return nil
	}
	out := make([]llm.ToolSchema, 0, len(a.llmTools))
	for _, t := range a.llmTools {
		out = append(out, llm.ToolSchema{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

func (a *ConversableAgent) hasExecutor(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.execTools[name]
	return ok
}

func (a *ConversableAgent) canExecuteAll(calls []llm.ToolCall) bool {
	if len(calls) == 0 {
		return false
	}
	for _, c := range calls {
		if !a.hasExecutor(c.Name) {
			return false
		}
	}
	return true
}

// generateToolCallsReply 处理收到的 tool_calls 消息:
// 只要注册了其中任意一个工具的执行函数就接管本轮,
// 逐一执行并把结果合成一条 tool 消息作为回复。
func (a *ConversableAgent) generateToolCallsReply(ctx context.Context, msgs []types.Message) *types.Message {
	last, ok := types.LastMessage(msgs)
	if !ok || !last.HasToolCalls() {
		return nil
	}

	anyRegistered := false
	for _, tc := range last.ToolCalls {
		if a.hasExecutor(tc.Name) {
			anyRegistered = true
			break
		}
	}
	if !anyRegistered {
		return nil
	}

	results := a.runToolCalls(ctx, last.ToolCalls)

	if len(results) == 1 {
		msg := results[0].ToMessage()
		msg.Name = a.name
		return &msg
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		content := string(r.Result)
		if r.IsError() {
			content = "Error: " + r.Error
		}
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, content))
	}
	reply := types.Message{
		Role:      types.RoleTool,
		Content:   strings.Join(parts, "\n\n"),
		Name:      a.name,
		Timestamp: time.Now(),
	}
	return &reply
}

// executeToolCalls 执行一组 LLM 返回的工具调用,返回可回灌给模型的 tool 消息。
func (a *ConversableAgent) executeToolCalls(ctx context.Context, calls []llm.ToolCall) ([]types.Message, error) {
	converted := make([]types.ToolCall, 0, len(calls))
	for _, c := range calls {
		converted = append(converted, types.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	results := a.runToolCalls(ctx, converted)
	out := make([]types.Message, 0, len(results))
	for _, r := range results {
		out = append(out, r.ToMessage())
	}
	return out, nil
}

func (a *ConversableAgent) runToolCalls(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, a.runToolCall(ctx, call))
	}
	return results
}

func (a *ConversableAgent) runToolCall(ctx context.Context, call types.ToolCall) types.ToolResult {
	a.mu.Lock()
	fn, ok := a.execTools[call.Name]
	a.mu.Unlock()

	result := types.ToolResult{ToolCallID: call.ID, Name: call.Name}
	start := time.Now()

	if !ok {
		result.Error = fmt.Sprintf("tool %q is not registered for execution", call.Name)
		result.Duration = time.Since(start)
		a.logger.Warn("tool not registered", zap.String("agent", a.name), zap.String("tool", call.Name))
		return result
	}

	output, err := fn(ctx, call.Arguments)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		a.logger.Warn("tool execution failed",
			zap.String("agent", a.name),
			zap.String("tool", call.Name),
			zap.Duration("elapsed", result.Duration),
			zap.Error(err))
		return result
	}

	result.Result = json.RawMessage(output)
	a.logger.Debug("tool executed",
		zap.String("agent", a.name),
		zap.String("tool", call.Name),
		zap.Duration("elapsed", result.Duration))
	return result
}
