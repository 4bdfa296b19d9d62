package agent_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/BaSui01/agentchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var addSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"a": {"type": "number"},
		"b": {"type": "number"}
	},
	"required": ["a", "b"]
}`)

func addTool(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		A float64 `json:"a"`
		B float64 `json:"b"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", err
	}
	return fmt.Sprintf("%g", in.A+in.B), nil
}

func TestRegisterForLLMExposesSchema(t *testing.T) {
	provider := mocks.NewMockProvider()
	a := agent.NewConversableAgent("caller",
		agent.WithProvider(provider),
		agent.WithModel("mock-model"),
	)
	a.RegisterForLLM("add", "add two numbers", addSchema)

	sender := agent.NewConversableAgent("peer")
	_, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "2+3?")}, sender)
	require.NoError(t, err)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Request.Tools, 1)
	assert.Equal(t, "add", calls[0].Request.Tools[0].Name)
	assert.Equal(t, "add two numbers", calls[0].Request.Tools[0].Description)
	assert.JSONEq(t, string(addSchema), string(calls[0].Request.Tools[0].Parameters))
}

func TestRegisterForLLMReplacesByName(t *testing.T) {
	a := agent.NewConversableAgent("caller")
	a.RegisterForLLM("add", "v1", addSchema)
	a.RegisterForLLM("add", "v2", addSchema)

	tools := a.LLMTools()
	require.Len(t, tools, 1)
	assert.Equal(t, "v2", tools[0].Description)
}

func TestToolCallsReplyExecutes(t *testing.T) {
	executor := agent.NewConversableAgent("executor")
	executor.RegisterForExecution("add", addTool)
	caller := agent.NewConversableAgent("caller")

	inbound := types.Message{
		Role: types.RoleAssistant,
		Name: "caller",
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "add", Arguments: json.RawMessage(`{"a":2,"b":3}`)},
		},
	}

	reply, err := executor.GenerateReply(context.Background(), []types.Message{inbound}, caller)
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, types.RoleTool, reply.Role)
	assert.Equal(t, "5", reply.Content)
	assert.Equal(t, "call_1", reply.ToolCallID)
}

func TestToolCallsReplyUnknownTool(t *testing.T) {
	executor := agent.NewConversableAgent("executor")
	executor.RegisterForExecution("add", addTool)
	caller := agent.NewConversableAgent("caller")

	inbound := types.Message{
		Role: types.RoleAssistant,
		Name: "caller",
		ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "add", Arguments: json.RawMessage(`{"a":1,"b":1}`)},
			{ID: "c2", Name: "subtract", Arguments: json.RawMessage(`{}`)},
		},
	}

	reply, err := executor.GenerateReply(context.Background(), []types.Message{inbound}, caller)
	require.NoError(t, err)
	require.NotNil(t, reply)

	// 两个调用的结果合并为一条 tool 消息,未注册的工具给出错误文本
	assert.Contains(t, reply.Content, "add: 2")
	assert.Contains(t, reply.Content, "not registered")
}

func TestToolCallsReplySkippedWithoutExecutor(t *testing.T) {
	a := agent.NewConversableAgent("plain", agent.WithDefaultAutoReply("pass"))
	caller := agent.NewConversableAgent("caller")

	inbound := types.Message{
		Role: types.RoleAssistant,
		Name: "caller",
		ToolCalls: []types.ToolCall{
			{ID: "c1", Name: "add", Arguments: json.RawMessage(`{"a":1,"b":1}`)},
		},
	}

	// 没有任何执行器时不接管,走默认回复
	reply, err := a.GenerateReply(context.Background(), []types.Message{inbound}, caller)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "pass", reply.Content)
}

func TestLLMToolRoundTrip(t *testing.T) {
	provider := mocks.NewMockProvider().WithScriptMessages(
		llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "call_9", Name: "add", Arguments: json.RawMessage(`{"a":40,"b":2}`)},
			},
		},
		llm.Message{Role: llm.RoleAssistant, Content: "the sum is 42"},
	)

	a := agent.NewConversableAgent("solver",
		agent.WithProvider(provider),
		agent.WithModel("mock-model"),
	)
	a.RegisterForLLM("add", "add two numbers", addSchema)
	a.RegisterForExecution("add", addTool)

	sender := agent.NewConversableAgent("peer")
	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "what is 40+2?")}, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "the sum is 42", reply.Content)

	// 第一次调用返回工具请求,就地执行后发起第二次调用
	calls := provider.Calls()
	require.Len(t, calls, 2)

	followup := calls[1].Request.Messages
	require.GreaterOrEqual(t, len(followup), 2)
	assistantMsg := followup[len(followup)-2]
	toolMsg := followup[len(followup)-1]
	require.Len(t, assistantMsg.ToolCalls, 1)
	assert.Equal(t, "call_9", assistantMsg.ToolCalls[0].ID)
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	assert.Equal(t, "42", toolMsg.Content)
	assert.Equal(t, "call_9", toolMsg.ToolCallID)

	// 两次调用都计入成本
	assert.Equal(t, 2, a.Tracker().Total().ByModel["mock-model"].Requests)
}

func TestLLMToolCallPassThroughWithoutExecutor(t *testing.T) {
	provider := mocks.NewMockProvider().WithScriptMessages(
		llm.Message{
			Role: llm.RoleAssistant,
			ToolCalls: []llm.ToolCall{
				{ID: "call_7", Name: "lookup", Arguments: json.RawMessage(`{"q":"go"}`)},
			},
		},
	)
	a := agent.NewConversableAgent("suggester",
		agent.WithProvider(provider),
		agent.WithModel("mock-model"),
	)
	a.RegisterForLLM("lookup", "search the index", json.RawMessage(`{"type":"object"}`))

	sender := agent.NewConversableAgent("peer")
	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "find go")}, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)

	// 无执行器时原样转发工具调用,由对端执行
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "lookup", reply.ToolCalls[0].Name)
	assert.Equal(t, 1, provider.CallCount())
}

func TestRegisterFunction(t *testing.T) {
	caller := agent.NewConversableAgent("caller")
	executor := agent.NewConversableAgent("executor")

	agent.RegisterFunction(caller, executor, "add", "add two numbers", addSchema, addTool)

	require.Len(t, caller.LLMTools(), 1)
	assert.Empty(t, executor.LLMTools())

	inbound := types.Message{
		Role:      types.RoleAssistant,
		Name:      "caller",
		ToolCalls: []types.ToolCall{{ID: "c", Name: "add", Arguments: json.RawMessage(`{"a":1,"b":2}`)}},
	}
	reply, err := executor.GenerateReply(context.Background(), []types.Message{inbound}, caller)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "3", reply.Content)
}
