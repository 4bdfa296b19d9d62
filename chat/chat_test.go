package chat_test

import (
	"context"
	"testing"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/BaSui01/agentchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitiateChatMaxTurns(t *testing.T) {
	alice := agent.NewConversableAgent("alice", agent.WithDefaultAutoReply("go on"))
	bob := agent.NewConversableAgent("bob",
		agent.WithProvider(mocks.NewMockProvider().WithResponse("sure thing")),
		agent.WithModel("mock-model"),
	)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("hello bob"),
		chat.WithMaxTurns(2),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	require.Len(t, result.History, 4)

	// 发起方视角:自己的消息是 assistant,对方的是 user,严格交替
	wantRoles := []types.Role{types.RoleAssistant, types.RoleUser, types.RoleAssistant, types.RoleUser}
	wantNames := []string{"alice", "bob", "alice", "bob"}
	for i, msg := range result.History {
		assert.Equal(t, wantRoles[i], msg.Role, "message %d role", i)
		assert.Equal(t, wantNames[i], msg.Name, "message %d name", i)
	}
	assert.Equal(t, "hello bob", result.History[0].Content)
	assert.NotEmpty(t, result.ChatID)
}

func TestInitiateChatTerminationEndsChat(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob",
		agent.WithProvider(mocks.NewMockProvider().WithResponse("all done TERMINATE")),
		agent.WithModel("mock-model"),
	)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("do the thing"),
		chat.WithSilent(),
	)
	require.NoError(t, err)

	// bob 的终止回复被记录,alice 识别后不再接话
	require.Len(t, result.History, 2)
	assert.Contains(t, result.History[1].Content, "TERMINATE")
	assert.Equal(t, "all done", result.Summary)
}

func TestInitiateChatCarryover(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob",
		agent.WithProvider(mocks.NewMockProvider().WithResponse("noted TERMINATE")),
		agent.WithModel("mock-model"),
	)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("summarize the findings"),
		chat.WithCarryover("fact one", "fact two"),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	assert.Equal(t, "summarize the findings\nContext: \nfact one\nfact two", result.History[0].Content)
}

func TestInitiateChatSummaryReflection(t *testing.T) {
	provider := mocks.NewMockProvider().WithScript(
		"the answer is 42 TERMINATE",
		"The answer is 42.",
	)
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob",
		agent.WithProvider(provider),
		agent.WithModel("mock-model"),
	)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("what is the answer?"),
		chat.WithSummaryMethod(chat.SummaryReflectionWithLLM),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	assert.Equal(t, "The answer is 42.", result.Summary)

	// 第二次调用是复盘:总结指令作为 system 消息排在历史之后
	calls := provider.Calls()
	require.Len(t, calls, 2)
	reflectMsgs := calls[1].Request.Messages
	last := reflectMsgs[len(reflectMsgs)-1]
	assert.Equal(t, llm.RoleSystem, last.Role)
	assert.Equal(t, chat.DefaultSummaryPrompt, last.Content)
}

func TestInitiateChatUnknownSummaryMethod(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob")

	_, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("hi"),
		chat.WithSummaryMethod("haiku"),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown summary method")
}

func TestInitiateChatClearsHistoryByDefault(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob")
	alice.Send(types.NewChatMessage(types.RoleUser, "alice", "stale"), bob)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("fresh start"),
		chat.WithMaxTurns(1),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	require.Len(t, result.History, 2)
	assert.Equal(t, "fresh start", result.History[0].Content)
}

func TestInitiateChatKeepHistory(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob")
	alice.Send(types.NewChatMessage(types.RoleUser, "alice", "stale"), bob)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("continue"),
		chat.WithMaxTurns(1),
		chat.WithKeepHistory(),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	require.Len(t, result.History, 3)
	assert.Equal(t, "stale", result.History[0].Content)
	assert.Equal(t, "continue", result.History[1].Content)
}

func TestInitiateChatCustomChatID(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob")

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("hi"),
		chat.WithMaxTurns(1),
		chat.WithChatID("chat-42"),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	assert.Equal(t, "chat-42", result.ChatID)
}

func TestInitiateChatCollectsHumanInputs(t *testing.T) {
	alice := agent.NewConversableAgent("alice")
	bob := agent.NewConversableAgent("bob",
		agent.WithHumanInputMode(agent.InputModeTerminate),
		agent.WithMaxConsecutiveAutoReply(0),
		agent.WithHumanInputProvider(mocks.NewScriptedHuman("tweak it", "")),
	)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("hello"),
		chat.WithMaxTurns(2),
		chat.WithSilent(),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"tweak it", ""}, result.HumanInputs)
}

func TestInitiateChatGathersUsage(t *testing.T) {
	alice := agent.NewConversableAgent("alice",
		agent.WithProvider(mocks.NewMockProvider().WithResponse("good, thanks TERMINATE")),
		agent.WithModel("mock-model"),
	)
	bob := agent.NewConversableAgent("bob",
		agent.WithProvider(mocks.NewMockProvider().WithResponse("fine, and you?")),
		agent.WithModel("mock-model"),
	)

	result, err := chat.InitiateChat(context.Background(), alice, bob,
		chat.WithMessage("how are you?"),
		chat.WithSilent(),
	)
	require.NoError(t, err)

	usage, ok := result.Cost.Total.ByModel["mock-model"]
	require.True(t, ok)
	assert.Equal(t, 2, usage.Requests)
	assert.Equal(t, 60, usage.TotalTokens)
}

func TestInitiateChatNilAgents(t *testing.T) {
	_, err := chat.InitiateChat(context.Background(), nil, nil, chat.WithMessage("hi"))
	require.Error(t, err)
}
