package chat_test

import (
	"context"
	"testing"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scriptedAgent(name string, replies ...string) *agent.ConversableAgent {
	return agent.NewConversableAgent(name,
		agent.WithProvider(mocks.NewMockProvider().WithScript(replies...)),
		agent.WithModel("mock-model"),
	)
}

func TestInitiateChatsCarryoverAccumulates(t *testing.T) {
	user := agent.NewConversableAgent("user")
	analyst := scriptedAgent("analyst", "revenue grew 10% TERMINATE")
	critic := scriptedAgent("critic", "growth is below market TERMINATE")
	writer := scriptedAgent("writer", "draft is ready TERMINATE")

	results, err := chat.InitiateChats(context.Background(), []chat.ChatSpec{
		{Initiator: user, Recipient: analyst, Message: "analyze the quarter",
			Options: []chat.Option{chat.WithSilent()}},
		{Initiator: user, Recipient: critic, Message: "critique the analysis",
			Options: []chat.Option{chat.WithSilent()}},
		{Initiator: user, Recipient: writer, Message: "write the report",
			Options: []chat.Option{chat.WithSilent()}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 第一段没有 carryover,后续开场消息携带此前全部总结
	assert.Equal(t, "analyze the quarter", results[0].History[0].Content)
	assert.Equal(t, "critique the analysis\nContext: \nrevenue grew 10%",
		results[1].History[0].Content)
	assert.Equal(t, "write the report\nContext: \nrevenue grew 10%\ngrowth is below market",
		results[2].History[0].Content)
}

func TestInitiateChatsAbortsOnFailure(t *testing.T) {
	user := agent.NewConversableAgent("user")
	ok := scriptedAgent("ok", "fine TERMINATE")
	broken := agent.NewConversableAgent("broken",
		agent.WithProvider(mocks.NewMockProvider().WithError(
			llm.NewError(llm.ErrInvalidRequest, "bad request").WithProvider("mock"))),
		agent.WithModel("mock-model"),
	)

	results, err := chat.InitiateChats(context.Background(), []chat.ChatSpec{
		{Initiator: user, Recipient: ok, Message: "step one",
			Options: []chat.Option{chat.WithSilent()}},
		{Initiator: user, Recipient: broken, Message: "step two",
			Options: []chat.Option{chat.WithSilent()}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 1")
	assert.Contains(t, err.Error(), "broken")
	assert.Len(t, results, 1)
}

func TestInitiateChatsValidation(t *testing.T) {
	user := agent.NewConversableAgent("user")
	_, err := chat.InitiateChats(context.Background(), []chat.ChatSpec{
		{Initiator: user, Message: "no recipient"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat 0")
}

func TestInitiateChatsParallelPrerequisites(t *testing.T) {
	userA := agent.NewConversableAgent("user_a")
	userB := agent.NewConversableAgent("user_b")
	userC := agent.NewConversableAgent("user_c")
	research := scriptedAgent("research", "key fact found TERMINATE")
	drafter := scriptedAgent("drafter", "draft done TERMINATE")
	checker := scriptedAgent("checker", "checks passed TERMINATE")

	results, err := chat.InitiateChatsParallel(context.Background(), []chat.ParallelChatSpec{
		{ID: 1, ChatSpec: chat.ChatSpec{Initiator: userA, Recipient: research,
			Message: "research the topic", Options: []chat.Option{chat.WithSilent()}}},
		{ID: 2, Prerequisites: []int{1}, ChatSpec: chat.ChatSpec{Initiator: userB, Recipient: drafter,
			Message: "draft the article", Options: []chat.Option{chat.WithSilent()}}},
		{ID: 3, Prerequisites: []int{1}, ChatSpec: chat.ChatSpec{Initiator: userC, Recipient: checker,
			Message: "verify the facts", Options: []chat.Option{chat.WithSilent()}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 依赖会话的总结作为后续会话的 carryover
	assert.Equal(t, "research the topic", results[1].History[0].Content)
	assert.Equal(t, "draft the article\nContext: \nkey fact found",
		results[2].History[0].Content)
	assert.Equal(t, "verify the facts\nContext: \nkey fact found",
		results[3].History[0].Content)
}

func TestInitiateChatsParallelCycle(t *testing.T) {
	user := agent.NewConversableAgent("user")
	peer := agent.NewConversableAgent("peer")

	_, err := chat.InitiateChatsParallel(context.Background(), []chat.ParallelChatSpec{
		{ID: 1, Prerequisites: []int{2}, ChatSpec: chat.ChatSpec{Initiator: user, Recipient: peer, Message: "a"}},
		{ID: 2, Prerequisites: []int{1}, ChatSpec: chat.ChatSpec{Initiator: user, Recipient: peer, Message: "b"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestInitiateChatsParallelBadSpecs(t *testing.T) {
	user := agent.NewConversableAgent("user")
	peer := agent.NewConversableAgent("peer")

	_, err := chat.InitiateChatsParallel(context.Background(), []chat.ParallelChatSpec{
		{ID: 1, ChatSpec: chat.ChatSpec{Initiator: user, Recipient: peer, Message: "a"}},
		{ID: 1, ChatSpec: chat.ChatSpec{Initiator: user, Recipient: peer, Message: "b"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = chat.InitiateChatsParallel(context.Background(), []chat.ParallelChatSpec{
		{ID: 1, Prerequisites: []int{9}, ChatSpec: chat.ChatSpec{Initiator: user, Recipient: peer, Message: "a"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown prerequisite")
}
