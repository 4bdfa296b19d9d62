package agent_test

import (
	"context"
	"testing"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/testutil/mocks"
	"github.com/BaSui01/agentchat/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMsg(name, content string) types.Message {
	return types.NewChatMessage(types.RoleUser, name, content)
}

func TestGenerateReplyLLM(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("the answer is 42")
	a := agent.NewConversableAgent("assistant",
		agent.WithSystemMessage("You are concise."),
		agent.WithProvider(provider),
		agent.WithModel("mock-model"),
	)
	sender := agent.NewConversableAgent("user_proxy")

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("user_proxy", "what is the answer?")}, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)

	assert.Equal(t, types.RoleAssistant, reply.Role)
	assert.Equal(t, "the answer is 42", reply.Content)
	assert.Equal(t, "assistant", reply.Name)

	// 系统提示词进入请求首位
	calls := provider.Calls()
	require.Len(t, calls, 1)
	require.NotEmpty(t, calls[0].Request.Messages)
	assert.Equal(t, "You are concise.", calls[0].Request.Messages[0].Content)

	// 用量进入成本追踪
	total := a.Tracker().Total()
	assert.Equal(t, 1, total.ByModel["mock-model"].Requests)
	assert.Equal(t, 30, total.ByModel["mock-model"].TotalTokens)
}

func TestGenerateReplyDefaultAutoReply(t *testing.T) {
	a := agent.NewConversableAgent("echo",
		agent.WithDefaultAutoReply("nothing to add"),
	)
	sender := agent.NewConversableAgent("peer")

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "hello")}, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "nothing to add", reply.Content)
	assert.Equal(t, types.RoleAssistant, reply.Role)
}

func TestGenerateReplyTerminationNeverMode(t *testing.T) {
	a := agent.NewConversableAgent("quiet")
	sender := agent.NewConversableAgent("peer")

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "all done. TERMINATE")}, sender)
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestGenerateReplyTerminateModeFeedback(t *testing.T) {
	human := mocks.NewScriptedHuman("please also check the edge cases")
	a := agent.NewConversableAgent("reviewer",
		agent.WithHumanInputMode(agent.InputModeTerminate),
		agent.WithHumanInputProvider(human),
	)
	sender := agent.NewConversableAgent("author")

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("author", "looks done. TERMINATE")}, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "please also check the edge cases", reply.Content)
	assert.Equal(t, types.RoleUser, reply.Role)
	assert.Equal(t, "reviewer", reply.Name)

	// 人工回复重置计数
	assert.Zero(t, a.ConsecutiveAutoReplies("author"))
	assert.Equal(t, []string{"please also check the edge cases"}, a.TakeHumanInputs())
}

func TestGenerateReplyTerminateModeEmptyEnds(t *testing.T) {
	human := mocks.NewScriptedHuman("")
	a := agent.NewConversableAgent("reviewer",
		agent.WithHumanInputMode(agent.InputModeTerminate),
		agent.WithHumanInputProvider(human),
	)
	sender := agent.NewConversableAgent("author")

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("author", "TERMINATE")}, sender)
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.Equal(t, 1, human.Consumed())
}

func TestGenerateReplyTerminateModeExitWord(t *testing.T) {
	human := mocks.NewScriptedHuman("exit")
	a := agent.NewConversableAgent("reviewer",
		agent.WithHumanInputMode(agent.InputModeTerminate),
		agent.WithHumanInputProvider(human),
		agent.WithMaxConsecutiveAutoReply(0),
	)
	sender := agent.NewConversableAgent("author")

	// 计数上限为 0,立即咨询人工;输入 exit 结束
	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("author", "continue?")}, sender)
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestMaxConsecutiveAutoReplyCeiling(t *testing.T) {
	a := agent.NewConversableAgent("bounded",
		agent.WithDefaultAutoReply("ok"),
		agent.WithMaxConsecutiveAutoReply(2),
	)
	sender := agent.NewConversableAgent("peer")
	msgs := []types.Message{userMsg("peer", "go on")}

	r1, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	require.NotNil(t, r1)
	r2, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	require.NotNil(t, r2)
	assert.Equal(t, 2, a.ConsecutiveAutoReplies("peer"))

	// 第三次触顶,NEVER 模式直接终止
	r3, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	assert.Nil(t, r3)
}

func TestAlwaysModeEnterFallsThrough(t *testing.T) {
	human := mocks.NewScriptedHuman("", "exit")
	a := agent.NewConversableAgent("attended",
		agent.WithHumanInputMode(agent.InputModeAlways),
		agent.WithHumanInputProvider(human),
		agent.WithDefaultAutoReply("auto"),
	)
	sender := agent.NewConversableAgent("peer")
	msgs := []types.Message{userMsg("peer", "hello")}

	// 回车放行自动回复
	reply, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "auto", reply.Content)

	// exit 结束会话
	reply, err = a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestAlwaysModeTextBecomesReply(t *testing.T) {
	human := mocks.NewScriptedHuman("use the second option")
	a := agent.NewConversableAgent("attended",
		agent.WithHumanInputMode(agent.InputModeAlways),
		agent.WithHumanInputProvider(human),
	)
	sender := agent.NewConversableAgent("peer")

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "which option?")}, sender)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "use the second option", reply.Content)
	assert.Zero(t, a.ConsecutiveAutoReplies("peer"))
}

func TestHumanReplyResetsCounter(t *testing.T) {
	human := mocks.NewScriptedHuman("keep refining")
	a := agent.NewConversableAgent("bounded",
		agent.WithHumanInputMode(agent.InputModeTerminate),
		agent.WithHumanInputProvider(human),
		agent.WithDefaultAutoReply("ok"),
		agent.WithMaxConsecutiveAutoReply(1),
	)
	sender := agent.NewConversableAgent("peer")
	msgs := []types.Message{userMsg("peer", "go on")}

	r1, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	require.NotNil(t, r1)
	assert.Equal(t, 1, a.ConsecutiveAutoReplies("peer"))

	// 触顶后人工给出文本,计数归零
	r2, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)
	require.NotNil(t, r2)
	assert.Equal(t, "keep refining", r2.Content)
	assert.Zero(t, a.ConsecutiveAutoReplies("peer"))
}

func TestSendRecordsBothLedgers(t *testing.T) {
	a := agent.NewConversableAgent("alice")
	b := agent.NewConversableAgent("bob")

	a.Send(types.NewUserMessage("hi bob"), b)

	fromA := a.History("bob")
	require.Len(t, fromA, 1)
	assert.Equal(t, types.RoleAssistant, fromA[0].Role)
	assert.Equal(t, "alice", fromA[0].Name)

	atB := b.History("alice")
	require.Len(t, atB, 1)
	assert.Equal(t, types.RoleUser, atB[0].Role)
	assert.Equal(t, "alice", atB[0].Name)
	assert.Equal(t, "hi bob", atB[0].Content)
}

func TestResetPeerClearsHistoryAndCounter(t *testing.T) {
	a := agent.NewConversableAgent("alice", agent.WithDefaultAutoReply("ok"))
	b := agent.NewConversableAgent("bob")

	a.Send(types.NewUserMessage("hello"), b)
	_, err := a.GenerateReply(context.Background(), b.History("alice"), b)
	require.NoError(t, err)

	a.ResetPeer("bob")
	assert.Empty(t, a.History("bob"))
	assert.Zero(t, a.ConsecutiveAutoReplies("bob"))
}

func TestGenerateReplyDoesNotMutateInput(t *testing.T) {
	a := agent.NewConversableAgent("safe", agent.WithDefaultAutoReply("ok"))
	sender := agent.NewConversableAgent("peer")

	msgs := []types.Message{userMsg("peer", "original")}
	_, err := a.GenerateReply(context.Background(), msgs, sender)
	require.NoError(t, err)

	assert.Equal(t, "original", msgs[0].Content)
	assert.Len(t, msgs, 1)
}

func TestRegisterReplyCustom(t *testing.T) {
	a := agent.NewConversableAgent("host", agent.WithDefaultAutoReply("fallthrough"))
	vip := agent.NewConversableAgent("vip")
	other := agent.NewConversableAgent("other")

	a.RegisterReply(
		func(sender *agent.ConversableAgent) bool {
			return sender != nil && sender.Name() == "vip"
		},
		func(ctx context.Context, self *agent.ConversableAgent, messages []types.Message, sender *agent.ConversableAgent) (bool, *types.Message, error) {
			reply := types.NewChatMessage(types.RoleAssistant, self.Name(), "handled by custom")
			return true, &reply, nil
		},
	)

	reply, err := a.GenerateReply(context.Background(), []types.Message{userMsg("vip", "hi")}, vip)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "handled by custom", reply.Content)

	// 触发条件不匹配时走默认管线
	reply, err = a.GenerateReply(context.Background(), []types.Message{userMsg("other", "hi")}, other)
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, "fallthrough", reply.Content)
}

func TestBudgetBlocksLLMCall(t *testing.T) {
	cfg := cost.DefaultBudgetConfig()
	cfg.MaxTokensPerRequest = 1
	budget := cost.NewBudgetManager(cfg, nil)

	provider := mocks.NewMockProvider()
	a := agent.NewConversableAgent("capped",
		agent.WithProvider(provider),
		agent.WithModel("mock-model"),
		agent.WithBudget(budget),
	)
	sender := agent.NewConversableAgent("peer")

	_, err := a.GenerateReply(context.Background(), []types.Message{userMsg("peer", "a rather long question that costs tokens")}, sender)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget")
	assert.Zero(t, provider.CallCount())
}

func TestDescriptionFallsBackToSystemMessage(t *testing.T) {
	a := agent.NewConversableAgent("d", agent.WithSystemMessage("sys"))
	assert.Equal(t, "sys", a.Description())

	b := agent.NewConversableAgent("d2",
		agent.WithSystemMessage("sys"),
		agent.WithDescription("a helpful reviewer"),
	)
	assert.Equal(t, "a helpful reviewer", b.Description())
}
