// =============================================================================
// AgentChat ConversableAgent
// =============================================================================
// 可会话 agent:维护与每个 peer 的独立历史和连续自动回复计数,
// 按「人工输入门控 → 自定义回复 → 工具执行 → LLM 回复 → 兜底回复」
// 的管线生成回复。
// =============================================================================

package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/internal/ctxkeys"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/llm/retry"
	"github.com/BaSui01/agentchat/types"
	"go.uber.org/zap"
)

// TriggerFunc 决定某个自定义回复函数是否对该发送者生效。
// sender 可能为 nil(例如直接调用 GenerateReply 时)。
type TriggerFunc func(sender *ConversableAgent) bool

// ReplyFunc 自定义回复函数。handled 为 true 表示该函数接管了本轮回复;
// 此时 reply 为 nil 意味着会话终止。
type ReplyFunc func(ctx context.Context, a *ConversableAgent, messages []types.Message, sender *ConversableAgent) (handled bool, reply *types.Message, err error)

type registeredReply struct {
	trigger TriggerFunc
	fn      ReplyFunc
}

// ConversableAgent 是可以参与会话的 agent。
// 它与每个 peer 维护独立的消息历史与连续自动回复计数,
// 并通过可插拔的回复管线生成回复。
type ConversableAgent struct {
	name             string
	systemMessage    string
	description      string
	defaultAutoReply string

	provider    llm.Provider
	llmConfig   LLMConfig
	retryPolicy *retry.RetryPolicy
	retryer     retry.Retryer

	humanInputMode          InputMode
	humanInput              HumanInputProvider
	maxConsecutiveAutoReply int
	isTerminationMsg        TerminationFunc

	tokenizer types.Tokenizer
	tracker   *cost.Tracker
	budget    *cost.BudgetManager
	logger    *zap.Logger

	mu          sync.Mutex
	histories   map[string][]types.Message
	counters    map[string]int
	humanInputs []string
	replies     []registeredReply
	llmTools    []types.ToolSchema
	execTools   map[string]ToolFunc
}

// NewConversableAgent 创建 agent。name 是 peer 历史与消息署名的键,
// 同一场会话中的 agent 名称不应重复。
func NewConversableAgent(name string, opts ...Option) *ConversableAgent {
	a := &ConversableAgent{
		name:                    name,
		humanInputMode:          InputModeNever,
		maxConsecutiveAutoReply: DefaultMaxConsecutiveAutoReply,
		isTerminationMsg:        ContainsTerminate,
		tokenizer:               types.NewEstimateTokenizer(),
		logger:                  zap.NewNop(),
		histories:               make(map[string][]types.Message),
		counters:                make(map[string]int),
		execTools:               make(map[string]ToolFunc),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tracker == nil {
		a.tracker = cost.NewTracker(nil)
	}
	if a.humanInput == nil {
		a.humanInput = NewConsoleInput()
	}

	policy := a.retryPolicy
	if policy == nil {
		policy = retry.DefaultRetryPolicy()
	}
	if policy.RetryIf == nil {
		policy.RetryIf = llm.IsRetryable
	}
	a.retryer = retry.NewBackoffRetryer(policy, a.logger.With(zap.String("agent", name)))
	return a
}

// Name 返回 agent 名称。
func (a *ConversableAgent) Name() string { return a.name }

// Description 返回 agent 描述,为空时退回系统提示词。
func (a *ConversableAgent) Description() string {
	if a.description != "" {
		return a.description
	}
	return a.systemMessage
}

// SystemMessage 返回系统提示词。
func (a *ConversableAgent) SystemMessage() string { return a.systemMessage }

// UpdateSystemMessage 替换系统提示词。
func (a *ConversableAgent) UpdateSystemMessage(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.systemMessage = msg
}

// Tracker 返回 agent 的成本追踪器。
func (a *ConversableAgent) Tracker() *cost.Tracker { return a.tracker }

// HasProvider 报告 agent 是否配置了 LLM Provider。
func (a *ConversableAgent) HasProvider() bool { return a.provider != nil }

// Logger 返回 agent 的日志器。
func (a *ConversableAgent) Logger() *zap.Logger { return a.logger }

// RegisterReply 注册自定义回复函数,按注册顺序在内置回复之前逐一咨询。
// trigger 为 nil 时对所有发送者生效。
func (a *ConversableAgent) RegisterReply(trigger TriggerFunc, fn ReplyFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, registeredReply{trigger: trigger, fn: fn})
}

// =============================================================================
// 会话历史
// =============================================================================

// Send 把一条消息写入双方的会话账本,不触发回复生成。
// 发送方账本记为 assistant,接收方账本记为 user;
// 工具消息与携带 tool_calls 的消息保留原角色,保证后续 LLM 调用序列合法。
func (a *ConversableAgent) Send(msg types.Message, recipient *ConversableAgent) {
	if msg.Name == "" {
		msg.Name = a.name
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	a.appendHistory(recipient.Name(), asOutbound(msg))
	recipient.appendHistory(a.name, asInbound(msg))
}

func asOutbound(msg types.Message) types.Message {
	if msg.Role == types.RoleTool {
		return msg
	}
	msg.Role = types.RoleAssistant
	return msg
}

func asInbound(msg types.Message) types.Message {
	if msg.Role == types.RoleTool || msg.HasToolCalls() {
		return msg
	}
	msg.Role = types.RoleUser
	return msg
}

func (a *ConversableAgent) appendHistory(peer string, msg types.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.histories[peer] = append(a.histories[peer], msg)
}

// History 返回与指定 peer 的历史快照。
func (a *ConversableAgent) History(peer string) []types.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.CloneMessages(a.histories[peer])
}

// LastMessage 返回与指定 peer 的最后一条消息。
func (a *ConversableAgent) LastMessage(peer string) (types.Message, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return types.LastMessage(a.histories[peer])
}

// ClearHistory 清空历史。peer 为空串时清空全部。
func (a *ConversableAgent) ClearHistory(peer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if peer == "" {
		a.histories = make(map[string][]types.Message)
		return
	}
	delete(a.histories, peer)
}

// ResetPeer 清空与指定 peer 的历史和自动回复计数,开启新会话前调用。
func (a *ConversableAgent) ResetPeer(peer string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.histories, peer)
	delete(a.counters, peer)
}

// ConsecutiveAutoReplies 返回对指定 peer 的当前连续自动回复计数。
func (a *ConversableAgent) ConsecutiveAutoReplies(peer string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters[peer]
}

// TakeHumanInputs 取走并清空本 agent 累计的人工输入记录。
func (a *ConversableAgent) TakeHumanInputs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.humanInputs
	a.humanInputs = nil
	return out
}

// =============================================================================
// 回复生成
// =============================================================================

// GenerateReply 基于给定消息序列生成一条回复。
// 返回 (nil, nil) 表示会话终止。传入的 messages 不会被修改。
func (a *ConversableAgent) GenerateReply(ctx context.Context, messages []types.Message, sender *ConversableAgent) (*types.Message, error) {
	msgs := types.CloneMessages(messages)

	// 人工输入与终止门控
	reply, terminate, err := a.checkHumanGate(ctx, msgs, sender)
	if err != nil {
		return nil, err
	}
	if terminate {
		a.logger.Info("conversation terminated",
			zap.String("agent", a.name),
			zap.String("sender", senderName(sender)))
		return nil, nil
	}
	if reply != nil {
		return reply, nil
	}

	// 自定义回复函数
	a.mu.Lock()
	customs := append([]registeredReply(nil), a.replies...)
	a.mu.Unlock()
	for _, rr := range customs {
		if rr.trigger != nil && !rr.trigger(sender) {
			continue
		}
		handled, custom, err := rr.fn(ctx, a, msgs, sender)
		if err != nil {
			return nil, err
		}
		if handled {
			return custom, nil
		}
	}

	// 工具执行回复
	if reply := a.generateToolCallsReply(ctx, msgs); reply != nil {
		return reply, nil
	}

	// LLM 回复
	if a.provider != nil {
		reply, err := a.generateLLMReply(ctx, msgs)
		if err != nil {
			return nil, err
		}
		if reply != nil {
			return reply, nil
		}
	}

	// 兜底自动回复
	fallback := types.NewChatMessage(types.RoleAssistant, a.name, a.defaultAutoReply)
	return &fallback, nil
}

func senderName(sender *ConversableAgent) string {
	if sender == nil {
		return ""
	}
	return sender.Name()
}

// checkHumanGate 实现人工输入模式的门控逻辑。
// 返回非 nil reply 表示人工直接给出了回复;terminate 表示会话结束;
// 两者都为零值时继续自动回复管线,此时计数器已自增。
func (a *ConversableAgent) checkHumanGate(ctx context.Context, msgs []types.Message, sender *ConversableAgent) (*types.Message, bool, error) {
	last, hasLast := types.LastMessage(msgs)
	isTermination := hasLast && a.isTerminationMsg != nil && a.isTerminationMsg(last)
	peer := senderName(sender)

	a.mu.Lock()
	count := a.counters[peer]
	limit := a.maxConsecutiveAutoReply
	a.mu.Unlock()
	atLimit := limit >= 0 && count >= limit

	var input string
	var consulted bool

	switch a.humanInputMode {
	case InputModeAlways:
		prompt := fmt.Sprintf("Reply to %s as %s. Press Enter for auto reply, type 'exit' to end: ", peer, a.name)
		text, err := a.readHumanInput(ctx, prompt)
		if err != nil {
			return nil, false, err
		}
		input, consulted = text, true
		if input == "" && isTermination {
			return nil, true, nil
		}

	case InputModeTerminate:
		if atLimit || isTermination {
			prompt := fmt.Sprintf("Give feedback to %s. Press Enter or type 'exit' to end: ", peer)
			text, err := a.readHumanInput(ctx, prompt)
			if err != nil {
				return nil, false, err
			}
			input, consulted = text, true
			// 终止消息 + 空输入 ⇒ 结束;仅计数触顶 + 空输入 ⇒ 继续自动回复
			if input == "" && isTermination {
				return nil, true, nil
			}
		}

	case InputModeNever:
		if atLimit || isTermination {
			return nil, true, nil
		}
	}

	if consulted && strings.EqualFold(input, "exit") {
		return nil, true, nil
	}
	if consulted && input != "" {
		a.mu.Lock()
		a.counters[peer] = 0
		a.mu.Unlock()
		reply := types.NewChatMessage(types.RoleUser, a.name, input)
		return &reply, false, nil
	}

	// NEVER 模式下计数触顶已经终止;其余情况进入自动回复并计数
	a.mu.Lock()
	a.counters[peer]++
	a.mu.Unlock()
	return nil, false, nil
}

func (a *ConversableAgent) readHumanInput(ctx context.Context, prompt string) (string, error) {
	if a.humanInput == nil {
		return "", ErrHumanInputUnavailable
	}
	text, err := a.humanInput.ReadInput(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("read human input: %w", err)
	}
	a.mu.Lock()
	a.humanInputs = append(a.humanInputs, text)
	a.mu.Unlock()
	return text, nil
}

// generateLLMReply 组装请求并调用 Provider。
func (a *ConversableAgent) generateLLMReply(ctx context.Context, msgs []types.Message) (*types.Message, error) {
	llmMsgs := a.buildLLMMessages(msgs)
	req := a.buildRequest(ctx, llmMsgs)

	if err := a.checkBudget(llmMsgs, req); err != nil {
		return nil, fmt.Errorf("budget check: %w", err)
	}

	resp, err := a.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	a.recordUsage(req, resp)

	choice, ok := resp.FirstChoice()
	if !ok {
		return nil, ErrNoReply
	}

	// 模型要求调用工具且本 agent 能执行时,就地执行并再调用一次
	if len(choice.ToolCalls) > 0 && a.canExecuteAll(choice.ToolCalls) {
		toolMsgs, err := a.executeToolCalls(ctx, choice.ToolCalls)
		if err != nil {
			return nil, err
		}
		followup := append(llmMsgs, choice)
		for _, tm := range toolMsgs {
			followup = append(followup, toLLMMessage(tm))
		}
		req2 := a.buildRequest(ctx, followup)
		resp2, err := a.complete(ctx, req2)
		if err != nil {
			return nil, err
		}
		a.recordUsage(req2, resp2)
		if final, ok := resp2.FirstChoice(); ok {
			reply := fromLLMMessage(final, a.name)
			return &reply, nil
		}
		return nil, ErrNoReply
	}

	reply := fromLLMMessage(choice, a.name)
	return &reply, nil
}

func (a *ConversableAgent) buildLLMMessages(msgs []types.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs)+1)
	if a.systemMessage != "" {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: a.systemMessage})
	}
	for _, m := range msgs {
		out = append(out, toLLMMessage(m))
	}
	return out
}

func (a *ConversableAgent) buildRequest(ctx context.Context, msgs []llm.Message) *llm.ChatRequest {
	req := &llm.ChatRequest{
		Model:       a.llmConfig.Model,
		Messages:    msgs,
		MaxTokens:   a.llmConfig.MaxTokens,
		Temperature: a.llmConfig.Temperature,
		Timeout:     a.llmConfig.Timeout,
		Tools:       a.llmToolSchemas(),
	}
	if model, ok := ctxkeys.LLMModel(ctx); ok {
		req.Model = model
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		req.TraceID = traceID
	}
	return req
}

func (a *ConversableAgent) checkBudget(msgs []llm.Message, req *llm.ChatRequest) error {
	if a.budget == nil {
		return nil
	}
	estTokens := a.estimateTokens(msgs)
	estCost := a.tracker.Pricing().Calculate(req.Model, estTokens, a.llmConfig.MaxTokens)
	return a.budget.CheckBudget(estTokens, estCost)
}

func (a *ConversableAgent) estimateTokens(msgs []llm.Message) int {
	if a.tokenizer == nil {
		return 0
	}
	converted := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		converted = append(converted, types.Message{Role: types.Role(m.Role), Content: m.Content})
	}
	total := a.tokenizer.CountMessagesTokens(converted)
	a.mu.Lock()
	tools := append([]types.ToolSchema(nil), a.llmTools...)
	a.mu.Unlock()
	total += a.tokenizer.EstimateToolTokens(tools)
	return total
}

func (a *ConversableAgent) complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := retry.DoWithResultTyped(a.retryer, ctx, func() (*llm.ChatResponse, error) {
		return a.provider.Completion(ctx, req)
	})
	if err != nil {
		a.logger.Warn("llm call failed",
			zap.String("agent", a.name),
			zap.String("model", req.Model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("agent %s llm call: %w", a.name, err)
	}
	a.logger.Debug("llm call completed",
		zap.String("agent", a.name),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))
	return resp, nil
}

// ReflectWithLLM 让 agent 的模型基于一段历史回答给定指令,
// 用于会话总结与群聊发言人选择。prompt 以 system 消息追加在历史之后。
func (a *ConversableAgent) ReflectWithLLM(ctx context.Context, prompt string, history []types.Message) (string, error) {
	if a.provider == nil {
		return "", ErrProviderNotSet
	}
	msgs := a.buildLLMMessages(history)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: prompt})
	req := a.buildRequest(ctx, msgs)
	req.Tools = nil

	if err := a.checkBudget(msgs, req); err != nil {
		return "", fmt.Errorf("budget check: %w", err)
	}
	resp, err := a.complete(ctx, req)
	if err != nil {
		return "", err
	}
	a.recordUsage(req, resp)

	choice, ok := resp.FirstChoice()
	if !ok {
		return "", ErrNoReply
	}
	return strings.TrimSpace(choice.Content), nil
}

// recordUsage 把调用用量写入成本追踪与预算。
// 端点未返回用量时用 tokenizer 估算兜底。
func (a *ConversableAgent) recordUsage(req *llm.ChatRequest, resp *llm.ChatResponse) {
	prompt := resp.Usage.PromptTokens
	completion := resp.Usage.CompletionTokens
	if resp.Usage.TotalTokens == 0 && a.tokenizer != nil {
		prompt = a.estimateTokens(req.Messages)
		if msg, ok := resp.FirstChoice(); ok {
			completion = a.tokenizer.CountTokens(msg.Content)
		}
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	spend := a.tracker.Record(model, prompt, completion, false)
	if a.budget != nil {
		a.budget.RecordUsage(cost.UsageRecord{
			Timestamp: time.Now(),
			Tokens:    prompt + completion,
			Cost:      spend,
			Model:     model,
			AgentName: a.name,
		})
	}
}

// =============================================================================
// 消息转换
// =============================================================================

func toLLMMessage(m types.Message) llm.Message {
	out := llm.Message{
		Role:       llm.Role(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return out
}

func fromLLMMessage(m llm.Message, name string) types.Message {
	out := types.Message{
		Role:      types.Role(m.Role),
		Content:   m.Content,
		Name:      name,
		Timestamp: time.Now(),
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return out
}
