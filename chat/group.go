// =============================================================================
// AgentChat 群聊
// =============================================================================
// 多 agent 共享一份群聊记录,管理者按选择策略逐轮挑选发言人,
// 把发言广播给其他成员。
// =============================================================================

package chat

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/types"
	"go.uber.org/zap"
)

// SelectionMethod 是群聊发言人的选择策略。
type SelectionMethod string

const (
	// SelectRoundRobin 按成员列表顺序轮流发言。
	SelectRoundRobin SelectionMethod = "round_robin"
	// SelectRandom 随机挑选发言人。
	SelectRandom SelectionMethod = "random"
	// SelectManual 列出成员并由人工输入编号挑选。
	SelectManual SelectionMethod = "manual"
	// SelectAuto 让管理者的 LLM 根据成员描述和会话内容挑选。
	SelectAuto SelectionMethod = "auto"
)

// DefaultMaxRound 是群聊默认的最大发言轮数。
const DefaultMaxRound = 10

// GroupChat 维护一场群聊的成员与共享消息记录。
// 一个实例对应一场群聊,重新开局请新建实例。
type GroupChat struct {
	mu            sync.Mutex
	agents        []*agent.ConversableAgent
	messages      []types.Message
	maxRound      int
	method        SelectionMethod
	allowRepeat   bool
	isTermination agent.TerminationFunc
	selectorInput agent.HumanInputProvider
	rng           *rand.Rand
	err           error
}

// GroupOption 配置群聊。
type GroupOption func(*GroupChat)

// WithMaxRound 设置最大发言轮数。
func WithMaxRound(n int) GroupOption {
	return func(g *GroupChat) {
		if n > 0 {
			g.maxRound = n
		}
	}
}

// WithSpeakerSelection 设置发言人选择策略,未知策略记为配置错误。
func WithSpeakerSelection(method SelectionMethod) GroupOption {
	return func(g *GroupChat) {
		switch method {
		case SelectRoundRobin, SelectRandom, SelectManual, SelectAuto:
			g.method = method
		default:
			g.err = fmt.Errorf("unknown speaker selection method %q", method)
		}
	}
}

// WithAllowRepeatSpeaker 控制同一成员能否连续发言,默认允许。
// round_robin 策略不受影响。
func WithAllowRepeatSpeaker(allow bool) GroupOption {
	return func(g *GroupChat) { g.allowRepeat = allow }
}

// WithGroupTermination 设置群聊级终止判定,默认识别 TERMINATE 结尾。
func WithGroupTermination(fn agent.TerminationFunc) GroupOption {
	return func(g *GroupChat) {
		if fn != nil {
			g.isTermination = fn
		}
	}
}

// WithSelectorInput 设置 manual 策略读取人工选择的来源,默认标准输入。
func WithSelectorInput(p agent.HumanInputProvider) GroupOption {
	return func(g *GroupChat) {
		if p != nil {
			g.selectorInput = p
		}
	}
}

// NewGroupChat 创建群聊。成员顺序即 round_robin 的发言顺序。
func NewGroupChat(agents []*agent.ConversableAgent, opts ...GroupOption) *GroupChat {
	g := &GroupChat{
		agents:        append([]*agent.ConversableAgent(nil), agents...),
		maxRound:      DefaultMaxRound,
		method:        SelectRoundRobin,
		allowRepeat:   true,
		isTermination: agent.ContainsTerminate,
		selectorInput: agent.NewConsoleInput(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Agents 返回成员快照。
func (g *GroupChat) Agents() []*agent.ConversableAgent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*agent.ConversableAgent(nil), g.agents...)
}

// Messages 返回群聊记录快照。
func (g *GroupChat) Messages() []types.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return types.CloneMessages(g.messages)
}

// AgentByName 按名称查找成员。
func (g *GroupChat) AgentByName(name string) (*agent.ConversableAgent, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range g.agents {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

func (g *GroupChat) append(msg types.Message) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.messages = append(g.messages, msg)
}

func (g *GroupChat) contains(a *agent.ConversableAgent) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, member := range g.agents {
		if member == a {
			return true
		}
	}
	return false
}

// candidates 返回本轮可被选中的成员。
func (g *GroupChat) candidates(last *agent.ConversableAgent) []*agent.ConversableAgent {
	agents := g.Agents()
	if g.allowRepeat || last == nil || len(agents) <= 1 {
		return agents
	}
	out := make([]*agent.ConversableAgent, 0, len(agents)-1)
	for _, a := range agents {
		if a != last {
			out = append(out, a)
		}
	}
	return out
}

func (g *GroupChat) selectSpeaker(ctx context.Context, last, mgr *agent.ConversableAgent) (*agent.ConversableAgent, error) {
	if g.err != nil {
		return nil, g.err
	}
	if len(g.Agents()) == 0 {
		return nil, fmt.Errorf("group chat has no agents")
	}

	candidates := g.candidates(last)
	switch g.method {
	case SelectRandom:
		return g.randomPick(candidates), nil
	case SelectManual:
		return g.manualSelect(ctx, candidates)
	case SelectAuto:
		return g.autoSelect(ctx, candidates, last, mgr)
	default:
		return g.nextInOrder(last), nil
	}
}

// nextInOrder 返回成员列表里排在上一位发言人之后的成员。
func (g *GroupChat) nextInOrder(last *agent.ConversableAgent) *agent.ConversableAgent {
	agents := g.Agents()
	if last == nil {
		return agents[0]
	}
	for i, a := range agents {
		if a == last {
			return agents[(i+1)%len(agents)]
		}
	}
	return agents[0]
}

func (g *GroupChat) randomPick(candidates []*agent.ConversableAgent) *agent.ConversableAgent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return candidates[g.rng.Intn(len(candidates))]
}

// manualSelect 让人工输入编号挑选发言人,连续三次无效后随机兜底。
func (g *GroupChat) manualSelect(ctx context.Context, candidates []*agent.ConversableAgent) (*agent.ConversableAgent, error) {
	var b strings.Builder
	b.WriteString("Please select the next speaker:\n")
	for i, a := range candidates {
		if desc := a.Description(); desc != "" {
			fmt.Fprintf(&b, "  %d. %s (%s)\n", i+1, a.Name(), desc)
		} else {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, a.Name())
		}
	}
	b.WriteString("Enter the number of the next speaker: ")

	for attempt := 0; attempt < 3; attempt++ {
		input, err := g.selectorInput.ReadInput(ctx, b.String())
		if err != nil {
			return nil, fmt.Errorf("manual speaker selection: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], nil
		}
	}
	return g.randomPick(candidates), nil
}

// autoSelect 让管理者的 LLM 根据成员描述挑选发言人,
// 回答无法对应成员时退回顺序轮流。
func (g *GroupChat) autoSelect(ctx context.Context, candidates []*agent.ConversableAgent, last, mgr *agent.ConversableAgent) (*agent.ConversableAgent, error) {
	if mgr == nil || !mgr.HasProvider() {
		return nil, fmt.Errorf("auto speaker selection requires the manager to have an LLM provider")
	}

	names := make([]string, 0, len(candidates))
	var roles strings.Builder
	for _, a := range candidates {
		names = append(names, a.Name())
		fmt.Fprintf(&roles, "%s: %s\n", a.Name(), a.Description())
	}
	prompt := fmt.Sprintf(
		"You are in a role play game. The following roles are available:\n%s\nRead the above conversation. Then select the next role from [%s] to play. Only return the role.",
		roles.String(), strings.Join(names, ", "))

	answer, err := mgr.ReflectWithLLM(ctx, prompt, g.Messages())
	if err != nil {
		return nil, fmt.Errorf("auto speaker selection: %w", err)
	}
	if speaker, ok := matchSpeaker(answer, candidates); ok {
		return speaker, nil
	}
	mgr.Logger().Warn("speaker selection answer matched no member, falling back to round robin",
		zap.String("answer", preview(answer)))
	return g.nextInOrder(last), nil
}

// matchSpeaker 先精确匹配名称,再尝试唯一的子串匹配。
func matchSpeaker(answer string, candidates []*agent.ConversableAgent) (*agent.ConversableAgent, bool) {
	trimmed := strings.TrimSpace(answer)
	for _, a := range candidates {
		if strings.EqualFold(trimmed, a.Name()) {
			return a, true
		}
	}

	lower := strings.ToLower(answer)
	var matched *agent.ConversableAgent
	for _, a := range candidates {
		if strings.Contains(lower, strings.ToLower(a.Name())) {
			if matched != nil {
				return nil, false
			}
			matched = a
		}
	}
	return matched, matched != nil
}

// GroupChatManager 是主持群聊的可会话 agent。
// 向它发起会话即开始群聊:它把开场消息广播给全体成员,
// 逐轮选人发言再广播,直到终止消息、发言人终止或轮数用尽。
type GroupChatManager struct {
	*agent.ConversableAgent
	group *GroupChat
}

// NewGroupChatManager 创建群聊管理者。name 为空时使用 "chat_manager"。
func NewGroupChatManager(name string, group *GroupChat, opts ...agent.Option) *GroupChatManager {
	if name == "" {
		name = "chat_manager"
	}
	base := append([]agent.Option{
		agent.WithHumanInputMode(agent.InputModeNever),
		agent.WithMaxConsecutiveAutoReply(-1),
	}, opts...)

	m := &GroupChatManager{
		ConversableAgent: agent.NewConversableAgent(name, base...),
		group:            group,
	}
	m.RegisterReply(nil, m.runChat)
	return m
}

// Group 返回托管的群聊。
func (m *GroupChatManager) Group() *GroupChat { return m.group }

// Cost 汇总全体成员与管理者的累计用量。
func (m *GroupChatManager) Cost() cost.Breakdown {
	agents := m.group.Agents()
	trackers := make([]*cost.Tracker, 0, len(agents)+1)
	for _, a := range agents {
		trackers = append(trackers, a.Tracker())
	}
	trackers = append(trackers, m.Tracker())
	return cost.Gather(trackers...)
}

// runChat 以自定义回复函数的身份驱动整场群聊,
// 结束后返回 nil 回复使外层会话终止。
func (m *GroupChatManager) runChat(ctx context.Context, a *agent.ConversableAgent, messages []types.Message, sender *agent.ConversableAgent) (bool, *types.Message, error) {
	last, ok := types.LastMessage(messages)
	if !ok {
		return false, nil, nil
	}
	g := m.group

	// 新群聊开局时清掉成员与管理者之间的旧账本
	if len(g.Messages()) == 0 {
		for _, member := range g.Agents() {
			if member != sender {
				member.ResetPeer(a.Name())
				a.ResetPeer(member.Name())
			}
		}
	}

	g.append(last)
	m.broadcast(last, sender)

	var lastSpeaker *agent.ConversableAgent
	if sender != nil && g.contains(sender) {
		lastSpeaker = sender
	}

	for round := 0; round < g.maxRound; round++ {
		if err := ctx.Err(); err != nil {
			return true, nil, err
		}

		speaker, err := g.selectSpeaker(ctx, lastSpeaker, a)
		if err != nil {
			return true, nil, fmt.Errorf("group chat round %d: %w", round, err)
		}

		reply, err := speaker.GenerateReply(ctx, speaker.History(a.Name()), a)
		if err != nil {
			return true, nil, fmt.Errorf("group chat round %d: speaker %s: %w", round, speaker.Name(), err)
		}
		if reply == nil {
			break
		}

		msg := *reply
		if msg.Name == "" {
			msg.Name = speaker.Name()
		}
		speaker.Send(msg, a)
		g.append(msg)
		m.broadcast(msg, speaker)

		a.Logger().Debug("group chat message",
			zap.Int("round", round),
			zap.String("speaker", speaker.Name()),
			zap.String("content", preview(msg.Content)))

		if g.isTermination != nil && g.isTermination(msg) {
			break
		}
		lastSpeaker = speaker
	}
	return true, nil, nil
}

// broadcast 把消息转发给除原发言人外的全体成员,保留原署名。
func (m *GroupChatManager) broadcast(msg types.Message, except *agent.ConversableAgent) {
	for _, member := range m.group.Agents() {
		if member == except {
			continue
		}
		m.Send(msg, member)
	}
}
