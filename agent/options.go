package agent

import (
	"time"

	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/llm/retry"
	"github.com/BaSui01/agentchat/types"
	"go.uber.org/zap"
)

// DefaultMaxConsecutiveAutoReply 连续自动回复的默认上限。
const DefaultMaxConsecutiveAutoReply = 100

// LLMConfig 控制 agent 发起 LLM 调用时的请求参数。
type LLMConfig struct {
	Model       string        `json:"model" yaml:"model"`
	Temperature float32       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Option 配置 ConversableAgent。
type Option func(*ConversableAgent)

// WithSystemMessage 设置系统提示词。
func WithSystemMessage(msg string) Option {
	return func(a *ConversableAgent) { a.systemMessage = msg }
}

// WithDescription 设置 agent 的一句话描述,群聊发言人选择会用到。
func WithDescription(desc string) Option {
	return func(a *ConversableAgent) { a.description = desc }
}

// WithProvider 设置 LLM Provider。不设置时 agent 不发起 LLM 调用。
func WithProvider(p llm.Provider) Option {
	return func(a *ConversableAgent) { a.provider = p }
}

// WithLLMConfig 设置 LLM 请求参数。
func WithLLMConfig(cfg LLMConfig) Option {
	return func(a *ConversableAgent) { a.llmConfig = cfg }
}

// WithModel 仅设置模型名,其余 LLM 参数保持不变。
func WithModel(model string) Option {
	return func(a *ConversableAgent) { a.llmConfig.Model = model }
}

// WithHumanInputMode 设置人工输入模式,默认 NEVER。
func WithHumanInputMode(mode InputMode) Option {
	return func(a *ConversableAgent) { a.humanInputMode = mode }
}

// WithHumanInputProvider 设置人工输入源,默认终端。
func WithHumanInputProvider(p HumanInputProvider) Option {
	return func(a *ConversableAgent) { a.humanInput = p }
}

// WithMaxConsecutiveAutoReply 设置对同一 peer 的连续自动回复上限。
// 负值表示不限制。
func WithMaxConsecutiveAutoReply(n int) Option {
	return func(a *ConversableAgent) { a.maxConsecutiveAutoReply = n }
}

// WithIsTerminationMsg 设置终止判定,默认 ContainsTerminate。
func WithIsTerminationMsg(fn TerminationFunc) Option {
	return func(a *ConversableAgent) { a.isTerminationMsg = fn }
}

// WithDefaultAutoReply 设置兜底自动回复,在没有 Provider
// 且没有其他回复来源时使用。
func WithDefaultAutoReply(reply string) Option {
	return func(a *ConversableAgent) { a.defaultAutoReply = reply }
}

// WithTokenizer 设置 token 估算器,预算检查与用量兜底估算使用。
func WithTokenizer(tk types.Tokenizer) Option {
	return func(a *ConversableAgent) { a.tokenizer = tk }
}

// WithCostTracker 设置成本追踪器,默认每个 agent 一个独立实例。
func WithCostTracker(t *cost.Tracker) Option {
	return func(a *ConversableAgent) { a.tracker = t }
}

// WithBudget 设置预算管理器,LLM 调用前检查限额。
func WithBudget(b *cost.BudgetManager) Option {
	return func(a *ConversableAgent) { a.budget = b }
}

// WithRetryPolicy 设置 LLM 调用的重试策略。
func WithRetryPolicy(policy *retry.RetryPolicy) Option {
	return func(a *ConversableAgent) { a.retryPolicy = policy }
}

// WithLogger 设置日志器,默认 zap.NewNop。
func WithLogger(logger *zap.Logger) Option {
	return func(a *ConversableAgent) {
		if logger != nil {
			a.logger = logger
		}
	}
}
