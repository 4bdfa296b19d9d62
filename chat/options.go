package chat

import (
	"fmt"
	"time"
)

// 会话总结方式。
const (
	// SummaryLastMsg 取会话最后一条消息的内容作为总结。
	SummaryLastMsg = "last_msg"
	// SummaryReflectionWithLLM 让 LLM 复盘整段会话生成总结。
	SummaryReflectionWithLLM = "reflection_with_llm"
)

// DefaultSummaryPrompt 是 reflection_with_llm 的默认指令。
const DefaultSummaryPrompt = "Summarize the takeaway from the conversation. Do not add any introductory phrases."

type chatConfig struct {
	message       string
	maxTurns      int
	summaryMethod string
	summaryPrompt string
	carryover     []string
	silent        bool
	chatID        string
	keepHistory   bool
	timeout       time.Duration

	err error // 非法选项在应用时记录,InitiateChat 开始前返回
}

func defaultChatConfig() *chatConfig {
	return &chatConfig{
		summaryMethod: SummaryLastMsg,
		summaryPrompt: DefaultSummaryPrompt,
	}
}

func (c *chatConfig) apply(opts []Option) error {
	for _, opt := range opts {
		opt(c)
	}
	return c.err
}

// Option 配置一次会话。
type Option func(*chatConfig)

// WithMessage 设置开场消息。
func WithMessage(message string) Option {
	return func(c *chatConfig) { c.message = message }
}

// WithMaxTurns 限制会话轮数,一轮包含发起方一条消息和接收方一条回复。
// 0 或负数表示不限轮数,由终止条件决定何时结束。
func WithMaxTurns(n int) Option {
	return func(c *chatConfig) { c.maxTurns = n }
}

// WithSummaryMethod 选择总结方式,未知方式立即记为配置错误。
func WithSummaryMethod(method string) Option {
	return func(c *chatConfig) {
		switch method {
		case SummaryLastMsg, SummaryReflectionWithLLM:
			c.summaryMethod = method
		default:
			c.err = fmt.Errorf("unknown summary method %q", method)
		}
	}
}

// WithSummaryPrompt 替换 reflection_with_llm 的总结指令。
func WithSummaryPrompt(prompt string) Option {
	return func(c *chatConfig) {
		if prompt != "" {
			c.summaryPrompt = prompt
		}
	}
}

// WithCarryover 追加开场上下文。多次调用与多个条目依次累加,
// 最终以 "Context: " 段落拼接进开场消息。
func WithCarryover(items ...string) Option {
	return func(c *chatConfig) { c.carryover = append(c.carryover, items...) }
}

// WithSilent 关闭会话过程的消息日志。
func WithSilent() Option {
	return func(c *chatConfig) { c.silent = true }
}

// WithChatID 指定会话 ID,默认自动生成 UUID。
func WithChatID(id string) Option {
	return func(c *chatConfig) { c.chatID = id }
}

// WithKeepHistory 保留双方既有的会话历史与计数,默认开场前清空。
func WithKeepHistory() Option {
	return func(c *chatConfig) { c.keepHistory = true }
}

// WithTimeout 给整段会话加超时。
func WithTimeout(d time.Duration) Option {
	return func(c *chatConfig) { c.timeout = d }
}
