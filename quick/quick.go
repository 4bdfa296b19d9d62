// Package quick 提供一行式的 agent 构造入口，用最少的样板代码
// 创建可直接对话的 ConversableAgent。
//
// 包放在 quick/（而非根目录）是为了给根包留出转发空间：根包
// agentchat 重导出本包的全部选项，两条导入路径效果一致。
//
// 用法：
//
//	import "github.com/BaSui01/agentchat/quick"
//
//	a, err := quick.New(quick.WithOpenAI("gpt-4o-mini"))
//	a, err := quick.New(quick.WithDeepSeek("deepseek-chat"))
//	a, err := quick.New(quick.WithProvider(myProvider), quick.WithModel("custom"))
package quick

import (
	"fmt"
	"os"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/llm"
	llmproviders "github.com/BaSui01/agentchat/llm/providers"
	"github.com/BaSui01/agentchat/llm/providers/deepseek"
	"github.com/BaSui01/agentchat/llm/providers/openai"

	"go.uber.org/zap"
)

// Option 配置 New 创建的 agent。
type Option func(*options)

type options struct {
	name          string
	model         string
	systemMessage string
	provider      llm.Provider
	logger        *zap.Logger

	humanMode       agent.InputMode
	maxAutoReply    *int
	terminationWord string
	defaultReply    string

	// Provider 快捷方式字段,provider 为 nil 时生效。
	providerName string
	apiKey       string
	baseURL      string
}

// WithProvider 使用预先构建好的 LLM Provider。
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI 用指定模型创建 OpenAI Provider。
// API Key 默认从环境变量 OPENAI_API_KEY 读取。
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.providerName = "openai"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithDeepSeek 用指定模型创建 DeepSeek Provider。
// API Key 默认从环境变量 DEEPSEEK_API_KEY 读取。
func WithDeepSeek(model string) Option {
	return func(o *options) {
		o.providerName = "deepseek"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("DEEPSEEK_API_KEY")
		}
	}
}

// WithModel 设置模型名,覆盖快捷方式里写的模型。
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithName 设置 agent 名称。同一场会话中的名称不应重复。
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSystemMessage 设置系统提示词。
func WithSystemMessage(msg string) Option {
	return func(o *options) { o.systemMessage = msg }
}

// WithHumanInput 设置人工介入模式。设为 agent.InputModeAlways 时
// 可以不配 Provider,得到一个纯人工代理。
func WithHumanInput(mode agent.InputMode) Option {
	return func(o *options) { o.humanMode = mode }
}

// WithMaxConsecutiveAutoReply 设置对同一 peer 的连续自动回复上限。
func WithMaxConsecutiveAutoReply(n int) Option {
	return func(o *options) { o.maxAutoReply = &n }
}

// WithTerminationWord 让 agent 在收到含该词的消息时判定会话终止。
func WithTerminationWord(word string) Option {
	return func(o *options) { o.terminationWord = word }
}

// WithDefaultAutoReply 设置无 Provider 且无人工输入时的兜底回复。
func WithDefaultAutoReply(reply string) Option {
	return func(o *options) { o.defaultReply = reply }
}

// WithLogger 设置 zap logger,默认 zap.NewNop()。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey 覆盖快捷方式(WithOpenAI 等)使用的 API Key。
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL 覆盖快捷方式使用的服务端点,用于代理或自建网关。
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// New 用最少的配置创建 ConversableAgent。
//
// 除非通过 WithHumanInput(agent.InputModeAlways) 构造纯人工代理,
// 否则必须用 WithProvider、WithOpenAI 或 WithDeepSeek 指定 Provider。
func New(opts ...Option) (*agent.ConversableAgent, error) {
	o := &options{
		name: "assistant",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	// 解析 Provider。
	p := o.provider
	if p == nil && o.providerName != "" {
		if o.apiKey == "" {
			return nil, fmt.Errorf("quick: %s 需要 API Key: 设置环境变量或使用 WithAPIKey", o.providerName)
		}
		base := llmproviders.BaseProviderConfig{
			APIKey:  o.apiKey,
			BaseURL: o.baseURL,
			Model:   o.model,
		}
		switch o.providerName {
		case "openai":
			p = openai.New(llmproviders.OpenAIConfig{BaseProviderConfig: base}, o.logger)
		case "deepseek":
			p = deepseek.New(llmproviders.DeepSeekConfig{BaseProviderConfig: base}, o.logger)
		}
	}
	if p == nil && o.humanMode != agent.InputModeAlways {
		return nil, fmt.Errorf("quick: 缺少 Provider: 使用 WithProvider、WithOpenAI 或 WithDeepSeek(纯人工代理请用 WithHumanInput(agent.InputModeAlways))")
	}

	agentOpts := []agent.Option{agent.WithLogger(o.logger)}
	if o.systemMessage != "" {
		agentOpts = append(agentOpts, agent.WithSystemMessage(o.systemMessage))
	}
	if p != nil {
		agentOpts = append(agentOpts, agent.WithProvider(p))
		if o.model != "" {
			agentOpts = append(agentOpts, agent.WithModel(o.model))
		}
	}
	if o.humanMode != "" {
		agentOpts = append(agentOpts, agent.WithHumanInputMode(o.humanMode))
	}
	if o.maxAutoReply != nil {
		agentOpts = append(agentOpts, agent.WithMaxConsecutiveAutoReply(*o.maxAutoReply))
	}
	if o.terminationWord != "" {
		agentOpts = append(agentOpts, agent.WithIsTerminationMsg(agent.TerminationOnWord(o.terminationWord)))
	}
	if o.defaultReply != "" {
		agentOpts = append(agentOpts, agent.WithDefaultAutoReply(o.defaultReply))
	}
	return agent.NewConversableAgent(o.name, agentOpts...), nil
}
