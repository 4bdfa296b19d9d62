// Package agentchat 提供顶层便捷入口：重导出 quick 包的全部构造
// 选项和核心类型，单个 import 即可创建并使用 agent。
//
// 用法：
//
//	import "github.com/BaSui01/agentchat"
//
//	a, err := agentchat.New(agentchat.WithOpenAI("gpt-4o-mini"))
//	a, err := agentchat.New(agentchat.WithDeepSeek("deepseek-chat"))
//	a, err := agentchat.New(agentchat.WithProvider(myProvider), agentchat.WithModel("custom"))
//
// 本包是 [quick.New] 的薄封装，两者产出完全一致；会话编排请配合
// chat 包使用。
package agentchat

import (
	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/quick"
	"github.com/BaSui01/agentchat/types"
)

// Option 配置 [New] 创建的 agent。
type Option = quick.Option

// Agent 是核心会话代理类型的别名。
type Agent = agent.ConversableAgent

// Message 是跨包传递的统一消息类型的别名。
type Message = types.Message

// Result 是一场会话的产出(历史、摘要、成本、人工输入)的别名。
type Result = chat.Result

// InputMode 控制 agent 何时征询人工输入。
type InputMode = agent.InputMode

// 人工介入模式常量,与 agent 包一一对应。
const (
	InputModeAlways    = agent.InputModeAlways
	InputModeNever     = agent.InputModeNever
	InputModeTerminate = agent.InputModeTerminate
)

// New 用最少的配置创建 [Agent]。至少要通过 [WithOpenAI]、
// [WithDeepSeek] 或 [WithProvider] 指定一个 Provider,
// 纯人工代理则用 [WithHumanInput]。
func New(opts ...Option) (*Agent, error) {
	return quick.New(opts...)
}

// 以下重导出让调用方不必 import quick/。

// WithProvider 使用预先构建好的 LLM Provider。
var WithProvider = quick.WithProvider

// WithOpenAI 创建 OpenAI Provider,API Key 取自 OPENAI_API_KEY。
var WithOpenAI = quick.WithOpenAI

// WithDeepSeek 创建 DeepSeek Provider,API Key 取自 DEEPSEEK_API_KEY。
var WithDeepSeek = quick.WithDeepSeek

// WithModel 覆盖模型名。
var WithModel = quick.WithModel

// WithName 设置 agent 名称。
var WithName = quick.WithName

// WithSystemMessage 设置系统提示词。
var WithSystemMessage = quick.WithSystemMessage

// WithHumanInput 设置人工介入模式。
var WithHumanInput = quick.WithHumanInput

// WithMaxConsecutiveAutoReply 设置连续自动回复上限。
var WithMaxConsecutiveAutoReply = quick.WithMaxConsecutiveAutoReply

// WithTerminationWord 设置会话终止词。
var WithTerminationWord = quick.WithTerminationWord

// WithDefaultAutoReply 设置兜底回复。
var WithDefaultAutoReply = quick.WithDefaultAutoReply

// WithLogger 设置 zap logger。
var WithLogger = quick.WithLogger

// WithAPIKey 覆盖快捷方式使用的 API Key。
var WithAPIKey = quick.WithAPIKey

// WithBaseURL 覆盖快捷方式使用的服务端点。
var WithBaseURL = quick.WithBaseURL
