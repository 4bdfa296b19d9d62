package agent

import "errors"

var (
	// ErrProviderNotSet LLM Provider 未设置
	ErrProviderNotSet = errors.New("llm provider not set")

	// ErrNoReply 回复管线没有产出任何回复
	ErrNoReply = errors.New("no reply generated")

	// ErrHumanInputUnavailable 需要人工输入但未配置输入源
	ErrHumanInputUnavailable = errors.New("human input required but no provider configured")

	// ErrToolNotFound 工具未注册
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid agent config")
)
