// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
包 llm 提供统一的大语言模型接入层，包括 Provider 抽象、注册表、
重试与 Token 计数能力。

# 概述

本包的目标是屏蔽不同模型服务商在接口、鉴权、错误语义和流式协议上的
差异，对 agent 与 chat 层暴露一致的请求与响应模型。Agent 不关心背后
是哪家服务商，只依赖 [Provider] 接口。

# 核心接口

  - [Provider]：LLM 提供者接口，提供 Completion / Stream / HealthCheck /
    Name / SupportsNativeFunctionCalling
  - [ProviderRegistry]：线程安全的 Provider 注册表，支持默认 Provider
  - [Error] / [ErrorCode]：结构化错误体系，含 HTTP 状态码与 Retryable 标记

# 子包

  - llm/providers：OpenAI 兼容的 wire 编解码与错误映射，含 openaicompat
    通用 HTTP/SSE 基座及 openai、deepseek 薄封装
  - llm/retry：指数退避重试（抖动、错误过滤、context 取消）
  - llm/tokenizer：基于 tiktoken 的精确 Token 计数

# 错误语义

Provider 实现返回 *Error，调用方通过 IsRetryable / CodeOf 判断处置
策略。流式调用中，错误通过 StreamChunk.Err 传递并随后关闭通道。
*/
package llm
