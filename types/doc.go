// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentChat 框架的全局共享类型定义。

# 概述

types 是框架最底层的公共包，不依赖任何内部包，为 agent、chat、llm、
persistence 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举
均定义于此，以避免循环依赖。

# 核心类型

  - Message           — 对话消息（Role、Content、Name、ToolCalls）
  - Role              — 消息角色枚举（system / user / assistant / tool）
  - ToolSchema        — 工具定义（name + description + JSON Schema parameters）
  - ToolResult        — 工具执行结果，可转换为 transcript 消息
  - TokenUsage        — Token 用量与美元成本，支持累加
  - Tokenizer         — 框架级 Token 计数接口（Message / ToolSchema 感知）
  - EstimateTokenizer — 字符估算 Tokenizer（中英文字符分别计算）

# 约定

多 Agent 对话中，Message.Name 标记产生该消息的 Agent 名称；同一条消息
在不同 Agent 的视角下会以不同的 Role 回放（自己发出的是 assistant，
对方发来的是 user），Name 保持不变。

CloneMessages / LastMessage 为编排层提供不可变 transcript 访问约定：
回复生成绝不修改调用方传入的历史切片。
*/
package types
