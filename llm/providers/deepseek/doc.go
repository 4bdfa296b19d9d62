// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

// Package deepseek 提供 DeepSeek API 的 Provider 实现。
//
// 基于 openaicompat 基座,注意 DeepSeek 的端点路径不带 /v1 前缀。
// 通过请求元数据 reasoning=true 可切换到 deepseek-reasoner 推理模型。
package deepseek
