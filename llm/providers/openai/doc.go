// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

// Package openai 提供 OpenAI 官方 API 的 Provider 实现。
//
// 基于 openaicompat 基座,默认端点 https://api.openai.com,
// 支持通过 OpenAI-Organization 头指定组织。
package openai
