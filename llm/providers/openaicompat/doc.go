// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

// Package openaicompat 提供 OpenAI 兼容 API 的通用 Provider 基座。
//
// 大多数 LLM 服务商都暴露 OpenAI 风格的 /chat/completions 端点，
// 差异仅在于 base URL、默认模型、鉴权头和少量私有字段。本包把
// HTTP 调用、SSE 解析、错误映射收敛到一处，厂商包只需提供一个
// Config：
//
//	p := openaicompat.New(openaicompat.Config{
//		ProviderName: "deepseek",
//		APIKey:       apiKey,
//		BaseURL:      "https://api.deepseek.com",
//		DefaultModel: "deepseek-chat",
//	}, logger)
//
// 通过 BuildHeaders 定制鉴权方式，通过 RequestHook 注入私有请求字段。
// 流式响应开启 stream_options.include_usage，最后一帧携带完整用量。
package openaicompat
