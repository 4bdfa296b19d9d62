// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
包 providers 定义 OpenAI 兼容 API 的 wire 类型、转换函数与错误映射。

各厂商子包（openai、deepseek）只是 openaicompat 基座之上的薄封装：
配置默认 BaseURL、模型与请求钩子，其余行为全部复用。

错误映射约定见 [MapHTTPError]：401/403 不可重试，429 与 5xx 可重试，
400 带配额关键字时归为 QUOTA_EXCEEDED，529 归为 MODEL_OVERLOADED。
*/
package providers
