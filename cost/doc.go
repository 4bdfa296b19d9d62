// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

// Package cost 提供 LLM 调用的成本核算与预算控制。
//
// Pricing 维护按模型的价格表(每 1K token 美元数),支持前缀匹配;
// Tracker 按模型累计用量,区分 Actual(实际 API 开销)与 Total
// (含缓存命中)两个视图;Gather 聚合多个 agent 的追踪器,得到
// 一场会话的完整开销。BudgetManager 提供分钟/小时/天滑动窗口的
// token 与成本限额,超过阈值时告警,触顶时可自动限流。
package cost
