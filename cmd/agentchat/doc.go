// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentChat 服务端程序入口。

# 概述

cmd/agentchat 是 AgentChat 会话框架的可执行入口，把库的两人会话编排
暴露为 HTTP + WebSocket 服务，并提供数据库迁移、健康检查和版本查询
等子命令。程序支持 YAML 配置加载、结构化日志（zap）、Prometheus
指标采集、OpenTelemetry 链路追踪以及配置热重载。

# 核心类型

  - Server          — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - ChatHandler     — /v1/chats API，发起会话、查询归档、流式订阅
  - chatSession     — 进行中会话的事件广播与人工输入中继
  - Middleware      — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、migrate（数据库迁移）、version、health
  - API：POST /v1/chats 同步执行两人会话并返回 Result，
    GET /v1/chats/{id} 读取归档，GET /v1/chats/{id}/stream 通过
    WebSocket 订阅会话事件并应答人工输入请求
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTelTracing、CORS、RateLimiter（按 JWT subject 或 IP）、
    JWTAuth（HS256，jwt_secret 为空时关闭）
  - 配置热重载：HotReloadManager 监听文件变更并回调
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止热更新 → 关闭 HTTP → 关闭 Metrics → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
