// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、LLM、
会话编排与持久化四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion）、
    调用成本，按 provider/model 分组。
  - 会话指标：发起总数、完成总数（按结局分组）、轮数分布、
    整场耗时，以及人工介入的次数与等待时长。
  - 存储指标：ChatStore 各操作的次数、错误数与耗时，按 backend
    与 operation 分组；另有数据库连接数 Gauge 与查询耗时直方图。

同一进程内多次构建 Collector 时 namespace 不可重复，promauto
会对重复注册直接 panic。
*/
package metrics
