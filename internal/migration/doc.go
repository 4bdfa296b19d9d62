// Copyright (c) AgentChat Authors.
// Licensed under the MIT License.

/*
包 migration 提供聊天存储 Schema 的版本化迁移管理，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件（chat_results 与
chat_messages 两张表），结合 golang-migrate 引擎实现版本化的 Schema
变更管理。支持正向迁移、回滚、按步执行、跳转到指定版本以及强制设置
版本号等操作。SQLite 使用纯 Go 驱动（modernc.org/sqlite），无需 CGO。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等完整操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例
    与数据库连接管理。
  - Config：迁移配置，包含数据库类型、连接 URL、迁移表名与锁超时。
  - DatabaseType：数据库类型枚举（postgres/mysql/sqlite）。
  - MigrationStatus / MigrationInfo：迁移状态与摘要信息。
  - CLI：命令行交互层，Run 按子命令分发到 RunUp/RunDown/RunStatus
    等操作，agentchat 二进制将其挂载为 migrate 子命令。

# 主要能力

  - 多数据库支持：dialectFor 按 DatabaseType 绑定 SQL 驱动名、
    内嵌迁移目录与 golang-migrate 驱动构造器。
  - 工厂函数：NewMigratorFromConfig / NewMigratorFromDatabaseConfig /
    NewMigratorFromURL 支持从不同配置源快速创建迁移器。
  - 辅助工具：ParseDatabaseType 解析类型字符串，BuildDatabaseURL
    按方言拼接连接 URL。
*/
package migration
