// =============================================================================
// 📦 AgentChat 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Agent:     DefaultAgentConfig(),
		Chat:      DefaultChatConfig(),
		LLM:       DefaultLLMConfig(),
		Budget:    DefaultBudgetConfig(),
		Store:     DefaultStoreConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		MaxConns:        1024,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultAgentConfig 返回默认会话代理配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Name:                    "assistant",
		SystemMessage:           "You are a helpful AI assistant.",
		HumanInputMode:          "NEVER",
		MaxConsecutiveAutoReply: 100,
		TerminationWord:         "TERMINATE",
		DefaultAutoReply:        "",
		Temperature:             0.7,
		MaxTokens:               4096,
		Timeout:                 5 * time.Minute,
	}
}

// DefaultChatConfig 返回默认会话编排配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		MaxTurns:      10,
		SummaryMethod: "last_msg",
		Timeout:       10 * time.Minute,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "openai",
		DefaultModel:    "gpt-4o-mini",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
		OpenAI:          ProviderConfig{},
		DeepSeek:        ProviderConfig{Model: "deepseek-chat"},
	}
}

// DefaultBudgetConfig 返回宽松的默认限额配置
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		Enabled:             false,
		MaxTokensPerRequest: 100000,
		MaxTokensPerMinute:  500000,
		MaxTokensPerHour:    5000000,
		MaxTokensPerDay:     50000000,
		MaxCostPerRequest:   10.0,
		MaxCostPerDay:       1000.0,
		AlertThreshold:      0.8,
	}
}

// DefaultStoreConfig 返回默认会话存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:      "memory",
		BaseDir:   "./data/chats",
		KeyPrefix: "agentchat:",
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "agentchat",
		},
		Retention: RetentionConfig{
			Enabled:  false,
			Interval: 1 * time.Hour,
			MaxAge:   7 * 24 * time.Hour,
		},
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentchat",
		Password:        "",
		Name:            "agentchat",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentchat",
		SampleRate:   0.1,
	}
}
