package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	// Each sub-config should be non-zero
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, AgentConfig{}, cfg.Agent)
	assert.NotEqual(t, ChatConfig{}, cfg.Chat)
	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, BudgetConfig{}, cfg.Budget)
	assert.NotEqual(t, StoreConfig{}, cfg.Store)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultConfig_PassesValidation(t *testing.T) {
	// The defaults must be valid on their own
	assert.NoError(t, DefaultConfig().Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 1024, cfg.MaxConns)
	assert.Equal(t, 100, cfg.RateLimitRPS)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	// Secrets must never have defaults; auth stays off until configured
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.TLSCertFile)
}

func TestDefaultAgentConfig(t *testing.T) {
	cfg := DefaultAgentConfig()
	assert.Equal(t, "assistant", cfg.Name)
	assert.Equal(t, "You are a helpful AI assistant.", cfg.SystemMessage)
	assert.Equal(t, "NEVER", cfg.HumanInputMode)
	assert.Equal(t, 100, cfg.MaxConsecutiveAutoReply)
	assert.Equal(t, "TERMINATE", cfg.TerminationWord)
	assert.Empty(t, cfg.DefaultAutoReply)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)
}

func TestDefaultChatConfig(t *testing.T) {
	cfg := DefaultChatConfig()
	assert.Equal(t, 10, cfg.MaxTurns)
	assert.Equal(t, "last_msg", cfg.SummaryMethod)
	assert.Equal(t, 10*time.Minute, cfg.Timeout)
}

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, "openai", cfg.DefaultProvider)
	assert.Equal(t, "gpt-4o-mini", cfg.DefaultModel)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, 3, cfg.MaxRetries)

	// API keys must never have defaults
	assert.Empty(t, cfg.OpenAI.APIKey)
	assert.Empty(t, cfg.DeepSeek.APIKey)
	// Empty BaseURL means the provider's official endpoint
	assert.Empty(t, cfg.OpenAI.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.DeepSeek.Model)
}

func TestDefaultBudgetConfig(t *testing.T) {
	cfg := DefaultBudgetConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 100000, cfg.MaxTokensPerRequest)
	assert.Equal(t, 500000, cfg.MaxTokensPerMinute)
	assert.Equal(t, 5000000, cfg.MaxTokensPerHour)
	assert.Equal(t, 50000000, cfg.MaxTokensPerDay)
	assert.Equal(t, 10.0, cfg.MaxCostPerRequest)
	assert.Equal(t, 1000.0, cfg.MaxCostPerDay)
	assert.Equal(t, 0.8, cfg.AlertThreshold)
}

func TestDefaultStoreConfig(t *testing.T) {
	cfg := DefaultStoreConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./data/chats", cfg.BaseDir)
	assert.Equal(t, "agentchat:", cfg.KeyPrefix)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "agentchat", cfg.Mongo.Database)
	assert.False(t, cfg.Retention.Enabled)
	assert.Equal(t, time.Hour, cfg.Retention.Interval)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.MaxAge)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 2, cfg.MinIdleConns)
}

func TestDefaultDatabaseConfig(t *testing.T) {
	cfg := DefaultDatabaseConfig()
	assert.Equal(t, "postgres", cfg.Driver)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "agentchat", cfg.User)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, "agentchat", cfg.Name)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "agentchat", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}
