// =============================================================================
// 📦 AgentChat 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTCHAT").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentChat 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Agent 默认会话代理配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Chat 会话编排默认配置
	Chat ChatConfig `yaml:"chat" env:"CHAT"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Budget 用量与成本限额配置
	Budget BudgetConfig `yaml:"budget" env:"BUDGET"`

	// Store 会话存储配置
	Store StoreConfig `yaml:"store" env:"STORE"`

	// Redis 缓存与存储后端配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 最大并发连接数
	MaxConns int `yaml:"max_conns" env:"MAX_CONNS"`
	// 每客户端限流速率（请求/秒）
	RateLimitRPS int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// JWT 签名密钥，为空时不启用鉴权
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	// CORS 允许的来源
	AllowedOrigin string `yaml:"allowed_origin" env:"ALLOWED_ORIGIN"`
	// TLS 证书文件路径（可选）
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	// TLS 私钥文件路径（可选）
	TLSKeyFile string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// AgentConfig 会话代理默认配置
type AgentConfig struct {
	// 名称
	Name string `yaml:"name" env:"NAME"`
	// 系统提示词
	SystemMessage string `yaml:"system_message" env:"SYSTEM_MESSAGE"`
	// 人工介入模式: NEVER, ALWAYS, TERMINATE
	HumanInputMode string `yaml:"human_input_mode" env:"HUMAN_INPUT_MODE"`
	// 连续自动回复上限
	MaxConsecutiveAutoReply int `yaml:"max_consecutive_auto_reply" env:"MAX_CONSECUTIVE_AUTO_REPLY"`
	// 终止关键词
	TerminationWord string `yaml:"termination_word" env:"TERMINATION_WORD"`
	// 人工未输入时的默认回复
	DefaultAutoReply string `yaml:"default_auto_reply" env:"DEFAULT_AUTO_REPLY"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 单次回复超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ChatConfig 会话编排默认配置
type ChatConfig struct {
	// 最大轮数
	MaxTurns int `yaml:"max_turns" env:"MAX_TURNS"`
	// 总结方式: last_msg, reflection_with_llm
	SummaryMethod string `yaml:"summary_method" env:"SUMMARY_METHOD"`
	// 整场会话超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// 默认 Provider: openai, deepseek
	DefaultProvider string `yaml:"default_provider" env:"DEFAULT_PROVIDER"`
	// 默认模型
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// OpenAI 接入配置
	OpenAI ProviderConfig `yaml:"openai" env:"OPENAI"`
	// DeepSeek 接入配置
	DeepSeek ProviderConfig `yaml:"deepseek" env:"DEEPSEEK"`
}

// ProviderConfig 单个 LLM Provider 的接入配置
type ProviderConfig struct {
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（可选，为空时使用官方端点）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 默认模型（可选，覆盖 LLM.DefaultModel）
	Model string `yaml:"model" env:"MODEL"`
}

// BudgetConfig 用量与成本限额配置
type BudgetConfig struct {
	// 是否启用限额
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 单请求 Token 上限
	MaxTokensPerRequest int `yaml:"max_tokens_per_request" env:"MAX_TOKENS_PER_REQUEST"`
	// 每分钟 Token 上限
	MaxTokensPerMinute int `yaml:"max_tokens_per_minute" env:"MAX_TOKENS_PER_MINUTE"`
	// 每小时 Token 上限
	MaxTokensPerHour int `yaml:"max_tokens_per_hour" env:"MAX_TOKENS_PER_HOUR"`
	// 每日 Token 上限
	MaxTokensPerDay int `yaml:"max_tokens_per_day" env:"MAX_TOKENS_PER_DAY"`
	// 单请求成本上限（美元）
	MaxCostPerRequest float64 `yaml:"max_cost_per_request" env:"MAX_COST_PER_REQUEST"`
	// 每日成本上限（美元）
	MaxCostPerDay float64 `yaml:"max_cost_per_day" env:"MAX_COST_PER_DAY"`
	// 告警阈值，用量超过该比例时告警 (0.0-1.0)
	AlertThreshold float64 `yaml:"alert_threshold" env:"ALERT_THRESHOLD"`
}

// StoreConfig 会话存储配置
type StoreConfig struct {
	// 后端类型: memory, file, redis, mongo, database
	Type string `yaml:"type" env:"TYPE"`
	// file 后端的根目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// redis 后端的键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// Mongo 后端配置
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`
	// 归档清理配置
	Retention RetentionConfig `yaml:"retention" env:"RETENTION"`
}

// MongoConfig MongoDB 后端配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
}

// RetentionConfig 归档清理配置
type RetentionConfig struct {
	// 是否启用定期清理
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 清理周期
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
	// 归档会话的最长保留时间
	MaxAge time.Duration `yaml:"max_age" env:"MAX_AGE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTCHAT",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.http_port must be between 1 and 65535, got %d", c.Server.HTTPPort))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, fmt.Sprintf("server.metrics_port must be between 0 and 65535, got %d", c.Server.MetricsPort))
	}

	// 验证 Agent 配置
	switch c.Agent.HumanInputMode {
	case "NEVER", "ALWAYS", "TERMINATE":
	default:
		errs = append(errs, fmt.Sprintf("agent.human_input_mode must be NEVER, ALWAYS or TERMINATE, got %q", c.Agent.HumanInputMode))
	}
	if c.Agent.MaxConsecutiveAutoReply < 0 {
		errs = append(errs, "agent.max_consecutive_auto_reply must not be negative")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("agent.temperature must be between 0 and 2, got %g", c.Agent.Temperature))
	}

	// 验证 Chat 配置
	if c.Chat.MaxTurns <= 0 {
		errs = append(errs, fmt.Sprintf("chat.max_turns must be positive, got %d", c.Chat.MaxTurns))
	}
	switch c.Chat.SummaryMethod {
	case "last_msg", "reflection_with_llm":
	default:
		errs = append(errs, fmt.Sprintf("chat.summary_method must be last_msg or reflection_with_llm, got %q", c.Chat.SummaryMethod))
	}

	// 验证 LLM 配置
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}

	// 验证 Budget 配置
	if c.Budget.AlertThreshold < 0 || c.Budget.AlertThreshold > 1 {
		errs = append(errs, fmt.Sprintf("budget.alert_threshold must be between 0 and 1, got %g", c.Budget.AlertThreshold))
	}

	// 验证 Store 配置
	switch c.Store.Type {
	case "memory", "file", "redis", "mongo", "database":
	default:
		errs = append(errs, fmt.Sprintf("store.type must be one of memory, file, redis, mongo, database, got %q", c.Store.Type))
	}

	// 验证 Log 配置
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
