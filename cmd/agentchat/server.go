package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/agentchat/config"
	"github.com/BaSui01/agentchat/internal/database"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/internal/server"
	"github.com/BaSui01/agentchat/internal/telemetry"
	"github.com/BaSui01/agentchat/llm"
	llmproviders "github.com/BaSui01/agentchat/llm/providers"
	"github.com/BaSui01/agentchat/llm/providers/deepseek"
	"github.com/BaSui01/agentchat/llm/providers/openai"
	"github.com/BaSui01/agentchat/persistence"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 AgentChat 的主服务器
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger

	// 基础设施
	pool  *database.PoolManager
	otel  *telemetry.Providers
	store persistence.ChatStore

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	chatHandler *ChatHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// 热更新管理器
	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例。pool 仅在 database 存储后端下非 nil。
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, otelProviders *telemetry.Providers, pool *database.PoolManager) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		otel:       otelProviders,
		pool:       pool,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("agentchat", s.logger)

	// 连接池健康检查顺带上报连接指标
	if s.pool != nil {
		dbName := s.cfg.Database.Name
		s.pool.OnStats(func(stats sql.DBStats) {
			s.metricsCollector.RecordDBConnections(dbName, stats.OpenConnections, stats.Idle)
		})
	}

	// 2. 初始化会话存储
	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init chat store: %w", err)
	}

	// 3. 初始化 Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 初始化热更新管理器
	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	// 5. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", s.cfg.Store.Type),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStore 按配置创建会话存储，并包一层指标装饰器
func (s *Server) initStore() error {
	storeCfg := storeConfigFromApp(s.cfg)

	var db *gorm.DB
	if s.pool != nil {
		db = s.pool.DB()
	}

	raw, err := persistence.NewChatStore(storeCfg, db)
	if err != nil {
		return err
	}

	s.store = newMeasuredStore(raw, string(storeCfg.Type), s.metricsCollector)
	s.logger.Info("Chat store initialized", zap.String("backend", string(storeCfg.Type)))
	return nil
}

// initHandlers 初始化 LLM Provider 与会话 handler
func (s *Server) initHandlers() error {
	providers := make(map[string]llm.Provider)

	if key := s.cfg.LLM.OpenAI.APIKey; key != "" {
		p := openai.New(llmproviders.OpenAIConfig{
			BaseProviderConfig: llmproviders.BaseProviderConfig{
				APIKey:  key,
				BaseURL: s.cfg.LLM.OpenAI.BaseURL,
				Model:   s.cfg.LLM.OpenAI.Model,
				Timeout: s.cfg.LLM.Timeout,
			},
		}, s.logger)
		providers[p.Name()] = newMeasuredProvider(p, s.metricsCollector)
	}

	if key := s.cfg.LLM.DeepSeek.APIKey; key != "" {
		p := deepseek.New(llmproviders.DeepSeekConfig{
			BaseProviderConfig: llmproviders.BaseProviderConfig{
				APIKey:  key,
				BaseURL: s.cfg.LLM.DeepSeek.BaseURL,
				Model:   s.cfg.LLM.DeepSeek.Model,
				Timeout: s.cfg.LLM.Timeout,
			},
		}, s.logger)
		providers[p.Name()] = newMeasuredProvider(p, s.metricsCollector)
	}

	if len(providers) == 0 {
		s.logger.Warn("No LLM provider configured, agents fall back to default auto replies")
	}

	s.chatHandler = NewChatHandler(s.cfg, s.store, providers, s.metricsCollector, s.logger)

	s.logger.Info("Handlers initialized", zap.Int("providers", len(providers)))
	return nil
}

// initHotReloadManager 初始化热更新管理器
func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
		config.WithValidateFunc(func(newConfig *config.Config) error {
			return newConfig.Validate()
		}),
	}

	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)

	// 注册配置变更回调
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})

	// 注册配置重载回调。会话默认参数即时生效，端口类变更需要重启。
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
		if s.chatHandler != nil {
			s.chatHandler.UpdateConfig(newConfig)
		}
	})

	// 启动热更新管理器
	ctx := context.Background()
	if err := s.hotReloadManager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	// 创建配置 API 处理器
	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager, s.cfg.Server.AllowedOrigin)

	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/readyz", s.handleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.handleVersion)

	// ========================================
	// 会话 API 路由
	// ========================================
	mux.HandleFunc("POST /v1/chats", s.chatHandler.HandleInitiate)
	mux.HandleFunc("GET /v1/chats", s.chatHandler.HandleList)
	mux.HandleFunc("GET /v1/chats/{id}", s.chatHandler.HandleGet)
	mux.HandleFunc("DELETE /v1/chats/{id}", s.chatHandler.HandleDelete)
	mux.HandleFunc("GET /v1/chats/{id}/messages", s.chatHandler.HandleMessages)
	mux.HandleFunc("GET /v1/chats/{id}/stream", s.chatHandler.HandleStream)
	s.logger.Info("Chat API routes registered")

	// ========================================
	// 配置管理 API（敏感管理端点，显式包装认证检查，
	// JWT 中间件在全局链上已经覆盖这些路径）
	// ========================================
	if s.configAPIHandler != nil {
		configAuth := config.NewConfigAPIMiddleware(s.configAPIHandler, "")
		mux.HandleFunc("/api/v1/config", configAuth.RequireAuth(s.configAPIHandler.HandleConfig))
		mux.HandleFunc("/api/v1/config/reload", configAuth.RequireAuth(s.configAPIHandler.HandleReload))
		mux.HandleFunc("/api/v1/config/fields", configAuth.RequireAuth(s.configAPIHandler.HandleFields))
		mux.HandleFunc("/api/v1/config/changes", configAuth.RequireAuth(s.configAPIHandler.HandleChanges))
		s.logger.Info("Configuration API registered")
	}

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
	}
	if s.cfg.Server.AllowedOrigin != "" {
		middlewares = append(middlewares, CORS([]string{s.cfg.Server.AllowedOrigin}))
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger))
	}
	if s.cfg.Server.JWTSecret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.Server.JWTSecret, skipAuthPaths, s.logger))
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout, // 2x ReadTimeout
		MaxHeaderBytes:  1 << 20,                      // 1 MB
		MaxConns:        s.cfg.Server.MaxConns,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	var err error
	if s.cfg.Server.TLSCertFile != "" && s.cfg.Server.TLSKeyFile != "" {
		err = s.httpManager.StartTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.httpManager.Start()
	}
	if err != nil {
		return err
	}

	s.logger.Info("HTTP server started",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
	)
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器。metrics_port 为 0 时不启动。
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🏥 健康与版本端点
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady 检查依赖就绪：存储可达（database 后端下含连接池）
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"reason": err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	// 使用 httpManager 的 WaitForShutdown（它会监听信号）
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 停止热更新管理器
	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器（排空进行中的会话请求）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 关闭存储与连接池
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Chat store close error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database pool close error", zap.Error(err))
		}
	}

	// 5. 刷新遥测数据
	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	// 6. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}

// =============================================================================
// 🔩 配置映射
// =============================================================================

// storeConfigFromApp 把应用配置映射到持久层的存储配置
func storeConfigFromApp(cfg *config.Config) persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(cfg.Store.Type),
		BaseDir: cfg.Store.BaseDir,
		Redis: persistence.RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Store.KeyPrefix,
		},
		Mongo: persistence.MongoStoreConfig{
			URI:      cfg.Store.Mongo.URI,
			Database: cfg.Store.Mongo.Database,
		},
		Retention: persistence.RetentionConfig{
			Enabled:  cfg.Store.Retention.Enabled,
			Interval: cfg.Store.Retention.Interval,
			MaxAge:   cfg.Store.Retention.MaxAge,
		},
	}
}
