package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentchat/agent"
	"github.com/BaSui01/agentchat/chat"
	"github.com/BaSui01/agentchat/config"
	"github.com/BaSui01/agentchat/cost"
	"github.com/BaSui01/agentchat/internal/ctxkeys"
	"github.com/BaSui01/agentchat/internal/metrics"
	"github.com/BaSui01/agentchat/llm"
	"github.com/BaSui01/agentchat/persistence"
	"github.com/BaSui01/agentchat/types"
)

// =============================================================================
// 🗣️ ChatHandler — /v1/chats API
// =============================================================================

// chatKindTwoAgent 是 HTTP 层暴露的会话类型标签（指标维度）。
const chatKindTwoAgent = "two_agent"

// ChatHandler 处理会话的发起、查询与流式订阅。
type ChatHandler struct {
	mu  sync.RWMutex
	cfg *config.Config

	store     persistence.ChatStore
	providers map[string]llm.Provider
	collector *metrics.Collector
	logger    *zap.Logger

	sessions *sessionRegistry
}

// NewChatHandler 创建会话 handler。providers 按 Provider.Name 索引。
func NewChatHandler(cfg *config.Config, store persistence.ChatStore, providers map[string]llm.Provider, collector *metrics.Collector, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		cfg:       cfg,
		store:     store,
		providers: providers,
		collector: collector,
		logger:    logger,
		sessions:  newSessionRegistry(),
	}
}

// UpdateConfig 热重载后替换会话默认参数。
func (h *ChatHandler) UpdateConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

func (h *ChatHandler) config() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// =============================================================================
// 请求与响应
// =============================================================================

// agentSpec 描述会话一方的 agent。未填字段回落到配置的 agent 默认值。
type agentSpec struct {
	Name                    string  `json:"name"`
	SystemMessage           string  `json:"system_message,omitempty"`
	Provider                string  `json:"provider,omitempty"`
	Model                   string  `json:"model,omitempty"`
	Temperature             float32 `json:"temperature,omitempty"`
	MaxTokens               int     `json:"max_tokens,omitempty"`
	HumanInputMode          string  `json:"human_input_mode,omitempty"`
	MaxConsecutiveAutoReply *int    `json:"max_consecutive_auto_reply,omitempty"`
	TerminationWord         string  `json:"termination_word,omitempty"`
	DefaultAutoReply        string  `json:"default_auto_reply,omitempty"`
}

// initiateRequest 是 POST /v1/chats 的请求体。
type initiateRequest struct {
	ChatID        string    `json:"chat_id,omitempty"`
	Message       string    `json:"message"`
	MaxTurns      int       `json:"max_turns,omitempty"`
	SummaryMethod string    `json:"summary_method,omitempty"`
	SummaryPrompt string    `json:"summary_prompt,omitempty"`
	Carryover     []string  `json:"carryover,omitempty"`
	Timeout       string    `json:"timeout,omitempty"` // Go duration 字符串，如 "5m"
	Initiator     agentSpec `json:"initiator"`
	Recipient     agentSpec `json:"recipient"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func respondData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiResponse{Success: false, Error: &apiError{Code: code, Message: message}})
}

// =============================================================================
// POST /v1/chats
// =============================================================================

// HandleInitiate 按请求中的 agent 规格执行一场两人会话，归档并返回 Result。
// 会话过程中的事件可通过 GET /v1/chats/{id}/stream 订阅。
func (h *ChatHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	cfg := h.config()

	timeout := cfg.Chat.Timeout
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("invalid timeout %q", req.Timeout))
			return
		}
		timeout = d
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = uuid.NewString()
	}

	session, err := h.sessions.open(chatID)
	if err != nil {
		respondError(w, http.StatusConflict, "CHAT_RUNNING", err.Error())
		return
	}
	defer h.sessions.remove(chatID)

	initiator, err := h.buildAgent(req.Initiator, cfg.Agent, session)
	if err != nil {
		session.fail(err)
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "initiator: "+err.Error())
		return
	}
	recipient, err := h.buildAgent(req.Recipient, cfg.Agent, session)
	if err != nil {
		session.fail(err)
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", "recipient: "+err.Error())
		return
	}

	opts := []chat.Option{
		chat.WithChatID(chatID),
		chat.WithMessage(req.Message),
		chat.WithSilent(),
		chat.WithTimeout(timeout),
	}
	if req.MaxTurns > 0 {
		opts = append(opts, chat.WithMaxTurns(req.MaxTurns))
	} else {
		opts = append(opts, chat.WithMaxTurns(cfg.Chat.MaxTurns))
	}
	if req.SummaryMethod != "" {
		opts = append(opts, chat.WithSummaryMethod(req.SummaryMethod))
	} else {
		opts = append(opts, chat.WithSummaryMethod(cfg.Chat.SummaryMethod))
	}
	if req.SummaryPrompt != "" {
		opts = append(opts, chat.WithSummaryPrompt(req.SummaryPrompt))
	}
	if len(req.Carryover) > 0 {
		opts = append(opts, chat.WithCarryover(req.Carryover...))
	}

	// 长会话可能超过 server 级写超时，按会话时限放宽本次响应的写截止
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Now().Add(timeout + 30*time.Second))

	ctx := ctxkeys.WithChatID(r.Context(), chatID)
	if reqID := RequestIDFromContext(r.Context()); reqID != "" {
		ctx = ctxkeys.WithTraceID(ctx, reqID)
	}

	h.collector.RecordChatInitiated(chatKindTwoAgent)
	h.logger.Info("chat initiated",
		zap.String("chat_id", chatID),
		zap.String("initiator", req.Initiator.Name),
		zap.String("recipient", req.Recipient.Name),
	)

	start := time.Now()
	result, err := chat.InitiateChat(ctx, initiator, recipient, opts...)
	duration := time.Since(start)

	if err != nil {
		session.fail(err)
		h.collector.RecordChatCompleted(chatKindTwoAgent, "error", 0, duration)
		h.logger.Error("chat failed", zap.String("chat_id", chatID), zap.Error(err))

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			respondError(w, http.StatusGatewayTimeout, "CHAT_TIMEOUT", err.Error())
		case errors.Is(err, context.Canceled):
			respondError(w, http.StatusBadRequest, "CHAT_CANCELED", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "CHAT_FAILED", err.Error())
		}
		return
	}

	h.collector.RecordChatCompleted(chatKindTwoAgent, "ok", len(result.History)/2, duration)
	h.persistResult(r.Context(), result)
	session.complete(result)

	h.logger.Info("chat completed",
		zap.String("chat_id", chatID),
		zap.Int("messages", len(result.History)),
		zap.Duration("duration", duration),
	)

	respondData(w, http.StatusOK, result)
}

func (r *initiateRequest) validate() error {
	if r.Message == "" {
		return errors.New("message is required")
	}
	if r.Initiator.Name == "" || r.Recipient.Name == "" {
		return errors.New("initiator.name and recipient.name are required")
	}
	if r.Initiator.Name == r.Recipient.Name {
		return fmt.Errorf("initiator and recipient must have distinct names, both are %q", r.Initiator.Name)
	}
	return nil
}

// buildAgent 按规格构建 ConversableAgent，未填字段使用配置默认值。
func (h *ChatHandler) buildAgent(spec agentSpec, defaults config.AgentConfig, session *chatSession) (*agent.ConversableAgent, error) {
	cfg := h.config()

	opts := []agent.Option{
		agent.WithLogger(h.logger.Named(spec.Name)),
	}

	systemMessage := spec.SystemMessage
	if systemMessage == "" {
		systemMessage = defaults.SystemMessage
	}
	opts = append(opts, agent.WithSystemMessage(systemMessage))

	provider, err := h.resolveProvider(spec.Provider)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		model := spec.Model
		if model == "" {
			model = cfg.LLM.DefaultModel
		}
		temperature := spec.Temperature
		if temperature == 0 {
			temperature = float32(defaults.Temperature)
		}
		maxTokens := spec.MaxTokens
		if maxTokens == 0 {
			maxTokens = defaults.MaxTokens
		}
		opts = append(opts,
			agent.WithProvider(provider),
			agent.WithLLMConfig(agent.LLMConfig{
				Model:       model,
				Temperature: temperature,
				MaxTokens:   maxTokens,
				Timeout:     defaults.Timeout,
			}),
		)
	}

	mode := spec.HumanInputMode
	if mode == "" {
		mode = defaults.HumanInputMode
	}
	switch agent.InputMode(mode) {
	case agent.InputModeNever:
		opts = append(opts, agent.WithHumanInputMode(agent.InputModeNever))
	case agent.InputModeAlways, agent.InputModeTerminate:
		// 人工输入经由流式订阅者应答
		opts = append(opts,
			agent.WithHumanInputMode(agent.InputMode(mode)),
			agent.WithHumanInputProvider(&sessionHumanInput{
				session:   session,
				agentName: spec.Name,
				mode:      mode,
				collector: h.collector,
			}),
		)
	default:
		return nil, fmt.Errorf("invalid human_input_mode %q", mode)
	}

	maxAuto := defaults.MaxConsecutiveAutoReply
	if spec.MaxConsecutiveAutoReply != nil {
		maxAuto = *spec.MaxConsecutiveAutoReply
	}
	opts = append(opts, agent.WithMaxConsecutiveAutoReply(maxAuto))

	word := spec.TerminationWord
	if word == "" {
		word = defaults.TerminationWord
	}
	if word != "" {
		opts = append(opts, agent.WithIsTerminationMsg(agent.TerminationOnWord(word)))
	}

	autoReply := spec.DefaultAutoReply
	if autoReply == "" {
		autoReply = defaults.DefaultAutoReply
	}
	if autoReply != "" {
		opts = append(opts, agent.WithDefaultAutoReply(autoReply))
	}

	if cfg.Budget.Enabled {
		opts = append(opts, agent.WithBudget(cost.NewBudgetManager(budgetConfigFromApp(cfg.Budget), h.logger)))
	}

	a := agent.NewConversableAgent(spec.Name, opts...)

	// 透传回复函数：把触发回复的入站消息广播给流式订阅者
	a.RegisterReply(nil, func(ctx context.Context, ag *agent.ConversableAgent, msgs []types.Message, sender *agent.ConversableAgent) (bool, *types.Message, error) {
		session.tapMessages(ag.Name(), msgs)
		return false, nil, nil
	})

	return a, nil
}

// resolveProvider 按名称查找 Provider。名称为空时取配置的默认 Provider；
// 未配置任何 Provider 时返回 nil（agent 回落到默认自动回复）。
func (h *ChatHandler) resolveProvider(name string) (llm.Provider, error) {
	cfg := h.config()
	if name == "" {
		name = cfg.LLM.DefaultProvider
	}
	if p, ok := h.providers[name]; ok {
		return p, nil
	}
	if len(h.providers) == 0 {
		return nil, nil
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// persistResult 归档会话产物与消息日志。请求结束不应中断归档，
// 因此使用与请求解耦的 context。
func (h *ChatHandler) persistResult(ctx context.Context, result *chat.Result) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := h.store.SaveResult(saveCtx, result); err != nil {
		h.logger.Error("failed to archive chat result",
			zap.String("chat_id", result.ChatID), zap.Error(err))
		return
	}
	for _, msg := range result.History {
		if err := h.store.SaveMessage(saveCtx, result.ChatID, msg); err != nil {
			h.logger.Error("failed to archive chat message",
				zap.String("chat_id", result.ChatID), zap.Error(err))
			return
		}
	}
}

// =============================================================================
// GET /v1/chats/{id} 及查询端点
// =============================================================================

// HandleGet 返回归档的会话产物。
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := h.store.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("chat %q not found", id))
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	respondData(w, http.StatusOK, result)
}

// HandleList 按归档顺序分页列出会话。
func (h *ChatHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	results, next, err := h.store.ListResults(r.Context(), cursor, limit)
	if err != nil {
		if errors.Is(err, persistence.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"chats":       results,
		"next_cursor": next,
	})
}

// HandleDelete 删除归档的会话产物与消息日志。
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.store.DeleteChat(r.Context(), id); err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("chat %q not found", id))
			return
		}
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleMessages 返回会话的消息日志，按时间先后排列。
func (h *ChatHandler) HandleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msgs, err := h.store.GetMessages(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"chat_id":  id,
		"messages": msgs,
	})
}

// budgetConfigFromApp 把应用配置映射到 cost 包的限额配置
func budgetConfigFromApp(cfg config.BudgetConfig) cost.BudgetConfig {
	return cost.BudgetConfig{
		MaxTokensPerRequest: cfg.MaxTokensPerRequest,
		MaxTokensPerMinute:  cfg.MaxTokensPerMinute,
		MaxTokensPerHour:    cfg.MaxTokensPerHour,
		MaxTokensPerDay:     cfg.MaxTokensPerDay,
		MaxCostPerRequest:   cfg.MaxCostPerRequest,
		MaxCostPerDay:       cfg.MaxCostPerDay,
		AlertThreshold:      cfg.AlertThreshold,
	}
}
