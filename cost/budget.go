package cost

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrBudgetExceeded 任一限额被触顶时由 CheckBudget 返回,
// 调用方用 errors.Is 区分预算拒绝与其他失败。
var ErrBudgetExceeded = errors.New("budget exceeded")

// ErrThrottled 自动限流生效期间由 CheckBudget 返回。
var ErrThrottled = errors.New("budget throttled")

// BudgetConfig 预算限制配置。
type BudgetConfig struct {
	MaxTokensPerRequest int           `json:"max_tokens_per_request" yaml:"max_tokens_per_request"`
	MaxTokensPerMinute  int           `json:"max_tokens_per_minute" yaml:"max_tokens_per_minute"`
	MaxTokensPerHour    int           `json:"max_tokens_per_hour" yaml:"max_tokens_per_hour"`
	MaxTokensPerDay     int           `json:"max_tokens_per_day" yaml:"max_tokens_per_day"`
	MaxCostPerRequest   float64       `json:"max_cost_per_request" yaml:"max_cost_per_request"`
	MaxCostPerDay       float64       `json:"max_cost_per_day" yaml:"max_cost_per_day"`
	AlertThreshold      float64       `json:"alert_threshold" yaml:"alert_threshold"` // 0.0-1.0,用量超过该比例时告警
	AutoThrottle        bool          `json:"auto_throttle" yaml:"auto_throttle"`
	ThrottleDelay       time.Duration `json:"throttle_delay" yaml:"throttle_delay"`
}

// DefaultBudgetConfig 返回宽松的默认限额。
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxTokensPerRequest: 100000,
		MaxTokensPerMinute:  500000,
		MaxTokensPerHour:    5000000,
		MaxTokensPerDay:     50000000,
		MaxCostPerRequest:   10.0,
		MaxCostPerDay:       1000.0,
		AlertThreshold:      0.8,
		AutoThrottle:        true,
		ThrottleDelay:       time.Second,
	}
}

// UsageRecord 一次调用的用量记录。
type UsageRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
	Cost      float64   `json:"cost"`
	Model     string    `json:"model"`
	ChatID    string    `json:"chat_id,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
}

// BudgetStatus 当前各窗口的用量与利用率。
type BudgetStatus struct {
	TokensUsedMinute  int64      `json:"tokens_used_minute"`
	TokensUsedHour    int64      `json:"tokens_used_hour"`
	TokensUsedDay     int64      `json:"tokens_used_day"`
	CostUsedDay       float64    `json:"cost_used_day"`
	MinuteUtilization float64    `json:"minute_utilization"`
	HourUtilization   float64    `json:"hour_utilization"`
	DayUtilization    float64    `json:"day_utilization"`
	CostUtilization   float64    `json:"cost_utilization"`
	IsThrottled       bool       `json:"is_throttled"`
	ThrottleUntil     *time.Time `json:"throttle_until,omitempty"`
}

// AlertType 预算告警类型。
type AlertType string

const (
	AlertTokenMinute AlertType = "token_minute_threshold"
	AlertTokenHour   AlertType = "token_hour_threshold"
	AlertTokenDay    AlertType = "token_day_threshold"
	AlertCostDay     AlertType = "cost_day_threshold"
)

// Alert 预算告警。
type Alert struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Threshold float64   `json:"threshold"`
	Current   float64   `json:"current"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertHandler 处理预算告警。
type AlertHandler func(alert Alert)

// BudgetManager 维护滑动窗口的 token 与成本计数,
// 在调用前检查限额,在调用后记录用量并触发告警。
type BudgetManager struct {
	config        BudgetConfig
	logger        *zap.Logger
	alertHandlers []AlertHandler

	// 原子计数器,窗口重置时清零
	tokensMinute int64
	tokensHour   int64
	tokensDay    int64
	costDay      int64 // 成本放大 1e6 存储,便于原子累加

	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time

	throttleUntil time.Time
	mu            sync.RWMutex

	// 单窗口只告警一次,窗口重置后恢复
	alertedMinute bool
	alertedHour   bool
	alertedDay    bool
	alertedCost   bool
}

const costScale = 1000000

// NewBudgetManager 创建预算管理器。
func NewBudgetManager(config BudgetConfig, logger *zap.Logger) *BudgetManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	return &BudgetManager{
		config:      config,
		logger:      logger,
		minuteStart: now,
		hourStart:   now,
		dayStart:    now.Truncate(24 * time.Hour),
	}
}

// OnAlert 注册告警处理器。
func (m *BudgetManager) OnAlert(handler AlertHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertHandlers = append(m.alertHandlers, handler)
}

// CheckBudget 检查一次预估用量是否会超出限额。超出时返回错误。
func (m *BudgetManager) CheckBudget(estimatedTokens int, estimatedCost float64) error {
	m.resetWindowsIfNeeded()

	m.mu.RLock()
	if time.Now().Before(m.throttleUntil) {
		until := m.throttleUntil
		m.mu.RUnlock()
		return fmt.Errorf("%w until %s", ErrThrottled, until.Format(time.RFC3339))
	}
	m.mu.RUnlock()

	if m.config.MaxTokensPerRequest > 0 && estimatedTokens > m.config.MaxTokensPerRequest {
		return fmt.Errorf("%w: estimated tokens %d exceeds per-request limit %d",
			ErrBudgetExceeded, estimatedTokens, m.config.MaxTokensPerRequest)
	}
	if m.config.MaxCostPerRequest > 0 && estimatedCost > m.config.MaxCostPerRequest {
		return fmt.Errorf("%w: estimated cost %.2f exceeds per-request limit %.2f",
			ErrBudgetExceeded, estimatedCost, m.config.MaxCostPerRequest)
	}

	if m.config.MaxTokensPerMinute > 0 &&
		int(atomic.LoadInt64(&m.tokensMinute))+estimatedTokens > m.config.MaxTokensPerMinute {
		m.applyThrottle()
		return fmt.Errorf("%w: would exceed minute token limit %d",
			ErrBudgetExceeded, m.config.MaxTokensPerMinute)
	}
	if m.config.MaxTokensPerHour > 0 &&
		int(atomic.LoadInt64(&m.tokensHour))+estimatedTokens > m.config.MaxTokensPerHour {
		return fmt.Errorf("%w: would exceed hour token limit %d",
			ErrBudgetExceeded, m.config.MaxTokensPerHour)
	}
	if m.config.MaxTokensPerDay > 0 &&
		int(atomic.LoadInt64(&m.tokensDay))+estimatedTokens > m.config.MaxTokensPerDay {
		return fmt.Errorf("%w: would exceed day token limit %d",
			ErrBudgetExceeded, m.config.MaxTokensPerDay)
	}
	if m.config.MaxCostPerDay > 0 {
		currentCost := float64(atomic.LoadInt64(&m.costDay)) / costScale
		if currentCost+estimatedCost > m.config.MaxCostPerDay {
			return fmt.Errorf("%w: would exceed daily cost limit %.2f",
				ErrBudgetExceeded, m.config.MaxCostPerDay)
		}
	}
	return nil
}

// RecordUsage 记录实际用量并检查告警阈值。
func (m *BudgetManager) RecordUsage(record UsageRecord) {
	m.resetWindowsIfNeeded()

	atomic.AddInt64(&m.tokensMinute, int64(record.Tokens))
	atomic.AddInt64(&m.tokensHour, int64(record.Tokens))
	atomic.AddInt64(&m.tokensDay, int64(record.Tokens))
	atomic.AddInt64(&m.costDay, int64(record.Cost*costScale))

	m.checkAlerts()

	m.logger.Debug("usage recorded",
		zap.Int("tokens", record.Tokens),
		zap.Float64("cost", record.Cost),
		zap.String("model", record.Model),
		zap.String("agent", record.AgentName))
}

// Status 返回当前预算状况。
func (m *BudgetManager) Status() BudgetStatus {
	m.resetWindowsIfNeeded()

	tokensMinute := atomic.LoadInt64(&m.tokensMinute)
	tokensHour := atomic.LoadInt64(&m.tokensHour)
	tokensDay := atomic.LoadInt64(&m.tokensDay)
	costDay := float64(atomic.LoadInt64(&m.costDay)) / costScale

	status := BudgetStatus{
		TokensUsedMinute: tokensMinute,
		TokensUsedHour:   tokensHour,
		TokensUsedDay:    tokensDay,
		CostUsedDay:      costDay,
	}
	if m.config.MaxTokensPerMinute > 0 {
		status.MinuteUtilization = float64(tokensMinute) / float64(m.config.MaxTokensPerMinute)
	}
	if m.config.MaxTokensPerHour > 0 {
		status.HourUtilization = float64(tokensHour) / float64(m.config.MaxTokensPerHour)
	}
	if m.config.MaxTokensPerDay > 0 {
		status.DayUtilization = float64(tokensDay) / float64(m.config.MaxTokensPerDay)
	}
	if m.config.MaxCostPerDay > 0 {
		status.CostUtilization = costDay / m.config.MaxCostPerDay
	}

	m.mu.RLock()
	if time.Now().Before(m.throttleUntil) {
		status.IsThrottled = true
		until := m.throttleUntil
		status.ThrottleUntil = &until
	}
	m.mu.RUnlock()

	return status
}

// Reset 清空计数器与窗口,主要用于测试。
func (m *BudgetManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.tokensMinute, 0)
	atomic.StoreInt64(&m.tokensHour, 0)
	atomic.StoreInt64(&m.tokensDay, 0)
	atomic.StoreInt64(&m.costDay, 0)

	now := time.Now()
	m.minuteStart = now
	m.hourStart = now
	m.dayStart = now.Truncate(24 * time.Hour)
	m.throttleUntil = time.Time{}

	m.alertedMinute = false
	m.alertedHour = false
	m.alertedDay = false
	m.alertedCost = false
}

func (m *BudgetManager) resetWindowsIfNeeded() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.minuteStart) >= time.Minute {
		atomic.StoreInt64(&m.tokensMinute, 0)
		m.minuteStart = now
		m.alertedMinute = false
	}
	if now.Sub(m.hourStart) >= time.Hour {
		atomic.StoreInt64(&m.tokensHour, 0)
		m.hourStart = now
		m.alertedHour = false
	}
	dayStart := now.Truncate(24 * time.Hour)
	if dayStart.After(m.dayStart) {
		atomic.StoreInt64(&m.tokensDay, 0)
		atomic.StoreInt64(&m.costDay, 0)
		m.dayStart = dayStart
		m.alertedDay = false
		m.alertedCost = false
	}
}

func (m *BudgetManager) applyThrottle() {
	if !m.config.AutoThrottle {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.throttleUntil = time.Now().Add(m.config.ThrottleDelay)
	m.logger.Warn("throttling applied", zap.Time("until", m.throttleUntil))
}

func (m *BudgetManager) checkAlerts() {
	m.mu.Lock()
	defer m.mu.Unlock()

	threshold := m.config.AlertThreshold
	if threshold <= 0 {
		return
	}

	if m.config.MaxTokensPerMinute > 0 {
		util := float64(atomic.LoadInt64(&m.tokensMinute)) / float64(m.config.MaxTokensPerMinute)
		if util >= threshold && !m.alertedMinute {
			m.alertedMinute = true
			m.fireAlert(Alert{
				Type: AlertTokenMinute, Message: "minute token usage threshold exceeded",
				Threshold: threshold, Current: util, Timestamp: time.Now(),
			})
		}
	}
	if m.config.MaxTokensPerHour > 0 {
		util := float64(atomic.LoadInt64(&m.tokensHour)) / float64(m.config.MaxTokensPerHour)
		if util >= threshold && !m.alertedHour {
			m.alertedHour = true
			m.fireAlert(Alert{
				Type: AlertTokenHour, Message: "hour token usage threshold exceeded",
				Threshold: threshold, Current: util, Timestamp: time.Now(),
			})
		}
	}
	if m.config.MaxTokensPerDay > 0 {
		util := float64(atomic.LoadInt64(&m.tokensDay)) / float64(m.config.MaxTokensPerDay)
		if util >= threshold && !m.alertedDay {
			m.alertedDay = true
			m.fireAlert(Alert{
				Type: AlertTokenDay, Message: "day token usage threshold exceeded",
				Threshold: threshold, Current: util, Timestamp: time.Now(),
			})
		}
	}
	if m.config.MaxCostPerDay > 0 {
		util := float64(atomic.LoadInt64(&m.costDay)) / costScale / m.config.MaxCostPerDay
		if util >= threshold && !m.alertedCost {
			m.alertedCost = true
			m.fireAlert(Alert{
				Type: AlertCostDay, Message: "daily cost threshold exceeded",
				Threshold: threshold, Current: util, Timestamp: time.Now(),
			})
		}
	}
}

func (m *BudgetManager) fireAlert(alert Alert) {
	m.logger.Warn("budget alert",
		zap.String("type", string(alert.Type)),
		zap.String("message", alert.Message),
		zap.Float64("threshold", alert.Threshold),
		zap.Float64("current", alert.Current))

	for _, handler := range m.alertHandlers {
		go handler(alert)
	}
}
