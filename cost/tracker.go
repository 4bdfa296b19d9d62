package cost

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ModelUsage 单个模型的累计用量。
type ModelUsage struct {
	Cost             float64 `json:"cost"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Requests         int     `json:"requests"`
}

func (u *ModelUsage) add(other ModelUsage) {
	u.Cost += other.Cost
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.Requests += other.Requests
}

// Summary 按模型汇总的用量视图。
type Summary struct {
	TotalCost float64               `json:"total_cost"`
	ByModel   map[string]ModelUsage `json:"by_model"`
}

// Merge 合并另一份汇总,用于跨 agent 聚合。
func (s *Summary) Merge(other Summary) {
	if s.ByModel == nil {
		s.ByModel = make(map[string]ModelUsage)
	}
	s.TotalCost += other.TotalCost
	for model, usage := range other.ByModel {
		mu := s.ByModel[model]
		mu.add(usage)
		s.ByModel[model] = mu
	}
}

// String 渲染汇总,模型按名称排序,方便日志输出。
func (s Summary) String() string {
	if len(s.ByModel) == 0 {
		return "no usage recorded"
	}
	models := make([]string, 0, len(s.ByModel))
	for m := range s.ByModel {
		models = append(models, m)
	}
	sort.Strings(models)

	var b strings.Builder
	fmt.Fprintf(&b, "total cost: $%.5f", s.TotalCost)
	for _, m := range models {
		u := s.ByModel[m]
		fmt.Fprintf(&b, "\n  %s: $%.5f (prompt=%d completion=%d requests=%d)",
			m, u.Cost, u.PromptTokens, u.CompletionTokens, u.Requests)
	}
	return b.String()
}

// Breakdown 同时给出两份汇总:
// Actual 只统计真正发出的 API 调用,Total 把缓存命中也计入。
// 两者的差值即缓存节省的开销。
type Breakdown struct {
	Actual Summary `json:"actual"`
	Total  Summary `json:"total"`
}

// Tracker 按模型记录 token 用量与成本。
// 缓存命中的调用只进入 Total 视图,不进入 Actual 视图。
type Tracker struct {
	pricing *Pricing

	mu     sync.Mutex
	actual map[string]ModelUsage
	total  map[string]ModelUsage
}

// NewTracker 创建用量追踪器。pricing 为 nil 时使用默认价格表。
func NewTracker(pricing *Pricing) *Tracker {
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Tracker{
		pricing: pricing,
		actual:  make(map[string]ModelUsage),
		total:   make(map[string]ModelUsage),
	}
}

// Pricing 返回追踪器使用的价格表。
func (t *Tracker) Pricing() *Pricing { return t.pricing }

// Record 记录一次调用并返回其成本。
// cached 为 true 表示响应来自缓存,不产生实际 API 开销。
func (t *Tracker) Record(model string, promptTokens, completionTokens int, cached bool) float64 {
	spend := t.pricing.Calculate(model, promptTokens, completionTokens)
	usage := ModelUsage{
		Cost:             spend,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Requests:         1,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	mu := t.total[model]
	mu.add(usage)
	t.total[model] = mu

	if !cached {
		mu = t.actual[model]
		mu.add(usage)
		t.actual[model] = mu
	}
	return spend
}

// Actual 返回排除缓存命中的汇总。
func (t *Tracker) Actual() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.actual)
}

// Total 返回含缓存命中的汇总。
func (t *Tracker) Total() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return snapshot(t.total)
}

// Breakdown 返回两份视图的快照。
func (t *Tracker) Breakdown() Breakdown {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Breakdown{Actual: snapshot(t.actual), Total: snapshot(t.total)}
}

// Reset 清空所有记录。
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.actual = make(map[string]ModelUsage)
	t.total = make(map[string]ModelUsage)
}

func snapshot(m map[string]ModelUsage) Summary {
	s := Summary{ByModel: make(map[string]ModelUsage, len(m))}
	for model, usage := range m {
		s.ByModel[model] = usage
		s.TotalCost += usage.Cost
	}
	return s
}

// Gather 聚合多个追踪器的用量,用于统计一场会话中所有 agent 的总开销。
func Gather(trackers ...*Tracker) Breakdown {
	var out Breakdown
	for _, t := range trackers {
		if t == nil {
			continue
		}
		b := t.Breakdown()
		out.Actual.Merge(b.Actual)
		out.Total.Merge(b.Total)
	}
	return out
}
