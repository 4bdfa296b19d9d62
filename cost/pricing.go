package cost

import (
	"strings"
	"sync"
)

// ModelPrice 单个模型的价格,单位为每 1K token 的美元数。
type ModelPrice struct {
	Model       string  `json:"model" yaml:"model"`
	PriceInput  float64 `json:"price_input" yaml:"price_input"`
	PriceOutput float64 `json:"price_output" yaml:"price_output"`
}

// Pricing 维护模型价格表并计算调用成本。
// 查不到精确匹配时退回最长前缀匹配,
// 这样 "gpt-4o-2024-08-06" 之类带日期后缀的模型名也能命中 "gpt-4o"。
type Pricing struct {
	mu     sync.RWMutex
	prices map[string]ModelPrice
}

// NewPricing 创建空价格表。
func NewPricing() *Pricing {
	return &Pricing{prices: make(map[string]ModelPrice)}
}

// DefaultPricing 返回内置默认价格表(可被配置覆盖)。
func DefaultPricing() *Pricing {
	p := NewPricing()
	defaults := []ModelPrice{
		// OpenAI
		{Model: "gpt-4o", PriceInput: 0.005, PriceOutput: 0.015},
		{Model: "gpt-4o-mini", PriceInput: 0.00015, PriceOutput: 0.0006},
		{Model: "gpt-4.1", PriceInput: 0.002, PriceOutput: 0.008},
		{Model: "gpt-4-turbo", PriceInput: 0.01, PriceOutput: 0.03},
		{Model: "gpt-4", PriceInput: 0.03, PriceOutput: 0.06},
		{Model: "gpt-3.5-turbo", PriceInput: 0.0005, PriceOutput: 0.0015},
		{Model: "o1", PriceInput: 0.015, PriceOutput: 0.06},
		{Model: "o3-mini", PriceInput: 0.0011, PriceOutput: 0.0044},
		// DeepSeek
		{Model: "deepseek-chat", PriceInput: 0.00027, PriceOutput: 0.0011},
		{Model: "deepseek-reasoner", PriceInput: 0.00055, PriceOutput: 0.00219},
	}
	p.UpdatePrices(defaults)
	return p
}

// SetPrice 设置或覆盖单个模型的价格。
func (p *Pricing) SetPrice(model string, priceInput, priceOutput float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[model] = ModelPrice{Model: model, PriceInput: priceInput, PriceOutput: priceOutput}
}

// UpdatePrices 批量更新价格(来自配置文件或数据库)。
func (p *Pricing) UpdatePrices(prices []ModelPrice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, mp := range prices {
		p.prices[mp.Model] = mp
	}
}

// PriceFor 返回模型价格。先精确匹配,再退回最长前缀匹配。
func (p *Pricing) PriceFor(model string) (ModelPrice, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if mp, ok := p.prices[model]; ok {
		return mp, true
	}

	var best ModelPrice
	bestLen := 0
	for key, mp := range p.prices {
		if strings.HasPrefix(model, key) && len(key) > bestLen {
			best = mp
			bestLen = len(key)
		}
	}
	return best, bestLen > 0
}

// Calculate 按价格表计算一次调用的成本。未知模型返回 0。
func (p *Pricing) Calculate(model string, promptTokens, completionTokens int) float64 {
	mp, ok := p.PriceFor(model)
	if !ok {
		return 0
	}
	return float64(promptTokens)/1000*mp.PriceInput +
		float64(completionTokens)/1000*mp.PriceOutput
}
