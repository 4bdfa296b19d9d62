package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingExactMatch(t *testing.T) {
	p := DefaultPricing()
	mp, ok := p.PriceFor("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 0.005, mp.PriceInput)
	assert.Equal(t, 0.015, mp.PriceOutput)
}

func TestPricingPrefixFallback(t *testing.T) {
	p := DefaultPricing()

	// 带日期后缀的模型名退回前缀价格
	mp, ok := p.PriceFor("gpt-4o-2024-08-06")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o", mp.Model)

	// 最长前缀优先:gpt-4o-mini-xxx 命中 gpt-4o-mini 而不是 gpt-4o
	mp, ok = p.PriceFor("gpt-4o-mini-2024-07-18")
	require.True(t, ok)
	assert.Equal(t, "gpt-4o-mini", mp.Model)
}

func TestPricingUnknownModel(t *testing.T) {
	p := DefaultPricing()
	_, ok := p.PriceFor("totally-unknown-model")
	assert.False(t, ok)
	assert.Zero(t, p.Calculate("totally-unknown-model", 1000, 1000))
}

func TestPricingCalculate(t *testing.T) {
	p := NewPricing()
	p.SetPrice("test-model", 0.002, 0.004)

	// 1500 prompt + 500 completion = 1.5*0.002 + 0.5*0.004
	got := p.Calculate("test-model", 1500, 500)
	assert.InDelta(t, 0.005, got, 1e-9)
}

func TestPricingOverride(t *testing.T) {
	p := DefaultPricing()
	p.SetPrice("gpt-4o", 0.001, 0.002)
	mp, ok := p.PriceFor("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 0.001, mp.PriceInput)
}
