package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTrackerRecord(t *testing.T) {
	p := NewPricing()
	p.SetPrice("m1", 0.001, 0.002)
	tr := NewTracker(p)

	spend := tr.Record("m1", 1000, 1000, false)
	assert.InDelta(t, 0.003, spend, 1e-9)

	actual := tr.Actual()
	total := tr.Total()
	assert.InDelta(t, 0.003, actual.TotalCost, 1e-9)
	assert.InDelta(t, 0.003, total.TotalCost, 1e-9)
	assert.Equal(t, 1, actual.ByModel["m1"].Requests)
}

func TestTrackerCachedOnlyCountsInTotal(t *testing.T) {
	p := NewPricing()
	p.SetPrice("m1", 0.001, 0.002)
	tr := NewTracker(p)

	tr.Record("m1", 1000, 1000, false)
	tr.Record("m1", 1000, 1000, true)

	actual := tr.Actual()
	total := tr.Total()

	assert.Equal(t, 1, actual.ByModel["m1"].Requests)
	assert.Equal(t, 2, total.ByModel["m1"].Requests)
	assert.InDelta(t, 0.003, actual.TotalCost, 1e-9)
	assert.InDelta(t, 0.006, total.TotalCost, 1e-9)
}

func TestTrackerSnapshotIsolation(t *testing.T) {
	tr := NewTracker(nil)
	tr.Record("gpt-4o", 100, 50, false)

	s := tr.Total()
	s.ByModel["gpt-4o"] = ModelUsage{Cost: 999}

	// 修改快照不影响追踪器内部状态
	assert.NotEqual(t, 999.0, tr.Total().ByModel["gpt-4o"].Cost)
}

func TestGather(t *testing.T) {
	p := NewPricing()
	p.SetPrice("m1", 0.001, 0.001)
	p.SetPrice("m2", 0.002, 0.002)

	t1 := NewTracker(p)
	t2 := NewTracker(p)
	t1.Record("m1", 1000, 0, false)
	t2.Record("m1", 1000, 0, false)
	t2.Record("m2", 1000, 0, true)

	b := Gather(t1, t2, nil)

	require.Contains(t, b.Total.ByModel, "m1")
	require.Contains(t, b.Total.ByModel, "m2")
	assert.Equal(t, 2, b.Total.ByModel["m1"].Requests)
	assert.Equal(t, 2, b.Actual.ByModel["m1"].Requests)
	assert.NotContains(t, b.Actual.ByModel, "m2")
	assert.InDelta(t, 0.002, b.Actual.TotalCost, 1e-9)
	assert.InDelta(t, 0.004, b.Total.TotalCost, 1e-9)
}

func TestSummaryString(t *testing.T) {
	var s Summary
	assert.Equal(t, "no usage recorded", s.String())

	s.Merge(Summary{TotalCost: 0.5, ByModel: map[string]ModelUsage{
		"b-model": {Cost: 0.2, PromptTokens: 10, CompletionTokens: 5, Requests: 1},
		"a-model": {Cost: 0.3, PromptTokens: 20, CompletionTokens: 8, Requests: 2},
	}})
	out := s.String()
	assert.Contains(t, out, "total cost: $0.50000")
	// 模型按字典序输出
	assert.Less(t, indexOf(out, "a-model"), indexOf(out, "b-model"))
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestTrackerConcurrent(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(cached bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record("gpt-4o", 10, 10, cached)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	total := tr.Total()
	actual := tr.Actual()
	assert.Equal(t, 800, total.ByModel["gpt-4o"].Requests)
	assert.Equal(t, 400, actual.ByModel["gpt-4o"].Requests)
}

func TestTrackerProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := NewPricing()
		p.SetPrice("m", 0.001, 0.002)
		tr := NewTracker(p)

		n := rapid.IntRange(0, 30).Draw(t, "n")
		for i := 0; i < n; i++ {
			prompt := rapid.IntRange(0, 5000).Draw(t, "prompt")
			completion := rapid.IntRange(0, 5000).Draw(t, "completion")
			cached := rapid.Bool().Draw(t, "cached")
			tr.Record("m", prompt, completion, cached)
		}

		actual := tr.Actual()
		total := tr.Total()

		// Total 视图永远覆盖 Actual 视图
		if actual.TotalCost > total.TotalCost+1e-9 {
			t.Fatalf("actual cost %f exceeds total cost %f", actual.TotalCost, total.TotalCost)
		}
		if actual.ByModel["m"].Requests > total.ByModel["m"].Requests {
			t.Fatalf("actual requests exceed total requests")
		}
		if total.ByModel["m"].Requests != n {
			t.Fatalf("total requests = %d, want %d", total.ByModel["m"].Requests, n)
		}

		// 汇总总成本等于各模型成本之和
		var sum float64
		for _, u := range total.ByModel {
			sum += u.Cost
		}
		if diff := total.TotalCost - sum; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("TotalCost %f != sum of models %f", total.TotalCost, sum)
		}
	})
}
