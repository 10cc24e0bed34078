package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CONSUMPTION TESTS
// =============================================================================

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"héllo", 2},
		{strings.Repeat("x", 400), 100},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, EstimateTokens(tt.text), tt.text)
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Capacity())
	assert.Equal(t, DefaultCapacity, New(-5).Capacity())
	assert.Equal(t, 42, New(42).Capacity())
}

func TestConsume_Monotonic(t *testing.T) {
	b := New(50)
	texts := []string{"a", "some text", strings.Repeat("y", 90), "more", strings.Repeat("z", 300)}

	prevConsumed, prevRemaining := b.Consumed(), b.Remaining()
	for _, text := range texts {
		charged := b.Consume(text, "ASSESS")
		assert.Positive(t, charged)
		assert.Greater(t, b.Consumed(), prevConsumed)
		assert.LessOrEqual(t, b.Remaining(), prevRemaining)
		prevConsumed, prevRemaining = b.Consumed(), b.Remaining()
	}
	assert.Equal(t, 0, b.Remaining())
	assert.Greater(t, b.FractionUsed(), 1.0)
}

func TestConsume_IgnoresEmptyAndNegative(t *testing.T) {
	b := New(100)
	assert.Equal(t, 0, b.Consume("", "ASSESS"))
	b.ConsumeTokens(-10, "ASSESS")
	assert.Equal(t, 0, b.Consumed())
	assert.Empty(t, b.ConsumedByPhase())
}

func TestConsumedByPhase(t *testing.T) {
	b := New(100)
	b.Consume("abcdefgh", "assess")
	b.Consume("abcd", " ASSESS ")
	b.ConsumeTokens(3, "")

	phases := b.ConsumedByPhase()
	assert.Equal(t, map[string]int{"ASSESS": 3, "UNSPECIFIED": 3}, phases)

	phases["ASSESS"] = 999
	assert.Equal(t, 3, b.ConsumedByPhase()["ASSESS"])
}

func TestShouldSkipLLM_StaysTrue(t *testing.T) {
	b := New(10)
	assert.False(t, b.ShouldSkipLLM())

	b.ConsumeTokens(9, "EXECUTE")
	assert.False(t, b.ShouldSkipLLM())

	b.ConsumeTokens(1, "EXECUTE")
	require.True(t, b.ShouldSkipLLM())

	b.Consume("", "EXECUTE")
	b.ConsumeTokens(-100, "EXECUTE")
	b.Consume("x", "EXECUTE")
	assert.True(t, b.ShouldSkipLLM())
	assert.Equal(t, 0, b.Remaining())
}

// =============================================================================
// DECISION TESTS
// =============================================================================

func TestRecommendMaxOutput(t *testing.T) {
	tests := []struct {
		name     string
		consumed int
		phase    string
		want     int
	}{
		{"full active", 0, "EXECUTE", 4096},
		{"full passive", 0, "COMPLETE", 1024},
		{"mid active", 7000, "MUTATE", 1500},
		{"mid passive", 7900, "POLICY_CHECK", 700},
		{"low", 8500, "EXECUTE", 512},
		{"very low", 9900, "EXECUTE", MinOutputTokens},
		{"exhausted", 20000, "EXECUTE", MinOutputTokens},
		{"lowercase phase", 0, "compute", 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(10000)
			b.ConsumeTokens(tt.consumed, tt.phase)
			assert.Equal(t, tt.want, b.RecommendMaxOutput(tt.phase))
		})
	}
}

func TestRecommendModel(t *testing.T) {
	tests := []struct {
		name     string
		consumed int
		phase    string
		task     string
		want     Tier
	}{
		{"strong phase complex task", 0, "COMPUTE", "Reconcile the March invoices", TierStrong},
		{"strong phase simple task", 0, "COMPUTE", "Pay the bill", TierFast},
		{"execute complex", 0, "EXECUTE", "Investigate the root cause", TierStrong},
		{"fast phase complex task", 0, "ASSESS", "Reconcile the March invoices", TierFast},
		{"unknown phase", 0, "DANCE", "forecast revenue", TierFast},
		{"at cheap threshold", 80, "COMPUTE", "Reconcile the March invoices", TierFast},
		{"just below threshold", 79, "COMPUTE", "Reconcile the March invoices", TierStrong},
		{"exhausted", 500, "MUTATE", "diagnose", TierFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(100)
			b.ConsumeTokens(tt.consumed, "SETUP")
			assert.Equal(t, tt.want, b.RecommendModel(tt.phase, tt.task))
		})
	}
}

func TestModelFor(t *testing.T) {
	assert.Equal(t, "big", ModelFor(TierStrong, "small", "big"))
	assert.Equal(t, "small", ModelFor(TierFast, "small", "big"))
	assert.Equal(t, "small", ModelFor(TierStrong, "small", ""))
}

func TestCapPrompt(t *testing.T) {
	b := New(10)
	short := strings.Repeat("a", 40)
	assert.Equal(t, short, b.CapPrompt(short, "ASSESS"))

	long := strings.Repeat("b", 50)
	capped := b.CapPrompt(long, "assess")
	assert.Equal(t, strings.Repeat("b", 40)+"\n[truncated: 10 tokens remaining]", capped)
	assert.Equal(t, map[string]int{"ASSESS": 1}, b.Report().Truncations)
}

func TestCapPrompt_ExhaustedBudget(t *testing.T) {
	b := New(10)
	b.ConsumeTokens(50, "EXECUTE")
	assert.Equal(t, "\n[truncated: 0 tokens remaining]", b.CapPrompt("hello", "EXECUTE"))
	assert.Equal(t, "", b.CapPrompt("", "EXECUTE"))
}

func TestCapPrompt_RuneSafe(t *testing.T) {
	b := New(1)
	capped := b.CapPrompt("ééééé", "ASSESS")
	assert.True(t, strings.HasPrefix(capped, "éééé\n"))
}

func TestEfficiencyHint(t *testing.T) {
	b := New(100)
	assert.Empty(t, b.EfficiencyHint())

	b.ConsumeTokens(50, "ASSESS")
	assert.Contains(t, b.EfficiencyHint(), "Half the budget")

	b.ConsumeTokens(30, "ASSESS")
	assert.Contains(t, b.EfficiencyHint(), "nearly exhausted (20 tokens left)")
}

// =============================================================================
// REPORT TESTS
// =============================================================================

func TestReport(t *testing.T) {
	b := New(100)
	b.Consume("abcdefgh", "assess")
	b.ConsumeTokens(3, "")

	r := b.Report()
	assert.Equal(t, 100, r.Capacity)
	assert.Equal(t, 5, r.Consumed)
	assert.Equal(t, 95, r.Remaining)
	assert.False(t, r.Exhausted)
	assert.Empty(t, r.Truncations)
	assert.Equal(t, "5/100 tokens (5%) [ASSESS=2 UNSPECIFIED=3]", r.String())
}
