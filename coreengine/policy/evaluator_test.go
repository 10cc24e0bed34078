package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ACTION CLASSIFICATION TESTS
// =============================================================================

func TestClassifyAction(t *testing.T) {
	tests := []struct {
		action string
		want   ActionClass
	}{
		{"block", ActionBlock},
		{"DENY", ActionBlock},
		{"reject", ActionBlock},
		{"forbidden", ActionBlock},
		{"prohibited", ActionBlock},
		{"require_approval", ActionRequireApproval},
		{"require approval", ActionRequireApproval},
		{"approval-required", ActionRequireApproval},
		{"approve", ActionRequireApproval},
		{"escalate", ActionEscalate},
		{"Escalation_Required", ActionEscalate},
		{"raise", ActionEscalate},
		{"warn", ActionInformational},
		{"flag", ActionInformational},
		{"notify", ActionInformational},
		{"alert", ActionInformational},
		{"log", ActionInformational},
		{" audit ", ActionInformational},
		{"some_future_keyword", ActionRequireApproval},
		{"", ActionRequireApproval},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyAction(tt.action))
		})
	}
}

func TestIsKnownAction(t *testing.T) {
	assert.True(t, IsKnownAction("Escalate"))
	assert.False(t, IsKnownAction("some_future_keyword"))
}

// =============================================================================
// AUTHORITY TESTS
// =============================================================================

func TestHighestAuthority(t *testing.T) {
	tests := []struct {
		name   string
		levels []string
		want   string
	}{
		{"empty", nil, ""},
		{"single", []string{"manager"}, "manager"},
		{"ordering", []string{"cfo", "manager", "legal"}, "cfo"},
		{"board beats ceo", []string{"ceo", "board"}, "board"},
		{"case insensitive", []string{"CFO", "vp"}, "cfo"},
		{"known beats unknown", []string{"regional_lead", "finance"}, "finance"},
		{"unknown surfaced when alone", []string{"regional_lead"}, "regional_lead"},
		{"blank ignored", []string{"", "  "}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HighestAuthority(tt.levels))
		})
	}
}

func TestAuthorityRank_Ordering(t *testing.T) {
	order := []string{"manager", "supervisor", "hr", "finance", "committee", "legal", "vp", "director", "cfo", "ciso", "ceo", "board"}
	for i := 1; i < len(order); i++ {
		lo, ok := AuthorityRank(order[i-1])
		require.True(t, ok)
		hi, ok := AuthorityRank(order[i])
		require.True(t, ok)
		assert.Less(t, lo, hi, "%s should rank below %s", order[i-1], order[i])
	}
	_, ok := AuthorityRank("intern")
	assert.False(t, ok)
}

// =============================================================================
// EVALUATE TESTS
// =============================================================================

func TestEvaluate_NoRules(t *testing.T) {
	result := Evaluate(nil, Context{"amount": 1})
	assert.True(t, result.Passed)
	assert.Empty(t, result.TriggeredRules)
	assert.Empty(t, result.EscalationLevel)
	assert.Equal(t, "All policy rules passed", result.Summary)
}

func TestEvaluate_ExpenseScenario(t *testing.T) {
	rules := []Rule{
		{ID: "R1", Condition: "amount > 500", Action: "require_approval", Level: "manager", Description: "Expenses over 500 need a manager"},
		{ID: "R2", Condition: "amount > 5000", Action: "escalate", Level: "cfo", Description: "Large expenses go to the CFO"},
		{ID: "R3", Condition: "!has_receipt", Action: "block", Description: "Receipts are mandatory"},
		{ID: "R4", Condition: "category == travel", Action: "log"},
	}

	t.Run("under threshold", func(t *testing.T) {
		result := Evaluate(rules, Context{"amount": 200, "has_receipt": true, "category": "meals"})
		assert.True(t, result.Passed)
		assert.Empty(t, result.TriggeredRules)
	})

	t.Run("approval only", func(t *testing.T) {
		result := Evaluate(rules, Context{"amount": 900, "has_receipt": true})
		assert.False(t, result.Passed)
		assert.True(t, result.RequiresApproval)
		assert.False(t, result.EscalationRequired)
		assert.False(t, result.Blocked)
		assert.Equal(t, "manager", result.EscalationLevel)
		assert.Equal(t, "1 rule(s) triggered: R1", result.Summary)
	})

	t.Run("escalation picks highest level", func(t *testing.T) {
		result := Evaluate(rules, Context{"amount": 9000, "has_receipt": true})
		assert.False(t, result.Passed)
		assert.True(t, result.RequiresApproval)
		assert.True(t, result.EscalationRequired)
		assert.Equal(t, "cfo", result.EscalationLevel)
		assert.Equal(t, []string{"R1", "R2"}, result.RuleIDs())
		assert.Equal(t, []string{"manager", "cfo"}, result.Levels)
	})

	t.Run("block", func(t *testing.T) {
		result := Evaluate(rules, Context{"amount": 10, "has_receipt": false})
		assert.False(t, result.Passed)
		assert.True(t, result.Blocked)
		assert.Equal(t, ActionBlock, result.TriggeredRules[0].Class)
	})

	t.Run("informational only still passes", func(t *testing.T) {
		result := Evaluate(rules, Context{"amount": 10, "has_receipt": true, "category": "travel"})
		assert.True(t, result.Passed)
		require.Len(t, result.TriggeredRules, 1)
		assert.Equal(t, ActionInformational, result.TriggeredRules[0].Class)
		assert.Contains(t, result.Summary, "R4")
	})
}

func TestEvaluate_UnknownActionRequiresApproval(t *testing.T) {
	rules := []Rule{{ID: "future", Condition: "amount > 1", Action: "some_future_keyword"}}
	result := Evaluate(rules, Context{"amount": 5})
	assert.False(t, result.Passed)
	assert.True(t, result.RequiresApproval)
	assert.Equal(t, ActionRequireApproval, result.TriggeredRules[0].Class)
	assert.Equal(t, "some_future_keyword", result.TriggeredRules[0].Action)
}

func TestEvaluate_UnknownLevelSurfaced(t *testing.T) {
	rules := []Rule{{ID: "x", Condition: "flag", Action: "escalate", Level: "regional_lead"}}
	result := Evaluate(rules, Context{"flag": true})
	assert.Equal(t, "regional_lead", result.EscalationLevel)
}

func TestEvaluate_MalformedConditionDoesNotTrigger(t *testing.T) {
	rules := []Rule{
		{ID: "bad", Condition: "amount >>> 5 &&", Action: "block"},
		{ID: "good", Condition: "amount > 5", Action: "warn"},
	}
	result := Evaluate(rules, Context{"amount": 50})
	assert.True(t, result.Passed)
	assert.Equal(t, []string{"good"}, result.RuleIDs())
}

func TestResult_Failed(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.Failed())
	assert.Nil(t, nilResult.RuleIDs())
	assert.True(t, (&Result{Passed: false}).Failed())
	assert.False(t, (&Result{Passed: true}).Failed())
}
