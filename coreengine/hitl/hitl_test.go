package hitl

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestClassifyName(t *testing.T) {
	tests := []struct {
		name string
		want ActionClass
	}{
		{"calculate_variance", ClassCompute},
		{"compute_tax", ClassCompute},
		{"estimate_refund", ClassCompute},
		{"get_invoice", ClassRead},
		{"list_vendors", ClassRead},
		{"fetch_employee", ClassRead},
		{"search_tickets", ClassRead},
		{"find_order", ClassRead},
		{"query_ledger", ClassRead},
		{"check_sla", ClassRead},
		{"retrieve_contract", ClassRead},
		{"describe_plan", ClassRead},
		{"show_balance", ClassRead},
		{"count_open_items", ClassRead},
		{"filter_transactions", ClassRead},
		{"compare_quotes", ClassRead},
		{"lookup_customer", ClassRead},
		{"inspect_account", ClassRead},
		{"validate_iban", ClassRead},
		{"preview_migration", ClassRead},
		{"GET_INVOICE", ClassRead},
		{"get-invoice", ClassRead},
		{"create_invoice", ClassMutate},
		{"update_vendor", ClassMutate},
		{"delete_record", ClassMutate},
		{"approve_expense", ClassMutate},
		{"send_email", ClassMutate},
		{"escalate_ticket", ClassMutate},
		{"transfer_funds", ClassMutate},
		{"invoice_commit", ClassMutate},
		{"ticketescalation", ClassMutate},
		{"frobnicate_widget", ClassMutate},
		{"getaway_plan", ClassMutate},
		{"", ClassMutate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyName(tt.name))
		})
	}
}

func TestClassifyName_NeverDefaultsToRead(t *testing.T) {
	unknown := []string{"frobnicate_widget", "widgetize", "zz", "x_y_z", "getx"}
	for _, name := range unknown {
		assert.Equal(t, ClassMutate, ClassifyName(name), name)
	}
}

func TestClassifier_Explain(t *testing.T) {
	c := NewClassifier(nil)
	assert.Equal(t, RuleComputePrefix, c.Explain("compute_total").Rule)
	assert.Equal(t, RuleReadPrefix, c.Explain("get_total").Rule)
	assert.Equal(t, RuleMutatePrefix, c.Explain("create_total").Rule)
	assert.Equal(t, RuleMutateFragment, c.Explain("ledger_commit").Rule)
	assert.Equal(t, RuleDefault, c.Explain("frobnicate_widget").Rule)
}

func TestClassifier_Overrides(t *testing.T) {
	c := NewClassifier(map[string]ActionClass{
		"Frobnicate_Widget": ClassRead,
		"bogus":             ActionClass("sideways"),
	})

	assert.Equal(t, ClassRead, c.Classify("frobnicate_widget"))
	assert.Equal(t, RuleOverride, c.Explain("frobnicate_widget").Rule)
	assert.Equal(t, ClassMutate, c.Classify("bogus"))
	assert.Len(t, c.Overrides(), 1)

	c.Seed(map[string]ActionClass{"get_secret_and_delete": "MUTATE"})
	assert.Equal(t, ClassMutate, c.Classify("get_secret_and_delete"))

	other := NewClassifier(nil)
	assert.Equal(t, ClassMutate, other.Classify("frobnicate_widget"), "overrides are per instance")
}

func TestClassifier_ConcurrentSeedAndClassify(t *testing.T) {
	c := NewClassifier(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Seed(map[string]ActionClass{"ping": ClassRead})
		}()
		go func() {
			defer wg.Done()
			_ = c.Classify("ping")
		}()
	}
	wg.Wait()
	assert.Equal(t, ClassRead, c.Classify("ping"))
}

func TestParseActionClass(t *testing.T) {
	class, ok := ParseActionClass(" Compute ")
	assert.True(t, ok)
	assert.Equal(t, ClassCompute, class)
	_, ok = ParseActionClass("write")
	assert.False(t, ok)
}

// =============================================================================
// GATE TESTS
// =============================================================================

func TestMutatingActions(t *testing.T) {
	actions := ActionsFromNames("get_invoice", "create_invoice", "calculate_total", "send_email", "create_invoice", " ", "frobnicate_widget")
	assert.Equal(t, []string{"create_invoice", "send_email", "frobnicate_widget"}, MutatingActions(actions))
	assert.Empty(t, MutatingActions(nil))
}

func TestMutatingActions_IgnoresInstanceOverrides(t *testing.T) {
	c := NewClassifier(nil)
	c.Seed(map[string]ActionClass{"sync_ledger": ClassRead})
	actions := ActionsFromNames("sync_ledger")

	assert.Empty(t, c.MutatingActions(actions))
	assert.Equal(t, []string{"sync_ledger"}, MutatingActions(actions))

	fires, _ := CheckApprovalGate(process.StateApprovalGate, actions, nil, "general")
	assert.True(t, fires)
}

func TestCheckApprovalGate(t *testing.T) {
	actions := []Action{{Name: "create_invoice"}}

	fires, text := CheckApprovalGate("APPROVAL_GATE", actions, nil, "expense_approval")
	assert.True(t, fires)
	assert.Contains(t, text, "create_invoice")
	assert.Contains(t, text, "expense_approval")

	fires, text = CheckApprovalGate("ASSESS", actions, nil, "expense_approval")
	assert.False(t, fires)
	assert.Empty(t, text)
}

func TestCheckApprovalGate_NothingToBlock(t *testing.T) {
	actions := ActionsFromNames("get_invoice", "calculate_total")
	fires, text := CheckApprovalGate(process.StateApprovalGate, actions, nil, "expense_approval")
	assert.False(t, fires)
	assert.Empty(t, text)

	fires, _ = CheckApprovalGate(process.StateApprovalGate, nil, nil, "expense_approval")
	assert.False(t, fires)
}

func TestEvaluate_SplitsAllowedAndBlocked(t *testing.T) {
	c := NewClassifier(nil)
	actions := ActionsFromNames("get_invoice", "create_invoice", "calculate_total", "approve_expense")

	d := c.Evaluate(process.StateApprovalGate, actions, nil, "expense_approval")
	require.True(t, d.Fires)
	assert.Equal(t, []string{"create_invoice", "approve_expense"}, d.BlockedActions)
	assert.Equal(t, []string{"get_invoice", "calculate_total"}, d.AllowedActions)

	d = c.Evaluate(process.StateMutate, actions, nil, "expense_approval")
	assert.False(t, d.Fires)
	assert.Empty(t, d.BlockedActions)
	assert.Len(t, d.AllowedActions, 4)
}

func TestBlockText_IncludesFailedPolicy(t *testing.T) {
	result := policy.Evaluate([]policy.Rule{
		{ID: "R1", Condition: "amount > 500", Action: "require_approval", Level: "manager", Description: "Over 500 needs a manager"},
		{ID: "R2", Condition: "amount > 5000", Action: "require_approval", Level: "cfo"},
	}, policy.Context{"amount": 7000})

	fires, text := CheckApprovalGate(process.StateApprovalGate, ActionsFromNames("create_payment"), result, "expense_approval")
	require.True(t, fires)
	assert.Contains(t, text, "create_payment")
	assert.Contains(t, text, "2 rule(s) triggered: R1, R2")
	assert.Contains(t, text, "R1 [require_approval, level manager]: Over 500 needs a manager")
	assert.Contains(t, text, "Required authority: cfo")
}

func TestBlockText_OmitsPassedPolicy(t *testing.T) {
	passed := &policy.Result{Passed: true, Summary: "All policy rules passed"}
	text := BlockText([]string{"create_invoice"}, passed, "")
	assert.NotContains(t, text, "Policy:")
	assert.Contains(t, text, "Blocked actions (1)")
}
