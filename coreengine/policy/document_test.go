package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument_JSON(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
		"rules": [
			{"id": "R1", "condition": "amount > 500", "action": "require_approval", "level": "manager", "description": "over 500"},
			{"ruleId": "R2", "condition": "amount > 5000", "action": "escalate", "escalationLevel": "cfo"},
			{"condition": "vendor_new", "action": "flag", "message": "new vendor"},
			{"id": "no-condition", "action": "block"}
		],
		"context": {"amount": 6000, "vendor_new": true}
	}`))
	require.NoError(t, err)
	require.Len(t, doc.Rules, 3)

	assert.Equal(t, "R1", doc.Rules[0].ID)
	assert.Equal(t, "manager", doc.Rules[0].Level)
	assert.Equal(t, "R2", doc.Rules[1].ID)
	assert.Equal(t, "cfo", doc.Rules[1].Level)
	assert.Equal(t, "rule_3", doc.Rules[2].ID)
	assert.Equal(t, "new vendor", doc.Rules[2].Description)

	result := doc.Evaluate()
	assert.True(t, result.EscalationRequired)
	assert.Equal(t, "cfo", result.EscalationLevel)
	assert.Len(t, result.TriggeredRules, 3)
}

func TestParseDocument_YAML(t *testing.T) {
	doc, err := ParseDocument([]byte(`
rules:
  - id: offboard-equity
    condition: has_unvested_equity
    action: escalate
    level: legal
context:
  has_unvested_equity: true
`))
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	assert.True(t, doc.Evaluate().EscalationRequired)
}

func TestParseDocument_BareRuleList(t *testing.T) {
	doc, err := ParseDocument([]byte(`[{"id": "a", "condition": "x", "action": "warn"}]`))
	require.NoError(t, err)
	require.Len(t, doc.Rules, 1)
	assert.Empty(t, doc.Context)
}

func TestParseDocument_Errors(t *testing.T) {
	_, err := ParseDocument(nil)
	assert.ErrorIs(t, err, ErrEmptyDocument)

	_, err = ParseDocument([]byte(`{"rules": "nope"}`))
	assert.Error(t, err)

	_, err = ParseDocument([]byte(`"just a string"`))
	assert.Error(t, err)

	_, err = ParseDocument([]byte(`{"rules": [`))
	assert.Error(t, err)
}

func TestRule_ToMapRoundTrip(t *testing.T) {
	rule := Rule{ID: "R1", Condition: "a", Action: "warn", Level: "hr", Description: "d"}
	assert.Equal(t, rule, RuleFromMap(rule.ToMap()))
}
