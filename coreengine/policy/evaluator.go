package policy

import (
	"fmt"
	"strings"
)

// TriggeredRule records a rule whose condition held.
type TriggeredRule struct {
	RuleID      string      `json:"rule_id"`
	Action      string      `json:"action"`
	Class       ActionClass `json:"class"`
	Level       string      `json:"level,omitempty"`
	Description string      `json:"description,omitempty"`
}

// Result is the aggregate decision of one evaluation.
// EscalationLevel is empty when no triggered rule carries a level.
type Result struct {
	Passed             bool            `json:"passed"`
	RequiresApproval   bool            `json:"requires_approval"`
	EscalationRequired bool            `json:"escalation_required"`
	Blocked            bool            `json:"blocked"`
	TriggeredRules     []TriggeredRule `json:"triggered_rules"`
	EscalationLevel    string          `json:"escalation_level,omitempty"`
	Levels             []string        `json:"levels,omitempty"`
	Summary            string          `json:"summary"`
}

// Evaluate runs every rule against ctx and aggregates the triggered ones.
//
// A rule whose action keyword is unknown counts as requiring approval. Passed
// is true only when nothing blocking, escalating or approval-requiring fired;
// informational rules are reported but never fail the result.
func Evaluate(rules []Rule, ctx Context) *Result {
	result := &Result{TriggeredRules: []TriggeredRule{}}
	var levels []string
	seen := make(map[string]bool)

	for _, rule := range rules {
		if !EvaluateCondition(rule.Condition, ctx) {
			continue
		}
		class := ClassifyAction(rule.Action)
		result.TriggeredRules = append(result.TriggeredRules, TriggeredRule{
			RuleID:      rule.ID,
			Action:      rule.Action,
			Class:       class,
			Level:       rule.Level,
			Description: rule.Description,
		})

		switch class {
		case ActionBlock:
			result.Blocked = true
		case ActionEscalate:
			result.EscalationRequired = true
		case ActionRequireApproval:
			result.RequiresApproval = true
		}

		if level := strings.TrimSpace(rule.Level); level != "" && !seen[strings.ToLower(level)] {
			seen[strings.ToLower(level)] = true
			levels = append(levels, level)
		}
	}

	result.Passed = !result.Blocked && !result.EscalationRequired && !result.RequiresApproval
	result.Levels = levels
	result.EscalationLevel = HighestAuthority(levels)
	result.Summary = summarize(result)
	return result
}

// Failed reports whether the result is present and did not pass.
func (r *Result) Failed() bool {
	return r != nil && !r.Passed
}

// RuleIDs returns the ids of the triggered rules in evaluation order.
func (r *Result) RuleIDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.TriggeredRules))
	for _, t := range r.TriggeredRules {
		ids = append(ids, t.RuleID)
	}
	return ids
}

func summarize(r *Result) string {
	n := len(r.TriggeredRules)
	ids := strings.Join(r.RuleIDs(), ", ")
	switch {
	case n == 0:
		return "All policy rules passed"
	case r.Passed:
		return fmt.Sprintf("All policy rules passed (%d informational: %s)", n, ids)
	default:
		return fmt.Sprintf("%d rule(s) triggered: %s", n, ids)
	}
}
