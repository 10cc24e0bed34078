// Package policy evaluates structured business rules against a flat context
// without involving a model.
//
// A rule pairs a small boolean condition with an action keyword and an
// approval authority level. Evaluation is deterministic: the same rules and
// context always yield the same Result.
//
// Key concepts:
//   - Rule: id, condition string, action keyword, authority level
//   - ActionClass: the closed set an action keyword resolves to
//   - Result: the aggregate decision over every triggered rule
package policy

import (
	"strings"
)

// Context is the flat mapping a condition is evaluated against. Nested maps are
// reachable through dotted field paths.
type Context map[string]any

// Rule is a single policy rule.
type Rule struct {
	ID          string `json:"id" yaml:"id"`
	Condition   string `json:"condition" yaml:"condition"`
	Action      string `json:"action" yaml:"action"`
	Level       string `json:"level,omitempty" yaml:"level,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// =============================================================================
// Action classification
// =============================================================================

// ActionClass is the category a rule's action keyword resolves to.
type ActionClass string

const (
	// ActionBlock forbids the workflow from proceeding.
	ActionBlock ActionClass = "block"
	// ActionRequireApproval requires a human decision before mutation.
	ActionRequireApproval ActionClass = "require_approval"
	// ActionEscalate hands the workflow to a higher authority.
	ActionEscalate ActionClass = "escalate"
	// ActionInformational records the rule without affecting the decision.
	ActionInformational ActionClass = "informational"
)

var actionFamilies = map[string]ActionClass{
	"block":      ActionBlock,
	"deny":       ActionBlock,
	"reject":     ActionBlock,
	"forbidden":  ActionBlock,
	"prohibited": ActionBlock,

	"require_approval":  ActionRequireApproval,
	"approve":           ActionRequireApproval,
	"approval_required": ActionRequireApproval,

	"escalate":            ActionEscalate,
	"escalation_required": ActionEscalate,
	"raise":               ActionEscalate,

	"warn":   ActionInformational,
	"flag":   ActionInformational,
	"notify": ActionInformational,
	"alert":  ActionInformational,
	"log":    ActionInformational,
	"audit":  ActionInformational,
}

// ClassifyAction maps an action keyword to its class. Matching ignores case and
// treats spaces and hyphens as underscores. Keywords outside every known family
// resolve to ActionRequireApproval so an unfamiliar action is never ignored.
func ClassifyAction(action string) ActionClass {
	if class, ok := actionFamilies[normalizeAction(action)]; ok {
		return class
	}
	return ActionRequireApproval
}

// IsKnownAction reports whether action belongs to a known family.
func IsKnownAction(action string) bool {
	_, ok := actionFamilies[normalizeAction(action)]
	return ok
}

var actionSeparators = strings.NewReplacer(" ", "_", "-", "_")

func normalizeAction(action string) string {
	return actionSeparators.Replace(strings.ToLower(strings.TrimSpace(action)))
}

// =============================================================================
// Authority levels
// =============================================================================

// authorityOrder lists approval authorities from lowest to highest.
var authorityOrder = []string{
	"manager",
	"supervisor",
	"hr",
	"finance",
	"committee",
	"legal",
	"vp",
	"director",
	"cfo",
	"ciso",
	"ceo",
	"board",
}

// AuthorityRank returns the position of level in the authority ordering.
// The second return is false for levels outside the ordering.
func AuthorityRank(level string) (int, bool) {
	key := strings.ToLower(strings.TrimSpace(level))
	for i, l := range authorityOrder {
		if l == key {
			return i, true
		}
	}
	return -1, false
}

// HighestAuthority picks the escalation level for a set of triggered levels.
// The highest known authority wins. When none of the levels is known, the
// first non-empty level is returned as given. Empty input yields "".
func HighestAuthority(levels []string) string {
	best, bestRank := "", -1
	firstUnknown := ""
	for _, level := range levels {
		trimmed := strings.TrimSpace(level)
		if trimmed == "" {
			continue
		}
		rank, known := AuthorityRank(trimmed)
		if !known {
			if firstUnknown == "" {
				firstUnknown = trimmed
			}
			continue
		}
		if rank > bestRank {
			best, bestRank = authorityOrder[rank], rank
		}
	}
	if best != "" {
		return best
	}
	return firstUnknown
}
