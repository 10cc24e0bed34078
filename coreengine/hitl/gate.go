package hitl

import (
	"fmt"
	"strings"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// Action is an action offered to the agent.
type Action struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ActionsFromNames wraps plain names as Actions.
func ActionsFromNames(names ...string) []Action {
	out := make([]Action, 0, len(names))
	for _, n := range names {
		out = append(out, Action{Name: n})
	}
	return out
}

// GateDecision is the outcome of checking the approval gate.
type GateDecision struct {
	Fires          bool          `json:"fires"`
	State          process.State `json:"state"`
	ProcessType    string        `json:"process_type"`
	BlockedActions []string      `json:"blocked_actions"`
	AllowedActions []string      `json:"allowed_actions"`
	BlockText      string        `json:"block_text,omitempty"`
}

// MutatingActions returns the names classified as mutate, in input order and
// without duplicates. Blank names are skipped.
func (c *Classifier) MutatingActions(actions []Action) []string {
	out := []string{}
	for _, name := range uniqueNames(actions) {
		if c.Classify(name) == ClassMutate {
			out = append(out, name)
		}
	}
	return out
}

func uniqueNames(actions []Action) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, a := range actions {
		name := strings.TrimSpace(a.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Evaluate checks the gate. It fires only at APPROVAL_GATE and only when at
// least one action is mutating; with nothing to block it never fires.
func (c *Classifier) Evaluate(state process.State, actions []Action, result *policy.Result, processType string) GateDecision {
	decision := GateDecision{
		State:          state,
		ProcessType:    processType,
		BlockedActions: []string{},
		AllowedActions: []string{},
	}

	names := uniqueNames(actions)
	mutating := c.MutatingActions(actions)
	if state != process.StateApprovalGate || len(mutating) == 0 {
		decision.AllowedActions = names
		return decision
	}

	blocked := make(map[string]bool, len(mutating))
	for _, name := range mutating {
		blocked[name] = true
	}
	for _, name := range names {
		if !blocked[name] {
			decision.AllowedActions = append(decision.AllowedActions, name)
		}
	}

	decision.Fires = true
	decision.BlockedActions = mutating
	decision.BlockText = BlockText(mutating, result, processType)
	return decision
}

// CheckApprovalGate reports whether the gate fires and, if so, the text that
// explains the block.
func (c *Classifier) CheckApprovalGate(state process.State, actions []Action, result *policy.Result, processType string) (bool, string) {
	d := c.Evaluate(state, actions, result, processType)
	return d.Fires, d.BlockText
}

// MutatingActions filters actions with the static rules only.
func MutatingActions(actions []Action) []string {
	return NewClassifier(nil).MutatingActions(actions)
}

// CheckApprovalGate checks the gate with the static rules only.
func CheckApprovalGate(state process.State, actions []Action, result *policy.Result, processType string) (bool, string) {
	return NewClassifier(nil).CheckApprovalGate(state, actions, result, processType)
}

// BlockText renders the instruction shown while the gate holds. It lists every
// blocked action and, for a failed policy result, the rules that triggered.
func BlockText(blocked []string, result *policy.Result, processType string) string {
	var b strings.Builder

	b.WriteString("APPROVAL GATE: state-changing actions are blocked until a human approves")
	if processType != "" {
		fmt.Fprintf(&b, " (process: %s", processType)
		if def := process.DefinitionFor(processType); def.RiskLevel != "" {
			fmt.Fprintf(&b, ", risk: %s", def.RiskLevel)
		}
		b.WriteString(")")
	}
	b.WriteString(".\n")

	fmt.Fprintf(&b, "Blocked actions (%d):\n", len(blocked))
	for _, name := range blocked {
		fmt.Fprintf(&b, "  - %s\n", name)
	}

	if result.Failed() {
		fmt.Fprintf(&b, "Policy: %s\n", result.Summary)
		for _, t := range result.TriggeredRules {
			fmt.Fprintf(&b, "  - %s [%s", t.RuleID, t.Class)
			if t.Level != "" {
				fmt.Fprintf(&b, ", level %s", t.Level)
			}
			b.WriteString("]")
			if t.Description != "" {
				fmt.Fprintf(&b, ": %s", t.Description)
			}
			b.WriteString("\n")
		}
		if result.EscalationLevel != "" {
			fmt.Fprintf(&b, "Required authority: %s\n", result.EscalationLevel)
		}
	}

	b.WriteString("Present the approval request and wait for explicit confirmation. Read and compute actions remain available.")
	return b.String()
}
