// Package process implements the business-process state machine.
//
// A process type maps to an ordered list of states through a TemplateTable.
// A Machine walks that list one phase at a time, parks mutating work behind an
// approval gate, and can be escalated or failed from any state. A Checkpoint
// captures a Machine's position so the next turn of the same conversation can
// resume it.
//
// Key concepts:
//   - State: closed enumeration of workflow phases
//   - TemplateTable: process type -> ordered states, with a default entry
//   - Machine: per-task runtime, never shared between tasks
//   - Checkpoint: the persisted position of a Machine
package process

import "strings"

// =============================================================================
// States
// =============================================================================

// State is a workflow phase.
//
// Positional states appear in templates in this order:
//
//	DECOMPOSE -> ASSESS -> COMPUTE -> POLICY_CHECK -> APPROVAL_GATE -> MUTATE -> SCHEDULE_NOTIFY -> COMPLETE
//
// ESCALATE and FAILED can be entered from any state and have no successor.
type State string

const (
	// StateDecompose breaks the task into steps.
	StateDecompose State = "DECOMPOSE"
	// StateAssess gathers data with read-only actions.
	StateAssess State = "ASSESS"
	// StateCompute performs calculations over gathered data.
	StateCompute State = "COMPUTE"
	// StatePolicyCheck evaluates policy rules.
	StatePolicyCheck State = "POLICY_CHECK"
	// StateApprovalGate presents an approval request; mutating actions are blocked.
	StateApprovalGate State = "APPROVAL_GATE"
	// StateMutate performs state-changing actions.
	StateMutate State = "MUTATE"
	// StateScheduleNotify schedules follow-ups and sends notifications.
	StateScheduleNotify State = "SCHEDULE_NOTIFY"
	// StateComplete is the successful terminal state.
	StateComplete State = "COMPLETE"
	// StateEscalate hands the workflow to a human authority. Terminal.
	StateEscalate State = "ESCALATE"
	// StateFailed records an unrecoverable failure. Terminal.
	StateFailed State = "FAILED"
)

var allStates = []State{
	StateDecompose,
	StateAssess,
	StateCompute,
	StatePolicyCheck,
	StateApprovalGate,
	StateMutate,
	StateScheduleNotify,
	StateComplete,
	StateEscalate,
	StateFailed,
}

// AllStates returns every state in canonical order.
func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

// IsTerminal returns true for COMPLETE, ESCALATE and FAILED.
func (s State) IsTerminal() bool {
	return s == StateComplete || s == StateEscalate || s == StateFailed
}

// IsValid returns true if s is one of the known states.
func (s State) IsValid() bool {
	for _, known := range allStates {
		if s == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

// ParseState parses a state name case-insensitively.
func ParseState(name string) (State, bool) {
	s := State(strings.ToUpper(strings.TrimSpace(name)))
	if !s.IsValid() {
		return "", false
	}
	return s, true
}

func statesToStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}
