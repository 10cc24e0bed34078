package process

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCheckpoint is wrapped by Checkpoint.Validate failures.
var ErrInvalidCheckpoint = errors.New("invalid checkpoint")

// Checkpoint is the persisted position of a Machine for one session.
//
// TerminalState is set when the machine was escalated or failed; the positional
// fields alone cannot express those states. ReadOnly checkpoints index into
// ReadOnlyTemplate instead of the process type's template.
type Checkpoint struct {
	ProcessType           string    `json:"process_type"`
	StateIndex            int       `json:"state_index"`
	StateHistory          []string  `json:"state_history"`
	RequiresHumanApproval bool      `json:"requires_human_approval"`
	TerminalState         string    `json:"terminal_state,omitempty"`
	ReadOnly              bool      `json:"read_only,omitempty"`
	ApprovalCycles        int       `json:"approval_cycles,omitempty"`
	SavedAt               time.Time `json:"saved_at"`
}

// Validate checks the record's shape without reference to any template.
func (c *Checkpoint) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil", ErrInvalidCheckpoint)
	}
	if strings.TrimSpace(c.ProcessType) == "" {
		return fmt.Errorf("%w: process_type is required", ErrInvalidCheckpoint)
	}
	if c.StateIndex < 0 {
		return fmt.Errorf("%w: negative state_index %d", ErrInvalidCheckpoint, c.StateIndex)
	}
	for i, name := range c.StateHistory {
		if _, ok := ParseState(name); !ok {
			return fmt.Errorf("%w: unknown state %q in history at %d", ErrInvalidCheckpoint, name, i)
		}
	}
	if c.ApprovalCycles < 0 {
		return fmt.Errorf("%w: negative approval_cycles %d", ErrInvalidCheckpoint, c.ApprovalCycles)
	}
	if c.TerminalState != "" {
		s, ok := ParseState(c.TerminalState)
		if !ok || (s != StateEscalate && s != StateFailed) {
			return fmt.Errorf("%w: terminal_state %q", ErrInvalidCheckpoint, c.TerminalState)
		}
	}
	return nil
}

// IsTerminal reports whether the checkpoint records a finished workflow under
// templates. A checkpoint that does not fit its template is not terminal.
func (c *Checkpoint) IsTerminal(templates *TemplateTable) bool {
	if c == nil {
		return false
	}
	if c.TerminalState != "" {
		return true
	}
	_, states := templates.Resolve(c.ProcessType)
	states = c.states(states)
	if c.StateIndex < 0 || c.StateIndex >= len(states) {
		return false
	}
	return states[c.StateIndex].IsTerminal()
}

// states returns the list StateIndex points into, given the process type's
// template.
func (c *Checkpoint) states(template []State) []State {
	if c.ReadOnly {
		return ReadOnlyTemplate
	}
	return template
}

// Clone returns a deep copy.
func (c *Checkpoint) Clone() *Checkpoint {
	if c == nil {
		return nil
	}
	out := *c
	out.StateHistory = append([]string(nil), c.StateHistory...)
	return &out
}

// RestoreStatus describes what happened to a checkpoint passed to New.
type RestoreStatus string

const (
	// RestoreNone means no checkpoint was supplied.
	RestoreNone RestoreStatus = "none"
	// RestoreApplied means the machine resumed from the checkpoint.
	RestoreApplied RestoreStatus = "applied"
	// RestoreReset means the checkpoint did not fit the current template and the
	// machine started from the first state.
	RestoreReset RestoreStatus = "reset"
)
