package process

import (
	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
)

// Machine is the runtime of one business process for one task.
//
// A Machine is owned by the task that created it and is not safe for
// concurrent use. Only its transition methods mutate it.
type Machine struct {
	sessionID       string
	taskDescription string

	processType string
	states      []State
	readOnly    bool

	index    int
	terminal State
	history  []State

	requiresApproval bool
	escalationReason string
	failureReason    string
	approvalCycles   int

	data         map[string]any
	policyResult *policy.Result
	restore      RestoreStatus
}

type machineOptions struct {
	processType      string
	checkpoint       *Checkpoint
	readOnlyShortcut bool
	templates        *TemplateTable
}

// Option configures New.
type Option func(*machineOptions)

// WithProcessType sets the process type. Without it the type is detected from
// the task description.
func WithProcessType(processType string) Option {
	return func(o *machineOptions) { o.processType = processType }
}

// WithCheckpoint resumes from cp. The checkpoint's process type takes
// precedence over WithProcessType.
func WithCheckpoint(cp *Checkpoint) Option {
	return func(o *machineOptions) { o.checkpoint = cp }
}

// WithReadOnlyShortcut enables collapsing pure queries to ReadOnlyTemplate.
// It never applies to a machine restored from a checkpoint.
func WithReadOnlyShortcut(enabled bool) Option {
	return func(o *machineOptions) { o.readOnlyShortcut = enabled }
}

// WithTemplates overrides the built-in template table.
func WithTemplates(t *TemplateTable) Option {
	return func(o *machineOptions) { o.templates = t }
}

// New builds a Machine for a task.
//
// With a checkpoint, the state list is re-resolved from the template table
// using the checkpoint's process type. A checkpoint that fails validation or
// whose index does not fit the template restarts the process at its first
// state; see RestoreStatus.
func New(taskDescription, sessionID string, opts ...Option) *Machine {
	o := machineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.templates == nil {
		o.templates = DefaultTemplates()
	}

	m := &Machine{
		sessionID:       sessionID,
		taskDescription: taskDescription,
		history:         []State{},
		data:            make(map[string]any),
		restore:         RestoreNone,
	}

	if o.checkpoint != nil {
		m.restoreFrom(o.checkpoint, o.templates)
		return m
	}

	requested := o.processType
	if requested == "" {
		requested = DetectProcessType(taskDescription)
	}
	m.processType, m.states = o.templates.Resolve(requested)

	if o.readOnlyShortcut && IsReadOnlyQuery(taskDescription) {
		m.states = append([]State(nil), ReadOnlyTemplate...)
		m.readOnly = true
	}
	return m
}

func (m *Machine) restoreFrom(cp *Checkpoint, templates *TemplateTable) {
	m.processType, m.states = templates.Resolve(cp.ProcessType)

	if err := cp.Validate(); err != nil || cp.StateIndex >= len(cp.states(m.states)) {
		m.restore = RestoreReset
		return
	}

	if cp.ReadOnly {
		m.states = append([]State(nil), ReadOnlyTemplate...)
		m.readOnly = true
	}

	m.index = cp.StateIndex
	for _, name := range cp.StateHistory {
		s, _ := ParseState(name)
		m.history = append(m.history, s)
	}
	m.requiresApproval = cp.RequiresHumanApproval
	m.approvalCycles = cp.ApprovalCycles
	if cp.TerminalState != "" {
		m.terminal, _ = ParseState(cp.TerminalState)
	}
	m.restore = RestoreApplied
}

// =============================================================================
// Queries
// =============================================================================

// CurrentState returns the state the machine is in. Past the end of the
// template it reports COMPLETE.
func (m *Machine) CurrentState() State {
	if m.terminal != "" {
		return m.terminal
	}
	if m.index >= len(m.states) {
		return StateComplete
	}
	return m.states[m.index]
}

// IsTerminal reports whether the current state is COMPLETE, ESCALATE or FAILED.
func (m *Machine) IsTerminal() bool {
	return m.CurrentState().IsTerminal()
}

// ProcessType returns the resolved process type.
func (m *Machine) ProcessType() string { return m.processType }

// SessionID returns the session the machine belongs to.
func (m *Machine) SessionID() string { return m.sessionID }

// TaskDescription returns the task text the machine was built for.
func (m *Machine) TaskDescription() string { return m.taskDescription }

// CurrentIndex returns the position in States.
func (m *Machine) CurrentIndex() int { return m.index }

// States returns a copy of the active state list.
func (m *Machine) States() []State {
	return append([]State(nil), m.states...)
}

// History returns a copy of the states left so far.
func (m *Machine) History() []State {
	return append([]State(nil), m.history...)
}

// RequiresHumanApproval reports whether a human must sign off before mutation.
func (m *Machine) RequiresHumanApproval() bool { return m.requiresApproval }

// EscalationReason returns the reason recorded by Escalate.
func (m *Machine) EscalationReason() string { return m.escalationReason }

// FailureReason returns the reason recorded by Fail.
func (m *Machine) FailureReason() string { return m.failureReason }

// ApprovalCycles returns how many times the approval gate was reopened.
func (m *Machine) ApprovalCycles() int { return m.approvalCycles }

// ReadOnly reports whether the read-only shortcut collapsed the template.
func (m *Machine) ReadOnly() bool { return m.readOnly }

// RestoreStatus reports how a supplied checkpoint was used.
func (m *Machine) RestoreStatus() RestoreStatus { return m.restore }

// PolicyResult returns the result last passed to ApplyPolicyResult.
func (m *Machine) PolicyResult() *policy.Result { return m.policyResult }

// Data returns a copy of the scratch data merged by Advance.
func (m *Machine) Data() map[string]any {
	out := make(map[string]any, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// =============================================================================
// Transitions
// =============================================================================

// Advance records the current state in history, merges extra into the scratch
// data and moves to the next state.
//
// Advance never moves backwards. At the last template position it stays put,
// and once the machine is escalated or failed the current state no longer
// changes; history still grows by one per call.
func (m *Machine) Advance(extra map[string]any) State {
	current := m.CurrentState()
	m.history = append(m.history, current)
	for k, v := range extra {
		m.data[k] = v
	}

	if m.terminal != "" || current == StateEscalate || current == StateFailed {
		return current
	}

	last := len(m.states) - 1
	if m.index < last || (m.index == last && !m.states[last].IsTerminal()) {
		m.index++
	}

	next := m.CurrentState()
	if next == StateEscalate {
		m.requiresApproval = true
		if m.escalationReason == "" {
			m.escalationReason = "process template escalates at this stage"
		}
	}
	return next
}

// Escalate moves the machine to ESCALATE and flags it for human approval.
// An escalated or failed machine keeps its terminal state.
func (m *Machine) Escalate(reason string) State {
	current := m.CurrentState()
	m.history = append(m.history, current)
	if current == StateEscalate || current == StateFailed {
		return current
	}
	m.terminal = StateEscalate
	m.escalationReason = reason
	m.requiresApproval = true
	return m.terminal
}

// Fail moves the machine to FAILED. An escalated or failed machine keeps its
// terminal state.
func (m *Machine) Fail(reason string) State {
	current := m.CurrentState()
	m.history = append(m.history, current)
	if current == StateEscalate || current == StateFailed {
		return current
	}
	m.terminal = StateFailed
	m.failureReason = reason
	m.data["failure_reason"] = reason
	return m.terminal
}

// ApplyPolicyResult turns a policy decision into a transition: a failed result
// that requires escalation escalates; a failed result that requires approval
// flags the machine and advances; anything else advances, including a result
// that is only blocked. A nil result advances.
func (m *Machine) ApplyPolicyResult(result *policy.Result) State {
	m.policyResult = result
	if result != nil && !result.Passed {
		if result.EscalationRequired {
			return m.Escalate(result.Summary)
		}
		if result.RequiresApproval {
			m.requiresApproval = true
		}
	}
	return m.Advance(nil)
}

// RequireApproval flags the machine for human approval without a transition.
func (m *Machine) RequireApproval() {
	m.requiresApproval = true
}

// ReopenApprovalGate sends a machine sitting at MUTATE back to the approval
// gate that precedes it, for workflows that need several confirmations.
// It returns false, changing nothing, when the current state is not MUTATE or
// the template has no approval gate before it.
func (m *Machine) ReopenApprovalGate() bool {
	if m.CurrentState() != StateMutate {
		return false
	}
	gate := -1
	for i := m.index - 1; i >= 0; i-- {
		if m.states[i] == StateApprovalGate {
			gate = i
			break
		}
	}
	if gate < 0 {
		return false
	}
	m.history = append(m.history, StateMutate)
	m.index = gate
	m.approvalCycles++
	m.requiresApproval = true
	return true
}

// =============================================================================
// Snapshots
// =============================================================================

// Checkpoint snapshots the machine for persistence. A read-only machine is
// saved against ReadOnlyTemplate and marked so a restore stays collapsed.
func (m *Machine) Checkpoint() *Checkpoint {
	index := m.index
	if index >= len(m.states) {
		index = len(m.states) - 1
	}

	cp := &Checkpoint{
		ProcessType:           m.processType,
		StateIndex:            index,
		ReadOnly:              m.readOnly,
		StateHistory:          statesToStrings(m.history),
		RequiresHumanApproval: m.requiresApproval,
		ApprovalCycles:        m.approvalCycles,
	}
	if m.terminal != "" {
		cp.TerminalState = string(m.terminal)
	}
	return cp
}

// Summary is a read-only view of a machine for logs and responses.
type Summary struct {
	SessionID             string   `json:"session_id"`
	ProcessType           string   `json:"process_type"`
	CurrentState          string   `json:"current_state"`
	StateIndex            int      `json:"state_index"`
	TotalStates           int      `json:"total_states"`
	StateHistory          []string `json:"state_history"`
	RequiresHumanApproval bool     `json:"requires_human_approval"`
	EscalationReason      string   `json:"escalation_reason,omitempty"`
	FailureReason         string   `json:"failure_reason,omitempty"`
	ApprovalCycles        int      `json:"approval_cycles"`
	ReadOnly              bool     `json:"read_only"`
	IsTerminal            bool     `json:"is_terminal"`
}

// Summary returns the machine's current view.
func (m *Machine) Summary() Summary {
	return Summary{
		SessionID:             m.sessionID,
		ProcessType:           m.processType,
		CurrentState:          string(m.CurrentState()),
		StateIndex:            m.index,
		TotalStates:           len(m.states),
		StateHistory:          statesToStrings(m.history),
		RequiresHumanApproval: m.requiresApproval,
		EscalationReason:      m.escalationReason,
		FailureReason:         m.failureReason,
		ApprovalCycles:        m.approvalCycles,
		ReadOnly:              m.readOnly,
		IsTerminal:            m.IsTerminal(),
	}
}
