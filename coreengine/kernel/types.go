package kernel

import (
	"errors"
	"time"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/budget"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrTaskNotFound is returned for an unknown or cleaned-up task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidRequest wraps malformed task requests.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTaskFinished is returned when a finished task is driven further.
	ErrTaskFinished = errors.New("task already finished")
	// ErrAwaitingApproval is returned by CompletePhase while the approval gate holds.
	ErrAwaitingApproval = errors.New("task is awaiting approval")
	// ErrNotAwaitingApproval is returned by ResolveApproval when no request is pending.
	ErrNotAwaitingApproval = errors.New("task is not awaiting approval")
	// ErrGateNotReopenable is returned when the approval gate cannot be reopened.
	ErrGateNotReopenable = errors.New("approval gate cannot be reopened")
)

// =============================================================================
// Task Status
// =============================================================================

// TaskStatus is the kernel-side status of a task.
type TaskStatus string

const (
	TaskStatusRunning          TaskStatus = "running"
	TaskStatusAwaitingApproval TaskStatus = "awaiting_approval"
	TaskStatusCompleted        TaskStatus = "completed"
	TaskStatusEscalated        TaskStatus = "escalated"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusBudgetExhausted  TaskStatus = "budget_exhausted"
	TaskStatusCancelled        TaskStatus = "cancelled"
)

// IsFinished reports whether the task can no longer be driven.
func (s TaskStatus) IsFinished() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusEscalated, TaskStatusFailed, TaskStatusBudgetExhausted, TaskStatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// Requests
// =============================================================================

// TaskRequest starts one orchestration call for a session.
type TaskRequest struct {
	SessionID       string         `json:"session_id"`
	TaskDescription string         `json:"task_description"`
	ProcessType     string         `json:"process_type,omitempty"`
	Rules           []policy.Rule  `json:"rules,omitempty"`
	PolicyContext   policy.Context `json:"policy_context,omitempty"`
	Actions         []hitl.Action  `json:"actions,omitempty"`
	// TokenBudget overrides the configured per-task budget when positive.
	TokenBudget int `json:"token_budget,omitempty"`
	// Approved records that the human confirmed a pending approval request in
	// this turn. It only matters when the session resumes at the gate.
	Approved  bool   `json:"approved,omitempty"`
	Approver  string `json:"approver,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// PhaseReport is what the worker reports after running one phase.
type PhaseReport struct {
	Output string `json:"output,omitempty"`
	// TokensUsed is charged as-is when positive; otherwise Output is estimated.
	TokensUsed int            `json:"tokens_used,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	// Error fails the task. It takes precedence over Escalate.
	Error    string `json:"error,omitempty"`
	Escalate string `json:"escalate,omitempty"`
	// Actions replaces the task's action list when non-nil.
	Actions []hitl.Action `json:"actions,omitempty"`
}

// ApprovalDecision resolves a pending approval request.
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Approver string `json:"approver,omitempty"`
	Note     string `json:"note,omitempty"`
}

// =============================================================================
// Approval Requests
// =============================================================================

// ApprovalStatus is the state of an approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is raised each time the approval gate fires.
type ApprovalRequest struct {
	ID                string         `json:"id"`
	TaskID            string         `json:"task_id"`
	SessionID         string         `json:"session_id"`
	ProcessType       string         `json:"process_type"`
	Cycle             int            `json:"cycle"`
	BlockedActions    []string       `json:"blocked_actions"`
	BlockText         string         `json:"block_text"`
	RequiredAuthority string         `json:"required_authority,omitempty"`
	Status            ApprovalStatus `json:"status"`
	Approver          string         `json:"approver,omitempty"`
	Note              string         `json:"note,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
}

func (a *ApprovalRequest) clone() *ApprovalRequest {
	if a == nil {
		return nil
	}
	out := *a
	out.BlockedActions = append([]string(nil), a.BlockedActions...)
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

// =============================================================================
// Instructions
// =============================================================================

// InstructionKind indicates what the worker should do next.
type InstructionKind string

const (
	InstructionKindRunPhase      InstructionKind = "run_phase"
	InstructionKindAwaitApproval InstructionKind = "await_approval"
	InstructionKindTerminate     InstructionKind = "terminate"
)

// Instruction tells the worker what to do next. The kernel decides; the
// worker only executes the phase it is given.
type Instruction struct {
	Kind        InstructionKind `json:"kind"`
	TaskID      string          `json:"task_id"`
	SessionID   string          `json:"session_id"`
	ProcessType string          `json:"process_type"`
	State       process.State   `json:"state"`

	// Set for run_phase.
	ModelTier       budget.Tier `json:"model_tier,omitempty"`
	Model           string      `json:"model,omitempty"`
	MaxOutputTokens int         `json:"max_output_tokens,omitempty"`
	EfficiencyHint  string      `json:"efficiency_hint,omitempty"`
	AllowedActions  []string    `json:"allowed_actions,omitempty"`

	// Set for await_approval.
	BlockedActions []string         `json:"blocked_actions,omitempty"`
	BlockText      string           `json:"block_text,omitempty"`
	Approval       *ApprovalRequest `json:"approval,omitempty"`

	// Set for terminate.
	Status             TaskStatus `json:"status"`
	TerminationMessage string     `json:"termination_message,omitempty"`

	Policy  *policy.Result  `json:"policy,omitempty"`
	Summary process.Summary `json:"summary"`
	Budget  budget.Report   `json:"budget"`
}

// BudgetExhaustedMessage replaces the model's answer once a task's budget is spent.
const BudgetExhaustedMessage = "The token budget for this task is exhausted. Progress has been saved; send a follow-up to continue from the current step."

// =============================================================================
// Task Snapshot
// =============================================================================

// TaskSnapshot is the external view of a task.
type TaskSnapshot struct {
	TaskID          string           `json:"task_id"`
	SessionID       string           `json:"session_id"`
	TaskDescription string           `json:"task_description"`
	Status          TaskStatus       `json:"status"`
	Summary         process.Summary  `json:"summary"`
	Budget          budget.Report    `json:"budget"`
	Policy          *policy.Result   `json:"policy,omitempty"`
	Approval        *ApprovalRequest `json:"approval,omitempty"`
	Approvals       int              `json:"approvals"`
	CreatedAt       time.Time        `json:"created_at"`
	LastActivityAt  time.Time        `json:"last_activity_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// =============================================================================
// Kernel Events
// =============================================================================

// KernelEventType represents types of kernel events.
type KernelEventType string

const (
	KernelEventTaskStarted       KernelEventType = "task.started"
	KernelEventPolicyEvaluated   KernelEventType = "policy.evaluated"
	KernelEventApprovalGateFired KernelEventType = "approval.gate_fired"
	KernelEventApprovalResolved  KernelEventType = "approval.resolved"
	KernelEventTaskEscalated     KernelEventType = "task.escalated"
	KernelEventTaskFailed        KernelEventType = "task.failed"
	KernelEventTaskCompleted     KernelEventType = "task.completed"
	KernelEventTaskCancelled     KernelEventType = "task.cancelled"
	KernelEventCheckpointSaved   KernelEventType = "checkpoint.saved"
	KernelEventBudgetExhausted   KernelEventType = "budget.exhausted"
)

// KernelEvent represents an event emitted by the kernel.
type KernelEvent struct {
	EventType KernelEventType `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	TaskID    string          `json:"task_id"`
	SessionID string          `json:"session_id"`
	RequestID string          `json:"request_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
}

// KernelEventHandler handles kernel events.
type KernelEventHandler func(*KernelEvent)
