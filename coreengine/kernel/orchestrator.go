package kernel

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/budget"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/observability"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// taskPhase is the budget phase charged for the task text itself.
const taskPhase = "TASK"

// =============================================================================
// Task
// =============================================================================

// task is one orchestration call. Its machine and budget are owned by the
// task and guarded by mu; k.mu is never held while mu is acquired.
type task struct {
	mu sync.Mutex

	id          string
	sessionID   string
	requestID   string
	userID      string
	description string

	machine *process.Machine
	budget  *budget.TokenBudget
	actions []hitl.Action
	policy  *policy.Result

	approval    *ApprovalRequest
	approvals   int
	preApproved bool
	approver    string

	status       TaskStatus
	message      string
	createdAt    time.Time
	lastActivity time.Time
	finishedAt   *time.Time
}

func newTaskID() string {
	return "task_" + uuid.New().String()[:16]
}

func newApprovalID() string {
	return "apr_" + uuid.New().String()[:16]
}

// =============================================================================
// Entry Points
// =============================================================================

// BeginTask starts a task for a session and returns the first instruction.
//
// The session's checkpoint is resumed unless it records a finished workflow,
// in which case the task starts a fresh one. Rules are evaluated once: an
// escalation takes effect immediately, anything else is applied when the
// process reaches POLICY_CHECK.
func (k *Kernel) BeginTask(ctx context.Context, req TaskRequest) (*Instruction, error) {
	ctx, span := observability.Tracer().Start(ctx, "kernel.BeginTask",
		trace.WithAttributes(attribute.String("bizflow.session_id", req.SessionID)),
	)
	defer span.End()

	instr, err := SafeExecuteWithResult(k.logger, "begin_task", func() (*Instruction, error) {
		return k.beginTask(ctx, req)
	})
	endSpan(span, instr, err)
	return instr, err
}

// CompletePhase charges the phase output to the task budget, moves the process
// on and returns the next instruction.
func (k *Kernel) CompletePhase(ctx context.Context, taskID string, report PhaseReport) (*Instruction, error) {
	ctx, span := observability.Tracer().Start(ctx, "kernel.CompletePhase",
		trace.WithAttributes(attribute.String("bizflow.task_id", taskID)),
	)
	defer span.End()

	instr, err := SafeExecuteWithResult(k.logger, "complete_phase", func() (*Instruction, error) {
		return k.completePhase(ctx, taskID, report)
	})
	endSpan(span, instr, err)
	return instr, err
}

// ResolveApproval answers the pending approval request of a task. Approval
// moves past the gate; rejection fails the task.
func (k *Kernel) ResolveApproval(ctx context.Context, taskID string, decision ApprovalDecision) (*Instruction, error) {
	ctx, span := observability.Tracer().Start(ctx, "kernel.ResolveApproval",
		trace.WithAttributes(
			attribute.String("bizflow.task_id", taskID),
			attribute.Bool("bizflow.approved", decision.Approved),
		),
	)
	defer span.End()

	instr, err := SafeExecuteWithResult(k.logger, "resolve_approval", func() (*Instruction, error) {
		return k.resolveApproval(ctx, taskID, decision)
	})
	endSpan(span, instr, err)
	return instr, err
}

// ReopenApprovalGate sends a task sitting at MUTATE back through its approval
// gate for another confirmation.
func (k *Kernel) ReopenApprovalGate(ctx context.Context, taskID string) (*Instruction, error) {
	ctx, span := observability.Tracer().Start(ctx, "kernel.ReopenApprovalGate",
		trace.WithAttributes(attribute.String("bizflow.task_id", taskID)),
	)
	defer span.End()

	instr, err := SafeExecuteWithResult(k.logger, "reopen_approval_gate", func() (*Instruction, error) {
		return k.reopenApprovalGate(ctx, taskID)
	})
	endSpan(span, instr, err)
	return instr, err
}

func endSpan(span trace.Span, instr *Instruction, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(
		attribute.String("bizflow.task_id", instr.TaskID),
		attribute.String("bizflow.process_type", instr.ProcessType),
		attribute.String("bizflow.instruction", string(instr.Kind)),
		attribute.String("bizflow.state", string(instr.State)),
	)
}

// =============================================================================
// Begin
// =============================================================================

func (k *Kernel) beginTask(ctx context.Context, req TaskRequest) (*Instruction, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, fmt.Errorf("%w: session_id is required", ErrInvalidRequest)
	}

	k.sessions.GetOrCreate(req.SessionID)
	cp := k.loadCheckpoint(ctx, req.SessionID)

	opts := []process.Option{
		process.WithTemplates(k.templates),
		process.WithReadOnlyShortcut(k.config.ReadOnlyShortcut),
	}
	if cp != nil {
		opts = append(opts, process.WithCheckpoint(cp))
	} else {
		opts = append(opts, process.WithProcessType(k.resolveProcessType(req)))
	}
	m := process.New(req.TaskDescription, req.SessionID, opts...)
	if cp != nil {
		observability.RecordCheckpointRestore(string(m.RestoreStatus()))
		if m.RestoreStatus() == process.RestoreReset && k.logger != nil {
			k.logger.Warn("checkpoint_reset",
				"session_id", req.SessionID,
				"process_type", cp.ProcessType,
				"state_index", cp.StateIndex,
			)
		}
	}

	capacity := k.config.TaskTokenBudget
	if req.TokenBudget > 0 {
		capacity = req.TokenBudget
	}
	b := budget.New(capacity)
	observability.RecordTokensConsumed(taskPhase, b.Consume(req.TaskDescription, taskPhase))

	now := k.now()
	t := &task{
		id:           newTaskID(),
		sessionID:    req.SessionID,
		requestID:    req.RequestID,
		userID:       req.UserID,
		description:  req.TaskDescription,
		machine:      m,
		budget:       b,
		actions:      append([]hitl.Action(nil), req.Actions...),
		status:       TaskStatusRunning,
		createdAt:    now,
		lastActivity: now,
	}
	if req.Approved && m.RestoreStatus() == process.RestoreApplied && m.CurrentState() == process.StateApprovalGate {
		t.preApproved = true
		t.approver = req.Approver
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k.mu.Lock()
	k.tasks[t.id] = t
	k.mu.Unlock()
	observability.SetActiveTasks(int(k.active.Add(1)))

	aux := k.sessions.AuxCache(req.SessionID)
	aux.Set("last_task_id", t.id)
	aux.Set("process_type", m.ProcessType())

	k.emitEvent(k.newEvent(KernelEventTaskStarted, t, map[string]any{
		"process_type": m.ProcessType(),
		"state":        string(m.CurrentState()),
		"restore":      string(m.RestoreStatus()),
		"read_only":    m.ReadOnly(),
		"token_budget": capacity,
	}))
	if k.logger != nil {
		k.logger.Info("task_started",
			"task_id", t.id,
			"session_id", t.sessionID,
			"process_type", m.ProcessType(),
			"state", string(m.CurrentState()),
			"restore", string(m.RestoreStatus()),
			"read_only", m.ReadOnly(),
		)
	}

	if len(req.Rules) > 0 {
		k.evaluatePolicy(t, req.Rules, req.PolicyContext)
	}

	return k.drive(ctx, t), nil
}

// loadCheckpoint returns the checkpoint to resume from, or nil to start fresh.
// Store errors are logged and treated as a missing checkpoint.
func (k *Kernel) loadCheckpoint(ctx context.Context, sessionID string) *process.Checkpoint {
	cp, ok, err := k.checkpoints.GetCheckpoint(ctx, sessionID)
	switch {
	case err != nil:
		observability.RecordCheckpointRestore("error")
		if k.logger != nil {
			k.logger.Warn("checkpoint_load_failed", "session_id", sessionID, "error", err.Error())
		}
		return nil
	case !ok:
		observability.RecordCheckpointRestore(string(process.RestoreNone))
		return nil
	case cp.IsTerminal(k.templates):
		observability.RecordCheckpointRestore("terminal")
		if k.logger != nil {
			k.logger.Debug("checkpoint_finished_starting_fresh",
				"session_id", sessionID,
				"process_type", cp.ProcessType,
			)
		}
		return nil
	}
	return cp
}

func (k *Kernel) resolveProcessType(req TaskRequest) string {
	if strings.TrimSpace(req.ProcessType) != "" {
		return req.ProcessType
	}
	detected := process.DetectProcessType(req.TaskDescription)
	if detected == process.DefaultProcessType {
		return k.config.DefaultProcessType
	}
	return detected
}

func (k *Kernel) evaluatePolicy(t *task, rules []policy.Rule, ctx policy.Context) {
	res := policy.Evaluate(rules, ctx)
	t.policy = res

	classes := make([]string, 0, len(res.TriggeredRules))
	for _, tr := range res.TriggeredRules {
		classes = append(classes, string(tr.Class))
	}
	observability.RecordPolicyEvaluation(policyOutcome(res), classes)

	k.emitEvent(k.newEvent(KernelEventPolicyEvaluated, t, map[string]any{
		"passed":              res.Passed,
		"requires_approval":   res.RequiresApproval,
		"escalation_required": res.EscalationRequired,
		"blocked":             res.Blocked,
		"triggered_rules":     res.RuleIDs(),
		"escalation_level":    res.EscalationLevel,
	}))
	if k.logger != nil {
		k.logger.Info("policy_evaluated",
			"task_id", t.id,
			"outcome", policyOutcome(res),
			"triggered", len(res.TriggeredRules),
			"escalation_level", res.EscalationLevel,
		)
	}

	switch {
	case res.EscalationRequired:
		t.machine.Escalate(res.Summary)
		observability.RecordTransition(t.machine.ProcessType(), string(process.StateEscalate))
	case !res.Passed:
		t.machine.RequireApproval()
	}
}

func policyOutcome(res *policy.Result) string {
	switch {
	case res.Blocked:
		return "blocked"
	case res.EscalationRequired:
		return "escalate"
	case res.RequiresApproval:
		return "approval"
	default:
		return "passed"
	}
}

// =============================================================================
// Phase Completion
// =============================================================================

func (k *Kernel) completePhase(ctx context.Context, taskID string, report PhaseReport) (*Instruction, error) {
	t, err := k.getTask(taskID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsFinished() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrTaskFinished, taskID, t.status)
	}
	if t.status == TaskStatusAwaitingApproval {
		return nil, fmt.Errorf("%w: %s", ErrAwaitingApproval, taskID)
	}

	m := t.machine
	phase := string(m.CurrentState())
	charged := report.TokensUsed
	if charged > 0 {
		t.budget.ConsumeTokens(charged, phase)
	} else {
		charged = t.budget.Consume(report.Output, phase)
	}
	observability.RecordTokensConsumed(phase, charged)

	if report.Actions != nil {
		t.actions = append([]hitl.Action(nil), report.Actions...)
	}
	t.lastActivity = k.now()

	switch {
	case report.Error != "":
		m.Fail(report.Error)
	case report.Escalate != "":
		m.Escalate(report.Escalate)
	default:
		m.Advance(report.Data)
	}
	observability.RecordTransition(m.ProcessType(), string(m.CurrentState()))

	if k.logger != nil {
		k.logger.Debug("phase_completed",
			"task_id", t.id,
			"phase", phase,
			"next_state", string(m.CurrentState()),
			"tokens", charged,
			"budget", t.budget.Report().String(),
		)
	}

	return k.drive(ctx, t), nil
}

// =============================================================================
// Approval
// =============================================================================

func (k *Kernel) resolveApproval(ctx context.Context, taskID string, decision ApprovalDecision) (*Instruction, error) {
	t, err := k.getTask(taskID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != TaskStatusAwaitingApproval || t.approval == nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotAwaitingApproval, taskID, t.status)
	}

	now := k.now()
	apr := t.approval
	apr.Approver = decision.Approver
	apr.Note = decision.Note
	apr.ResolvedAt = &now
	apr.Status = ApprovalRejected
	if decision.Approved {
		apr.Status = ApprovalApproved
	}
	t.lastActivity = now
	t.status = TaskStatusRunning

	k.emitEvent(k.newEvent(KernelEventApprovalResolved, t, map[string]any{
		"approval_id": apr.ID,
		"approved":    decision.Approved,
		"approver":    decision.Approver,
		"cycle":       apr.Cycle,
	}))
	if k.logger != nil {
		k.logger.Info("approval_resolved",
			"task_id", t.id,
			"approval_id", apr.ID,
			"approved", decision.Approved,
			"approver", decision.Approver,
		)
	}

	m := t.machine
	if decision.Approved {
		t.approvals++
		m.Advance(map[string]any{"approved_by": decision.Approver})
	} else {
		reason := "approval rejected"
		if decision.Approver != "" {
			reason += " by " + decision.Approver
		}
		if decision.Note != "" {
			reason += ": " + decision.Note
		}
		m.Fail(reason)
	}
	observability.RecordTransition(m.ProcessType(), string(m.CurrentState()))

	return k.drive(ctx, t), nil
}

func (k *Kernel) reopenApprovalGate(ctx context.Context, taskID string) (*Instruction, error) {
	t, err := k.getTask(taskID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.IsFinished() {
		return nil, fmt.Errorf("%w: %s (%s)", ErrTaskFinished, taskID, t.status)
	}
	m := t.machine
	if !m.ReopenApprovalGate() {
		return nil, fmt.Errorf("%w: task %s is at %s", ErrGateNotReopenable, taskID, m.CurrentState())
	}
	t.lastActivity = k.now()
	observability.RecordTransition(m.ProcessType(), string(m.CurrentState()))

	if k.logger != nil {
		k.logger.Info("approval_gate_reopened",
			"task_id", t.id,
			"cycle", m.ApprovalCycles(),
		)
	}

	return k.drive(ctx, t), nil
}

// =============================================================================
// Driving
// =============================================================================

// drive runs the states the kernel decides on its own (POLICY_CHECK and an
// approval gate with nothing to block) and stops at the first state that needs
// the worker or a human. Must hold t.mu.
func (k *Kernel) drive(ctx context.Context, t *task) *Instruction {
	m := t.machine
	pt := m.ProcessType()

	for {
		if m.IsTerminal() {
			return k.finish(ctx, t)
		}

		switch m.CurrentState() {
		case process.StatePolicyCheck:
			m.ApplyPolicyResult(t.policy)
			observability.RecordTransition(pt, string(m.CurrentState()))
			continue

		case process.StateApprovalGate:
			if t.preApproved {
				t.preApproved = false
				t.approvals++
				m.Advance(map[string]any{"approved_by": t.approver})
				observability.RecordTransition(pt, string(m.CurrentState()))
				k.emitEvent(k.newEvent(KernelEventApprovalResolved, t, map[string]any{
					"approved": true,
					"approver": t.approver,
					"source":   "request",
				}))
				continue
			}

			decision := k.classifier.Evaluate(process.StateApprovalGate, t.actions, t.policy, pt)
			observability.RecordGateDecision(pt, decision.Fires)
			if decision.Fires {
				return k.holdAtGate(ctx, t, decision)
			}
			m.Advance(nil)
			observability.RecordTransition(pt, string(m.CurrentState()))
			continue
		}

		if t.budget.ShouldSkipLLM() {
			return k.exhaust(ctx, t)
		}
		return k.runPhase(ctx, t)
	}
}

func (k *Kernel) runPhase(ctx context.Context, t *task) *Instruction {
	state := string(t.machine.CurrentState())
	tier := t.budget.RecommendModel(state, t.description)

	t.status = TaskStatusRunning
	_ = k.saveCheckpoint(ctx, t)

	instr := k.instruction(t, InstructionKindRunPhase)
	instr.ModelTier = tier
	instr.Model = budget.ModelFor(tier, k.config.FastModel, k.config.StrongModel)
	instr.MaxOutputTokens = t.budget.RecommendMaxOutput(state)
	instr.EfficiencyHint = t.budget.EfficiencyHint()
	instr.AllowedActions = actionNames(t.actions)
	return instr
}

func (k *Kernel) holdAtGate(ctx context.Context, t *task, decision hitl.GateDecision) *Instruction {
	m := t.machine
	m.RequireApproval()

	apr := &ApprovalRequest{
		ID:             newApprovalID(),
		TaskID:         t.id,
		SessionID:      t.sessionID,
		ProcessType:    m.ProcessType(),
		Cycle:          m.ApprovalCycles(),
		BlockedActions: decision.BlockedActions,
		BlockText:      decision.BlockText,
		Status:         ApprovalPending,
		CreatedAt:      k.now(),
	}
	if t.policy != nil {
		apr.RequiredAuthority = t.policy.EscalationLevel
	}
	t.approval = apr
	t.status = TaskStatusAwaitingApproval
	_ = k.saveCheckpoint(ctx, t)

	k.emitEvent(k.newEvent(KernelEventApprovalGateFired, t, map[string]any{
		"approval_id":        apr.ID,
		"blocked_actions":    apr.BlockedActions,
		"cycle":              apr.Cycle,
		"required_authority": apr.RequiredAuthority,
	}))
	if k.logger != nil {
		k.logger.Info("approval_gate_fired",
			"task_id", t.id,
			"approval_id", apr.ID,
			"blocked", len(apr.BlockedActions),
			"cycle", apr.Cycle,
		)
	}

	instr := k.instruction(t, InstructionKindAwaitApproval)
	instr.BlockedActions = append([]string(nil), decision.BlockedActions...)
	instr.AllowedActions = append([]string(nil), decision.AllowedActions...)
	instr.BlockText = decision.BlockText
	instr.Approval = apr.clone()
	return instr
}

// exhaust stops a task whose budget ran out. The checkpoint keeps the current
// step so the next call for the session continues from it with a new budget.
func (k *Kernel) exhaust(ctx context.Context, t *task) *Instruction {
	pt := t.machine.ProcessType()
	k.markFinished(t, TaskStatusBudgetExhausted, BudgetExhaustedMessage)
	_ = k.saveCheckpoint(ctx, t)

	observability.RecordBudgetExhausted(pt)
	k.emitEvent(k.newEvent(KernelEventBudgetExhausted, t, map[string]any{
		"state":    string(t.machine.CurrentState()),
		"consumed": t.budget.Consumed(),
		"capacity": t.budget.Capacity(),
	}))
	if k.logger != nil {
		k.logger.Warn("budget_exhausted",
			"task_id", t.id,
			"state", string(t.machine.CurrentState()),
			"budget", t.budget.Report().String(),
		)
	}

	instr := k.instruction(t, InstructionKindTerminate)
	instr.TerminationMessage = BudgetExhaustedMessage
	return instr
}

func (k *Kernel) finish(ctx context.Context, t *task) *Instruction {
	m := t.machine

	var (
		status    TaskStatus
		eventType KernelEventType
		message   string
	)
	switch m.CurrentState() {
	case process.StateEscalate:
		status, eventType = TaskStatusEscalated, KernelEventTaskEscalated
		message = "Escalated: " + m.EscalationReason()
	case process.StateFailed:
		status, eventType = TaskStatusFailed, KernelEventTaskFailed
		message = "Failed: " + m.FailureReason()
	default:
		status, eventType = TaskStatusCompleted, KernelEventTaskCompleted
		message = "Process completed"
	}

	k.markFinished(t, status, message)
	_ = k.saveCheckpoint(ctx, t)

	k.emitEvent(k.newEvent(eventType, t, map[string]any{
		"process_type":      m.ProcessType(),
		"escalation_reason": m.EscalationReason(),
		"failure_reason":    m.FailureReason(),
		"approvals":         t.approvals,
		"tokens":            t.budget.Consumed(),
	}))
	if k.logger != nil {
		k.logger.Info("task_finished",
			"task_id", t.id,
			"status", string(status),
			"history", len(m.History()),
			"budget", t.budget.Report().String(),
		)
	}

	instr := k.instruction(t, InstructionKindTerminate)
	instr.TerminationMessage = message
	return instr
}

// markFinished records the final status once. Must hold t.mu.
func (k *Kernel) markFinished(t *task, status TaskStatus, message string) {
	if t.status.IsFinished() {
		return
	}
	now := k.now()
	t.status = status
	t.message = message
	t.finishedAt = &now
	t.lastActivity = now

	observability.RecordTaskOutcome(t.machine.ProcessType(), string(status), int(now.Sub(t.createdAt).Milliseconds()))
	observability.SetActiveTasks(int(k.active.Add(-1)))
}

// saveCheckpoint persists the task's position. Failures are logged and
// counted but never fail the task. Must hold t.mu.
func (k *Kernel) saveCheckpoint(ctx context.Context, t *task) error {
	cp := t.machine.Checkpoint()
	cp.SavedAt = k.now()

	if err := k.checkpoints.SaveCheckpoint(ctx, t.sessionID, cp); err != nil {
		observability.RecordCheckpointSaved("error")
		if k.logger != nil {
			k.logger.Warn("checkpoint_save_failed",
				"task_id", t.id,
				"session_id", t.sessionID,
				"error", err.Error(),
			)
		}
		return err
	}

	observability.RecordCheckpointSaved("ok")
	k.emitEvent(k.newEvent(KernelEventCheckpointSaved, t, map[string]any{
		"process_type":   cp.ProcessType,
		"state_index":    cp.StateIndex,
		"terminal_state": cp.TerminalState,
	}))
	return nil
}

func (k *Kernel) instruction(t *task, kind InstructionKind) *Instruction {
	m := t.machine
	return &Instruction{
		Kind:        kind,
		TaskID:      t.id,
		SessionID:   t.sessionID,
		ProcessType: m.ProcessType(),
		State:       m.CurrentState(),
		Status:      t.status,
		Policy:      t.policy,
		Summary:     m.Summary(),
		Budget:      t.budget.Report(),
	}
}

func actionNames(actions []hitl.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		if name := strings.TrimSpace(a.Name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// =============================================================================
// Task Management
// =============================================================================

func (k *Kernel) getTask(taskID string) (*task, error) {
	k.mu.RLock()
	t, ok := k.tasks[taskID]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t, nil
}

// GetTask returns a snapshot of a task.
func (k *Kernel) GetTask(taskID string) (*TaskSnapshot, error) {
	t, err := k.getTask(taskID)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := &TaskSnapshot{
		TaskID:          t.id,
		SessionID:       t.sessionID,
		TaskDescription: t.description,
		Status:          t.status,
		Summary:         t.machine.Summary(),
		Budget:          t.budget.Report(),
		Policy:          t.policy,
		Approval:        t.approval.clone(),
		Approvals:       t.approvals,
		CreatedAt:       t.createdAt,
		LastActivityAt:  t.lastActivity,
	}
	if t.finishedAt != nil {
		finished := *t.finishedAt
		snap.FinishedAt = &finished
	}
	return snap, nil
}

// CancelTask drops a task without saving its checkpoint; the session resumes
// from the last checkpoint that was saved.
func (k *Kernel) CancelTask(taskID string) error {
	k.mu.Lock()
	t, ok := k.tasks[taskID]
	delete(k.tasks, taskID)
	k.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.IsFinished() {
		return nil
	}
	k.markFinished(t, TaskStatusCancelled, "Task cancelled")

	k.emitEvent(k.newEvent(KernelEventTaskCancelled, t, map[string]any{
		"state": string(t.machine.CurrentState()),
	}))
	if k.logger != nil {
		k.logger.Info("task_cancelled", "task_id", t.id, "state", string(t.machine.CurrentState()))
	}
	return nil
}

// TaskCount returns the number of tasks held by the kernel.
func (k *Kernel) TaskCount() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.tasks)
}

// CleanupStaleTasks removes tasks with no activity for longer than staleDuration,
// finished or not. Returns the number removed.
func (k *Kernel) CleanupStaleTasks(staleDuration time.Duration) int {
	k.mu.RLock()
	candidates := make([]*task, 0, len(k.tasks))
	for _, t := range k.tasks {
		candidates = append(candidates, t)
	}
	k.mu.RUnlock()

	now := k.now()
	removed := 0
	for _, t := range candidates {
		t.mu.Lock()
		if now.Sub(t.lastActivity) > staleDuration {
			if !t.status.IsFinished() {
				k.markFinished(t, TaskStatusCancelled, "Task abandoned")
			}
			k.mu.Lock()
			delete(k.tasks, t.id)
			k.mu.Unlock()
			removed++
		}
		t.mu.Unlock()
	}

	if removed > 0 && k.logger != nil {
		k.logger.Info("stale_tasks_cleaned", "count", removed)
	}
	return removed
}
