// Package observability provides Prometheus metrics instrumentation for the control plane.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// POLICY METRICS
// =============================================================================

var (
	policyEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_policy_evaluations_total",
			Help: "Total number of policy evaluations",
		},
		[]string{"outcome"}, // outcome: passed, approval, escalate, blocked
	)

	policyRulesTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_policy_rules_triggered_total",
			Help: "Total number of triggered policy rules by action class",
		},
		[]string{"class"},
	)
)

// =============================================================================
// WORKFLOW METRICS
// =============================================================================

var (
	fsmTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_fsm_transitions_total",
			Help: "Total number of process state transitions",
		},
		[]string{"process_type", "to_state"},
	)

	approvalGateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_approval_gate_decisions_total",
			Help: "Total number of approval gate checks",
		},
		[]string{"process_type", "fired"},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_tasks_total",
			Help: "Total number of finished tasks",
		},
		[]string{"process_type", "outcome"}, // outcome: completed, escalated, failed, cancelled
	)

	taskDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizflow_task_duration_seconds",
			Help:    "Task duration from begin to finish in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"process_type"},
	)

	activeTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bizflow_active_tasks",
			Help: "Number of tasks currently held by the kernel",
		},
	)
)

// =============================================================================
// BUDGET METRICS
// =============================================================================

var (
	tokensConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_tokens_consumed_total",
			Help: "Estimated tokens charged against task budgets",
		},
		[]string{"phase"},
	)

	budgetExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_budget_exhausted_total",
			Help: "Total number of tasks that exhausted their token budget",
		},
		[]string{"process_type"},
	)
)

// =============================================================================
// SESSION METRICS
// =============================================================================

var (
	checkpointsSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_checkpoints_saved_total",
			Help: "Total checkpoint writes",
		},
		[]string{"status"}, // status: ok, error
	)

	checkpointRestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_checkpoint_restores_total",
			Help: "Checkpoint loads by outcome",
		},
		[]string{"status"}, // status: none, applied, reset, terminal, error
	)

	sessionEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizflow_session_evictions_total",
			Help: "Total idle sessions evicted",
		},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizflow_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizflow_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordPolicyEvaluation records one evaluation and the class of every rule it triggered.
func RecordPolicyEvaluation(outcome string, triggeredClasses []string) {
	policyEvaluationsTotal.WithLabelValues(outcome).Inc()
	for _, class := range triggeredClasses {
		policyRulesTriggeredTotal.WithLabelValues(class).Inc()
	}
}

// RecordTransition records a state machine transition.
func RecordTransition(processType string, toState string) {
	fsmTransitionsTotal.WithLabelValues(processType, toState).Inc()
}

// RecordGateDecision records an approval gate check.
func RecordGateDecision(processType string, fired bool) {
	label := "false"
	if fired {
		label = "true"
	}
	approvalGateDecisionsTotal.WithLabelValues(processType, label).Inc()
}

// RecordTaskOutcome records a finished task.
// This should be called once per task, when it leaves the kernel.
func RecordTaskOutcome(processType string, outcome string, durationMS int) {
	tasksTotal.WithLabelValues(processType, outcome).Inc()
	taskDurationSeconds.WithLabelValues(processType).Observe(float64(durationMS) / 1000.0)
}

// SetActiveTasks sets the number of tasks held by the kernel.
func SetActiveTasks(n int) {
	activeTasks.Set(float64(n))
}

// RecordTokensConsumed records tokens charged to a phase.
func RecordTokensConsumed(phase string, tokens int) {
	if tokens <= 0 {
		return
	}
	tokensConsumedTotal.WithLabelValues(phase).Add(float64(tokens))
}

// RecordBudgetExhausted records a task whose budget ran out.
func RecordBudgetExhausted(processType string) {
	budgetExhaustedTotal.WithLabelValues(processType).Inc()
}

// RecordCheckpointSaved records a checkpoint write.
func RecordCheckpointSaved(status string) {
	checkpointsSavedTotal.WithLabelValues(status).Inc()
}

// RecordCheckpointRestore records the outcome of loading a checkpoint.
func RecordCheckpointRestore(status string) {
	checkpointRestoresTotal.WithLabelValues(status).Inc()
}

// RecordSessionEviction records one evicted session.
func RecordSessionEviction() {
	sessionEvictionsTotal.Inc()
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}
