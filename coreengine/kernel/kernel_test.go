package kernel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/config"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/session"
)

// =============================================================================
// Test Helpers
// =============================================================================

type testLogger struct {
	logs []string
	mu   sync.Mutex
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, "DEBUG: "+msg)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, "INFO: "+msg)
}

func (l *testLogger) Warn(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, "WARN: "+msg)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, "ERROR: "+msg)
}

func (l *testLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, log := range l.logs {
		if strings.Contains(log, entry) {
			return true
		}
	}
	return false
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// eventRecorder collects kernel events.
type eventRecorder struct {
	mu     sync.Mutex
	events []*KernelEvent
}

func (r *eventRecorder) handle(e *KernelEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []KernelEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]KernelEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *eventRecorder) find(eventType KernelEventType) *KernelEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventType == eventType {
			return e
		}
	}
	return nil
}

// failingStore is a CheckpointStore whose backend is down.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) SaveCheckpoint(context.Context, string, *process.Checkpoint) error {
	return errStoreDown
}

func (failingStore) GetCheckpoint(context.Context, string) (*process.Checkpoint, bool, error) {
	return nil, false, errStoreDown
}

func (failingStore) DeleteCheckpoint(context.Context, string) error {
	return errStoreDown
}

func newTestKernel(t *testing.T, opts ...Option) (*Kernel, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	return NewKernel(logger, nil, opts...), logger
}

func expenseRequest(sessionID string) TaskRequest {
	return TaskRequest{
		SessionID:       sessionID,
		TaskDescription: "Approve expense report EXP-1042 for the Berlin offsite",
		ProcessType:     "expense_approval",
		Actions:         hitl.ActionsFromNames("get_expense_report", "calculate_reimbursement", "create_reimbursement"),
	}
}

// =============================================================================
// Kernel Construction Tests
// =============================================================================

func TestNewKernel_Defaults(t *testing.T) {
	k, logger := newTestKernel(t)

	assert.Equal(t, config.DefaultCoreConfig(), k.Config())
	assert.Equal(t, process.DefaultTemplates().Types(), k.Templates().Types())
	assert.NotNil(t, k.Classifier())
	assert.NotNil(t, k.Sessions())
	assert.Equal(t, time.Hour, k.Sessions().IdleTTL())
	assert.Equal(t, 0, k.TaskCount())
	assert.True(t, logger.has("kernel_initialized"))
}

func TestNewKernel_NilLogger(t *testing.T) {
	k := NewKernel(nil, nil)
	instr, err := k.BeginTask(context.Background(), expenseRequest("quiet"))
	require.NoError(t, err)
	assert.Equal(t, InstructionKindRunPhase, instr.Kind)
}

func TestNewKernel_CatalogOverrides(t *testing.T) {
	catalog, err := config.ParseTemplates([]byte(`
templates:
  refunds: [DECOMPOSE, APPROVAL_GATE, MUTATE, COMPLETE]
action_classes:
  sync_ledger: read
`))
	require.NoError(t, err)

	k, _ := newTestKernel(t, WithCatalog(catalog))
	assert.True(t, k.Templates().Has("refunds"))
	assert.Equal(t, hitl.ClassRead, k.Classifier().Classify("sync_ledger"))
}

func TestNewKernel_ConfigDrivesSessionStore(t *testing.T) {
	cfg := config.DefaultCoreConfig()
	cfg.SessionIdleTTL = 120

	k := NewKernel(nil, cfg)
	assert.Equal(t, 2*time.Minute, k.Sessions().IdleTTL())
}

func TestKernel_AuxCache(t *testing.T) {
	k, _ := newTestKernel(t)

	instr, err := k.BeginTask(context.Background(), expenseRequest("aux"))
	require.NoError(t, err)

	cache := k.AuxCache("aux")
	assert.Equal(t, instr.TaskID, cache.GetString("last_task_id"))
	assert.Equal(t, "expense_approval", cache.GetString("process_type"))
}

// =============================================================================
// Event Tests
// =============================================================================

func TestKernel_Events(t *testing.T) {
	k, _ := newTestKernel(t)
	rec := &eventRecorder{}
	k.OnEvent(rec.handle)

	req := expenseRequest("events")
	req.RequestID = "req-1"
	req.UserID = "u-7"
	instr, err := k.BeginTask(context.Background(), req)
	require.NoError(t, err)

	types := rec.types()
	require.NotEmpty(t, types)
	assert.Equal(t, KernelEventTaskStarted, types[0])
	assert.Contains(t, types, KernelEventCheckpointSaved)

	started := rec.find(KernelEventTaskStarted)
	assert.Equal(t, instr.TaskID, started.TaskID)
	assert.Equal(t, "events", started.SessionID)
	assert.Equal(t, "req-1", started.RequestID)
	assert.Equal(t, "u-7", started.UserID)
	assert.Equal(t, "expense_approval", started.Data["process_type"])
	assert.Equal(t, "none", started.Data["restore"])
}

func TestKernel_EventHandlerPanic(t *testing.T) {
	k, logger := newTestKernel(t)
	rec := &eventRecorder{}
	k.OnEvent(func(*KernelEvent) { panic("handler bug") })
	k.OnEvent(rec.handle)

	_, err := k.BeginTask(context.Background(), expenseRequest("panicky"))
	require.NoError(t, err)

	assert.NotEmpty(t, rec.types(), "later handlers still run")
	assert.True(t, logger.has("event_handler_panic"))
}

// =============================================================================
// Status Tests
// =============================================================================

func TestKernel_GetSystemStatus(t *testing.T) {
	k, _ := newTestKernel(t)
	ctx := context.Background()

	_, err := k.BeginTask(ctx, expenseRequest("a"))
	require.NoError(t, err)
	_, err = k.BeginTask(ctx, TaskRequest{SessionID: "b", TaskDescription: "x", TokenBudget: 1})
	require.NoError(t, err)

	status := k.GetSystemStatus()
	tasks := status["tasks"].(map[string]any)
	assert.Equal(t, 2, tasks["total"])
	assert.Equal(t, int64(1), tasks["active"])
	byStatus := tasks["by_status"].(map[string]int)
	assert.Equal(t, 1, byStatus["running"])
	assert.Equal(t, 1, byStatus["budget_exhausted"])
	assert.Equal(t, 2, status["sessions"])
}

// =============================================================================
// Shutdown Tests
// =============================================================================

func TestKernel_Shutdown_CheckpointsRunningTasks(t *testing.T) {
	store := session.NewStore()
	k, logger := newTestKernel(t, WithSessionStore(store))
	ctx := context.Background()

	instr, err := k.BeginTask(ctx, expenseRequest("shutdown"))
	require.NoError(t, err)
	_, err = k.CompletePhase(ctx, instr.TaskID, PhaseReport{Output: "plan"})
	require.NoError(t, err)

	require.NoError(t, k.Shutdown(ctx))
	assert.Equal(t, 0, k.TaskCount())
	assert.True(t, logger.has("kernel_shutdown_completed"))

	cp, ok, err := store.GetCheckpoint(ctx, "shutdown")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, cp.StateIndex)
}

func TestKernel_Shutdown_ReportsStoreErrors(t *testing.T) {
	k, _ := newTestKernel(t, WithCheckpointStore(failingStore{}))
	ctx := context.Background()

	_, err := k.BeginTask(ctx, expenseRequest("s1"))
	require.NoError(t, err)
	_, err = k.BeginTask(ctx, expenseRequest("s2"))
	require.NoError(t, err)

	err = k.Shutdown(ctx)
	require.Error(t, err)
	var shutdownErr *ShutdownError
	require.ErrorAs(t, err, &shutdownErr)
	assert.Len(t, shutdownErr.Errors, 2)
	assert.ErrorIs(t, err, errStoreDown)
}

func TestKernel_Shutdown_Cancelled(t *testing.T) {
	k, _ := newTestKernel(t)
	_, err := k.BeginTask(context.Background(), expenseRequest("s1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = k.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShutdownError(t *testing.T) {
	tests := []struct {
		name    string
		errs    []error
		message string
	}{
		{"no errors", nil, "shutdown completed with no errors"},
		{"single error", []error{errors.New("redis timeout")}, "shutdown error: redis timeout"},
		{"multiple errors", []error{errors.New("a"), errors.New("b"), errors.New("c")}, "shutdown completed with 3 errors"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ShutdownError{Errors: tt.errs}
			assert.Equal(t, tt.message, err.Error())
			if len(tt.errs) == 0 {
				assert.Nil(t, err.Unwrap())
			} else {
				assert.Equal(t, tt.errs[0], err.Unwrap())
			}
		})
	}
}
