// Package kernel drives business-process tasks through the control plane.
//
// The Kernel composes:
//   - process.Machine (state sequencing, one per task)
//   - policy evaluation (once per task)
//   - hitl.Classifier (approval gate)
//   - budget.TokenBudget (model tier and output caps, one per task)
//   - session.Store and a CheckpointStore (per-session position)
//
// The kernel never runs a phase itself. Workers call BeginTask, execute the
// returned Instruction and report back with CompletePhase until the kernel
// answers with a terminate instruction.
package kernel

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/config"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/observability"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/session"
)

// Logger is the logging surface used by the kernel.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// =============================================================================
// Options
// =============================================================================

type kernelOptions struct {
	catalog     *config.ProcessCatalog
	sessions    *session.Store
	checkpoints session.CheckpointStore
	now         func() time.Time
}

// Option configures NewKernel.
type Option func(*kernelOptions)

// WithCatalog replaces the built-in process templates and classifier overrides.
func WithCatalog(catalog *config.ProcessCatalog) Option {
	return func(o *kernelOptions) { o.catalog = catalog }
}

// WithSessionStore supplies the session store. By default the kernel builds
// one from the config.
func WithSessionStore(store *session.Store) Option {
	return func(o *kernelOptions) { o.sessions = store }
}

// WithCheckpointStore persists checkpoints somewhere other than the session
// store, e.g. a session.RedisStore.
func WithCheckpointStore(store session.CheckpointStore) Option {
	return func(o *kernelOptions) { o.checkpoints = store }
}

// WithClock sets the time source for tasks and the default session store.
func WithClock(now func() time.Time) Option {
	return func(o *kernelOptions) { o.now = now }
}

// =============================================================================
// Kernel
// =============================================================================

// Kernel coordinates tasks, sessions and checkpoints.
//
// Usage:
//
//	k := NewKernel(logger, cfg, WithCheckpointStore(redisStore))
//
//	instr, err := k.BeginTask(ctx, TaskRequest{SessionID: sid, TaskDescription: text})
//	for instr.Kind == InstructionKindRunPhase {
//	    out := runPhase(instr)
//	    instr, err = k.CompletePhase(ctx, instr.TaskID, PhaseReport{Output: out})
//	}
type Kernel struct {
	config      *config.CoreConfig
	logger      Logger
	templates   *process.TemplateTable
	classifier  *hitl.Classifier
	sessions    *session.Store
	checkpoints session.CheckpointStore
	now         func() time.Time

	tasks  map[string]*task
	mu     sync.RWMutex
	active atomic.Int64

	// Event listeners
	eventHandlers []KernelEventHandler
	eventMu       sync.RWMutex

	startedAt time.Time
}

// NewKernel creates a kernel. A nil config uses config.DefaultCoreConfig.
func NewKernel(logger Logger, cfg *config.CoreConfig, opts ...Option) *Kernel {
	if cfg == nil {
		cfg = config.DefaultCoreConfig()
	}
	o := kernelOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	if o.catalog == nil {
		o.catalog = config.DefaultProcessCatalog()
	}
	if o.sessions == nil {
		o.sessions = session.NewStore(
			session.WithIdleTTL(cfg.SessionIdleTTLDuration()),
			session.WithSweepInterval(cfg.SessionSweepIntervalDuration()),
			session.WithClock(o.now),
			session.WithLogger(logger),
			session.WithEvictionHook(func(string) { observability.RecordSessionEviction() }),
		)
	}
	if o.checkpoints == nil {
		o.checkpoints = o.sessions
	}

	k := &Kernel{
		config:        cfg,
		logger:        logger,
		templates:     o.catalog.Templates,
		classifier:    hitl.NewClassifier(o.catalog.ActionClasses),
		sessions:      o.sessions,
		checkpoints:   o.checkpoints,
		now:           o.now,
		tasks:         make(map[string]*task),
		eventHandlers: []KernelEventHandler{},
		startedAt:     o.now(),
	}

	if logger != nil {
		logger.Info("kernel_initialized",
			"process_types", len(k.templates.Types()),
			"default_process_type", cfg.DefaultProcessType,
			"task_token_budget", cfg.TaskTokenBudget,
			"read_only_shortcut", cfg.ReadOnlyShortcut,
		)
	}

	return k
}

// =============================================================================
// Subsystem Access
// =============================================================================

// Config returns the kernel configuration.
func (k *Kernel) Config() *config.CoreConfig {
	return k.config
}

// Templates returns the process template table.
func (k *Kernel) Templates() *process.TemplateTable {
	return k.templates
}

// Classifier returns the action classifier used by the approval gate.
func (k *Kernel) Classifier() *hitl.Classifier {
	return k.classifier
}

// Sessions returns the session store.
func (k *Kernel) Sessions() *session.Store {
	return k.sessions
}

// AuxCache returns the auxiliary cache of a session, creating the session if needed.
func (k *Kernel) AuxCache(sessionID string) *session.AuxCache {
	return k.sessions.AuxCache(sessionID)
}

// Checkpoint returns the persisted checkpoint of a session.
func (k *Kernel) Checkpoint(ctx context.Context, sessionID string) (*process.Checkpoint, bool, error) {
	return k.checkpoints.GetCheckpoint(ctx, sessionID)
}

// =============================================================================
// Events
// =============================================================================

// OnEvent registers a handler for kernel events.
func (k *Kernel) OnEvent(handler KernelEventHandler) {
	k.eventMu.Lock()
	defer k.eventMu.Unlock()
	k.eventHandlers = append(k.eventHandlers, handler)
}

func (k *Kernel) emitEvent(event *KernelEvent) {
	k.eventMu.RLock()
	handlers := make([]KernelEventHandler, len(k.eventHandlers))
	copy(handlers, k.eventHandlers)
	k.eventMu.RUnlock()

	for _, handler := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil && k.logger != nil {
					k.logger.Error("event_handler_panic",
						"event_type", string(event.EventType),
						"panic", r,
					)
				}
			}()
			handler(event)
		}()
	}
}

func (k *Kernel) newEvent(eventType KernelEventType, t *task, data map[string]any) *KernelEvent {
	return &KernelEvent{
		EventType: eventType,
		Timestamp: k.now(),
		TaskID:    t.id,
		SessionID: t.sessionID,
		RequestID: t.requestID,
		UserID:    t.userID,
		Data:      data,
	}
}

// =============================================================================
// Status
// =============================================================================

// GetSystemStatus returns a snapshot of kernel state.
func (k *Kernel) GetSystemStatus() map[string]any {
	k.mu.RLock()
	tasks := make([]*task, 0, len(k.tasks))
	for _, t := range k.tasks {
		tasks = append(tasks, t)
	}
	k.mu.RUnlock()

	byStatus := make(map[string]int)
	for _, t := range tasks {
		t.mu.Lock()
		byStatus[string(t.status)]++
		t.mu.Unlock()
	}

	return map[string]any{
		"tasks": map[string]any{
			"total":     len(tasks),
			"active":    k.active.Load(),
			"by_status": byStatus,
		},
		"sessions":       k.sessions.Len(),
		"process_types":  k.templates.Types(),
		"uptime_seconds": k.now().Sub(k.startedAt).Seconds(),
	}
}

// =============================================================================
// Shutdown
// =============================================================================

// ShutdownError aggregates multiple errors that occurred during shutdown.
type ShutdownError struct {
	Errors []error
}

// Error returns a string representation of the shutdown errors.
func (e *ShutdownError) Error() string {
	if len(e.Errors) == 0 {
		return "shutdown completed with no errors"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("shutdown error: %v", e.Errors[0])
	}
	return fmt.Sprintf("shutdown completed with %d errors", len(e.Errors))
}

// Unwrap returns the first error for compatibility with errors.Is/As.
func (e *ShutdownError) Unwrap() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Shutdown checkpoints every unfinished task so its session resumes from the
// same step, then drops all tasks.
func (k *Kernel) Shutdown(ctx context.Context) error {
	if k.logger != nil {
		k.logger.Info("kernel_shutdown_initiated")
	}

	k.mu.Lock()
	tasks := make([]*task, 0, len(k.tasks))
	for _, t := range k.tasks {
		tasks = append(tasks, t)
	}
	k.tasks = make(map[string]*task)
	k.mu.Unlock()
	k.active.Store(0)
	observability.SetActiveTasks(0)

	var errs []error
	for _, t := range tasks {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown cancelled: %w", ctx.Err()))
			if k.logger != nil {
				k.logger.Warn("shutdown_cancelled", "error", ctx.Err().Error())
			}
			return &ShutdownError{Errors: errs}
		default:
		}

		t.mu.Lock()
		if !t.status.IsFinished() {
			if err := k.saveCheckpoint(ctx, t); err != nil {
				errs = append(errs, fmt.Errorf("checkpoint %s: %w", t.id, err))
			}
		}
		t.mu.Unlock()
	}

	if k.logger != nil {
		k.logger.Info("kernel_shutdown_completed", "tasks", len(tasks), "errors", len(errs))
	}

	if len(errs) > 0 {
		return &ShutdownError{Errors: errs}
	}
	return nil
}
