package kernel

import (
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/config"
)

// CleanupConfig holds configurable cleanup parameters.
type CleanupConfig struct {
	// Interval is how often to run cleanup (default: 5 minutes).
	Interval time.Duration
	// TaskRetention is how long an idle task stays queryable (default: 30 minutes).
	TaskRetention time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:      5 * time.Minute,
		TaskRetention: 30 * time.Minute,
	}
}

// CleanupConfigFrom derives the cleanup schedule from a core config.
func CleanupConfigFrom(cfg *config.CoreConfig) CleanupConfig {
	if cfg == nil {
		return DefaultCleanupConfig()
	}
	return CleanupConfig{
		Interval:      cfg.CleanupIntervalDuration(),
		TaskRetention: cfg.TaskRetentionDuration(),
	}
}

// StartCleanupLoop starts a background goroutine that periodically drops stale
// tasks and evicts idle sessions, so abandoned sessions go away even when no
// request touches the store. Returns an idempotent stop function.
func (k *Kernel) StartCleanupLoop(cfg CleanupConfig) func() {
	if cfg.Interval == 0 {
		cfg = DefaultCleanupConfig()
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})

	SafeGo(k.logger, "cleanup_loop", func() {
		for {
			select {
			case <-ticker.C:
				k.runCleanupCycle(cfg)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}, func(any) { ticker.Stop() })

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// runCleanupCycle performs a single cleanup cycle. A panic is logged and the
// loop keeps running.
func (k *Kernel) runCleanupCycle(cfg CleanupConfig) {
	_ = SafeExecute(k.logger, "cleanup_cycle", func() error {
		taskCount := k.CleanupStaleTasks(cfg.TaskRetention)
		sessionCount := k.sessions.EvictStale(k.liveSessionIDs()...)

		if k.logger != nil {
			k.logger.Debug("cleanup_cycle_completed",
				"tasks_cleaned", taskCount,
				"sessions_evicted", sessionCount,
			)
		}
		return nil
	})
}

// liveSessionIDs returns the sessions of tasks that have not finished. Their
// aux caches must outlive an idle gap between phases.
func (k *Kernel) liveSessionIDs() []string {
	k.mu.RLock()
	tasks := make([]*task, 0, len(k.tasks))
	for _, t := range k.tasks {
		tasks = append(tasks, t)
	}
	k.mu.RUnlock()

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		if !t.status.IsFinished() {
			ids = append(ids, t.sessionID)
		}
		t.mu.Unlock()
	}
	return ids
}
