// Package session keeps one workflow checkpoint and a set of auxiliary caches
// per conversation.
//
// Store is the in-memory implementation. Sessions idle for longer than the
// idle TTL are dropped lazily while the store is being accessed; the session
// being served is never evicted by its own request. RedisStore persists
// checkpoints across process restarts.
package session

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

const (
	// DefaultIdleTTL is how long a session may sit unused before eviction.
	DefaultIdleTTL = time.Hour
	// DefaultSweepInterval throttles the lazy eviction scan.
	DefaultSweepInterval = time.Minute
)

// Logger is the logging surface used by stores.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// CheckpointStore persists one checkpoint per session. Saves are
// last-write-wins with no merge.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, sessionID string, cp *process.Checkpoint) error
	GetCheckpoint(ctx context.Context, sessionID string) (*process.Checkpoint, bool, error)
	DeleteCheckpoint(ctx context.Context, sessionID string) error
}

// Info is a snapshot of one session.
type Info struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
	HasCheckpoint bool      `json:"has_checkpoint"`
	AuxEntries    int       `json:"aux_entries"`
}

type entry struct {
	id         string
	createdAt  time.Time
	lastActive time.Time
	checkpoint *process.Checkpoint
	aux        *AuxCache
}

func (e *entry) info() Info {
	return Info{
		ID:            e.id,
		CreatedAt:     e.createdAt,
		LastActive:    e.lastActive,
		HasCheckpoint: e.checkpoint != nil,
		AuxEntries:    e.aux.Len(),
	}
}

// =============================================================================
// Store
// =============================================================================

// Store is an in-memory session store. It is safe for concurrent use; no
// operation blocks on I/O.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	idleTTL       time.Duration
	sweepInterval time.Duration
	lastSweep     time.Time

	now     func() time.Time
	onEvict func(sessionID string)
	logger  Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIdleTTL sets the idle eviction threshold. Non-positive values are ignored.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithSweepInterval sets the minimum time between lazy eviction scans.
// Zero scans on every access.
func WithSweepInterval(d time.Duration) StoreOption {
	return func(s *Store) {
		if d >= 0 {
			s.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictionHook registers a callback run for every evicted session.
func WithEvictionHook(fn func(sessionID string)) StoreOption {
	return func(s *Store) { s.onEvict = fn }
}

// WithLogger sets the store logger.
func WithLogger(logger Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		sessions:      make(map[string]*entry),
		idleTTL:       DefaultIdleTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdleTTL returns the eviction threshold.
func (s *Store) IdleTTL() time.Duration { return s.idleTTL }

// touch returns the entry for sessionID, creating it if needed, after running
// a throttled sweep that skips sessionID. Callers hold s.mu.
func (s *Store) touch(sessionID string) *entry {
	now := s.now()
	s.maybeSweepLocked(sessionID, now)

	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{id: sessionID, createdAt: now, aux: newAuxCache()}
		s.sessions[sessionID] = e
		if s.logger != nil {
			s.logger.Debug("session_created", "session_id", sessionID)
		}
	}
	e.lastActive = now
	return e
}

// GetOrCreate returns the session, creating it on first use.
func (s *Store) GetOrCreate(sessionID string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(sessionID).info()
}

// Get returns the session without creating it. It does not refresh the
// session's idle timer.
func (s *Store) Get(sessionID string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybeSweepLocked(sessionID, s.now())
	e, ok := s.sessions[sessionID]
	if !ok {
		return Info{}, false
	}
	return e.info(), true
}

// SaveCheckpoint stores a copy of cp for the session, replacing any earlier
// checkpoint. A zero SavedAt is stamped with the store clock.
func (s *Store) SaveCheckpoint(_ context.Context, sessionID string, cp *process.Checkpoint) error {
	if cp == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.touch(sessionID)
	stored := cp.Clone()
	if stored.SavedAt.IsZero() {
		stored.SavedAt = e.lastActive
	}
	e.checkpoint = stored
	return nil
}

// GetCheckpoint returns a copy of the session's checkpoint. A session with
// no checkpoint, or no session at all, reports ok=false.
func (s *Store) GetCheckpoint(_ context.Context, sessionID string) (*process.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.maybeSweepLocked(sessionID, s.now())
	e, ok := s.sessions[sessionID]
	if !ok || e.checkpoint == nil {
		return nil, false, nil
	}
	e.lastActive = s.now()
	return e.checkpoint.Clone(), true, nil
}

// DeleteCheckpoint clears the session's checkpoint and keeps its caches.
func (s *Store) DeleteCheckpoint(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[sessionID]; ok {
		e.checkpoint = nil
	}
	return nil
}

// AuxCache returns the session's auxiliary cache, creating the session and
// an empty cache on first access. The cache lives as long as the session.
func (s *Store) AuxCache(sessionID string) *AuxCache {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touch(sessionID).aux
}

// Delete drops a session. It reports whether the session existed.
func (s *Store) Delete(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SessionIDs returns the live session IDs, sorted.
func (s *Store) SessionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvictStale drops every idle session now except those named in keep,
// ignoring the sweep throttle. It returns the number evicted.
func (s *Store) EvictStale(keep ...string) int {
	skip := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		skip[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(skip, s.now())
}

func (s *Store) maybeSweepLocked(current string, now time.Time) {
	if !s.lastSweep.IsZero() && now.Sub(s.lastSweep) < s.sweepInterval {
		return
	}
	s.sweepLocked(map[string]struct{}{current: {}}, now)
}

// sweepLocked evicts sessions idle for longer than the TTL, never those in skip.
func (s *Store) sweepLocked(skip map[string]struct{}, now time.Time) int {
	s.lastSweep = now
	evicted := 0
	for id, e := range s.sessions {
		if _, ok := skip[id]; ok || now.Sub(e.lastActive) <= s.idleTTL {
			continue
		}
		delete(s.sessions, id)
		evicted++
		if s.onEvict != nil {
			s.onEvict(id)
		}
		if s.logger != nil {
			s.logger.Debug("session_evicted", "session_id", id, "idle", now.Sub(e.lastActive).String())
		}
	}
	return evicted
}

// =============================================================================
// AuxCache
// =============================================================================

// AuxCache is a session-scoped key/value cache, such as corrections learned
// for schema names during a conversation. It is safe for concurrent use.
type AuxCache struct {
	mu      sync.RWMutex
	entries map[string]any
}

func newAuxCache() *AuxCache {
	return &AuxCache{entries: make(map[string]any)}
}

// Get returns the value stored under key.
func (c *AuxCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// GetString returns the string stored under key, or "" when absent or not a string.
func (c *AuxCache) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// Set stores value under key.
func (c *AuxCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Delete removes key.
func (c *AuxCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries.
func (c *AuxCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the entries whose keys start with prefix.
// An empty prefix copies everything.
func (c *AuxCache) Snapshot(prefix string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any)
	for k, v := range c.entries {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}
