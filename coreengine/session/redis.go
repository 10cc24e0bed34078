package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// DefaultKeyPrefix namespaces checkpoint keys.
const DefaultKeyPrefix = "bizflow:"

// RedisStore keeps checkpoints in Redis as JSON. Each key expires after the
// idle TTL; reads refresh the expiry so active sessions stay alive.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	idleTTL   time.Duration
	logger    Logger
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithRedisIdleTTL sets the key expiry. Non-positive values are ignored.
func WithRedisIdleTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithRedisLogger sets the store logger.
func WithRedisLogger(logger Logger) RedisOption {
	return func(s *RedisStore) { s.logger = logger }
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		idleTTL:   DefaultIdleTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedisStore creates a client and wraps it. addr is either host:port or a
// redis:// URL; a URL's password and database take precedence.
func DialRedisStore(addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	options := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		options = parsed
	}
	return NewRedisStore(redis.NewClient(options), opts...), nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + "checkpoint:" + sessionID
}

// SaveCheckpoint writes cp, overwriting any earlier value.
func (s *RedisStore) SaveCheckpoint(ctx context.Context, sessionID string, cp *process.Checkpoint) error {
	if cp == nil {
		return nil
	}
	stored := cp.Clone()
	if stored.SavedAt.IsZero() {
		stored.SavedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), payload, s.idleTTL).Err(); err != nil {
		return fmt.Errorf("redis save checkpoint %s: %w", sessionID, err)
	}
	if s.logger != nil {
		s.logger.Debug("checkpoint_saved", "session_id", sessionID, "process_type", stored.ProcessType, "state_index", stored.StateIndex)
	}
	return nil
}

// GetCheckpoint reads the session's checkpoint and refreshes its expiry.
// A payload that cannot be decoded is reported as process.ErrInvalidCheckpoint.
func (s *RedisStore) GetCheckpoint(ctx context.Context, sessionID string) (*process.Checkpoint, bool, error) {
	key := s.key(sessionID)

	var get *redis.StringCmd
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, key)
		pipe.Expire(ctx, key, s.idleTTL)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get checkpoint %s: %w", sessionID, err)
	}

	var cp process.Checkpoint
	if err := json.Unmarshal([]byte(get.Val()), &cp); err != nil {
		return nil, false, fmt.Errorf("%w: decode %s: %v", process.ErrInvalidCheckpoint, sessionID, err)
	}
	return &cp, true, nil
}

// DeleteCheckpoint removes the session's checkpoint.
func (s *RedisStore) DeleteCheckpoint(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis delete checkpoint %s: %w", sessionID, err)
	}
	return nil
}

var (
	_ CheckpointStore = (*Store)(nil)
	_ CheckpointStore = (*RedisStore)(nil)
)
