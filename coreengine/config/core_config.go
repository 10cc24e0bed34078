// Package config provides control-plane configuration.
//
// CoreConfig holds the knobs the kernel and the server read at startup:
//   - Token budget and model tiers
//   - Process template behaviour
//   - Session and task retention
//   - Infrastructure endpoints (Redis, OTLP, gRPC listen address)
//
// Configuration is decoded from plain maps so the same code serves JSON and
// YAML files as well as maps built in tests.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/budget"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/typeutil"
)

// CoreConfig holds control-plane configuration.
type CoreConfig struct {
	// Budget
	TaskTokenBudget int    `json:"task_token_budget"`
	FastModel       string `json:"fast_model"`
	StrongModel     string `json:"strong_model"`

	// Process behaviour
	DefaultProcessType string `json:"default_process_type"`
	ReadOnlyShortcut   bool   `json:"read_only_shortcut"`
	TemplatesFile      string `json:"templates_file,omitempty"`

	// Retention (seconds)
	SessionIdleTTL       int `json:"session_idle_ttl"`
	SessionSweepInterval int `json:"session_sweep_interval"`
	TaskRetention        int `json:"task_retention"`
	CleanupInterval      int `json:"cleanup_interval"`

	// Infrastructure
	GRPCAddr       string `json:"grpc_addr"`
	RedisAddr      string `json:"redis_addr,omitempty"`
	RedisKeyPrefix string `json:"redis_key_prefix"`
	OTLPEndpoint   string `json:"otlp_endpoint,omitempty"`
	ServiceName    string `json:"service_name"`

	// Logging
	LogLevel string `json:"log_level"`
}

// DefaultCoreConfig returns a CoreConfig with default values.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		TaskTokenBudget: budget.DefaultCapacity,
		FastModel:       "claude-haiku",
		StrongModel:     "claude-sonnet",

		DefaultProcessType: process.DefaultProcessType,
		ReadOnlyShortcut:   true,

		SessionIdleTTL:       3600,
		SessionSweepInterval: 60,
		TaskRetention:        1800,
		CleanupInterval:      300,

		GRPCAddr:       ":50051",
		RedisKeyPrefix: "bizflow:",
		ServiceName:    "bizflow",

		LogLevel: "INFO",
	}
}

// CoreConfigFromMap creates a CoreConfig from a map, starting from defaults.
// Unknown keys are ignored; numbers may arrive as int or float64.
func CoreConfigFromMap(m map[string]any) *CoreConfig {
	c := DefaultCoreConfig()

	c.TaskTokenBudget = typeutil.IntFromMap(m, "task_token_budget", c.TaskTokenBudget)
	c.FastModel = typeutil.StringFromMap(m, "fast_model", c.FastModel)
	c.StrongModel = typeutil.StringFromMap(m, "strong_model", c.StrongModel)

	c.DefaultProcessType = typeutil.StringFromMap(m, "default_process_type", c.DefaultProcessType)
	c.ReadOnlyShortcut = typeutil.BoolFromMap(m, "read_only_shortcut", c.ReadOnlyShortcut)
	c.TemplatesFile = typeutil.StringFromMap(m, "templates_file", c.TemplatesFile)

	c.SessionIdleTTL = typeutil.IntFromMap(m, "session_idle_ttl", c.SessionIdleTTL)
	c.SessionSweepInterval = typeutil.IntFromMap(m, "session_sweep_interval", c.SessionSweepInterval)
	c.TaskRetention = typeutil.IntFromMap(m, "task_retention", c.TaskRetention)
	c.CleanupInterval = typeutil.IntFromMap(m, "cleanup_interval", c.CleanupInterval)

	c.GRPCAddr = typeutil.StringFromMap(m, "grpc_addr", c.GRPCAddr)
	c.RedisAddr = typeutil.StringFromMap(m, "redis_addr", c.RedisAddr)
	c.RedisKeyPrefix = typeutil.StringFromMap(m, "redis_key_prefix", c.RedisKeyPrefix)
	c.OTLPEndpoint = typeutil.StringFromMap(m, "otlp_endpoint", c.OTLPEndpoint)
	c.ServiceName = typeutil.StringFromMap(m, "service_name", c.ServiceName)

	c.LogLevel = strings.ToUpper(typeutil.StringFromMap(m, "log_level", c.LogLevel))

	return c
}

// ToMap converts config to a map. Empty optional endpoints are omitted.
func (c *CoreConfig) ToMap() map[string]any {
	result := map[string]any{
		"task_token_budget":      c.TaskTokenBudget,
		"fast_model":             c.FastModel,
		"strong_model":           c.StrongModel,
		"default_process_type":   c.DefaultProcessType,
		"read_only_shortcut":     c.ReadOnlyShortcut,
		"session_idle_ttl":       c.SessionIdleTTL,
		"session_sweep_interval": c.SessionSweepInterval,
		"task_retention":         c.TaskRetention,
		"cleanup_interval":       c.CleanupInterval,
		"grpc_addr":              c.GRPCAddr,
		"redis_key_prefix":       c.RedisKeyPrefix,
		"service_name":           c.ServiceName,
		"log_level":              c.LogLevel,
	}
	if c.TemplatesFile != "" {
		result["templates_file"] = c.TemplatesFile
	}
	if c.RedisAddr != "" {
		result["redis_addr"] = c.RedisAddr
	}
	if c.OTLPEndpoint != "" {
		result["otlp_endpoint"] = c.OTLPEndpoint
	}
	return result
}

var validLogLevels = map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}

// Validate reports every invalid field.
func (c *CoreConfig) Validate() error {
	var errs []error
	if c.TaskTokenBudget <= 0 {
		errs = append(errs, fmt.Errorf("task_token_budget must be positive, got %d", c.TaskTokenBudget))
	}
	if strings.TrimSpace(c.FastModel) == "" {
		errs = append(errs, errors.New("fast_model is required"))
	}
	if strings.TrimSpace(c.DefaultProcessType) == "" {
		errs = append(errs, errors.New("default_process_type is required"))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("session_idle_ttl must be positive, got %d", c.SessionIdleTTL))
	}
	if c.SessionSweepInterval < 0 {
		errs = append(errs, fmt.Errorf("session_sweep_interval must not be negative, got %d", c.SessionSweepInterval))
	}
	if c.TaskRetention <= 0 {
		errs = append(errs, fmt.Errorf("task_retention must be positive, got %d", c.TaskRetention))
	}
	if c.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("cleanup_interval must be positive, got %d", c.CleanupInterval))
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q is not one of DEBUG, INFO, WARN, ERROR", c.LogLevel))
	}
	return errors.Join(errs...)
}

// SessionIdleTTLDuration returns SessionIdleTTL as a duration.
func (c *CoreConfig) SessionIdleTTLDuration() time.Duration {
	return time.Duration(c.SessionIdleTTL) * time.Second
}

// SessionSweepIntervalDuration returns SessionSweepInterval as a duration.
func (c *CoreConfig) SessionSweepIntervalDuration() time.Duration {
	return time.Duration(c.SessionSweepInterval) * time.Second
}

// TaskRetentionDuration returns TaskRetention as a duration.
func (c *CoreConfig) TaskRetentionDuration() time.Duration {
	return time.Duration(c.TaskRetention) * time.Second
}

// CleanupIntervalDuration returns CleanupInterval as a duration.
func (c *CoreConfig) CleanupIntervalDuration() time.Duration {
	return time.Duration(c.CleanupInterval) * time.Second
}

// LoadCoreConfigFile reads a JSON or YAML file into a validated CoreConfig.
func LoadCoreConfigFile(path string) (*CoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	c := CoreConfigFromMap(m)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}
