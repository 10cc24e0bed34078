// Bizflow control-plane server
//
// Standalone gRPC server exposing the bizflow.v1.ControlPlane service. Agent
// workers call it to begin tasks, report phase outcomes and resolve approvals.
//
// Usage:
//
//	go run ./cmd                                  # Default :50051, in-memory checkpoints
//	go run ./cmd -addr :8080 -redis localhost:6379
//	go run ./cmd -config bizflow.yaml -templates processes.yaml -otlp localhost:4317
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/config"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/grpc"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/kernel"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/observability"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/session"
)

var levels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// stdLogger implements the Logger interfaces using standard library log.
type stdLogger struct {
	min int
}

func newStdLogger(level string) *stdLogger {
	min, ok := levels[level]
	if !ok {
		min = levels["INFO"]
	}
	return &stdLogger{min: min}
}

func (l *stdLogger) logf(level, msg string, keysAndValues []any) {
	if levels[level] < l.min {
		return
	}
	log.Printf("[%s] %s %v", level, msg, keysAndValues)
}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) { l.logf("DEBUG", msg, keysAndValues) }
func (l *stdLogger) Info(msg string, keysAndValues ...any)  { l.logf("INFO", msg, keysAndValues) }
func (l *stdLogger) Warn(msg string, keysAndValues ...any)  { l.logf("WARN", msg, keysAndValues) }
func (l *stdLogger) Error(msg string, keysAndValues ...any) { l.logf("ERROR", msg, keysAndValues) }

func main() {
	configPath := flag.String("config", "", "JSON or YAML config file")
	addr := flag.String("addr", "", "gRPC listen address (overrides config)")
	templatesPath := flag.String("templates", "", "YAML process template file (overrides config)")
	redisAddr := flag.String("redis", "", "Redis address or redis:// URL for checkpoints (overrides config)")
	otlpEndpoint := flag.String("otlp", "", "OTLP gRPC endpoint for traces (overrides config)")
	flag.Parse()

	cfg := config.DefaultCoreConfig()
	if *configPath != "" {
		loaded, err := config.LoadCoreConfigFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	overrideString(&cfg.GRPCAddr, *addr)
	overrideString(&cfg.TemplatesFile, *templatesPath)
	overrideString(&cfg.RedisAddr, *redisAddr)
	overrideString(&cfg.OTLPEndpoint, *otlpEndpoint)

	logger := newStdLogger(cfg.LogLevel)
	logger.Info("bizflow_starting", "version", observability.ServiceVersion, "address", cfg.GRPCAddr)

	if err := run(cfg, logger); err != nil {
		logger.Error("bizflow_failed", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("bizflow_stopped")
}

func overrideString(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func run(cfg *config.CoreConfig, logger *stdLogger) error {
	var opts []kernel.Option

	if cfg.TemplatesFile != "" {
		catalog, err := config.LoadTemplatesFile(cfg.TemplatesFile)
		if err != nil {
			return err
		}
		opts = append(opts, kernel.WithCatalog(catalog))
		logger.Info("process_templates_loaded",
			"file", cfg.TemplatesFile,
			"types", len(catalog.Templates.Types()),
		)
	}

	if cfg.RedisAddr != "" {
		store, err := session.DialRedisStore(cfg.RedisAddr, "", 0,
			session.WithKeyPrefix(cfg.RedisKeyPrefix),
			session.WithRedisIdleTTL(cfg.SessionIdleTTLDuration()),
			session.WithRedisLogger(logger),
		)
		if err != nil {
			return err
		}
		defer store.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = store.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		opts = append(opts, kernel.WithCheckpointStore(store))
		logger.Info("redis_checkpoints_enabled", "addr", cfg.RedisAddr)
	}

	if cfg.OTLPEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(cfg.ServiceName, cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
		logger.Info("tracing_enabled", "endpoint", cfg.OTLPEndpoint)
	}

	k := kernel.NewKernel(logger, cfg, opts...)
	stopCleanup := k.StartCleanupLoop(kernel.CleanupConfigFrom(cfg))
	defer stopCleanup()

	server := grpc.NewGracefulServer(grpc.NewServer(logger, k), cfg.GRPCAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nBizflow control plane running on %s\n", cfg.GRPCAddr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("shutdown_signal_received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return k.Shutdown(shutdownCtx)
}
