// Package grpc exposes the kernel as the bizflow.v1.ControlPlane service.
//
// Interceptors add logging, recovery and metrics to every call; tracing comes
// from the otelgrpc stats handler installed by ServerOptions.
package grpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/observability"
)

// =============================================================================
// LOGGING INTERCEPTOR
// =============================================================================

// LoggingInterceptor logs every call with its duration and status code.
// Client-side terminations (Canceled, DeadlineExceeded) log at warn level,
// other failures at error level. The caller's request_id is attached when
// present in metadata.
func LoggingInterceptor(logger Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		fields := []any{"method", info.FullMethod}
		if rc := extractRequestContext(ctx); rc.RequestID != "" {
			fields = append(fields, "request_id", rc.RequestID)
		}
		logger.Debug("grpc_request_started", fields...)

		resp, err := handler(ctx, req)
		fields = append(fields, "duration_ms", time.Since(start).Milliseconds())

		if err == nil {
			logger.Debug("grpc_request_completed", fields...)
			return resp, nil
		}

		code := status.Code(err)
		fields = append(fields, "code", code.String(), "error", err.Error())
		switch code {
		case codes.Canceled, codes.DeadlineExceeded:
			logger.Warn("grpc_request_failed", fields...)
		default:
			logger.Error("grpc_request_failed", fields...)
		}
		return resp, err
	}
}

// =============================================================================
// RECOVERY INTERCEPTOR
// =============================================================================

// RecoveryHandler maps a recovered panic value to the error sent to the client.
type RecoveryHandler func(p any) error

// DefaultRecoveryHandler returns an Internal error with panic details.
func DefaultRecoveryHandler(p any) error {
	return status.Errorf(codes.Internal, "panic recovered: %v", p)
}

// RecoveryInterceptor turns a handler panic into the error returned by
// handler (DefaultRecoveryHandler when nil) and logs the stack.
func RecoveryInterceptor(logger Logger, handler RecoveryHandler) grpc.UnaryServerInterceptor {
	if handler == nil {
		handler = DefaultRecoveryHandler
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			logger.Error("grpc_panic_recovered",
				"method", info.FullMethod,
				"request_id", extractRequestContext(ctx).RequestID,
				"panic", fmt.Sprint(p),
				"stack", string(debug.Stack()),
			)
			resp, err = nil, handler(p)
		}()
		return next(ctx, req)
	}
}

// =============================================================================
// METRICS INTERCEPTOR
// =============================================================================

// MetricsInterceptor records the count and duration of every call by method
// and status code.
func MetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observability.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), int(time.Since(start).Milliseconds()))
		return resp, err
	}
}

// =============================================================================
// CHAIN INTERCEPTORS
// =============================================================================

// ChainUnaryInterceptors composes interceptors so the first one listed is
// the outermost.
func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			next = bind(interceptors[i], info, next)
		}
		return next(ctx, req)
	}
}

func bind(interceptor grpc.UnaryServerInterceptor, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) grpc.UnaryHandler {
	return func(ctx context.Context, req any) (any, error) {
		return interceptor(ctx, req, info, next)
	}
}

// =============================================================================
// SERVER OPTIONS BUILDER
// =============================================================================

// ServerOptions returns the OpenTelemetry stats handler and the unary chain
// recovery -> metrics -> logging.
func ServerOptions(logger Logger) []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger, nil),
			MetricsInterceptor(),
			LoggingInterceptor(logger),
		)),
	}
}
