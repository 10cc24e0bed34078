package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/kernel"
)

// =============================================================================
// ARGUMENT VALIDATION
// =============================================================================

// validateRequired checks if a field is non-empty.
// Returns gRPC InvalidArgument error if empty.
func validateRequired(field, fieldName string) error {
	if strings.TrimSpace(field) == "" {
		return InvalidArgument(fieldName)
	}
	return nil
}

// =============================================================================
// ERROR CODES
// =============================================================================

// InvalidArgument returns a gRPC InvalidArgument error.
// Use for malformed or missing required fields.
func InvalidArgument(fieldName string) error {
	return status.Errorf(codes.InvalidArgument, "%s is required", fieldName)
}

// InvalidArgumentf returns a gRPC InvalidArgument error with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// NotFound returns a gRPC NotFound error.
func NotFound(resourceType, id string) error {
	return status.Errorf(codes.NotFound, "%s not found: %s", resourceType, id)
}

// Internal wraps an internal error with context.
func Internal(operation string, cause error) error {
	return status.Errorf(codes.Internal, "%s failed: %v", operation, cause)
}

// FailedPrecondition returns an error for operations the task's current
// status does not allow.
func FailedPrecondition(resource, currentState, attemptedAction string) error {
	return status.Errorf(codes.FailedPrecondition,
		"%s in state %s cannot %s", resource, currentState, attemptedAction)
}

// kernelError maps a kernel error onto a status code.
func kernelError(operation, taskID string, err error) error {
	switch {
	case errors.Is(err, kernel.ErrTaskNotFound):
		return NotFound("task", taskID)
	case errors.Is(err, kernel.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, kernel.ErrTaskFinished):
		return FailedPrecondition("task "+taskID, "finished", operation)
	case errors.Is(err, kernel.ErrAwaitingApproval):
		return FailedPrecondition("task "+taskID, string(kernel.TaskStatusAwaitingApproval), operation)
	case errors.Is(err, kernel.ErrNotAwaitingApproval):
		return status.Errorf(codes.FailedPrecondition, "task %s has no pending approval", taskID)
	case errors.Is(err, kernel.ErrGateNotReopenable):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return Internal(operation, err)
	}
}

// =============================================================================
// REQUEST CONTEXT
// =============================================================================

// requestContext is the caller identity carried in gRPC metadata.
type requestContext struct {
	RequestID string
	UserID    string
}

// extractRequestContext reads request_id and user_id from incoming metadata.
// Both are optional.
func extractRequestContext(ctx context.Context) requestContext {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return requestContext{}
	}
	first := func(key string) string {
		if vals := md.Get(key); len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	return requestContext{
		RequestID: first("request_id"),
		UserID:    first("user_id"),
	}
}
