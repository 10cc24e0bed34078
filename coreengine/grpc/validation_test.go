package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/kernel"
)

// =============================================================================
// VALIDATE REQUIRED TESTS
// =============================================================================

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		fieldName string
		wantErr   bool
	}{
		{"task id", "task_abc", "task_id", false},
		{"session id", "sess-1", "session_id", false},
		{"empty task id", "", "task_id", true},
		{"whitespace session id", "   ", "session_id", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequired(tt.value, tt.fieldName)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, codes.InvalidArgument, st.Code())
			assert.Equal(t, tt.fieldName+" is required", st.Message())
		})
	}
}

// =============================================================================
// ERROR BUILDER TESTS
// =============================================================================

func TestErrorBuilders(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
		wantMsg  string
	}{
		{"invalid argument", InvalidArgument("session_id"), codes.InvalidArgument, "session_id is required"},
		{"invalid argument formatted", InvalidArgumentf("unknown state %q", "LIMBO"), codes.InvalidArgument, `unknown state "LIMBO"`},
		{"not found", NotFound("task", "task_42"), codes.NotFound, "task not found: task_42"},
		{"internal", Internal("get checkpoint", errors.New("redis down")), codes.Internal, "get checkpoint failed: redis down"},
		{"failed precondition", FailedPrecondition("task t1", "finished", "complete phase"), codes.FailedPrecondition, "task t1 in state finished cannot complete phase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
			assert.Equal(t, tt.wantMsg, st.Message())
		})
	}
}

// =============================================================================
// KERNEL ERROR MAPPING TESTS
// =============================================================================

func TestKernelError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    codes.Code
		msgContains string
	}{
		{"not found", fmt.Errorf("%w: task_1", kernel.ErrTaskNotFound), codes.NotFound, "task not found: task_1"},
		{"invalid request", fmt.Errorf("%w: session_id is empty", kernel.ErrInvalidRequest), codes.InvalidArgument, "session_id is empty"},
		{"finished", kernel.ErrTaskFinished, codes.FailedPrecondition, "in state finished cannot complete phase"},
		{"awaiting approval", kernel.ErrAwaitingApproval, codes.FailedPrecondition, "awaiting_approval"},
		{"not awaiting approval", kernel.ErrNotAwaitingApproval, codes.FailedPrecondition, "has no pending approval"},
		{"gate not reopenable", fmt.Errorf("%w: task is at DECOMPOSE", kernel.ErrGateNotReopenable), codes.FailedPrecondition, "cannot be reopened"},
		{"anything else", errors.New("disk on fire"), codes.Internal, "complete phase failed: disk on fire"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := kernelError("complete phase", "task_1", tt.err)

			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
			assert.Contains(t, st.Message(), tt.msgContains)
		})
	}
}

// =============================================================================
// REQUEST CONTEXT TESTS
// =============================================================================

func TestExtractRequestContext(t *testing.T) {
	t.Run("no metadata", func(t *testing.T) {
		rc := extractRequestContext(context.Background())
		assert.Empty(t, rc.RequestID)
		assert.Empty(t, rc.UserID)
	})

	t.Run("both keys", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(),
			metadata.Pairs("request_id", "req-7", "user_id", "controller@example.com"))
		rc := extractRequestContext(ctx)
		assert.Equal(t, "req-7", rc.RequestID)
		assert.Equal(t, "controller@example.com", rc.UserID)
	})

	t.Run("first value wins", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(),
			metadata.Pairs("user_id", "alice", "user_id", "bob"))
		rc := extractRequestContext(ctx)
		assert.Equal(t, "alice", rc.UserID)
		assert.Empty(t, rc.RequestID)
	})
}
