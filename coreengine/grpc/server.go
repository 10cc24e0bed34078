package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeeves-cluster-organization/bizflow/coreengine/hitl"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/kernel"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/policy"
	"github.com/jeeves-cluster-organization/bizflow/coreengine/process"
)

// Logger interface for the server.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Server implements ControlPlaneServer on top of a kernel.
// Thread-safe: delegates to the kernel which handles synchronization.
type Server struct {
	logger Logger
	kernel *kernel.Kernel
}

// NewServer creates the control-plane service.
func NewServer(logger Logger, k *kernel.Kernel) *Server {
	return &Server{
		logger: logger,
		kernel: k,
	}
}

var _ ControlPlaneServer = (*Server)(nil)

// =============================================================================
// Task Lifecycle
// =============================================================================

// BeginTask starts a task for a session.
//
// Request fields follow kernel.TaskRequest. request_id and user_id fall back
// to the incoming metadata when absent from the message.
func (s *Server) BeginTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req kernel.TaskRequest
	if err := decodeStruct(withoutFields(in, "rules", "actions"), &req); err != nil {
		return nil, InvalidArgumentf("begin task: %v", err)
	}
	if err := validateRequired(req.SessionID, "session_id"); err != nil {
		return nil, err
	}
	rules, err := decodeRules(in)
	if err != nil {
		return nil, InvalidArgumentf("rules: %v", err)
	}
	req.Rules = rules
	req.Actions = decodeActions(in.GetFields()["actions"])

	reqCtx := extractRequestContext(ctx)
	if req.RequestID == "" {
		req.RequestID = reqCtx.RequestID
	}
	if req.UserID == "" {
		req.UserID = reqCtx.UserID
	}

	instr, err := s.kernel.BeginTask(ctx, req)
	if err != nil {
		s.logger.Error("begin_task_failed",
			"session_id", req.SessionID,
			"error", err.Error(),
		)
		return nil, kernelError("begin task", "", err)
	}

	s.logger.Debug("task_begun",
		"task_id", instr.TaskID,
		"session_id", req.SessionID,
		"instruction", string(instr.Kind),
	)
	return encodeStruct(instr)
}

// decodeRules reads the rules list with the lenient policy-document parser so
// clients may use any of its accepted key spellings.
func decodeRules(in *structpb.Struct) ([]policy.Rule, error) {
	v, ok := in.GetFields()["rules"]
	if !ok || v.GetListValue() == nil {
		return nil, nil
	}
	data, err := protojson.Marshal(v.GetListValue())
	if err != nil {
		return nil, err
	}
	doc, err := policy.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.Rules, nil
}

type completePhaseRequest struct {
	TaskID string `json:"task_id"`
	kernel.PhaseReport
}

// CompletePhase reports the outcome of the phase the task was told to run.
func (s *Server) CompletePhase(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req completePhaseRequest
	if err := decodeStruct(withoutFields(in, "actions"), &req); err != nil {
		return nil, InvalidArgumentf("complete phase: %v", err)
	}
	if err := validateRequired(req.TaskID, "task_id"); err != nil {
		return nil, err
	}
	if v, ok := in.GetFields()["actions"]; ok {
		req.Actions = decodeActions(v)
		if req.Actions == nil {
			req.Actions = []hitl.Action{}
		}
	}

	instr, err := s.kernel.CompletePhase(ctx, req.TaskID, req.PhaseReport)
	if err != nil {
		s.logger.Warn("complete_phase_failed",
			"task_id", req.TaskID,
			"error", err.Error(),
		)
		return nil, kernelError("complete phase", req.TaskID, err)
	}
	return encodeStruct(instr)
}

type resolveApprovalRequest struct {
	TaskID string `json:"task_id"`
	kernel.ApprovalDecision
}

// ResolveApproval approves or rejects the pending approval request of a task.
func (s *Server) ResolveApproval(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req resolveApprovalRequest
	if err := decodeStruct(in, &req); err != nil {
		return nil, InvalidArgumentf("resolve approval: %v", err)
	}
	if err := validateRequired(req.TaskID, "task_id"); err != nil {
		return nil, err
	}
	if req.Approver == "" {
		req.Approver = extractRequestContext(ctx).UserID
	}

	instr, err := s.kernel.ResolveApproval(ctx, req.TaskID, req.ApprovalDecision)
	if err != nil {
		return nil, kernelError("resolve approval", req.TaskID, err)
	}

	s.logger.Info("approval_decision_received",
		"task_id", req.TaskID,
		"approved", req.Approved,
		"approver", req.Approver,
	)
	return encodeStruct(instr)
}

// ReopenApprovalGate sends a task at MUTATE back through its approval gate.
func (s *Server) ReopenApprovalGate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	taskID := stringField(in, "task_id")
	if err := validateRequired(taskID, "task_id"); err != nil {
		return nil, err
	}

	instr, err := s.kernel.ReopenApprovalGate(ctx, taskID)
	if err != nil {
		return nil, kernelError("reopen approval gate", taskID, err)
	}
	return encodeStruct(instr)
}

// CancelTask drops a task. The session keeps its last saved checkpoint.
func (s *Server) CancelTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	taskID := stringField(in, "task_id")
	if err := validateRequired(taskID, "task_id"); err != nil {
		return nil, err
	}

	if err := s.kernel.CancelTask(taskID); err != nil {
		return nil, kernelError("cancel task", taskID, err)
	}

	s.logger.Info("task_cancel_requested", "task_id", taskID)
	return encodeStruct(map[string]any{"task_id": taskID, "cancelled": true})
}

// GetTask returns a snapshot of a task.
func (s *Server) GetTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	taskID := stringField(in, "task_id")
	if err := validateRequired(taskID, "task_id"); err != nil {
		return nil, err
	}

	snap, err := s.kernel.GetTask(taskID)
	if err != nil {
		return nil, kernelError("get task", taskID, err)
	}
	return encodeStruct(snap)
}

// =============================================================================
// Stateless Checks
// =============================================================================

// EvaluatePolicy evaluates {"rules": [...], "context": {...}} without touching
// any task.
func (s *Server) EvaluatePolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	data, err := protojson.Marshal(in)
	if err != nil {
		return nil, Internal("evaluate policy", err)
	}
	doc, err := policy.ParseDocument(data)
	if err != nil {
		return nil, InvalidArgumentf("policy document: %v", err)
	}

	result := doc.Evaluate()
	s.logger.Debug("policy_evaluated",
		"rules", len(doc.Rules),
		"triggered", len(result.TriggeredRules),
		"passed", result.Passed,
	)
	return encodeStruct(result)
}

type classifyRequest struct {
	Actions     []hitl.Action  `json:"-"`
	State       string         `json:"state"`
	ProcessType string         `json:"process_type"`
	Policy      *policy.Result `json:"policy"`
}

type classifyResponse struct {
	Classifications map[string]hitl.ActionClass `json:"classifications"`
	Mutating        []string                    `json:"mutating"`
	Gate            *hitl.GateDecision          `json:"gate,omitempty"`
}

// ClassifyActions classifies action names with the kernel's classifier. When a
// state is given the approval gate is evaluated at that state as well.
//
// actions may be a list of names or of {"name": ...} objects.
func (s *Server) ClassifyActions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req classifyRequest
	if err := decodeStruct(withoutFields(in, "actions"), &req); err != nil {
		return nil, InvalidArgumentf("classify actions: %v", err)
	}
	req.Actions = decodeActions(in.GetFields()["actions"])
	if len(req.Actions) == 0 {
		return nil, InvalidArgument("actions")
	}

	classifier := s.kernel.Classifier()
	resp := classifyResponse{
		Classifications: make(map[string]hitl.ActionClass, len(req.Actions)),
		Mutating:        classifier.MutatingActions(req.Actions),
	}
	for _, a := range req.Actions {
		if a.Name != "" {
			resp.Classifications[a.Name] = classifier.Classify(a.Name)
		}
	}

	if req.State != "" {
		state, ok := process.ParseState(req.State)
		if !ok {
			return nil, InvalidArgumentf("unknown state %q", req.State)
		}
		decision := classifier.Evaluate(state, req.Actions, req.Policy, req.ProcessType)
		resp.Gate = &decision
	}
	return encodeStruct(resp)
}

func decodeActions(v *structpb.Value) []hitl.Action {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	actions := make([]hitl.Action, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		switch {
		case item.GetStructValue() != nil:
			fields := item.GetStructValue().GetFields()
			actions = append(actions, hitl.Action{
				Name:        fields["name"].GetStringValue(),
				Description: fields["description"].GetStringValue(),
			})
		default:
			actions = append(actions, hitl.Action{Name: item.GetStringValue()})
		}
	}
	return actions
}

// GetCheckpoint returns the persisted checkpoint of a session.
func (s *Server) GetCheckpoint(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	sessionID := stringField(in, "session_id")
	if err := validateRequired(sessionID, "session_id"); err != nil {
		return nil, err
	}

	cp, ok, err := s.kernel.Checkpoint(ctx, sessionID)
	if err != nil {
		s.logger.Error("get_checkpoint_failed",
			"session_id", sessionID,
			"error", err.Error(),
		)
		return nil, Internal("get checkpoint", err)
	}
	if !ok {
		return encodeStruct(map[string]any{"session_id": sessionID, "found": false})
	}
	return encodeStruct(map[string]any{
		"session_id": sessionID,
		"found":      true,
		"checkpoint": cp,
		"terminal":   cp.IsTerminal(s.kernel.Templates()),
	})
}

// GetSystemStatus returns kernel counters.
func (s *Server) GetSystemStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return encodeStruct(s.kernel.GetSystemStatus())
}

// =============================================================================
// Graceful Server
// =============================================================================

// GracefulServer wraps a gRPC server with graceful shutdown support.
// It listens for context cancellation and shuts down cleanly.
type GracefulServer struct {
	grpcServer *grpc.Server
	service    *Server
	address    string
	listener   net.Listener
	shutdownMu sync.Mutex
	isShutdown bool
}

// NewGracefulServer creates a GracefulServer. Without options it installs
// ServerOptions.
func NewGracefulServer(service *Server, address string, opts ...grpc.ServerOption) *GracefulServer {
	if len(opts) == 0 {
		opts = ServerOptions(service.logger)
	}

	grpcServer := grpc.NewServer(opts...)
	RegisterControlPlaneServer(grpcServer, service)

	return &GracefulServer{
		grpcServer: grpcServer,
		service:    service,
		address:    address,
	}
}

// Start listens on the configured address and blocks until ctx is cancelled,
// then stops gracefully.
func (s *GracefulServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled or the server fails.
func (s *GracefulServer) Serve(ctx context.Context, lis net.Listener) error {
	s.listener = lis
	s.service.logger.Info("grpc_server_started",
		"address", lis.Addr().String(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.service.logger.Info("grpc_graceful_shutdown_initiated",
			"reason", ctx.Err().Error(),
		)
		s.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}

// GracefulStop stops accepting new connections and waits for in-flight
// calls to complete.
func (s *GracefulServer) GracefulStop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.service.logger.Info("grpc_graceful_stop_started")
	s.grpcServer.GracefulStop()
	s.service.logger.Info("grpc_graceful_stop_completed")
}

// Stop immediately stops the server.
func (s *GracefulServer) Stop() {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()

	if s.isShutdown {
		return
	}
	s.isShutdown = true

	s.service.logger.Warn("grpc_immediate_stop")
	s.grpcServer.Stop()
}

// ShutdownWithTimeout performs graceful shutdown with a timeout.
// If shutdown doesn't complete within timeout, it forces an immediate stop.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})

	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(timeout):
		s.service.logger.Warn("grpc_graceful_shutdown_timeout",
			"timeout_ms", timeout.Milliseconds(),
		)
		s.grpcServer.Stop()
	}
}

// GetGRPCServer returns the underlying grpc.Server.
func (s *GracefulServer) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the configured listen address.
func (s *GracefulServer) Address() string {
	return s.address
}
