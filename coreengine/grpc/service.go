package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ControlPlaneServiceName is the fully qualified service name.
const ControlPlaneServiceName = "bizflow.v1.ControlPlane"

// Full method names of the ControlPlane service.
const (
	ControlPlane_BeginTask_FullMethodName          = "/bizflow.v1.ControlPlane/BeginTask"
	ControlPlane_CompletePhase_FullMethodName      = "/bizflow.v1.ControlPlane/CompletePhase"
	ControlPlane_ResolveApproval_FullMethodName    = "/bizflow.v1.ControlPlane/ResolveApproval"
	ControlPlane_ReopenApprovalGate_FullMethodName = "/bizflow.v1.ControlPlane/ReopenApprovalGate"
	ControlPlane_CancelTask_FullMethodName         = "/bizflow.v1.ControlPlane/CancelTask"
	ControlPlane_GetTask_FullMethodName            = "/bizflow.v1.ControlPlane/GetTask"
	ControlPlane_EvaluatePolicy_FullMethodName     = "/bizflow.v1.ControlPlane/EvaluatePolicy"
	ControlPlane_ClassifyActions_FullMethodName    = "/bizflow.v1.ControlPlane/ClassifyActions"
	ControlPlane_GetCheckpoint_FullMethodName      = "/bizflow.v1.ControlPlane/GetCheckpoint"
	ControlPlane_GetSystemStatus_FullMethodName    = "/bizflow.v1.ControlPlane/GetSystemStatus"
)

// ControlPlaneServer is the server API for the ControlPlane service. Every
// message is a google.protobuf.Struct carrying the JSON form of the kernel
// types, so clients in any language can talk to the control plane without
// generated stubs.
type ControlPlaneServer interface {
	BeginTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompletePhase(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReopenApprovalGate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EvaluatePolicy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClassifyActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCheckpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSystemStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(ControlPlaneServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ControlPlaneServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ControlPlaneServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ControlPlane_ServiceDesc is the grpc.ServiceDesc for the ControlPlane service.
var ControlPlane_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlPlaneServiceName,
	HandlerType: (*ControlPlaneServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BeginTask", Handler: unaryHandler(ControlPlane_BeginTask_FullMethodName, ControlPlaneServer.BeginTask)},
		{MethodName: "CompletePhase", Handler: unaryHandler(ControlPlane_CompletePhase_FullMethodName, ControlPlaneServer.CompletePhase)},
		{MethodName: "ResolveApproval", Handler: unaryHandler(ControlPlane_ResolveApproval_FullMethodName, ControlPlaneServer.ResolveApproval)},
		{MethodName: "ReopenApprovalGate", Handler: unaryHandler(ControlPlane_ReopenApprovalGate_FullMethodName, ControlPlaneServer.ReopenApprovalGate)},
		{MethodName: "CancelTask", Handler: unaryHandler(ControlPlane_CancelTask_FullMethodName, ControlPlaneServer.CancelTask)},
		{MethodName: "GetTask", Handler: unaryHandler(ControlPlane_GetTask_FullMethodName, ControlPlaneServer.GetTask)},
		{MethodName: "EvaluatePolicy", Handler: unaryHandler(ControlPlane_EvaluatePolicy_FullMethodName, ControlPlaneServer.EvaluatePolicy)},
		{MethodName: "ClassifyActions", Handler: unaryHandler(ControlPlane_ClassifyActions_FullMethodName, ControlPlaneServer.ClassifyActions)},
		{MethodName: "GetCheckpoint", Handler: unaryHandler(ControlPlane_GetCheckpoint_FullMethodName, ControlPlaneServer.GetCheckpoint)},
		{MethodName: "GetSystemStatus", Handler: unaryHandler(ControlPlane_GetSystemStatus_FullMethodName, ControlPlaneServer.GetSystemStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bizflow/v1/control_plane.proto",
}

// RegisterControlPlaneServer registers srv with s.
func RegisterControlPlaneServer(s grpc.ServiceRegistrar, srv ControlPlaneServer) {
	s.RegisterService(&ControlPlane_ServiceDesc, srv)
}

// =============================================================================
// Client
// =============================================================================

// ControlPlaneClient is the client API for the ControlPlane service.
type ControlPlaneClient interface {
	BeginTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CompletePhase(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ResolveApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ReopenApprovalGate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CancelTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	EvaluatePolicy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	ClassifyActions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetCheckpoint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetSystemStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type controlPlaneClient struct {
	cc grpc.ClientConnInterface
}

// NewControlPlaneClient creates a client on cc.
func NewControlPlaneClient(cc grpc.ClientConnInterface) ControlPlaneClient {
	return &controlPlaneClient{cc: cc}
}

func (c *controlPlaneClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlPlaneClient) BeginTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_BeginTask_FullMethodName, in, opts)
}

func (c *controlPlaneClient) CompletePhase(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_CompletePhase_FullMethodName, in, opts)
}

func (c *controlPlaneClient) ResolveApproval(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_ResolveApproval_FullMethodName, in, opts)
}

func (c *controlPlaneClient) ReopenApprovalGate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_ReopenApprovalGate_FullMethodName, in, opts)
}

func (c *controlPlaneClient) CancelTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_CancelTask_FullMethodName, in, opts)
}

func (c *controlPlaneClient) GetTask(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_GetTask_FullMethodName, in, opts)
}

func (c *controlPlaneClient) EvaluatePolicy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_EvaluatePolicy_FullMethodName, in, opts)
}

func (c *controlPlaneClient) ClassifyActions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_ClassifyActions_FullMethodName, in, opts)
}

func (c *controlPlaneClient) GetCheckpoint(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_GetCheckpoint_FullMethodName, in, opts)
}

func (c *controlPlaneClient) GetSystemStatus(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, ControlPlane_GetSystemStatus_FullMethodName, in, opts)
}
