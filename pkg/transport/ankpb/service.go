package ankpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully-qualified gRPC service name, as it would appear
// in the .proto this package stands in for.
const ServiceName = "ankaios.v1.AgentConnect"

// AgentConnectServer is the server-side interface of the AgentConnect
// service: a single bidirectional-streaming RPC carrying the handshake,
// workload deltas, state reports and proxied Control Interface requests.
type AgentConnectServer interface {
	Connect(AgentConnect_ConnectServer) error
}

// UnimplementedAgentConnectServer can be embedded to satisfy
// AgentConnectServer while a concrete type is under construction.
type UnimplementedAgentConnectServer struct{}

func (UnimplementedAgentConnectServer) Connect(AgentConnect_ConnectServer) error {
	return status.Error(codes.Unimplemented, "method Connect not implemented")
}

// AgentConnect_ConnectServer is the server-side stream handle passed into
// Connect.
type AgentConnect_ConnectServer interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ServerStream
}

type agentConnectConnectServer struct {
	grpc.ServerStream
}

func (x *agentConnectConnectServer) Send(m *Envelope) error {
	return x.ServerStream.SendMsg(m)
}

func (x *agentConnectConnectServer) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _AgentConnect_Connect_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(AgentConnectServer).Connect(&agentConnectConnectServer{stream})
}

// AgentConnect_ServiceDesc is the grpc.ServiceDesc protoc-gen-go-grpc would
// have generated for a service with this one bidi-streaming method.
var AgentConnect_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AgentConnectServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Connect",
			Handler:       _AgentConnect_Connect_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "ankaios/v1/agent_connect.proto",
}

// RegisterAgentConnectServer registers srv with s.
func RegisterAgentConnectServer(s grpc.ServiceRegistrar, srv AgentConnectServer) {
	s.RegisterService(&AgentConnect_ServiceDesc, srv)
}

// AgentConnectClient is the client-side interface of the AgentConnect
// service.
type AgentConnectClient interface {
	Connect(ctx context.Context, opts ...grpc.CallOption) (AgentConnect_ConnectClient, error)
}

type agentConnectClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentConnectClient wraps a dialed connection for the AgentConnect
// service.
func NewAgentConnectClient(cc grpc.ClientConnInterface) AgentConnectClient {
	return &agentConnectClient{cc}
}

func (c *agentConnectClient) Connect(ctx context.Context, opts ...grpc.CallOption) (AgentConnect_ConnectClient, error) {
	stream, err := c.cc.NewStream(ctx, &AgentConnect_ServiceDesc.Streams[0], "/"+ServiceName+"/Connect", opts...)
	if err != nil {
		return nil, err
	}
	return &agentConnectConnectClient{stream}, nil
}

// AgentConnect_ConnectClient is the client-side stream handle returned by
// Connect.
type AgentConnect_ConnectClient interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type agentConnectConnectClient struct {
	grpc.ClientStream
}

func (x *agentConnectConnectClient) Send(m *Envelope) error {
	return x.ClientStream.SendMsg(m)
}

func (x *agentConnectConnectClient) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
