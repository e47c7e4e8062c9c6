package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "streamcore.v1.StreamService"

// StreamServiceServer is the server API for the StreamService gRPC service.
// Every request and response is a JSON document in a BytesValue.
type StreamServiceServer interface {
	CreateStream(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	AddEvent(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetStream(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetStreamEx(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	GetMiniblocks(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	ModifySync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	CancelSync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	PingSync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Info(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	SyncStreams(*wrapperspb.BytesValue, StreamService_SyncStreamsServer) error
}

// UnimplementedStreamServiceServer can be embedded to have forward compatible implementations.
type UnimplementedStreamServiceServer struct{}

func (UnimplementedStreamServiceServer) CreateStream(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method CreateStream not implemented")
}
func (UnimplementedStreamServiceServer) AddEvent(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method AddEvent not implemented")
}
func (UnimplementedStreamServiceServer) GetStream(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStream not implemented")
}
func (UnimplementedStreamServiceServer) GetStreamEx(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStreamEx not implemented")
}
func (UnimplementedStreamServiceServer) GetMiniblocks(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetMiniblocks not implemented")
}
func (UnimplementedStreamServiceServer) ModifySync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method ModifySync not implemented")
}
func (UnimplementedStreamServiceServer) CancelSync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelSync not implemented")
}
func (UnimplementedStreamServiceServer) PingSync(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PingSync not implemented")
}
func (UnimplementedStreamServiceServer) Info(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Info not implemented")
}
func (UnimplementedStreamServiceServer) SyncStreams(*wrapperspb.BytesValue, StreamService_SyncStreamsServer) error {
	return status.Error(codes.Unimplemented, "method SyncStreams not implemented")
}

// RegisterStreamServiceServer registers the StreamService on a gRPC server.
func RegisterStreamServiceServer(s grpc.ServiceRegistrar, srv StreamServiceServer) {
	s.RegisterService(&StreamService_ServiceDesc, srv)
}

// StreamServiceClient is the client API for the StreamService gRPC service.
type StreamServiceClient interface {
	Unary(ctx context.Context, method string, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	SyncStreams(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (StreamService_SyncStreamsClient, error)
}

type streamServiceClient struct{ cc grpc.ClientConnInterface }

func NewStreamServiceClient(cc grpc.ClientConnInterface) StreamServiceClient {
	return &streamServiceClient{cc: cc}
}

// Unary invokes one of the unary methods by name.
func (c *streamServiceClient) Unary(ctx context.Context, method string, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *streamServiceClient) SyncStreams(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (StreamService_SyncStreamsClient, error) {
	stream, err := c.cc.NewStream(ctx, &StreamService_ServiceDesc.Streams[0], "/"+serviceName+"/SyncStreams", opts...)
	if err != nil {
		return nil, err
	}
	x := &streamServiceSyncStreamsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// StreamService_SyncStreamsClient receives sync responses.
type StreamService_SyncStreamsClient interface {
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type streamServiceSyncStreamsClient struct {
	grpc.ClientStream
}

func (x *streamServiceSyncStreamsClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// StreamService_SyncStreamsServer sends sync responses.
type StreamService_SyncStreamsServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type streamServiceSyncStreamsServer struct {
	grpc.ServerStream
}

func (x *streamServiceSyncStreamsServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

type unaryMethod func(StreamServiceServer, context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)

// unaryHandler builds the grpc handler for one unary method.
func unaryHandler(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + serviceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StreamServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(StreamServiceServer), ctx, req.(*wrapperspb.BytesValue))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func _StreamService_SyncStreams_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StreamServiceServer).SyncStreams(m, &streamServiceSyncStreamsServer{stream})
}

// StreamService_ServiceDesc is the grpc.ServiceDesc for StreamService.
var StreamService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StreamServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateStream", StreamServiceServer.CreateStream),
		unaryHandler("AddEvent", StreamServiceServer.AddEvent),
		unaryHandler("GetStream", StreamServiceServer.GetStream),
		unaryHandler("GetStreamEx", StreamServiceServer.GetStreamEx),
		unaryHandler("GetMiniblocks", StreamServiceServer.GetMiniblocks),
		unaryHandler("ModifySync", StreamServiceServer.ModifySync),
		unaryHandler("CancelSync", StreamServiceServer.CancelSync),
		unaryHandler("PingSync", StreamServiceServer.PingSync),
		unaryHandler("Info", StreamServiceServer.Info),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "SyncStreams",
			Handler:       _StreamService_SyncStreams_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "streamcore.proto",
}
