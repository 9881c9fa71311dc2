package visualiser

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName        = "markerstudio.visualiser.v1.VisualiserService"
	listSessionsMethod = "/" + serviceName + "/ListSessions"
	streamFramesMethod = "/" + serviceName + "/StreamFrames"
)

// VisualiserServiceServer is the server API for the visualiser service.
type VisualiserServiceServer interface {
	ListSessions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StreamFrames(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the visualiser service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VisualiserServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListSessions", Handler: listSessionsHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFrames", Handler: streamFramesHandler, ServerStreams: true},
	},
	Metadata: "visualiser",
}

// RegisterService registers the visualiser service with the gRPC server.
func RegisterService(gs grpc.ServiceRegistrar, srv VisualiserServiceServer) {
	gs.RegisterService(&ServiceDesc, srv)
}

func listSessionsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VisualiserServiceServer).ListSessions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listSessionsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VisualiserServiceServer).ListSessions(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamFramesHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(VisualiserServiceServer).StreamFrames(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Client calls the visualiser service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a connection, typically from grpc.NewClient.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// ListSessions returns the sessions open on the server.
func (c *Client) ListSessions(ctx context.Context, opts ...grpc.CallOption) ([]SessionSummary, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, listSessionsMethod, &structpb.Struct{}, out, opts...); err != nil {
		return nil, err
	}
	return sessionListFromProto(out), nil
}

// FrameStream receives frames from StreamFrames.
type FrameStream struct {
	stream grpc.ServerStreamingClient[structpb.Struct]
}

// Recv returns the next frame, or io.EOF once the server has sent them all.
func (s *FrameStream) Recv() (Frame, error) {
	pb, err := s.stream.Recv()
	if err != nil {
		return Frame{}, err
	}
	return FrameFromProto(pb)
}

// StreamFrames opens a frame stream for req.
func (c *Client) StreamFrames(ctx context.Context, req StreamRequest, opts ...grpc.CallOption) (*FrameStream, error) {
	in, err := req.proto()
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamFramesMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return &FrameStream{stream: x}, nil
}
