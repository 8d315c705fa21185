package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "chordfrb.FrbSifter"

const (
	checkConfigurationMethod = "/" + ServiceName + "/CheckConfiguration"
	frbEventsMethod          = "/" + ServiceName + "/FrbEvents"
)

// FrbSifterServer is the server API of the FrbSifter service.
type FrbSifterServer interface {
	CheckConfiguration(context.Context, *ConfigMessage) (*Reply, error)
	FrbEvents(context.Context, *FrbEventsMessage) (*Reply, error)
}

// RegisterFrbSifterServer registers srv with a gRPC server.
func RegisterFrbSifterServer(s grpc.ServiceRegistrar, srv FrbSifterServer) {
	s.RegisterService(&FrbSifterServiceDesc, srv)
}

// FrbSifterServiceDesc describes the FrbSifter service to grpc.
var FrbSifterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FrbSifterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckConfiguration", Handler: checkConfigurationHandler},
		{MethodName: "FrbEvents", Handler: frbEventsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "frb_sifter",
}

func checkConfigurationHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ConfigMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FrbSifterServer).CheckConfiguration(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: checkConfigurationMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FrbSifterServer).CheckConfiguration(ctx, req.(*ConfigMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func frbEventsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FrbEventsMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FrbSifterServer).FrbEvents(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: frbEventsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FrbSifterServer).FrbEvents(ctx, req.(*FrbEventsMessage))
	}
	return interceptor(ctx, in, info, handler)
}
