// Package adminpb defines the wire contract of the media driver's
// read-only admin/introspection gRPC service.
//
// The service carries no domain-specific message types of its own: every
// request and response is one of the already-compiled protobuf well-known
// types (google.protobuf.Empty, Struct, ListValue, StringValue). This
// keeps the service servable without a protoc code-generation step while
// still speaking ordinary protobuf-over-gRPC on the wire. The
// client/server plumbing below follows the shape protoc-gen-go-grpc
// produces for a hand-rolled .proto service definition:
//
//	service AdminAPI {
//	  rpc GetConfig(google.protobuf.Empty) returns (google.protobuf.Struct);
//	  rpc ListPublications(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	  rpc ListImages(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	  rpc ListCounters(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	  rpc ListErrors(google.protobuf.Empty) returns (google.protobuf.ListValue);
//	  rpc SetLogLevel(google.protobuf.StringValue) returns (google.protobuf.Empty);
//	}
package adminpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	AdminAPI_GetConfig_FullMethodName        = "/mediadriver.admin.AdminAPI/GetConfig"
	AdminAPI_ListPublications_FullMethodName = "/mediadriver.admin.AdminAPI/ListPublications"
	AdminAPI_ListImages_FullMethodName       = "/mediadriver.admin.AdminAPI/ListImages"
	AdminAPI_ListCounters_FullMethodName     = "/mediadriver.admin.AdminAPI/ListCounters"
	AdminAPI_ListErrors_FullMethodName       = "/mediadriver.admin.AdminAPI/ListErrors"
	AdminAPI_SetLogLevel_FullMethodName      = "/mediadriver.admin.AdminAPI/SetLogLevel"
)

// AdminAPIClient is the client API for the AdminAPI service.
type AdminAPIClient interface {
	GetConfig(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListPublications(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	ListImages(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	ListCounters(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	ListErrors(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	SetLogLevel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type adminAPIClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminAPIClient creates a client stub for the AdminAPI service.
func NewAdminAPIClient(cc grpc.ClientConnInterface) AdminAPIClient {
	return &adminAPIClient{cc}
}

func (c *adminAPIClient) GetConfig(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AdminAPI_GetConfig_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminAPIClient) ListPublications(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, AdminAPI_ListPublications_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminAPIClient) ListImages(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, AdminAPI_ListImages_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminAPIClient) ListCounters(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, AdminAPI_ListCounters_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminAPIClient) ListErrors(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, AdminAPI_ListErrors_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminAPIClient) SetLogLevel(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, AdminAPI_SetLogLevel_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminAPIServer is the server API for the AdminAPI service.
type AdminAPIServer interface {
	GetConfig(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListPublications(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListImages(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListCounters(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	ListErrors(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	SetLogLevel(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
	mustEmbedUnimplementedAdminAPIServer()
}

// UnimplementedAdminAPIServer must be embedded to have forward compatible
// implementations.
type UnimplementedAdminAPIServer struct{}

func (UnimplementedAdminAPIServer) GetConfig(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetConfig not implemented")
}
func (UnimplementedAdminAPIServer) ListPublications(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListPublications not implemented")
}
func (UnimplementedAdminAPIServer) ListImages(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListImages not implemented")
}
func (UnimplementedAdminAPIServer) ListCounters(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListCounters not implemented")
}
func (UnimplementedAdminAPIServer) ListErrors(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListErrors not implemented")
}
func (UnimplementedAdminAPIServer) SetLogLevel(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetLogLevel not implemented")
}
func (UnimplementedAdminAPIServer) mustEmbedUnimplementedAdminAPIServer() {}

// UnsafeAdminAPIServer may be embedded to opt out of forward compatibility
// for this service.
type UnsafeAdminAPIServer interface {
	mustEmbedUnimplementedAdminAPIServer()
}

// RegisterAdminAPIServer registers srv with s.
func RegisterAdminAPIServer(s grpc.ServiceRegistrar, srv AdminAPIServer) {
	s.RegisterService(&AdminAPI_ServiceDesc, srv)
}

func _AdminAPI_GetConfig_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminAPIServer).GetConfig(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdminAPI_GetConfig_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminAPIServer).GetConfig(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminAPI_ListPublications_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminAPIServer).ListPublications(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdminAPI_ListPublications_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminAPIServer).ListPublications(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminAPI_ListImages_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminAPIServer).ListImages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdminAPI_ListImages_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminAPIServer).ListImages(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminAPI_ListCounters_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminAPIServer).ListCounters(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdminAPI_ListCounters_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminAPIServer).ListCounters(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminAPI_ListErrors_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminAPIServer).ListErrors(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdminAPI_ListErrors_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminAPIServer).ListErrors(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _AdminAPI_SetLogLevel_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminAPIServer).SetLogLevel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: AdminAPI_SetLogLevel_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminAPIServer).SetLogLevel(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// AdminAPI_ServiceDesc is the grpc.ServiceDesc for the AdminAPI service.
// It's only intended for direct use with grpc.RegisterService, and not to
// be introspected or modified (even as a copy).
var AdminAPI_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "mediadriver.admin.AdminAPI",
	HandlerType: (*AdminAPIServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetConfig", Handler: _AdminAPI_GetConfig_Handler},
		{MethodName: "ListPublications", Handler: _AdminAPI_ListPublications_Handler},
		{MethodName: "ListImages", Handler: _AdminAPI_ListImages_Handler},
		{MethodName: "ListCounters", Handler: _AdminAPI_ListCounters_Handler},
		{MethodName: "ListErrors", Handler: _AdminAPI_ListErrors_Handler},
		{MethodName: "SetLogLevel", Handler: _AdminAPI_SetLogLevel_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminpb/adminapi.proto",
}
