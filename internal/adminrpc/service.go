package adminrpc

import (
	"context"

	"google.golang.org/grpc"
)

// Request/response payloads for the three admin RPCs. Plain structs: the
// JSON codec in codec.go marshals these directly, with no protoc step.

type RingStatsRequest struct{}

type RingStatsResponse struct {
	Size      int       `json:"size"`
	Current   int       `json:"current"`
	FillRatio []float64 `json:"fill_ratio"`
}

type PeerStatusRequest struct{}

type PeerStatusResponse struct {
	Configured bool   `json:"configured"`
	State      string `json:"state"`
}

type RotateRequest struct{}

type RotateResponse struct {
	Ok bool `json:"ok"`
}

// AdminServiceServer is implemented by whatever backs the RPCs — the
// service type in server.go, which cmd/greyd builds over the ring, peer
// link, and queue via NewGRPCServer.
type AdminServiceServer interface {
	RingStats(ctx context.Context, req *RingStatsRequest) (*RingStatsResponse, error)
	PeerStatus(ctx context.Context, req *PeerStatusRequest) (*PeerStatusResponse, error)
	Rotate(ctx context.Context, req *RotateRequest) (*RotateResponse, error)
}

const serviceName = "greyd.admin.AdminService"

func ringStatsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RingStatsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).RingStats(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RingStats"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).RingStats(ctx, req.(*RingStatsRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func peerStatusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(PeerStatusRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).PeerStatus(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/PeerStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).PeerStatus(ctx, req.(*PeerStatusRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func rotateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	req := new(RotateRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).Rotate(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Rotate"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(AdminServiceServer).Rotate(ctx, req.(*RotateRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// _ServiceDesc: it tells grpc-go the service name, the handlers per
// method, and the interface the registered implementation must satisfy.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RingStats", Handler: ringStatsHandler},
		{MethodName: "PeerStatus", Handler: peerStatusHandler},
		{MethodName: "Rotate", Handler: rotateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adminrpc.proto",
}

// RegisterAdminServiceServer registers impl against s, the same call
// shape a protoc-generated RegisterAdminServiceServer would have.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, impl AdminServiceServer) {
	s.RegisterService(&serviceDesc, impl)
}
