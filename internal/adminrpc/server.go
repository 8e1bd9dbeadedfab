package adminrpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/ocx/greyd/internal/admin"
	"github.com/ocx/greyd/internal/syncmgr"
)

// RotateFunc forces the ring to rotate its active filter, mirroring what
// the ring does on its own schedule. Wired to queue.Queue/ring.Ring by
// cmd/greyd.
type RotateFunc func(ctx context.Context) error

// service is the concrete AdminServiceServer backing the RPCs, built from
// the same inspector interfaces internal/admin's HTTP surface uses so both
// transports report identical state.
type service struct {
	ring   admin.RingInspector
	peer   admin.PeerInspector
	rotate RotateFunc
}

func (s *service) RingStats(ctx context.Context, req *RingStatsRequest) (*RingStatsResponse, error) {
	return &RingStatsResponse{
		Size:      s.ring.Size(),
		Current:   s.ring.Current(),
		FillRatio: s.ring.FillRatio(),
	}, nil
}

func (s *service) PeerStatus(ctx context.Context, req *PeerStatusRequest) (*PeerStatusResponse, error) {
	if s.peer == nil {
		return &PeerStatusResponse{Configured: false, State: syncmgr.Disconnected.String()}, nil
	}
	return &PeerStatusResponse{Configured: true, State: s.peer.State().String()}, nil
}

func (s *service) Rotate(ctx context.Context, req *RotateRequest) (*RotateResponse, error) {
	if s.rotate == nil {
		return &RotateResponse{Ok: false}, nil
	}
	if err := s.rotate(ctx); err != nil {
		return nil, err
	}
	return &RotateResponse{Ok: true}, nil
}

// NewGRPCServer builds a *grpc.Server exposing AdminServiceServer's three
// RPCs over the JSON codec registered in codec.go. Callers still pick the
// listener and transport credentials; this only wires the service.
func NewGRPCServer(ring admin.RingInspector, peer admin.PeerInspector, rotate RotateFunc) *grpc.Server {
	srv := grpc.NewServer()
	RegisterAdminServiceServer(srv, &service{ring: ring, peer: peer, rotate: rotate})
	return srv
}
