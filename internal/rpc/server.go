package rpc

import (
	"context"
	"log/slog"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/roach88/streamcore/internal/protocol"
)

// Server exposes a protocol.StreamService over the StreamService gRPC
// service.
type Server struct {
	UnimplementedStreamServiceServer
	Service protocol.StreamService
}

// NewServer wraps svc.
func NewServer(svc protocol.StreamService) *Server {
	return &Server{Service: svc}
}

func (s *Server) CreateStream(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req createStreamRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.Service.CreateStream(ctx, req.StreamID, req.Events)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(resp)
}

func (s *Server) AddEvent(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req addEventRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.Service.AddEvent(ctx, req.StreamID, req.Event); err != nil {
		return nil, toStatus(err)
	}
	return encode(empty{})
}

func (s *Server) GetStream(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req streamRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.Service.GetStream(ctx, req.StreamID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(resp)
}

func (s *Server) GetStreamEx(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req streamRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	mbs, err := s.Service.GetStreamEx(ctx, req.StreamID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(getStreamExResponse{Miniblocks: mbs})
}

func (s *Server) GetMiniblocks(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req getMiniblocksRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.Service.GetMiniblocks(ctx, req.StreamID, req.FromInclusive, req.ToExclusive)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(resp)
}

func (s *Server) ModifySync(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req protocol.ModifySyncRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.Service.ModifySync(ctx, &req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(resp)
}

func (s *Server) CancelSync(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req cancelSyncRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.Service.CancelSync(ctx, req.SyncID); err != nil {
		return nil, toStatus(err)
	}
	return encode(empty{})
}

func (s *Server) PingSync(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req pingSyncRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if err := s.Service.PingSync(ctx, req.SyncID, req.Nonce); err != nil {
		return nil, toStatus(err)
	}
	return encode(empty{})
}

func (s *Server) Info(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req protocol.InfoRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	resp, err := s.Service.Info(ctx, &req)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(resp)
}

// SyncStreams relays a subscription until it ends. A subscription that
// ends by cancellation finishes the call cleanly.
func (s *Server) SyncStreams(in *wrapperspb.BytesValue, stream StreamService_SyncStreamsServer) error {
	var req syncStreamsRequest
	if err := decodeRequest(in, &req); err != nil {
		return err
	}
	sub, err := s.Service.SyncStreams(stream.Context(), req.SyncPos)
	if err != nil {
		return toStatus(err)
	}
	for {
		resp, err := sub.Recv()
		if err != nil {
			if protocol.IsCanceled(err) {
				return nil
			}
			slog.Debug("sync relay ended", "err", err)
			return toStatus(err)
		}
		out, err := encode(resp)
		if err != nil {
			return toStatus(err)
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
}
