package node

import (
	"context"
	"strconv"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Debug commands understood by Info.
const (
	DebugPing            = "ping"
	DebugMakeMiniblock   = "make_miniblock"
	DebugForceTrimStream = "force_trim_stream"
	DebugSyncDown        = "sync_down"
)

// Info answers operator commands. Without a debug command it returns the
// graffiti. Commands:
//
//	ping
//	make_miniblock <streamId> [force]
//	force_trim_stream <streamId> <trimTo>
//	sync_down <streamId>
func (n *Node) Info(ctx context.Context, req *protocol.InfoRequest) (*protocol.InfoResponse, error) {
	resp := &protocol.InfoResponse{Graffiti: Graffiti}
	if req == nil || len(req.Debug) == 0 {
		return resp, nil
	}
	args := req.Debug[1:]
	switch req.Debug[0] {
	case DebugPing:
		resp.Graffiti = "pong"
		return resp, nil

	case DebugMakeMiniblock:
		if len(args) < 1 {
			return nil, protocol.NewError(protocol.CodeInvalidArgument, "make_miniblock: stream id required")
		}
		id, err := streamid.Parse(args[0])
		if err != nil {
			return nil, protocol.WrapError(protocol.CodeInvalidArgument, err, "make_miniblock")
		}
		force := len(args) > 1 && args[1] == "force"
		mb, err := n.MakeMiniblock(ctx, id, force)
		if err != nil {
			return nil, err
		}
		num := int64(-1)
		if mb != nil {
			num = mb.Num()
		}
		resp.Values = map[string]string{"miniblock_num": strconv.FormatInt(num, 10)}
		return resp, nil

	case DebugForceTrimStream:
		if len(args) < 2 {
			return nil, protocol.NewError(protocol.CodeInvalidArgument, "force_trim_stream: stream id and trim point required")
		}
		id, err := streamid.Parse(args[0])
		if err != nil {
			return nil, protocol.WrapError(protocol.CodeInvalidArgument, err, "force_trim_stream")
		}
		trimTo, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, protocol.WrapError(protocol.CodeInvalidArgument, err, "force_trim_stream")
		}
		first, err := n.Trim(ctx, id, trimTo)
		if err != nil {
			return nil, err
		}
		resp.Values = map[string]string{"first_miniblock_num": strconv.FormatInt(first, 10)}
		return resp, nil

	case DebugSyncDown:
		if len(args) < 1 {
			return nil, protocol.NewError(protocol.CodeInvalidArgument, "sync_down: stream id required")
		}
		id, err := streamid.Parse(args[0])
		if err != nil {
			return nil, protocol.WrapError(protocol.CodeInvalidArgument, err, "sync_down")
		}
		resp.Values = map[string]string{"subscriptions": strconv.Itoa(n.DropStream(id))}
		return resp, nil
	}
	return nil, protocol.NewError(protocol.CodeInvalidArgument, "unknown debug command %q", req.Debug[0])
}

var _ protocol.StreamService = (*Node)(nil)
