package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/roach88/streamcore/internal/protocol"
)

// Request and response documents. Responses of methods that return a
// protocol type directly are encoded as that type.

type createStreamRequest struct {
	StreamID protocol.Bytes       `json:"streamId"`
	Events   []*protocol.Envelope `json:"events"`
}

type addEventRequest struct {
	StreamID protocol.Bytes     `json:"streamId"`
	Event    *protocol.Envelope `json:"event"`
}

type streamRequest struct {
	StreamID protocol.Bytes `json:"streamId"`
}

type getMiniblocksRequest struct {
	StreamID      protocol.Bytes `json:"streamId"`
	FromInclusive int64          `json:"fromInclusive"`
	ToExclusive   int64          `json:"toExclusive"`
}

type getStreamExResponse struct {
	Miniblocks []*protocol.Miniblock `json:"miniblocks"`
}

type syncStreamsRequest struct {
	SyncPos []*protocol.SyncCookie `json:"syncPos"`
}

type cancelSyncRequest struct {
	SyncID string `json:"syncId"`
}

type pingSyncRequest struct {
	SyncID string `json:"syncId"`
	Nonce  string `json:"nonce"`
}

type empty struct{}

func encode(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return wrapperspb.Bytes(b), nil
}

func decode(in *wrapperspb.BytesValue, v any) error {
	if err := json.Unmarshal(in.GetValue(), v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// decodeRequest decodes on the server side, where a malformed document is
// the caller's fault.
func decodeRequest(in *wrapperspb.BytesValue, v any) error {
	if err := decode(in, v); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return nil
}
