package protocol

import "context"

// SyncOp is the operation carried by a SyncResponse.
type SyncOp string

const (
	SyncNew    SyncOp = "SYNC_NEW"
	SyncUpdate SyncOp = "SYNC_UPDATE"
	SyncClose  SyncOp = "SYNC_CLOSE"
	SyncPong   SyncOp = "SYNC_PONG"
	SyncDown   SyncOp = "SYNC_DOWN"
)

// StreamAndCookie is the per-stream body of a SYNC_UPDATE and of
// GetStream. Events are minipool events and miniblock header events in
// delivery order.
type StreamAndCookie struct {
	StreamID       Bytes        `json:"streamId"`
	Events         []*Envelope  `json:"events"`
	NextSyncCookie *SyncCookie  `json:"nextSyncCookie"`
	Miniblocks     []*Miniblock `json:"miniblocks,omitempty"`
	Snapshot       *Snapshot    `json:"snapshot,omitempty"`
	SyncReset      bool         `json:"syncReset,omitempty"`
}

// SyncResponse is one message of a sync subscription.
type SyncResponse struct {
	SyncID    string           `json:"syncId"`
	SyncOp    SyncOp           `json:"syncOp"`
	Stream    *StreamAndCookie `json:"stream,omitempty"`
	PongNonce string           `json:"pongNonce,omitempty"`
	StreamID  Bytes            `json:"streamId,omitempty"`
}

// SyncStatus reports a per-stream failure of ModifySync.
type SyncStatus struct {
	StreamID Bytes     `json:"streamId"`
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
}

// ModifySyncRequest changes the watched set of a subscription.
type ModifySyncRequest struct {
	SyncID        string        `json:"syncId"`
	AddStreams    []*SyncCookie `json:"addStreams,omitempty"`
	RemoveStreams []Bytes       `json:"removeStreams,omitempty"`
}

// ModifySyncResponse lists streams that could not be added or removed.
type ModifySyncResponse struct {
	Adds     []SyncStatus `json:"adds,omitempty"`
	Removals []SyncStatus `json:"removals,omitempty"`
}

// GetStreamResponse is the current state of a stream: miniblocks from the
// last snapshot miniblock, plus minipool events and a cookie.
type GetStreamResponse struct {
	Stream *StreamAndCookie `json:"stream"`
}

// GetMiniblocksResponse is a range of miniblocks. Terminus is true when no
// older history exists below FromInclusive.
type GetMiniblocksResponse struct {
	Miniblocks    []*Miniblock `json:"miniblocks"`
	FromInclusive int64        `json:"fromInclusive"`
	Terminus      bool         `json:"terminus"`
}

// InfoRequest is an operator command. Debug commands are make_miniblock and
// force_trim_stream; production code must not depend on them.
type InfoRequest struct {
	Debug []string `json:"debug"`
}

// InfoResponse answers an InfoRequest.
type InfoResponse struct {
	Graffiti string            `json:"graffiti"`
	Values   map[string]string `json:"values,omitempty"`
}

// SyncStream is the receive side of a sync subscription.
type SyncStream interface {
	// Recv blocks for the next response. It returns an error once the
	// subscription ends.
	Recv() (*SyncResponse, error)
}

// StreamService is the RPC surface consumed by the client core.
type StreamService interface {
	CreateStream(ctx context.Context, streamID Bytes, events []*Envelope) (*StreamAndCookie, error)
	AddEvent(ctx context.Context, streamID Bytes, event *Envelope) error
	GetStream(ctx context.Context, streamID Bytes) (*GetStreamResponse, error)
	GetStreamEx(ctx context.Context, streamID Bytes) ([]*Miniblock, error)
	GetMiniblocks(ctx context.Context, streamID Bytes, fromInclusive, toExclusive int64) (*GetMiniblocksResponse, error)
	SyncStreams(ctx context.Context, cookies []*SyncCookie) (SyncStream, error)
	ModifySync(ctx context.Context, req *ModifySyncRequest) (*ModifySyncResponse, error)
	CancelSync(ctx context.Context, syncID string) error
	PingSync(ctx context.Context, syncID, nonce string) error
	Info(ctx context.Context, req *InfoRequest) (*InfoResponse, error)
}
