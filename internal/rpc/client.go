package rpc

import (
	"context"
	"errors"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/roach88/streamcore/internal/protocol"
)

// Client implements protocol.StreamService over the StreamService gRPC
// service.
type Client struct {
	cc     *grpc.ClientConn
	client StreamServiceClient

	// Timeout applies per unary RPC when non-zero. Sync streams are not
	// bounded by it.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options, for custom dialers in tests.
	Extra []grpc.DialOption
}

// Dial connects to a node at target.
func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewStreamServiceClient(cc)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

// call sends req to method and decodes the reply into resp.
func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()
	out, err := c.client.Unary(ctx, method, in)
	if err != nil {
		return fromStatus(err)
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

func (c *Client) CreateStream(ctx context.Context, streamID protocol.Bytes, events []*protocol.Envelope) (*protocol.StreamAndCookie, error) {
	var resp protocol.StreamAndCookie
	if err := c.call(ctx, "CreateStream", createStreamRequest{StreamID: streamID, Events: events}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) AddEvent(ctx context.Context, streamID protocol.Bytes, event *protocol.Envelope) error {
	return c.call(ctx, "AddEvent", addEventRequest{StreamID: streamID, Event: event}, nil)
}

func (c *Client) GetStream(ctx context.Context, streamID protocol.Bytes) (*protocol.GetStreamResponse, error) {
	var resp protocol.GetStreamResponse
	if err := c.call(ctx, "GetStream", streamRequest{StreamID: streamID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetStreamEx(ctx context.Context, streamID protocol.Bytes) ([]*protocol.Miniblock, error) {
	var resp getStreamExResponse
	if err := c.call(ctx, "GetStreamEx", streamRequest{StreamID: streamID}, &resp); err != nil {
		return nil, err
	}
	return resp.Miniblocks, nil
}

func (c *Client) GetMiniblocks(ctx context.Context, streamID protocol.Bytes, fromInclusive, toExclusive int64) (*protocol.GetMiniblocksResponse, error) {
	var resp protocol.GetMiniblocksResponse
	req := getMiniblocksRequest{StreamID: streamID, FromInclusive: fromInclusive, ToExclusive: toExclusive}
	if err := c.call(ctx, "GetMiniblocks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ModifySync(ctx context.Context, req *protocol.ModifySyncRequest) (*protocol.ModifySyncResponse, error) {
	var resp protocol.ModifySyncResponse
	if err := c.call(ctx, "ModifySync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) CancelSync(ctx context.Context, syncID string) error {
	return c.call(ctx, "CancelSync", cancelSyncRequest{SyncID: syncID}, nil)
}

func (c *Client) PingSync(ctx context.Context, syncID, nonce string) error {
	return c.call(ctx, "PingSync", pingSyncRequest{SyncID: syncID, Nonce: nonce}, nil)
}

func (c *Client) Info(ctx context.Context, req *protocol.InfoRequest) (*protocol.InfoResponse, error) {
	var resp protocol.InfoResponse
	if err := c.call(ctx, "Info", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncStreams opens a server stream. It lives until ctx is done or the
// node ends the subscription.
func (c *Client) SyncStreams(ctx context.Context, cookies []*protocol.SyncCookie) (protocol.SyncStream, error) {
	in, err := encode(syncStreamsRequest{SyncPos: cookies})
	if err != nil {
		return nil, err
	}
	stream, err := c.client.SyncStreams(ctx, in)
	if err != nil {
		return nil, fromStatus(err)
	}
	return &syncStream{stream: stream}, nil
}

type syncStream struct {
	stream StreamService_SyncStreamsClient
}

// Recv returns the next response. A stream the server finished cleanly
// reports CANCELED.
func (s *syncStream) Recv() (*protocol.SyncResponse, error) {
	m, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return nil, protocol.NewError(protocol.CodeCanceled, "sync stream ended")
	}
	if err != nil {
		return nil, fromStatus(err)
	}
	var resp protocol.SyncResponse
	if err := decode(m, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var _ protocol.StreamService = (*Client)(nil)
