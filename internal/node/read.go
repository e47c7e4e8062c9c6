package node

import (
	"context"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// GetStream returns the miniblocks from the latest snapshot miniblock, the
// minipool and a cookie pointing past the minipool's miniblock.
func (n *Node) GetStream(ctx context.Context, streamID protocol.Bytes) (*protocol.GetStreamResponse, error) {
	id, err := parseStreamID(streamID)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	ss, err := n.stream(id)
	if err != nil {
		return nil, err
	}
	sc, err := n.streamAndCookieLocked(ctx, id, ss)
	if err != nil {
		return nil, err
	}
	return &protocol.GetStreamResponse{Stream: sc}, nil
}

func (n *Node) streamAndCookieLocked(ctx context.Context, id streamid.ID, ss *streamState) (*protocol.StreamAndCookie, error) {
	base, err := n.store.LatestSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	rng, err := n.store.GetMiniblocks(ctx, id, base.Num(), ss.committed.LastNum+1)
	if err != nil {
		return nil, err
	}
	return &protocol.StreamAndCookie{
		StreamID:       id.Bytes(),
		Events:         ss.envelopes(),
		NextSyncCookie: ss.committed.Cookie(n.Address()),
		Miniblocks:     rng.Miniblocks,
	}, nil
}

func (ss *streamState) envelopes() []*protocol.Envelope {
	out := make([]*protocol.Envelope, len(ss.minipool))
	for i, ev := range ss.minipool {
		out[i] = ev.Envelope
	}
	return out
}

// GetStreamEx returns every retained miniblock of the stream.
func (n *Node) GetStreamEx(ctx context.Context, streamID protocol.Bytes) ([]*protocol.Miniblock, error) {
	id, err := parseStreamID(streamID)
	if err != nil {
		return nil, err
	}
	last, err := n.store.LastMiniblockNum(ctx, id)
	if err != nil {
		return nil, err
	}
	rng, err := n.store.GetMiniblocks(ctx, id, 0, last+1)
	if err != nil {
		return nil, err
	}
	return rng.Miniblocks, nil
}

// GetMiniblocks returns miniblocks [from, to) that are still retained.
func (n *Node) GetMiniblocks(ctx context.Context, streamID protocol.Bytes, fromInclusive, toExclusive int64) (*protocol.GetMiniblocksResponse, error) {
	id, err := parseStreamID(streamID)
	if err != nil {
		return nil, err
	}
	rng, err := n.store.GetMiniblocks(ctx, id, fromInclusive, toExclusive)
	if err != nil {
		return nil, err
	}
	return &protocol.GetMiniblocksResponse{
		Miniblocks:    rng.Miniblocks,
		FromInclusive: rng.FromInclusive,
		Terminus:      rng.Terminus,
	}, nil
}
