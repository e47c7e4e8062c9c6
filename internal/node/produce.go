package node

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// MakeMiniblock seals the minipool of id into the next miniblock and sends
// the header event to subscribers. With an empty minipool nothing happens
// unless force is set, in which case an empty miniblock is sealed. It
// returns the sealed miniblock, or nil.
func (n *Node) MakeMiniblock(ctx context.Context, id streamid.ID, force bool) (*protocol.Miniblock, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ss, err := n.stream(id)
	if err != nil {
		return nil, err
	}
	if len(ss.minipool) == 0 && !force {
		return nil, nil
	}

	mb, next, err := n.producer.Next(ss.committed, ss.minipool)
	if err != nil {
		return nil, fmt.Errorf("make miniblock: %w", err)
	}
	if err := n.store.WriteMiniblocks(ctx, id, []*protocol.Miniblock{mb}); err != nil {
		return nil, fmt.Errorf("make miniblock: %w", err)
	}
	pending, err := next.Snapshot.Clone()
	if err != nil {
		return nil, err
	}
	ss.committed = next
	ss.pending = pending
	ss.minipool = nil

	header, err := n.headerEvent(mb)
	if err != nil {
		return nil, err
	}
	n.logger.Debug("miniblock sealed",
		"stream", id,
		"num", mb.Num(),
		"events", len(mb.Events),
		"snapshot", mb.IsSnapshot(),
	)
	n.fanOutLocked(id, ss, []*protocol.Envelope{header}, next.Cookie(n.Address()))
	return mb, nil
}

// headerEvent signs the event that closes mb in sync streams.
func (n *Node) headerEvent(mb *protocol.Miniblock) (*protocol.Envelope, error) {
	ev := protocol.MakeEvent(n.wallet, &protocol.MiniblockHeaderContent{Header: mb.Header}, mb.Header.PrevMiniblockHash, time.Now().UnixMilli())
	env, err := protocol.MakeEnvelope(n.wallet, ev)
	if err != nil {
		return nil, fmt.Errorf("sign header %d: %w", mb.Num(), err)
	}
	return env, nil
}

// Trim drops miniblocks of id below the newest snapshot at or below
// trimTo. It returns the new first retained miniblock.
func (n *Node) Trim(ctx context.Context, id streamid.ID, trimTo int64) (int64, error) {
	first, err := n.store.Trim(ctx, id, trimTo)
	if err != nil {
		return 0, err
	}
	n.logger.Info("stream trimmed", "stream", id, "requested", trimTo, "first", first)
	return first, nil
}
