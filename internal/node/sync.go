package node

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// subscription is one SyncStreams call. Responses are buffered; a
// subscriber that falls further behind than the buffer is dropped.
type subscription struct {
	id      string
	out     chan *protocol.SyncResponse
	done    chan struct{}
	streams map[streamid.ID]struct{}

	once sync.Once
	err  error
	stop func() bool
}

func (s *subscription) send(resp *protocol.SyncResponse) bool {
	resp.SyncID = s.id
	select {
	case s.out <- resp:
		return true
	default:
		return false
	}
}

// Recv blocks for the next response. Buffered responses are drained
// before the terminal error is returned.
func (s *subscription) Recv() (*protocol.SyncResponse, error) {
	select {
	case resp := <-s.out:
		return resp, nil
	default:
	}
	select {
	case resp := <-s.out:
		return resp, nil
	case <-s.done:
		select {
		case resp := <-s.out:
			return resp, nil
		default:
			return nil, s.err
		}
	}
}

// SyncStreams opens a subscription. The first response is SYNC_NEW with
// the sync id; each cookie's stream then receives a catch-up update.
func (n *Node) SyncStreams(ctx context.Context, cookies []*protocol.SyncCookie) (protocol.SyncStream, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, protocol.NewError(protocol.CodeUnavailable, "node closed")
	}

	sub := &subscription{
		id:      n.ids.Generate(),
		out:     make(chan *protocol.SyncResponse, n.buffer),
		done:    make(chan struct{}),
		streams: make(map[streamid.ID]struct{}),
	}
	n.syncs[sub.id] = sub
	sub.send(&protocol.SyncResponse{SyncOp: protocol.SyncNew})

	for _, c := range cookies {
		if st := n.addLocked(ctx, sub, c); st != nil {
			sub.send(&protocol.SyncResponse{SyncOp: protocol.SyncDown, StreamID: st.StreamID})
		}
	}

	sub.stop = context.AfterFunc(ctx, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.cancelLocked(sub, protocol.NewError(protocol.CodeCanceled, "sync %s: context done", sub.id))
	})
	n.logger.Info("sync started", "sync", sub.id, "streams", len(sub.streams))
	return sub, nil
}

// addLocked starts watching the cookie's stream and sends the catch-up
// update. A cookie at the current position gets the minipool; any other
// position gets a reset from the latest snapshot.
func (n *Node) addLocked(ctx context.Context, sub *subscription, c *protocol.SyncCookie) *protocol.SyncStatus {
	if c == nil {
		return &protocol.SyncStatus{Code: protocol.CodeBadSyncCookie, Message: "nil cookie"}
	}
	fail := func(err error) *protocol.SyncStatus {
		return &protocol.SyncStatus{StreamID: c.StreamID, Code: protocol.CodeOf(err), Message: err.Error()}
	}
	id, err := parseStreamID(c.StreamID)
	if err != nil {
		return fail(err)
	}
	ss, err := n.stream(id)
	if err != nil {
		return fail(err)
	}
	if c.MinipoolGen > ss.committed.LastNum+1 {
		return fail(protocol.NewError(protocol.CodeBadSyncCookie, "cookie at miniblock %d is ahead of %d", c.MinipoolGen, ss.committed.LastNum+1))
	}

	var update *protocol.StreamAndCookie
	if c.MinipoolGen == ss.committed.LastNum+1 && ss.committed.LastHash.Equal(c.PrevMiniblockHash) {
		update = &protocol.StreamAndCookie{
			StreamID:       id.Bytes(),
			Events:         ss.envelopes(),
			NextSyncCookie: ss.committed.Cookie(n.Address()),
		}
	} else {
		update, err = n.streamAndCookieLocked(ctx, id, ss)
		if err != nil {
			return fail(err)
		}
		update.SyncReset = true
	}

	sub.streams[id] = struct{}{}
	ss.subs[sub.id] = sub
	if !sub.send(&protocol.SyncResponse{SyncOp: protocol.SyncUpdate, Stream: update}) {
		n.overflowLocked(sub)
	}
	return nil
}

// fanOutLocked sends envs to every subscriber of id.
func (n *Node) fanOutLocked(id streamid.ID, ss *streamState, envs []*protocol.Envelope, cookie *protocol.SyncCookie) {
	for _, sub := range ss.subs {
		ok := sub.send(&protocol.SyncResponse{
			SyncOp: protocol.SyncUpdate,
			Stream: &protocol.StreamAndCookie{
				StreamID:       id.Bytes(),
				Events:         envs,
				NextSyncCookie: cookie.Clone(),
			},
		})
		if !ok {
			n.overflowLocked(sub)
		}
	}
}

func (n *Node) overflowLocked(sub *subscription) {
	n.logger.Warn("sync subscriber too slow, dropping", "sync", sub.id)
	n.cancelLocked(sub, protocol.NewError(protocol.CodeUnavailable, "sync %s: subscriber buffer full", sub.id))
}

// cancelLocked ends sub. A nil err is a clean close: SYNC_CLOSE is sent and
// Recv then reports CANCELED.
func (n *Node) cancelLocked(sub *subscription, err error) {
	sub.once.Do(func() {
		if err == nil {
			sub.send(&protocol.SyncResponse{SyncOp: protocol.SyncClose})
			err = protocol.NewError(protocol.CodeCanceled, "sync %s closed", sub.id)
		}
		sub.err = err
		for id := range sub.streams {
			if ss, ok := n.streams[id]; ok {
				delete(ss.subs, sub.id)
			}
		}
		delete(n.syncs, sub.id)
		if sub.stop != nil {
			sub.stop()
		}
		close(sub.done)
		n.logger.Info("sync ended", "sync", sub.id, "err", err)
	})
}

func (n *Node) subscription(syncID string) (*subscription, error) {
	if n.closed {
		return nil, protocol.NewError(protocol.CodeUnavailable, "node closed")
	}
	sub, ok := n.syncs[syncID]
	if !ok {
		return nil, protocol.NewError(protocol.CodeNotFound, "sync %s not found", syncID)
	}
	return sub, nil
}

// ModifySync adds and removes streams of a subscription. Per-stream
// failures are reported in the response, not as an error.
func (n *Node) ModifySync(ctx context.Context, req *protocol.ModifySyncRequest) (*protocol.ModifySyncResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	sub, err := n.subscription(req.SyncID)
	if err != nil {
		return nil, err
	}
	resp := &protocol.ModifySyncResponse{}
	for _, c := range req.AddStreams {
		if st := n.addLocked(ctx, sub, c); st != nil {
			resp.Adds = append(resp.Adds, *st)
		}
	}
	for _, raw := range req.RemoveStreams {
		id, err := parseStreamID(raw)
		if err != nil {
			resp.Removals = append(resp.Removals, protocol.SyncStatus{StreamID: raw, Code: protocol.CodeOf(err), Message: err.Error()})
			continue
		}
		if _, ok := sub.streams[id]; !ok {
			resp.Removals = append(resp.Removals, protocol.SyncStatus{StreamID: raw, Code: protocol.CodeNotFound, Message: "stream not in sync"})
			continue
		}
		delete(sub.streams, id)
		if ss, ok := n.streams[id]; ok {
			delete(ss.subs, sub.id)
		}
	}
	return resp, nil
}

// CancelSync ends a subscription cleanly.
func (n *Node) CancelSync(_ context.Context, syncID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	sub, err := n.subscription(syncID)
	if err != nil {
		return err
	}
	n.cancelLocked(sub, nil)
	return nil
}

// PingSync answers with SYNC_PONG carrying nonce.
func (n *Node) PingSync(_ context.Context, syncID, nonce string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	sub, err := n.subscription(syncID)
	if err != nil {
		return err
	}
	if !sub.send(&protocol.SyncResponse{SyncOp: protocol.SyncPong, PongNonce: nonce}) {
		n.overflowLocked(sub)
	}
	return nil
}

// DropStream stops delivering id to every subscription and tells them
// with SYNC_DOWN. Subscribers re-add the stream to resume.
func (n *Node) DropStream(id streamid.ID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	ss, ok := n.streams[id]
	if !ok {
		return 0
	}
	subs := make([]*subscription, 0, len(ss.subs))
	for _, sub := range ss.subs {
		subs = append(subs, sub)
	}
	slices.SortFunc(subs, func(a, b *subscription) int { return strings.Compare(a.id, b.id) })
	for _, sub := range subs {
		delete(sub.streams, id)
		delete(ss.subs, sub.id)
		if !sub.send(&protocol.SyncResponse{SyncOp: protocol.SyncDown, StreamID: id.Bytes()}) {
			n.overflowLocked(sub)
		}
	}
	return len(subs)
}

// Syncs returns the number of live subscriptions.
func (n *Node) Syncs() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.syncs)
}
