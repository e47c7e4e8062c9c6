package node_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/node"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/testutil"
)

func recv(t *testing.T, s protocol.SyncStream, op protocol.SyncOp) *protocol.SyncResponse {
	t.Helper()
	resp, err := s.Recv()
	require.NoError(t, err)
	require.Equal(t, op, resp.SyncOp)
	return resp
}

func TestSync_UpdatesThenClose(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	ctx := t.Context()

	s, err := f.node.SyncStreams(ctx, []*protocol.SyncCookie{created.NextSyncCookie})
	require.NoError(t, err)

	first := recv(t, s, protocol.SyncNew)
	assert.Equal(t, "sync-1", first.SyncID)

	catchUp := recv(t, s, protocol.SyncUpdate)
	assert.Equal(t, protocol.Bytes(testSpace.Bytes()), catchUp.Stream.StreamID)
	assert.Empty(t, catchUp.Stream.Events)
	assert.False(t, catchUp.Stream.SyncReset)

	alice := testutil.Wallet(t, 1)
	join := f.add(testSpace, alice, testutil.Join(alice.Address()), created.Miniblocks[0].Hash)
	update := recv(t, s, protocol.SyncUpdate)
	require.Len(t, update.Stream.Events, 1)
	assert.Equal(t, join.Hash, update.Stream.Events[0].Hash)
	assert.Equal(t, int64(1), update.Stream.NextSyncCookie.MinipoolGen)

	mb := f.makeMiniblock(testSpace)
	closing := recv(t, s, protocol.SyncUpdate)
	require.Len(t, closing.Stream.Events, 1)
	header, err := protocol.ParseEnvelope(closing.Stream.Events[0], true)
	require.NoError(t, err)
	hc, ok := header.Content().(*protocol.MiniblockHeaderContent)
	require.True(t, ok)
	assert.Equal(t, mb.Header.EventHashes, hc.Header.EventHashes)
	assert.Equal(t, int64(2), closing.Stream.NextSyncCookie.MinipoolGen)
	assert.Equal(t, mb.Hash, closing.Stream.NextSyncCookie.PrevMiniblockHash)
	assert.Equal(t, f.node.Address(), header.Creator())

	require.NoError(t, f.node.PingSync(ctx, "sync-1", "n1"))
	pong := recv(t, s, protocol.SyncPong)
	assert.Equal(t, "n1", pong.PongNonce)

	require.NoError(t, f.node.CancelSync(ctx, "sync-1"))
	recv(t, s, protocol.SyncClose)
	_, err = s.Recv()
	assert.True(t, protocol.IsCanceled(err))
	assert.Equal(t, 0, f.node.Syncs())

	assert.Equal(t, protocol.CodeNotFound, protocol.CodeOf(f.node.CancelSync(ctx, "sync-1")))
	assert.Equal(t, protocol.CodeNotFound, protocol.CodeOf(f.node.PingSync(ctx, "sync-1", "n2")))
}

func TestSync_StaleCookieResets(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	alice := testutil.Wallet(t, 1)
	f.add(testSpace, alice, testutil.Join(alice.Address()), created.Miniblocks[0].Hash)
	mb := f.makeMiniblock(testSpace)
	bob := testutil.Wallet(t, 2)
	pending := f.add(testSpace, bob, testutil.Join(bob.Address()), mb.Hash)

	s, err := f.node.SyncStreams(t.Context(), []*protocol.SyncCookie{created.NextSyncCookie})
	require.NoError(t, err)
	recv(t, s, protocol.SyncNew)

	reset := recv(t, s, protocol.SyncUpdate)
	assert.True(t, reset.Stream.SyncReset)
	require.Len(t, reset.Stream.Miniblocks, 2)
	assert.True(t, reset.Stream.Miniblocks[0].IsSnapshot())
	require.Len(t, reset.Stream.Events, 1)
	assert.Equal(t, pending.Hash, reset.Stream.Events[0].Hash)
	assert.Equal(t, int64(2), reset.Stream.NextSyncCookie.MinipoolGen)
}

func TestSync_BadCookiesGoDown(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()

	ahead := created.NextSyncCookie.Clone()
	ahead.MinipoolGen = 5
	unknown := &protocol.SyncCookie{StreamID: testChannel.Bytes(), MinipoolGen: 1}

	s, err := f.node.SyncStreams(t.Context(), []*protocol.SyncCookie{ahead, unknown})
	require.NoError(t, err)
	recv(t, s, protocol.SyncNew)
	down := recv(t, s, protocol.SyncDown)
	assert.Equal(t, protocol.Bytes(testSpace.Bytes()), down.StreamID)
	down = recv(t, s, protocol.SyncDown)
	assert.Equal(t, protocol.Bytes(testChannel.Bytes()), down.StreamID)
}

func TestSync_ModifySync(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	ctx := t.Context()

	s, err := f.node.SyncStreams(ctx, nil)
	require.NoError(t, err)
	recv(t, s, protocol.SyncNew)

	resp, err := f.node.ModifySync(ctx, &protocol.ModifySyncRequest{
		SyncID:     "sync-1",
		AddStreams: []*protocol.SyncCookie{created.NextSyncCookie, {StreamID: testChannel.Bytes(), MinipoolGen: 1}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Adds, 1)
	assert.Equal(t, protocol.CodeNotFound, resp.Adds[0].Code)
	assert.Equal(t, protocol.Bytes(testChannel.Bytes()), resp.Adds[0].StreamID)
	recv(t, s, protocol.SyncUpdate)

	resp, err = f.node.ModifySync(ctx, &protocol.ModifySyncRequest{
		SyncID:        "sync-1",
		RemoveStreams: []protocol.Bytes{testSpace.Bytes(), testChannel.Bytes(), {0x01}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Removals, 2)
	assert.Equal(t, protocol.CodeNotFound, resp.Removals[0].Code)
	assert.Equal(t, protocol.CodeInvalidArgument, resp.Removals[1].Code)

	// Removed streams no longer deliver.
	alice := testutil.Wallet(t, 1)
	f.add(testSpace, alice, testutil.Join(alice.Address()), created.Miniblocks[0].Hash)
	require.NoError(t, f.node.PingSync(ctx, "sync-1", "after"))
	pong := recv(t, s, protocol.SyncPong)
	assert.Equal(t, "after", pong.PongNonce)

	_, err = f.node.ModifySync(ctx, &protocol.ModifySyncRequest{SyncID: "nope"})
	assert.Equal(t, protocol.CodeNotFound, protocol.CodeOf(err))
}

func TestSync_EphemeralFanOut(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()

	s, err := f.node.SyncStreams(t.Context(), []*protocol.SyncCookie{created.NextSyncCookie})
	require.NoError(t, err)
	recv(t, s, protocol.SyncNew)
	recv(t, s, protocol.SyncUpdate)

	ev := f.b.Ephemeral(f.owner, testutil.Solicit("dev", false, "s1"), created.Miniblocks[0].Hash)
	require.NoError(t, f.node.AddEvent(t.Context(), testSpace.Bytes(), ev.Envelope))

	update := recv(t, s, protocol.SyncUpdate)
	require.Len(t, update.Stream.Events, 1)
	assert.Equal(t, ev.Hash, update.Stream.Events[0].Hash)

	got, err := f.node.GetStream(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	assert.Empty(t, got.Stream.Events)
	none, err := f.node.MakeMiniblock(t.Context(), testSpace, false)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSync_ContextCancelEnds(t *testing.T) {
	f := newFixture(t)
	f.createSpace()
	ctx, cancel := context.WithCancel(t.Context())

	s, err := f.node.SyncStreams(ctx, nil)
	require.NoError(t, err)
	recv(t, s, protocol.SyncNew)

	cancel()
	_, err = s.Recv()
	assert.True(t, protocol.IsCanceled(err))
	assert.Equal(t, 0, f.node.Syncs())
}

func TestSync_SlowSubscriberDropped(t *testing.T) {
	f := newFixture(t, node.WithSubscriptionBuffer(3))
	created := f.createSpace()

	s, err := f.node.SyncStreams(t.Context(), []*protocol.SyncCookie{created.NextSyncCookie})
	require.NoError(t, err)

	// NEW, the catch-up and the first event fill the buffer.
	for i := 1; i <= 2; i++ {
		w := testutil.Wallet(t, i)
		f.add(testSpace, w, testutil.Join(w.Address()), created.Miniblocks[0].Hash)
	}
	assert.Equal(t, 0, f.node.Syncs())

	recv(t, s, protocol.SyncNew)
	recv(t, s, protocol.SyncUpdate)
	recv(t, s, protocol.SyncUpdate)
	_, err = s.Recv()
	assert.Equal(t, protocol.CodeUnavailable, protocol.CodeOf(err))
}

func TestSync_DropStream(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()

	s, err := f.node.SyncStreams(t.Context(), []*protocol.SyncCookie{created.NextSyncCookie})
	require.NoError(t, err)
	recv(t, s, protocol.SyncNew)
	recv(t, s, protocol.SyncUpdate)

	resp, err := f.node.Info(t.Context(), &protocol.InfoRequest{Debug: []string{node.DebugSyncDown, testSpace.String()}})
	require.NoError(t, err)
	assert.Equal(t, "1", resp.Values["subscriptions"])
	down := recv(t, s, protocol.SyncDown)
	assert.Equal(t, protocol.Bytes(testSpace.Bytes()), down.StreamID)

	// Re-adding resumes from the cookie.
	_, err = f.node.ModifySync(t.Context(), &protocol.ModifySyncRequest{
		SyncID:     "sync-1",
		AddStreams: []*protocol.SyncCookie{created.NextSyncCookie},
	})
	require.NoError(t, err)
	recv(t, s, protocol.SyncUpdate)
}

func TestSync_NodeCloseEndsSubscriptions(t *testing.T) {
	f := newFixture(t)
	s, err := f.node.SyncStreams(t.Context(), nil)
	require.NoError(t, err)
	require.NoError(t, f.node.Close())

	recv(t, s, protocol.SyncNew)
	_, err = s.Recv()
	assert.Equal(t, protocol.CodeUnavailable, protocol.CodeOf(err))
}
