package node_test

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/node"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/testutil"
)

var (
	testSpace   = streamid.MustMake(streamid.PrefixSpace, strings.Repeat("3c", 20))
	testChannel = streamid.MustMake(streamid.PrefixChannel, strings.Repeat("3c", 20)+strings.Repeat("00", 11))
	testMedia   = streamid.MustMake(streamid.PrefixMedia, strings.Repeat("3d", 31))
)

type fixture struct {
	t     *testing.T
	store miniblock.Store
	node  *node.Node
	b     *testutil.Builder
	owner *keys.Wallet
}

func newFixture(t *testing.T, opts ...node.Option) *fixture {
	t.Helper()
	store := miniblock.NewMemoryStore()
	return newFixtureWithStore(t, store, opts...)
}

func newFixtureWithStore(t *testing.T, store miniblock.Store, opts ...node.Option) *fixture {
	t.Helper()
	opts = append([]node.Option{
		node.WithIDGenerator(testutil.NewSequentialIDs("")),
		node.WithProducer(miniblock.NewProducer(miniblock.WithClock(testutil.NewClock().NowMs))),
	}, opts...)
	n, err := node.New(t.Context(), store, testutil.Wallet(t, 1000), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return &fixture{t: t, store: store, node: n, b: testutil.NewBuilder(t), owner: testutil.Wallet(t, 0)}
}

// createSpace creates testSpace with the owner joined and returns the
// genesis hash.
func (f *fixture) createSpace() *protocol.StreamAndCookie {
	f.t.Helper()
	resp, err := f.node.CreateStream(f.t.Context(), testSpace.Bytes(), []*protocol.Envelope{
		f.b.Event(f.owner, &protocol.SpaceInception{StreamID: testSpace.Bytes()}, nil).Envelope,
		f.b.Event(f.owner, testutil.Join(f.owner.Address()), nil).Envelope,
	})
	require.NoError(f.t, err)
	return resp
}

func (f *fixture) add(id streamid.ID, w *keys.Wallet, content protocol.Content, prev []byte) *protocol.ParsedEvent {
	f.t.Helper()
	ev := f.b.Event(w, content, prev)
	require.NoError(f.t, f.node.AddEvent(f.t.Context(), id.Bytes(), ev.Envelope))
	return ev
}

func (f *fixture) makeMiniblock(id streamid.ID) *protocol.Miniblock {
	f.t.Helper()
	mb, err := f.node.MakeMiniblock(f.t.Context(), id, false)
	require.NoError(f.t, err)
	require.NotNil(f.t, mb)
	return mb
}

func TestNode_CreateAndGetStream(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()

	require.Len(t, created.Miniblocks, 1)
	genesis := created.Miniblocks[0]
	assert.True(t, genesis.IsSnapshot())
	assert.Equal(t, int64(1), created.NextSyncCookie.MinipoolGen)
	assert.Equal(t, genesis.Hash, created.NextSyncCookie.PrevMiniblockHash)
	assert.Equal(t, f.node.Address(), created.NextSyncCookie.NodeAddress)

	got, err := f.node.GetStream(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	require.Len(t, got.Stream.Miniblocks, 1)
	assert.Equal(t, genesis.Hash, got.Stream.Miniblocks[0].Hash)
	assert.Empty(t, got.Stream.Events)

	ok, err := f.store.StreamExists(t.Context(), testSpace)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNode_CreateStreamErrors(t *testing.T) {
	f := newFixture(t)
	f.createSpace()
	ctx := t.Context()

	_, err := f.node.CreateStream(ctx, testSpace.Bytes(), []*protocol.Envelope{
		f.b.Event(f.owner, &protocol.SpaceInception{StreamID: testSpace.Bytes()}, nil).Envelope,
	})
	assert.Equal(t, protocol.CodeAlreadyExists, protocol.CodeOf(err))

	other := streamid.MustMake(streamid.PrefixSpace, strings.Repeat("3e", 20))
	tests := []struct {
		name string
		id   streamid.ID
		envs []*protocol.Envelope
		code protocol.ErrorCode
	}{
		{"no events", other, nil, protocol.CodeInvalidArgument},
		{"not inception", other, []*protocol.Envelope{
			f.b.Event(f.owner, testutil.Join(f.owner.Address()), nil).Envelope,
		}, protocol.CodeBadEvent},
		{"inception names another stream", other, []*protocol.Envelope{
			f.b.Event(f.owner, &protocol.SpaceInception{StreamID: testSpace.Bytes()}, nil).Envelope,
		}, protocol.CodeBadEvent},
		{"inception kind mismatch", testChannel, []*protocol.Envelope{
			f.b.Event(f.owner, &protocol.SpaceInception{StreamID: testChannel.Bytes()}, nil).Envelope,
		}, protocol.CodeBadEvent},
		{"second inception", other, []*protocol.Envelope{
			f.b.Event(f.owner, &protocol.SpaceInception{StreamID: other.Bytes()}, nil).Envelope,
			f.b.Event(f.owner, &protocol.SpaceInception{StreamID: other.Bytes()}, nil).Envelope,
		}, protocol.CodeBadEvent},
		{"media chunk count", testMedia, []*protocol.Envelope{
			f.b.Event(f.owner, &protocol.MediaInception{StreamID: testMedia.Bytes(), ChunkCount: 0}, nil).Envelope,
		}, protocol.CodeBadEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.node.CreateStream(ctx, tt.id.Bytes(), tt.envs)
			require.Error(t, err)
			assert.Equal(t, tt.code, protocol.CodeOf(err))
		})
	}

	_, err = f.node.CreateStream(ctx, []byte{0x10, 1}, nil)
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))
}

func TestNode_AddEventAndMakeMiniblock(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	prev := created.Miniblocks[0].Hash
	alice := testutil.Wallet(t, 1)

	join := f.add(testSpace, alice, testutil.Join(alice.Address()), prev)

	got, err := f.node.GetStream(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	require.Len(t, got.Stream.Events, 1)
	assert.Equal(t, join.Hash, got.Stream.Events[0].Hash)

	mb := f.makeMiniblock(testSpace)
	assert.Equal(t, int64(1), mb.Num())
	assert.Equal(t, int64(2), mb.Header.EventNumOffset)
	assert.Equal(t, []protocol.Bytes{join.Hash}, mb.Header.EventHashes)
	assert.Equal(t, prev, mb.Header.PrevMiniblockHash)

	// Nothing pending: no miniblock unless forced.
	none, err := f.node.MakeMiniblock(t.Context(), testSpace, false)
	require.NoError(t, err)
	assert.Nil(t, none)
	forced, err := f.node.MakeMiniblock(t.Context(), testSpace, true)
	require.NoError(t, err)
	require.NotNil(t, forced)
	assert.Equal(t, int64(2), forced.Num())
	assert.Empty(t, forced.Events)

	got, err = f.node.GetStream(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	assert.Empty(t, got.Stream.Events)
	require.Len(t, got.Stream.Miniblocks, 3)
	assert.Equal(t, int64(3), got.Stream.NextSyncCookie.MinipoolGen)

	all, err := f.node.GetStreamEx(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	rng, err := f.node.GetMiniblocks(t.Context(), testSpace.Bytes(), 1, 2)
	require.NoError(t, err)
	require.Len(t, rng.Miniblocks, 1)
	assert.Equal(t, mb.Hash, rng.Miniblocks[0].Hash)
	assert.Equal(t, int64(1), rng.FromInclusive)
	assert.False(t, rng.Terminus)
}

func TestNode_AddEventRejects(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	prev := created.Miniblocks[0].Hash
	ctx := t.Context()
	stranger := testutil.Wallet(t, 7)

	dup := f.add(testSpace, f.owner, &protocol.Pin{EventID: []byte{1}}, prev)

	missing := streamid.MustMake(streamid.PrefixChannel, strings.Repeat("3c", 20)+strings.Repeat("00", 10)+"09")
	tampered := f.b.Event(f.owner, &protocol.Unpin{EventID: []byte{1}}, prev).Envelope
	tampered.Hash = append(protocol.Bytes{}, tampered.Hash...)
	tampered.Hash[0] ^= 0xff

	tests := []struct {
		name string
		id   streamid.ID
		env  *protocol.Envelope
		code protocol.ErrorCode
	}{
		{"unknown stream", testChannel, f.b.Event(f.owner, testutil.Join(f.owner.Address()), prev).Envelope, protocol.CodeNotFound},
		{"duplicate", testSpace, dup.Envelope, protocol.CodeDuplicateEvent},
		{"second inception", testSpace, f.b.Event(f.owner, &protocol.SpaceInception{StreamID: testSpace.Bytes()}, prev).Envelope, protocol.CodeBadEvent},
		{"wrong kind", testSpace, f.b.Event(f.owner, &protocol.ChannelMessage{Message: testutil.Encrypted("hi")}, prev).Envelope, protocol.CodeBadEvent},
		{"no prev hash", testSpace, f.b.Event(f.owner, &protocol.Unpin{EventID: []byte{1}}, nil).Envelope, protocol.CodeBadEvent},
		{"not a member", testSpace, f.b.Event(stranger, &protocol.Pin{EventID: []byte{2}}, prev).Envelope, protocol.CodePermissionDenied},
		{"unknown channel", testSpace, f.b.Event(f.owner, &protocol.SpaceUpdateChannelAutojoin{ChannelID: missing.Bytes()}, prev).Envelope, protocol.CodeBadEvent},
		{"bad hash", testSpace, tampered, protocol.CodeBadEventHash},
		{"header", testSpace, f.b.Header(f.owner, created.Miniblocks[0]).Envelope, protocol.CodeBadEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.node.AddEvent(ctx, tt.id.Bytes(), tt.env)
			require.Error(t, err)
			assert.Equal(t, tt.code, protocol.CodeOf(err), err.Error())
		})
	}

	got, err := f.node.GetStream(ctx, testSpace.Bytes())
	require.NoError(t, err)
	assert.Len(t, got.Stream.Events, 1)
}

func TestNode_MediaChunkBounds(t *testing.T) {
	f := newFixture(t, node.WithMediaLimits(protocol.MediaLimits{MaxChunkSize: 4, MaxChunkCount: 3}))
	created, err := f.node.CreateStream(t.Context(), testMedia.Bytes(), []*protocol.Envelope{
		f.b.Event(f.owner, &protocol.MediaInception{StreamID: testMedia.Bytes(), ChunkCount: 2}, nil).Envelope,
	})
	require.NoError(t, err)
	prev := created.Miniblocks[0].Hash

	chunk := func(index int32, data string) error {
		ev := f.b.Event(f.owner, &protocol.MediaChunk{ChunkIndex: index, Data: []byte(data)}, prev)
		return f.node.AddEvent(t.Context(), testMedia.Bytes(), ev.Envelope)
	}
	assert.NoError(t, chunk(0, "abcd"))
	assert.NoError(t, chunk(1, "ef"))
	assert.Equal(t, protocol.CodeBadEvent, protocol.CodeOf(chunk(2, "gh")))
	assert.Equal(t, protocol.CodeBadEvent, protocol.CodeOf(chunk(-1, "gh")))
	assert.Equal(t, protocol.CodeBadEvent, protocol.CodeOf(chunk(0, "toolong")))

	_, err = f.node.CreateStream(t.Context(), testMedia.Bytes(), nil)
	assert.Error(t, err)

	big := streamid.MustMake(streamid.PrefixMedia, strings.Repeat("3f", 31))
	_, err = f.node.CreateStream(t.Context(), big.Bytes(), []*protocol.Envelope{
		f.b.Event(f.owner, &protocol.MediaInception{StreamID: big.Bytes(), ChunkCount: 4}, nil).Envelope,
	})
	assert.Equal(t, protocol.CodeBadEvent, protocol.CodeOf(err))
}

func TestNode_ReloadFromStore(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	alice := testutil.Wallet(t, 1)
	f.add(testSpace, alice, testutil.Join(alice.Address()), created.Miniblocks[0].Hash)
	mb := f.makeMiniblock(testSpace)

	// A minipool event is lost on restart; sealed state is not.
	f.add(testSpace, f.owner, &protocol.Pin{EventID: []byte{1}}, mb.Hash)

	g := newFixtureWithStore(t, f.store)
	got, err := g.node.GetStream(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	assert.Empty(t, got.Stream.Events)
	assert.Equal(t, int64(2), got.Stream.NextSyncCookie.MinipoolGen)
	assert.Equal(t, mb.Hash, got.Stream.NextSyncCookie.PrevMiniblockHash)

	// Members come back, so alice may still post.
	g.add(testSpace, alice, &protocol.Pin{EventID: []byte{2}}, mb.Hash)
}

func TestNode_Info(t *testing.T) {
	f := newFixture(t)
	created := f.createSpace()
	ctx := t.Context()

	resp, err := f.node.Info(ctx, &protocol.InfoRequest{})
	require.NoError(t, err)
	assert.Equal(t, node.Graffiti, resp.Graffiti)

	resp, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugPing}})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Graffiti)

	prev := created.Miniblocks[0].Hash
	for i := 1; i <= 4; i++ {
		w := testutil.Wallet(t, i)
		f.add(testSpace, w, testutil.Join(w.Address()), prev)
		resp, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugMakeMiniblock, testSpace.String()}})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"miniblock_num": strconv.Itoa(i)}, resp.Values)
	}

	resp, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugMakeMiniblock, testSpace.String()}})
	require.NoError(t, err)
	assert.Equal(t, "-1", resp.Values["miniblock_num"])

	// Only genesis is a snapshot, so the trim point falls back to 0.
	resp, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugForceTrimStream, testSpace.String(), "3"}})
	require.NoError(t, err)
	assert.Equal(t, "0", resp.Values["first_miniblock_num"])

	_, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugForceTrimStream, testSpace.String()}})
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))
	_, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugForceTrimStream, testSpace.String(), "x"}})
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))
	_, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{node.DebugMakeMiniblock, "nope"}})
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))
	_, err = f.node.Info(ctx, &protocol.InfoRequest{Debug: []string{"reboot"}})
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))
}

func TestNode_ForceTrimAtSnapshot(t *testing.T) {
	f := newFixture(t, node.WithProducer(miniblock.NewProducer(
		miniblock.WithSnapshotPolicy(miniblock.SnapshotPolicy{Default: 2}),
	)))
	created := f.createSpace()
	prev := created.Miniblocks[0].Hash
	for i := 1; i <= 5; i++ {
		w := testutil.Wallet(t, i)
		f.add(testSpace, w, testutil.Join(w.Address()), prev)
		prev = f.makeMiniblock(testSpace).Hash
	}

	first, err := f.node.Trim(t.Context(), testSpace, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(4), first)

	got, err := f.node.GetStream(t.Context(), testSpace.Bytes())
	require.NoError(t, err)
	require.Len(t, got.Stream.Miniblocks, 2)
	assert.Equal(t, int64(4), got.Stream.Miniblocks[0].Num())

	rng, err := f.node.GetMiniblocks(t.Context(), testSpace.Bytes(), 0, 3)
	require.NoError(t, err)
	assert.Empty(t, rng.Miniblocks)
	assert.True(t, rng.Terminus)
}

func TestNode_ClosedRejects(t *testing.T) {
	f := newFixture(t)
	f.createSpace()
	require.NoError(t, f.node.Close())
	require.NoError(t, f.node.Close())

	_, err := f.node.GetStream(context.Background(), testSpace.Bytes())
	assert.Equal(t, protocol.CodeUnavailable, protocol.CodeOf(err))
	_, err = f.node.SyncStreams(context.Background(), nil)
	assert.Equal(t, protocol.CodeUnavailable, protocol.CodeOf(err))
}
