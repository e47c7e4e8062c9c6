// Package storetest is a conformance suite for miniblock.Store
// implementations.
package storetest

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/testutil"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) miniblock.Store

var (
	spaceA = streamid.MustMake(streamid.PrefixSpace, strings.Repeat("0a", 20))
	spaceB = streamid.MustMake(streamid.PrefixSpace, strings.Repeat("0b", 20))
)

// Chain is a produced stream history.
type Chain struct {
	ID         streamid.ID
	Genesis    *protocol.Miniblock
	Miniblocks []*protocol.Miniblock
	State      *miniblock.State
}

// BuildSpaceChain produces a space stream with n miniblocks after genesis,
// one member join per miniblock, snapshotting every third miniblock.
func BuildSpaceChain(t *testing.T, id streamid.ID, n int) *Chain {
	t.Helper()
	b := testutil.NewBuilder(t)
	owner := testutil.Wallet(t, 0)
	p := miniblock.NewProducer(
		miniblock.WithSnapshotPolicy(miniblock.SnapshotPolicy{Default: 3}),
		miniblock.WithClock(testutil.NewClock().NowMs),
	)

	genesis, st, err := p.Genesis(id, []*protocol.ParsedEvent{
		b.Event(owner, &protocol.SpaceInception{StreamID: id.Bytes()}, nil),
		b.Event(owner, testutil.Join(owner.Address()), nil),
	})
	require.NoError(t, err)

	chain := &Chain{ID: id, Genesis: genesis}
	for i := 1; i <= n; i++ {
		w := testutil.Wallet(t, i)
		mb, next, err := p.Next(st, []*protocol.ParsedEvent{b.Event(w, testutil.Join(w.Address()), st.LastHash)})
		require.NoError(t, err)
		chain.Miniblocks = append(chain.Miniblocks, mb)
		st = next
	}
	chain.State = st
	return chain
}

// Run executes the suite against stores from newStore.
func Run(t *testing.T, newStore Factory) {
	open := func(t *testing.T) miniblock.Store {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}

	t.Run("CreateStream", func(t *testing.T) {
		testCreateStream(t, open(t))
	})
	t.Run("WriteMiniblocks", func(t *testing.T) {
		testWriteMiniblocks(t, open(t))
	})
	t.Run("GetMiniblocks", func(t *testing.T) {
		testGetMiniblocks(t, open(t))
	})
	t.Run("Trim", func(t *testing.T) {
		testTrim(t, open(t))
	})
	t.Run("MediaNotTrimmable", func(t *testing.T) {
		testMediaNotTrimmable(t, open(t))
	})
	t.Run("UnknownStream", func(t *testing.T) {
		testUnknownStream(t, open(t))
	})
	t.Run("ListStreams", func(t *testing.T) {
		testListStreams(t, open(t))
	})
	t.Run("LoadState", func(t *testing.T) {
		testLoadState(t, open(t))
	})
}

func nums(mbs []*protocol.Miniblock) []int64 {
	out := make([]int64, len(mbs))
	for i, mb := range mbs {
		out[i] = mb.Num()
	}
	return out
}

func write(t *testing.T, s miniblock.Store, c *Chain) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateStream(ctx, c.ID, c.Genesis))
	require.NoError(t, s.WriteMiniblocks(ctx, c.ID, c.Miniblocks))
}

func testCreateStream(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	c := BuildSpaceChain(t, spaceA, 1)

	require.NoError(t, s.CreateStream(ctx, c.ID, c.Genesis))
	err := s.CreateStream(ctx, c.ID, c.Genesis)
	assert.Equal(t, protocol.CodeAlreadyExists, protocol.CodeOf(err))

	err = s.CreateStream(ctx, spaceB, c.Miniblocks[0])
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))

	exists, err := s.StreamExists(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	last, err := s.LastMiniblockNum(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)
}

func testWriteMiniblocks(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	c := BuildSpaceChain(t, spaceA, 4)
	require.NoError(t, s.CreateStream(ctx, c.ID, c.Genesis))

	err := s.WriteMiniblocks(ctx, c.ID, c.Miniblocks[1:2])
	assert.Equal(t, protocol.CodeMiniblockTooNew, protocol.CodeOf(err))

	require.NoError(t, s.WriteMiniblocks(ctx, c.ID, c.Miniblocks[:3]))

	// Rewriting stored miniblocks is a no-op.
	require.NoError(t, s.WriteMiniblocks(ctx, c.ID, c.Miniblocks[:2]))

	last, err := s.LastMiniblockNum(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)

	forged := *c.Miniblocks[3]
	forged.Header.PrevMiniblockHash = protocol.Bytes{0xde, 0xad}
	err = s.WriteMiniblocks(ctx, c.ID, []*protocol.Miniblock{&forged})
	assert.Equal(t, protocol.CodeBadPrevMiniblockHash, protocol.CodeOf(err))

	require.NoError(t, s.WriteMiniblocks(ctx, c.ID, c.Miniblocks[3:]))
	last, err = s.LastMiniblockNum(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)
}

func testGetMiniblocks(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	c := BuildSpaceChain(t, spaceA, 7)
	write(t, s, c)

	rng, err := s.GetMiniblocks(ctx, c.ID, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 2}, nums(rng.Miniblocks))
	assert.True(t, rng.Terminus)
	assert.Equal(t, c.Genesis.Hash, rng.Miniblocks[0].Hash)

	rng, err = s.GetMiniblocks(ctx, c.ID, 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 4}, nums(rng.Miniblocks))
	assert.False(t, rng.Terminus)
	assert.Equal(t, int64(2), rng.FromInclusive)

	rng, err = s.GetMiniblocks(ctx, c.ID, 5, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6, 7}, nums(rng.Miniblocks))

	rng, err = s.GetMiniblocks(ctx, c.ID, 20, 30)
	require.NoError(t, err)
	assert.Empty(t, rng.Miniblocks)

	_, err = s.GetMiniblocks(ctx, c.ID, 4, 2)
	assert.Equal(t, protocol.CodeInvalidArgument, protocol.CodeOf(err))

	mb, err := s.LatestSnapshot(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), mb.Num())
	require.NotNil(t, mb.Header.Snapshot)
	assert.Len(t, mb.Header.Snapshot.Members.Joined, 7)
}

func testTrim(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	c := BuildSpaceChain(t, spaceA, 7)
	write(t, s, c)

	point, err := s.Trim(ctx, c.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), point)

	// Snapshots are at 0, 3 and 6; trimming to 5 keeps 3 onwards.
	point, err = s.Trim(ctx, c.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), point)

	rng, err := s.GetMiniblocks(ctx, c.ID, 0, 2)
	require.NoError(t, err)
	assert.Empty(t, rng.Miniblocks)
	assert.True(t, rng.Terminus)

	rng, err = s.GetMiniblocks(ctx, c.ID, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, nums(rng.Miniblocks))
	assert.True(t, rng.Terminus)
	assert.Equal(t, int64(3), rng.FromInclusive)

	rng, err = s.GetMiniblocks(ctx, c.ID, 3, 5)
	require.NoError(t, err)
	assert.True(t, rng.Terminus)

	rng, err = s.GetMiniblocks(ctx, c.ID, 4, 6)
	require.NoError(t, err)
	assert.False(t, rng.Terminus)

	// Trimming below the retained range changes nothing.
	point, err = s.Trim(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), point)
}

func testMediaNotTrimmable(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	id := streamid.MediaStreamID()
	w := testutil.Wallet(t, 1)
	b := testutil.NewBuilder(t)
	p := miniblock.NewProducer()
	genesis, _, err := p.Genesis(id, []*protocol.ParsedEvent{
		b.Event(w, &protocol.MediaInception{StreamID: id.Bytes(), ChunkCount: 1}, nil),
	})
	require.NoError(t, err)
	require.NoError(t, s.CreateStream(ctx, id, genesis))

	_, err = s.Trim(ctx, id, 1)
	assert.Equal(t, protocol.CodeNotTrimmable, protocol.CodeOf(err))
}

func testUnknownStream(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	_, err := s.LastMiniblockNum(ctx, spaceB)
	assert.True(t, protocol.IsNotFound(err))
	_, err = s.GetMiniblocks(ctx, spaceB, 0, 1)
	assert.True(t, protocol.IsNotFound(err))
	_, err = s.LatestSnapshot(ctx, spaceB)
	assert.True(t, protocol.IsNotFound(err))

	exists, err := s.StreamExists(ctx, spaceB)
	require.NoError(t, err)
	assert.False(t, exists)
}

func testListStreams(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	write(t, s, BuildSpaceChain(t, spaceB, 1))
	write(t, s, BuildSpaceChain(t, spaceA, 1))

	ids, err := s.ListStreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []streamid.ID{spaceA, spaceB}, ids)
}

func testLoadState(t *testing.T, s miniblock.Store) {
	ctx := context.Background()
	c := BuildSpaceChain(t, spaceA, 8)
	write(t, s, c)
	_, err := s.Trim(ctx, c.ID, 7)
	require.NoError(t, err)

	st, err := miniblock.LoadState(ctx, s, miniblock.NewProducer().Reducer(), c.ID)
	require.NoError(t, err)

	assert.Equal(t, c.State.LastNum, st.LastNum)
	assert.Equal(t, c.State.LastHash, st.LastHash)
	assert.Equal(t, c.State.NextEventNum, st.NextEventNum)

	want, err := c.State.Snapshot.Hash()
	require.NoError(t, err)
	got, err := st.Snapshot.Hash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
