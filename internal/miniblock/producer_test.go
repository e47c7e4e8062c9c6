package miniblock_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/miniblock/storetest"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/testutil"
)

var testSpace = streamid.MustMake(streamid.PrefixSpace, strings.Repeat("ab", 20))

func TestProducer_Genesis(t *testing.T) {
	c := storetest.BuildSpaceChain(t, testSpace, 0)

	g := c.Genesis
	assert.Equal(t, int64(0), g.Num())
	require.True(t, g.IsSnapshot())
	assert.Len(t, g.Header.EventHashes, 2)
	assert.Len(t, g.Events, 2)
	assert.Equal(t, int64(2), c.State.NextEventNum)

	sum, err := g.Header.Snapshot.Hash()
	require.NoError(t, err)
	assert.Equal(t, sum, g.Header.SnapshotHash)

	_, err = protocol.ParseMiniblock(g, true)
	require.NoError(t, err)
}

func TestProducer_LinksAndNumbers(t *testing.T) {
	c := storetest.BuildSpaceChain(t, testSpace, 4)

	prev := c.Genesis
	for i, mb := range c.Miniblocks {
		assert.Equal(t, int64(i+1), mb.Num())
		assert.Equal(t, prev.Hash, mb.Header.PrevMiniblockHash)
		assert.Equal(t, int64(i+2), mb.Header.EventNumOffset)
		assert.Equal(t, mb.Num()%3 == 0, mb.IsSnapshot(), "miniblock %d", mb.Num())

		_, err := protocol.ParseMiniblock(mb, true)
		require.NoError(t, err)
		prev = mb
	}

	m, ok := c.State.Snapshot.Members.Find(testutil.Wallet(t, 4).Address())
	require.True(t, ok)
	assert.Equal(t, int64(4), m.MiniblockNum)
	assert.Equal(t, int64(5), m.EventNum)
}

func TestProducer_NextDoesNotMutateState(t *testing.T) {
	c := storetest.BuildSpaceChain(t, testSpace, 1)
	before, err := c.State.Snapshot.Hash()
	require.NoError(t, err)

	b := testutil.NewBuilder(t)
	w := testutil.Wallet(t, 50)
	_, _, err = miniblock.NewProducer().Next(c.State, []*protocol.ParsedEvent{b.Event(w, testutil.Join(w.Address()), nil)})
	require.NoError(t, err)

	after, err := c.State.Snapshot.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestProducer_FoldErrorAborts(t *testing.T) {
	c := storetest.BuildSpaceChain(t, testSpace, 0)
	b := testutil.NewBuilder(t)
	w := testutil.Wallet(t, 1)

	bad := b.Event(w, &protocol.SpaceUpdateChannelAutojoin{ChannelID: protocol.Bytes{1}, Autojoin: true}, nil)
	_, _, err := miniblock.NewProducer().Next(c.State, []*protocol.ParsedEvent{bad})
	assert.Error(t, err)
}

func TestSnapshotPolicy(t *testing.T) {
	p := miniblock.DefaultSnapshotPolicy()
	inbox := streamid.MustMake(streamid.PrefixUserInbox, strings.Repeat("cd", 20))

	assert.Equal(t, int64(100), p.Interval(testSpace))
	assert.Equal(t, int64(10), p.Interval(inbox))
	assert.True(t, p.IsSnapshot(inbox, 20))
	assert.False(t, p.IsSnapshot(testSpace, 20))
	assert.True(t, p.IsSnapshot(testSpace, 0))
}

func TestBounds(t *testing.T) {
	tests := []struct {
		name                  string
		first, last, from, to int64
		lo, hi                int64
		terminus              bool
	}{
		{"from genesis", 0, 9, 0, 5, 0, 5, true},
		{"middle", 0, 9, 3, 5, 3, 5, false},
		{"clamped high", 0, 9, 8, 20, 8, 10, false},
		{"below trim", 5, 9, 1, 3, 5, 3, true},
		{"straddling trim", 5, 9, 2, 7, 5, 7, true},
		{"at trim", 5, 9, 5, 7, 5, 7, true},
		{"above trim", 5, 9, 6, 7, 6, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, terminus, err := miniblock.Bounds(tt.first, tt.last, tt.from, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
			assert.Equal(t, tt.terminus, terminus)
		})
	}
}

func TestEffectiveTrim(t *testing.T) {
	snaps := []int64{0, 100, 200}
	assert.Equal(t, int64(100), miniblock.EffectiveTrim(snaps, 0, 150))
	assert.Equal(t, int64(200), miniblock.EffectiveTrim(snaps, 0, 200))
	assert.Equal(t, int64(0), miniblock.EffectiveTrim(snaps, 0, 99))
	assert.Equal(t, int64(100), miniblock.EffectiveTrim([]int64{100}, 100, 150))
}
