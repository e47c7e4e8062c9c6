package stream_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/miniblock/storetest"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/testutil"
)

var testSpace = streamid.MustMake(streamid.PrefixSpace, strings.Repeat("5e", 20))

// response builds a GetStream response from the chain's genesis and the
// first n miniblocks.
func response(chain *storetest.Chain, n int, st *miniblock.State) *protocol.StreamAndCookie {
	mbs := append([]*protocol.Miniblock{chain.Genesis}, chain.Miniblocks[:n]...)
	return &protocol.StreamAndCookie{
		StreamID:       chain.ID.Bytes(),
		Miniblocks:     mbs,
		NextSyncCookie: st.Cookie(nil),
	}
}

// stateAt replays the chain up to miniblock n.
func stateAt(t *testing.T, chain *storetest.Chain, n int) *miniblock.State {
	t.Helper()
	store := miniblock.NewMemoryStore()
	require.NoError(t, store.CreateStream(t.Context(), chain.ID, chain.Genesis))
	require.NoError(t, store.WriteMiniblocks(t.Context(), chain.ID, chain.Miniblocks[:n]))
	st, err := miniblock.LoadState(t.Context(), store, snapshot.New(), chain.ID)
	require.NoError(t, err)
	return st
}

func TestView_InitializeFromResponse(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 4)
	st := stateAt(t, chain, 2)

	v := stream.NewView(testSpace, stream.WithVerify(true))
	require.NoError(t, v.InitializeFromResponse(response(chain, 2, st)))

	assert.True(t, v.Initialized())
	assert.Equal(t, int64(2), v.LastMiniblockNum())
	assert.Equal(t, int64(4), v.NextEventNum())
	assert.Len(t, v.Members(), 3)
	assert.True(t, v.IsMember(testutil.Wallet(t, 2).Address()))

	want, err := st.Snapshot.Hash()
	require.NoError(t, err)
	got, err := v.SnapshotHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	timeline := v.Timeline()
	require.Len(t, timeline, 4)
	for i, te := range timeline {
		assert.True(t, te.Confirmed)
		assert.Equal(t, int64(i), te.EventNum)
	}
	assert.Equal(t, int64(2), timeline[3].MiniblockNum)
	assert.Equal(t, st.Cookie(nil), v.Cookie())
}

func TestView_InitializeRequiresSnapshot(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 2)
	resp := &protocol.StreamAndCookie{
		StreamID:   testSpace.Bytes(),
		Miniblocks: chain.Miniblocks,
	}
	v := stream.NewView(testSpace)
	err := v.InitializeFromResponse(resp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshot")
	assert.False(t, v.Initialized())

	assert.Error(t, v.InitializeFromResponse(&protocol.StreamAndCookie{}))
}

func TestView_ApplySyncBeforeInitialize(t *testing.T) {
	v := stream.NewView(testSpace)
	err := v.ApplySync(&protocol.StreamAndCookie{StreamID: testSpace.Bytes()})
	assert.ErrorContains(t, err, "not initialized")
}

func TestView_MinipoolThenHeader(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 2)
	st := stateAt(t, chain, 1)
	b := testutil.NewBuilder(t)
	node := testutil.Wallet(t, 99)

	v := stream.NewView(testSpace, stream.WithVerify(true))
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	// Miniblock 2 arrives as its event followed by its header.
	mb2 := chain.Miniblocks[1]
	next := stateAt(t, chain, 2)
	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID:       testSpace.Bytes(),
		Events:         []*protocol.Envelope{mb2.Events[0]},
		NextSyncCookie: st.Cookie(nil),
	}))

	timeline := v.Timeline()
	require.Len(t, timeline, 4)
	assert.False(t, timeline[3].Confirmed)
	assert.Equal(t, int64(3), timeline[3].EventNum)

	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID:       testSpace.Bytes(),
		Events:         []*protocol.Envelope{b.Header(node, mb2).Envelope},
		NextSyncCookie: next.Cookie(nil),
	}))

	timeline = v.Timeline()
	require.Len(t, timeline, 4)
	assert.True(t, timeline[3].Confirmed)
	assert.Equal(t, int64(2), timeline[3].MiniblockNum)
	assert.Equal(t, int64(2), v.LastMiniblockNum())
	assert.Equal(t, next.Cookie(nil), v.Cookie())

	want, err := next.Snapshot.Hash()
	require.NoError(t, err)
	got, err := v.SnapshotHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestView_RedeliverySkipped(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 2)
	st := stateAt(t, chain, 1)

	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	update := &protocol.StreamAndCookie{
		StreamID:       testSpace.Bytes(),
		Events:         []*protocol.Envelope{chain.Miniblocks[1].Events[0]},
		NextSyncCookie: st.Cookie(nil),
	}
	require.NoError(t, v.ApplySync(update))
	require.NoError(t, v.ApplySync(update))

	assert.Len(t, v.Timeline(), 4)
	assert.Equal(t, int64(4), v.NextEventNum())
	assert.Len(t, v.Members(), 3)
}

func TestView_SnapshotMismatchAdoptsServer(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 3)
	st := stateAt(t, chain, 2)
	b := testutil.NewBuilder(t)

	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 2, st)))

	// The header of snapshot miniblock 3 arrives without its event.
	mb3 := chain.Miniblocks[2]
	require.True(t, mb3.IsSnapshot())
	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID: testSpace.Bytes(),
		Events:   []*protocol.Envelope{b.Header(testutil.Wallet(t, 99), mb3).Envelope},
	}))

	got, err := v.SnapshotHash()
	require.NoError(t, err)
	assert.Equal(t, mb3.Header.SnapshotHash, got)
	assert.Len(t, v.Members(), 4)
	assert.Equal(t, int64(3), v.LastMiniblockNum())
	// Cookie unchanged when the update carries none.
	assert.Equal(t, st.Cookie(nil), v.Cookie())
}

func TestView_EphemeralEvents(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 1)
	st := stateAt(t, chain, 1)
	b := testutil.NewBuilder(t)
	w := testutil.Wallet(t, 1)

	var (
		mu    sync.Mutex
		seen  []bool
		count int
	)
	v := stream.NewView(testSpace, stream.WithListeners(stream.Listeners{
		OnKeySolicitation: func(id streamid.ID, sender protocol.Bytes, sol *protocol.KeySolicitation, ephemeral bool) {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, testSpace, id)
			assert.Equal(t, w.Address(), []byte(sender))
			seen = append(seen, ephemeral)
		},
		OnEvent: func(streamid.ID, *stream.TimelineEvent) {
			mu.Lock()
			defer mu.Unlock()
			count++
		},
	}))
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))
	before, err := v.SnapshotHash()
	require.NoError(t, err)

	ev := b.Ephemeral(w, testutil.Solicit("device-1", true, "s1"), st.LastHash)
	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID: testSpace.Bytes(),
		Events:   []*protocol.Envelope{ev.Envelope},
	}))

	after, err := v.SnapshotHash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Len(t, v.Timeline(), 3)
	assert.Equal(t, int64(3), v.NextEventNum())
	assert.True(t, v.HasEvent(ev.Hash))
	assert.Empty(t, v.Solicitations(w.Address()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, seen)
	assert.Equal(t, 4, count)
}

func TestView_PersistentSolicitation(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 1)
	st := stateAt(t, chain, 1)
	b := testutil.NewBuilder(t)
	w := testutil.Wallet(t, 1)

	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	ev := b.Event(w, testutil.Solicit("device-1", true, "s2", "s1"), st.LastHash)
	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID: testSpace.Bytes(),
		Events:   []*protocol.Envelope{ev.Envelope},
	}))

	sols := v.Solicitations(w.Address())
	require.Len(t, sols, 1)
	assert.Equal(t, "device-1", sols[0].DeviceKey)
	assert.Equal(t, []string{"s1", "s2"}, sols[0].SessionIDs)
}

func TestView_MembershipListeners(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 1)
	st := stateAt(t, chain, 1)
	b := testutil.NewBuilder(t)
	w := testutil.Wallet(t, 1)

	var joined, left []protocol.Bytes
	v := stream.NewView(testSpace)
	v.SetListeners(stream.Listeners{
		OnMemberJoined: func(_ streamid.ID, user protocol.Bytes) { joined = append(joined, user) },
		OnMemberLeft:   func(_ streamid.ID, user protocol.Bytes) { left = append(left, user) },
	})
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))
	require.Len(t, joined, 2)

	ev := b.Event(w, testutil.Leave(w.Address()), st.LastHash)
	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID: testSpace.Bytes(),
		Events:   []*protocol.Envelope{ev.Envelope},
	}))
	require.Len(t, left, 1)
	assert.Equal(t, w.Address(), []byte(left[0]))
	assert.False(t, v.IsMember(w.Address()))
}

func TestView_UnknownChannelSettingContinues(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 1)
	st := stateAt(t, chain, 1)
	b := testutil.NewBuilder(t)
	owner := testutil.Wallet(t, 0)

	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	missing := streamid.MustMake(streamid.PrefixChannel, strings.Repeat("5e", 20)+strings.Repeat("00", 11))
	ev := b.Event(owner, &protocol.SpaceUpdateChannelAutojoin{ChannelID: missing.Bytes(), Autojoin: true}, st.LastHash)
	require.NoError(t, v.ApplySync(&protocol.StreamAndCookie{
		StreamID: testSpace.Bytes(),
		Events:   []*protocol.Envelope{ev.Envelope},
	}))
	assert.True(t, v.HasEvent(ev.Hash))
	assert.Len(t, v.Timeline(), 3)
}

func TestView_DecryptErrors(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 1)
	st := stateAt(t, chain, 1)
	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	hash := chain.Miniblocks[0].Header.EventHashes[0]
	assert.True(t, v.AnnotateDecryptError(hash, errors.New("missing session")))
	assert.False(t, v.AnnotateDecryptError([]byte{1, 2, 3}, errors.New("x")))
	assert.Equal(t, []protocol.Bytes{hash}, v.DecryptErrors())
}

func TestView_SyncReset(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 3)
	early := stateAt(t, chain, 1)
	late := stateAt(t, chain, 3)

	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, early)))

	// A reset starts from the snapshot in miniblock 3.
	reset := &protocol.StreamAndCookie{
		StreamID:       testSpace.Bytes(),
		Miniblocks:     []*protocol.Miniblock{chain.Miniblocks[2]},
		NextSyncCookie: late.Cookie(nil),
		SyncReset:      true,
	}
	require.NoError(t, v.ApplySync(reset))
	assert.Equal(t, int64(3), v.LastMiniblockNum())
	assert.Len(t, v.Members(), 4)
	assert.Len(t, v.Timeline(), 1)
	assert.Equal(t, late.Cookie(nil), v.Cookie())
}

func TestView_ReadHoldsSnapshot(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 1)
	st := stateAt(t, chain, 1)
	v := stream.NewView(testSpace)
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	var kind protocol.Kind
	v.Read(func(s *protocol.Snapshot) { kind = s.Kind() })
	assert.Equal(t, protocol.KindSpace, kind)
}

// tampered returns a copy of env whose hash no longer matches its event.
func tampered(env *protocol.Envelope) *protocol.Envelope {
	bad := *env
	bad.Hash = append(protocol.Bytes(nil), env.Hash...)
	bad.Hash[0] ^= 0xff
	return &bad
}

func TestView_BadEnvelopeDoesNotBlockUpdate(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 2)
	st := stateAt(t, chain, 1)
	next := stateAt(t, chain, 2)
	b := testutil.NewBuilder(t)

	v := stream.NewView(testSpace, stream.WithVerify(true))
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))

	stranger := testutil.Wallet(t, 50)
	forged := tampered(b.Event(stranger, testutil.Join(stranger.Address()), chain.Miniblocks[0].Hash).Envelope)
	good := chain.Miniblocks[1].Events[0]

	err := v.ApplySync(&protocol.StreamAndCookie{
		StreamID:       testSpace.Bytes(),
		Events:         []*protocol.Envelope{forged, good, nil},
		NextSyncCookie: next.Cookie(nil),
	})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeBadEventHash, protocol.CodeOf(err))
	assert.Contains(t, err.Error(), "empty envelope")

	assert.True(t, v.HasEvent(good.Hash))
	assert.False(t, v.HasEvent(forged.Hash))
	assert.False(t, v.IsMember(stranger.Address()))
	assert.Len(t, v.Timeline(), 4)
	assert.Equal(t, int64(4), v.NextEventNum())
	assert.Equal(t, next.Cookie(nil), v.Cookie())
}

func TestView_FailedResetKeepsState(t *testing.T) {
	chain := storetest.BuildSpaceChain(t, testSpace, 2)
	st := stateAt(t, chain, 1)
	late := stateAt(t, chain, 2)

	v := stream.NewView(testSpace, stream.WithVerify(true))
	require.NoError(t, v.InitializeFromResponse(response(chain, 1, st)))
	before, err := v.SnapshotHash()
	require.NoError(t, err)

	broken := *chain.Miniblocks[0]
	broken.Events = []*protocol.Envelope{tampered(chain.Miniblocks[0].Events[0])}
	err = v.ApplySync(&protocol.StreamAndCookie{
		StreamID:       testSpace.Bytes(),
		Miniblocks:     []*protocol.Miniblock{chain.Genesis, &broken},
		NextSyncCookie: late.Cookie(nil),
		SyncReset:      true,
	})
	require.Error(t, err)

	assert.True(t, v.Initialized())
	assert.Equal(t, int64(1), v.LastMiniblockNum())
	assert.Len(t, v.Timeline(), 3)
	assert.Len(t, v.Members(), 2)
	assert.Equal(t, st.Cookie(nil), v.Cookie())
	after, err := v.SnapshotHash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
