package scrub_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/entitlement"
	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/node"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/scrub"
	"github.com/roach88/streamcore/internal/stream"
	"github.com/roach88/streamcore/internal/streamid"
	"github.com/roach88/streamcore/internal/syncer"
	"github.com/roach88/streamcore/internal/testutil"
)

var space = streamid.MustMake(streamid.PrefixSpace, strings.Repeat("3c", 20))

type fixture struct {
	t       *testing.T
	node    *node.Node
	b       *testutil.Builder
	owner   *keys.Wallet
	genesis protocol.Bytes
	ss      *syncer.SyncedStreams
	view    *stream.View
	oracle  *entitlement.Static
	reports chan scrub.Report
}

// newFixture creates space with the owner and wallets 1..members joined,
// synced into a view.
func newFixture(t *testing.T, members int) *fixture {
	t.Helper()
	ctx := t.Context()
	n, err := node.New(ctx, miniblock.NewMemoryStore(), testutil.Wallet(t, 1000),
		node.WithIDGenerator(testutil.NewSequentialIDs("")),
		node.WithProducer(miniblock.NewProducer(miniblock.WithClock(testutil.NewClock().NowMs))),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	f := &fixture{t: t, node: n, b: testutil.NewBuilder(t), owner: testutil.Wallet(t, 0), reports: make(chan scrub.Report, 8)}
	resp, err := n.CreateStream(ctx, space.Bytes(), []*protocol.Envelope{
		f.b.Event(f.owner, &protocol.SpaceInception{StreamID: space.Bytes()}, nil).Envelope,
		f.b.Event(f.owner, testutil.Join(f.owner.Address()), nil).Envelope,
	})
	require.NoError(t, err)
	f.genesis = resp.Miniblocks[0].Hash
	for i := 1; i <= members; i++ {
		f.join(i)
	}

	f.ss = syncer.New(n, syncer.WithRetryUnit(time.Millisecond), syncer.WithPingInterval(0))
	t.Cleanup(func() { _ = f.ss.Close(context.Background()) })
	f.view = stream.NewView(space)
	require.NoError(t, f.ss.AddStream(ctx, f.view))
	require.NoError(t, f.ss.Start(ctx))

	f.oracle = entitlement.NewStatic()
	f.oracle.Open = true
	return f
}

func (f *fixture) join(n int) {
	f.t.Helper()
	w := testutil.Wallet(f.t, n)
	ev := f.b.Event(w, testutil.Join(w.Address()), f.genesis)
	require.NoError(f.t, f.node.AddEvent(f.t.Context(), space.Bytes(), ev.Envelope))
}

func (f *fixture) scrubber(opts ...scrub.Option) *scrub.Scrubber {
	opts = append([]scrub.Option{
		scrub.WithSelf(f.owner.Address()),
		scrub.WithReports(func(r scrub.Report) { f.reports <- r }),
	}, opts...)
	s := scrub.New(f.oracle, scrub.PosterEvictor{Poster: stream.NewPoster(f.node, f.owner)}, f.ss, opts...)
	s.Start(f.t.Context())
	f.t.Cleanup(s.Close)
	return s
}

func (f *fixture) report() scrub.Report {
	f.t.Helper()
	select {
	case r := <-f.reports:
		return r
	case <-time.After(testutil.WaitTimeout):
		f.t.Fatal("no scrub report")
		return scrub.Report{}
	}
}

func addr(t *testing.T, n int) protocol.Bytes {
	return testutil.Wallet(t, n).Address()
}

func TestScrubber_EvictsWithReasons(t *testing.T) {
	f := newFixture(t, 3)
	f.oracle.Revoke(space, addr(t, 1), entitlement.PermissionRead)
	f.oracle.SetStatus(space, addr(t, 2), entitlement.MembershipStatus{IsMember: true, IsExpired: true})
	s := f.scrubber()

	require.True(t, s.Scrub(space))
	r := f.report()
	assert.Equal(t, space, r.Stream)
	assert.Equal(t, 3, r.Checked)
	assert.ElementsMatch(t, []scrub.Eviction{
		{User: addr(t, 1), Reason: protocol.ReasonNotEntitled},
		{User: addr(t, 2), Reason: protocol.ReasonExpired},
	}, r.Evicted)

	require.Eventually(t, func() bool {
		return !f.view.IsMember(addr(t, 1)) && !f.view.IsMember(addr(t, 2))
	}, testutil.WaitTimeout, testutil.WaitTick, "evictions never synced")
	assert.True(t, f.view.IsMember(addr(t, 3)))
	assert.True(t, f.view.IsMember(f.owner.Address()))
}

func TestScrubber_Eligibility(t *testing.T) {
	f := newFixture(t, 1)
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := f.scrubber(scrub.WithClock(clock))

	require.True(t, s.Scrub(space))
	f.report()
	assert.False(t, s.Scrub(space), "scrubbed too recently")

	mu.Lock()
	now = now.Add(scrub.DefaultEligibleDuration)
	mu.Unlock()
	assert.True(t, s.Scrub(space))
	f.report()
}

func TestScrubber_OnlyMultiPartyStreams(t *testing.T) {
	f := newFixture(t, 0)
	s := f.scrubber()

	user := streamid.MustMake(streamid.PrefixUser, strings.Repeat("3c", 20))
	assert.False(t, s.Scrub(user))
}

func TestScrubber_TriggeredByJoin(t *testing.T) {
	f := newFixture(t, 1)
	s := f.scrubber()
	f.view.SetListeners(s.Listeners())
	f.oracle.Revoke(space, addr(t, 4), entitlement.PermissionRead)

	f.join(4)
	r := f.report()
	assert.Equal(t, []scrub.Eviction{{User: addr(t, 4), Reason: protocol.ReasonNotEntitled}}, r.Evicted)
	require.Eventually(t, func() bool { return !f.view.IsMember(addr(t, 4)) },
		testutil.WaitTimeout, testutil.WaitTick)
}

// flakyOracle fails every entitlement check.
type flakyOracle struct {
	*entitlement.Static
}

func (flakyOracle) IsEntitled(context.Context, streamid.ID, protocol.Bytes, entitlement.Permission) (bool, error) {
	return false, errors.New("chain unavailable")
}

func TestScrubber_OracleErrorsKeepMembers(t *testing.T) {
	f := newFixture(t, 2)
	s := scrub.New(flakyOracle{entitlement.NewStatic()}, scrub.PosterEvictor{Poster: stream.NewPoster(f.node, f.owner)}, f.ss,
		scrub.WithReports(func(r scrub.Report) { f.reports <- r }))
	s.Start(t.Context())
	t.Cleanup(s.Close)

	require.True(t, s.Scrub(space))
	r := f.report()
	assert.Equal(t, 3, r.Checked)
	assert.Empty(t, r.Evicted)
}

func TestScrubber_Close(t *testing.T) {
	f := newFixture(t, 0)
	s := f.scrubber()
	s.Close()
	s.Close()
	assert.False(t, s.Scrub(space))
}
