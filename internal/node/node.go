package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/streamid"
)

// Graffiti is returned by Info.
const Graffiti = "streamcore node"

// Node serves streams from a miniblock store.
//
// Thread-safety: all methods are safe for concurrent use. Stream state and
// subscriptions are guarded by one mutex; fan-out happens under it so each
// subscriber sees events in append order.
type Node struct {
	store    miniblock.Store
	producer *miniblock.Producer
	wallet   *keys.Wallet
	ids      IDGenerator
	limits   protocol.MediaLimits
	verify   bool
	interval time.Duration
	buffer   int
	logger   *slog.Logger

	mu      sync.Mutex
	streams map[streamid.ID]*streamState
	syncs   map[string]*subscription
	closed  bool
}

// streamState is the node's in-memory view of one stream: the committed
// position, the minipool and a snapshot with the minipool folded in.
type streamState struct {
	committed *miniblock.State
	pending   *protocol.Snapshot
	minipool  []*protocol.ParsedEvent
	seen      map[string]struct{}
	media     *protocol.MediaInception
	subs      map[string]*subscription
}

// Option configures a Node.
type Option func(*Node)

// WithProducer sets the miniblock producer.
func WithProducer(p *miniblock.Producer) Option {
	return func(n *Node) { n.producer = p }
}

// WithIDGenerator sets the sync id source.
func WithIDGenerator(g IDGenerator) Option {
	return func(n *Node) { n.ids = g }
}

// WithMediaLimits sets media chunk bounds.
func WithMediaLimits(l protocol.MediaLimits) Option {
	return func(n *Node) { n.limits = l }
}

// WithVerify enables signature and hash checks on incoming envelopes.
func WithVerify(verify bool) Option {
	return func(n *Node) { n.verify = verify }
}

// WithMiniblockInterval makes Run seal miniblocks on a ticker. Zero
// disables the ticker.
func WithMiniblockInterval(d time.Duration) Option {
	return func(n *Node) { n.interval = d }
}

// WithSubscriptionBuffer sets how many responses a subscriber may fall
// behind before it is dropped.
func WithSubscriptionBuffer(size int) Option {
	return func(n *Node) { n.buffer = size }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// New creates a node over store, signing header events with wallet, and
// loads the state of every stream the store holds.
func New(ctx context.Context, store miniblock.Store, wallet *keys.Wallet, opts ...Option) (*Node, error) {
	n := &Node{
		store:    store,
		producer: miniblock.NewProducer(),
		wallet:   wallet,
		ids:      uuidSyncIDs{},
		limits:   protocol.DefaultMediaLimits(),
		verify:   true,
		buffer:   1024,
		logger:   slog.Default(),
		streams:  make(map[streamid.ID]*streamState),
		syncs:    make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(n)
	}

	ids, err := store.ListStreams(ctx)
	if err != nil {
		return nil, fmt.Errorf("load streams: %w", err)
	}
	for _, id := range ids {
		st, err := miniblock.LoadState(ctx, store, n.producer.Reducer(), id)
		if err != nil {
			return nil, fmt.Errorf("load stream %s: %w", id, err)
		}
		ss, err := newStreamState(st)
		if err != nil {
			return nil, err
		}
		n.streams[id] = ss
	}
	n.logger.Info("node loaded", "streams", len(ids), "address", protocol.Bytes(wallet.Address()).Hex())
	return n, nil
}

func newStreamState(st *miniblock.State) (*streamState, error) {
	pending, err := st.Snapshot.Clone()
	if err != nil {
		return nil, err
	}
	ss := &streamState{
		committed: st,
		pending:   pending,
		seen:      make(map[string]struct{}),
		subs:      make(map[string]*subscription),
	}
	if st.Snapshot.Media != nil {
		ss.media = st.Snapshot.Media.Inception
	}
	return ss, nil
}

// Address returns the node's address, carried in sync cookies.
func (n *Node) Address() protocol.Bytes { return n.wallet.Address() }

// Store returns the underlying miniblock store.
func (n *Node) Store() miniblock.Store { return n.store }

// Reducer returns the reducer used to validate and fold events.
func (n *Node) Reducer() *snapshot.Reducer { return n.producer.Reducer() }

// Run seals miniblocks for every stream with a non-empty minipool on each
// tick until ctx is done. Without an interval it only waits for ctx.
func (n *Node) Run(ctx context.Context) error {
	if n.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range n.pendingStreams() {
				if _, err := n.MakeMiniblock(ctx, id, false); err != nil {
					n.logger.Warn("make miniblock failed", "stream", id, "err", err)
				}
			}
		}
	}
}

func (n *Node) pendingStreams() []streamid.ID {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []streamid.ID
	for id, ss := range n.streams {
		if len(ss.minipool) > 0 {
			out = append(out, id)
		}
	}
	return out
}

// Close ends every subscription. The store is left open.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	for _, sub := range n.syncs {
		n.cancelLocked(sub, protocol.NewError(protocol.CodeUnavailable, "node closed"))
	}
	return nil
}

func (n *Node) stream(id streamid.ID) (*streamState, error) {
	if n.closed {
		return nil, protocol.NewError(protocol.CodeUnavailable, "node closed")
	}
	ss, ok := n.streams[id]
	if !ok {
		return nil, miniblock.StreamNotFoundError(id)
	}
	return ss, nil
}

func parseStreamID(b []byte) (streamid.ID, error) {
	id, err := streamid.FromBytes(b)
	if err != nil {
		return "", protocol.WrapError(protocol.CodeInvalidArgument, err, "stream id")
	}
	return id, nil
}
