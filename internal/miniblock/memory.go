package miniblock

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// MemoryStore keeps miniblocks in process. It is the store used by tests
// and by nodes started without a database path.
type MemoryStore struct {
	mu      sync.RWMutex
	streams map[streamid.ID]*memStream
}

type memStream struct {
	first int64
	mbs   []*protocol.Miniblock // mbs[i].Num() == first+i
}

func (s *memStream) last() *protocol.Miniblock { return s.mbs[len(s.mbs)-1] }

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{streams: make(map[streamid.ID]*memStream)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateStream(_ context.Context, id streamid.ID, genesis *protocol.Miniblock) error {
	if err := CheckGenesis(id, genesis); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.streams[id]; ok {
		return protocol.NewError(protocol.CodeAlreadyExists, "stream exists").WithStream(id.String())
	}
	m.streams[id] = &memStream{mbs: []*protocol.Miniblock{genesis}}
	return nil
}

func (m *MemoryStore) WriteMiniblocks(_ context.Context, id streamid.ID, mbs []*protocol.Miniblock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streams[id]
	if !ok {
		return StreamNotFoundError(id)
	}
	last := st.last()
	lastNum, lastHash := last.Num(), last.Hash
	var added []*protocol.Miniblock
	for _, mb := range mbs {
		skip, err := CheckAppend(id, lastNum, lastHash, mb)
		if err != nil {
			return err
		}
		if !skip {
			added = append(added, mb)
			lastNum, lastHash = mb.Num(), mb.Hash
		}
	}
	st.mbs = append(st.mbs, added...)
	return nil
}

func (m *MemoryStore) GetMiniblocks(_ context.Context, id streamid.ID, from, to int64) (*Range, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[id]
	if !ok {
		return nil, StreamNotFoundError(id)
	}
	lo, hi, terminus, err := Bounds(st.first, st.last().Num(), from, to)
	if err != nil {
		return nil, err
	}
	out := &Range{Miniblocks: []*protocol.Miniblock{}, FromInclusive: lo, Terminus: terminus}
	if lo < hi {
		out.Miniblocks = slices.Clone(st.mbs[lo-st.first : hi-st.first])
	}
	return out, nil
}

func (m *MemoryStore) LatestSnapshot(_ context.Context, id streamid.ID) (*protocol.Miniblock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[id]
	if !ok {
		return nil, StreamNotFoundError(id)
	}
	for i := len(st.mbs) - 1; i >= 0; i-- {
		if st.mbs[i].IsSnapshot() {
			return st.mbs[i], nil
		}
	}
	return nil, protocol.NewError(protocol.CodeInternal, "no snapshot miniblock retained").WithStream(id.String())
}

func (m *MemoryStore) LastMiniblockNum(_ context.Context, id streamid.ID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.streams[id]
	if !ok {
		return 0, StreamNotFoundError(id)
	}
	return st.last().Num(), nil
}

func (m *MemoryStore) Trim(_ context.Context, id streamid.ID, trimTo int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.streams[id]
	if !ok {
		return 0, StreamNotFoundError(id)
	}
	if !Trimmable(id) {
		return 0, NotTrimmableError(id)
	}
	if trimTo <= st.first {
		return st.first, nil
	}
	var snapshots []int64
	for _, mb := range st.mbs {
		if mb.IsSnapshot() {
			snapshots = append(snapshots, mb.Num())
		}
	}
	point := EffectiveTrim(snapshots, st.first, trimTo)
	st.mbs = slices.Clone(st.mbs[point-st.first:])
	st.first = point
	return point, nil
}

func (m *MemoryStore) StreamExists(_ context.Context, id streamid.ID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.streams[id]
	return ok, nil
}

func (m *MemoryStore) ListStreams(context.Context) ([]streamid.ID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]streamid.ID, 0, len(m.streams))
	for id := range m.streams {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *MemoryStore) Close() error { return nil }
