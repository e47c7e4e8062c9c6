package miniblock

import (
	"fmt"
	"time"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/streamid"
)

// State is a stream's position after its last miniblock: the folded
// snapshot and the link the next miniblock must carry.
type State struct {
	ID           streamid.ID
	Snapshot     *protocol.Snapshot
	LastNum      int64
	LastHash     protocol.Bytes
	NextEventNum int64
}

// Cookie returns the sync cookie pointing just past the state.
func (s *State) Cookie(nodeAddress []byte) *protocol.SyncCookie {
	return &protocol.SyncCookie{
		StreamID:          s.ID.Bytes(),
		MinipoolGen:       s.LastNum + 1,
		PrevMiniblockHash: s.LastHash.Clone(),
		NodeAddress:       nodeAddress,
	}
}

// Producer seals pending events into miniblocks.
type Producer struct {
	reducer *snapshot.Reducer
	policy  SnapshotPolicy
	nowMs   func() int64
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithReducer sets the reducer used to fold events.
func WithReducer(r *snapshot.Reducer) ProducerOption {
	return func(p *Producer) { p.reducer = r }
}

// WithSnapshotPolicy sets the snapshot cadence.
func WithSnapshotPolicy(policy SnapshotPolicy) ProducerOption {
	return func(p *Producer) { p.policy = policy }
}

// WithClock sets the header timestamp source.
func WithClock(nowMs func() int64) ProducerOption {
	return func(p *Producer) { p.nowMs = nowMs }
}

// NewProducer creates a Producer with the default reducer and policy.
func NewProducer(opts ...ProducerOption) *Producer {
	p := &Producer{
		reducer: snapshot.New(),
		policy:  DefaultSnapshotPolicy(),
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reducer returns the producer's reducer.
func (p *Producer) Reducer() *snapshot.Reducer { return p.reducer }

// Policy returns the producer's snapshot policy.
func (p *Producer) Policy() SnapshotPolicy { return p.policy }

// Genesis builds miniblock 0 from the inception and any events created
// with it.
func (p *Producer) Genesis(id streamid.ID, events []*protocol.ParsedEvent) (*protocol.Miniblock, *State, error) {
	s, err := p.reducer.MakeGenesisSnapshot(events)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis %s: %w", id, err)
	}
	header := protocol.MiniblockHeader{
		MiniblockNum: 0,
		Timestamp:    p.nowMs(),
		EventHashes:  eventHashes(events),
	}
	mb, err := seal(header, s, events)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis %s: %w", id, err)
	}
	return mb, &State{ID: id, Snapshot: s, LastNum: 0, LastHash: mb.Hash, NextEventNum: int64(len(events))}, nil
}

// Next folds events into a copy of st and seals them as miniblock
// st.LastNum+1. st is not modified.
func (p *Producer) Next(st *State, events []*protocol.ParsedEvent) (*protocol.Miniblock, *State, error) {
	num := st.LastNum + 1
	s, err := st.Snapshot.Clone()
	if err != nil {
		return nil, nil, err
	}
	for i, ev := range events {
		if err := p.reducer.Fold(s, ev, num, st.NextEventNum+int64(i)); err != nil {
			return nil, nil, fmt.Errorf("miniblock %d of %s: %w", num, st.ID, err)
		}
	}
	header := protocol.MiniblockHeader{
		MiniblockNum:      num,
		PrevMiniblockHash: st.LastHash.Clone(),
		Timestamp:         p.nowMs(),
		EventHashes:       eventHashes(events),
		EventNumOffset:    st.NextEventNum,
	}
	var embed *protocol.Snapshot
	if p.policy.IsSnapshot(st.ID, num) {
		embed = s
	}
	mb, err := seal(header, embed, events)
	if err != nil {
		return nil, nil, fmt.Errorf("miniblock %d of %s: %w", num, st.ID, err)
	}
	next := &State{
		ID:           st.ID,
		Snapshot:     s,
		LastNum:      num,
		LastHash:     mb.Hash,
		NextEventNum: st.NextEventNum + int64(len(events)),
	}
	return mb, next, nil
}

// seal embeds a copy of s (if any), hashes the header and attaches the
// envelopes.
func seal(header protocol.MiniblockHeader, s *protocol.Snapshot, events []*protocol.ParsedEvent) (*protocol.Miniblock, error) {
	if s != nil {
		embedded, err := s.Clone()
		if err != nil {
			return nil, err
		}
		sum, err := embedded.Hash()
		if err != nil {
			return nil, err
		}
		header.Snapshot = embedded
		header.SnapshotHash = sum
	}
	hash, err := header.Hash()
	if err != nil {
		return nil, err
	}
	envs := make([]*protocol.Envelope, len(events))
	for i, ev := range events {
		envs[i] = ev.Envelope
	}
	return &protocol.Miniblock{Header: header, Hash: hash, Events: envs}, nil
}

func eventHashes(events []*protocol.ParsedEvent) []protocol.Bytes {
	out := make([]protocol.Bytes, len(events))
	for i, ev := range events {
		out[i] = ev.Hash.Clone()
	}
	return out
}
