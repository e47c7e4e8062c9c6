package miniblock

import (
	"context"
	"fmt"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/streamid"
)

// LoadState rebuilds a stream's State from storage: the latest snapshot
// miniblock, with every later miniblock folded on top.
func LoadState(ctx context.Context, store Store, r *snapshot.Reducer, id streamid.ID) (*State, error) {
	base, err := store.LatestSnapshot(ctx, id)
	if err != nil {
		return nil, err
	}
	s, err := base.Header.Snapshot.Clone()
	if err != nil {
		return nil, err
	}
	st := &State{
		ID:           id,
		Snapshot:     s,
		LastNum:      base.Num(),
		LastHash:     base.Hash,
		NextEventNum: base.Header.EventNumOffset + int64(len(base.Header.EventHashes)),
	}

	last, err := store.LastMiniblockNum(ctx, id)
	if err != nil {
		return nil, err
	}
	if last == st.LastNum {
		return st, nil
	}
	rng, err := store.GetMiniblocks(ctx, id, st.LastNum+1, last+1)
	if err != nil {
		return nil, err
	}
	for _, mb := range rng.Miniblocks {
		pmb, err := protocol.ParseMiniblock(mb, false)
		if err != nil {
			return nil, fmt.Errorf("load state %s: %w", id, err)
		}
		for i, ev := range pmb.Parsed {
			if err := r.Fold(st.Snapshot, ev, mb.Num(), mb.Header.EventNumOffset+int64(i)); err != nil {
				return nil, fmt.Errorf("load state %s: %w", id, err)
			}
		}
		st.LastNum = mb.Num()
		st.LastHash = mb.Hash
		st.NextEventNum = mb.Header.EventNumOffset + int64(len(mb.Events))
	}
	return st, nil
}
