package miniblock

import (
	"context"
	"fmt"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/snapshot"
	"github.com/roach88/streamcore/internal/streamid"
)

// AuditReport summarizes a re-fold of a stream's retained history.
type AuditReport struct {
	StreamID    streamid.ID
	FirstNum    int64
	LastNum     int64
	Events      int
	Snapshots   int
	Mismatches  []int64 // snapshot miniblocks whose embedded snapshot differs from the fold
	BrokenLinks []int64 // miniblocks whose previous hash is not their predecessor's hash
}

// OK reports whether the audit found nothing wrong.
func (r *AuditReport) OK() bool { return len(r.Mismatches) == 0 && len(r.BrokenLinks) == 0 }

// Audit re-folds every retained miniblock of id starting from the first
// retained snapshot, checking hash links and embedded snapshots. With
// verify set, event hashes and signatures are checked too.
func Audit(ctx context.Context, store Store, r *snapshot.Reducer, id streamid.ID, verify bool) (*AuditReport, error) {
	last, err := store.LastMiniblockNum(ctx, id)
	if err != nil {
		return nil, err
	}
	rng, err := store.GetMiniblocks(ctx, id, 0, last+1)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{StreamID: id, FirstNum: rng.FromInclusive, LastNum: last}
	if len(rng.Miniblocks) == 0 {
		return report, nil
	}

	first := rng.Miniblocks[0]
	if !first.IsSnapshot() {
		return nil, fmt.Errorf("audit %s: first retained miniblock %d has no snapshot", id, first.Num())
	}
	state, err := first.Header.Snapshot.Clone()
	if err != nil {
		return nil, err
	}
	report.Snapshots++
	report.Events += len(first.Events)
	if _, err := protocol.ParseMiniblock(first, verify); err != nil {
		return nil, fmt.Errorf("audit %s: %w", id, err)
	}

	prevHash := first.Hash
	for _, mb := range rng.Miniblocks[1:] {
		if !mb.Header.PrevMiniblockHash.Equal(prevHash) {
			report.BrokenLinks = append(report.BrokenLinks, mb.Num())
		}
		prevHash = mb.Hash

		pmb, err := protocol.ParseMiniblock(mb, verify)
		if err != nil {
			return nil, fmt.Errorf("audit %s: %w", id, err)
		}
		for i, ev := range pmb.Parsed {
			if err := r.Fold(state, ev, mb.Num(), mb.Header.EventNumOffset+int64(i)); err != nil {
				return nil, fmt.Errorf("audit %s: %w", id, err)
			}
		}
		report.Events += len(mb.Events)

		if mb.IsSnapshot() {
			report.Snapshots++
			sum, err := state.Hash()
			if err != nil {
				return nil, err
			}
			if !sum.Equal(mb.Header.SnapshotHash) {
				report.Mismatches = append(report.Mismatches, mb.Num())
			}
		}
	}
	return report, nil
}
