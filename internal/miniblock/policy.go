package miniblock

import "github.com/roach88/streamcore/internal/streamid"

// Snapshot cadences.
const (
	DefaultSnapshotInterval = 100
	InboxSnapshotInterval   = 10
)

// SnapshotPolicy decides which miniblocks embed a snapshot. Genesis always
// does; after it, every miniblock whose number is a multiple of the
// stream kind's interval.
type SnapshotPolicy struct {
	Default int64
	PerKind map[streamid.Prefix]int64
}

// DefaultSnapshotPolicy snapshots every 100 miniblocks, and user inboxes
// every 10.
func DefaultSnapshotPolicy() SnapshotPolicy {
	return SnapshotPolicy{
		Default: DefaultSnapshotInterval,
		PerKind: map[streamid.Prefix]int64{streamid.PrefixUserInbox: InboxSnapshotInterval},
	}
}

// Interval returns the cadence for id's kind.
func (p SnapshotPolicy) Interval(id streamid.ID) int64 {
	if n, ok := p.PerKind[id.Prefix()]; ok && n > 0 {
		return n
	}
	if p.Default > 0 {
		return p.Default
	}
	return DefaultSnapshotInterval
}

// IsSnapshot reports whether miniblock num of id embeds a snapshot.
func (p SnapshotPolicy) IsSnapshot(id streamid.ID, num int64) bool {
	return num%p.Interval(id) == 0
}
