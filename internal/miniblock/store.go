package miniblock

import (
	"context"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Range is the result of GetMiniblocks. Terminus is true when nothing older
// than FromInclusive exists, either because the range starts at genesis or
// because the older miniblocks were trimmed.
type Range struct {
	Miniblocks    []*protocol.Miniblock
	FromInclusive int64
	Terminus      bool
}

// Store persists miniblocks per stream. Implementations are safe for
// concurrent use.
type Store interface {
	// CreateStream stores the genesis miniblock of a new stream.
	CreateStream(ctx context.Context, id streamid.ID, genesis *protocol.Miniblock) error

	// WriteMiniblocks appends miniblocks. Each must follow the stream's
	// last miniblock by number and previous hash. Miniblocks already
	// stored are skipped.
	WriteMiniblocks(ctx context.Context, id streamid.ID, mbs []*protocol.Miniblock) error

	// GetMiniblocks returns the retained miniblocks in [from, to).
	GetMiniblocks(ctx context.Context, id streamid.ID, from, to int64) (*Range, error)

	// LatestSnapshot returns the newest miniblock that embeds a snapshot.
	LatestSnapshot(ctx context.Context, id streamid.ID) (*protocol.Miniblock, error)

	// LastMiniblockNum returns the number of the newest miniblock.
	LastMiniblockNum(ctx context.Context, id streamid.ID) (int64, error)

	// Trim deletes miniblocks below trimTo, lowered to the nearest snapshot
	// miniblock at or below it. It returns the first retained number.
	Trim(ctx context.Context, id streamid.ID, trimTo int64) (int64, error)

	StreamExists(ctx context.Context, id streamid.ID) (bool, error)
	ListStreams(ctx context.Context) ([]streamid.ID, error)
	Close() error
}

// NotTrimmableError reports a trim of a stream kind that keeps full history.
func NotTrimmableError(id streamid.ID) error {
	return protocol.NewError(protocol.CodeNotTrimmable, "%s streams are not trimmable", id.Kind()).WithStream(id.String())
}

// StreamNotFoundError reports a stream the store does not have.
func StreamNotFoundError(id streamid.ID) error {
	return protocol.NewError(protocol.CodeNotFound, "stream not found").WithStream(id.String())
}

// Trimmable reports whether id's kind may lose old miniblocks.
func Trimmable(id streamid.ID) bool { return !streamid.IsMedia(id) }

// CheckGenesis validates a genesis miniblock before it is stored.
func CheckGenesis(id streamid.ID, genesis *protocol.Miniblock) error {
	switch {
	case genesis == nil:
		return protocol.NewError(protocol.CodeInvalidArgument, "nil genesis").WithStream(id.String())
	case genesis.Num() != 0:
		return protocol.NewError(protocol.CodeInvalidArgument, "genesis is miniblock %d", genesis.Num()).WithStream(id.String())
	case !genesis.IsSnapshot():
		return protocol.NewError(protocol.CodeInvalidArgument, "genesis without snapshot").WithStream(id.String())
	}
	return nil
}

// CheckAppend decides how mb relates to a stream ending at lastNum with
// hash lastHash. It returns skip for miniblocks already stored.
func CheckAppend(id streamid.ID, lastNum int64, lastHash []byte, mb *protocol.Miniblock) (skip bool, err error) {
	switch n := mb.Num(); {
	case n <= lastNum:
		return true, nil
	case n > lastNum+1:
		return false, protocol.NewError(protocol.CodeMiniblockTooNew,
			"miniblock %d does not follow %d", n, lastNum).WithStream(id.String())
	}
	if !mb.Header.PrevMiniblockHash.Equal(lastHash) {
		return false, protocol.NewError(protocol.CodeBadPrevMiniblockHash,
			"miniblock %d does not link to %x", mb.Num(), lastHash).WithStream(id.String())
	}
	return false, nil
}

// Bounds clamps a [from, to) request to the retained range [first, last]
// and computes Terminus. An empty result has lo >= hi.
func Bounds(first, last, from, to int64) (lo, hi int64, terminus bool, err error) {
	if from < 0 || to < from {
		return 0, 0, false, protocol.NewError(protocol.CodeInvalidArgument, "bad range [%d, %d)", from, to)
	}
	lo = max(from, first)
	hi = min(to, last+1)
	terminus = from == 0 || from <= first
	return lo, hi, terminus, nil
}

// EffectiveTrim returns the trim point for trimTo given the snapshot
// miniblock numbers of a stream in ascending order.
func EffectiveTrim(snapshots []int64, first, trimTo int64) int64 {
	point := first
	for _, n := range snapshots {
		if n > trimTo {
			break
		}
		point = max(point, n)
	}
	return point
}
