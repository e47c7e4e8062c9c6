package protocol

import (
	"fmt"

	"github.com/roach88/streamcore/internal/canon"
)

// MiniblockHeader describes one sealed miniblock. Snapshot is set on the
// genesis miniblock and on every snapshot-cadence miniblock after it.
//
// Header events do not consume event numbers: the i-th event of the
// miniblock has event number EventNumOffset+i.
type MiniblockHeader struct {
	MiniblockNum      int64     `json:"miniblockNum"`
	PrevMiniblockHash Bytes     `json:"prevMiniblockHash,omitempty"`
	Timestamp         int64     `json:"timestamp"`
	EventHashes       []Bytes   `json:"eventHashes"`
	EventNumOffset    int64     `json:"eventNumOffset"`
	Snapshot          *Snapshot `json:"snapshot,omitempty"`
	SnapshotHash      Bytes     `json:"snapshotHash,omitempty"`
}

// Hash returns the miniblock hash: the domain hash of the canonical header.
func (h *MiniblockHeader) Hash() (Bytes, error) {
	sum, err := canon.HashValue(canon.DomainMiniblock, h)
	if err != nil {
		return nil, fmt.Errorf("miniblock %d hash: %w", h.MiniblockNum, err)
	}
	return sum, nil
}

// MiniblockHeaderContent is the payload that closes a miniblock in a sync
// stream. It carries the sealed header.
type MiniblockHeaderContent struct {
	Header MiniblockHeader `json:"header"`
}

func (*MiniblockHeaderContent) Kind() Kind               { return KindMiniblockHeader }
func (*MiniblockHeaderContent) Case() string             { return "header" }
func (c *MiniblockHeaderContent) Accept(v Visitor) error { return v.VisitMiniblockHeader(c) }
func (*MiniblockHeaderContent) content()                 {}

// Miniblock is a numbered, immutable batch of events.
type Miniblock struct {
	Header MiniblockHeader `json:"header"`
	Hash   Bytes           `json:"hash"`
	Events []*Envelope     `json:"events"`
}

// Num returns the miniblock number.
func (mb *Miniblock) Num() int64 { return mb.Header.MiniblockNum }

// IsSnapshot reports whether the header embeds a snapshot.
func (mb *Miniblock) IsSnapshot() bool { return mb.Header.Snapshot != nil }

// ParsedMiniblock is a Miniblock whose events have been parsed.
type ParsedMiniblock struct {
	*Miniblock
	Parsed []*ParsedEvent
}

// ParseMiniblock parses and optionally verifies every event and checks the
// header's event hash list.
func ParseMiniblock(mb *Miniblock, verify bool) (*ParsedMiniblock, error) {
	if len(mb.Events) != len(mb.Header.EventHashes) {
		return nil, NewError(CodeBadEvent, "miniblock %d: %d events, %d hashes",
			mb.Num(), len(mb.Events), len(mb.Header.EventHashes))
	}
	parsed := make([]*ParsedEvent, len(mb.Events))
	for i, env := range mb.Events {
		pe, err := ParseEnvelope(env, verify)
		if err != nil {
			return nil, fmt.Errorf("miniblock %d event %d: %w", mb.Num(), i, err)
		}
		if !pe.Hash.Equal(mb.Header.EventHashes[i]) {
			return nil, NewError(CodeBadEventHash, "miniblock %d event %d: hash not in header", mb.Num(), i)
		}
		parsed[i] = pe
	}
	if verify {
		want, err := mb.Header.Hash()
		if err != nil {
			return nil, err
		}
		if !want.Equal(mb.Hash) {
			return nil, NewError(CodeBadEventHash, "miniblock %d: header hash mismatch", mb.Num())
		}
	}
	return &ParsedMiniblock{Miniblock: mb, Parsed: parsed}, nil
}

// SyncCookie names a stream and the position a subscriber has reached.
// Callers treat it as opaque and pass it back unchanged.
type SyncCookie struct {
	StreamID          Bytes `json:"streamId"`
	MinipoolGen       int64 `json:"minipoolGen"`
	PrevMiniblockHash Bytes `json:"prevMiniblockHash,omitempty"`
	NodeAddress       Bytes `json:"nodeAddress,omitempty"`
}

// Clone copies c.
func (c *SyncCookie) Clone() *SyncCookie {
	if c == nil {
		return nil
	}
	return &SyncCookie{
		StreamID:          c.StreamID.Clone(),
		MinipoolGen:       c.MinipoolGen,
		PrevMiniblockHash: c.PrevMiniblockHash.Clone(),
		NodeAddress:       c.NodeAddress.Clone(),
	}
}
