package snapshot

import (
	"fmt"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// MakeGenesisSnapshot builds the genesis snapshot using default limits.
func MakeGenesisSnapshot(events []*protocol.ParsedEvent) (*protocol.Snapshot, error) {
	return defaultReducer.MakeGenesisSnapshot(events)
}

// MakeGenesisSnapshot builds the snapshot of miniblock 0 from the genesis
// events. events[0] must be an inception; the rest are folded in order with
// event numbers 1..n-1.
func (r *Reducer) MakeGenesisSnapshot(events []*protocol.ParsedEvent) (*protocol.Snapshot, error) {
	if len(events) == 0 {
		return nil, ErrNoEvents
	}
	inception, ok := events[0].Event.Payload.Inception()
	if !ok {
		return nil, fmt.Errorf("%w: got %s.%s", ErrNotInception,
			events[0].Content().Kind(), events[0].Content().Case())
	}

	s, err := newSnapshotContent(inception)
	if err != nil {
		return nil, err
	}
	if err := seedMembers(s, inception, events[0].Creator()); err != nil {
		return nil, err
	}

	for i, ev := range events[1:] {
		if err := r.Fold(s, ev, 0, int64(i+1)); err != nil {
			return nil, fmt.Errorf("genesis event %d: %w", i+1, err)
		}
	}
	return s, nil
}

func emptyMembers() protocol.Members {
	return protocol.Members{
		Joined: []*protocol.Member{},
		Pins:   []*protocol.SnapshotPin{},
	}
}

// newSnapshotContent creates the content union matching the inception.
func newSnapshotContent(inception protocol.Inception) (*protocol.Snapshot, error) {
	s := &protocol.Snapshot{Members: emptyMembers()}
	switch inc := inception.(type) {
	case *protocol.SpaceInception:
		s.Space = &protocol.SpaceSnapshot{Inception: inc, Channels: []*protocol.SpaceChannelMetadata{}}
	case *protocol.ChannelInception:
		s.Channel = &protocol.ChannelSnapshot{Inception: inc}
	case *protocol.DMInception:
		s.DM = &protocol.DMSnapshot{Inception: inc}
	case *protocol.GDMInception:
		s.GDM = &protocol.GDMSnapshot{Inception: inc}
	case *protocol.UserInception:
		s.User = &protocol.UserSnapshot{Inception: inc, Memberships: []*protocol.UserMembership{}}
	case *protocol.UserSettingsInception:
		s.UserSettings = &protocol.UserSettingsSnapshot{
			Inception:        inc,
			FullyReadMarkers: []*protocol.FullyReadMarkers{},
			UserBlocks:       []*protocol.UserBlocks{},
		}
	case *protocol.UserMetadataInception:
		s.UserMetadata = &protocol.UserMetadataSnapshot{Inception: inc, EncryptionDevices: []*protocol.EncryptionDevice{}}
	case *protocol.UserInboxInception:
		s.UserInbox = &protocol.UserInboxSnapshot{Inception: inc}
	case *protocol.MediaInception:
		s.Media = &protocol.MediaSnapshot{Inception: inc}
	default:
		return nil, fmt.Errorf("genesis for %s: %w", inception.Kind(), ErrUnknownPayloadVariant)
	}
	return s, nil
}

// seedMembers joins the members a stream starts with. User streams join
// their owner, DMs both parties, media the creator. Multi-party streams
// start empty and fill through membership events.
func seedMembers(s *protocol.Snapshot, inception protocol.Inception, creator protocol.Bytes) error {
	join := func(addr []byte) {
		s.Members.Joined = InsertSorted(s.Members.Joined, &protocol.Member{
			UserAddress:   protocol.Bytes(addr).Clone(),
			Solicitations: []*protocol.KeySolicitation{},
		}, memberKey)
	}

	switch inc := inception.(type) {
	case *protocol.UserInception, *protocol.UserSettingsInception,
		*protocol.UserMetadataInception, *protocol.UserInboxInception:
		id, err := streamid.FromBytes(inc.InceptionStreamID())
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		addr, err := streamid.AddressFromUserStream(id)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		join(addr)
	case *protocol.DMInception:
		join(inc.FirstPartyAddress)
		join(inc.SecondPartyAddress)
	case *protocol.MediaInception:
		join(creator)
	}
	return nil
}
