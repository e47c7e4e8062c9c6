package snapshot

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/roach88/streamcore/internal/protocol"
)

// Effect is one pending snapshot mutation derived from an event. Effects
// own copies of what they need; none of them capture the snapshot.
type Effect interface {
	apply(s *protocol.Snapshot, miniblockNum, eventNum int64) error
}

// Apply executes eff against s. A nil effect is a no-op.
func Apply(s *protocol.Snapshot, eff Effect, miniblockNum, eventNum int64) error {
	if eff == nil {
		return nil
	}
	return eff.apply(s, miniblockNum, eventNum)
}

func wrongContent(want protocol.Kind, s *protocol.Snapshot) error {
	return fmt.Errorf("%w: want %s, snapshot is %s", ErrWrongContent, want, s.Kind())
}

// Space

type upsertChannel struct {
	update *protocol.SpaceChannelUpdate
}

func (e *upsertChannel) apply(s *protocol.Snapshot, _, eventNum int64) error {
	if s.Space == nil {
		return wrongContent(protocol.KindSpace, s)
	}
	u := e.update
	settings := u.Settings
	if settings == nil {
		existing, found := FindSorted(s.Space.Channels, u.ChannelID, channelKey)
		switch u.Op {
		case protocol.ChannelOpCreated:
			settings = &protocol.SpaceChannelSettings{Autojoin: isDefaultChannel(u.ChannelID)}
		case protocol.ChannelOpUpdated:
			if !found {
				return fmt.Errorf("%w: %x", ErrChannelNotFound, []byte(u.ChannelID))
			}
			settings = existing.Settings
		default:
			if found {
				settings = existing.Settings
			}
		}
	}
	if settings != nil {
		cp := *settings
		settings = &cp
	}
	s.Space.Channels = InsertSorted(s.Space.Channels, &protocol.SpaceChannelMetadata{
		ChannelID:         u.ChannelID.Clone(),
		Op:                u.Op,
		OriginEventHash:   u.OriginEventHash.Clone(),
		UpdatedAtEventNum: eventNum,
		Settings:          settings,
	}, channelKey)
	return nil
}

type updateChannelSettings struct {
	channelID     protocol.Bytes
	autojoin      *bool
	hideJoinLeave *bool
}

func (e *updateChannelSettings) apply(s *protocol.Snapshot, _, _ int64) error {
	if s.Space == nil {
		return wrongContent(protocol.KindSpace, s)
	}
	ch, ok := FindSorted(s.Space.Channels, e.channelID, channelKey)
	if !ok {
		return fmt.Errorf("%w: %x", ErrChannelNotFound, []byte(e.channelID))
	}
	if ch.Settings == nil {
		ch.Settings = &protocol.SpaceChannelSettings{}
	}
	if e.autojoin != nil {
		ch.Settings.Autojoin = *e.autojoin
	}
	if e.hideJoinLeave != nil {
		ch.Settings.HideUserJoinLeaveEvents = *e.hideJoinLeave
	}
	return nil
}

// Single wrapped slots

type wrappedSlot int

const (
	slotSpaceImage wrappedSlot = iota
	slotGDMProperties
	slotProfileImage
	slotBio
)

type setWrapped struct {
	slot  wrappedSlot
	value *protocol.WrappedEncryptedData
}

func (e *setWrapped) apply(s *protocol.Snapshot, _, eventNum int64) error {
	v := *e.value
	v.EventNum = eventNum
	switch e.slot {
	case slotSpaceImage:
		if s.Space == nil {
			return wrongContent(protocol.KindSpace, s)
		}
		s.Space.SpaceImage = &v
	case slotGDMProperties:
		if s.GDM == nil {
			return wrongContent(protocol.KindGDM, s)
		}
		s.GDM.ChannelProperties = &v
	case slotProfileImage:
		if s.UserMetadata == nil {
			return wrongContent(protocol.KindUserMetadata, s)
		}
		s.UserMetadata.ProfileImage = &v
	case slotBio:
		if s.UserMetadata == nil {
			return wrongContent(protocol.KindUserMetadata, s)
		}
		s.UserMetadata.Bio = &v
	}
	return nil
}

// User

type upsertUserMembership struct {
	membership *protocol.UserMembership
}

func (e *upsertUserMembership) apply(s *protocol.Snapshot, _, _ int64) error {
	if s.User == nil {
		return wrongContent(protocol.KindUser, s)
	}
	m := *e.membership
	s.User.Memberships = InsertSorted(s.User.Memberships, &m, membershipKey)
	return nil
}

type tipBucket int

const (
	tipsSent tipBucket = iota
	tipsReceived
	tipsMembers
)

type addTip struct {
	bucket   tipBucket
	currency string
	amount   uint64
}

func (e *addTip) apply(s *protocol.Snapshot, _, _ int64) error {
	var m *map[string]uint64
	switch e.bucket {
	case tipsSent, tipsReceived:
		if s.User == nil {
			return wrongContent(protocol.KindUser, s)
		}
		m = &s.User.TipsSent
		if e.bucket == tipsReceived {
			m = &s.User.TipsReceived
		}
	case tipsMembers:
		m = &s.Members.Tips
	}
	if *m == nil {
		*m = make(map[string]uint64)
	}
	(*m)[e.currency] += e.amount
	return nil
}

// User settings

type upsertFullyReadMarkers struct {
	markers *protocol.FullyReadMarkers
}

func (e *upsertFullyReadMarkers) apply(s *protocol.Snapshot, _, _ int64) error {
	if s.UserSettings == nil {
		return wrongContent(protocol.KindUserSettings, s)
	}
	m := *e.markers
	s.UserSettings.FullyReadMarkers = InsertSorted(s.UserSettings.FullyReadMarkers, &m, fullyReadKey)
	return nil
}

type appendUserBlock struct {
	block *protocol.UserBlock
}

func (e *appendUserBlock) apply(s *protocol.Snapshot, _, _ int64) error {
	if s.UserSettings == nil {
		return wrongContent(protocol.KindUserSettings, s)
	}
	entry := protocol.BlockEntry{IsBlocked: e.block.IsBlocked, EventNum: e.block.EventNum}
	if ub, ok := FindSorted(s.UserSettings.UserBlocks, e.block.UserID, userBlocksKey); ok {
		ub.Blocks = append(ub.Blocks, entry)
		return nil
	}
	s.UserSettings.UserBlocks = InsertSorted(s.UserSettings.UserBlocks, &protocol.UserBlocks{
		UserID: e.block.UserID.Clone(),
		Blocks: []protocol.BlockEntry{entry},
	}, userBlocksKey)
	return nil
}

// User metadata

type addEncryptionDevice struct {
	device *protocol.EncryptionDevice
}

func (e *addEncryptionDevice) apply(s *protocol.Snapshot, _, _ int64) error {
	if s.UserMetadata == nil {
		return wrongContent(protocol.KindUserMetadata, s)
	}
	devices := slices.DeleteFunc(s.UserMetadata.EncryptionDevices, func(d *protocol.EncryptionDevice) bool {
		return d.DeviceKey == e.device.DeviceKey
	})
	devices = keepLast(devices, MaxEncryptionDevices-1)
	d := *e.device
	s.UserMetadata.EncryptionDevices = append(devices, &d)
	return nil
}

// keepLast returns the last n elements of s in a fresh slice.
func keepLast[T any](s []T, n int) []T {
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return append(make([]T, 0, n+1), s...)
}

// User inbox

type inboxSessions struct {
	deviceKeys     []string
	maxGenerations int64
}

func (e *inboxSessions) apply(s *protocol.Snapshot, miniblockNum, _ int64) error {
	if s.UserInbox == nil {
		return wrongContent(protocol.KindUserInbox, s)
	}
	inbox := s.UserInbox
	if inbox.DeviceSummary == nil {
		inbox.DeviceSummary = make(map[string]*protocol.DeviceKeySummary)
	}
	for _, key := range e.deviceKeys {
		if summary, ok := inbox.DeviceSummary[key]; ok {
			summary.UpperBound = miniblockNum
		} else {
			inbox.DeviceSummary[key] = &protocol.DeviceKeySummary{LowerBound: miniblockNum, UpperBound: miniblockNum}
		}
	}
	cleanupInbox(inbox, miniblockNum, e.maxGenerations)
	return nil
}

type inboxAck struct {
	deviceKey      string
	miniblockNum   int64
	maxGenerations int64
}

func (e *inboxAck) apply(s *protocol.Snapshot, miniblockNum, _ int64) error {
	if s.UserInbox == nil {
		return wrongContent(protocol.KindUserInbox, s)
	}
	inbox := s.UserInbox
	if summary, ok := inbox.DeviceSummary[e.deviceKey]; ok {
		if summary.UpperBound <= e.miniblockNum {
			delete(inbox.DeviceSummary, e.deviceKey)
		} else {
			summary.LowerBound = e.miniblockNum + 1
		}
	}
	cleanupInbox(inbox, miniblockNum, e.maxGenerations)
	return nil
}

// cleanupInbox drops devices whose lower bound lags the current miniblock
// by more than maxGenerations.
func cleanupInbox(inbox *protocol.UserInboxSnapshot, current, maxGenerations int64) {
	for key, summary := range inbox.DeviceSummary {
		if current-summary.LowerBound > maxGenerations {
			delete(inbox.DeviceSummary, key)
		}
	}
}

// Members

type memberJoin struct {
	address protocol.Bytes
}

func (e *memberJoin) apply(s *protocol.Snapshot, miniblockNum, eventNum int64) error {
	s.Members.Joined = InsertSorted(s.Members.Joined, &protocol.Member{
		UserAddress:   e.address.Clone(),
		MiniblockNum:  miniblockNum,
		EventNum:      eventNum,
		Solicitations: []*protocol.KeySolicitation{},
	}, memberKey)
	return nil
}

type memberLeave struct {
	address protocol.Bytes
}

func (e *memberLeave) apply(s *protocol.Snapshot, _, _ int64) error {
	s.Members.Joined, _ = RemoveSorted(s.Members.Joined, e.address, memberKey)
	return nil
}

type memberSolicitation struct {
	creator      protocol.Bytes
	solicitation *protocol.KeySolicitation
}

func (e *memberSolicitation) apply(s *protocol.Snapshot, _, _ int64) error {
	member, ok := FindSorted(s.Members.Joined, e.creator, memberKey)
	if !ok {
		return nil
	}
	sols := slices.DeleteFunc(member.Solicitations, func(k *protocol.KeySolicitation) bool {
		return k.DeviceKey == e.solicitation.DeviceKey
	})
	sols = keepLast(sols, MaxSolicitations-1)
	sol := *e.solicitation
	sol.SessionIDs = slices.Sorted(slices.Values(e.solicitation.SessionIDs))
	member.Solicitations = append(sols, &sol)
	return nil
}

type memberFulfillment struct {
	fulfillment *protocol.KeyFulfillment
}

func (e *memberFulfillment) apply(s *protocol.Snapshot, _, _ int64) error {
	member, ok := FindSorted(s.Members.Joined, e.fulfillment.UserAddress, memberKey)
	if !ok {
		return nil
	}
	i := slices.IndexFunc(member.Solicitations, func(k *protocol.KeySolicitation) bool {
		return k.DeviceKey == e.fulfillment.DeviceKey
	})
	if i < 0 {
		return nil
	}
	sol := *member.Solicitations[i]
	sol.SessionIDs = removeCommon(sol.SessionIDs, e.fulfillment.SessionIDs)
	sol.IsNewDevice = false
	member.Solicitations[i] = &sol
	return nil
}

type memberFieldKind int

const (
	fieldDisplayName memberFieldKind = iota
	fieldUsername
	fieldEnsAddress
	fieldNft
)

type memberField struct {
	creator protocol.Bytes
	field   memberFieldKind
	wrapped *protocol.WrappedEncryptedData
	ens     protocol.Bytes
	nft     *protocol.Nft
}

// apply is a no-op when the creator has not joined: member events can
// arrive before the join under out-of-order delivery.
func (e *memberField) apply(s *protocol.Snapshot, _, eventNum int64) error {
	member, ok := FindSorted(s.Members.Joined, e.creator, memberKey)
	if !ok {
		return nil
	}
	switch e.field {
	case fieldDisplayName, fieldUsername:
		v := *e.wrapped
		v.EventNum = eventNum
		if e.field == fieldDisplayName {
			member.DisplayName = &v
		} else {
			member.Username = &v
		}
	case fieldEnsAddress:
		member.EnsAddress = e.ens.Clone()
	case fieldNft:
		nft := *e.nft
		member.Nft = &nft
	}
	return nil
}

type addPin struct {
	creator protocol.Bytes
	pin     *protocol.Pin
}

func (e *addPin) apply(s *protocol.Snapshot, _, _ int64) error {
	s.Members.Pins = append(s.Members.Pins, &protocol.SnapshotPin{CreatorAddress: e.creator.Clone(), Pin: e.pin})
	return nil
}

type removePin struct {
	eventID protocol.Bytes
}

func (e *removePin) apply(s *protocol.Snapshot, _, _ int64) error {
	s.Members.Pins = slices.DeleteFunc(s.Members.Pins, func(p *protocol.SnapshotPin) bool {
		return p.Pin != nil && bytes.Equal(p.Pin.EventID, e.eventID)
	})
	return nil
}

type setEncryptionAlgorithm struct {
	algorithm string
}

func (e *setEncryptionAlgorithm) apply(s *protocol.Snapshot, _, _ int64) error {
	s.Members.EncryptionAlgorithm = e.algorithm
	return nil
}
