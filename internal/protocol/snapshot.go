package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/streamcore/internal/canon"
)

// Snapshot is the canonical folded state of a stream. Exactly one content
// field is set, matching the stream kind. Members is shared by all kinds.
type Snapshot struct {
	Space        *SpaceSnapshot        `json:"space,omitempty"`
	Channel      *ChannelSnapshot      `json:"channel,omitempty"`
	DM           *DMSnapshot           `json:"dm,omitempty"`
	GDM          *GDMSnapshot          `json:"gdm,omitempty"`
	User         *UserSnapshot         `json:"user,omitempty"`
	UserSettings *UserSettingsSnapshot `json:"userSettings,omitempty"`
	UserMetadata *UserMetadataSnapshot `json:"userMetadata,omitempty"`
	UserInbox    *UserInboxSnapshot    `json:"userInbox,omitempty"`
	Media        *MediaSnapshot        `json:"media,omitempty"`
	Members      Members               `json:"members"`
}

// Kind returns the payload kind of the content that is set.
func (s *Snapshot) Kind() Kind {
	switch {
	case s.Space != nil:
		return KindSpace
	case s.Channel != nil:
		return KindChannel
	case s.DM != nil:
		return KindDM
	case s.GDM != nil:
		return KindGDM
	case s.User != nil:
		return KindUser
	case s.UserSettings != nil:
		return KindUserSettings
	case s.UserMetadata != nil:
		return KindUserMetadata
	case s.UserInbox != nil:
		return KindUserInbox
	case s.Media != nil:
		return KindMedia
	}
	return ""
}

// Canonical returns the canonical bytes of the snapshot.
func (s *Snapshot) Canonical() ([]byte, error) {
	return canon.Marshal(s)
}

// Hash returns the snapshot hash.
func (s *Snapshot) Hash() (Bytes, error) {
	return canon.HashValue(canon.DomainSnapshot, s)
}

// Clone returns a deep copy.
func (s *Snapshot) Clone() (*Snapshot, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone snapshot: %w", err)
	}
	var out Snapshot
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("clone snapshot: %w", err)
	}
	return &out, nil
}

// SpaceSnapshot is the content of a space stream.
type SpaceSnapshot struct {
	Inception  *SpaceInception         `json:"inception"`
	Channels   []*SpaceChannelMetadata `json:"channels"`
	SpaceImage *WrappedEncryptedData   `json:"spaceImage,omitempty"`
}

// SpaceChannelMetadata is one channel of a space, sorted by ChannelID.
type SpaceChannelMetadata struct {
	ChannelID         Bytes                 `json:"channelId"`
	Op                ChannelOp             `json:"op"`
	OriginEventHash   Bytes                 `json:"originEventHash,omitempty"`
	UpdatedAtEventNum int64                 `json:"updatedAtEventNum"`
	Settings          *SpaceChannelSettings `json:"settings,omitempty"`
}

// ChannelSnapshot is the content of a channel stream.
type ChannelSnapshot struct {
	Inception *ChannelInception `json:"inception"`
}

// DMSnapshot is the content of a DM stream.
type DMSnapshot struct {
	Inception *DMInception `json:"inception"`
}

// GDMSnapshot is the content of a group DM stream.
type GDMSnapshot struct {
	Inception         *GDMInception         `json:"inception"`
	ChannelProperties *WrappedEncryptedData `json:"channelProperties,omitempty"`
}

// UserSnapshot is the content of a user stream. Tip maps are keyed by the
// hex currency address.
type UserSnapshot struct {
	Inception    *UserInception    `json:"inception"`
	Memberships  []*UserMembership `json:"memberships"`
	TipsSent     map[string]uint64 `json:"tipsSent,omitempty"`
	TipsReceived map[string]uint64 `json:"tipsReceived,omitempty"`
}

// UserSettingsSnapshot is the content of a user-settings stream.
type UserSettingsSnapshot struct {
	Inception        *UserSettingsInception `json:"inception"`
	FullyReadMarkers []*FullyReadMarkers    `json:"fullyReadMarkers"`
	UserBlocks       []*UserBlocks          `json:"userBlocks"`
}

// UserBlocks is the block history of one user, sorted by UserID in the
// snapshot.
type UserBlocks struct {
	UserID Bytes        `json:"userId"`
	Blocks []BlockEntry `json:"blocks"`
}

// BlockEntry is one block or unblock.
type BlockEntry struct {
	IsBlocked bool  `json:"isBlocked"`
	EventNum  int64 `json:"eventNum"`
}

// UserMetadataSnapshot is the content of a user-metadata stream.
type UserMetadataSnapshot struct {
	Inception         *UserMetadataInception `json:"inception"`
	EncryptionDevices []*EncryptionDevice    `json:"encryptionDevices"`
	ProfileImage      *WrappedEncryptedData  `json:"profileImage,omitempty"`
	Bio               *WrappedEncryptedData  `json:"bio,omitempty"`
}

// UserInboxSnapshot is the content of a user-inbox stream.
type UserInboxSnapshot struct {
	Inception     *UserInboxInception          `json:"inception"`
	DeviceSummary map[string]*DeviceKeySummary `json:"deviceSummary,omitempty"`
}

// DeviceKeySummary is the miniblock range in which a device still has
// undelivered key material.
type DeviceKeySummary struct {
	LowerBound int64 `json:"lowerBound"`
	UpperBound int64 `json:"upperBound"`
}

// MediaSnapshot is the content of a media stream.
type MediaSnapshot struct {
	Inception *MediaInception `json:"inception"`
}

// Members is the membership section of every snapshot.
type Members struct {
	Joined              []*Member         `json:"joined"`
	Pins                []*SnapshotPin    `json:"pins"`
	EncryptionAlgorithm string            `json:"encryptionAlgorithm,omitempty"`
	Tips                map[string]uint64 `json:"tips,omitempty"`
}

// Member is one joined user. It is looked up by address, never held by
// pointer outside its snapshot.
type Member struct {
	UserAddress   Bytes                 `json:"userAddress"`
	MiniblockNum  int64                 `json:"miniblockNum"`
	EventNum      int64                 `json:"eventNum"`
	Solicitations []*KeySolicitation    `json:"solicitations"`
	DisplayName   *WrappedEncryptedData `json:"displayName,omitempty"`
	Username      *WrappedEncryptedData `json:"username,omitempty"`
	EnsAddress    Bytes                 `json:"ensAddress,omitempty"`
	Nft           *Nft                  `json:"nft,omitempty"`
}

// Find returns the joined member with addr.
func (m *Members) Find(addr []byte) (*Member, bool) {
	i, ok := slices.BinarySearchFunc(m.Joined, addr, func(e *Member, k []byte) int {
		return bytes.Compare(e.UserAddress, k)
	})
	if !ok {
		return nil, false
	}
	return m.Joined[i], true
}

// SnapshotPin is a pinned event with its pinner.
type SnapshotPin struct {
	CreatorAddress Bytes `json:"creatorAddress"`
	Pin            *Pin  `json:"pin"`
}
