package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownPayloadVariant is returned when a payload names a kind/case pair
// that this build does not know, or carries no content at all.
var ErrUnknownPayloadVariant = errors.New("unknown payload variant")

// Kind names the payload family of an event.
type Kind string

const (
	KindSpace           Kind = "space"
	KindChannel         Kind = "channel"
	KindDM              Kind = "dm"
	KindGDM             Kind = "gdm"
	KindUser            Kind = "user"
	KindUserSettings    Kind = "userSettings"
	KindUserMetadata    Kind = "userMetadata"
	KindUserInbox       Kind = "userInbox"
	KindMember          Kind = "member"
	KindMedia           Kind = "media"
	KindMiniblockHeader Kind = "miniblockHeader"
)

// Content is one payload variant. The set is closed: only types in this
// package implement it, and every one of them dispatches into Visitor.
type Content interface {
	Kind() Kind
	Case() string
	Accept(v Visitor) error
	content()
}

// Inception is implemented by the first event of every stream.
type Inception interface {
	Content
	InceptionStreamID() Bytes
}

// Visitor has one method per payload variant. Adding a variant means adding
// a method here, which breaks every visitor until it handles the new case.
type Visitor interface {
	VisitSpaceInception(*SpaceInception) error
	VisitSpaceChannelUpdate(*SpaceChannelUpdate) error
	VisitSpaceImage(*SpaceImage) error
	VisitSpaceUpdateChannelAutojoin(*SpaceUpdateChannelAutojoin) error
	VisitSpaceUpdateChannelHideUserJoinLeaveEvents(*SpaceUpdateChannelHideUserJoinLeaveEvents) error

	VisitChannelInception(*ChannelInception) error
	VisitChannelMessage(*ChannelMessage) error
	VisitChannelRedaction(*ChannelRedaction) error

	VisitDMInception(*DMInception) error
	VisitDMMessage(*DMMessage) error

	VisitGDMInception(*GDMInception) error
	VisitGDMMessage(*GDMMessage) error
	VisitGDMChannelProperties(*GDMChannelProperties) error

	VisitUserInception(*UserInception) error
	VisitUserMembership(*UserMembership) error
	VisitUserMembershipAction(*UserMembershipAction) error
	VisitUserBlockchainTransaction(*UserBlockchainTransaction) error
	VisitUserReceivedBlockchainTransaction(*UserReceivedBlockchainTransaction) error

	VisitUserSettingsInception(*UserSettingsInception) error
	VisitFullyReadMarkers(*FullyReadMarkers) error
	VisitUserBlock(*UserBlock) error

	VisitUserMetadataInception(*UserMetadataInception) error
	VisitEncryptionDevice(*EncryptionDevice) error
	VisitProfileImage(*ProfileImage) error
	VisitBio(*Bio) error

	VisitUserInboxInception(*UserInboxInception) error
	VisitGroupEncryptionSessions(*GroupEncryptionSessions) error
	VisitInboxAck(*InboxAck) error

	VisitMembership(*Membership) error
	VisitKeySolicitation(*KeySolicitation) error
	VisitKeyFulfillment(*KeyFulfillment) error
	VisitDisplayName(*DisplayName) error
	VisitUsername(*Username) error
	VisitEnsAddress(*EnsAddress) error
	VisitNft(*Nft) error
	VisitPin(*Pin) error
	VisitUnpin(*Unpin) error
	VisitEncryptionAlgorithm(*EncryptionAlgorithm) error
	VisitMemberBlockchainTransaction(*MemberBlockchainTransaction) error

	VisitMediaInception(*MediaInception) error
	VisitMediaChunk(*MediaChunk) error

	VisitMiniblockHeader(*MiniblockHeaderContent) error
}

var variants = map[string]func() Content{
	"space.inception":                            func() Content { return &SpaceInception{} },
	"space.channel":                              func() Content { return &SpaceChannelUpdate{} },
	"space.spaceImage":                           func() Content { return &SpaceImage{} },
	"space.updateChannelAutojoin":                func() Content { return &SpaceUpdateChannelAutojoin{} },
	"space.updateChannelHideUserJoinLeaveEvents": func() Content { return &SpaceUpdateChannelHideUserJoinLeaveEvents{} },

	"channel.inception": func() Content { return &ChannelInception{} },
	"channel.message":   func() Content { return &ChannelMessage{} },
	"channel.redaction": func() Content { return &ChannelRedaction{} },

	"dm.inception": func() Content { return &DMInception{} },
	"dm.message":   func() Content { return &DMMessage{} },

	"gdm.inception":         func() Content { return &GDMInception{} },
	"gdm.message":           func() Content { return &GDMMessage{} },
	"gdm.channelProperties": func() Content { return &GDMChannelProperties{} },

	"user.inception":                     func() Content { return &UserInception{} },
	"user.userMembership":                func() Content { return &UserMembership{} },
	"user.userMembershipAction":          func() Content { return &UserMembershipAction{} },
	"user.blockchainTransaction":         func() Content { return &UserBlockchainTransaction{} },
	"user.receivedBlockchainTransaction": func() Content { return &UserReceivedBlockchainTransaction{} },

	"userSettings.inception":        func() Content { return &UserSettingsInception{} },
	"userSettings.fullyReadMarkers": func() Content { return &FullyReadMarkers{} },
	"userSettings.userBlock":        func() Content { return &UserBlock{} },

	"userMetadata.inception":        func() Content { return &UserMetadataInception{} },
	"userMetadata.encryptionDevice": func() Content { return &EncryptionDevice{} },
	"userMetadata.profileImage":     func() Content { return &ProfileImage{} },
	"userMetadata.bio":              func() Content { return &Bio{} },

	"userInbox.inception":               func() Content { return &UserInboxInception{} },
	"userInbox.groupEncryptionSessions": func() Content { return &GroupEncryptionSessions{} },
	"userInbox.ack":                     func() Content { return &InboxAck{} },

	"member.membership":                  func() Content { return &Membership{} },
	"member.keySolicitation":             func() Content { return &KeySolicitation{} },
	"member.keyFulfillment":              func() Content { return &KeyFulfillment{} },
	"member.displayName":                 func() Content { return &DisplayName{} },
	"member.username":                    func() Content { return &Username{} },
	"member.ensAddress":                  func() Content { return &EnsAddress{} },
	"member.nft":                         func() Content { return &Nft{} },
	"member.pin":                         func() Content { return &Pin{} },
	"member.unpin":                       func() Content { return &Unpin{} },
	"member.encryptionAlgorithm":         func() Content { return &EncryptionAlgorithm{} },
	"member.memberBlockchainTransaction": func() Content { return &MemberBlockchainTransaction{} },

	"media.inception": func() Content { return &MediaInception{} },
	"media.chunk":     func() Content { return &MediaChunk{} },

	"miniblockHeader.header": func() Content { return &MiniblockHeaderContent{} },
}

func variantKey(kind Kind, c string) string { return string(kind) + "." + c }

// Payload wraps one Content. It encodes as {"case","kind","value"}.
type Payload struct {
	Content Content
}

// NewPayload wraps c.
func NewPayload(c Content) Payload { return Payload{Content: c} }

type payloadJSON struct {
	Kind  Kind            `json:"kind"`
	Case  string          `json:"case"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Content == nil {
		return nil, fmt.Errorf("marshal payload: %w: empty payload", ErrUnknownPayloadVariant)
	}
	value, err := json.Marshal(p.Content)
	if err != nil {
		return nil, fmt.Errorf("marshal payload %s.%s: %w", p.Content.Kind(), p.Content.Case(), err)
	}
	return json.Marshal(payloadJSON{Kind: p.Content.Kind(), Case: p.Content.Case(), Value: value})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw payloadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mk, ok := variants[variantKey(raw.Kind, raw.Case)]
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownPayloadVariant, raw.Kind, raw.Case)
	}
	c := mk()
	if len(raw.Value) > 0 {
		if err := json.Unmarshal(raw.Value, c); err != nil {
			return fmt.Errorf("unmarshal payload %s.%s: %w", raw.Kind, raw.Case, err)
		}
	}
	p.Content = c
	return nil
}

// Inception returns the content as an Inception, if it is one.
func (p Payload) Inception() (Inception, bool) {
	inc, ok := p.Content.(Inception)
	return inc, ok
}
