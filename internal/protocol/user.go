package protocol

// UserInception creates a user stream.
type UserInception struct {
	StreamID Bytes          `json:"streamId"`
	Settings StreamSettings `json:"settings"`
}

// UserMembership records the user's membership in another stream.
type UserMembership struct {
	StreamID       Bytes            `json:"streamId"`
	Op             MembershipOp     `json:"op"`
	Inviter        Bytes            `json:"inviter,omitempty"`
	StreamParentID Bytes            `json:"streamParentId,omitempty"`
	Reason         MembershipReason `json:"reason,omitempty"`
}

// UserMembershipAction asks the node to apply a membership change on the
// user's behalf. It never changes the user snapshot.
type UserMembershipAction struct {
	StreamID Bytes        `json:"streamId"`
	Op       MembershipOp `json:"op"`
	UserID   Bytes        `json:"userId"`
}

// UserBlockchainTransaction is a transaction sent by the user.
type UserBlockchainTransaction struct {
	Transaction BlockchainTransaction `json:"transaction"`
}

// UserReceivedBlockchainTransaction is a transaction received by the user.
type UserReceivedBlockchainTransaction struct {
	Transaction     BlockchainTransaction `json:"transaction"`
	FromUserAddress Bytes                 `json:"fromUserAddress"`
}

// UserSettingsInception creates a user-settings stream.
type UserSettingsInception struct {
	StreamID Bytes          `json:"streamId"`
	Settings StreamSettings `json:"settings"`
}

// FullyReadMarkers stores read markers for one stream as an opaque blob.
type FullyReadMarkers struct {
	ChannelStreamID Bytes  `json:"channelStreamId"`
	Content         string `json:"content"`
}

// UserBlock blocks or unblocks another user.
type UserBlock struct {
	UserID    Bytes `json:"userId"`
	IsBlocked bool  `json:"isBlocked"`
	EventNum  int64 `json:"eventNum"`
}

// UserMetadataInception creates a user-metadata stream.
type UserMetadataInception struct {
	StreamID Bytes          `json:"streamId"`
	Settings StreamSettings `json:"settings"`
}

// EncryptionDevice publishes a device key of the user.
type EncryptionDevice struct {
	DeviceKey   string `json:"deviceKey"`
	FallbackKey string `json:"fallbackKey"`
}

// ProfileImage replaces the encrypted profile image.
type ProfileImage struct {
	Data *EncryptedData `json:"data"`
}

// Bio replaces the encrypted bio.
type Bio struct {
	Data *EncryptedData `json:"data"`
}

// UserInboxInception creates a user-inbox stream.
type UserInboxInception struct {
	StreamID Bytes          `json:"streamId"`
	Settings StreamSettings `json:"settings"`
}

// GroupEncryptionSessions delivers session keys to devices of the user.
// Ciphertexts is keyed by recipient device key.
type GroupEncryptionSessions struct {
	StreamID    Bytes             `json:"streamId"`
	SenderKey   string            `json:"senderKey"`
	SessionIDs  []string          `json:"sessionIds"`
	Ciphertexts map[string]string `json:"ciphertexts"`
	Algorithm   string            `json:"algorithm,omitempty"`
}

// InboxAck acknowledges inbox delivery up to a miniblock for one device.
type InboxAck struct {
	DeviceKey    string `json:"deviceKey"`
	MiniblockNum int64  `json:"miniblockNum"`
}

func (*UserInception) Kind() Kind                     { return KindUser }
func (*UserMembership) Kind() Kind                    { return KindUser }
func (*UserMembershipAction) Kind() Kind              { return KindUser }
func (*UserBlockchainTransaction) Kind() Kind         { return KindUser }
func (*UserReceivedBlockchainTransaction) Kind() Kind { return KindUser }
func (*UserSettingsInception) Kind() Kind             { return KindUserSettings }
func (*FullyReadMarkers) Kind() Kind                  { return KindUserSettings }
func (*UserBlock) Kind() Kind                         { return KindUserSettings }
func (*UserMetadataInception) Kind() Kind             { return KindUserMetadata }
func (*EncryptionDevice) Kind() Kind                  { return KindUserMetadata }
func (*ProfileImage) Kind() Kind                      { return KindUserMetadata }
func (*Bio) Kind() Kind                               { return KindUserMetadata }
func (*UserInboxInception) Kind() Kind                { return KindUserInbox }
func (*GroupEncryptionSessions) Kind() Kind           { return KindUserInbox }
func (*InboxAck) Kind() Kind                          { return KindUserInbox }

func (*UserInception) Case() string                     { return "inception" }
func (*UserMembership) Case() string                    { return "userMembership" }
func (*UserMembershipAction) Case() string              { return "userMembershipAction" }
func (*UserBlockchainTransaction) Case() string         { return "blockchainTransaction" }
func (*UserReceivedBlockchainTransaction) Case() string { return "receivedBlockchainTransaction" }
func (*UserSettingsInception) Case() string             { return "inception" }
func (*FullyReadMarkers) Case() string                  { return "fullyReadMarkers" }
func (*UserBlock) Case() string                         { return "userBlock" }
func (*UserMetadataInception) Case() string             { return "inception" }
func (*EncryptionDevice) Case() string                  { return "encryptionDevice" }
func (*ProfileImage) Case() string                      { return "profileImage" }
func (*Bio) Case() string                               { return "bio" }
func (*UserInboxInception) Case() string                { return "inception" }
func (*GroupEncryptionSessions) Case() string           { return "groupEncryptionSessions" }
func (*InboxAck) Case() string                          { return "ack" }

func (c *UserInception) Accept(v Visitor) error        { return v.VisitUserInception(c) }
func (c *UserMembership) Accept(v Visitor) error       { return v.VisitUserMembership(c) }
func (c *UserMembershipAction) Accept(v Visitor) error { return v.VisitUserMembershipAction(c) }
func (c *UserBlockchainTransaction) Accept(v Visitor) error {
	return v.VisitUserBlockchainTransaction(c)
}
func (c *UserReceivedBlockchainTransaction) Accept(v Visitor) error {
	return v.VisitUserReceivedBlockchainTransaction(c)
}
func (c *UserSettingsInception) Accept(v Visitor) error   { return v.VisitUserSettingsInception(c) }
func (c *FullyReadMarkers) Accept(v Visitor) error        { return v.VisitFullyReadMarkers(c) }
func (c *UserBlock) Accept(v Visitor) error               { return v.VisitUserBlock(c) }
func (c *UserMetadataInception) Accept(v Visitor) error   { return v.VisitUserMetadataInception(c) }
func (c *EncryptionDevice) Accept(v Visitor) error        { return v.VisitEncryptionDevice(c) }
func (c *ProfileImage) Accept(v Visitor) error            { return v.VisitProfileImage(c) }
func (c *Bio) Accept(v Visitor) error                     { return v.VisitBio(c) }
func (c *UserInboxInception) Accept(v Visitor) error      { return v.VisitUserInboxInception(c) }
func (c *GroupEncryptionSessions) Accept(v Visitor) error { return v.VisitGroupEncryptionSessions(c) }
func (c *InboxAck) Accept(v Visitor) error                { return v.VisitInboxAck(c) }

func (*UserInception) content()                     {}
func (*UserMembership) content()                    {}
func (*UserMembershipAction) content()              {}
func (*UserBlockchainTransaction) content()         {}
func (*UserReceivedBlockchainTransaction) content() {}
func (*UserSettingsInception) content()             {}
func (*FullyReadMarkers) content()                  {}
func (*UserBlock) content()                         {}
func (*UserMetadataInception) content()             {}
func (*EncryptionDevice) content()                  {}
func (*ProfileImage) content()                      {}
func (*Bio) content()                               {}
func (*UserInboxInception) content()                {}
func (*GroupEncryptionSessions) content()           {}
func (*InboxAck) content()                          {}

func (c *UserInception) InceptionStreamID() Bytes         { return c.StreamID }
func (c *UserSettingsInception) InceptionStreamID() Bytes { return c.StreamID }
func (c *UserMetadataInception) InceptionStreamID() Bytes { return c.StreamID }
func (c *UserInboxInception) InceptionStreamID() Bytes    { return c.StreamID }
