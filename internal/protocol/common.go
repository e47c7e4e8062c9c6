package protocol

// EncryptedData is an opaque ciphertext plus the session it was sealed with.
type EncryptedData struct {
	Ciphertext string `json:"ciphertext"`
	Algorithm  string `json:"algorithm"`
	SenderKey  string `json:"senderKey,omitempty"`
	SessionID  string `json:"sessionId,omitempty"`
	RefEventID Bytes  `json:"refEventId,omitempty"`
}

// WrappedEncryptedData is a single-slot snapshot value with provenance.
// CreatorAddress is set only for the space image.
type WrappedEncryptedData struct {
	Data           *EncryptedData `json:"data"`
	EventNum       int64          `json:"eventNum"`
	EventHash      Bytes          `json:"eventHash"`
	CreatorAddress Bytes          `json:"creatorAddress,omitempty"`
}

// StreamSettings is carried by inception events.
type StreamSettings struct {
	DisableMiniblockCreation bool `json:"disableMiniblockCreation,omitempty"`
}

// ChannelOp is the operation of a space channel update.
type ChannelOp string

const (
	ChannelOpCreated ChannelOp = "CO_CREATED"
	ChannelOpDeleted ChannelOp = "CO_DELETED"
	ChannelOpUpdated ChannelOp = "CO_UPDATED"
)

// MembershipOp is a member join/leave/invite.
type MembershipOp string

const (
	MembershipOpInvite MembershipOp = "SO_INVITE"
	MembershipOpJoin   MembershipOp = "SO_JOIN"
	MembershipOpLeave  MembershipOp = "SO_LEAVE"
)

// MembershipReason explains a membership change initiated by someone other
// than the member.
type MembershipReason string

const (
	ReasonNone        MembershipReason = "MR_NONE"
	ReasonNotEntitled MembershipReason = "MR_NOT_ENTITLED"
	ReasonExpired     MembershipReason = "MR_EXPIRED"
)

// Tip is a tip transfer between two users.
type Tip struct {
	Currency  Bytes  `json:"currency"`
	Amount    uint64 `json:"amount"`
	Sender    Bytes  `json:"sender"`
	Receiver  Bytes  `json:"receiver"`
	MessageID Bytes  `json:"messageId,omitempty"`
}

// TokenTransfer records an on-chain token movement.
type TokenTransfer struct {
	Address Bytes  `json:"address"`
	Amount  string `json:"amount"`
	IsBuy   bool   `json:"isBuy"`
	ChainID string `json:"chainId"`
}

// SpaceReview records a review of a space.
type SpaceReview struct {
	SpaceAddress Bytes  `json:"spaceAddress"`
	Rating       int32  `json:"rating"`
	Comment      string `json:"comment,omitempty"`
}

// BlockchainTransaction carries exactly one of its content fields.
type BlockchainTransaction struct {
	TxHash        Bytes          `json:"txHash,omitempty"`
	Tip           *Tip           `json:"tip,omitempty"`
	TokenTransfer *TokenTransfer `json:"tokenTransfer,omitempty"`
	SpaceReview   *SpaceReview   `json:"spaceReview,omitempty"`
}

// Tags are notification hints attached to an event. This module only
// produces them.
type Tags struct {
	MessageInteractionType     string   `json:"messageInteractionType,omitempty"`
	GroupMentionTypes          []string `json:"groupMentionTypes,omitempty"`
	MentionedUserAddresses     []Bytes  `json:"mentionedUserAddresses,omitempty"`
	ParticipatingUserAddresses []Bytes  `json:"participatingUserAddresses,omitempty"`
}
