package protocol

// Membership joins, leaves or invites a user in a multi-party stream.
type Membership struct {
	Op               MembershipOp     `json:"op"`
	UserAddress      Bytes            `json:"userAddress"`
	InitiatorAddress Bytes            `json:"initiatorAddress"`
	StreamParentID   Bytes            `json:"streamParentId,omitempty"`
	Reason           MembershipReason `json:"reason,omitempty"`
}

// KeySolicitation asks other members for group sessions. SessionIDs is
// sorted.
type KeySolicitation struct {
	DeviceKey   string   `json:"deviceKey"`
	FallbackKey string   `json:"fallbackKey"`
	IsNewDevice bool     `json:"isNewDevice"`
	SessionIDs  []string `json:"sessionIds"`
}

// KeyFulfillment tells the stream that a solicitation of UserAddress's
// device was answered for SessionIDs (sorted).
type KeyFulfillment struct {
	UserAddress Bytes    `json:"userAddress"`
	DeviceKey   string   `json:"deviceKey"`
	SessionIDs  []string `json:"sessionIds"`
}

// DisplayName sets the creator's encrypted display name.
type DisplayName struct {
	Data *EncryptedData `json:"data"`
}

// Username sets the creator's encrypted username.
type Username struct {
	Data *EncryptedData `json:"data"`
}

// EnsAddress sets the creator's ENS address.
type EnsAddress struct {
	EnsAddress Bytes `json:"ensAddress"`
}

// Nft sets the creator's profile NFT.
type Nft struct {
	ChainID         uint32 `json:"chainId"`
	ContractAddress Bytes  `json:"contractAddress"`
	TokenID         string `json:"tokenId"`
}

// Pin pins an event of the stream.
type Pin struct {
	EventID Bytes        `json:"eventId"`
	Event   *StreamEvent `json:"event,omitempty"`
}

// Unpin removes the pin of EventID.
type Unpin struct {
	EventID Bytes `json:"eventId"`
}

// EncryptionAlgorithm sets the stream-wide encryption algorithm.
type EncryptionAlgorithm struct {
	Algorithm string `json:"algorithm,omitempty"`
}

// MemberBlockchainTransaction is a transaction referencing the stream, such
// as a tip on a message.
type MemberBlockchainTransaction struct {
	Transaction     BlockchainTransaction `json:"transaction"`
	FromUserAddress Bytes                 `json:"fromUserAddress"`
}

func (*Membership) Kind() Kind                  { return KindMember }
func (*KeySolicitation) Kind() Kind             { return KindMember }
func (*KeyFulfillment) Kind() Kind              { return KindMember }
func (*DisplayName) Kind() Kind                 { return KindMember }
func (*Username) Kind() Kind                    { return KindMember }
func (*EnsAddress) Kind() Kind                  { return KindMember }
func (*Nft) Kind() Kind                         { return KindMember }
func (*Pin) Kind() Kind                         { return KindMember }
func (*Unpin) Kind() Kind                       { return KindMember }
func (*EncryptionAlgorithm) Kind() Kind         { return KindMember }
func (*MemberBlockchainTransaction) Kind() Kind { return KindMember }

func (*Membership) Case() string                  { return "membership" }
func (*KeySolicitation) Case() string             { return "keySolicitation" }
func (*KeyFulfillment) Case() string              { return "keyFulfillment" }
func (*DisplayName) Case() string                 { return "displayName" }
func (*Username) Case() string                    { return "username" }
func (*EnsAddress) Case() string                  { return "ensAddress" }
func (*Nft) Case() string                         { return "nft" }
func (*Pin) Case() string                         { return "pin" }
func (*Unpin) Case() string                       { return "unpin" }
func (*EncryptionAlgorithm) Case() string         { return "encryptionAlgorithm" }
func (*MemberBlockchainTransaction) Case() string { return "memberBlockchainTransaction" }

func (c *Membership) Accept(v Visitor) error          { return v.VisitMembership(c) }
func (c *KeySolicitation) Accept(v Visitor) error     { return v.VisitKeySolicitation(c) }
func (c *KeyFulfillment) Accept(v Visitor) error      { return v.VisitKeyFulfillment(c) }
func (c *DisplayName) Accept(v Visitor) error         { return v.VisitDisplayName(c) }
func (c *Username) Accept(v Visitor) error            { return v.VisitUsername(c) }
func (c *EnsAddress) Accept(v Visitor) error          { return v.VisitEnsAddress(c) }
func (c *Nft) Accept(v Visitor) error                 { return v.VisitNft(c) }
func (c *Pin) Accept(v Visitor) error                 { return v.VisitPin(c) }
func (c *Unpin) Accept(v Visitor) error               { return v.VisitUnpin(c) }
func (c *EncryptionAlgorithm) Accept(v Visitor) error { return v.VisitEncryptionAlgorithm(c) }
func (c *MemberBlockchainTransaction) Accept(v Visitor) error {
	return v.VisitMemberBlockchainTransaction(c)
}

func (*Membership) content()                  {}
func (*KeySolicitation) content()             {}
func (*KeyFulfillment) content()              {}
func (*DisplayName) content()                 {}
func (*Username) content()                    {}
func (*EnsAddress) content()                  {}
func (*Nft) content()                         {}
func (*Pin) content()                         {}
func (*Unpin) content()                       {}
func (*EncryptionAlgorithm) content()         {}
func (*MemberBlockchainTransaction) content() {}
