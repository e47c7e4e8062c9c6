package protocol

// ChannelInception creates a channel inside a space.
type ChannelInception struct {
	StreamID Bytes          `json:"streamId"`
	SpaceID  Bytes          `json:"spaceId"`
	Settings StreamSettings `json:"settings"`
}

// ChannelMessage is an encrypted channel message. It only lives in the
// timeline.
type ChannelMessage struct {
	Message *EncryptedData `json:"message"`
}

// ChannelRedaction hides an earlier event from the timeline.
type ChannelRedaction struct {
	EventID Bytes `json:"eventId"`
}

// DMInception creates the DM stream between two parties.
type DMInception struct {
	StreamID           Bytes          `json:"streamId"`
	FirstPartyAddress  Bytes          `json:"firstPartyAddress"`
	SecondPartyAddress Bytes          `json:"secondPartyAddress"`
	Settings           StreamSettings `json:"settings"`
}

// DMMessage is an encrypted DM message.
type DMMessage struct {
	Message *EncryptedData `json:"message"`
}

// GDMInception creates a group DM.
type GDMInception struct {
	StreamID          Bytes          `json:"streamId"`
	ChannelProperties *EncryptedData `json:"channelProperties,omitempty"`
	Settings          StreamSettings `json:"settings"`
}

// GDMMessage is an encrypted group DM message.
type GDMMessage struct {
	Message *EncryptedData `json:"message"`
}

// GDMChannelProperties replaces the encrypted group name/topic.
type GDMChannelProperties struct {
	Data *EncryptedData `json:"data"`
}

func (*ChannelInception) Kind() Kind     { return KindChannel }
func (*ChannelMessage) Kind() Kind       { return KindChannel }
func (*ChannelRedaction) Kind() Kind     { return KindChannel }
func (*DMInception) Kind() Kind          { return KindDM }
func (*DMMessage) Kind() Kind            { return KindDM }
func (*GDMInception) Kind() Kind         { return KindGDM }
func (*GDMMessage) Kind() Kind           { return KindGDM }
func (*GDMChannelProperties) Kind() Kind { return KindGDM }

func (*ChannelInception) Case() string     { return "inception" }
func (*ChannelMessage) Case() string       { return "message" }
func (*ChannelRedaction) Case() string     { return "redaction" }
func (*DMInception) Case() string          { return "inception" }
func (*DMMessage) Case() string            { return "message" }
func (*GDMInception) Case() string         { return "inception" }
func (*GDMMessage) Case() string           { return "message" }
func (*GDMChannelProperties) Case() string { return "channelProperties" }

func (c *ChannelInception) Accept(v Visitor) error     { return v.VisitChannelInception(c) }
func (c *ChannelMessage) Accept(v Visitor) error       { return v.VisitChannelMessage(c) }
func (c *ChannelRedaction) Accept(v Visitor) error     { return v.VisitChannelRedaction(c) }
func (c *DMInception) Accept(v Visitor) error          { return v.VisitDMInception(c) }
func (c *DMMessage) Accept(v Visitor) error            { return v.VisitDMMessage(c) }
func (c *GDMInception) Accept(v Visitor) error         { return v.VisitGDMInception(c) }
func (c *GDMMessage) Accept(v Visitor) error           { return v.VisitGDMMessage(c) }
func (c *GDMChannelProperties) Accept(v Visitor) error { return v.VisitGDMChannelProperties(c) }

func (*ChannelInception) content()     {}
func (*ChannelMessage) content()       {}
func (*ChannelRedaction) content()     {}
func (*DMInception) content()          {}
func (*DMMessage) content()            {}
func (*GDMInception) content()         {}
func (*GDMMessage) content()           {}
func (*GDMChannelProperties) content() {}

func (c *ChannelInception) InceptionStreamID() Bytes { return c.StreamID }
func (c *DMInception) InceptionStreamID() Bytes      { return c.StreamID }
func (c *GDMInception) InceptionStreamID() Bytes     { return c.StreamID }
