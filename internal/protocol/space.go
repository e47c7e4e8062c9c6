package protocol

// SpaceInception creates a space stream.
type SpaceInception struct {
	StreamID Bytes          `json:"streamId"`
	Settings StreamSettings `json:"settings"`
}

// SpaceChannelSettings are per-channel flags kept in the space snapshot.
type SpaceChannelSettings struct {
	Autojoin                bool `json:"autojoin"`
	HideUserJoinLeaveEvents bool `json:"hideUserJoinLeaveEvents"`
}

// SpaceChannelUpdate creates, updates or deletes a channel of the space.
// A nil Settings on CO_CREATED derives autojoin from the channel id; on
// CO_UPDATED it keeps the existing settings.
type SpaceChannelUpdate struct {
	Op              ChannelOp             `json:"op"`
	ChannelID       Bytes                 `json:"channelId"`
	OriginEventHash Bytes                 `json:"originEventHash,omitempty"`
	Settings        *SpaceChannelSettings `json:"settings,omitempty"`
}

// SpaceImage replaces the space image.
type SpaceImage struct {
	Data *EncryptedData `json:"data"`
}

// SpaceUpdateChannelAutojoin toggles autojoin for an existing channel.
type SpaceUpdateChannelAutojoin struct {
	ChannelID Bytes `json:"channelId"`
	Autojoin  bool  `json:"autojoin"`
}

// SpaceUpdateChannelHideUserJoinLeaveEvents toggles join/leave visibility for
// an existing channel.
type SpaceUpdateChannelHideUserJoinLeaveEvents struct {
	ChannelID               Bytes `json:"channelId"`
	HideUserJoinLeaveEvents bool  `json:"hideUserJoinLeaveEvents"`
}

func (*SpaceInception) Kind() Kind                            { return KindSpace }
func (*SpaceChannelUpdate) Kind() Kind                        { return KindSpace }
func (*SpaceImage) Kind() Kind                                { return KindSpace }
func (*SpaceUpdateChannelAutojoin) Kind() Kind                { return KindSpace }
func (*SpaceUpdateChannelHideUserJoinLeaveEvents) Kind() Kind { return KindSpace }

func (*SpaceInception) Case() string             { return "inception" }
func (*SpaceChannelUpdate) Case() string         { return "channel" }
func (*SpaceImage) Case() string                 { return "spaceImage" }
func (*SpaceUpdateChannelAutojoin) Case() string { return "updateChannelAutojoin" }
func (*SpaceUpdateChannelHideUserJoinLeaveEvents) Case() string {
	return "updateChannelHideUserJoinLeaveEvents"
}

func (c *SpaceInception) Accept(v Visitor) error     { return v.VisitSpaceInception(c) }
func (c *SpaceChannelUpdate) Accept(v Visitor) error { return v.VisitSpaceChannelUpdate(c) }
func (c *SpaceImage) Accept(v Visitor) error         { return v.VisitSpaceImage(c) }
func (c *SpaceUpdateChannelAutojoin) Accept(v Visitor) error {
	return v.VisitSpaceUpdateChannelAutojoin(c)
}
func (c *SpaceUpdateChannelHideUserJoinLeaveEvents) Accept(v Visitor) error {
	return v.VisitSpaceUpdateChannelHideUserJoinLeaveEvents(c)
}

func (*SpaceInception) content()                            {}
func (*SpaceChannelUpdate) content()                        {}
func (*SpaceImage) content()                                {}
func (*SpaceUpdateChannelAutojoin) content()                {}
func (*SpaceUpdateChannelHideUserJoinLeaveEvents) content() {}

func (c *SpaceInception) InceptionStreamID() Bytes { return c.StreamID }
