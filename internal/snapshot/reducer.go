package snapshot

import (
	"fmt"
	"slices"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Retention limits.
const (
	// DefaultMaxGenerations is how many miniblocks an inbox device summary
	// may lag before it is dropped: five days at a two second block interval.
	DefaultMaxGenerations = 3600

	// MaxEncryptionDevices bounds the device list of a user-metadata stream.
	MaxEncryptionDevices = 10

	// MaxSolicitations bounds the outstanding solicitations of one member.
	MaxSolicitations = 10
)

// Reducer folds events into snapshots. The zero value is not usable; call
// New.
type Reducer struct {
	maxGenerations int64
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithMaxGenerations sets the inbox cleanup horizon in miniblocks.
func WithMaxGenerations(n int64) Option {
	return func(r *Reducer) {
		if n > 0 {
			r.maxGenerations = n
		}
	}
}

// New creates a Reducer.
func New(opts ...Option) *Reducer {
	r := &Reducer{maxGenerations: DefaultMaxGenerations}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxGenerations returns the inbox cleanup horizon.
func (r *Reducer) MaxGenerations() int64 { return r.maxGenerations }

var defaultReducer = New()

// Update returns the effect of ev using default limits.
func Update(ev *protocol.ParsedEvent) (Effect, error) { return defaultReducer.Update(ev) }

// Fold applies ev to s using default limits.
func Fold(s *protocol.Snapshot, ev *protocol.ParsedEvent, miniblockNum, eventNum int64) error {
	return defaultReducer.Fold(s, ev, miniblockNum, eventNum)
}

// Update inspects ev and returns the effect it has on a snapshot. A nil
// effect means the event never changes canonical state.
func (r *Reducer) Update(ev *protocol.ParsedEvent) (Effect, error) {
	if ev == nil || ev.Event == nil || ev.Event.Payload.Content == nil {
		return nil, fmt.Errorf("update snapshot: %w", ErrUnknownPayloadVariant)
	}
	d := &dispatcher{r: r, ev: ev}
	if err := ev.Content().Accept(d); err != nil {
		return nil, err
	}
	return d.effect, nil
}

// Fold is Update followed by Apply.
func (r *Reducer) Fold(s *protocol.Snapshot, ev *protocol.ParsedEvent, miniblockNum, eventNum int64) error {
	eff, err := r.Update(ev)
	if err != nil {
		return err
	}
	if err := Apply(s, eff, miniblockNum, eventNum); err != nil {
		return fmt.Errorf("event %s: %w", ev.ShortHash(), err)
	}
	return nil
}

// dispatcher is the reducer's protocol.Visitor. Each method records at most
// one effect.
type dispatcher struct {
	r      *Reducer
	ev     *protocol.ParsedEvent
	effect Effect
}

func (d *dispatcher) set(e Effect) error {
	d.effect = e
	return nil
}

func (d *dispatcher) noop() error { return nil }

func (d *dispatcher) wrapped(data *protocol.EncryptedData) *protocol.WrappedEncryptedData {
	return &protocol.WrappedEncryptedData{Data: data, EventHash: d.ev.Hash.Clone()}
}

// Space

func (d *dispatcher) VisitSpaceInception(*protocol.SpaceInception) error { return d.noop() }

func (d *dispatcher) VisitSpaceChannelUpdate(c *protocol.SpaceChannelUpdate) error {
	return d.set(&upsertChannel{update: c})
}

func (d *dispatcher) VisitSpaceImage(c *protocol.SpaceImage) error {
	v := d.wrapped(c.Data)
	v.CreatorAddress = d.ev.Creator().Clone()
	return d.set(&setWrapped{slot: slotSpaceImage, value: v})
}

func (d *dispatcher) VisitSpaceUpdateChannelAutojoin(c *protocol.SpaceUpdateChannelAutojoin) error {
	return d.set(&updateChannelSettings{channelID: c.ChannelID, autojoin: &c.Autojoin})
}

func (d *dispatcher) VisitSpaceUpdateChannelHideUserJoinLeaveEvents(c *protocol.SpaceUpdateChannelHideUserJoinLeaveEvents) error {
	return d.set(&updateChannelSettings{channelID: c.ChannelID, hideJoinLeave: &c.HideUserJoinLeaveEvents})
}

// Channel, DM, GDM

func (d *dispatcher) VisitChannelInception(*protocol.ChannelInception) error { return d.noop() }
func (d *dispatcher) VisitChannelMessage(*protocol.ChannelMessage) error     { return d.noop() }
func (d *dispatcher) VisitChannelRedaction(*protocol.ChannelRedaction) error { return d.noop() }
func (d *dispatcher) VisitDMInception(*protocol.DMInception) error           { return d.noop() }
func (d *dispatcher) VisitDMMessage(*protocol.DMMessage) error               { return d.noop() }
func (d *dispatcher) VisitGDMInception(*protocol.GDMInception) error         { return d.noop() }
func (d *dispatcher) VisitGDMMessage(*protocol.GDMMessage) error             { return d.noop() }

func (d *dispatcher) VisitGDMChannelProperties(c *protocol.GDMChannelProperties) error {
	return d.set(&setWrapped{slot: slotGDMProperties, value: d.wrapped(c.Data)})
}

// User

func (d *dispatcher) VisitUserInception(*protocol.UserInception) error { return d.noop() }

func (d *dispatcher) VisitUserMembership(c *protocol.UserMembership) error {
	return d.set(&upsertUserMembership{membership: c})
}

func (d *dispatcher) VisitUserMembershipAction(*protocol.UserMembershipAction) error {
	return d.noop()
}

func (d *dispatcher) VisitUserBlockchainTransaction(c *protocol.UserBlockchainTransaction) error {
	return d.tip(tipsSent, c.Transaction)
}

func (d *dispatcher) VisitUserReceivedBlockchainTransaction(c *protocol.UserReceivedBlockchainTransaction) error {
	return d.tip(tipsReceived, c.Transaction)
}

// tip records a tip effect; token transfers and reviews change nothing.
func (d *dispatcher) tip(bucket tipBucket, tx protocol.BlockchainTransaction) error {
	if tx.Tip == nil {
		return d.noop()
	}
	return d.set(&addTip{bucket: bucket, currency: tx.Tip.Currency.Hex(), amount: tx.Tip.Amount})
}

// User settings

func (d *dispatcher) VisitUserSettingsInception(*protocol.UserSettingsInception) error {
	return d.noop()
}

func (d *dispatcher) VisitFullyReadMarkers(c *protocol.FullyReadMarkers) error {
	return d.set(&upsertFullyReadMarkers{markers: c})
}

func (d *dispatcher) VisitUserBlock(c *protocol.UserBlock) error {
	return d.set(&appendUserBlock{block: c})
}

// User metadata

func (d *dispatcher) VisitUserMetadataInception(*protocol.UserMetadataInception) error {
	return d.noop()
}

func (d *dispatcher) VisitEncryptionDevice(c *protocol.EncryptionDevice) error {
	return d.set(&addEncryptionDevice{device: c})
}

func (d *dispatcher) VisitProfileImage(c *protocol.ProfileImage) error {
	return d.set(&setWrapped{slot: slotProfileImage, value: d.wrapped(c.Data)})
}

func (d *dispatcher) VisitBio(c *protocol.Bio) error {
	return d.set(&setWrapped{slot: slotBio, value: d.wrapped(c.Data)})
}

// User inbox

func (d *dispatcher) VisitUserInboxInception(*protocol.UserInboxInception) error { return d.noop() }

func (d *dispatcher) VisitGroupEncryptionSessions(c *protocol.GroupEncryptionSessions) error {
	devices := make([]string, 0, len(c.Ciphertexts))
	for k := range c.Ciphertexts {
		devices = append(devices, k)
	}
	slices.Sort(devices)
	return d.set(&inboxSessions{deviceKeys: devices, maxGenerations: d.r.maxGenerations})
}

func (d *dispatcher) VisitInboxAck(c *protocol.InboxAck) error {
	return d.set(&inboxAck{deviceKey: c.DeviceKey, miniblockNum: c.MiniblockNum, maxGenerations: d.r.maxGenerations})
}

// Members

func (d *dispatcher) VisitMembership(c *protocol.Membership) error {
	switch c.Op {
	case protocol.MembershipOpJoin:
		return d.set(&memberJoin{address: c.UserAddress})
	case protocol.MembershipOpLeave:
		return d.set(&memberLeave{address: c.UserAddress})
	case protocol.MembershipOpInvite:
		return d.noop()
	default:
		return fmt.Errorf("membership op %q: %w", c.Op, ErrUnknownPayloadVariant)
	}
}

func (d *dispatcher) VisitKeySolicitation(c *protocol.KeySolicitation) error {
	return d.set(&memberSolicitation{creator: d.ev.Creator(), solicitation: c})
}

func (d *dispatcher) VisitKeyFulfillment(c *protocol.KeyFulfillment) error {
	return d.set(&memberFulfillment{fulfillment: c})
}

func (d *dispatcher) VisitDisplayName(c *protocol.DisplayName) error {
	return d.set(&memberField{creator: d.ev.Creator(), field: fieldDisplayName, wrapped: d.wrapped(c.Data)})
}

func (d *dispatcher) VisitUsername(c *protocol.Username) error {
	return d.set(&memberField{creator: d.ev.Creator(), field: fieldUsername, wrapped: d.wrapped(c.Data)})
}

func (d *dispatcher) VisitEnsAddress(c *protocol.EnsAddress) error {
	return d.set(&memberField{creator: d.ev.Creator(), field: fieldEnsAddress, ens: c.EnsAddress})
}

func (d *dispatcher) VisitNft(c *protocol.Nft) error {
	return d.set(&memberField{creator: d.ev.Creator(), field: fieldNft, nft: c})
}

func (d *dispatcher) VisitPin(c *protocol.Pin) error {
	return d.set(&addPin{creator: d.ev.Creator(), pin: c})
}

func (d *dispatcher) VisitUnpin(c *protocol.Unpin) error {
	return d.set(&removePin{eventID: c.EventID})
}

func (d *dispatcher) VisitEncryptionAlgorithm(c *protocol.EncryptionAlgorithm) error {
	return d.set(&setEncryptionAlgorithm{algorithm: c.Algorithm})
}

func (d *dispatcher) VisitMemberBlockchainTransaction(c *protocol.MemberBlockchainTransaction) error {
	return d.tip(tipsMembers, c.Transaction)
}

// Media chunks are validated by the producer and never folded.

func (d *dispatcher) VisitMediaInception(*protocol.MediaInception) error { return d.noop() }
func (d *dispatcher) VisitMediaChunk(*protocol.MediaChunk) error         { return d.noop() }

func (d *dispatcher) VisitMiniblockHeader(*protocol.MiniblockHeaderContent) error { return d.noop() }

// isDefaultChannel reports whether raw is a channel id with the default
// suffix. Malformed ids are never default.
func isDefaultChannel(raw []byte) bool {
	id, err := streamid.FromBytes(raw)
	if err != nil {
		return false
	}
	return streamid.IsDefaultChannel(id)
}
