package node

import (
	"context"

	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// CreateStream seals the genesis miniblock from events. events[0] must be
// the inception of streamID.
func (n *Node) CreateStream(ctx context.Context, streamID protocol.Bytes, envs []*protocol.Envelope) (*protocol.StreamAndCookie, error) {
	id, err := parseStreamID(streamID)
	if err != nil {
		return nil, err
	}
	events, err := protocol.ParseEnvelopes(envs, n.verify)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, protocol.NewError(protocol.CodeInvalidArgument, "no genesis events").WithStream(id.String())
	}
	inception, ok := events[0].Event.Payload.Inception()
	if !ok {
		return nil, protocol.NewError(protocol.CodeBadEvent, "first event is not an inception").WithStream(id.String())
	}
	if !inception.InceptionStreamID().Equal(id.Bytes()) {
		return nil, protocol.NewError(protocol.CodeBadEvent, "inception names stream %s", inception.InceptionStreamID()).WithStream(id.String())
	}
	if inception.Kind() != kindOf(id) {
		return nil, protocol.NewError(protocol.CodeBadEvent, "%s inception in %s stream", inception.Kind(), id.Kind()).WithStream(id.String())
	}
	if media, ok := inception.(*protocol.MediaInception); ok {
		if err := n.limits.ValidateInception(media); err != nil {
			return nil, err
		}
	}
	for i, ev := range events[1:] {
		if _, again := ev.Event.Payload.Inception(); again {
			return nil, protocol.NewError(protocol.CodeBadEvent, "genesis event %d is a second inception", i+1).WithStream(id.String())
		}
	}

	genesis, st, err := n.producer.Genesis(id, events)
	if err != nil {
		return nil, protocol.WrapError(protocol.CodeBadEvent, err, "genesis").WithStream(id.String())
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, protocol.NewError(protocol.CodeUnavailable, "node closed")
	}
	if err := n.store.CreateStream(ctx, id, genesis); err != nil {
		return nil, err
	}
	ss, err := newStreamState(st)
	if err != nil {
		return nil, err
	}
	n.streams[id] = ss

	n.logger.Info("stream created", "stream", id, "events", len(events))
	return &protocol.StreamAndCookie{
		StreamID:       id.Bytes(),
		Events:         []*protocol.Envelope{},
		NextSyncCookie: st.Cookie(n.Address()),
		Miniblocks:     []*protocol.Miniblock{genesis},
	}, nil
}

// AddEvent validates env against the stream's pending state and appends it
// to the minipool. Ephemeral events are validated and fanned out only.
func (n *Node) AddEvent(ctx context.Context, streamID protocol.Bytes, env *protocol.Envelope) error {
	id, err := parseStreamID(streamID)
	if err != nil {
		return err
	}
	ev, err := protocol.ParseEnvelope(env, n.verify)
	if err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	ss, err := n.stream(id)
	if err != nil {
		return err
	}
	if err := n.validate(id, ss, ev); err != nil {
		return err
	}

	if ev.IsEphemeral() {
		n.fanOutLocked(id, ss, []*protocol.Envelope{ev.Envelope}, ss.committed.Cookie(n.Address()))
		return nil
	}

	eventNum := ss.committed.NextEventNum + int64(len(ss.minipool))
	if err := n.Reducer().Fold(ss.pending, ev, ss.committed.LastNum+1, eventNum); err != nil {
		return protocol.WrapError(protocol.CodeBadEvent, err, "apply event").WithStream(id.String())
	}
	ss.minipool = append(ss.minipool, ev)
	ss.seen[string(ev.Hash)] = struct{}{}

	n.logger.Debug("event added", "stream", id, "event", ev.ShortHash(), "kind", ev.Content().Kind(), "case", ev.Content().Case())
	n.fanOutLocked(id, ss, []*protocol.Envelope{ev.Envelope}, ss.committed.Cookie(n.Address()))
	return nil
}

// validate applies the node's acceptance rules to a non-genesis event.
func (n *Node) validate(id streamid.ID, ss *streamState, ev *protocol.ParsedEvent) error {
	bad := func(format string, args ...any) error {
		return protocol.NewError(protocol.CodeBadEvent, format, args...).WithStream(id.String())
	}
	if _, dup := ss.seen[string(ev.Hash)]; dup {
		return protocol.NewError(protocol.CodeDuplicateEvent, "event %s already added", ev.ShortHash()).WithStream(id.String())
	}
	content := ev.Content()
	if content == nil {
		return bad("event %s has no content", ev.ShortHash())
	}
	if _, ok := ev.Event.Payload.Inception(); ok {
		return bad("stream already has an inception")
	}
	if content.Kind() == protocol.KindMiniblockHeader {
		return bad("miniblock headers are produced by the node")
	}
	if k := content.Kind(); k != protocol.KindMember && k != kindOf(id) {
		return bad("%s event in %s stream", k, id.Kind())
	}
	if len(ev.Event.PrevMiniblockHash) == 0 {
		return bad("event %s has no prev miniblock hash", ev.ShortHash())
	}

	if chunk, ok := content.(*protocol.MediaChunk); ok {
		if ss.media == nil {
			return bad("media chunk outside a media stream")
		}
		if err := n.limits.ValidateChunk(ss.media, chunk); err != nil {
			return err
		}
	}

	if requiresMembership(id) {
		if _, isMembership := content.(*protocol.Membership); !isMembership {
			if _, ok := ss.pending.Members.Find(ev.Creator()); !ok {
				return protocol.NewError(protocol.CodePermissionDenied, "%s is not a member", ev.Creator()).WithStream(id.String())
			}
		}
	}
	return nil
}

// requiresMembership reports whether only joined members may post to id.
// User streams accept events from others (inbox sessions, received tips).
func requiresMembership(id streamid.ID) bool {
	switch id.Prefix() {
	case streamid.PrefixSpace, streamid.PrefixChannel, streamid.PrefixDM, streamid.PrefixGDM:
		return true
	}
	return false
}

// kindOf maps a stream prefix to the payload kind its inception carries.
func kindOf(id streamid.ID) protocol.Kind {
	switch id.Prefix() {
	case streamid.PrefixSpace:
		return protocol.KindSpace
	case streamid.PrefixChannel:
		return protocol.KindChannel
	case streamid.PrefixDM:
		return protocol.KindDM
	case streamid.PrefixGDM:
		return protocol.KindGDM
	case streamid.PrefixUser:
		return protocol.KindUser
	case streamid.PrefixUserSettings:
		return protocol.KindUserSettings
	case streamid.PrefixUserMetadata:
		return protocol.KindUserMetadata
	case streamid.PrefixUserInbox:
		return protocol.KindUserInbox
	case streamid.PrefixMedia:
		return protocol.KindMedia
	}
	return ""
}
