package harness

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/roach88/streamcore/internal/canon"
	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

type actionFunc func(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error)

var actions = map[string]actionFunc{
	"Stream.create":  createStream,
	"Member.join":    memberJoin,
	"Member.leave":   memberLeave,
	"Message.post":   postMessage,
	"Key.solicit":    solicitKeys,
	"Key.fulfill":    fulfillKeys,
	"Miniblock.make": makeMiniblock,
}

func createStream(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	name, err := argString(args, "stream")
	if err != nil {
		return nil, err
	}
	if _, exists := h.streams[name]; exists {
		return nil, fmt.Errorf("stream %q already created", name)
	}
	kind, err := argString(args, "kind")
	if err != nil {
		return nil, err
	}
	w, err := h.wallet(args, "as")
	if err != nil {
		return nil, err
	}

	var (
		id        streamid.ID
		inception protocol.Content
		genesis   = []protocol.Content{}
	)
	join := &protocol.Membership{Op: protocol.MembershipOpJoin, UserAddress: w.Address(), InitiatorAddress: w.Address()}

	switch kind {
	case "space":
		id, err = streamid.Make(streamid.PrefixSpace, identity(name, streamid.AddressIdentityLength))
		if err != nil {
			return nil, err
		}
		inception = &protocol.SpaceInception{StreamID: id.Bytes()}
		genesis = append(genesis, join)
	case "channel":
		space, err := h.stream(args, "space")
		if err != nil {
			return nil, err
		}
		id, err = streamid.Make(streamid.PrefixChannel, space.id.Identity()+identity(name, streamid.ChannelSuffixLength))
		if err != nil {
			return nil, err
		}
		inception = &protocol.ChannelInception{StreamID: id.Bytes(), SpaceID: space.id.Bytes()}
		genesis = append(genesis, join)
	case "dm":
		other, err := h.wallet(args, "with")
		if err != nil {
			return nil, err
		}
		id, err = streamid.DMStreamID(w.AddressHex(), other.AddressHex())
		if err != nil {
			return nil, err
		}
		inception = &protocol.DMInception{
			StreamID:           id.Bytes(),
			FirstPartyAddress:  w.Address(),
			SecondPartyAddress: other.Address(),
		}
	default:
		return nil, fmt.Errorf("unsupported stream kind %q", kind)
	}

	envs := make([]*protocol.Envelope, 0, 1+len(genesis))
	for _, content := range append([]protocol.Content{inception}, genesis...) {
		pe, err := h.sign(w, content, nil)
		if err != nil {
			return nil, err
		}
		envs = append(envs, pe.Envelope)
	}
	resp, err := h.node.CreateStream(ctx, id.Bytes(), envs)
	if err != nil {
		return nil, err
	}
	h.streams[name] = &streamRef{id: id, prev: resp.Miniblocks[0].Hash}
	h.order = append(h.order, name)
	return map[string]any{"miniblock_num": 0, "events": len(envs)}, nil
}

func memberJoin(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	return membership(ctx, h, args, protocol.MembershipOpJoin)
}

func memberLeave(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	return membership(ctx, h, args, protocol.MembershipOpLeave)
}

func membership(ctx context.Context, h *Harness, args map[string]any, op protocol.MembershipOp) (map[string]any, error) {
	ref, err := h.stream(args, "stream")
	if err != nil {
		return nil, err
	}
	w, err := h.wallet(args, "as")
	if err != nil {
		return nil, err
	}
	user := w
	if _, ok := args["user"]; ok {
		if user, err = h.wallet(args, "user"); err != nil {
			return nil, err
		}
	}
	return map[string]any{}, h.post(ctx, ref, w, &protocol.Membership{
		Op:               op,
		UserAddress:      user.Address(),
		InitiatorAddress: w.Address(),
	})
}

func postMessage(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	ref, err := h.stream(args, "stream")
	if err != nil {
		return nil, err
	}
	w, err := h.wallet(args, "as")
	if err != nil {
		return nil, err
	}
	text, err := argString(args, "text")
	if err != nil {
		return nil, err
	}
	session, _ := args["session"].(string)
	msg := &protocol.EncryptedData{Ciphertext: text, Algorithm: "harness", SessionID: session}

	var content protocol.Content = &protocol.ChannelMessage{Message: msg}
	if streamid.IsDM(ref.id) {
		content = &protocol.DMMessage{Message: msg}
	}
	return map[string]any{}, h.post(ctx, ref, w, content)
}

func solicitKeys(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	ref, err := h.stream(args, "stream")
	if err != nil {
		return nil, err
	}
	w, err := h.wallet(args, "as")
	if err != nil {
		return nil, err
	}
	device, err := argString(args, "device")
	if err != nil {
		return nil, err
	}
	sessions, err := argStrings(args, "sessions")
	if err != nil {
		return nil, err
	}
	isNew, _ := args["new_device"].(bool)
	return map[string]any{}, h.post(ctx, ref, w, &protocol.KeySolicitation{
		DeviceKey:   device,
		FallbackKey: device + "-fallback",
		IsNewDevice: isNew,
		SessionIDs:  sessions,
	})
}

func fulfillKeys(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	ref, err := h.stream(args, "stream")
	if err != nil {
		return nil, err
	}
	w, err := h.wallet(args, "as")
	if err != nil {
		return nil, err
	}
	user, err := h.wallet(args, "user")
	if err != nil {
		return nil, err
	}
	device, err := argString(args, "device")
	if err != nil {
		return nil, err
	}
	sessions, err := argStrings(args, "sessions")
	if err != nil {
		return nil, err
	}
	return map[string]any{}, h.post(ctx, ref, w, &protocol.KeyFulfillment{
		UserAddress: user.Address(),
		DeviceKey:   device,
		SessionIDs:  sessions,
	})
}

func makeMiniblock(ctx context.Context, h *Harness, args map[string]any) (map[string]any, error) {
	ref, err := h.stream(args, "stream")
	if err != nil {
		return nil, err
	}
	force, _ := args["force"].(bool)
	mb, err := h.node.MakeMiniblock(ctx, ref.id, force)
	if err != nil {
		return nil, err
	}
	if mb == nil {
		return map[string]any{"sealed": false}, nil
	}
	ref.prev = mb.Hash
	return map[string]any{
		"sealed":        true,
		"miniblock_num": int(mb.Num()),
		"events":        len(mb.Events),
		"snapshot":      mb.IsSnapshot(),
	}, nil
}

func (h *Harness) wallet(args map[string]any, key string) (*keys.Wallet, error) {
	name, err := argString(args, key)
	if err != nil {
		return nil, err
	}
	w, ok := h.wallets[name]
	if !ok {
		return nil, fmt.Errorf("unknown wallet %q", name)
	}
	return w, nil
}

func (h *Harness) stream(args map[string]any, key string) (*streamRef, error) {
	name, err := argString(args, key)
	if err != nil {
		return nil, err
	}
	ref, ok := h.streams[name]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", name)
	}
	return ref, nil
}

// identity derives n hex chars of stream identity from a scenario name.
func identity(name string, n int) string {
	return hex.EncodeToString(canon.Keccak256([]byte(name)))[:n]
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string, got %T", key, v)
	}
	return s, nil
}

func argStrings(args map[string]any, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, fmt.Errorf("missing argument %q", key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("argument %q must be a list, got %T", key, v)
	}
	out := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %q[%d] must be a string, got %T", key, i, item)
		}
		out = append(out, s)
	}
	return out, nil
}
