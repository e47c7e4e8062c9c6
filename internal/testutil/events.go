package testutil

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/keys"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// Wallet returns the n-th deterministic test wallet. The same n always
// yields the same address.
func Wallet(t testing.TB, n int) *keys.Wallet {
	t.Helper()
	seed := make([]byte, 32)
	copy(seed, "streamcore-test-wallet")
	binary.BigEndian.PutUint32(seed[28:], uint32(n))
	w, err := keys.WalletFromSeed(seed)
	require.NoError(t, err)
	return w
}

// Builder signs events with deterministic salts and timestamps, so a test
// that builds the same events twice gets the same hashes.
type Builder struct {
	t     testing.TB
	clock *Clock

	mu   sync.Mutex
	salt uint64
}

// NewBuilder creates an event builder.
func NewBuilder(t testing.TB) *Builder {
	return &Builder{t: t, clock: NewClock()}
}

// Event signs content as w on top of prevMiniblockHash.
func (b *Builder) Event(w *keys.Wallet, content protocol.Content, prevMiniblockHash []byte) *protocol.ParsedEvent {
	b.t.Helper()
	return b.make(w, content, prevMiniblockHash, false)
}

// Ephemeral signs content as an ephemeral event.
func (b *Builder) Ephemeral(w *keys.Wallet, content protocol.Content, prevMiniblockHash []byte) *protocol.ParsedEvent {
	b.t.Helper()
	return b.make(w, content, prevMiniblockHash, true)
}

// Header signs a miniblock header event as w.
func (b *Builder) Header(w *keys.Wallet, mb *protocol.Miniblock) *protocol.ParsedEvent {
	b.t.Helper()
	return b.make(w, &protocol.MiniblockHeaderContent{Header: mb.Header}, mb.Header.PrevMiniblockHash, false)
}

func (b *Builder) make(w *keys.Wallet, content protocol.Content, prevMiniblockHash []byte, ephemeral bool) *protocol.ParsedEvent {
	ev := protocol.MakeEvent(w, content, prevMiniblockHash, b.clock.NowMs())
	ev.Salt = b.nextSalt()
	ev.Ephemeral = ephemeral
	pe, err := protocol.MakeParsedEvent(w, ev)
	require.NoError(b.t, err)
	return pe
}

func (b *Builder) nextSalt() protocol.Bytes {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.salt++
	salt := make([]byte, 16)
	binary.BigEndian.PutUint64(salt[8:], b.salt)
	return salt
}

// Address returns w's address as protocol bytes.
func Address(w *keys.Wallet) protocol.Bytes { return w.Address() }

// StreamID builds an id of the given kind from the identity, failing the
// test if it is malformed.
func StreamID(t testing.TB, prefix streamid.Prefix, identity string) streamid.ID {
	t.Helper()
	id, err := streamid.Make(prefix, identity)
	require.NoError(t, err)
	return id
}

// SpaceFor returns a space id derived from a wallet's address.
func SpaceFor(t testing.TB, w *keys.Wallet) streamid.ID {
	t.Helper()
	id, err := streamid.SpaceID(w.AddressHex())
	require.NoError(t, err)
	return id
}

// UserStreamFor returns the user stream id of w for the given prefix.
func UserStreamFor(t testing.TB, prefix streamid.Prefix, w *keys.Wallet) streamid.ID {
	t.Helper()
	return StreamID(t, prefix, w.AddressHex())
}

// Encrypted returns placeholder ciphertext for wrapped payloads.
func Encrypted(text string) *protocol.EncryptedData {
	return &protocol.EncryptedData{Ciphertext: text, Algorithm: "test"}
}

// Join is a member join of addr.
func Join(addr []byte) *protocol.Membership {
	return &protocol.Membership{Op: protocol.MembershipOpJoin, UserAddress: addr, InitiatorAddress: addr}
}

// Leave is a member leave of addr.
func Leave(addr []byte) *protocol.Membership {
	return &protocol.Membership{Op: protocol.MembershipOpLeave, UserAddress: addr, InitiatorAddress: addr}
}

// Solicit asks for sessionIDs on behalf of deviceKey.
func Solicit(deviceKey string, isNewDevice bool, sessionIDs ...string) *protocol.KeySolicitation {
	return &protocol.KeySolicitation{
		DeviceKey:   deviceKey,
		FallbackKey: deviceKey + "-fallback",
		IsNewDevice: isNewDevice,
		SessionIDs:  sessionIDs,
	}
}

// Fulfill answers a solicitation made by addr's deviceKey.
func Fulfill(addr []byte, deviceKey string, sessionIDs ...string) *protocol.KeyFulfillment {
	return &protocol.KeyFulfillment{UserAddress: addr, DeviceKey: deviceKey, SessionIDs: sessionIDs}
}

// Tip is a blockchain transaction carrying a tip.
func Tip(currency []byte, amount uint64, sender, receiver []byte) protocol.BlockchainTransaction {
	return protocol.BlockchainTransaction{Tip: &protocol.Tip{
		Currency: currency,
		Amount:   amount,
		Sender:   sender,
		Receiver: receiver,
	}}
}
