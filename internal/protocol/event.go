package protocol

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/roach88/streamcore/internal/canon"
	"github.com/roach88/streamcore/internal/keys"
)

// StreamEvent is the signed content of an envelope. It is never mutated
// after signing. Ephemeral events are delivered to subscribers but never
// enter a miniblock.
type StreamEvent struct {
	CreatorAddress    Bytes   `json:"creatorAddress"`
	Salt              Bytes   `json:"salt"`
	PrevMiniblockHash Bytes   `json:"prevMiniblockHash,omitempty"`
	CreatedAtEpochMs  int64   `json:"createdAtEpochMs"`
	Payload           Payload `json:"payload"`
	Tags              *Tags   `json:"tags,omitempty"`
	Ephemeral         bool    `json:"ephemeral,omitempty"`
}

// Envelope is the unit of transport: canonical event bytes, their hash, and
// the creator's signature over the hash.
type Envelope struct {
	Event           Bytes `json:"event"`
	Hash            Bytes `json:"hash"`
	Signature       Bytes `json:"signature"`
	SignerPublicKey Bytes `json:"signerPublicKey"`
}

// Signer signs event hashes. *keys.Wallet implements it.
type Signer interface {
	Address() []byte
	PublicKey() []byte
	Sign(hash []byte) ([]byte, error)
}

// ParsedEvent is an envelope whose event has been decoded.
type ParsedEvent struct {
	Event    *StreamEvent
	Envelope *Envelope
	Hash     Bytes
}

// Content returns the payload content.
func (e *ParsedEvent) Content() Content { return e.Event.Payload.Content }

// Creator returns the creator address.
func (e *ParsedEvent) Creator() Bytes { return e.Event.CreatorAddress }

// IsEphemeral reports whether the event bypasses miniblocks.
func (e *ParsedEvent) IsEphemeral() bool { return e.Event.Ephemeral }

// ShortHash is a log-friendly prefix of the hash.
func (e *ParsedEvent) ShortHash() string {
	h := e.Hash.Hex()
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// EventHash hashes canonical event bytes.
func EventHash(eventBytes []byte) Bytes {
	return canon.HashWithDomain(canon.DomainEvent, eventBytes)
}

// NewSalt returns 16 random bytes.
func NewSalt() Bytes {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return b
}

// MakeEvent builds an unsigned event for signer with a random salt.
func MakeEvent(signer Signer, content Content, prevMiniblockHash []byte, createdAtMs int64) *StreamEvent {
	return &StreamEvent{
		CreatorAddress:    signer.Address(),
		Salt:              NewSalt(),
		PrevMiniblockHash: prevMiniblockHash,
		CreatedAtEpochMs:  createdAtMs,
		Payload:           NewPayload(content),
	}
}

// MakeEnvelope canonically encodes ev, hashes it and signs the hash.
func MakeEnvelope(signer Signer, ev *StreamEvent) (*Envelope, error) {
	if ev.Payload.Content == nil {
		return nil, fmt.Errorf("make envelope: %w", ErrUnknownPayloadVariant)
	}
	b, err := canon.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("make envelope: %w", err)
	}
	hash := EventHash(b)
	sig, err := signer.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("sign event: %w", err)
	}
	return &Envelope{
		Event:           b,
		Hash:            hash,
		Signature:       sig,
		SignerPublicKey: signer.PublicKey(),
	}, nil
}

// MakeParsedEvent is MakeEnvelope followed by parsing, for producers that
// need both forms.
func MakeParsedEvent(signer Signer, ev *StreamEvent) (*ParsedEvent, error) {
	env, err := MakeEnvelope(signer, ev)
	if err != nil {
		return nil, err
	}
	return &ParsedEvent{Event: ev, Envelope: env, Hash: env.Hash}, nil
}

// ParseEnvelope decodes env. With verify set, the hash is recomputed and the
// signature checked against the creator address; with verify unset only the
// decoding is done (trusted or test transports).
func ParseEnvelope(env *Envelope, verify bool) (*ParsedEvent, error) {
	if env == nil || len(env.Event) == 0 {
		return nil, NewError(CodeBadEvent, "empty envelope")
	}
	var ev StreamEvent
	if err := json.Unmarshal(env.Event, &ev); err != nil {
		return nil, WrapError(CodeBadEvent, err, "decode event")
	}
	if verify {
		hash := EventHash(env.Event)
		if !hash.Equal(env.Hash) {
			return nil, NewError(CodeBadEventHash, "event hash mismatch")
		}
		if err := keys.Verify(ev.CreatorAddress, env.SignerPublicKey, env.Hash, env.Signature); err != nil {
			return nil, WrapError(CodeBadEventSignature, err, "verify event")
		}
	}
	hash := env.Hash
	if len(hash) == 0 {
		hash = EventHash(env.Event)
	}
	return &ParsedEvent{Event: &ev, Envelope: env, Hash: hash}, nil
}

// ParseEnvelopes parses a list, stopping at the first failure.
func ParseEnvelopes(envs []*Envelope, verify bool) ([]*ParsedEvent, error) {
	out := make([]*ParsedEvent, 0, len(envs))
	for i, env := range envs {
		pe, err := ParseEnvelope(env, verify)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, pe)
	}
	return out, nil
}
