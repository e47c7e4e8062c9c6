// Package streamid encodes and decodes typed, fixed-length stream identifiers.
//
// A stream id is 32 bytes rendered as 64 lowercase hex characters. The first
// byte names the stream kind; the remaining 31 bytes carry a kind-specific
// identity (a wallet or contract address, or random bytes), right-padded
// with zeros.
//
// Identity length rules:
//   - The identity is either exactly the expected length for its prefix, or
//   - it is zero padded out to PaddedIdentityLength (62 hex chars).
//
// Anything in between is rejected with ErrInvalidStreamIdParts.
package streamid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// ByteLength is the size of a stream id in bytes.
	ByteLength = 32
	// StringLength is the size of a stream id in hex characters.
	StringLength = ByteLength * 2
	// PaddedIdentityLength is the shared padding boundary for identities.
	PaddedIdentityLength = StringLength - 2
	// AddressIdentityLength is the hex length of a 20-byte address.
	AddressIdentityLength = 40
	// ChannelSuffixLength is the number of hex chars appended to a space
	// identity to form a channel identity.
	ChannelSuffixLength = PaddedIdentityLength - AddressIdentityLength
)

// ErrInvalidStreamIdParts is returned for unknown prefixes, non-hex
// identities and malformed length or padding.
var ErrInvalidStreamIdParts = errors.New("invalid stream id parts")

// Prefix is the kind byte of a stream id, as two lowercase hex chars.
type Prefix string

const (
	PrefixSpace           Prefix = "10"
	PrefixChannel         Prefix = "20"
	PrefixDM              Prefix = "88"
	PrefixGDM             Prefix = "77"
	PrefixMedia           Prefix = "ff"
	PrefixUser            Prefix = "a8"
	PrefixUserMetadata    Prefix = "ad"
	PrefixUserInbox       Prefix = "a1"
	PrefixUserSettings    Prefix = "a5"
	PrefixGenericMetadata Prefix = "dd"
)

var expectedIdentityLength = map[Prefix]int{
	PrefixSpace:           AddressIdentityLength,
	PrefixChannel:         PaddedIdentityLength,
	PrefixDM:              PaddedIdentityLength,
	PrefixGDM:             PaddedIdentityLength,
	PrefixMedia:           PaddedIdentityLength,
	PrefixUser:            AddressIdentityLength,
	PrefixUserMetadata:    AddressIdentityLength,
	PrefixUserInbox:       AddressIdentityLength,
	PrefixUserSettings:    AddressIdentityLength,
	PrefixGenericMetadata: 14,
}

var prefixNames = map[Prefix]string{
	PrefixSpace:           "space",
	PrefixChannel:         "channel",
	PrefixDM:              "dm",
	PrefixGDM:             "gdm",
	PrefixMedia:           "media",
	PrefixUser:            "user",
	PrefixUserMetadata:    "user_metadata",
	PrefixUserInbox:       "user_inbox",
	PrefixUserSettings:    "user_settings",
	PrefixGenericMetadata: "metadata",
}

// Valid reports whether p is one of the allowed prefixes.
func (p Prefix) Valid() bool {
	_, ok := expectedIdentityLength[p]
	return ok
}

// String returns the human readable kind name, or the raw hex if unknown.
func (p Prefix) String() string {
	if name, ok := prefixNames[p]; ok {
		return name
	}
	return string(p)
}

// ExpectedIdentityLength returns the unpadded identity length in hex chars.
func (p Prefix) ExpectedIdentityLength() int {
	return expectedIdentityLength[p]
}

// Prefixes returns all allowed prefixes in a stable order.
func Prefixes() []Prefix {
	return []Prefix{
		PrefixSpace, PrefixChannel, PrefixDM, PrefixGDM, PrefixMedia,
		PrefixUser, PrefixUserMetadata, PrefixUserInbox, PrefixUserSettings,
		PrefixGenericMetadata,
	}
}

// PrefixByName resolves a kind name such as "channel" to its prefix.
func PrefixByName(name string) (Prefix, bool) {
	for p, n := range prefixNames {
		if n == name {
			return p, true
		}
	}
	return "", false
}

// ID is a validated stream id in its 64-char lowercase hex form.
// The zero value is not a valid id.
type ID string

// Make builds a stream id from a prefix and an identity.
// The identity is lowercased and an optional 0x prefix is stripped.
func Make(prefix Prefix, identity string) (ID, error) {
	identity = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(identity, "0x"), "0X"))
	if err := checkParts(prefix, identity); err != nil {
		return "", err
	}
	s := string(prefix) + identity + strings.Repeat("0", PaddedIdentityLength-len(identity))
	return ID(s), nil
}

// MustMake is like Make but panics on error.
// Use only in tests or with constant inputs.
func MustMake(prefix Prefix, identity string) ID {
	id, err := Make(prefix, identity)
	if err != nil {
		panic(err)
	}
	return id
}

func checkParts(prefix Prefix, identity string) error {
	expected, ok := expectedIdentityLength[prefix]
	if !ok {
		return fmt.Errorf("%w: unknown prefix %q", ErrInvalidStreamIdParts, prefix)
	}
	if !isHex(identity) {
		return fmt.Errorf("%w: identity is not hex", ErrInvalidStreamIdParts)
	}
	switch {
	case len(identity) == expected:
		return nil
	case len(identity) == PaddedIdentityLength:
		if !isZeroPadded(identity, expected) {
			return fmt.Errorf("%w: bad padding for prefix %s", ErrInvalidStreamIdParts, prefix)
		}
		return nil
	default:
		return fmt.Errorf("%w: identity length %d for prefix %s, want %d or %d",
			ErrInvalidStreamIdParts, len(identity), prefix, expected, PaddedIdentityLength)
	}
}

func isZeroPadded(identity string, expected int) bool {
	for i := expected; i < len(identity); i++ {
		if identity[i] != '0' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Parse validates a 64-char hex stream id. Upper case input is accepted and
// normalized.
func Parse(s string) (ID, error) {
	s = strings.ToLower(strings.TrimPrefix(s, "0x"))
	if len(s) != StringLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidStreamIdParts, len(s))
	}
	return Make(Prefix(s[:2]), s[2:])
}

// FromBytes decodes a 32-byte stream id.
func FromBytes(b []byte) (ID, error) {
	if len(b) != ByteLength {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidStreamIdParts, len(b))
	}
	return Parse(hex.EncodeToString(b))
}

// Bytes returns the 32-byte form. Bytes of an invalid id are nil.
func (id ID) Bytes() []byte {
	b, err := hex.DecodeString(string(id))
	if err != nil || len(b) != ByteLength {
		return nil
	}
	return b
}

func (id ID) String() string { return string(id) }

// Prefix returns the kind prefix.
func (id ID) Prefix() Prefix {
	if len(id) < 2 {
		return ""
	}
	return Prefix(id[:2])
}

// Kind returns the kind name of the prefix, e.g. "space".
func (id ID) Kind() string { return id.Prefix().String() }

// Identity returns the unpadded identity for fixed-length kinds, and the
// full 62-char identity otherwise.
func (id ID) Identity() string {
	if len(id) != StringLength {
		return ""
	}
	n := id.Prefix().ExpectedIdentityLength()
	if n == 0 {
		return ""
	}
	return string(id[2 : 2+n])
}

// Valid reports whether id passes full validation.
func (id ID) Valid() bool {
	_, err := Parse(string(id))
	return err == nil
}

func randomHex(n int) string {
	b := make([]byte, n/2)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}
