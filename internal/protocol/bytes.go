package protocol

import (
	"bytes"
	"encoding/hex"
	"strings"
)

// Bytes is a byte string that encodes as lowercase hex in JSON.
// Addresses, hashes, stream ids and signatures all use it.
type Bytes []byte

// MarshalText implements encoding.TextMarshaler.
func (b Bytes) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(b)))
	hex.Encode(out, b)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler. A 0x prefix is accepted.
func (b *Bytes) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "0x")
	if s == "" {
		*b = nil
		return nil
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

// Hex returns the lowercase hex form without prefix.
func (b Bytes) Hex() string { return hex.EncodeToString(b) }

func (b Bytes) String() string { return "0x" + b.Hex() }

// Equal reports byte equality.
func (b Bytes) Equal(other []byte) bool { return bytes.Equal(b, other) }

// Clone returns a copy that does not alias b.
func (b Bytes) Clone() Bytes {
	if b == nil {
		return nil
	}
	return Bytes(bytes.Clone(b))
}

// BytesFromHex decodes a hex string, with or without 0x.
func BytesFromHex(s string) (Bytes, error) {
	var b Bytes
	if err := b.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return b, nil
}

// MustBytesFromHex is like BytesFromHex but panics on error.
func MustBytesFromHex(s string) Bytes {
	b, err := BytesFromHex(s)
	if err != nil {
		panic(err)
	}
	return b
}
