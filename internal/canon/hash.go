package canon

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Domain prefixes for hashed objects. The version suffix allows the
// algorithm to change without colliding with old hashes.
const (
	DomainEvent     = "streamcore/event/v1"
	DomainMiniblock = "streamcore/miniblock/v1"
	DomainSnapshot  = "streamcore/snapshot/v1"
)

// HashLength is the size of every hash produced by this package.
const HashLength = 32

// Keccak256 hashes the concatenation of data with legacy Keccak-256.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// HashWithDomain computes Keccak256(domain || 0x00 || data).
// The zero byte keeps domain and data from running into each other.
func HashWithDomain(domain string, data []byte) []byte {
	return Keccak256([]byte(domain), []byte{0x00}, data)
}

// HashValue canonically encodes v and hashes it under domain.
func HashValue(domain string, v any) ([]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", domain, err)
	}
	return HashWithDomain(domain, b), nil
}

// MustHashValue is like HashValue but panics on error.
func MustHashValue(domain string, v any) []byte {
	h, err := HashValue(domain, v)
	if err != nil {
		panic(err)
	}
	return h
}

// Hex renders a hash for logs.
func Hex(h []byte) string {
	return hex.EncodeToString(h)
}
