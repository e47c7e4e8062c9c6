// Package keys holds wallet signing keys and address derivation.
//
// Wallets are secp256k1 keys. Events are signed over their 32-byte event
// hash with a 65-byte recoverable signature laid out as R || S || V, V in
// {0, 1}. A wallet address is the last 20 bytes of Keccak256 of the
// uncompressed public key without its 0x04 prefix, so addresses match
// Ethereum wallets.
package keys

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/roach88/streamcore/internal/canon"
)

const (
	// AddressLength is the size of a wallet address in bytes.
	AddressLength = 20
	// SeedLength is the size of a private key seed in bytes.
	SeedLength = 32
	// SignatureLength is the size of a recoverable signature.
	SignatureLength = 65
)

// Wallet is a secp256k1 signing key with its derived address.
type Wallet struct {
	private *secp256k1.PrivateKey
	public  []byte // uncompressed, 65 bytes
	address []byte
}

// NewWallet generates a fresh random wallet.
func NewWallet() (*Wallet, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return newWallet(priv), nil
}

// WalletFromSeed builds a deterministic wallet whose private key is seed.
func WalletFromSeed(seed []byte) (*Wallet, error) {
	if len(seed) != SeedLength {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedLength, len(seed))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(seed); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("seed is not a valid secp256k1 private key")
	}
	return newWallet(secp256k1.NewPrivateKey(&scalar)), nil
}

// WalletFromHexSeed is WalletFromSeed for a hex encoded seed.
func WalletFromHexSeed(s string) (*Wallet, error) {
	seed, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return WalletFromSeed(seed)
}

func newWallet(priv *secp256k1.PrivateKey) *Wallet {
	pub := priv.PubKey()
	return &Wallet{private: priv, public: pub.SerializeUncompressed(), address: AddressFromPublicKey(pub)}
}

// Address returns the 20-byte wallet address.
func (w *Wallet) Address() []byte { return bytes.Clone(w.address) }

// AddressHex returns the 0x prefixed address.
func (w *Wallet) AddressHex() string { return "0x" + hex.EncodeToString(w.address) }

// PublicKey returns the 65-byte uncompressed public key.
func (w *Wallet) PublicKey() []byte { return bytes.Clone(w.public) }

// Sign signs a 32-byte hash.
func (w *Wallet) Sign(hash []byte) ([]byte, error) {
	if len(hash) != canon.HashLength {
		return nil, fmt.Errorf("sign: hash must be %d bytes, got %d", canon.HashLength, len(hash))
	}
	// SignCompact yields V || R || S with V = 27 + recovery id.
	compact := ecdsa.SignCompact(w.private, hash, false)
	sig := make([]byte, SignatureLength)
	copy(sig, compact[1:])
	sig[64] = compact[0] - 27
	return sig, nil
}

// AddressFromPublicKey derives the wallet address of a public key.
func AddressFromPublicKey(pub *secp256k1.PublicKey) []byte {
	sum := canon.Keccak256(pub.SerializeUncompressed()[1:])
	return sum[len(sum)-AddressLength:]
}

// Recover returns the public key that produced sig over hash.
func Recover(hash, sig []byte) (*secp256k1.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	if sig[64] > 1 {
		return nil, fmt.Errorf("invalid recovery id %d", sig[64])
	}
	compact := make([]byte, SignatureLength)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, fmt.Errorf("recover signer: %w", err)
	}
	return pub, nil
}

// Verify checks that sig over hash was made by the key of address. A
// non-empty pub must be that same key.
func Verify(address, pub, hash, sig []byte) error {
	signer, err := Recover(hash, sig)
	if err != nil {
		return err
	}
	if !bytes.Equal(AddressFromPublicKey(signer), address) {
		return fmt.Errorf("signature does not match address %x", address)
	}
	if len(pub) == 0 {
		return nil
	}
	claimed, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	if !claimed.IsEqual(signer) {
		return fmt.Errorf("public key does not match signer")
	}
	return nil
}
