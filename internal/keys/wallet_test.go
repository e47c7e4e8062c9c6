package keys

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/canon"
)

func TestWalletFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := WalletFromSeed(seed)
	require.NoError(t, err)
	b, err := WalletFromSeed(seed)
	require.NoError(t, err)

	assert.Equal(t, a.Address(), b.Address())
	assert.Len(t, a.Address(), AddressLength)
	assert.Len(t, a.AddressHex(), 42)
	assert.Len(t, a.PublicKey(), 65)
}

// Private key 1 is the secp256k1 generator point, whose Ethereum address
// is well known.
func TestWalletAddressMatchesEthereum(t *testing.T) {
	w, err := WalletFromHexSeed("0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0x7e5f4552091a69125d5dfcb7b8c2659029395bdf", w.AddressHex())
}

func TestWalletFromSeedRejectsBadSeeds(t *testing.T) {
	_, err := WalletFromSeed([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = WalletFromSeed(make([]byte, 32))
	assert.Error(t, err, "zero key")

	_, err = WalletFromSeed(bytes.Repeat([]byte{0xff}, 32))
	assert.Error(t, err, "key above the curve order")
}

func TestSignVerify(t *testing.T) {
	w, err := NewWallet()
	require.NoError(t, err)
	hash := canon.Keccak256([]byte("event"))

	sig, err := w.Sign(hash)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.LessOrEqual(t, sig[64], byte(1))
	require.NoError(t, Verify(w.Address(), w.PublicKey(), hash, sig))
	require.NoError(t, Verify(w.Address(), nil, hash, sig), "key recovered from signature")

	other, err := NewWallet()
	require.NoError(t, err)
	assert.Error(t, Verify(other.Address(), w.PublicKey(), hash, sig), "address mismatch")
	assert.Error(t, Verify(w.Address(), other.PublicKey(), hash, sig), "public key mismatch")

	tampered := canon.Keccak256([]byte("other"))
	assert.Error(t, Verify(w.Address(), w.PublicKey(), tampered, sig), "wrong hash")

	badV := bytes.Clone(sig)
	badV[64] = 5
	assert.Error(t, Verify(w.Address(), nil, hash, badV))
	assert.Error(t, Verify(w.Address(), nil, hash, sig[:64]))
}

func TestRecover(t *testing.T) {
	w, err := WalletFromHexSeed(hex.EncodeToString(bytes.Repeat([]byte{0x42}, 32)))
	require.NoError(t, err)
	hash := canon.Keccak256([]byte("recover me"))
	sig, err := w.Sign(hash)
	require.NoError(t, err)

	pub, err := Recover(hash, sig)
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), pub.SerializeUncompressed())
	assert.Equal(t, w.Address(), AddressFromPublicKey(pub))
}

func TestSignRejectsWrongHashLength(t *testing.T) {
	w, err := NewWallet()
	require.NoError(t, err)
	_, err = w.Sign([]byte("short"))
	assert.Error(t, err)
}
