package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamcore/internal/miniblock"
	"github.com/roach88/streamcore/internal/miniblock/storetest"
	"github.com/roach88/streamcore/internal/protocol"
	"github.com/roach88/streamcore/internal/streamid"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) miniblock.Store {
		return createTestStore(t)
	})
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("synchronous", "1"))
	require.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.verifyPragma("user_version", "1"))
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	id := streamid.MustMake(streamid.PrefixSpace, "00112233445566778899aabbccddeeff00112233")
	chain := storetest.BuildSpaceChain(t, id, 4)

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.CreateStream(ctx, id, chain.Genesis))
	require.NoError(t, s1.WriteMiniblocks(ctx, id, chain.Miniblocks))
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	last, err := s2.LastMiniblockNum(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), last)

	rng, err := s2.GetMiniblocks(ctx, id, 4, 5)
	require.NoError(t, err)
	require.Len(t, rng.Miniblocks, 1)
	assert.Equal(t, chain.Miniblocks[3].Hash, rng.Miniblocks[0].Hash)
}

func TestWriteMiniblocks_AtomicBatch(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	id := streamid.MustMake(streamid.PrefixSpace, "00112233445566778899aabbccddeeff00112233")
	chain := storetest.BuildSpaceChain(t, id, 3)
	require.NoError(t, s.CreateStream(ctx, id, chain.Genesis))

	// 1 is valid but 3 leaves a gap: nothing of the batch is kept.
	batch := []*protocol.Miniblock{chain.Miniblocks[0], chain.Miniblocks[2]}
	require.Error(t, s.WriteMiniblocks(ctx, id, batch))

	last, err := s.LastMiniblockNum(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	rng, err := s.GetMiniblocks(ctx, id, 0, 10)
	require.NoError(t, err)
	assert.Len(t, rng.Miniblocks, 1)
}
