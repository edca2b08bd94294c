package blockstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/logging"
	"github.com/karthikiyer56/chainstore/pkg/recordlog"
	"github.com/karthikiyer56/chainstore/pkg/stats"
	"github.com/karthikiyer56/chainstore/pkg/store"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

func hashOf(label string) types.BlockHash {
	var h types.BlockHash
	copy(h[:], fmt.Sprintf("%-32s", label))
	return h
}

func newTestStore(t *testing.T) (*Store, *Writer) {
	t.Helper()
	dir := t.TempDir()
	blockLog, err := recordlog.Open(dir, "blocks", recordlog.Options{}, logging.Discard())
	require.NoError(t, err)
	opLog, err := recordlog.Open(dir, "operations", recordlog.Options{}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() {
		opLog.Close()
		blockLog.Close()
	})

	s := New(store.NewMemoryStore(), blockLog, opLog, logging.Discard())
	return s, NewWriter(s, stats.NewWriterStats())
}

func header(label string, level uint32, predecessor types.BlockHash) *types.BlockHeader {
	return &types.BlockHeader{
		Hash:        hashOf(label),
		Level:       level,
		Predecessor: predecessor,
		Timestamp:   time.Unix(1700000000+int64(level)*30, 0).UTC(),
	}
}

// putChain stores genesis plus blocks through level top.
func putChain(t *testing.T, w *Writer, top uint32) []*types.BlockHeader {
	t.Helper()
	headers := make([]*types.BlockHeader, top+1)
	headers[0] = header("G", 0, types.BlockHash{})
	require.NoError(t, w.PutBlock(headers[0], []byte("genesis")))
	for level := uint32(1); level <= top; level++ {
		headers[level] = header(fmt.Sprintf("B%d", level), level, headers[level-1].Hash)
		require.NoError(t, w.PutBlock(headers[level], []byte(fmt.Sprintf("block %d", level))))
	}
	return headers
}

func TestPutGetBlock(t *testing.T) {
	s, w := newTestStore(t)
	headers := putChain(t, w, 3)

	for level, want := range headers {
		got, found, err := s.GetBlock(want.Hash)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, want.Hash, got.Hash)
		require.Equal(t, want.Level, got.Level)
		require.Equal(t, want.Predecessor, got.Predecessor)
		require.True(t, want.Timestamp.Equal(got.Timestamp))

		raw, found, err := s.GetBlockRaw(want.Hash)
		require.NoError(t, err)
		require.True(t, found)
		if level == 0 {
			require.Equal(t, []byte("genesis"), raw)
		} else {
			require.Equal(t, []byte(fmt.Sprintf("block %d", level)), raw)
		}
	}

	// Absence is a boolean, not an error.
	_, found, err := s.GetBlock(hashOf("unknown"))
	require.NoError(t, err)
	require.False(t, found)

	has, err := s.HasBlock(headers[2].Hash)
	require.NoError(t, err)
	require.True(t, has)
}

func TestDuplicateBlockRejected(t *testing.T) {
	_, w := newTestStore(t)
	headers := putChain(t, w, 2)

	err := w.PutBlock(headers[2], []byte("block 2 again"))
	require.True(t, types.IsDuplicateKey(err))

	// The stored bytes are unchanged.
	raw, _, err := w.Store().GetBlockRaw(headers[2].Hash)
	require.NoError(t, err)
	require.Equal(t, []byte("block 2"), raw)
}

func TestPutBlockValidatesChainShape(t *testing.T) {
	_, w := newTestStore(t)
	headers := putChain(t, w, 1)

	// Unknown predecessor.
	err := w.PutBlock(header("orphan", 5, hashOf("nowhere")), []byte("x"))
	require.True(t, types.IsNotFound(err))

	// Level not predecessor level + 1.
	err = w.PutBlock(header("skip", 3, headers[1].Hash), []byte("x"))
	require.True(t, types.IsCorrupted(err))

	// Genesis with a predecessor.
	err = w.PutBlock(header("bad genesis", 0, headers[0].Hash), []byte("x"))
	require.True(t, types.IsCorrupted(err))
}

func TestMetadataLifecycle(t *testing.T) {
	s, w := newTestStore(t)
	headers := putChain(t, w, 2)

	meta, found, err := s.GetMetadata(headers[1].Hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.StatusUnknown, meta.Status)
	require.False(t, meta.IsMainChain)
	require.Equal(t, []types.BlockHash{headers[2].Hash}, meta.Successors)

	require.NoError(t, w.UpdateValidationStatus(headers[1].Hash, types.StatusApplied))
	require.NoError(t, w.SetMainChain(headers[1].Hash, true))

	meta, _, err = s.GetMetadata(headers[1].Hash)
	require.NoError(t, err)
	require.Equal(t, types.StatusApplied, meta.Status)
	require.True(t, meta.IsMainChain)

	// Mutations on unknown blocks fail with NotFound.
	require.True(t, types.IsNotFound(w.UpdateValidationStatus(hashOf("unknown"), types.StatusApplied)))
	require.True(t, types.IsNotFound(w.SetMainChain(hashOf("unknown"), true)))
}

func TestForkSuccessors(t *testing.T) {
	s, w := newTestStore(t)
	headers := putChain(t, w, 3)

	fork := header("B3'", 3, headers[2].Hash)
	require.NoError(t, w.PutBlock(fork, []byte("fork")))

	meta, _, err := s.GetMetadata(headers[2].Hash)
	require.NoError(t, err)
	require.Equal(t, []types.BlockHash{headers[3].Hash, fork.Hash}, meta.Successors)
}

func TestOperations(t *testing.T) {
	s, w := newTestStore(t)
	headers := putChain(t, w, 1)
	block := headers[1].Hash

	require.NoError(t, w.PutOperation(block, 0, []byte("op zero")))
	require.NoError(t, w.PutOperation(block, 1, []byte("op one")))

	raw, status, found, err := s.GetOperation(block, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("op zero"), raw)
	require.Equal(t, types.StatusUnknown, status)

	_, _, found, err = s.GetOperation(block, 7)
	require.NoError(t, err)
	require.False(t, found)

	// Duplicate (block, index).
	err = w.PutOperation(block, 1, []byte("op one again"))
	require.True(t, types.IsDuplicateKey(err))

	// Operations of unknown blocks are rejected.
	err = w.PutOperation(hashOf("unknown"), 0, []byte("x"))
	require.True(t, types.IsNotFound(err))
}

func TestAncestorAt(t *testing.T) {
	s, w := newTestStore(t)
	headers := putChain(t, w, 8)

	got, err := s.AncestorAt(headers[8].Hash, 5)
	require.NoError(t, err)
	require.Equal(t, headers[3].Hash, got)

	got, err = s.AncestorAt(headers[8].Hash, 8)
	require.NoError(t, err)
	require.Equal(t, headers[0].Hash, got)

	_, err = s.AncestorAt(headers[8].Hash, 9)
	require.True(t, types.IsInvalidDistance(err))

	_, err = s.AncestorAt(hashOf("unknown"), 1)
	require.True(t, types.IsNotFound(err))
}

func TestIterateLevelRange(t *testing.T) {
	s, w := newTestStore(t)
	headers := putChain(t, w, 6)
	fork := header("B4'", 4, headers[3].Hash)
	require.NoError(t, w.PutBlock(fork, []byte("fork")))

	var got []LevelEntry
	require.NoError(t, s.IterateLevelRange(2, 4, func(e LevelEntry) bool {
		got = append(got, e)
		return true
	}))

	require.Len(t, got, 4)
	require.Equal(t, uint32(2), got[0].Level)
	require.Equal(t, headers[2].Hash, got[0].Hash)
	require.Equal(t, uint32(3), got[1].Level)

	// Both level-4 blocks appear; hash order within the level.
	levels := map[types.BlockHash]uint32{got[2].Hash: got[2].Level, got[3].Hash: got[3].Level}
	require.Equal(t, uint32(4), levels[headers[4].Hash])
	require.Equal(t, uint32(4), levels[fork.Hash])

	// Early stop.
	count := 0
	require.NoError(t, s.IterateLevelRange(0, 6, func(e LevelEntry) bool {
		count++
		return count < 3
	}))
	require.Equal(t, 3, count)

	// Empty range.
	require.NoError(t, s.IterateLevelRange(40, 50, func(e LevelEntry) bool {
		t.Fatal("unexpected entry")
		return false
	}))
}

func TestHeadTracking(t *testing.T) {
	s, w := newTestStore(t)

	_, _, found, err := s.Head()
	require.NoError(t, err)
	require.False(t, found)

	headers := putChain(t, w, 5)

	hash, level, found, err := s.Head()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, headers[5].Hash, hash)
	require.Equal(t, uint32(5), level)

	// A fork at a lower level does not move the head.
	fork := header("B3'", 3, headers[2].Hash)
	require.NoError(t, w.PutBlock(fork, []byte("fork")))

	hash, level, _, err = s.Head()
	require.NoError(t, err)
	require.Equal(t, headers[5].Hash, hash)
	require.Equal(t, uint32(5), level)
}
