package predindex

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/store"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

func hashOf(label string) types.BlockHash {
	var h types.BlockHash
	copy(h[:], fmt.Sprintf("%-32s", label))
	return h
}

// buildChain stores genesis plus blocks at levels 1..top, returning the
// hash at each level.
func buildChain(t *testing.T, ix *Index, db interfaces.IndexedStore, top uint32) []types.BlockHash {
	t.Helper()
	hashes := make([]types.BlockHash, top+1)
	hashes[0] = hashOf("G")
	for level := uint32(1); level <= top; level++ {
		hashes[level] = hashOf(fmt.Sprintf("B%d", level))
		batch := &interfaces.Batch{}
		require.NoError(t, ix.BuildEntries(batch, hashes[level], hashes[level-1], level))
		require.NoError(t, db.Write(batch))
	}
	return hashes
}

func TestEntrySetShape(t *testing.T) {
	db := store.NewMemoryStore()
	ix := New(db)
	hashes := buildChain(t, ix, db, 8)

	// Genesis has no entries.
	n, err := ix.EntryCount(hashes[0])
	require.NoError(t, err)
	require.Equal(t, 0, n)

	// A block at level L has floor(log2(L))+1 entries.
	for level, want := range map[uint32]int{1: 1, 2: 2, 3: 2, 4: 3, 7: 3, 8: 4} {
		n, err := ix.EntryCount(hashes[level])
		require.NoError(t, err)
		require.Equal(t, want, n, "level %d", level)
	}

	// B8's entries point 1, 2, 4, 8 levels back.
	for exp, wantLevel := range map[uint8]uint32{0: 7, 1: 6, 2: 4, 3: 0} {
		got, found, err := ix.Entry(hashes[8], exp)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, hashes[wantLevel], got, "entry(B8, %d)", exp)
	}
}

func TestAncestorAt(t *testing.T) {
	db := store.NewMemoryStore()
	ix := New(db)
	hashes := buildChain(t, ix, db, 8)

	// Distance 0 is the block itself.
	got, err := ix.AncestorAt(hashes[8], 8, 0)
	require.NoError(t, err)
	require.Equal(t, hashes[8], got)

	// 5 = 4 + 1: two hops through the sparse entries.
	got, err = ix.AncestorAt(hashes[8], 8, 5)
	require.NoError(t, err)
	require.Equal(t, hashes[3], got)

	// Full distance back to genesis.
	got, err = ix.AncestorAt(hashes[8], 8, 8)
	require.NoError(t, err)
	require.Equal(t, hashes[0], got)

	// Every distance against the plain chain walk.
	for d := uint64(0); d <= 8; d++ {
		got, err := ix.AncestorAt(hashes[8], 8, d)
		require.NoError(t, err)
		require.Equal(t, hashes[8-d], got, "distance %d", d)
	}
}

func TestAncestorBeyondGenesis(t *testing.T) {
	db := store.NewMemoryStore()
	ix := New(db)
	hashes := buildChain(t, ix, db, 4)

	_, err := ix.AncestorAt(hashes[4], 4, 5)
	require.True(t, types.IsInvalidDistance(err))

	_, err = ix.AncestorAt(hashes[0], 0, 1)
	require.True(t, types.IsInvalidDistance(err))
}

func TestForkGetsOwnEntries(t *testing.T) {
	db := store.NewMemoryStore()
	ix := New(db)
	hashes := buildChain(t, ix, db, 4)

	// B4' also extends B3.
	fork := hashOf("B4'")
	batch := &interfaces.Batch{}
	require.NoError(t, ix.BuildEntries(batch, fork, hashes[3], 4))
	require.NoError(t, db.Write(batch))

	got, err := ix.AncestorAt(fork, 4, 3)
	require.NoError(t, err)
	require.Equal(t, hashes[1], got)

	got, err = ix.AncestorAt(fork, 4, 4)
	require.NoError(t, err)
	require.Equal(t, hashes[0], got)

	// The original B4 entries are untouched.
	for exp, wantLevel := range map[uint8]uint32{0: 3, 1: 2, 2: 0} {
		got, found, err := ix.Entry(hashes[4], exp)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, hashes[wantLevel], got, "entry(B4, %d)", exp)
	}
}

func TestDamagedEntryFailsClosed(t *testing.T) {
	db := store.NewMemoryStore()
	ix := New(db)
	hashes := buildChain(t, ix, db, 8)

	// Overwrite entry(B6, 0) with a truncated value to simulate damage.
	batch := &interfaces.Batch{}
	batch.Put(cf.PredecessorIndex, cf.PredecessorKey(hashes[6], 0), []byte{0x01})
	require.NoError(t, db.Write(batch))

	// ancestor_at(B8, 4) resolves via entry(B8, 2) only and still works.
	got, err := ix.AncestorAt(hashes[8], 8, 4)
	require.NoError(t, err)
	require.Equal(t, hashes[4], got)

	// ancestor_at(B8, 3) hops through B6 and needs entry(B6, 0); the
	// damaged entry must surface as Corrupted, never a wrong ancestor.
	_, err = ix.AncestorAt(hashes[8], 8, 3)
	require.True(t, types.IsCorrupted(err))
}
