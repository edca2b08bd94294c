package cf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/types"
)

func TestBlockLevelKeyOrdering(t *testing.T) {
	var a, b types.BlockHash
	a[0], b[0] = 0xff, 0x00

	// Level dominates the hash in key order.
	low := BlockLevelKey(41, a)
	high := BlockLevelKey(42, b)
	require.Equal(t, -1, bytes.Compare(low, high))

	level, hash, ok := SplitBlockLevelKey(high)
	require.True(t, ok)
	require.Equal(t, uint32(42), level)
	require.Equal(t, b, hash)

	_, _, ok = SplitBlockLevelKey(high[:10])
	require.False(t, ok)
}

func TestBlockLevelRange(t *testing.T) {
	start, limit := BlockLevelRange(5, 9)
	require.Equal(t, BlockLevelKey(5, types.BlockHash{})[:4], start)

	// The limit excludes nothing from level 9.
	var maxHash types.BlockHash
	for i := range maxHash {
		maxHash[i] = 0xff
	}
	require.Equal(t, 1, bytes.Compare(limit, BlockLevelKey(9, maxHash)))

	// Upper bound at the top level is unbounded.
	_, limit = BlockLevelRange(0, ^uint32(0))
	require.Nil(t, limit)
}

func TestBlockPrefixRange(t *testing.T) {
	var h types.BlockHash
	copy(h[:], "some block hash")

	start, limit := BlockPrefixRange(h)
	require.Equal(t, h.Bytes(), start)

	// Every key with the prefix sorts inside [start, limit).
	inside := append(h.Bytes(), 0xff, 0xff)
	require.True(t, bytes.Compare(start, inside) <= 0)
	require.Equal(t, -1, bytes.Compare(inside, limit))

	// All-0xff prefix has no upper bound.
	var top types.BlockHash
	for i := range top {
		top[i] = 0xff
	}
	_, limit = BlockPrefixRange(top)
	require.Nil(t, limit)
}
