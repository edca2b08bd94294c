// =============================================================================
// pkg/predindex/predindex.go - Binary-Lifting Predecessor Index
// =============================================================================
//
// For every stored block the index holds its ancestor at each power-of-two
// distance: entry(B, i) is the block 2^i levels back from B. That sparse
// set answers "the ancestor of B at distance d" in O(log d) point lookups
// instead of walking the chain record by record.
//
// CONSTRUCTION (when block B at level L with direct predecessor P is
// appended):
//
//	entry(B, 0) = P
//	entry(B, i) = entry(entry(B, i-1), i-1)   while 2^i <= L
//
// Each step reads two already-durable entries of an ancestor; nothing is
// needed that is not committed yet, so the whole set for B can ride in the
// same atomic batch as B's metadata. At most floor(log2(L))+1 entries are
// written per block.
//
// FORKS: a forked block gets its own fresh entry set rooted at its own
// predecessor chain. Entries are immutable once written; adopting a
// different main chain never rewrites the index.
//
// QUERY: binary decomposition of the distance, most-significant bit first.
// A missing required entry means storage corruption and yields Corrupted:
// ancestor results feed consensus-relevant computations and must never be
// approximate.
//
// =============================================================================

package predindex

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

// Index answers ancestor queries against an indexed store.
type Index struct {
	db interfaces.IndexedStore
}

// New creates a predecessor index over db.
func New(db interfaces.IndexedStore) *Index {
	return &Index{db: db}
}

// maxExponent returns the largest i with 2^i <= level, or -1 for level 0.
func maxExponent(level uint32) int {
	if level == 0 {
		return -1
	}
	return bits.Len32(level) - 1
}

// BuildEntries computes the full entry set for a block at the given level
// with the given direct predecessor and adds it to batch. The genesis block
// (level 0) has no entries.
func (ix *Index) BuildEntries(batch *interfaces.Batch, block, predecessor types.BlockHash, level uint32) error {
	maxExp := maxExponent(level)
	if maxExp < 0 {
		return nil
	}

	// pending[i] is entry(block, i); earlier exponents of the block itself
	// are resolved from here, everything else from committed entries.
	pending := make([]types.BlockHash, 0, maxExp+1)
	pending = append(pending, predecessor)

	for i := 1; i <= maxExp; i++ {
		hop := pending[i-1]
		next, err := ix.lookup(hop, uint8(i-1))
		if err != nil {
			return errors.Wrapf(err, "building entry %d for block %s", i, block)
		}
		pending = append(pending, next)
	}

	for i, ancestor := range pending {
		batch.Put(cf.PredecessorIndex, cf.PredecessorKey(block, uint8(i)), ancestor.Bytes())
	}
	return nil
}

// AncestorAt returns the ancestor of block at the given distance. The
// caller supplies the block's level (the block store reads it from the
// header); distance > level fails with InvalidDistance since that ancestor
// would precede genesis.
func (ix *Index) AncestorAt(block types.BlockHash, level uint32, distance uint64) (types.BlockHash, error) {
	if distance == 0 {
		return block, nil
	}
	if distance > uint64(level) {
		return types.BlockHash{}, errors.Wrapf(types.ErrInvalidDistance,
			"distance %d from block %s at level %d", distance, block, level)
	}

	current := block
	remaining := distance
	for remaining > 0 {
		exp := uint8(bits.Len64(remaining) - 1)
		next, err := ix.lookup(current, exp)
		if err != nil {
			return types.BlockHash{}, errors.Wrapf(err,
				"ancestor query distance %d from %s (at hop %s, exponent %d)",
				distance, block, current, exp)
		}
		current = next
		remaining -= uint64(1) << exp
	}
	return current, nil
}

// Entry reads one stored entry: the ancestor of block at distance
// 2^exponent. A missing entry is reported through found, not as an error
// (callers decide whether absence is legal).
func (ix *Index) Entry(block types.BlockHash, exponent uint8) (types.BlockHash, bool, error) {
	value, found, err := ix.db.Get(cf.PredecessorIndex, cf.PredecessorKey(block, exponent))
	if err != nil {
		return types.BlockHash{}, false, err
	}
	if !found {
		return types.BlockHash{}, false, nil
	}
	hash, ok := types.HashFromBytes(value)
	if !ok {
		return types.BlockHash{}, false, errors.Wrapf(types.ErrCorrupted,
			"predecessor entry (%s, %d): bad value length %d", block, exponent, len(value))
	}
	return hash, true, nil
}

// lookup is Entry with absence promoted to Corrupted: every caller here
// requires entries the construction invariant guarantees to exist.
func (ix *Index) lookup(block types.BlockHash, exponent uint8) (types.BlockHash, error) {
	hash, found, err := ix.Entry(block, exponent)
	if err != nil {
		return types.BlockHash{}, err
	}
	if !found {
		return types.BlockHash{}, errors.Wrapf(types.ErrCorrupted,
			"missing predecessor entry (%s, %d)", block, exponent)
	}
	return hash, nil
}

// EntryCount returns the number of entries stored for a block:
// floor(log2(level))+1 for a stored non-genesis block, 0 for genesis.
func (ix *Index) EntryCount(block types.BlockHash) (int, error) {
	start, limit := cf.BlockPrefixRange(block)
	iter := ix.db.NewIterator(cf.PredecessorIndex, start, limit)
	defer iter.Close()

	count := 0
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return count, nil
}
