// =============================================================================
// pkg/cf/cf.go - Column Family Names and Key Schemas
// =============================================================================
//
// This package names the logical column families of the indexed store and
// builds their keys. Each family is independently iterable; no query ever
// needs a cross-family scan.
//
// KEY SCHEMAS:
//
//	blocks:            32-byte block hash
//	block_meta:        32-byte block hash
//	block_level:       4-byte level (BE) ++ 32-byte block hash
//	operations:        32-byte block hash ++ 4-byte in-block index (BE)
//	predecessor_index: 32-byte block hash ++ 1-byte exponent
//	context_actions:   32-byte block hash ++ 4-byte sequence (BE)
//	default:           engine metadata ("log_head/<log>", "format_version", ...)
//
// Big-endian integer suffixes keep per-block and per-level entries
// contiguous and ordered under lexicographic key comparison.
//
// =============================================================================

package cf

import (
	"encoding/binary"

	"github.com/karthikiyer56/chainstore/pkg/types"
)

// =============================================================================
// Column Family Names
// =============================================================================

const (
	// Default holds engine metadata: record log watermarks, format version.
	Default = "default"

	// Blocks maps block hash to locator + header.
	Blocks = "blocks"

	// BlockMeta maps block hash to validation status, chain flags and
	// successor links.
	BlockMeta = "block_meta"

	// BlockLevel orders block hashes by level for range iteration.
	BlockLevel = "block_level"

	// Operations maps (block hash, index) to locator + status.
	Operations = "operations"

	// PredecessorIndex maps (block hash, exponent) to the ancestor hash at
	// distance 2^exponent.
	PredecessorIndex = "predecessor_index"

	// ContextActions maps (block hash, sequence) to an action locator.
	ContextActions = "context_actions"
)

// Names lists all column families in open order. Index 0 must be "default"
// (required by RocksDB).
var Names = []string{
	Default,
	Blocks,
	BlockMeta,
	BlockLevel,
	Operations,
	PredecessorIndex,
	ContextActions,
}

// =============================================================================
// Engine Metadata Keys ("default" CF)
// =============================================================================

const (
	// FormatVersionKey holds the on-disk format version.
	FormatVersionKey = "format_version"

	// logHeadPrefix prefixes per-log durable watermark keys.
	logHeadPrefix = "log_head/"
)

// LogHeadKey returns the watermark key for a named record log.
func LogHeadKey(logName string) []byte {
	return []byte(logHeadPrefix + logName)
}

// =============================================================================
// Key Builders
// =============================================================================

// BlockKey is the key for the blocks and block_meta families.
func BlockKey(hash types.BlockHash) []byte {
	return hash.Bytes()
}

// BlockLevelKey is the key for the block_level family.
func BlockLevelKey(level uint32, hash types.BlockHash) []byte {
	key := make([]byte, 0, 4+types.HashSize)
	key = binary.BigEndian.AppendUint32(key, level)
	return append(key, hash[:]...)
}

// BlockLevelRange returns the [start, limit) key range covering levels
// from..to inclusive.
func BlockLevelRange(from, to uint32) (start, limit []byte) {
	start = binary.BigEndian.AppendUint32(nil, from)
	if to == ^uint32(0) {
		return start, nil
	}
	limit = binary.BigEndian.AppendUint32(nil, to+1)
	return start, limit
}

// SplitBlockLevelKey decodes a block_level key back into level and hash.
func SplitBlockLevelKey(key []byte) (uint32, types.BlockHash, bool) {
	if len(key) != 4+types.HashSize {
		return 0, types.BlockHash{}, false
	}
	level := binary.BigEndian.Uint32(key[:4])
	hash, _ := types.HashFromBytes(key[4:])
	return level, hash, true
}

// OperationKey is the key for the operations family.
func OperationKey(block types.BlockHash, index uint32) []byte {
	key := make([]byte, 0, types.HashSize+4)
	key = append(key, block[:]...)
	return binary.BigEndian.AppendUint32(key, index)
}

// PredecessorKey is the key for the predecessor_index family.
func PredecessorKey(block types.BlockHash, exponent uint8) []byte {
	key := make([]byte, 0, types.HashSize+1)
	key = append(key, block[:]...)
	return append(key, exponent)
}

// ActionKey is the key for the context_actions family.
func ActionKey(block types.BlockHash, seq uint32) []byte {
	key := make([]byte, 0, types.HashSize+4)
	key = append(key, block[:]...)
	return binary.BigEndian.AppendUint32(key, seq)
}

// BlockPrefixRange returns the [start, limit) key range covering every key
// whose prefix is the given block hash (operations, predecessor entries,
// actions of one block).
func BlockPrefixRange(block types.BlockHash) (start, limit []byte) {
	start = block.Bytes()
	limit = block.Bytes()
	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] != 0 {
			return start, limit
		}
	}
	// Prefix was all 0xff; the range is unbounded above.
	return start, nil
}
