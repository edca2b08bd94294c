// =============================================================================
// pkg/types/types.go - Core Data Types
// =============================================================================
//
// This package contains the data types shared across the chainstore packages:
// block identity, headers, per-block metadata, record locators, and the
// validation status enum. These types have no dependencies beyond the
// standard library.
//
// =============================================================================

package types

import (
	"encoding/hex"
	"time"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MB is megabytes in bytes
	MB = 1024 * 1024

	// GB is gigabytes in bytes
	GB = 1024 * 1024 * 1024

	// HashSize is the length of a block hash in bytes.
	HashSize = 32

	// DefaultSegmentTargetSize is the size at which a record log segment
	// is sealed and a new one opened.
	DefaultSegmentTargetSize = 256 * MB

	// DefaultBlockCacheMB is the default RocksDB block cache size in megabytes.
	DefaultBlockCacheMB = 512
)

// =============================================================================
// BlockHash
// =============================================================================

// BlockHash is the fixed-length digest identifying a block. Immutable once
// assigned; also used for context roots and operation-bearing keys.
type BlockHash [HashSize]byte

// HashFromBytes copies b into a BlockHash. Returns false if b has the
// wrong length.
func HashFromBytes(b []byte) (BlockHash, bool) {
	var h BlockHash
	if len(b) != HashSize {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// Bytes returns the hash as a byte slice.
func (h BlockHash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// String returns the hex encoding of the hash.
func (h BlockHash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all zeroes.
func (h BlockHash) IsZero() bool {
	return h == BlockHash{}
}

// =============================================================================
// BlockHeader
// =============================================================================

// BlockHeader is the chain-position view of a stored block.
//
// Predecessor is the zero hash only for the genesis block (Level 0). The
// ProtocolData payload is opaque to the store; it is persisted verbatim and
// never decoded here.
type BlockHeader struct {
	Hash         BlockHash
	Level        uint32
	Predecessor  BlockHash
	Timestamp    time.Time
	ContextRoot  BlockHash
	Fitness      []byte
	ProtocolData []byte
}

// IsGenesis reports whether the header describes the genesis block.
func (h *BlockHeader) IsGenesis() bool {
	return h.Level == 0
}

// =============================================================================
// ValidationStatus
// =============================================================================

// ValidationStatus is the validation state of a stored block or operation.
// It is the only field mutated after creation, via the writer's narrow
// update API.
type ValidationStatus uint8

const (
	StatusUnknown ValidationStatus = iota
	StatusApplied
	StatusInvalid
)

// String returns the string representation of the status.
func (s ValidationStatus) String() string {
	switch s {
	case StatusUnknown:
		return "UNKNOWN"
	case StatusApplied:
		return "APPLIED"
	case StatusInvalid:
		return "INVALID"
	default:
		return "UNDEFINED"
	}
}

// Valid reports whether the status is one of the defined values.
func (s ValidationStatus) Valid() bool {
	return s <= StatusInvalid
}

// =============================================================================
// BlockMetadata
// =============================================================================

// BlockMetadata is the administrative state of a stored block. Owned by the
// block store; mutated only through the single writer handle.
type BlockMetadata struct {
	Status      ValidationStatus
	IsMainChain bool
	Successors  []BlockHash
}

// =============================================================================
// RecordLocator
// =============================================================================

// RecordLocator identifies a record in the record log: which segment it
// lives in, the byte offset of its on-disk form, and the on-disk length.
// A locator handed out by an append remains valid for the lifetime of the
// store and the bytes behind it never change.
type RecordLocator struct {
	Segment uint32
	Offset  uint64
	Length  uint32
}

// =============================================================================
// ActionRecord
// =============================================================================

// ActionRecord is one context-mutating action recorded for a block.
// Sequence numbers are assigned by the action log, strictly increasing per
// block, never reused.
type ActionRecord struct {
	Block    BlockHash
	Sequence uint32
	Data     []byte
}

// =============================================================================
// LogHead
// =============================================================================

// LogHead is the durable append position of a record log, persisted with
// every index batch so recovery can discard unindexed trailing bytes.
type LogHead struct {
	Segment uint32
	Offset  uint64
}
