// =============================================================================
// pkg/blockstore/blockstore.go - Block and Operation Store
// =============================================================================
//
// Combines the record log (raw bytes) with the indexed store (metadata,
// locators, predecessor entries). The atomicity boundary of the whole
// engine lives here: PutBlock appends raw bytes to the record log first,
// then commits ONE indexed-store batch carrying the locator, the header,
// the initial metadata, the level index entry, every predecessor-index
// entry for the block, and the record log watermark.
//
// A crash before the batch leaves an orphaned log record that is never
// referenced and is discarded by startup recovery; a crash after the batch
// leaves the block fully visible. Readers can never observe a partial
// block.
//
// SINGLE WRITER: all mutating operations hang off the Writer handle,
// constructed once per process by the engine and passed to the chain
// extension path. Readers call the Store methods concurrently.
//
// DUPLICATE POLICY: inserting a block or operation whose key is already
// present fails with DuplicateKey. The alternative idempotent no-op was
// rejected: a re-inserted block would mask violations of the single-writer
// discipline.
//
// =============================================================================

package blockstore

import (
	"time"

	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/predindex"
	"github.com/karthikiyer56/chainstore/pkg/recordlog"
	"github.com/karthikiyer56/chainstore/pkg/stats"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

// Store is the read side of the block/operation store.
type Store struct {
	db       interfaces.IndexedStore
	blockLog *recordlog.Log
	opLog    *recordlog.Log
	pred     *predindex.Index
	logger   interfaces.Logger
}

// New creates a block store over the given indexed store and record logs.
func New(db interfaces.IndexedStore, blockLog, opLog *recordlog.Log, logger interfaces.Logger) *Store {
	return &Store{
		db:       db,
		blockLog: blockLog,
		opLog:    opLog,
		pred:     predindex.New(db),
		logger:   logger.WithScope("BLOCKS"),
	}
}

// PredecessorIndex exposes the predecessor index for direct entry reads.
func (s *Store) PredecessorIndex() *predindex.Index { return s.pred }

// =============================================================================
// Reads
// =============================================================================

// GetBlock returns the stored header for hash. Absence is reported through
// found, not as an error.
func (s *Store) GetBlock(hash types.BlockHash) (*types.BlockHeader, bool, error) {
	value, found, err := s.db.Get(cf.Blocks, cf.BlockKey(hash))
	if err != nil || !found {
		return nil, false, err
	}
	_, header, err := types.DecodeBlockValue(value)
	if err != nil {
		return nil, false, errors.Wrapf(err, "block %s", hash)
	}
	return header, true, nil
}

// HasBlock reports whether the block is stored.
func (s *Store) HasBlock(hash types.BlockHash) (bool, error) {
	_, found, err := s.db.Get(cf.Blocks, cf.BlockKey(hash))
	return found, err
}

// GetBlockRaw returns the raw encoded block bytes as appended.
func (s *Store) GetBlockRaw(hash types.BlockHash) ([]byte, bool, error) {
	value, found, err := s.db.Get(cf.Blocks, cf.BlockKey(hash))
	if err != nil || !found {
		return nil, false, err
	}
	loc, _, err := types.DecodeBlockValue(value)
	if err != nil {
		return nil, false, errors.Wrapf(err, "block %s", hash)
	}
	raw, err := s.blockLog.Read(loc)
	if err != nil {
		return nil, false, errors.Wrapf(err, "block %s", hash)
	}
	return raw, true, nil
}

// GetMetadata returns the administrative state of a stored block.
func (s *Store) GetMetadata(hash types.BlockHash) (*types.BlockMetadata, bool, error) {
	value, found, err := s.db.Get(cf.BlockMeta, cf.BlockKey(hash))
	if err != nil || !found {
		return nil, false, err
	}
	meta, err := types.DecodeBlockMetadata(value)
	if err != nil {
		return nil, false, errors.Wrapf(err, "block %s", hash)
	}
	return meta, true, nil
}

// GetOperation returns the raw bytes and status of one operation.
func (s *Store) GetOperation(block types.BlockHash, index uint32) ([]byte, types.ValidationStatus, bool, error) {
	value, found, err := s.db.Get(cf.Operations, cf.OperationKey(block, index))
	if err != nil || !found {
		return nil, 0, false, err
	}
	loc, status, err := types.DecodeOperationValue(value)
	if err != nil {
		return nil, 0, false, errors.Wrapf(err, "operation (%s, %d)", block, index)
	}
	raw, err := s.opLog.Read(loc)
	if err != nil {
		return nil, 0, false, errors.Wrapf(err, "operation (%s, %d)", block, index)
	}
	return raw, status, true, nil
}

// AncestorAt returns the ancestor of block at the given distance.
// Unknown block → NotFound; distance beyond genesis → InvalidDistance.
func (s *Store) AncestorAt(block types.BlockHash, distance uint64) (types.BlockHash, error) {
	header, found, err := s.GetBlock(block)
	if err != nil {
		return types.BlockHash{}, err
	}
	if !found {
		return types.BlockHash{}, errors.Wrapf(types.ErrNotFound, "block %s", block)
	}
	return s.pred.AncestorAt(block, header.Level, distance)
}

// Head returns the hash and level of the highest stored block.
func (s *Store) Head() (types.BlockHash, uint32, bool, error) {
	value, found, err := s.db.Get(cf.Default, []byte(headKey))
	if err != nil || !found {
		return types.BlockHash{}, 0, false, err
	}
	if len(value) != types.HashSize+4 {
		return types.BlockHash{}, 0, false, errors.Wrapf(types.ErrSerialization, "chain head: bad length %d", len(value))
	}
	hash, _ := types.HashFromBytes(value[:types.HashSize])
	level := uint32(value[types.HashSize])<<24 | uint32(value[types.HashSize+1])<<16 |
		uint32(value[types.HashSize+2])<<8 | uint32(value[types.HashSize+3])
	return hash, level, true, nil
}

// =============================================================================
// Level-Range Iteration
// =============================================================================

// LevelEntry is one (level, hash) pair from the level index.
type LevelEntry struct {
	Level uint32
	Hash  types.BlockHash
}

// IterateLevelRange calls fn for every stored block with level in
// [from, to], ascending, forks included. The underlying iterator is lazy
// and bounded by the level range; fn returning false stops early.
func (s *Store) IterateLevelRange(from, to uint32, fn func(LevelEntry) bool) error {
	start, limit := cf.BlockLevelRange(from, to)
	iter := s.db.NewIterator(cf.BlockLevel, start, limit)
	defer iter.Close()

	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		level, hash, ok := cf.SplitBlockLevelKey(iter.Key())
		if !ok {
			return errors.Wrapf(types.ErrCorrupted, "malformed level index key of length %d", len(iter.Key()))
		}
		if !fn(LevelEntry{Level: level, Hash: hash}) {
			return nil
		}
	}
	return iter.Error()
}

// =============================================================================
// Writer - the Single Write Handle
// =============================================================================

const headKey = "chain_head"

// Writer is the capability object for the chain-extension path. The engine
// constructs exactly one per process; the surrounding chain manager must
// not share it across concurrently writing threads.
type Writer struct {
	store *Store
	stats *stats.WriterStats
}

// NewWriter creates the write handle. Called once by the engine.
func NewWriter(store *Store, st *stats.WriterStats) *Writer {
	return &Writer{store: store, stats: st}
}

// Store returns the read side (for read-modify-write sequences).
func (w *Writer) Store() *Store { return w.store }

// PutBlock stores a block: record log append, then one atomic batch.
// The raw bytes are the encoded block as received from the protocol layer;
// the store never decodes them.
func (w *Writer) PutBlock(header *types.BlockHeader, raw []byte) error {
	s := w.store

	if header.IsGenesis() {
		if !header.Predecessor.IsZero() {
			return errors.Wrapf(types.ErrCorrupted, "genesis block %s has a predecessor", header.Hash)
		}
	} else {
		predHeader, found, err := s.GetBlock(header.Predecessor)
		if err != nil {
			return err
		}
		if !found {
			return errors.Wrapf(types.ErrNotFound, "predecessor %s of block %s", header.Predecessor, header.Hash)
		}
		if predHeader.Level+1 != header.Level {
			return errors.Wrapf(types.ErrCorrupted,
				"block %s at level %d extends predecessor at level %d",
				header.Hash, header.Level, predHeader.Level)
		}
	}

	if found, err := s.HasBlock(header.Hash); err != nil {
		return err
	} else if found {
		return errors.Wrapf(types.ErrDuplicateKey, "block %s", header.Hash)
	}

	// Log append first. If the batch below never commits, this record is
	// orphaned but harmless: nothing references it and recovery reclaims
	// the log tail.
	loc, err := s.blockLog.Append(raw)
	if err != nil {
		return errors.Wrapf(err, "appending block %s", header.Hash)
	}

	batchStart := time.Now()
	batch := &interfaces.Batch{}
	batch.Put(cf.Blocks, cf.BlockKey(header.Hash), types.EncodeBlockValue(loc, header))
	batch.Put(cf.BlockMeta, cf.BlockKey(header.Hash), types.EncodeBlockMetadata(&types.BlockMetadata{
		Status: types.StatusUnknown,
	}))
	batch.Put(cf.BlockLevel, cf.BlockLevelKey(header.Level, header.Hash), nil)

	if err := s.pred.BuildEntries(batch, header.Hash, header.Predecessor, header.Level); err != nil {
		return err
	}

	// Record the discovered successor link on the predecessor.
	if !header.IsGenesis() {
		if err := w.addSuccessor(batch, header.Predecessor, header.Hash); err != nil {
			return err
		}
	}

	// Advance the head if this block is the highest so far.
	if err := w.maybeAdvanceHead(batch, header); err != nil {
		return err
	}

	batch.Put(cf.Default, cf.LogHeadKey(s.blockLog.Name()), types.EncodeLogHead(s.blockLog.Head()))

	if err := s.db.Write(batch); err != nil {
		return errors.Wrapf(err, "committing block %s", header.Hash)
	}

	if w.stats != nil {
		w.stats.RecordBlock(len(raw), time.Since(batchStart))
	}
	return nil
}

// addSuccessor appends child to parent's successor links if not present.
func (w *Writer) addSuccessor(batch *interfaces.Batch, parent, child types.BlockHash) error {
	meta, found, err := w.store.GetMetadata(parent)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(types.ErrCorrupted, "block %s stored without metadata", parent)
	}
	for _, s := range meta.Successors {
		if s == child {
			return nil
		}
	}
	meta.Successors = append(meta.Successors, child)
	batch.Put(cf.BlockMeta, cf.BlockKey(parent), types.EncodeBlockMetadata(meta))
	return nil
}

// maybeAdvanceHead updates the chain head entry if header is the highest
// block stored so far.
func (w *Writer) maybeAdvanceHead(batch *interfaces.Batch, header *types.BlockHeader) error {
	_, level, found, err := w.store.Head()
	if err != nil {
		return err
	}
	if found && header.Level <= level {
		return nil
	}
	value := make([]byte, 0, types.HashSize+4)
	value = append(value, header.Hash[:]...)
	value = append(value,
		byte(header.Level>>24), byte(header.Level>>16), byte(header.Level>>8), byte(header.Level))
	batch.Put(cf.Default, []byte(headKey), value)
	return nil
}

// PutOperation stores one operation of a stored block.
func (w *Writer) PutOperation(block types.BlockHash, index uint32, raw []byte) error {
	s := w.store

	if found, err := s.HasBlock(block); err != nil {
		return err
	} else if !found {
		return errors.Wrapf(types.ErrNotFound, "block %s", block)
	}
	if _, found, err := s.db.Get(cf.Operations, cf.OperationKey(block, index)); err != nil {
		return err
	} else if found {
		return errors.Wrapf(types.ErrDuplicateKey, "operation (%s, %d)", block, index)
	}

	loc, err := s.opLog.Append(raw)
	if err != nil {
		return errors.Wrapf(err, "appending operation (%s, %d)", block, index)
	}

	batchStart := time.Now()
	batch := &interfaces.Batch{}
	batch.Put(cf.Operations, cf.OperationKey(block, index), types.EncodeOperationValue(loc, types.StatusUnknown))
	batch.Put(cf.Default, cf.LogHeadKey(s.opLog.Name()), types.EncodeLogHead(s.opLog.Head()))

	if err := s.db.Write(batch); err != nil {
		return errors.Wrapf(err, "committing operation (%s, %d)", block, index)
	}

	if w.stats != nil {
		w.stats.RecordOperation(len(raw), time.Since(batchStart))
	}
	return nil
}

// UpdateValidationStatus sets the validation status of a stored block.
// This is the narrow mutation API for the validation collaborator; no other
// metadata field is writable after creation.
func (w *Writer) UpdateValidationStatus(hash types.BlockHash, status types.ValidationStatus) error {
	if !status.Valid() {
		return errors.Wrapf(types.ErrSerialization, "undefined validation status %d", status)
	}
	meta, found, err := w.store.GetMetadata(hash)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(types.ErrNotFound, "block %s", hash)
	}
	meta.Status = status

	batch := &interfaces.Batch{}
	batch.Put(cf.BlockMeta, cf.BlockKey(hash), types.EncodeBlockMetadata(meta))
	return w.store.db.Write(batch)
}

// SetMainChain flags whether a stored block belongs to the currently
// adopted chain. Reorganizations flip flags; they never touch the
// predecessor index.
func (w *Writer) SetMainChain(hash types.BlockHash, onMain bool) error {
	meta, found, err := w.store.GetMetadata(hash)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(types.ErrNotFound, "block %s", hash)
	}
	if meta.IsMainChain == onMain {
		return nil
	}
	meta.IsMainChain = onMain

	batch := &interfaces.Batch{}
	batch.Put(cf.BlockMeta, cf.BlockKey(hash), types.EncodeBlockMetadata(meta))
	return w.store.db.Write(batch)
}
