// =============================================================================
// pkg/actionlog/actionlog.go - Context Action Log
// =============================================================================
//
// Stores the ordered stream of context actions recorded while a block was
// applied. Actions are opaque byte records: the raw bytes live in their
// own record log, the indexed store keeps (block, sequence) -> locator
// entries so the stream of one block is retrievable in order.
//
// Sequence numbers are assigned per block, starting at 0, in append order.
// The writer caches the next sequence per block so repeated appends do not
// rescan the index; the cache is rebuilt lazily from the store after a
// restart.
//
// =============================================================================

package actionlog

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/recordlog"
	"github.com/karthikiyer56/chainstore/pkg/stats"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

// Log stores and retrieves context action streams.
type Log struct {
	db     interfaces.IndexedStore
	rlog   *recordlog.Log
	stats  *stats.WriterStats
	logger interfaces.Logger

	mu      sync.Mutex
	nextSeq map[types.BlockHash]uint32
}

// New creates an action log over the given indexed store and record log.
func New(db interfaces.IndexedStore, rlog *recordlog.Log, st *stats.WriterStats, logger interfaces.Logger) *Log {
	return &Log{
		db:      db,
		rlog:    rlog,
		stats:   st,
		logger:  logger.WithScope("ACTIONS"),
		nextSeq: make(map[types.BlockHash]uint32),
	}
}

// AppendAction stores one action for block and returns its sequence number.
func (l *Log) AppendAction(block types.BlockHash, data []byte) (uint32, error) {
	seqs, err := l.AppendActions(block, [][]byte{data})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendActions stores a group of actions for block in one atomic batch,
// assigning consecutive sequence numbers in slice order. Either all
// actions become visible or none do.
func (l *Log) AppendActions(block types.BlockHash, data [][]byte) ([]uint32, error) {
	if len(data) == 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	first, err := l.nextSequence(block)
	if err != nil {
		return nil, err
	}

	totalBytes := 0
	batch := &interfaces.Batch{}
	seqs := make([]uint32, len(data))
	for i, raw := range data {
		loc, err := l.rlog.Append(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "appending action %d of block %s", first+uint32(i), block)
		}
		seqs[i] = first + uint32(i)
		batch.Put(cf.ContextActions, cf.ActionKey(block, seqs[i]), types.EncodeLocator(nil, loc))
		totalBytes += len(raw)
	}
	batch.Put(cf.Default, cf.LogHeadKey(l.rlog.Name()), types.EncodeLogHead(l.rlog.Head()))

	batchStart := time.Now()
	if err := l.db.Write(batch); err != nil {
		return nil, errors.Wrapf(err, "committing %d actions of block %s", len(data), block)
	}
	l.nextSeq[block] = first + uint32(len(data))

	if l.stats != nil {
		l.stats.RecordActions(len(data), totalBytes, time.Since(batchStart))
	}
	return seqs, nil
}

// nextSequence returns the next free sequence number for block,
// rebuilding the cache entry from the store on first touch.
// Caller holds l.mu.
func (l *Log) nextSequence(block types.BlockHash) (uint32, error) {
	if seq, ok := l.nextSeq[block]; ok {
		return seq, nil
	}

	start, limit := cf.BlockPrefixRange(block)
	iter := l.db.NewIterator(cf.ContextActions, start, limit)
	defer iter.Close()

	var count uint32
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, errors.Wrapf(err, "scanning actions of block %s", block)
	}
	l.nextSeq[block] = count
	return count, nil
}

// GetActions returns every action recorded for block, ordered by sequence
// number. A block with no actions yields an empty slice.
func (l *Log) GetActions(block types.BlockHash) ([]types.ActionRecord, error) {
	start, limit := cf.BlockPrefixRange(block)
	iter := l.db.NewIterator(cf.ContextActions, start, limit)
	defer iter.Close()

	var out []types.ActionRecord
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != types.HashSize+4 {
			return nil, errors.Wrapf(types.ErrCorrupted, "malformed action key of length %d", len(key))
		}
		seq := uint32(key[types.HashSize])<<24 | uint32(key[types.HashSize+1])<<16 |
			uint32(key[types.HashSize+2])<<8 | uint32(key[types.HashSize+3])

		loc, err := types.DecodeLocator(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "action (%s, %d)", block, seq)
		}
		raw, err := l.rlog.Read(loc)
		if err != nil {
			return nil, errors.Wrapf(err, "action (%s, %d)", block, seq)
		}
		out = append(out, types.ActionRecord{Block: block, Sequence: seq, Data: raw})
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []types.ActionRecord{}
	}
	return out, nil
}

// ActionCount returns the number of actions stored for block.
func (l *Log) ActionCount(block types.BlockHash) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSequence(block)
}
