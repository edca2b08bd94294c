// =============================================================================
// chainstore.go - Chain Storage Engine
// =============================================================================
//
// Top-level engine for persisting the chain of a node: raw block and
// operation bytes in append-only record logs, every derived key space in
// an indexed column-family store, ancestor queries answered by the
// binary-lifting predecessor index, and the context action stream of each
// block.
//
// Open runs crash recovery before accepting any call, so a store handle
// always observes a consistent prefix of the writes issued before a crash.
// One Store serves concurrent readers; the single chain-extension path
// obtains the write handle through Writer().
//
// =============================================================================

package chainstore

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/helpers"
	"github.com/karthikiyer56/chainstore/pkg/actionlog"
	"github.com/karthikiyer56/chainstore/pkg/blockstore"
	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/logging"
	"github.com/karthikiyer56/chainstore/pkg/recordlog"
	"github.com/karthikiyer56/chainstore/pkg/stats"
	"github.com/karthikiyer56/chainstore/pkg/store"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

// formatVersion is bumped on incompatible on-disk layout changes.
// A store written by a different version refuses to open.
const formatVersion = byte(1)

// Record log names. Each owns a segment directory and a watermark entry.
const (
	blockLogName  = "blocks"
	opLogName     = "operations"
	actionLogName = "actions"
)

// Store is an open chain storage engine.
type Store struct {
	cfg    *Config
	logger interfaces.Logger

	db        interfaces.IndexedStore
	blockLog  *recordlog.Log
	opLog     *recordlog.Log
	actionLog *recordlog.Log

	blocks  *blockstore.Store
	actions *actionlog.Log
	stats   *stats.WriterStats

	writerMu    sync.Mutex
	writerTaken bool
	writer      *Writer

	closeOnce sync.Once
}

// Open opens the store at cfg.DataDir, creating it if empty, and runs
// crash recovery. On return the store is in the ready state; any
// unresolvable inconsistency fails Open with a Corrupted error.
func Open(cfg *Config, logger interfaces.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithScope("CHAINSTORE")

	if err := helpers.EnsureDir(cfg.DataDir); err != nil {
		return nil, errors.Wrapf(types.ErrIOFailure, "creating data dir: %v", err)
	}

	openStart := time.Now()
	logger.Info("Opening store at %s (backend: %s)", cfg.DataDir, cfg.Backend)

	db, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{
		cfg:    cfg,
		logger: logger,
		db:     db,
		stats:  stats.NewWriterStats(),
	}

	if err := s.checkFormatVersion(); err != nil {
		db.Close()
		return nil, err
	}

	logOpts := recordlog.Options{
		SegmentTargetSize: uint64(cfg.SegmentTargetSize),
		Compression:       cfg.CompressionEnabled(),
		ReadOnly:          cfg.ReadOnly,
	}
	if s.blockLog, err = recordlog.Open(cfg.blocksDir(), blockLogName, logOpts, logger); err != nil {
		s.closePartial()
		return nil, err
	}
	if s.opLog, err = recordlog.Open(cfg.operationsDir(), opLogName, logOpts, logger); err != nil {
		s.closePartial()
		return nil, err
	}
	if s.actionLog, err = recordlog.Open(cfg.actionsDir(), actionLogName, logOpts, logger); err != nil {
		s.closePartial()
		return nil, err
	}

	if err := s.runRecovery(); err != nil {
		s.closePartial()
		return nil, err
	}

	s.blocks = blockstore.New(s.db, s.blockLog, s.opLog, logger)
	s.actions = actionlog.New(s.db, s.actionLog, s.stats, logger)

	logger.Info("Store ready in %s", helpers.FormatDuration(time.Since(openStart)))
	return s, nil
}

func openBackend(cfg *Config, logger interfaces.Logger) (interfaces.IndexedStore, error) {
	switch cfg.Backend {
	case BackendRocksDB:
		return store.OpenRocksDB(cfg.indexDir(), cfg.RocksDB, logger)
	case BackendMDBX:
		return store.OpenMDBX(cfg.indexDir(), cfg.MDBX, logger)
	case BackendMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown backend %q", cfg.Backend)
	}
}

// checkFormatVersion verifies the on-disk layout version, stamping a fresh
// store on first open.
func (s *Store) checkFormatVersion() error {
	value, found, err := s.db.Get(cf.Default, []byte(cf.FormatVersionKey))
	if err != nil {
		return err
	}
	if found {
		if len(value) != 1 || value[0] != formatVersion {
			return errors.Wrapf(types.ErrCorrupted,
				"store has format version %v, this build expects %d", value, formatVersion)
		}
		return nil
	}
	if s.cfg.ReadOnly {
		return errors.Wrap(types.ErrCorrupted, "store has no format version entry")
	}
	batch := &interfaces.Batch{}
	batch.Put(cf.Default, []byte(cf.FormatVersionKey), []byte{formatVersion})
	return s.db.Write(batch)
}

// =============================================================================
// Accessors
// =============================================================================

// Blocks returns the read side of the block/operation store.
func (s *Store) Blocks() *blockstore.Store { return s.blocks }

// GetActions returns the ordered context action stream of a block.
func (s *Store) GetActions(block types.BlockHash) ([]types.ActionRecord, error) {
	return s.actions.GetActions(block)
}

// Stats returns the writer-path counters.
func (s *Store) Stats() *stats.WriterStats { return s.stats }

// SegmentCounts reports the number of segment files per record log.
func (s *Store) SegmentCounts() map[string]int {
	out := make(map[string]int, 3)
	for _, log := range []*recordlog.Log{s.blockLog, s.opLog, s.actionLog} {
		n, err := log.SegmentCount()
		if err != nil {
			continue
		}
		out[log.Name()] = n
	}
	return out
}

// =============================================================================
// Writer
// =============================================================================

// Writer is the single write capability of an open store. It bundles the
// chain-extension operations of the block store with the action log append
// path.
type Writer struct {
	*blockstore.Writer
	actions *actionlog.Log
}

// AppendAction stores one context action for block.
func (w *Writer) AppendAction(block types.BlockHash, data []byte) (uint32, error) {
	return w.actions.AppendAction(block, data)
}

// AppendActions stores a group of context actions for block atomically.
func (w *Writer) AppendActions(block types.BlockHash, data [][]byte) ([]uint32, error) {
	return w.actions.AppendActions(block, data)
}

// Writer hands out the write capability. Exactly one handle exists per
// open store; a second call is an error, as is any call on a read-only
// store.
func (s *Store) Writer() (*Writer, error) {
	s.writerMu.Lock()
	defer s.writerMu.Unlock()

	if s.cfg.ReadOnly {
		return nil, errors.New("store is read-only")
	}
	if s.writerTaken {
		return nil, errors.New("write handle already taken")
	}
	s.writerTaken = true
	s.writer = &Writer{
		Writer:  blockstore.NewWriter(s.blocks, s.stats),
		actions: s.actions,
	}
	return s.writer, nil
}

// =============================================================================
// Maintenance
// =============================================================================

// CompactIndex triggers a manual compaction of the indexed store. The
// compaction runs in the background and never blocks readers; CompactIndex
// returns when it finishes or when ctx is cancelled (the backend keeps
// compacting either way).
func (s *Store) CompactIndex(ctx context.Context) error {
	done := make(chan time.Duration, 1)
	go func() {
		done <- s.db.Compact()
	}()
	select {
	case d := <-done:
		s.logger.Info("Index compaction finished in %s", helpers.FormatDuration(d))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush forces buffered indexed-store state to disk. Record log appends
// are already durable when they return.
func (s *Store) Flush() error {
	return s.db.Flush()
}

// Close flushes and releases everything. The store must not be used after
// Close returns.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing store at %s", s.cfg.DataDir)
		s.stats.Report(s.logger)
		s.closePartial()
	})
}

// closePartial releases whatever has been opened so far. Safe on a
// half-constructed store.
func (s *Store) closePartial() {
	if s.actionLog != nil {
		s.actionLog.Close()
	}
	if s.opLog != nil {
		s.opLog.Close()
	}
	if s.blockLog != nil {
		s.blockLog.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}
