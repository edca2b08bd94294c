// =============================================================================
// pkg/stats/stats.go - Writer-Path Statistics
// =============================================================================
//
// Counters for the single-writer path: how many blocks, operations, and
// context actions were stored, how many raw bytes were appended, and how
// much time the indexed-store commits cost. The writer updates these on
// every successful store; Report prints a summary through the engine
// logger.
//
// All counters are mutex-guarded so a monitoring goroutine can snapshot
// while the writer runs.
//
// =============================================================================

package stats

import (
	"sync"
	"time"

	"github.com/karthikiyer56/chainstore/helpers"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
)

// WriterStats aggregates the write-path counters for one engine instance.
type WriterStats struct {
	mu sync.Mutex

	startTime time.Time

	blocks     int64
	operations int64
	actions    int64

	bytesAppended int64
	batches       int64
	batchTime     time.Duration
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Elapsed       time.Duration
	Blocks        int64
	Operations    int64
	Actions       int64
	BytesAppended int64
	Batches       int64
	BatchTime     time.Duration
}

// NewWriterStats creates a fresh counter set, elapsed time starting now.
func NewWriterStats() *WriterStats {
	return &WriterStats{startTime: time.Now()}
}

// RecordBlock accounts one stored block.
func (s *WriterStats) RecordBlock(rawBytes int, batchTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks++
	s.record(rawBytes, batchTime)
}

// RecordOperation accounts one stored operation.
func (s *WriterStats) RecordOperation(rawBytes int, batchTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations++
	s.record(rawBytes, batchTime)
}

// RecordActions accounts a committed group of context actions.
func (s *WriterStats) RecordActions(count int, rawBytes int, batchTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions += int64(count)
	s.record(rawBytes, batchTime)
}

func (s *WriterStats) record(rawBytes int, batchTime time.Duration) {
	s.bytesAppended += int64(rawBytes)
	s.batches++
	s.batchTime += batchTime
}

// Get returns a consistent snapshot of all counters.
func (s *WriterStats) Get() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Elapsed:       time.Since(s.startTime),
		Blocks:        s.blocks,
		Operations:    s.operations,
		Actions:       s.actions,
		BytesAppended: s.bytesAppended,
		Batches:       s.batches,
		BatchTime:     s.batchTime,
	}
}

// Report prints the current counters through the given logger.
func (s *WriterStats) Report(logger interfaces.Logger) {
	snap := s.Get()

	logger.Separator()
	logger.Info("Writer statistics")
	logger.Info("  Elapsed:        %s", helpers.FormatDuration(snap.Elapsed))
	logger.Info("  Blocks:         %s", helpers.FormatNumber(snap.Blocks))
	logger.Info("  Operations:     %s", helpers.FormatNumber(snap.Operations))
	logger.Info("  Actions:        %s", helpers.FormatNumber(snap.Actions))
	logger.Info("  Bytes appended: %s", helpers.FormatBytes(snap.BytesAppended))
	if snap.Elapsed > 0 {
		logger.Info("  Append rate:    %s", helpers.FormatRate(snap.BytesAppended, snap.Elapsed))
	}
	if snap.Batches > 0 {
		logger.Info("  Batches:        %s (avg commit %s)",
			helpers.FormatNumber(snap.Batches),
			helpers.FormatDuration(snap.BatchTime/time.Duration(snap.Batches)))
	}
	logger.Separator()
}
