// =============================================================================
// recovery.go - Startup Crash Recovery
// =============================================================================
//
// Reconciles the record logs with the indexed store after a crash. The
// write path appends log bytes before committing the indexing batch, so
// the only legal inconsistency is trailing log bytes that no committed
// batch references. Recovery truncates those. The inverse state, a durable
// watermark pointing past the physical end of its log, means the indexed
// store references bytes that were never made durable; nothing can repair
// that, so Open fails with Corrupted.
//
// The recovery pass is a small state machine:
//
//   scanning    read the durable watermark of every record log
//   validating  compare watermarks against physical segment state,
//               truncate orphaned tails
//   ready       all logs match their watermarks, writes may proceed
//   fatal       watermark beyond physical end, Open fails
//
// =============================================================================

package chainstore

import (
	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/recordlog"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

type recoveryState int

const (
	stateScanning recoveryState = iota
	stateValidating
	stateReady
	stateFatal
)

func (s recoveryState) String() string {
	switch s {
	case stateScanning:
		return "scanning"
	case stateValidating:
		return "validating"
	case stateReady:
		return "ready"
	case stateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// logWatermark pairs an open record log with its durable watermark.
type logWatermark struct {
	log   *recordlog.Log
	head  types.LogHead
	found bool
}

// runRecovery drives the state machine over all three record logs.
func (s *Store) runRecovery() error {
	state := stateScanning
	s.logger.Info("Recovery: %s", state)

	marks := make([]logWatermark, 0, 3)
	for _, log := range []*recordlog.Log{s.blockLog, s.opLog, s.actionLog} {
		head, found, err := s.readWatermark(log.Name())
		if err != nil {
			return err
		}
		marks = append(marks, logWatermark{log: log, head: head, found: found})
	}

	state = stateValidating
	s.logger.Info("Recovery: %s", state)

	for _, m := range marks {
		if err := s.reconcileLog(m); err != nil {
			state = stateFatal
			s.logger.Error("Recovery: %s (log %q): %v", state, m.log.Name(), err)
			return err
		}
	}

	state = stateReady
	s.logger.Info("Recovery: %s", state)
	return nil
}

// readWatermark loads the durable watermark of one named log.
func (s *Store) readWatermark(name string) (types.LogHead, bool, error) {
	value, found, err := s.db.Get(cf.Default, cf.LogHeadKey(name))
	if err != nil || !found {
		return types.LogHead{}, false, err
	}
	head, err := types.DecodeLogHead(value)
	if err != nil {
		return types.LogHead{}, false, errors.Wrapf(err, "watermark of log %q", name)
	}
	return head, true, nil
}

// reconcileLog brings one record log in line with its watermark.
func (s *Store) reconcileLog(m logWatermark) error {
	physical := m.log.Head()
	target := m.head
	if !m.found {
		// No batch ever committed against this log. Any physical
		// content is orphaned.
		target = types.LogHead{}
	}

	if beyond(target, physical) {
		return errors.Wrapf(types.ErrCorrupted,
			"log %q: indexed watermark (segment %d, offset %d) beyond physical end (segment %d, offset %d)",
			m.log.Name(), target.Segment, target.Offset, physical.Segment, physical.Offset)
	}

	if target == physical {
		return nil
	}

	if s.cfg.ReadOnly {
		// Readers never follow locators past the watermark, so an
		// orphaned tail is harmless without truncation.
		s.logger.Info("Log %q has an orphaned tail (read-only, left in place)", m.log.Name())
		return nil
	}

	s.logger.Info("Log %q: truncating orphaned tail after (segment %d, offset %d)",
		m.log.Name(), target.Segment, target.Offset)
	return m.log.TruncateTo(target)
}

// beyond reports whether watermark w points past physical head p.
func beyond(w, p types.LogHead) bool {
	if w.Segment != p.Segment {
		return w.Segment > p.Segment
	}
	return w.Offset > p.Offset
}
