// =============================================================================
// pkg/recordlog/recordlog.go - Append-Only Record Log
// =============================================================================
//
// The record log stores large immutable byte records (raw block headers,
// raw operations, context actions) in segment files, returning a
// RecordLocator{Segment, Offset, Length} for each append. Records are
// zstd-compressed when that shrinks them; Read always hands back the
// original bytes.
//
// DURABILITY: Append syncs the data file, then the index file, before
// returning. A locator handed to a caller refers to bytes that survive a
// crash.
//
// CONCURRENCY: one writer appends; any number of readers call Read
// concurrently. The current segment's in-memory index is consulted under
// the read lock (Append grows it under the write lock); its data file is
// only ever extended, so ReadAt on committed offsets needs no lock.
//
// =============================================================================

package recordlog

import (
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/helpers"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

// Options configures a record log.
type Options struct {
	// SegmentTargetSize is the data file size at which the current segment
	// is sealed. Zero means types.DefaultSegmentTargetSize.
	SegmentTargetSize uint64

	// Compression enables per-record zstd compression.
	Compression bool

	// ReadOnly opens the log for reads only; torn tails are an error
	// instead of being repaired.
	ReadOnly bool
}

// Log is one named append-only record log.
type Log struct {
	mu sync.RWMutex

	dir     string
	name    string
	opts    Options
	current *segment
	sealed  map[uint32]*segment

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	logger interfaces.Logger
}

// Open opens (or creates) the record log <dir>/<name>, repairing any torn
// tail left by a crash. The highest segment becomes the current one unless
// it is already at target size, in which case a fresh segment is started on
// the first append.
func Open(dir, name string, opts Options, logger interfaces.Logger) (*Log, error) {
	if opts.SegmentTargetSize == 0 {
		opts.SegmentTargetSize = types.DefaultSegmentTargetSize
	}

	logDir := segmentDir(dir, name)
	if !opts.ReadOnly {
		if err := helpers.EnsureDir(logDir); err != nil {
			return nil, errors.Wrapf(types.ErrIOFailure, "create log dir %s: %v", logDir, err)
		}
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrapf(types.ErrIOFailure, "create zstd decoder: %v", err)
	}
	var encoder *zstd.Encoder
	if opts.Compression {
		encoder, err = zstd.NewWriter(nil)
		if err != nil {
			decoder.Close()
			return nil, errors.Wrapf(types.ErrIOFailure, "create zstd encoder: %v", err)
		}
	}

	l := &Log{
		dir:     dir,
		name:    name,
		opts:    opts,
		sealed:  make(map[uint32]*segment),
		encoder: encoder,
		decoder: decoder,
		logger:  logger.WithScope("LOG:" + name),
	}

	ids, err := discoverSegments(logDir)
	if err != nil {
		l.closeCodecs()
		return nil, err
	}

	if len(ids) == 0 {
		if opts.ReadOnly {
			// Empty log: valid, first append would create segment 0.
			return l, nil
		}
		seg, err := createSegment(logDir, 0)
		if err != nil {
			l.closeCodecs()
			return nil, err
		}
		l.current = seg
		l.logger.Info("created empty log")
		return l, nil
	}

	// All but the highest segment are sealed.
	last := ids[len(ids)-1]
	seg, err := openSegment(logDir, last, !opts.ReadOnly)
	if err != nil {
		l.closeCodecs()
		return nil, err
	}
	l.current = seg
	l.logger.Info("opened log: %d segments, head %d/%s",
		len(ids), last, helpers.FormatBytes(int64(seg.dataSize)))
	return l, nil
}

// Name returns the log's name.
func (l *Log) Name() string { return l.name }

// Append durably stores data and returns its locator.
func (l *Log) Append(data []byte) (types.RecordLocator, error) {
	if l.opts.ReadOnly {
		return types.RecordLocator{}, errors.Wrap(types.ErrIOFailure, "log is read-only")
	}

	stored := data
	var flags uint8
	if l.encoder != nil {
		compressed := l.encoder.EncodeAll(data, nil)
		// Keep incompressible records raw; the flags bit says which form
		// is on disk.
		if len(compressed) < len(data) {
			stored = compressed
			flags = flagCompressed
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return types.RecordLocator{}, errors.Wrap(types.ErrIOFailure, "log is closed")
	}

	if l.current.dataSize >= l.opts.SegmentTargetSize {
		if err := l.rollSegment(); err != nil {
			return types.RecordLocator{}, err
		}
	}

	entry, err := l.current.appendRecord(stored, uint32(len(data)), flags)
	if err != nil {
		return types.RecordLocator{}, err
	}

	return types.RecordLocator{
		Segment: l.current.id,
		Offset:  entry.Offset,
		Length:  entry.Length,
	}, nil
}

// rollSegment seals the current segment and opens the next. Caller holds
// the write lock.
func (l *Log) rollSegment() error {
	sealedID := l.current.id
	l.current.sealed = true
	l.sealed[sealedID] = l.current

	seg, err := createSegment(segmentDir(l.dir, l.name), sealedID+1)
	if err != nil {
		return err
	}
	l.logger.Info("sealed segment %d at %s, opened segment %d",
		sealedID, helpers.FormatBytes(int64(l.sealed[sealedID].dataSize)), seg.id)
	l.current = seg
	return nil
}

// Read returns the original bytes behind a locator. A locator that does not
// match a stored record exactly (unknown segment, offset not on a record
// boundary, length mismatch, checksum failure) yields Corrupted, never
// garbage.
func (l *Log) Read(loc types.RecordLocator) ([]byte, error) {
	seg, entry, err := l.lookupEntry(loc)
	if err != nil {
		return nil, err
	}

	stored, err := seg.readStored(entry)
	if err != nil {
		return nil, err
	}

	if !entry.compressed() {
		return stored, nil
	}
	out, err := l.decoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, errors.Wrapf(types.ErrCorrupted, "%s: decompress segment %d offset %d: %v", l.name, loc.Segment, loc.Offset, err)
	}
	if uint32(len(out)) != entry.OrigLen {
		return nil, errors.Wrapf(types.ErrCorrupted, "%s: decompressed length %d != recorded %d", l.name, len(out), entry.OrigLen)
	}
	return out, nil
}

// lookupEntry resolves a locator to its segment and validated index entry.
// Append grows the current segment's entries and dataSize under the write
// lock, so for the unsealed segment the entry search and size check run
// under the read lock. Sealed segments are immutable and are checked after
// unlocking.
func (l *Log) lookupEntry(loc types.RecordLocator) (*segment, indexEntry, error) {
	l.mu.RLock()
	if l.current != nil && l.current.id == loc.Segment {
		seg := l.current
		entry, found := seg.entryAt(loc.Offset)
		size := seg.dataSize
		l.mu.RUnlock()
		if err := l.checkEntry(entry, found, size, loc); err != nil {
			return nil, indexEntry{}, err
		}
		return seg, entry, nil
	}
	seg, ok := l.sealed[loc.Segment]
	l.mu.RUnlock()

	if !ok {
		var err error
		seg, err = l.openSealed(loc.Segment)
		if err != nil {
			return nil, indexEntry{}, err
		}
	}
	entry, found := seg.entryAt(loc.Offset)
	if err := l.checkEntry(entry, found, seg.dataSize, loc); err != nil {
		return nil, indexEntry{}, err
	}
	return seg, entry, nil
}

// checkEntry validates a locator against the index entry found at its
// offset, with size the segment's committed data size.
func (l *Log) checkEntry(entry indexEntry, found bool, size uint64, loc types.RecordLocator) error {
	if !found {
		return errors.Wrapf(types.ErrCorrupted, "%s: no record at segment %d offset %d", l.name, loc.Segment, loc.Offset)
	}
	if entry.Length != loc.Length {
		return errors.Wrapf(types.ErrCorrupted, "%s: locator length %d != stored %d at segment %d offset %d",
			l.name, loc.Length, entry.Length, loc.Segment, loc.Offset)
	}
	if entry.end() > size {
		return errors.Wrapf(types.ErrCorrupted, "%s: record at segment %d offset %d exceeds segment size", l.name, loc.Segment, loc.Offset)
	}
	return nil
}

// openSealed lazily opens a sealed segment read-only and caches the handle.
func (l *Log) openSealed(id uint32) (*segment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seg, ok := l.sealed[id]; ok {
		return seg, nil
	}
	if l.current != nil && id > l.current.id {
		return nil, errors.Wrapf(types.ErrCorrupted, "%s: locator references future segment %d", l.name, id)
	}
	seg, err := openSegment(segmentDir(l.dir, l.name), id, false)
	if err != nil {
		return nil, err
	}
	seg.sealed = true
	l.sealed[id] = seg
	return seg, nil
}

// Head returns the durable append position: the current segment and the
// offset the next record would land at.
func (l *Log) Head() types.LogHead {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.current == nil {
		return types.LogHead{}
	}
	return types.LogHead{Segment: l.current.id, Offset: l.current.dataSize}
}

// TruncateTo discards every record beyond head: segments newer than
// head.Segment are deleted, and head.Segment is cut back to head.Offset.
// Returns Corrupted if head lies beyond the physical end of the log (the
// index claims data that does not exist). Recovery only; must not run
// concurrently with appends.
func (l *Log) TruncateTo(head types.LogHead) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return errors.Wrap(types.ErrIOFailure, "log is closed")
	}
	if head.Segment > l.current.id ||
		(head.Segment == l.current.id && head.Offset > l.current.dataSize) {
		return errors.Wrapf(types.ErrCorrupted,
			"%s: watermark %d/%d beyond physical head %d/%d",
			l.name, head.Segment, head.Offset, l.current.id, l.current.dataSize)
	}
	if head.Segment == l.current.id && head.Offset == l.current.dataSize {
		return nil
	}

	logDir := segmentDir(l.dir, l.name)

	// Drop whole segments past the watermark.
	for l.current.id > head.Segment {
		dropped := l.current.id
		l.current.closeFiles()
		if err := removeSegment(logDir, dropped); err != nil {
			return err
		}
		l.logger.Info("recovery: dropped unindexed segment %d", dropped)

		// A lazily opened read handle for the segment we are about to
		// reopen writable must go first.
		if old, ok := l.sealed[dropped-1]; ok {
			old.closeFiles()
			delete(l.sealed, dropped-1)
		}
		seg, err := openSegment(logDir, dropped-1, true)
		if err != nil {
			return err
		}
		l.current = seg
	}

	if head.Offset < l.current.dataSize {
		discarded := l.current.dataSize - head.Offset
		if err := l.current.truncateTo(head.Offset); err != nil {
			return err
		}
		l.logger.Info("recovery: discarded %s of unindexed trailing bytes in segment %d",
			helpers.FormatBytes(int64(discarded)), l.current.id)
	}
	return nil
}

// SegmentCount returns the number of segments on disk.
func (l *Log) SegmentCount() (int, error) {
	ids, err := discoverSegments(segmentDir(l.dir, l.name))
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close closes all open segment files and the codecs.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		l.current.closeFiles()
		l.current = nil
	}
	for _, seg := range l.sealed {
		seg.closeFiles()
	}
	l.sealed = nil
	l.closeCodecs()
}

func (l *Log) closeCodecs() {
	if l.decoder != nil {
		l.decoder.Close()
		l.decoder = nil
	}
	if l.encoder != nil {
		l.encoder.Close()
		l.encoder = nil
	}
}
