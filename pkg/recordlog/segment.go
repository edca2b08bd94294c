// =============================================================================
// pkg/recordlog/segment.go - Segment Files and Index Entries
// =============================================================================
//
// A record log is a directory of segment file pairs:
//
//	<dir>/<name>/NNNNNN.data   concatenated record payloads
//	<dir>/<name>/NNNNNN.index  fixed-width entries locating each payload
//
// Index file layout:
//
//	header (8 bytes): [0] format version, [1] entry size, [2:8] reserved
//	entries (24 bytes each):
//	  [0:8]   data file offset (uint64 BE)
//	  [8:12]  stored length (uint32 BE)
//	  [12:16] original (uncompressed) length (uint32 BE)
//	  [16:20] CRC-32C of the stored bytes (uint32 BE)
//	  [20]    flags (bit 0: zstd compressed)
//	  [21:24] reserved
//
// Fixed-width entries mean the index is self-describing about record count
// and every locator can be validated without touching the data file.
//
// =============================================================================

package recordlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/karthikiyer56/chainstore/pkg/types"
)

const (
	// IndexHeaderSize is the size of the index file header in bytes.
	IndexHeaderSize = 8

	// IndexEntrySize is the fixed width of one index entry.
	IndexEntrySize = 24

	// IndexVersion is the current index file format version.
	IndexVersion = 1

	// flagCompressed marks a record stored zstd-compressed.
	flagCompressed = 1
)

// castagnoli is the CRC-32C table shared by all segments.
var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// indexEntry locates one record inside a segment's data file.
type indexEntry struct {
	Offset  uint64
	Length  uint32
	OrigLen uint32
	CRC     uint32
	Flags   uint8
}

func (e indexEntry) compressed() bool { return e.Flags&flagCompressed != 0 }

// end returns the data file offset one past the record.
func (e indexEntry) end() uint64 { return e.Offset + uint64(e.Length) }

func encodeIndexEntry(dst []byte, e indexEntry) []byte {
	dst = binary.BigEndian.AppendUint64(dst, e.Offset)
	dst = binary.BigEndian.AppendUint32(dst, e.Length)
	dst = binary.BigEndian.AppendUint32(dst, e.OrigLen)
	dst = binary.BigEndian.AppendUint32(dst, e.CRC)
	dst = append(dst, e.Flags, 0, 0, 0)
	return dst
}

func decodeIndexEntry(b []byte) indexEntry {
	return indexEntry{
		Offset:  binary.BigEndian.Uint64(b[0:8]),
		Length:  binary.BigEndian.Uint32(b[8:12]),
		OrigLen: binary.BigEndian.Uint32(b[12:16]),
		CRC:     binary.BigEndian.Uint32(b[16:20]),
		Flags:   b[20],
	}
}

// =============================================================================
// File Path Functions
// =============================================================================

// segmentDir returns the directory holding a named log's segments.
func segmentDir(dir, name string) string {
	return filepath.Join(dir, name)
}

// removeSegment deletes both files of a segment.
func removeSegment(dir string, segmentID uint32) error {
	if err := os.Remove(dataPath(dir, segmentID)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(types.ErrIOFailure, "remove data for segment %d: %v", segmentID, err)
	}
	if err := os.Remove(indexPath(dir, segmentID)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(types.ErrIOFailure, "remove index for segment %d: %v", segmentID, err)
	}
	return nil
}

// dataPath returns the data file path for a segment.
func dataPath(dir string, segmentID uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.data", segmentID))
}

// indexPath returns the index file path for a segment.
func indexPath(dir string, segmentID uint32) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.index", segmentID))
}

// discoverSegments lists the segment IDs present in dir, sorted ascending.
// A segment counts as present when its index file exists.
func discoverSegments(dir string) ([]uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(types.ErrIOFailure, "read segment dir %s: %v", dir, err)
	}
	var ids []uint32
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".index") {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, ".index"), 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint32(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =============================================================================
// Segment - One Open data/index File Pair
// =============================================================================

// segment is an open data/index file pair with its entries resident in
// memory (entries are 24 bytes per record, the data file holds the bulk).
// Sealed segments are immutable: their files are only ever read, so
// concurrent ReadAt needs no locking.
type segment struct {
	id        uint32
	dataFile  *os.File
	indexFile *os.File
	entries   []indexEntry
	dataSize  uint64
	sealed    bool
}

// openSegment opens an existing segment and loads its index, repairing a
// torn tail from a crash mid-append:
//   - an index entry pointing past the physical end of data (torn index
//     write) is dropped, along with everything after it
//   - data bytes beyond the last index entry (torn data write, index entry
//     never landed) are truncated away
//
// Repairs require write access; pass writable=false to fail on damage
// instead (read-only inspection).
func openSegment(dir string, id uint32, writable bool) (*segment, error) {
	flags := os.O_RDONLY
	if writable {
		flags = os.O_RDWR
	}

	indexFile, err := os.OpenFile(indexPath(dir, id), flags, 0644)
	if err != nil {
		return nil, errors.Wrapf(types.ErrIOFailure, "open index for segment %d: %v", id, err)
	}
	dataFile, err := os.OpenFile(dataPath(dir, id), flags, 0644)
	if err != nil {
		indexFile.Close()
		return nil, errors.Wrapf(types.ErrIOFailure, "open data for segment %d: %v", id, err)
	}

	s := &segment{id: id, dataFile: dataFile, indexFile: indexFile}
	if err := s.loadIndex(writable); err != nil {
		s.closeFiles()
		return nil, err
	}
	return s, nil
}

// createSegment creates a fresh empty segment.
func createSegment(dir string, id uint32) (*segment, error) {
	indexFile, err := os.OpenFile(indexPath(dir, id), os.O_CREATE|os.O_RDWR|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(types.ErrIOFailure, "create index for segment %d: %v", id, err)
	}
	header := make([]byte, IndexHeaderSize)
	header[0] = IndexVersion
	header[1] = IndexEntrySize
	if _, err := indexFile.Write(header); err != nil {
		indexFile.Close()
		return nil, errors.Wrapf(types.ErrIOFailure, "write index header for segment %d: %v", id, err)
	}
	if err := indexFile.Sync(); err != nil {
		indexFile.Close()
		return nil, errors.Wrapf(types.ErrIOFailure, "sync index header for segment %d: %v", id, err)
	}

	dataFile, err := os.OpenFile(dataPath(dir, id), os.O_CREATE|os.O_RDWR|os.O_EXCL, 0644)
	if err != nil {
		indexFile.Close()
		return nil, errors.Wrapf(types.ErrIOFailure, "create data for segment %d: %v", id, err)
	}

	return &segment{id: id, dataFile: dataFile, indexFile: indexFile}, nil
}

// loadIndex reads the header and all entries, then reconciles them with the
// physical data size.
func (s *segment) loadIndex(repair bool) error {
	info, err := s.indexFile.Stat()
	if err != nil {
		return errors.Wrapf(types.ErrIOFailure, "stat index for segment %d: %v", s.id, err)
	}
	if info.Size() < IndexHeaderSize {
		return errors.Wrapf(types.ErrCorrupted, "segment %d: index file shorter than header", s.id)
	}

	header := make([]byte, IndexHeaderSize)
	if _, err := s.indexFile.ReadAt(header, 0); err != nil {
		return errors.Wrapf(types.ErrIOFailure, "read index header for segment %d: %v", s.id, err)
	}
	if header[0] != IndexVersion {
		return errors.Wrapf(types.ErrCorrupted, "segment %d: unsupported index version %d", s.id, header[0])
	}
	if header[1] != IndexEntrySize {
		return errors.Wrapf(types.ErrCorrupted, "segment %d: unexpected index entry size %d", s.id, header[1])
	}

	// A torn index append leaves a partial trailing entry; ignore it.
	numEntries := (info.Size() - IndexHeaderSize) / IndexEntrySize

	raw := make([]byte, numEntries*IndexEntrySize)
	if _, err := s.indexFile.ReadAt(raw, IndexHeaderSize); err != nil {
		return errors.Wrapf(types.ErrIOFailure, "read index entries for segment %d: %v", s.id, err)
	}

	dataInfo, err := s.dataFile.Stat()
	if err != nil {
		return errors.Wrapf(types.ErrIOFailure, "stat data for segment %d: %v", s.id, err)
	}
	physical := uint64(dataInfo.Size())

	entries := make([]indexEntry, 0, numEntries)
	var end uint64
	for i := int64(0); i < numEntries; i++ {
		e := decodeIndexEntry(raw[i*IndexEntrySize:])
		if e.Offset != end {
			return errors.Wrapf(types.ErrCorrupted, "segment %d: entry %d offset %d, expected %d", s.id, i, e.Offset, end)
		}
		if e.end() > physical {
			// Torn index write: the entry landed but its data did not.
			if !repair {
				return errors.Wrapf(types.ErrCorrupted, "segment %d: entry %d points past end of data", s.id, i)
			}
			break
		}
		entries = append(entries, e)
		end = e.end()
	}

	if repair {
		if len(entries) != int(numEntries) {
			if err := s.indexFile.Truncate(IndexHeaderSize + int64(len(entries))*IndexEntrySize); err != nil {
				return errors.Wrapf(types.ErrIOFailure, "truncate torn index for segment %d: %v", s.id, err)
			}
		}
		if physical > end {
			// Torn data write: the bytes landed but their entry did not.
			if err := s.dataFile.Truncate(int64(end)); err != nil {
				return errors.Wrapf(types.ErrIOFailure, "truncate torn data for segment %d: %v", s.id, err)
			}
		}
	} else if physical > end {
		return errors.Wrapf(types.ErrCorrupted, "segment %d: %d unindexed trailing data bytes", s.id, physical-end)
	}

	s.entries = entries
	s.dataSize = end
	return nil
}

// entryAt finds the index entry starting at the given data offset. For the
// unsealed current segment the caller holds the log's lock; sealed segments
// are immutable.
func (s *segment) entryAt(offset uint64) (indexEntry, bool) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Offset >= offset
	})
	if i < len(s.entries) && s.entries[i].Offset == offset {
		return s.entries[i], true
	}
	return indexEntry{}, false
}

// appendRecord writes the stored bytes and their index entry, syncing both
// files before returning. Only ever called on the unsealed current segment
// by the single writer.
func (s *segment) appendRecord(stored []byte, origLen uint32, flags uint8) (indexEntry, error) {
	e := indexEntry{
		Offset:  s.dataSize,
		Length:  uint32(len(stored)),
		OrigLen: origLen,
		CRC:     crc32.Checksum(stored, castagnoli),
		Flags:   flags,
	}

	if _, err := s.dataFile.WriteAt(stored, int64(e.Offset)); err != nil {
		return indexEntry{}, errors.Wrapf(types.ErrIOFailure, "segment %d: write record: %v", s.id, err)
	}
	if err := s.dataFile.Sync(); err != nil {
		return indexEntry{}, errors.Wrapf(types.ErrIOFailure, "segment %d: sync data: %v", s.id, err)
	}

	entryOffset := IndexHeaderSize + int64(len(s.entries))*IndexEntrySize
	if _, err := s.indexFile.WriteAt(encodeIndexEntry(nil, e), entryOffset); err != nil {
		return indexEntry{}, errors.Wrapf(types.ErrIOFailure, "segment %d: write index entry: %v", s.id, err)
	}
	if err := s.indexFile.Sync(); err != nil {
		return indexEntry{}, errors.Wrapf(types.ErrIOFailure, "segment %d: sync index: %v", s.id, err)
	}

	s.entries = append(s.entries, e)
	s.dataSize = e.end()
	return e, nil
}

// readStored reads the on-disk bytes for an entry and verifies the CRC.
func (s *segment) readStored(e indexEntry) ([]byte, error) {
	buf := make([]byte, e.Length)
	if _, err := s.dataFile.ReadAt(buf, int64(e.Offset)); err != nil {
		return nil, errors.Wrapf(types.ErrIOFailure, "segment %d: read at %d: %v", s.id, e.Offset, err)
	}
	if crc32.Checksum(buf, castagnoli) != e.CRC {
		return nil, errors.Wrapf(types.ErrCorrupted, "segment %d: checksum mismatch at offset %d", s.id, e.Offset)
	}
	return buf, nil
}

// truncateTo discards every record at or beyond the given data offset.
// Recovery only.
func (s *segment) truncateTo(offset uint64) error {
	keep := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Offset >= offset
	})
	if keep < len(s.entries) {
		if err := s.indexFile.Truncate(IndexHeaderSize + int64(keep)*IndexEntrySize); err != nil {
			return errors.Wrapf(types.ErrIOFailure, "segment %d: truncate index: %v", s.id, err)
		}
		if err := s.indexFile.Sync(); err != nil {
			return errors.Wrapf(types.ErrIOFailure, "segment %d: sync index: %v", s.id, err)
		}
		s.entries = s.entries[:keep]
	}
	end := uint64(0)
	if len(s.entries) > 0 {
		end = s.entries[len(s.entries)-1].end()
	}
	if err := s.dataFile.Truncate(int64(end)); err != nil {
		return errors.Wrapf(types.ErrIOFailure, "segment %d: truncate data: %v", s.id, err)
	}
	if err := s.dataFile.Sync(); err != nil {
		return errors.Wrapf(types.ErrIOFailure, "segment %d: sync data: %v", s.id, err)
	}
	s.dataSize = end
	return nil
}

func (s *segment) closeFiles() {
	if s.dataFile != nil {
		s.dataFile.Close()
		s.dataFile = nil
	}
	if s.indexFile != nil {
		s.indexFile.Close()
		s.indexFile = nil
	}
}
