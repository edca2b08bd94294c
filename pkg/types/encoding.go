// =============================================================================
// pkg/types/encoding.go - Binary Encodings
// =============================================================================
//
// Fixed binary layouts for the values held in the indexed store. All
// integers are big-endian so lexicographic key order matches numeric order.
//
// LAYOUTS:
//
//	RecordLocator (16 bytes):
//	  [0:4]   segment id (uint32)
//	  [4:12]  byte offset (uint64)
//	  [12:16] byte length (uint32)
//
//	BlockHeader value ("blocks" CF): locator ++ header fields
//	  [0:16]      locator
//	  [16:48]     hash
//	  [48:52]     level
//	  [52:84]     predecessor
//	  [84:92]     timestamp (unix seconds, int64)
//	  [92:124]    context root
//	  [124:128]   fitness length, then fitness bytes
//	  [+0:+4]     protocol data length, then protocol data bytes
//
//	BlockMetadata value ("block_meta" CF):
//	  [0]     validation status
//	  [1]     main-chain flag
//	  [2:4]   successor count (uint16), then 32 bytes per successor
//
//	Operation value ("operations" CF):
//	  [0:16]  locator
//	  [16]    validation status
//
// =============================================================================

package types

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
)

// LocatorSize is the encoded size of a RecordLocator.
const LocatorSize = 16

// EncodeLocator appends the 16-byte encoding of loc to dst.
func EncodeLocator(dst []byte, loc RecordLocator) []byte {
	dst = binary.BigEndian.AppendUint32(dst, loc.Segment)
	dst = binary.BigEndian.AppendUint64(dst, loc.Offset)
	dst = binary.BigEndian.AppendUint32(dst, loc.Length)
	return dst
}

// DecodeLocator decodes a RecordLocator from the first 16 bytes of b.
func DecodeLocator(b []byte) (RecordLocator, error) {
	if len(b) < LocatorSize {
		return RecordLocator{}, errors.Wrapf(ErrSerialization, "locator: need %d bytes, have %d", LocatorSize, len(b))
	}
	return RecordLocator{
		Segment: binary.BigEndian.Uint32(b[0:4]),
		Offset:  binary.BigEndian.Uint64(b[4:12]),
		Length:  binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// EncodeBlockValue encodes the "blocks" CF value: the raw record locator
// followed by the header.
func EncodeBlockValue(loc RecordLocator, h *BlockHeader) []byte {
	out := make([]byte, 0, LocatorSize+128+len(h.Fitness)+len(h.ProtocolData)+8)
	out = EncodeLocator(out, loc)
	out = append(out, h.Hash[:]...)
	out = binary.BigEndian.AppendUint32(out, h.Level)
	out = append(out, h.Predecessor[:]...)
	out = binary.BigEndian.AppendUint64(out, uint64(h.Timestamp.Unix()))
	out = append(out, h.ContextRoot[:]...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(h.Fitness)))
	out = append(out, h.Fitness...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(h.ProtocolData)))
	out = append(out, h.ProtocolData...)
	return out
}

// DecodeBlockValue decodes a "blocks" CF value.
func DecodeBlockValue(b []byte) (RecordLocator, *BlockHeader, error) {
	loc, err := DecodeLocator(b)
	if err != nil {
		return RecordLocator{}, nil, err
	}
	b = b[LocatorSize:]
	if len(b) < HashSize+4+HashSize+8+HashSize+4 {
		return RecordLocator{}, nil, errors.Wrap(ErrSerialization, "block value: truncated header")
	}
	h := &BlockHeader{}
	copy(h.Hash[:], b[:HashSize])
	b = b[HashSize:]
	h.Level = binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	copy(h.Predecessor[:], b[:HashSize])
	b = b[HashSize:]
	h.Timestamp = time.Unix(int64(binary.BigEndian.Uint64(b[:8])), 0).UTC()
	b = b[8:]
	copy(h.ContextRoot[:], b[:HashSize])
	b = b[HashSize:]

	fitness, rest, err := readLengthPrefixed(b, "fitness")
	if err != nil {
		return RecordLocator{}, nil, err
	}
	h.Fitness = fitness
	proto, rest, err := readLengthPrefixed(rest, "protocol data")
	if err != nil {
		return RecordLocator{}, nil, err
	}
	h.ProtocolData = proto
	if len(rest) != 0 {
		return RecordLocator{}, nil, errors.Wrapf(ErrSerialization, "block value: %d trailing bytes", len(rest))
	}
	return loc, h, nil
}

func readLengthPrefixed(b []byte, what string) ([]byte, []byte, error) {
	if len(b) < 4 {
		return nil, nil, errors.Wrapf(ErrSerialization, "block value: truncated %s length", what)
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		return nil, nil, errors.Wrapf(ErrSerialization, "block value: truncated %s", what)
	}
	out := make([]byte, n)
	copy(out, b[:n])
	return out, b[n:], nil
}

// EncodeBlockMetadata encodes a "block_meta" CF value.
func EncodeBlockMetadata(m *BlockMetadata) []byte {
	out := make([]byte, 0, 4+len(m.Successors)*HashSize)
	out = append(out, byte(m.Status))
	if m.IsMainChain {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	out = binary.BigEndian.AppendUint16(out, uint16(len(m.Successors)))
	for _, s := range m.Successors {
		out = append(out, s[:]...)
	}
	return out
}

// DecodeBlockMetadata decodes a "block_meta" CF value.
func DecodeBlockMetadata(b []byte) (*BlockMetadata, error) {
	if len(b) < 4 {
		return nil, errors.Wrap(ErrSerialization, "block metadata: truncated")
	}
	m := &BlockMetadata{
		Status:      ValidationStatus(b[0]),
		IsMainChain: b[1] == 1,
	}
	if !m.Status.Valid() {
		return nil, errors.Wrapf(ErrSerialization, "block metadata: undefined status %d", b[0])
	}
	count := int(binary.BigEndian.Uint16(b[2:4]))
	b = b[4:]
	if len(b) != count*HashSize {
		return nil, errors.Wrapf(ErrSerialization, "block metadata: %d successors but %d payload bytes", count, len(b))
	}
	m.Successors = make([]BlockHash, count)
	for i := 0; i < count; i++ {
		copy(m.Successors[i][:], b[i*HashSize:(i+1)*HashSize])
	}
	return m, nil
}

// EncodeOperationValue encodes an "operations" CF value.
func EncodeOperationValue(loc RecordLocator, status ValidationStatus) []byte {
	out := make([]byte, 0, LocatorSize+1)
	out = EncodeLocator(out, loc)
	return append(out, byte(status))
}

// DecodeOperationValue decodes an "operations" CF value.
func DecodeOperationValue(b []byte) (RecordLocator, ValidationStatus, error) {
	if len(b) != LocatorSize+1 {
		return RecordLocator{}, 0, errors.Wrapf(ErrSerialization, "operation value: bad length %d", len(b))
	}
	loc, err := DecodeLocator(b)
	if err != nil {
		return RecordLocator{}, 0, err
	}
	status := ValidationStatus(b[LocatorSize])
	if !status.Valid() {
		return RecordLocator{}, 0, errors.Wrapf(ErrSerialization, "operation value: undefined status %d", b[LocatorSize])
	}
	return loc, status, nil
}

// EncodeLogHead encodes a record log watermark ("default" CF value).
func EncodeLogHead(h LogHead) []byte {
	out := make([]byte, 0, 12)
	out = binary.BigEndian.AppendUint32(out, h.Segment)
	out = binary.BigEndian.AppendUint64(out, h.Offset)
	return out
}

// DecodeLogHead decodes a record log watermark.
func DecodeLogHead(b []byte) (LogHead, error) {
	if len(b) != 12 {
		return LogHead{}, errors.Wrapf(ErrSerialization, "log head: bad length %d", len(b))
	}
	return LogHead{
		Segment: binary.BigEndian.Uint32(b[0:4]),
		Offset:  binary.BigEndian.Uint64(b[4:12]),
	}, nil
}
