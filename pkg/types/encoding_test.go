package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBlockValueRoundTrip(t *testing.T) {
	loc := RecordLocator{Segment: 3, Offset: 1 << 33, Length: 4096}
	h := &BlockHeader{
		Level:        123456,
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		Fitness:      []byte{0x01, 0x00, 0x02},
		ProtocolData: []byte("protocol-specific payload"),
	}
	copy(h.Hash[:], "hash-of-this-block")
	copy(h.Predecessor[:], "hash-of-predecessor")
	copy(h.ContextRoot[:], "context-root-after-apply")

	encoded := EncodeBlockValue(loc, h)
	gotLoc, gotHeader, err := DecodeBlockValue(encoded)
	require.NoError(t, err)
	require.Equal(t, loc, gotLoc)
	require.Equal(t, h, gotHeader)

	// Empty variable-length fields survive too.
	h.Fitness = nil
	h.ProtocolData = nil
	_, gotHeader, err = DecodeBlockValue(EncodeBlockValue(loc, h))
	require.NoError(t, err)
	require.Empty(t, gotHeader.Fitness)
	require.Empty(t, gotHeader.ProtocolData)
}

func TestBlockValueRejectsDamage(t *testing.T) {
	encoded := EncodeBlockValue(RecordLocator{Length: 10}, &BlockHeader{Level: 7, Timestamp: time.Unix(0, 0)})

	_, _, err := DecodeBlockValue(encoded[:40])
	require.True(t, IsSerialization(err))

	_, _, err = DecodeBlockValue(append(encoded, 0xde, 0xad))
	require.True(t, IsSerialization(err))

	_, err = DecodeLocator([]byte{1, 2, 3})
	require.True(t, IsSerialization(err))
}

func TestBlockMetadataRoundTrip(t *testing.T) {
	var s1, s2 BlockHash
	copy(s1[:], "successor-one")
	copy(s2[:], "successor-two")

	m := &BlockMetadata{
		Status:      StatusApplied,
		IsMainChain: true,
		Successors:  []BlockHash{s1, s2},
	}
	got, err := DecodeBlockMetadata(EncodeBlockMetadata(m))
	require.NoError(t, err)
	require.Equal(t, m, got)

	// No successors decodes to an empty slice.
	got, err = DecodeBlockMetadata(EncodeBlockMetadata(&BlockMetadata{Status: StatusInvalid}))
	require.NoError(t, err)
	require.Equal(t, StatusInvalid, got.Status)
	require.Empty(t, got.Successors)

	// Undefined status byte is rejected.
	bad := EncodeBlockMetadata(m)
	bad[0] = 99
	_, err = DecodeBlockMetadata(bad)
	require.True(t, IsSerialization(err))
}

func TestOperationValueRoundTrip(t *testing.T) {
	loc := RecordLocator{Segment: 1, Offset: 512, Length: 64}
	gotLoc, status, err := DecodeOperationValue(EncodeOperationValue(loc, StatusApplied))
	require.NoError(t, err)
	require.Equal(t, loc, gotLoc)
	require.Equal(t, StatusApplied, status)

	_, _, err = DecodeOperationValue([]byte{1, 2, 3})
	require.True(t, IsSerialization(err))
}

func TestLogHeadRoundTrip(t *testing.T) {
	head := LogHead{Segment: 9, Offset: 1 << 40}
	got, err := DecodeLogHead(EncodeLogHead(head))
	require.NoError(t, err)
	require.Equal(t, head, got)

	_, err = DecodeLogHead([]byte("short"))
	require.True(t, IsSerialization(err))
}
