package chainstore

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/logging"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

func hashOf(label string) types.BlockHash {
	var h types.BlockHash
	copy(h[:], fmt.Sprintf("%-32s", label))
	return h
}

func header(label string, level uint32, predecessor types.BlockHash) *types.BlockHeader {
	return &types.BlockHeader{
		Hash:        hashOf(label),
		Level:       level,
		Predecessor: predecessor,
		Timestamp:   time.Unix(1700000000+int64(level)*30, 0).UTC(),
	}
}

func openMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(&Config{DataDir: t.TempDir(), Backend: BackendMemory}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestEngineRoundTrip(t *testing.T) {
	s := openMemoryStore(t)
	w, err := s.Writer()
	require.NoError(t, err)

	genesis := header("G", 0, types.BlockHash{})
	require.NoError(t, w.PutBlock(genesis, []byte("genesis")))
	b1 := header("B1", 1, genesis.Hash)
	require.NoError(t, w.PutBlock(b1, []byte("block one")))

	require.NoError(t, w.PutOperation(b1.Hash, 0, []byte("op")))
	seqs, err := w.AppendActions(b1.Hash, [][]byte{[]byte("set /a"), []byte("del /b")})
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1}, seqs)

	raw, found, err := s.Blocks().GetBlockRaw(b1.Hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("block one"), raw)

	actions, err := s.GetActions(b1.Hash)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, []byte("set /a"), actions[0].Data)

	snap := s.Stats().Get()
	require.Equal(t, int64(2), snap.Blocks)
	require.Equal(t, int64(1), snap.Operations)
	require.Equal(t, int64(2), snap.Actions)
}

func TestWriterHandleIsExclusive(t *testing.T) {
	s := openMemoryStore(t)

	_, err := s.Writer()
	require.NoError(t, err)

	_, err = s.Writer()
	require.Error(t, err)
}

func TestRecoveryTruncatesOrphanTail(t *testing.T) {
	s := openMemoryStore(t)

	// One committed record, then one append whose indexing batch never
	// made it (simulated crash between log append and batch commit).
	committed, err := s.blockLog.Append([]byte("committed"))
	require.NoError(t, err)
	batch := &interfaces.Batch{}
	batch.Put(cf.Default, cf.LogHeadKey(blockLogName), types.EncodeLogHead(s.blockLog.Head()))
	require.NoError(t, s.db.Write(batch))

	orphanHeader := header("never committed", 0, types.BlockHash{})
	orphan, err := s.blockLog.Append([]byte("orphaned by crash"))
	require.NoError(t, err)

	require.NoError(t, s.runRecovery())

	// The half-written block is simply absent.
	_, found, err := s.Blocks().GetBlock(orphanHeader.Hash)
	require.NoError(t, err)
	require.False(t, found)

	got, err := s.blockLog.Read(committed)
	require.NoError(t, err)
	require.Equal(t, []byte("committed"), got)

	_, err = s.blockLog.Read(orphan)
	require.Error(t, err)

	watermark, found, err := s.readWatermark(blockLogName)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, watermark, s.blockLog.Head())
}

func TestRecoveryDropsUnindexedLog(t *testing.T) {
	s := openMemoryStore(t)

	// Appends with no watermark at all: every byte is orphaned.
	_, err := s.opLog.Append([]byte("never indexed"))
	require.NoError(t, err)

	require.NoError(t, s.runRecovery())
	require.Equal(t, types.LogHead{}, s.opLog.Head())
}

func TestRecoveryFatalOnWatermarkBeyondEnd(t *testing.T) {
	s := openMemoryStore(t)

	_, err := s.blockLog.Append([]byte("short"))
	require.NoError(t, err)

	batch := &interfaces.Batch{}
	batch.Put(cf.Default, cf.LogHeadKey(blockLogName),
		types.EncodeLogHead(types.LogHead{Segment: 3, Offset: 128}))
	require.NoError(t, s.db.Write(batch))

	err = s.runRecovery()
	require.True(t, types.IsCorrupted(err))
}

func TestConcurrentReadersWithOneWriter(t *testing.T) {
	const (
		totalBlocks = 1000
		readers     = 4
	)

	s := openMemoryStore(t)
	w, err := s.Writer()
	require.NoError(t, err)

	hashes := make([]types.BlockHash, totalBlocks+1)
	for i := range hashes {
		if i == 0 {
			hashes[i] = hashOf("G")
		} else {
			hashes[i] = hashOf(fmt.Sprintf("B%d", i))
		}
	}

	var written atomic.Uint32
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(seed uint32) {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				top := written.Load()
				if top == 0 {
					continue
				}
				level := (seed + uint32(i)) % top

				// A reader must always see a complete block.
				header, found, err := s.Blocks().GetBlock(hashes[level])
				require.NoError(t, err)
				require.True(t, found)
				require.Equal(t, level, header.Level)

				if level > 0 {
					ancestor, err := s.Blocks().AncestorAt(hashes[level], uint64(level))
					require.NoError(t, err)
					require.Equal(t, hashes[0], ancestor)
				}
			}
		}(uint32(r * 17))
	}

	genesis := header("G", 0, types.BlockHash{})
	require.NoError(t, w.PutBlock(genesis, []byte("genesis")))
	written.Store(1)
	for level := uint32(1); level <= totalBlocks; level++ {
		h := header(fmt.Sprintf("B%d", level), level, hashes[level-1])
		require.NoError(t, w.PutBlock(h, []byte(fmt.Sprintf("block %d", level))))
		written.Store(level + 1)
	}

	close(stop)
	wg.Wait()

	hash, level, found, err := s.Blocks().Head()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint32(totalBlocks), level)
	require.Equal(t, hashes[totalBlocks], hash)
}
