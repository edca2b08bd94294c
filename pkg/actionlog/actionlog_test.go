package actionlog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/interfaces"
	"github.com/karthikiyer56/chainstore/pkg/logging"
	"github.com/karthikiyer56/chainstore/pkg/recordlog"
	"github.com/karthikiyer56/chainstore/pkg/store"
	"github.com/karthikiyer56/chainstore/pkg/types"
)

func hashOf(label string) types.BlockHash {
	var h types.BlockHash
	copy(h[:], fmt.Sprintf("%-32s", label))
	return h
}

func newTestLog(t *testing.T) (*Log, interfaces.IndexedStore) {
	t.Helper()
	rlog, err := recordlog.Open(t.TempDir(), "actions", recordlog.Options{}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(rlog.Close)

	db := store.NewMemoryStore()
	return New(db, rlog, nil, logging.Discard()), db
}

func TestAppendAndGetOrdered(t *testing.T) {
	l, _ := newTestLog(t)
	block := hashOf("B1")

	for i := 0; i < 5; i++ {
		seq, err := l.AppendAction(block, []byte(fmt.Sprintf("action %d", i)))
		require.NoError(t, err)
		require.Equal(t, uint32(i), seq)
	}

	actions, err := l.GetActions(block)
	require.NoError(t, err)
	require.Len(t, actions, 5)
	for i, a := range actions {
		require.Equal(t, block, a.Block)
		require.Equal(t, uint32(i), a.Sequence)
		require.Equal(t, []byte(fmt.Sprintf("action %d", i)), a.Data)
	}
}

func TestAppendActionsBatch(t *testing.T) {
	l, _ := newTestLog(t)
	block := hashOf("B2")

	_, err := l.AppendAction(block, []byte("first"))
	require.NoError(t, err)

	seqs, err := l.AppendActions(block, [][]byte{[]byte("second"), []byte("third")})
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, seqs)

	count, err := l.ActionCount(block)
	require.NoError(t, err)
	require.Equal(t, uint32(3), count)

	seqs, err = l.AppendActions(block, nil)
	require.NoError(t, err)
	require.Empty(t, seqs)
}

func TestBlocksAreIndependent(t *testing.T) {
	l, _ := newTestLog(t)
	a, b := hashOf("Ba"), hashOf("Bb")

	seq, err := l.AppendAction(a, []byte("for a"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), seq)

	seq, err = l.AppendAction(b, []byte("for b"))
	require.NoError(t, err)
	require.Equal(t, uint32(0), seq)

	actions, err := l.GetActions(a)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.Equal(t, []byte("for a"), actions[0].Data)

	// A block with no actions yields an empty slice, not an error.
	actions, err = l.GetActions(hashOf("empty"))
	require.NoError(t, err)
	require.Empty(t, actions)
}

func TestSequenceSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	rlog, err := recordlog.Open(dir, "actions", recordlog.Options{}, logging.Discard())
	require.NoError(t, err)
	db := store.NewMemoryStore()
	block := hashOf("B3")

	l := New(db, rlog, nil, logging.Discard())
	_, err = l.AppendActions(block, [][]byte{[]byte("one"), []byte("two")})
	require.NoError(t, err)
	rlog.Close()

	// A fresh Log over the same stores resumes numbering from the index.
	rlog, err = recordlog.Open(dir, "actions", recordlog.Options{}, logging.Discard())
	require.NoError(t, err)
	defer rlog.Close()

	l = New(db, rlog, nil, logging.Discard())
	seq, err := l.AppendAction(block, []byte("three"))
	require.NoError(t, err)
	require.Equal(t, uint32(2), seq)

	actions, err := l.GetActions(block)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	require.Equal(t, []byte("three"), actions[2].Data)
}
