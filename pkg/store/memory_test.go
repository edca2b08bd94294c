package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/karthikiyer56/chainstore/pkg/cf"
	"github.com/karthikiyer56/chainstore/pkg/interfaces"
)

func TestMemoryGetWrite(t *testing.T) {
	db := NewMemoryStore()
	defer db.Close()

	_, found, err := db.Get(cf.Blocks, []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)

	batch := &interfaces.Batch{}
	batch.Put(cf.Blocks, []byte("k1"), []byte("v1"))
	batch.Put(cf.BlockMeta, []byte("k1"), []byte("meta"))
	require.NoError(t, db.Write(batch))

	value, found, err := db.Get(cf.Blocks, []byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), value)

	// Families are independent key spaces.
	value, found, err = db.Get(cf.BlockMeta, []byte("k1"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("meta"), value)

	// Upsert.
	batch.Reset()
	batch.Put(cf.Blocks, []byte("k1"), []byte("v2"))
	require.NoError(t, db.Write(batch))
	value, _, err = db.Get(cf.Blocks, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), value)
}

func TestMemoryIteratorRange(t *testing.T) {
	db := NewMemoryStore()
	defer db.Close()

	batch := &interfaces.Batch{}
	for i := 0; i < 10; i++ {
		batch.Put(cf.BlockLevel, []byte(fmt.Sprintf("key%02d", i)), []byte{byte(i)})
	}
	require.NoError(t, db.Write(batch))

	iter := db.NewIterator(cf.BlockLevel, []byte("key03"), []byte("key07"))
	defer iter.Close()

	var keys []string
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Error())
	require.Equal(t, []string{"key03", "key04", "key05", "key06"}, keys)

	// Nil bounds cover the whole family.
	iter2 := db.NewIterator(cf.BlockLevel, nil, nil)
	defer iter2.Close()
	count := 0
	for iter2.SeekToFirst(); iter2.Valid(); iter2.Next() {
		count++
	}
	require.Equal(t, 10, count)
}

func TestMemoryIteratorSnapshot(t *testing.T) {
	db := NewMemoryStore()
	defer db.Close()

	batch := &interfaces.Batch{}
	batch.Put(cf.Operations, []byte("a"), []byte("1"))
	require.NoError(t, db.Write(batch))

	iter := db.NewIterator(cf.Operations, nil, nil)
	defer iter.Close()

	// Writes after iterator creation are invisible to it.
	batch.Reset()
	batch.Put(cf.Operations, []byte("b"), []byte("2"))
	require.NoError(t, db.Write(batch))

	count := 0
	for iter.SeekToFirst(); iter.Valid(); iter.Next() {
		count++
	}
	require.Equal(t, 1, count)
}
