package kvstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
	v, ok, err := s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", string(v))

	existed, err := s.Delete(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, existed)

	_, ok, err = s.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemStoreScanOrderedAndPrefixed(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	keys := []string{"doc:users:3", "doc:users:1", "doc:other:9", "doc:users:2"}
	for _, k := range keys {
		require.NoError(t, s.Put(ctx, []byte(k), []byte("v")))
	}

	entries, err := s.Scan(ctx, ScanOptions{Prefix: []byte("doc:users:")})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "doc:users:1", string(entries[0].Key))
	require.Equal(t, "doc:users:2", string(entries[1].Key))
	require.Equal(t, "doc:users:3", string(entries[2].Key))
}

func TestMemStoreScanLimitAndCursor(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, []byte{byte('a' + i)}, []byte("v")))
	}

	first, err := s.Scan(ctx, ScanOptions{Prefix: []byte{}, Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)

	last := first[len(first)-1].Key
	next, err := s.Scan(ctx, ScanOptions{StartKey: append(append([]byte{}, last...), 0x00), Limit: 3})
	require.NoError(t, err)
	require.Len(t, next, 3)
	require.NotEqual(t, string(first[0].Key), string(next[0].Key))
}

func TestMemStoreBatchWriteAtomicOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Put(ctx, []byte("k"), []byte("old")))

	err := s.BatchWrite(ctx, []Entry{{Key: []byte("k2"), Value: []byte("new")}}, [][]byte{[]byte("k")})
	require.NoError(t, err)

	_, ok, _ := s.Get(ctx, []byte("k"))
	require.False(t, ok)
	v, ok, _ := s.Get(ctx, []byte("k2"))
	require.True(t, ok)
	require.Equal(t, "new", string(v))
}

func TestMemStoreCount(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.Put(ctx, []byte("doc:a:1"), []byte("v")))
	require.NoError(t, s.Put(ctx, []byte("doc:a:2"), []byte("v")))
	require.NoError(t, s.Put(ctx, []byte("doc:b:1"), []byte("v")))

	n, err := s.Count(ctx, []byte("doc:a:"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
