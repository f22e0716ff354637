package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_PutOpenList(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	require.NoError(t, s.Put(ctx, "RAW-R0034-DA01-S00000.shard", []byte("alpha")))
	require.NoError(t, s.Put(ctx, "RAW-R0034-DA01-S00001.shard", []byte("beta")))
	require.NoError(t, s.Put(ctx, "notes.txt", []byte("x")))

	names, err := s.List(ctx, "RAW-")
	require.NoError(t, err)
	assert.Equal(t, []string{"RAW-R0034-DA01-S00000.shard", "RAW-R0034-DA01-S00001.shard"}, names)

	b, err := s.Open(ctx, "RAW-R0034-DA01-S00001.shard")
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, int64(4), b.Size())
	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "beta", string(buf))
}

func TestLocalStore_OpenMissing(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	_, err := s.Open(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	require.NoError(t, s.Put(ctx, "a", []byte("old")))
	require.NoError(t, s.Put(ctx, "a", []byte("new!")))

	b, err := s.Open(ctx, "a")
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, int64(4), b.Size())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "s00", []byte("one")))
	require.NoError(t, s.Put(ctx, "s01", []byte("two")))

	names, err := s.List(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []string{"s00", "s01"}, names)

	_, err = s.Open(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)

	b, err := s.Open(ctx, "s00")
	require.NoError(t, err)
	buf := make([]byte, 3)
	_, err = b.ReadAt(ctx, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf))

	require.NoError(t, s.Delete(ctx, "s00"))
	_, err = s.Open(ctx, "s00")
	assert.ErrorIs(t, err, ErrNotFound)
}
