package txstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBadgerBlobStoreRefcounting(t *testing.T) {
	bs, err := NewInMemoryBlobStore()
	require.NoError(t, err)
	defer bs.Close()

	data := []byte("a somewhat large payload that stands in for a blob")
	h1, err := bs.Insert(data)
	require.NoError(t, err)

	require.NoError(t, bs.Clone(h1))

	got, ok := bs.Retrieve(h1)
	require.True(t, ok)
	require.Equal(t, data, got)

	require.NoError(t, bs.Free(h1))
	_, ok = bs.Retrieve(h1)
	require.True(t, ok, "still referenced once after a single Free following Clone")

	require.NoError(t, bs.Free(h1))
	_, ok = bs.Retrieve(h1)
	require.False(t, ok, "last reference freed should delete the blob")
}

func TestBadgerBlobStoreContentAddressed(t *testing.T) {
	bs, err := NewInMemoryBlobStore()
	require.NoError(t, err)
	defer bs.Close()

	h1, err := bs.Insert([]byte("same bytes"))
	require.NoError(t, err)
	h2, err := bs.Insert([]byte("same bytes"))
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}
