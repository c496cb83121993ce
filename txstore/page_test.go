package txstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageFixedRowAllocFreeReuse(t *testing.T) {
	p := NewPage(16)
	off1, err := p.AllocFixedRow()
	require.NoError(t, err)
	off2, err := p.AllocFixedRow()
	require.NoError(t, err)
	require.NotEqual(t, off1, off2)
	require.True(t, p.IsPresent(off1))

	p.FreeFixedRow(off1)
	require.False(t, p.IsPresent(off1))

	off3, err := p.AllocFixedRow()
	require.NoError(t, err)
	require.Equal(t, off1, off3, "freed slot should be reused before the high-water mark advances")
}

func TestPageVarLenChainRoundTrip(t *testing.T) {
	p := NewPage(8)
	data := make([]byte, 200)
	for i := range data {
		data[i] = byte(i)
	}
	ref, err := p.AllocVarLen(data)
	require.NoError(t, err)
	require.False(t, ref.IsNull())

	got := p.ReadVarLen(ref)
	require.Equal(t, data, got)

	p.FreeGranuleChain(ref.FirstGranule)
	free := p.CountFreeGranules()
	require.Greater(t, free, 0)
}

func TestPageInsufficientFixedLenSpace(t *testing.T) {
	p := NewPage(PageSize - 1) // a single row claims all but one byte of the page
	_, err := p.AllocFixedRow()
	require.NoError(t, err)
	_, err = p.AllocFixedRow()
	require.Error(t, err)
	var pe *PageError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, PageInsufficientFixedLenSpace, pe.Kind)
}

func TestPageContentHashStableUntilMutated(t *testing.T) {
	p := NewPage(16)
	h1 := p.ContentHash()
	h2 := p.ContentHash()
	require.Equal(t, h1, h2)

	_, err := p.AllocFixedRow()
	require.NoError(t, err)
	h3 := p.ContentHash()
	require.NotEqual(t, h1, h3)
}
