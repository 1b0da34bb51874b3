package copyrange

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutMatchesKernelABI(t *testing.T) {
	assert.Equal(t, uintptr(EntrySize), unsafe.Sizeof(RangeEntry{}))
	assert.Equal(t, uintptr(8), unsafe.Offsetof(RangeEntry{}.Dst))
	assert.Equal(t, uintptr(16), unsafe.Offsetof(RangeEntry{}.Len))
	assert.Equal(t, uintptr(24), unsafe.Offsetof(RangeEntry{}.CompLen))

	c, err := New(3)
	require.NoError(t, err)
	assert.Len(t, c.Bytes(), HeaderSize+3*EntrySize)
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrBadCapacity)
}

func TestPrepareSetsCountAndCopiesEntries(t *testing.T) {
	ranges := []Range{
		{Src: 0, Dst: 100000, Len: 4096},
		{Src: 4096, Dst: 104000, Len: 4096},
		{Src: 8192, Dst: 108000, Len: 4096},
	}
	for n := 1; n <= len(ranges); n++ {
		c, err := New(8)
		require.NoError(t, err)

		raw := Encode(ranges[:n])
		require.NoError(t, c.Prepare(raw))

		assert.Equal(t, uint64(n), c.Count())
		assert.Equal(t, uint64(0), c.Reserved())
		require.Len(t, c.Entries(), n)
		for i, e := range c.Entries() {
			assert.Equal(t, ranges[i].Src, e.Src)
			assert.Equal(t, ranges[i].Dst, e.Dst)
			assert.Equal(t, ranges[i].Len, e.Len)
			assert.Zero(t, e.CompLen)
		}
	}
}

func TestPrepareIsVerbatim(t *testing.T) {
	// A stale comp_len in the input is carried over untouched.
	raw := make([]byte, EntrySize)
	binary.NativeEndian.PutUint64(raw[0:], 1)
	binary.NativeEndian.PutUint64(raw[8:], 2)
	binary.NativeEndian.PutUint64(raw[16:], 3)
	binary.NativeEndian.PutUint64(raw[24:], 4)

	c, err := New(1)
	require.NoError(t, err)
	require.NoError(t, c.Prepare(raw))
	assert.Equal(t, RangeEntry{Src: 1, Dst: 2, Len: 3, CompLen: 4}, c.Entries()[0])
	assert.Equal(t, raw, c.Bytes()[HeaderSize:])
}

func TestPrepareZeroesPreviousBatch(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)

	require.NoError(t, c.Prepare(Encode([]Range{
		{Src: 1, Dst: 2, Len: 3},
		{Src: 4, Dst: 5, Len: 6},
		{Src: 7, Dst: 8, Len: 9},
	})))
	c.Entries()[0].CompLen = 3
	c.Entries()[2].CompLen = 9

	require.NoError(t, c.Prepare(Encode([]Range{{Src: 10, Dst: 11, Len: 12}})))
	assert.Equal(t, uint64(1), c.Count())
	assert.Equal(t, RangeEntry{Src: 10, Dst: 11, Len: 12}, c.Entries()[0])

	// Slots past the new count were cleared as well.
	for _, b := range c.Bytes()[HeaderSize+EntrySize:] {
		require.Zero(t, b)
	}
}

func TestPrepareRejectsBadInput(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)
	require.NoError(t, c.Prepare(Encode([]Range{{Src: 1, Dst: 2, Len: 3}})))

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{name: "empty", raw: nil, want: ErrBadRangeBuffer},
		{name: "partial entry", raw: make([]byte, EntrySize+5), want: ErrBadRangeBuffer},
		{name: "over capacity", raw: make([]byte, 3*EntrySize), want: ErrTooManyRanges},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, c.Prepare(tt.raw), tt.want)
			// Rejected input leaves the previous batch intact.
			assert.Equal(t, uint64(1), c.Count())
			assert.Equal(t, uint64(3), c.Entries()[0].Len)
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	ranges := []Range{{Src: 512, Dst: 1 << 40, Len: 65536}, {Src: 7, Dst: 9, Len: 1}}
	entries, err := Decode(Encode(ranges))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RangeEntry{Src: 512, Dst: 1 << 40, Len: 65536}, entries[0])
	assert.Equal(t, RangeEntry{Src: 7, Dst: 9, Len: 1}, entries[1])

	_, err = Decode(make([]byte, 31))
	require.ErrorIs(t, err, ErrBadRangeBuffer)
}

func TestCompleted(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)
	require.NoError(t, c.Prepare(Encode([]Range{{Len: 10}, {Len: 10}, {Len: 10}})))
	c.Entries()[0].CompLen = 10
	c.Entries()[1].CompLen = 4
	assert.Equal(t, uint64(14), c.Completed())
	assert.True(t, c.Entries()[0].Complete())
	assert.False(t, c.Entries()[1].Complete())
	assert.False(t, c.Entries()[2].Complete())
}
