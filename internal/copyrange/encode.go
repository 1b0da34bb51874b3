package copyrange

import (
	"encoding/binary"
	"fmt"
)

// Range is a copy instruction without a completion field.
type Range struct {
	Src uint64
	Dst uint64
	Len uint64
}

// Encode returns the raw descriptor bytes for ranges in native byte order,
// with every comp_len zero.
func Encode(ranges []Range) []byte {
	raw := make([]byte, len(ranges)*EntrySize)
	for i, r := range ranges {
		b := raw[i*EntrySize:]
		binary.NativeEndian.PutUint64(b[0:], r.Src)
		binary.NativeEndian.PutUint64(b[8:], r.Dst)
		binary.NativeEndian.PutUint64(b[16:], r.Len)
	}
	return raw
}

// Decode parses raw descriptor bytes produced by Encode or read back from a
// batch.
func Decode(raw []byte) ([]RangeEntry, error) {
	if len(raw)%EntrySize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadRangeBuffer, len(raw))
	}
	entries := make([]RangeEntry, len(raw)/EntrySize)
	for i := range entries {
		b := raw[i*EntrySize:]
		entries[i] = RangeEntry{
			Src:     binary.NativeEndian.Uint64(b[0:]),
			Dst:     binary.NativeEndian.Uint64(b[8:]),
			Len:     binary.NativeEndian.Uint64(b[16:]),
			CompLen: binary.NativeEndian.Uint64(b[24:]),
		}
	}
	return entries, nil
}
