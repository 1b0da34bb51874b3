package harness

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"

	"github.com/bamsammich/blkcopy/internal/copyrange"
	"github.com/bamsammich/blkcopy/internal/platform"
)

// FillPattern writes the deterministic content of the block at off into buf.
// Every 8-byte word is the xxhash of (seed, off, word offset), so any two
// blocks differ and a misplaced copy is caught by verification.
//
//nolint:gosec // G115: offsets are non-negative
func FillPattern(buf []byte, seed uint64, off int64) {
	var key [24]byte
	var word [8]byte
	binary.LittleEndian.PutUint64(key[0:], seed)
	binary.LittleEndian.PutUint64(key[8:], uint64(off))
	for i := 0; i < len(buf); i += 8 {
		binary.LittleEndian.PutUint64(key[16:], uint64(i))
		binary.LittleEndian.PutUint64(word[:], xxhash.Sum64(key[:]))
		copy(buf[i:], word[:])
	}
}

// prefill writes the pattern to every source block of ranges.
//
//nolint:gosec // G115: offsets come from the generator and fit in int64
func prefill(t platform.Target, buf []byte, seed uint64, ranges []copyrange.Range) error {
	for _, r := range ranges {
		b := buf[:r.Len]
		FillPattern(b, seed, int64(r.Src))
		n, err := t.Pwrite(b, int64(r.Src))
		if err != nil {
			return fmt.Errorf("prefill at %d: %w", r.Src, err)
		}
		if n != len(b) {
			return fmt.Errorf("prefill at %d: wrote %d of %d bytes", r.Src, n, len(b))
		}
	}
	return nil
}

// Mismatch describes a range whose destination differs from its source.
type Mismatch struct {
	Index int
	Src   uint64
	Dst   uint64
	Len   uint64
}

// verifyEntries compares the BLAKE3 digest of each completed source prefix
// with its destination. srcBuf and dstBuf must each hold one block.
//
//nolint:gosec // G115: offsets come from the generator and fit in int64
func verifyEntries(t platform.Target, srcBuf, dstBuf []byte, entries []copyrange.RangeEntry) (verified int64, bad []Mismatch, err error) {
	for i, e := range entries {
		if e.CompLen == 0 {
			continue
		}
		s, d := srcBuf[:e.CompLen], dstBuf[:e.CompLen]
		if err := readFull(t, s, int64(e.Src)); err != nil {
			return verified, bad, fmt.Errorf("verify read src range %d: %w", i, err)
		}
		if err := readFull(t, d, int64(e.Dst)); err != nil {
			return verified, bad, fmt.Errorf("verify read dst range %d: %w", i, err)
		}
		if blake3.Sum256(s) != blake3.Sum256(d) {
			bad = append(bad, Mismatch{Index: i, Src: e.Src, Dst: e.Dst, Len: e.CompLen})
			continue
		}
		verified += int64(e.CompLen)
	}
	return verified, bad, nil
}

func readFull(t platform.Target, p []byte, off int64) error {
	n, err := t.Pread(p, off)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("read %d of %d bytes at %d", n, len(p), off)
	}
	return nil
}
