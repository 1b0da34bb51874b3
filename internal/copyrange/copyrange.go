// Package copyrange holds the copy-range batch handed to the kernel's BLKCOPY
// ioctl and the raw descriptor format the harness produces.
package copyrange

import (
	"errors"
	"fmt"
	"unsafe"
)

// Wire sizes. The layout matches struct copy_range / struct range_entry:
//
//	count u64 | reserved u64 | { src u64 | dst u64 | len u64 | comp_len u64 } * count
const (
	HeaderSize = 16
	EntrySize  = 32
)

const wordsPerEntry = EntrySize / 8

var (
	ErrBadRangeBuffer = errors.New("range buffer is not a whole number of entries")
	ErrTooManyRanges  = errors.New("range count exceeds batch capacity")
	ErrBadCapacity    = errors.New("batch capacity must be at least one range")
)

// RangeEntry is one copy instruction plus its completion length.
type RangeEntry struct {
	Src     uint64
	Dst     uint64
	Len     uint64
	CompLen uint64
}

// Complete reports whether the whole range was copied.
func (e RangeEntry) Complete() bool {
	return e.Len > 0 && e.CompLen == e.Len
}

// CopyRange is a batch of range entries laid out in one contiguous buffer so
// it can be passed to the kernel without marshaling.
type CopyRange struct {
	words   []uint64
	entries []RangeEntry
}

// New allocates a zeroed batch able to hold capacity entries.
func New(capacity int) (*CopyRange, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrBadCapacity, capacity)
	}
	words := make([]uint64, HeaderSize/8+capacity*wordsPerEntry)
	return &CopyRange{
		words:   words,
		entries: unsafe.Slice((*RangeEntry)(unsafe.Pointer(&words[HeaderSize/8])), capacity),
	}, nil
}

// Prepare zeroes the batch and loads it from raw descriptor bytes. The bytes
// are copied verbatim; entry contents are not inspected. Inputs that cannot
// be laid out are rejected before the batch is touched.
func (c *CopyRange) Prepare(raw []byte) error {
	if len(raw) == 0 || len(raw)%EntrySize != 0 {
		return fmt.Errorf("%w: %d bytes", ErrBadRangeBuffer, len(raw))
	}
	n := len(raw) / EntrySize
	if n > len(c.entries) {
		return fmt.Errorf("%w: %d > %d", ErrTooManyRanges, n, len(c.entries))
	}

	clear(c.words)
	c.words[0] = uint64(n)
	c.words[1] = 0
	copy(c.Bytes()[HeaderSize:], raw)
	return nil
}

// Count returns the number of entries loaded by the last Prepare.
func (c *CopyRange) Count() uint64 { return c.words[0] }

// Reserved returns the reserved header word. It is always zero after Prepare.
func (c *CopyRange) Reserved() uint64 { return c.words[1] }

// Capacity returns the maximum number of entries the batch can hold.
func (c *CopyRange) Capacity() int { return len(c.entries) }

// Entries returns the loaded entries. The slice aliases the batch memory.
func (c *CopyRange) Entries() []RangeEntry {
	n := c.Count()
	if n > uint64(len(c.entries)) {
		n = uint64(len(c.entries))
	}
	return c.entries[:n]
}

// Bytes returns the whole batch buffer, header included, as raw bytes.
func (c *CopyRange) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&c.words[0])), len(c.words)*8)
}

// Pointer returns the address of the batch header for the ioctl argument.
func (c *CopyRange) Pointer() unsafe.Pointer {
	return unsafe.Pointer(&c.words[0])
}

// Completed returns the sum of CompLen over the loaded entries.
func (c *CopyRange) Completed() uint64 {
	var total uint64
	for _, e := range c.Entries() {
		total += e.CompLen
	}
	return total
}
