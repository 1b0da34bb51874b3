//go:build unix

package platform

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// AlignedBuffer is a page-aligned scratch buffer backed by an anonymous
// mapping. It must be released with Free.
type AlignedBuffer struct {
	mem  []byte
	size int
}

// AllocAligned maps a zeroed, page-aligned buffer of size bytes.
func AllocAligned(size int) (*AlignedBuffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("aligned buffer size %d", size)
	}
	page := os.Getpagesize()
	mapped := (size + page - 1) &^ (page - 1)
	mem, err := unix.Mmap(-1, 0, mapped, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap scratch buffer: %w", err)
	}
	return &AlignedBuffer{mem: mem, size: size}, nil
}

// Bytes returns the usable buffer, exactly size bytes long.
func (b *AlignedBuffer) Bytes() []byte {
	if b == nil || b.mem == nil {
		return nil
	}
	return b.mem[:b.size]
}

// Len returns the usable size in bytes.
func (b *AlignedBuffer) Len() int {
	if b == nil {
		return 0
	}
	return b.size
}

// Free unmaps the buffer. Freeing twice, or freeing nil, is a no-op.
func (b *AlignedBuffer) Free() error {
	if b == nil || b.mem == nil {
		return nil
	}
	mem := b.mem
	b.mem = nil
	return unix.Munmap(mem)
}
