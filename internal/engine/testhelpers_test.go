package engine

import (
	"bytes"
	"errors"
	"syscall"

	"github.com/bamsammich/blkcopy/internal/copyrange"
)

// memTarget is an in-memory device with fault hooks.
type memTarget struct {
	data []byte

	readErr  map[int64]error
	writeErr map[int64]error
	// Writes past writeLimit are cut short at it. Zero disables.
	writeLimit int64

	reads  []int64
	writes []int64
}

func newMemTarget(size int) *memTarget {
	return &memTarget{
		data:     make([]byte, size),
		readErr:  map[int64]error{},
		writeErr: map[int64]error{},
	}
}

func (m *memTarget) Pread(p []byte, off int64) (int, error) {
	m.reads = append(m.reads, off)
	if err := m.readErr[off]; err != nil {
		return 0, err
	}
	if off >= int64(len(m.data)) {
		return 0, nil
	}
	return copy(p, m.data[off:]), nil
}

func (m *memTarget) Pwrite(p []byte, off int64) (int, error) {
	m.writes = append(m.writes, off)
	if err := m.writeErr[off]; err != nil {
		return 0, err
	}
	if m.writeLimit > 0 && off+int64(len(p)) > m.writeLimit {
		n := max(m.writeLimit-off, 0)
		return copy(m.data[off:], p[:n]), nil
	}
	return copy(m.data[off:], p), nil
}

func (m *memTarget) Fd() uintptr { return 42 }

// offloadWithin is an OffloadFunc that runs the batch in memory and reports
// like the kernel: a short copy leaves CompLen short and returns a positive
// count, a write fault returns -1 and the errno.
//
//nolint:gosec // G115: test offsets are small
func (m *memTarget) offloadWithin(_ uintptr, batch *copyrange.CopyRange) (int, syscall.Errno) {
	ents := batch.Entries()
	for i := range ents {
		e := &ents[i]
		dst := int64(e.Dst)
		if err := m.writeErr[dst]; err != nil {
			var errno syscall.Errno
			if !errors.As(err, &errno) {
				errno = syscall.EIO
			}
			return -1, errno
		}
		n := int64(e.Len)
		if m.writeLimit > 0 && dst+n > m.writeLimit {
			n = max(m.writeLimit-dst, 0)
		}
		copy(m.data[dst:dst+n], m.data[int64(e.Src):int64(e.Src)+n])
		e.CompLen = uint64(n)
		if n < int64(e.Len) {
			return len(ents) - i, 0
		}
	}
	return 0, 0
}

func (m *memTarget) fill(off int64, pattern []byte) {
	copy(m.data[off:], pattern)
}

func pattern(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

type sinkRecord struct {
	unit  *Unit
	errno syscall.Errno
	phase string
}

type recordingSink struct {
	records []sinkRecord
}

func (s *recordingSink) RecordError(u *Unit, errno syscall.Errno, phase string) {
	s.records = append(s.records, sinkRecord{unit: u, errno: errno, phase: phase})
}

// scenarioRanges is three 4 KiB ranges from 0/4096/8192 to
// 100000/104000/108000.
func scenarioRanges() []byte {
	return copyrange.Encode([]copyrange.Range{
		{Src: 0, Dst: 100000, Len: 4096},
		{Src: 4096, Dst: 104000, Len: 4096},
		{Src: 8192, Dst: 108000, Len: 4096},
	})
}
