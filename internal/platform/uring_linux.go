//go:build linux

package platform

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	uringOpRead  = 22
	uringOpWrite = 23

	uringEnterGetEvents = 1 << 0

	uringOffSQRing = 0
	uringOffCQRing = 0x8000000
	uringOffSQEs   = 0x10000000

	sqeSize = 64
	cqeSize = 16
)

// uringSQE mirrors struct io_uring_sqe.
type uringSQE struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opcodeFlags uint32
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	_           [2]uint64
}

// uringCQE mirrors struct io_uring_cqe.
type uringCQE struct {
	userData uint64
	res      int32
	flags    uint32
}

// uringSQRingOffsets mirrors struct io_sqring_offsets.
type uringSQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// uringCQRingOffsets mirrors struct io_cqring_offsets. Its field order
// differs from the SQ side after ringEntries.
type uringCQRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

// uringParams mirrors struct io_uring_params.
type uringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        uringSQRingOffsets
	cqOff        uringCQRingOffsets
}

// URing is a Target that routes every pread/pwrite through a private
// io_uring instance, one submission at a time. It is not safe for concurrent
// use, which matches the one-unit-per-descriptor model.
type URing struct {
	file *File
	fd   int

	sqMem, cqMem, sqeMem []byte

	sqTail, sqMask *uint32
	sqArray, sqes  unsafe.Pointer
	cqHead, cqTail *uint32
	cqMask         *uint32
	cqes           unsafe.Pointer
}

// NewURing sets up a ring of the given depth on top of f. It returns
// ErrURingUnsupported on kernels older than 5.6.
func NewURing(f *File, depth uint32) (*URing, error) {
	if !URingSupported() {
		return nil, ErrURingUnsupported
	}

	var p uringParams
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(depth), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}

	r := &URing{file: f, fd: int(fd)}
	if err := r.mapRings(&p); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *URing) mapRings(p *uringParams) error {
	var err error
	prot := unix.PROT_READ | unix.PROT_WRITE
	flags := unix.MAP_SHARED | unix.MAP_POPULATE

	sqLen := int(p.sqOff.array) + int(p.sqEntries)*4
	if r.sqMem, err = unix.Mmap(r.fd, uringOffSQRing, sqLen, prot, flags); err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	if r.sqeMem, err = unix.Mmap(r.fd, uringOffSQEs, int(p.sqEntries)*sqeSize, prot, flags); err != nil {
		return fmt.Errorf("mmap sqes: %w", err)
	}
	cqLen := int(p.cqOff.cqes) + int(p.cqEntries)*cqeSize
	if r.cqMem, err = unix.Mmap(r.fd, uringOffCQRing, cqLen, prot, flags); err != nil {
		return fmt.Errorf("mmap cq ring: %w", err)
	}

	sq := unsafe.Pointer(&r.sqMem[0])
	r.sqTail = (*uint32)(unsafe.Add(sq, p.sqOff.tail))
	r.sqMask = (*uint32)(unsafe.Add(sq, p.sqOff.ringMask))
	r.sqArray = unsafe.Add(sq, p.sqOff.array)
	r.sqes = unsafe.Pointer(&r.sqeMem[0])

	cq := unsafe.Pointer(&r.cqMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cq, p.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cq, p.cqOff.tail))
	r.cqMask = (*uint32)(unsafe.Add(cq, p.cqOff.ringMask))
	r.cqes = unsafe.Add(cq, p.cqOff.cqes)
	return nil
}

// Pread reads once through the ring.
func (r *URing) Pread(p []byte, off int64) (int, error) {
	return r.rw(uringOpRead, p, off)
}

// Pwrite writes once through the ring.
func (r *URing) Pwrite(p []byte, off int64) (int, error) {
	return r.rw(uringOpWrite, p, off)
}

// Fd returns the descriptor of the underlying file, not the ring.
func (r *URing) Fd() uintptr { return r.file.Fd() }

//nolint:gosec // G115: offsets and lengths are bounded by the block size
func (r *URing) rw(op uint8, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	tail := atomic.LoadUint32(r.sqTail)
	idx := tail & *r.sqMask
	sqe := (*uringSQE)(unsafe.Add(r.sqes, uintptr(idx)*sqeSize))
	*sqe = uringSQE{
		opcode:   op,
		fd:       int32(r.file.Fd()),
		off:      uint64(off),
		addr:     uint64(uintptr(unsafe.Pointer(&p[0]))),
		len:      uint32(len(p)),
		userData: uint64(tail),
	}
	*(*uint32)(unsafe.Add(r.sqArray, uintptr(idx)*4)) = idx
	atomic.StoreUint32(r.sqTail, tail+1)

	for {
		_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd), 1, 1, uringEnterGetEvents, 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			runtime.KeepAlive(p)
			return 0, fmt.Errorf("io_uring_enter: %w", errno)
		}
		break
	}

	head := atomic.LoadUint32(r.cqHead)
	if atomic.LoadUint32(r.cqTail) == head {
		runtime.KeepAlive(p)
		return 0, fmt.Errorf("io_uring_enter: %w", unix.EAGAIN)
	}
	cqe := (*uringCQE)(unsafe.Add(r.cqes, uintptr(head&*r.cqMask)*cqeSize))
	res := cqe.res
	atomic.StoreUint32(r.cqHead, head+1)
	// The kernel held p's address as a plain integer until the completion.
	runtime.KeepAlive(p)

	if res < 0 {
		return 0, unix.Errno(-res)
	}
	return int(res), nil
}

// Close unmaps the rings and closes the ring descriptor. The underlying file
// stays open.
func (r *URing) Close() error {
	var firstErr error
	for _, mem := range [][]byte{r.cqMem, r.sqeMem, r.sqMem} {
		if mem == nil {
			continue
		}
		if err := unix.Munmap(mem); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.cqMem, r.sqeMem, r.sqMem = nil, nil, nil
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		r.fd = -1
	}
	return firstErr
}

// URingSupported reports whether the running kernel is 5.6 or newer.
func URingSupported() bool {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return false
	}
	major, minor, ok := parseKernelRelease(unix.ByteSliceToString(uname.Release[:]))
	if !ok {
		return false
	}
	return major > 5 || (major == 5 && minor >= 6)
}

func parseKernelRelease(release string) (major, minor int, ok bool) {
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minorStr := parts[1]
	if i := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); i > 0 {
		minorStr = minorStr[:i]
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}
