// Package platform wraps the OS facilities the copy engines need: positioned
// I/O on a block device, the BLKCOPY offload ioctl, io_uring, and
// page-aligned scratch memory.
package platform

import "errors"

// CopyMethod identifies which strategy executed a batch.
type CopyMethod int

const (
	Offload         CopyMethod = iota // one BLKCOPY ioctl per batch
	Emulate                           // pread/pwrite through a scratch buffer
	OffloadPerRange                   // one BLKCOPY ioctl per range
)

func (m CopyMethod) String() string {
	switch m {
	case Offload:
		return "offload"
	case Emulate:
		return "emulate"
	case OffloadPerRange:
		return "offload_per_range"
	default:
		return "unknown"
	}
}

var (
	// ErrNotBlockDevice is returned when the target file is not a block device.
	ErrNotBlockDevice = errors.New("not a block device")
	// ErrURingUnsupported is returned when io_uring cannot be used.
	ErrURingUnsupported = errors.New("io_uring not supported")
)

// Target is an open file the engines copy within. Pread and Pwrite issue a
// single positioned transfer and may return a short count with a nil error.
type Target interface {
	Pread(p []byte, off int64) (int, error)
	Pwrite(p []byte, off int64) (int, error)
	Fd() uintptr
}
