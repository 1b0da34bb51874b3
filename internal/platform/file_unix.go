//go:build unix

package platform

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a Target backed by an *os.File using pread(2)/pwrite(2).
type File struct {
	f *os.File
}

// NewFile wraps an already open file. No type check is performed.
func NewFile(f *os.File) *File {
	return &File{f: f}
}

// OpenBlockDevice opens path read-write and rejects anything that is not a
// block device. direct adds O_DIRECT where the OS supports it.
func OpenBlockDevice(path string, direct bool) (*File, error) {
	flags := os.O_RDWR
	if direct {
		flags |= directFlag
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return nil, err
	}
	if err := CheckBlockDevice(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{f: f}, nil
}

// CheckBlockDevice returns ErrNotBlockDevice unless f is a block device.
//
//nolint:gosec // G115: fd values are small non-negative integers
func CheckBlockDevice(f *os.File) error {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return &os.PathError{Op: "fstat", Path: f.Name(), Err: err}
	}
	if uint32(st.Mode)&unix.S_IFMT != unix.S_IFBLK {
		return fmt.Errorf("%s: %w", f.Name(), ErrNotBlockDevice)
	}
	return nil
}

// Pread reads once at off, retrying only on EINTR.
//
//nolint:gosec // G115: fd values are small non-negative integers
func (f *File) Pread(p []byte, off int64) (int, error) {
	for {
		n, err := unix.Pread(int(f.f.Fd()), p, off)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Pwrite writes once at off, retrying only on EINTR.
//
//nolint:gosec // G115: fd values are small non-negative integers
func (f *File) Pwrite(p []byte, off int64) (int, error) {
	for {
		n, err := unix.Pwrite(int(f.f.Fd()), p, off)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Fd returns the underlying descriptor.
func (f *File) Fd() uintptr { return f.f.Fd() }

// Name returns the path the file was opened with.
func (f *File) Name() string { return f.f.Name() }

// Close closes the file. Closing twice is not an error.
func (f *File) Close() error {
	if f == nil || f.f == nil {
		return nil
	}
	err := f.f.Close()
	f.f = nil
	return err
}
