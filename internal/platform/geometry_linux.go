//go:build linux

package platform

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const directFlag = unix.O_DIRECT

// DeviceSize returns the size of the block device in bytes (BLKGETSIZE64).
func DeviceSize(f *File) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil //nolint:gosec // G115: device sizes fit in int64
}

// LogicalBlockSize returns the device's logical sector size (BLKSSZGET).
//
//nolint:gosec // G115: fd values are small non-negative integers
func LogicalBlockSize(f *File) (int, error) {
	return unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
}
