//go:build linux

package platform

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/bamsammich/blkcopy/internal/copyrange"
)

// BLKCOPY is _IOWR(0x12, 128, struct copy_range).
const BLKCOPY = 0xc0101280

// CopyRanges issues one BLKCOPY ioctl for the whole batch and returns the raw
// result. A positive result means the kernel stopped early; the per-entry
// CompLen fields tell how far it got.
func CopyRanges(fd uintptr, batch *copyrange.CopyRange) (int, syscall.Errno) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, BLKCOPY, uintptr(batch.Pointer()))
	return int(int64(r)), errno //nolint:gosec // G115: ioctl results are small signed values
}
