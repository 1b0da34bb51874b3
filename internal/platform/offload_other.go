//go:build !linux

package platform

import (
	"syscall"

	"github.com/bamsammich/blkcopy/internal/copyrange"
)

// CopyRanges reports ENOTSUP; copy offload is Linux-only.
func CopyRanges(_ uintptr, _ *copyrange.CopyRange) (int, syscall.Errno) {
	return -1, syscall.ENOTSUP
}
