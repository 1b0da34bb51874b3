//go:build unix && !linux

package platform

import "io"

const directFlag = 0

// DeviceSize returns the size of the device by seeking to its end.
func DeviceSize(f *File) (int64, error) {
	return f.f.Seek(0, io.SeekEnd)
}

// LogicalBlockSize assumes 512-byte sectors where the OS has no query.
func LogicalBlockSize(_ *File) (int, error) {
	return 512, nil
}
