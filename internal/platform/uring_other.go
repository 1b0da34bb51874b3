//go:build !linux

package platform

// URing is unavailable outside Linux.
type URing struct{}

// NewURing always fails outside Linux.
func NewURing(_ *File, _ uint32) (*URing, error) {
	return nil, ErrURingUnsupported
}

func (*URing) Pread(_ []byte, _ int64) (int, error)  { return 0, ErrURingUnsupported }
func (*URing) Pwrite(_ []byte, _ int64) (int, error) { return 0, ErrURingUnsupported }
func (*URing) Fd() uintptr                           { return ^uintptr(0) }
func (*URing) Close() error                          { return nil }

// URingSupported always returns false outside Linux.
func URingSupported() bool { return false }
