package engine

import (
	"errors"
	"fmt"
	"io"
	"syscall"
)

// PhaseTransfer labels errors raised while moving data.
const PhaseTransfer = "xfer"

var (
	ErrBadState       = errors.New("operation not valid in unit state")
	ErrBadOptions     = errors.New("invalid unit options")
	ErrLengthMismatch = errors.New("range length does not match block size")
	ErrUnknownEngine  = errors.New("unknown engine")
	ErrDuplicate      = errors.New("engine already in table")
)

// TransferError reports the range at which a dispatch stopped. Index is -1
// when the failure is not attributable to a single range.
type TransferError struct {
	Op    string
	Index int
	Err   error
}

func (e *TransferError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Err)
	}
	return fmt.Sprintf("%s range %d: %s", e.Op, e.Index, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// ShortTransferError is a read or write that moved fewer bytes than asked
// without an error code. It unwraps to EIO.
type ShortTransferError struct {
	Op   string
	Want int
	Got  int
}

func (e *ShortTransferError) Error() string {
	return fmt.Sprintf("short %s: %d of %d bytes", e.Op, e.Got, e.Want)
}

func (e *ShortTransferError) Unwrap() error { return syscall.EIO }

// Is lets callers match short writes against io.ErrShortWrite.
func (e *ShortTransferError) Is(target error) bool {
	return e.Op == "write" && target == io.ErrShortWrite
}

// Errno maps a dispatch error to the system error code recorded on the unit.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) && errno != 0 {
		return errno
	}
	if errors.Is(err, ErrLengthMismatch) {
		return syscall.EINVAL
	}
	return syscall.EIO
}

var (
	_ error = &TransferError{}
	_ error = &ShortTransferError{}
)
