package engine

import (
	"syscall"

	"github.com/bamsammich/blkcopy/internal/copyrange"
)

// OutcomeKind classifies a raw offload result.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	PartialFailure
	SystemError
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case PartialFailure:
		return "partial"
	case SystemError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the decoded result of one BLKCOPY call.
type Outcome struct {
	Kind      OutcomeKind
	Index     int    // failing entry for PartialFailure, else -1
	Completed uint64 // bytes of the failing entry the kernel copied
	Errno     syscall.Errno
}

// Classify decodes the raw ioctl return. A positive ret means the kernel
// stopped early: the failing entry is the first one not fully completed and
// the error is errno, or EIO when the kernel left none. A negative ret is a
// plain system error.
func Classify(ret int, errno syscall.Errno, entries []copyrange.RangeEntry) Outcome {
	switch {
	case ret == 0:
		return Outcome{Kind: Success, Index: -1}
	case ret > 0:
		if errno == 0 {
			errno = syscall.EIO
		}
		out := Outcome{Kind: PartialFailure, Index: -1, Errno: errno}
		for i, e := range entries {
			if e.CompLen != e.Len {
				out.Index = i
				out.Completed = e.CompLen
				break
			}
		}
		return out
	default:
		if errno == 0 {
			errno = syscall.EIO
		}
		return Outcome{Kind: SystemError, Index: -1, Errno: errno}
	}
}
