package engine

import (
	"fmt"
	"syscall"

	"github.com/google/uuid"

	"github.com/bamsammich/blkcopy/internal/copyrange"
	"github.com/bamsammich/blkcopy/internal/platform"
)

// State is a work unit's position in its lifecycle.
type State int

const (
	Uninitialized State = iota
	Initialized
	Prepared
	Dispatched
	TornDown
)

var stateNames = [...]string{
	Uninitialized: "uninitialized",
	Initialized:   "initialized",
	Prepared:      "prepared",
	Dispatched:    "dispatched",
	TornDown:      "torn-down",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Options configures a work unit.
type Options struct {
	BlockSize int  // bytes per range; every entry's Len must match
	MaxRanges int  // batch capacity
	Emulate   bool // pread/pwrite instead of the offload ioctl
}

func (o Options) validate() error {
	if o.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", ErrBadOptions, o.BlockSize)
	}
	if o.MaxRanges <= 0 {
		return fmt.Errorf("%w: max ranges %d", ErrBadOptions, o.MaxRanges)
	}
	return nil
}

// ErrorSink receives every failed dispatch, once.
type ErrorSink interface {
	RecordError(u *Unit, errno syscall.Errno, phase string)
}

// Unit is one work unit bound to one open target. It owns its batch and
// scratch buffer and must not be shared between goroutines.
type Unit struct {
	ID      uuid.UUID
	Target  platform.Target
	Options Options
	Sink    ErrorSink

	// Set by Dispatch; zero after a successful dispatch.
	Errno syscall.Errno
	Phase string

	state   State
	method  platform.CopyMethod
	batch   *copyrange.CopyRange
	single  *copyrange.CopyRange
	scratch *platform.AlignedBuffer
}

// NewUnit returns an uninitialized unit. sink may be nil.
func NewUnit(target platform.Target, opts Options, sink ErrorSink) *Unit {
	return &Unit{
		ID:      uuid.New(),
		Target:  target,
		Options: opts,
		Sink:    sink,
	}
}

// State returns the unit's lifecycle state.
func (u *Unit) State() State { return u.state }

// Method returns the copy method chosen at Init.
func (u *Unit) Method() platform.CopyMethod { return u.method }

// Batch returns the unit's batch, or nil outside Initialized..Dispatched.
func (u *Unit) Batch() *copyrange.CopyRange { return u.batch }

// Entries returns the prepared entries, or nil if there is no batch.
func (u *Unit) Entries() []copyrange.RangeEntry {
	if u.batch == nil {
		return nil
	}
	return u.batch.Entries()
}

func (u *Unit) clearError() {
	u.Errno = 0
	u.Phase = ""
}

func (u *Unit) recordError(errno syscall.Errno, phase string) {
	u.Errno = errno
	u.Phase = phase
	if u.Sink != nil {
		u.Sink.RecordError(u, errno, phase)
	}
}
