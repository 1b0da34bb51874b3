// Package engine executes copy-range batches against a block device, either
// through the kernel's BLKCOPY offload or by emulating it in user space.
package engine

import (
	"fmt"
	"log/slog"
	"syscall"

	"github.com/bamsammich/blkcopy/internal/copyrange"
	"github.com/bamsammich/blkcopy/internal/platform"
)

// Engine names as they appear in the table and on the command line.
const (
	NameBlkcopy = "blkcopy"
	NameSplit   = "split"
)

// IOEngine is the surface a harness drives, once per work unit:
// Init, then Prepare/Dispatch any number of times, then Cleanup.
type IOEngine interface {
	Name() string
	Init(u *Unit) error
	Prepare(u *Unit, raw []byte) error
	Dispatch(u *Unit) error
	Cleanup(u *Unit)
}

// OffloadFunc issues the kernel copy for a whole batch and returns its raw
// result.
type OffloadFunc func(fd uintptr, batch *copyrange.CopyRange) (int, syscall.Errno)

// Engine implements IOEngine. It holds no per-unit state, so one value can
// serve any number of units.
type Engine struct {
	name     string
	perRange bool
	offload  OffloadFunc
}

// Option customizes an Engine.
type Option func(*Engine)

// WithOffload replaces the BLKCOPY call.
func WithOffload(fn OffloadFunc) Option {
	return func(e *Engine) { e.offload = fn }
}

// New returns the blkcopy engine: BLKCOPY offload by default, pread/pwrite
// emulation when the unit's Options.Emulate is set.
func New(opts ...Option) *Engine {
	e := &Engine{
		name:    NameBlkcopy,
		offload: platform.CopyRanges,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewSplit returns an engine that submits every range as its own one-entry
// BLKCOPY batch. Options.Emulate still selects pread/pwrite emulation.
func NewSplit(opts ...Option) *Engine {
	e := New(opts...)
	e.name = NameSplit
	e.perRange = true
	return e
}

// Name returns the engine's table name.
func (e *Engine) Name() string { return e.name }

func (e *Engine) methodFor(u *Unit) platform.CopyMethod {
	switch {
	case u.Options.Emulate:
		return platform.Emulate
	case e.perRange:
		return platform.OffloadPerRange
	default:
		return platform.Offload
	}
}

// Init allocates the unit's batch and, for emulation, its page-aligned
// scratch buffer. Per-range offload gets a one-entry submission batch.
func (e *Engine) Init(u *Unit) error {
	if u.state != Uninitialized {
		return fmt.Errorf("%w: init in state %s", ErrBadState, u.state)
	}
	if err := u.Options.validate(); err != nil {
		return err
	}

	batch, err := copyrange.New(u.Options.MaxRanges)
	if err != nil {
		return err
	}
	method := e.methodFor(u)
	var scratch *platform.AlignedBuffer
	var single *copyrange.CopyRange
	switch method {
	case platform.Emulate:
		if scratch, err = platform.AllocAligned(u.Options.BlockSize); err != nil {
			return err
		}
	case platform.OffloadPerRange:
		if single, err = copyrange.New(1); err != nil {
			return err
		}
	}

	u.batch = batch
	u.single = single
	u.scratch = scratch
	u.method = method
	u.state = Initialized

	slog.Debug("unit initialized",
		"unit", u.ID,
		"engine", e.name,
		"method", method,
		"bs", u.Options.BlockSize,
		"max_ranges", u.Options.MaxRanges,
	)
	return nil
}

// Prepare loads raw range descriptors into the unit's batch.
func (e *Engine) Prepare(u *Unit, raw []byte) error {
	switch u.state {
	case Initialized, Prepared, Dispatched:
	default:
		return fmt.Errorf("%w: prepare in state %s", ErrBadState, u.state)
	}
	if err := u.batch.Prepare(raw); err != nil {
		return err
	}
	u.clearError()
	u.state = Prepared
	return nil
}

// Dispatch executes the prepared batch and blocks until it resolves. On
// failure the unit's Errno and Phase are set, the sink is told once, and a
// *TransferError naming the stopping range is returned. Entries after that
// range are left as they were.
func (e *Engine) Dispatch(u *Unit) error {
	if u.state != Prepared && u.state != Dispatched {
		return fmt.Errorf("%w: dispatch in state %s", ErrBadState, u.state)
	}
	u.state = Dispatched
	u.clearError()

	var err error
	switch u.method {
	case platform.Emulate:
		err = emulate(u)
	case platform.OffloadPerRange:
		err = e.offloadEach(u)
	default:
		err = e.offloadBatch(u)
	}
	if err != nil {
		errno := Errno(err)
		u.recordError(errno, PhaseTransfer)
		slog.Debug("dispatch failed",
			"unit", u.ID,
			"method", u.method,
			"errno", errno,
			"error", err,
		)
	}
	return err
}

// Cleanup releases the batch and scratch buffer. It is safe in any state
// and safe to repeat.
func (e *Engine) Cleanup(u *Unit) {
	if u.scratch != nil {
		if err := u.scratch.Free(); err != nil {
			slog.Warn("free scratch buffer", "unit", u.ID, "error", err)
		}
		u.scratch = nil
	}
	u.batch = nil
	u.single = nil
	u.state = TornDown
}

func (e *Engine) offloadBatch(u *Unit) error {
	ret, errno := e.offload(u.Target.Fd(), u.batch)
	out := Classify(ret, errno, u.batch.Entries())
	switch out.Kind {
	case Success:
		return nil
	case PartialFailure:
		slog.Debug("offload stopped early",
			"unit", u.ID,
			"index", out.Index,
			"completed", out.Completed,
			"ret", ret,
		)
		return &TransferError{Op: "offload", Index: out.Index, Err: out.Errno}
	default:
		return &TransferError{Op: "offload", Index: -1, Err: out.Errno}
	}
}

var _ IOEngine = &Engine{}
