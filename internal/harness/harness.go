package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/blkcopy/internal/copyrange"
	"github.com/bamsammich/blkcopy/internal/engine"
	"github.com/bamsammich/blkcopy/internal/event"
	"github.com/bamsammich/blkcopy/internal/platform"
	"github.com/bamsammich/blkcopy/internal/stats"
)

const uringDepth = 8

var ErrBadConfig = errors.New("invalid harness config")

// Config describes one copy job against a single device.
type Config struct {
	Device  string
	Engine  string
	Options engine.Options

	Ranges  int // ranges per batch; defaults to Options.MaxRanges
	Units   int // work units, each initialized and torn down once
	Batches int // dispatches per unit; defaults to 1

	Layout Layout
	Seed   uint64
	Region Region // zero value splits the device in half

	Rate            float64 // dispatches per second; 0 is unlimited
	Prefill         bool
	Verify          bool
	Direct          bool
	IOURing         bool
	ContinueOnError bool

	Events chan<- event.Event
	Stats  *stats.Collector
	Table  *engine.Table

	// Target replaces opening Device. TargetSize is its usable size.
	Target     platform.Target
	TargetSize int64
}

// Result summarizes a finished job.
type Result struct {
	Stats  stats.Snapshot
	Method platform.CopyMethod
	Err    error
}

// Run executes the job described by cfg. Cancellation is checked between
// dispatches; a dispatch in flight always completes.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Stats == nil {
		cfg.Stats = stats.NewCollector()
	}
	if cfg.Table == nil {
		cfg.Table = engine.DefaultTable()
	}
	if cfg.Engine == "" {
		cfg.Engine = engine.NameBlkcopy
	}
	if cfg.Ranges == 0 {
		cfg.Ranges = cfg.Options.MaxRanges
	}
	if cfg.Batches == 0 {
		cfg.Batches = 1
	}
	if cfg.Layout == "" {
		cfg.Layout = Sequential
	}

	r := &runner{cfg: cfg, stats: cfg.Stats}
	err := r.run(ctx)
	return Result{Stats: cfg.Stats.Snapshot(), Method: r.method, Err: err}
}

type runner struct {
	cfg    Config
	stats  *stats.Collector
	eng    engine.IOEngine
	target platform.Target
	gen    *Generator
	method platform.CopyMethod

	limiter *rate.Limiter
	io      [2]*platform.AlignedBuffer

	firstErr error
	errCount int
}

func (r *runner) run(ctx context.Context) error {
	cfg := r.cfg
	if cfg.Units <= 0 || cfg.Ranges <= 0 || cfg.Ranges > cfg.Options.MaxRanges || cfg.Batches < 0 {
		return fmt.Errorf("%w: units=%d ranges=%d max_ranges=%d batches=%d",
			ErrBadConfig, cfg.Units, cfg.Ranges, cfg.Options.MaxRanges, cfg.Batches)
	}

	eng, err := cfg.Table.Lookup(cfg.Engine)
	if err != nil {
		return err
	}
	r.eng = eng

	target, size, closeFn, err := openTarget(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	r.target = target

	region := cfg.Region
	if region == (Region{}) {
		region = DefaultRegion(size, cfg.Options.BlockSize)
	}
	r.gen, err = NewGenerator(region, size, cfg.Options.BlockSize, cfg.Ranges, cfg.Layout, cfg.Seed)
	if err != nil {
		return err
	}

	if cfg.Rate > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	if cfg.Prefill || cfg.Verify {
		for i := range r.io {
			if r.io[i], err = platform.AllocAligned(cfg.Options.BlockSize); err != nil {
				return err
			}
			defer r.io[i].Free() //nolint:errcheck // munmap of our own mapping
		}
	}

	slog.Info("starting job",
		"device", cfg.Device,
		"engine", eng.Name(),
		"size", size,
		"bs", cfg.Options.BlockSize,
		"ranges", cfg.Ranges,
		"units", cfg.Units,
		"layout", cfg.Layout,
	)

	for range cfg.Units {
		stop, err := r.runUnit(ctx)
		if err != nil {
			return err
		}
		if stop {
			break
		}
	}

	if r.errCount > 1 {
		return fmt.Errorf("%w (and %d more errors)", r.firstErr, r.errCount-1)
	}
	return r.firstErr
}

// runUnit drives one unit through its lifecycle. It returns stop=true when
// a dispatch failed and the job should not continue, and a non-nil error for
// setup failures that end the job outright.
func (r *runner) runUnit(ctx context.Context) (stop bool, err error) {
	u := engine.NewUnit(r.target, r.cfg.Options, &sink{stats: r.stats})
	if err := r.eng.Init(u); err != nil {
		return true, fmt.Errorf("init unit: %w", err)
	}
	defer r.eng.Cleanup(u)
	r.method = u.Method()
	r.emit(ctx, event.Event{Type: event.UnitStarted, Unit: u.ID.String(), Index: -1, Method: u.Method().String()})
	defer r.emit(ctx, event.Event{Type: event.UnitFinished, Unit: u.ID.String(), Index: -1})

	for seq := range r.cfg.Batches {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return true, err
			}
		}
		ok, err := r.dispatch(ctx, u, seq)
		if err != nil {
			return true, err
		}
		if !ok && !r.cfg.ContinueOnError {
			return true, nil
		}
	}
	return false, nil
}

// dispatch prepares, dispatches and optionally verifies one batch. ok is
// false when the dispatch failed; err is set only for failures outside the
// transfer itself (prefill, prepare, verification I/O).
func (r *runner) dispatch(ctx context.Context, u *engine.Unit, seq int) (ok bool, err error) {
	ranges := r.gen.Next()
	id := u.ID.String()

	if r.cfg.Prefill {
		if err := prefill(r.target, r.io[0].Bytes(), r.cfg.Seed, ranges); err != nil {
			return false, err
		}
	}
	if err := r.eng.Prepare(u, copyrange.Encode(ranges)); err != nil {
		return false, fmt.Errorf("prepare unit %s: %w", id, err)
	}
	r.emit(ctx, event.Event{Type: event.UnitPrepared, Unit: id, Seq: seq, Index: -1, Ranges: len(ranges)})

	start := time.Now()
	dErr := r.eng.Dispatch(u)
	latency := time.Since(start)

	entries := u.Entries()
	var done int64
	var bytes int64
	for _, e := range entries {
		if e.Complete() {
			done++
		}
		bytes += int64(e.CompLen) //nolint:gosec // G115: bounded by block size
	}
	r.stats.AddUnitsDispatched(1)
	r.stats.RecordLatency(latency)
	r.stats.AddRangesCompleted(done)
	r.stats.AddBytesCopied(bytes)

	if dErr != nil {
		r.stats.AddUnitsFailed(1)
		r.stats.AddRangesFailed(1)
		r.errCount++
		if r.firstErr == nil {
			r.firstErr = dErr
		}
		index := -1
		var te *engine.TransferError
		if errors.As(dErr, &te) {
			index = te.Index
		}
		if index >= 0 && index < len(entries) && entries[index].CompLen > 0 {
			r.emit(ctx, event.Event{
				Type: event.RangeShort, Unit: id, Seq: seq, Index: index,
				Bytes: int64(entries[index].CompLen), //nolint:gosec // G115: bounded by block size
			})
		}
		r.emit(ctx, event.Event{
			Type: event.UnitFailed, Unit: id, Seq: seq, Index: index, Ranges: len(entries),
			Bytes: bytes, Latency: latency, Method: u.Method().String(), Error: dErr,
		})
	} else {
		r.emit(ctx, event.Event{
			Type: event.UnitCompleted, Unit: id, Seq: seq, Index: -1, Ranges: len(entries),
			Bytes: bytes, Latency: latency, Method: u.Method().String(),
		})
	}

	if r.cfg.Verify {
		if err := r.verify(ctx, id, seq, entries); err != nil {
			return false, err
		}
	}
	return dErr == nil, nil
}

func (r *runner) verify(ctx context.Context, id string, seq int, entries []copyrange.RangeEntry) error {
	verified, bad, err := verifyEntries(r.target, r.io[0].Bytes(), r.io[1].Bytes(), entries)
	r.stats.AddBytesVerified(verified)
	if err != nil {
		return err
	}
	for _, m := range bad {
		r.stats.AddVerifyFailed(1)
		slog.Warn("verify mismatch", "unit", id, "index", m.Index, "src", m.Src, "dst", m.Dst, "len", m.Len)
		r.emit(ctx, event.Event{
			Type: event.VerifyFailed, Unit: id, Seq: seq, Index: m.Index,
			Bytes: int64(m.Len), //nolint:gosec // G115: bounded by block size
			Error: fmt.Errorf("range %d: destination differs from source", m.Index),
		})
	}
	if len(bad) > 0 {
		r.errCount += len(bad)
		if r.firstErr == nil {
			r.firstErr = fmt.Errorf("%w: %d ranges", ErrVerify, len(bad))
		}
		return nil
	}
	r.emit(ctx, event.Event{Type: event.VerifyOK, Unit: id, Seq: seq, Index: -1, Bytes: verified})
	return nil
}

var ErrVerify = errors.New("verification failed")

func (r *runner) emit(ctx context.Context, ev event.Event) {
	if r.cfg.Events == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case r.cfg.Events <- ev:
	case <-ctx.Done():
	}
}

// sink logs every failed dispatch and counts it by errno.
type sink struct {
	stats *stats.Collector
}

func (s *sink) RecordError(u *engine.Unit, errno syscall.Errno, phase string) {
	s.stats.RecordError(int(errno))
	slog.Warn("dispatch failed",
		"unit", u.ID,
		"errno", int(errno),
		"error", errno.Error(),
		"phase", phase,
	)
}

// openTarget opens and checks the device, or returns cfg.Target as is.
// The returned close function is always safe to call.
func openTarget(cfg Config) (platform.Target, int64, func(), error) {
	if cfg.Target != nil {
		return cfg.Target, cfg.TargetSize, func() {}, nil
	}
	if cfg.Device == "" {
		return nil, 0, nil, fmt.Errorf("%w: no device", ErrBadConfig)
	}

	f, err := platform.OpenBlockDevice(cfg.Device, cfg.Direct)
	if err != nil {
		return nil, 0, nil, err
	}
	closers := []io.Closer{f}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				slog.Warn("close failed", "device", cfg.Device, "error", err)
			}
		}
	}

	size, err := platform.DeviceSize(f)
	if err != nil {
		closeAll()
		return nil, 0, nil, fmt.Errorf("device size %s: %w", cfg.Device, err)
	}
	if lbs, err := platform.LogicalBlockSize(f); err == nil && cfg.Options.BlockSize%lbs != 0 {
		closeAll()
		return nil, 0, nil, fmt.Errorf("%w: block size %d is not a multiple of the device's logical block size %d",
			ErrBadConfig, cfg.Options.BlockSize, lbs)
	}

	var target platform.Target = f
	if cfg.IOURing {
		ring, err := platform.NewURing(f, uringDepth)
		if err != nil {
			closeAll()
			return nil, 0, nil, fmt.Errorf("io_uring: %w", err)
		}
		closers = append(closers, ring)
		target = ring
	}
	return target, size, closeAll, nil
}
