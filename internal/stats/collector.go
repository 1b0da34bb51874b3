package stats

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks dispatch statistics using lock-free atomic counters.
// Latency extremes are kept under a mutex.
type Collector struct {
	unitsDispatched atomic.Int64
	unitsFailed     atomic.Int64
	rangesCompleted atomic.Int64
	rangesFailed    atomic.Int64
	bytesCopied     atomic.Int64
	bytesVerified   atomic.Int64
	verifyFailed    atomic.Int64
	errorsRecorded  atomic.Int64
	startTime       time.Time

	mu         sync.Mutex
	latSum     time.Duration
	latCount   int64
	latMin     time.Duration
	latMax     time.Duration
	errorCodes map[int]int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	UnitsDispatched int64
	UnitsFailed     int64
	RangesCompleted int64
	RangesFailed    int64
	BytesCopied     int64
	BytesVerified   int64
	VerifyFailed    int64
	ErrorsRecorded  int64
	LatencyMin      time.Duration
	LatencyAvg      time.Duration
	LatencyMax      time.Duration
	ErrorCodes      map[int]int64
	Elapsed         time.Duration
}

func (c *Collector) AddUnitsDispatched(n int64) { c.unitsDispatched.Add(n) }
func (c *Collector) AddUnitsFailed(n int64)     { c.unitsFailed.Add(n) }
func (c *Collector) AddRangesCompleted(n int64) { c.rangesCompleted.Add(n) }
func (c *Collector) AddRangesFailed(n int64)    { c.rangesFailed.Add(n) }
func (c *Collector) AddBytesCopied(n int64)     { c.bytesCopied.Add(n) }
func (c *Collector) AddBytesVerified(n int64)   { c.bytesVerified.Add(n) }
func (c *Collector) AddVerifyFailed(n int64)    { c.verifyFailed.Add(n) }

// RecordError counts one error by its system error code.
func (c *Collector) RecordError(errno int) {
	c.errorsRecorded.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.errorCodes == nil {
		c.errorCodes = make(map[int]int64)
	}
	c.errorCodes[errno]++
}

// RecordLatency folds one dispatch latency into min/avg/max.
func (c *Collector) RecordLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latCount == 0 || d < c.latMin {
		c.latMin = d
	}
	if d > c.latMax {
		c.latMax = d
	}
	c.latSum += d
	c.latCount++
}

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		UnitsDispatched: c.unitsDispatched.Load(),
		UnitsFailed:     c.unitsFailed.Load(),
		RangesCompleted: c.rangesCompleted.Load(),
		RangesFailed:    c.rangesFailed.Load(),
		BytesCopied:     c.bytesCopied.Load(),
		BytesVerified:   c.bytesVerified.Load(),
		VerifyFailed:    c.verifyFailed.Load(),
		ErrorsRecorded:  c.errorsRecorded.Load(),
		Elapsed:         c.Elapsed(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.LatencyMin = c.latMin
	s.LatencyMax = c.latMax
	if c.latCount > 0 {
		s.LatencyAvg = c.latSum / time.Duration(c.latCount)
	}
	if len(c.errorCodes) > 0 {
		s.ErrorCodes = maps.Clone(c.errorCodes)
	}
	return s
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Throughput returns copied bytes per second over the snapshot's elapsed time.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BytesCopied) / s.Elapsed.Seconds()
}

// IOPS returns completed ranges per second.
func (s Snapshot) IOPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.RangesCompleted) / s.Elapsed.Seconds()
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"units=%d failed=%d ranges=%d range_errors=%d bytes=%d verified=%d verify_failed=%d",
		s.UnitsDispatched, s.UnitsFailed, s.RangesCompleted, s.RangesFailed,
		s.BytesCopied, s.BytesVerified, s.VerifyFailed,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
