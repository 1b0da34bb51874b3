package ui

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/bamsammich/blkcopy/internal/stats"
)

// Output formats for the end-of-run summary.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// ParseOutputFormat accepts "text" and "json".
func ParseOutputFormat(s string) (string, error) {
	switch s {
	case OutputText, OutputJSON:
		return s, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text or json)", s)
	}
}

// Report is the machine-readable run summary. Bandwidth is bytes per
// second, runtime is milliseconds, latencies are microseconds.
type Report struct {
	Engine        string        `json:"engine"`
	Method        string        `json:"method"`
	IOBytes       int64         `json:"io_bytes"`
	TotalIOs      int64         `json:"total_ios"`
	BW            float64       `json:"bw"`
	IOPS          float64       `json:"iops"`
	Runtime       int64         `json:"runtime"`
	Units         int64         `json:"units"`
	UnitsFailed   int64         `json:"units_failed"`
	RangesFailed  int64         `json:"ranges_failed"`
	BytesVerified int64         `json:"bytes_verified"`
	VerifyFailed  int64         `json:"verify_failed"`
	LatMinUS      int64         `json:"lat_min_us"`
	LatAvgUS      int64         `json:"lat_avg_us"`
	LatMaxUS      int64         `json:"lat_max_us"`
	Errors        map[int]int64 `json:"errors,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// NewReport builds a Report from a stats snapshot. runErr, if non-nil, is
// carried as the error string.
func NewReport(engine, method string, s stats.Snapshot, runErr error) Report {
	r := Report{
		Engine:        engine,
		Method:        method,
		IOBytes:       s.BytesCopied,
		TotalIOs:      s.RangesCompleted,
		BW:            s.Throughput(),
		IOPS:          s.IOPS(),
		Runtime:       s.Elapsed.Milliseconds(),
		Units:         s.UnitsDispatched,
		UnitsFailed:   s.UnitsFailed,
		RangesFailed:  s.RangesFailed,
		BytesVerified: s.BytesVerified,
		VerifyFailed:  s.VerifyFailed,
		LatMinUS:      s.LatencyMin.Microseconds(),
		LatAvgUS:      s.LatencyAvg.Microseconds(),
		LatMaxUS:      s.LatencyMax.Microseconds(),
	}
	if len(s.ErrorCodes) > 0 {
		r.Errors = maps.Clone(s.ErrorCodes)
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	return r
}

// JSONSummary renders the report as one JSON object.
func JSONSummary(engine, method string, s stats.Snapshot, runErr error) ([]byte, error) {
	out, err := json.Marshal(NewReport(engine, method, s, runErr))
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return out, nil
}
