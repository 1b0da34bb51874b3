package ui

import (
	"fmt"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/bamsammich/blkcopy/internal/stats"
)

// FormatRate formats a bytes-per-second rate as a human-readable string.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	units := []string{"B/s", "KB/s", "MB/s", "GB/s", "TB/s"}
	val := bytesPerSec
	for _, u := range units {
		if val < 1024 {
			if val < 10 {
				return fmt.Sprintf("%.2f %s", val, u)
			}
			if val < 100 {
				return fmt.Sprintf("%.1f %s", val, u)
			}
			return fmt.Sprintf("%.0f %s", val, u)
		}
		val /= 1024
	}
	return fmt.Sprintf("%.1f PB/s", val)
}

// FormatCount formats an integer with comma separators.
func FormatCount(n int64) string {
	if n < 0 {
		return "-" + FormatCount(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		b.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatLatency renders a dispatch latency with a unit suited to its size.
func FormatLatency(d time.Duration) string {
	switch {
	case d <= 0:
		return "0us"
	case d < time.Millisecond:
		return fmt.Sprintf("%dus", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// FormatDuration formats elapsed time concisely.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

// Summary renders the end-of-run report. Terminals get an aligned block;
// anything else gets one key=value line for scripts.
func Summary(engine, method string, s stats.Snapshot, human bool) string {
	if !human {
		return fmt.Sprintf(
			"engine=%s method=%s %s lat_min_us=%d lat_avg_us=%d lat_max_us=%d bw_bps=%.0f iops=%.0f elapsed_ms=%d%s",
			engine, method, s.String(),
			s.LatencyMin.Microseconds(), s.LatencyAvg.Microseconds(), s.LatencyMax.Microseconds(),
			s.Throughput(), s.IOPS(), s.Elapsed.Milliseconds(), formatErrorsKV(s.ErrorCodes),
		)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %s units, %s ranges, %s in %s\n",
		engine, method,
		FormatCount(s.UnitsDispatched), FormatCount(s.RangesCompleted),
		stats.FormatBytes(s.BytesCopied), FormatDuration(s.Elapsed))
	fmt.Fprintf(&b, "  bw:  %s  iops: %.0f\n", FormatRate(s.Throughput()), s.IOPS())
	fmt.Fprintf(&b, "  lat: min %s  avg %s  max %s\n",
		FormatLatency(s.LatencyMin), FormatLatency(s.LatencyAvg), FormatLatency(s.LatencyMax))
	if s.BytesVerified > 0 || s.VerifyFailed > 0 {
		fmt.Fprintf(&b, "  verify: %s ok, %d mismatched\n", stats.FormatBytes(s.BytesVerified), s.VerifyFailed)
	}
	if s.UnitsFailed > 0 {
		fmt.Fprintf(&b, "  errors: %d failed units, %d failed ranges", s.UnitsFailed, s.RangesFailed)
		for _, code := range sortedCodes(s.ErrorCodes) {
			fmt.Fprintf(&b, ", %s x%d", syscall.Errno(code).Error(), s.ErrorCodes[code]) //nolint:gosec // G115: errno values are small
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatErrorsKV(codes map[int]int64) string {
	var b strings.Builder
	for _, code := range sortedCodes(codes) {
		fmt.Fprintf(&b, " errno_%d=%d", code, codes[code])
	}
	return b.String()
}

func sortedCodes(codes map[int]int64) []int {
	keys := make([]int, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
