package ui

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/blkcopy/internal/stats"
)

func TestJSONSummary(t *testing.T) {
	s := stats.Snapshot{
		UnitsDispatched: 4,
		UnitsFailed:     1,
		RangesCompleted: 10,
		RangesFailed:    2,
		BytesCopied:     10 * 4096,
		BytesVerified:   8 * 4096,
		LatencyMin:      100 * time.Microsecond,
		LatencyAvg:      150 * time.Microsecond,
		LatencyMax:      200 * time.Microsecond,
		ErrorCodes:      map[int]int64{5: 2},
		Elapsed:         2 * time.Second,
	}
	out, err := JSONSummary("split", "offload_per_range", s, errors.New("boom"))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "split", got["engine"])
	assert.Equal(t, "offload_per_range", got["method"])
	assert.InDelta(t, 10*4096, got["io_bytes"], 0)
	assert.InDelta(t, 10, got["total_ios"], 0)
	assert.InDelta(t, 5*4096, got["bw"], 0)
	assert.InDelta(t, 5, got["iops"], 0)
	assert.InDelta(t, 2000, got["runtime"], 0)
	assert.InDelta(t, 150, got["lat_avg_us"], 0)
	assert.Equal(t, map[string]any{"5": float64(2)}, got["errors"])
	assert.Equal(t, "boom", got["error"])
}

func TestJSONSummaryOmitsEmpty(t *testing.T) {
	out, err := JSONSummary("blkcopy", "offload", stats.Snapshot{}, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(out), `"errors"`)
	assert.NotContains(t, string(out), `"error"`)
	assert.Contains(t, string(out), `"bw":0`)
}

func TestParseOutputFormat(t *testing.T) {
	for _, in := range []string{OutputText, OutputJSON} {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	}
	_, err := ParseOutputFormat("yaml")
	require.Error(t, err)
}
