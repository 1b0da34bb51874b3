package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"0", 0},
		{"100", 100},
		{"100B", 100},
		{"100b", 100},
		{"4k", 4096},
		{"100K", 102400},
		{"1M", 1048576},
		{"1G", 1073741824},
		{"1T", 1099511627776},
		{"1.5G", 1610612736},
		{"0.5M", 524288},
		{" 8K ", 8192},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSizeErrors(t *testing.T) {
	for _, input := range []string{"", "abc", "K", "notanumber G"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseSize(input)
			assert.Error(t, err)
		})
	}
}

func TestParseBlockSize(t *testing.T) {
	bs, err := ParseBlockSize("4K")
	require.NoError(t, err)
	assert.Equal(t, 4096, bs)

	bs, err = ParseBlockSize("512")
	require.NoError(t, err)
	assert.Equal(t, 512, bs)

	for _, bad := range []string{"0", "100", "1.1K", "128M", "-4K", "x"} {
		t.Run(bad, func(t *testing.T) {
			_, err := ParseBlockSize(bad)
			assert.Error(t, err)
		})
	}
}
