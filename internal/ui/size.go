package ui

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxBlockSize bounds --bs so a scratch buffer stays a sane allocation.
const MaxBlockSize = 64 << 20

var sizeSuffixes = map[byte]int64{
	'B': 1,
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a human-readable size string into bytes.
// Supports: 100, 100B, 100K, 100M, 100G, 100T (case-insensitive), in powers
// of 1024. Fractions are allowed with a suffix ("1.5G").
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	multiplier := int64(1)
	numStr := s
	if m, ok := sizeSuffixes[strings.ToUpper(s[len(s)-1:])[0]]; ok {
		multiplier = m
		numStr = s[:len(s)-1]
	}
	if numStr == "" {
		return 0, fmt.Errorf("invalid size: %q", s)
	}

	if n, err := strconv.ParseInt(numStr, 10, 64); err == nil {
		return n * multiplier, nil
	}
	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size: %q", s)
	}
	return int64(f * float64(multiplier)), nil
}

// ParseBlockSize parses a copy block size. It must be a positive multiple of
// 512 no larger than MaxBlockSize.
func ParseBlockSize(s string) (int, error) {
	n, err := ParseSize(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 || n%512 != 0 || n > MaxBlockSize {
		return 0, fmt.Errorf("block size %q must be a multiple of 512 between 512 and %d", s, MaxBlockSize)
	}
	return int(n), nil
}
