package harness

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/bamsammich/blkcopy/internal/copyrange"
)

// Layout selects how source blocks are picked for each batch.
type Layout string

const (
	Sequential Layout = "seq"
	Random     Layout = "rand"
)

// ParseLayout accepts "seq"/"sequential" and "rand"/"random".
func ParseLayout(s string) (Layout, error) {
	switch s {
	case "seq", "sequential", "":
		return Sequential, nil
	case "rand", "random":
		return Random, nil
	default:
		return "", fmt.Errorf("unknown layout %q (use seq or rand)", s)
	}
}

var ErrBadLayout = errors.New("invalid range layout")

// Region places the source and destination areas on the device. Each area
// is Size bytes; the destination mirrors the source block for block.
type Region struct {
	Src  int64
	Dst  int64
	Size int64
}

// DefaultRegion splits a device in half: source first, destination second.
func DefaultRegion(deviceSize int64, bs int) Region {
	half := deviceSize / 2
	half -= half % int64(bs)
	return Region{Src: 0, Dst: half, Size: half}
}

func (r Region) validate(deviceSize int64, bs, ranges int) error {
	switch {
	case r.Src < 0 || r.Dst < 0 || r.Size <= 0:
		return fmt.Errorf("%w: src=%d dst=%d size=%d", ErrBadLayout, r.Src, r.Dst, r.Size)
	case r.Src < r.Dst+r.Size && r.Dst < r.Src+r.Size:
		return fmt.Errorf("%w: source and destination areas overlap", ErrBadLayout)
	case deviceSize > 0 && (r.Src+r.Size > deviceSize || r.Dst+r.Size > deviceSize):
		return fmt.Errorf("%w: areas end past device size %d", ErrBadLayout, deviceSize)
	case r.Size/int64(bs) < int64(ranges):
		return fmt.Errorf("%w: %d blocks of %d bytes cannot hold %d ranges per batch",
			ErrBadLayout, r.Size/int64(bs), bs, ranges)
	}
	return nil
}

// Generator produces one batch of non-overlapping ranges per call.
type Generator struct {
	region Region
	bs     int64
	ranges int
	blocks int64
	layout Layout
	rng    *rand.Rand
	next   int64
}

// NewGenerator validates the region and returns a generator.
func NewGenerator(region Region, deviceSize int64, bs, ranges int, layout Layout, seed uint64) (*Generator, error) {
	if bs <= 0 || ranges <= 0 {
		return nil, fmt.Errorf("%w: bs=%d ranges=%d", ErrBadLayout, bs, ranges)
	}
	if err := region.validate(deviceSize, bs, ranges); err != nil {
		return nil, err
	}
	return &Generator{
		region: region,
		bs:     int64(bs),
		ranges: ranges,
		blocks: region.Size / int64(bs),
		layout: layout,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Next returns the next batch. Sequential batches walk the source area and
// wrap; random batches pick distinct blocks.
//
//nolint:gosec // G115: offsets are non-negative and bounded by the device size
func (g *Generator) Next() []copyrange.Range {
	out := make([]copyrange.Range, g.ranges)
	for i, blk := range g.pick() {
		off := blk * g.bs
		out[i] = copyrange.Range{
			Src: uint64(g.region.Src + off),
			Dst: uint64(g.region.Dst + off),
			Len: uint64(g.bs),
		}
	}
	return out
}

func (g *Generator) pick() []int64 {
	blks := make([]int64, 0, g.ranges)
	if g.layout != Random {
		for range g.ranges {
			blks = append(blks, g.next)
			g.next = (g.next + 1) % g.blocks
		}
		return blks
	}

	if int64(g.ranges)*2 > g.blocks {
		for _, b := range g.rng.Perm(int(g.blocks))[:g.ranges] {
			blks = append(blks, int64(b))
		}
		return blks
	}
	seen := make(map[int64]struct{}, g.ranges)
	for len(blks) < g.ranges {
		b := g.rng.Int64N(g.blocks)
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		blks = append(blks, b)
	}
	return blks
}
