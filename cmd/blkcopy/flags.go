package main

import (
	"strconv"

	"github.com/spf13/pflag"

	"github.com/bamsammich/blkcopy/internal/harness"
	"github.com/bamsammich/blkcopy/internal/ui"
)

// sizeFlag is a pflag.Value accepting sizes like 512K or 2G and recording
// whether it was set.
type sizeFlag struct {
	n   int64
	set bool
}

func (s *sizeFlag) String() string {
	if !s.set {
		return ""
	}
	return strconv.FormatInt(s.n, 10)
}

func (*sizeFlag) Type() string { return "size" }

func (s *sizeFlag) Set(val string) error {
	n, err := ui.ParseSize(val)
	if err != nil {
		return err
	}
	s.n, s.set = n, true
	return nil
}

// layoutFlag is a pflag.Value for --pattern.
type layoutFlag struct {
	layout harness.Layout
}

func (l *layoutFlag) String() string { return string(l.layout) }
func (*layoutFlag) Type() string     { return "seq|rand" }

func (l *layoutFlag) Set(val string) error {
	layout, err := harness.ParseLayout(val)
	if err != nil {
		return err
	}
	l.layout = layout
	return nil
}

// outputFlag is a pflag.Value for --output-format.
type outputFlag struct {
	format string
}

func (o *outputFlag) String() string { return o.format }
func (*outputFlag) Type() string     { return "text|json" }

func (o *outputFlag) Set(val string) error {
	format, err := ui.ParseOutputFormat(val)
	if err != nil {
		return err
	}
	o.format = format
	return nil
}

var (
	_ pflag.Value = (*sizeFlag)(nil)
	_ pflag.Value = (*layoutFlag)(nil)
	_ pflag.Value = (*outputFlag)(nil)
)
