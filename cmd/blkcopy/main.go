package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/blkcopy/internal/config"
	"github.com/bamsammich/blkcopy/internal/engine"
	"github.com/bamsammich/blkcopy/internal/event"
	"github.com/bamsammich/blkcopy/internal/harness"
	"github.com/bamsammich/blkcopy/internal/stats"
	"github.com/bamsammich/blkcopy/internal/ui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

// options holds every flag of the root command.
type options struct {
	engine          string
	emulate         bool
	bs              string
	ranges          int
	maxRanges       int
	units           int
	batches         int
	rate            float64
	verify          bool
	prefill         bool
	layout          layoutFlag
	seed            uint64
	srcOff          sizeFlag
	dstOff          sizeFlag
	regionSize      sizeFlag
	direct          bool
	iouring         bool
	continueOnError bool
	configFile      string
	verbose         bool
	quiet           bool
	output          outputFlag
	logFile         string
	showVersion     bool
}

//nolint:revive // cognitive-complexity: CLI entry point wires flags, config, logging and the harness
func run() int {
	var opts options
	opts.layout = layoutFlag{layout: harness.Sequential}
	opts.output = outputFlag{format: ui.OutputText}

	rootCmd := &cobra.Command{
		Use:   "blkcopy [flags] <device>",
		Short: "Copy block ranges within a device using the BLKCOPY offload ioctl",
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				return nil
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintf(os.Stdout, "blkcopy %s\n", version)
				return nil
			}
			return runJob(cmd, args[0], &opts)
		},
	}

	registerFlags(rootCmd.Flags(), &opts)

	rootCmd.AddCommand(enginesCmd)
	rootCmd.AddCommand(docsCmd)

	if err := rootCmd.Execute(); err != nil {
		if exitErr, ok := err.(*exitError); ok {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

// registerFlags binds the root command's flags to opts.
func registerFlags(f *pflag.FlagSet, opts *options) {
	f.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	f.StringVarP(&opts.engine, "engine", "e", engine.NameBlkcopy, "I/O engine (see 'blkcopy engines')")
	f.BoolVar(&opts.emulate, "emulate", false, "copy with pread/pwrite instead of the offload ioctl")
	f.StringVarP(&opts.bs, "bs", "b", "4K", "bytes per range (multiple of 512)")
	f.IntVarP(&opts.ranges, "ranges", "r", 0, "ranges per batch (default: --max-ranges)")
	f.IntVar(&opts.maxRanges, "max-ranges", 16, "batch capacity per unit")
	f.IntVarP(&opts.units, "units", "n", 1, "number of work units")
	f.IntVar(&opts.batches, "batches", 1, "dispatches per work unit")
	f.Float64Var(&opts.rate, "rate", 0, "limit dispatches per second (0: unlimited)")
	f.BoolVar(&opts.verify, "verify", false, "compare BLAKE3 digests of source and destination after each dispatch")
	f.BoolVar(&opts.prefill, "prefill", false, "write a deterministic pattern to source ranges before each dispatch")
	f.Var(&opts.layout, "pattern", "source block selection (seq or rand)")
	f.Uint64Var(&opts.seed, "seed", 1, "seed for random layout and prefill pattern")
	f.Var(&opts.srcOff, "src-offset", "start of the source area (e.g. 0, 1G)")
	f.Var(&opts.dstOff, "dst-offset", "start of the destination area (default: half the device)")
	f.Var(&opts.regionSize, "region-size", "size of each area (default: half the device)")
	f.BoolVar(&opts.direct, "direct", false, "open the device with O_DIRECT")
	f.BoolVar(&opts.iouring, "iouring", false, "use io_uring for reads and writes (Linux only)")
	f.BoolVar(&opts.continueOnError, "continue-on-error", false, "keep dispatching after a failed unit")
	f.StringVarP(&opts.configFile, "config", "c", "", "config file (default: $XDG_CONFIG_HOME/blkcopy/config.toml)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors")
	f.Var(&opts.output, "output-format", "summary format (text or json); json goes to stdout")
	f.StringVar(&opts.logFile, "log", "", "write structured JSON log to FILE")
}

//nolint:revive // cognitive-complexity: sequential setup steps
func runJob(cmd *cobra.Command, device string, opts *options) error {
	var (
		cfg config.Config
		err error
	)
	if opts.configFile != "" {
		cfg, err = config.LoadFile(opts.configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else if cfg, err = config.Load(); err != nil {
		slog.Warn("failed to load config", "error", err)
	}
	applyConfigDefaults(cmd, cfg.Defaults, opts)

	bs, err := ui.ParseBlockSize(opts.bs)
	if err != nil {
		return fmt.Errorf("invalid --bs: %w", err)
	}

	closeLog, err := setupLogging(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	region, err := opts.region()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	events := make(chan event.Event, 256)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logEvents(events)
	}()

	hcfg := harness.Config{
		Device:          device,
		Engine:          opts.engine,
		Options:         engine.Options{BlockSize: bs, MaxRanges: opts.maxRanges, Emulate: opts.emulate},
		Ranges:          opts.ranges,
		Units:           opts.units,
		Batches:         opts.batches,
		Layout:          opts.layout.layout,
		Seed:            opts.seed,
		Region:          region,
		Rate:            opts.rate,
		Prefill:         opts.prefill,
		Verify:          opts.verify,
		Direct:          opts.direct,
		IOURing:         opts.iouring,
		ContinueOnError: opts.continueOnError,
		Events:          events,
		Stats:           collector,
	}

	result := harness.Run(ctx, hcfg)
	stop()
	close(events)
	wg.Wait()

	if err := writeSummary(cmd.OutOrStdout(), os.Stderr, opts, result); err != nil {
		return err
	}

	if result.Err != nil {
		slog.Error("copy failed", "device", device, "error", result.Err)
		return &exitError{code: exitCode(result)}
	}
	return nil
}

// writeSummary prints the end-of-run report. JSON always goes to stdout so
// scripts get a document even for a failed run; text goes to stderr unless
// quiet.
func writeSummary(stdout, stderr io.Writer, opts *options, result harness.Result) error {
	method := result.Method.String()
	if opts.output.format == ui.OutputJSON {
		out, err := ui.JSONSummary(opts.engine, method, result.Stats, result.Err)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%s\n", out)
		return err
	}
	if opts.quiet || result.Stats.UnitsDispatched == 0 {
		return nil
	}
	human := false
	if f, ok := stderr.(*os.File); ok {
		human = ui.IsTTY(f.Fd())
	}
	_, err := fmt.Fprintln(stderr, ui.Summary(opts.engine, method, result.Stats, human))
	return err
}

func setupLogging(opts *options) (func(), error) {
	logLevel := slog.LevelWarn
	if opts.verbose {
		logLevel = slog.LevelDebug
	} else if !opts.quiet {
		logLevel = slog.LevelInfo
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	var handler slog.Handler = textHandler
	closeFn := func() {}
	if opts.logFile != "" {
		lf, err := os.Create(opts.logFile)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		closeFn = func() { _ = lf.Close() }
		jsonHandler := slog.NewJSONHandler(lf, &slog.HandlerOptions{Level: slog.LevelDebug})
		handler = ui.NewMultiHandler(textHandler, jsonHandler)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn, nil
}

// logEvents writes every harness event as a debug record.
func logEvents(events <-chan event.Event) {
	for ev := range events {
		attrs := []slog.Attr{
			slog.String("type", ev.Type.String()),
			slog.String("unit", ev.Unit),
			slog.Int("seq", ev.Seq),
		}
		if ev.Index >= 0 {
			attrs = append(attrs, slog.Int("index", ev.Index))
		}
		if ev.Ranges > 0 {
			attrs = append(attrs, slog.Int("ranges", ev.Ranges))
		}
		if ev.Bytes > 0 {
			attrs = append(attrs, slog.Int64("bytes", ev.Bytes))
		}
		if ev.Latency > 0 {
			attrs = append(attrs, slog.Duration("latency", ev.Latency))
		}
		if ev.Error != nil {
			attrs = append(attrs, slog.String("error", ev.Error.Error()))
		}
		slog.LogAttrs(context.Background(), slog.LevelDebug, "blkcopy.event", attrs...)
	}
}

// region assembles the area flags. All three unset means the harness
// default; a partial set fills the rest from the source offset.
func (o *options) region() (harness.Region, error) {
	if !o.srcOff.set && !o.dstOff.set && !o.regionSize.set {
		return harness.Region{}, nil
	}
	if !o.regionSize.set {
		return harness.Region{}, errors.New("--region-size is required with --src-offset or --dst-offset")
	}
	r := harness.Region{Src: o.srcOff.n, Size: o.regionSize.n, Dst: o.dstOff.n}
	if !o.dstOff.set {
		r.Dst = r.Src + r.Size
	}
	return r, nil
}

// exitCode maps a failed run to 1 when some ranges were copied and 2 when
// nothing was.
func exitCode(res harness.Result) int {
	if res.Stats.RangesCompleted > 0 {
		return 1
	}
	return 2
}

// applyConfigDefaults applies config file defaults for flags not explicitly set on the CLI.
func applyConfigDefaults(cmd *cobra.Command, defaults config.DefaultsConfig, opts *options) {
	flags := cmd.Flags()
	if !flags.Changed("engine") && defaults.Engine != nil {
		opts.engine = *defaults.Engine
	}
	if !flags.Changed("emulate") && defaults.Emulate != nil {
		opts.emulate = *defaults.Emulate
	}
	if !flags.Changed("bs") && defaults.BlockSize != nil {
		opts.bs = *defaults.BlockSize
	}
	if !flags.Changed("ranges") && defaults.Ranges != nil {
		opts.ranges = *defaults.Ranges
	}
	if !flags.Changed("max-ranges") && defaults.MaxRanges != nil {
		opts.maxRanges = *defaults.MaxRanges
	}
	if !flags.Changed("units") && defaults.Units != nil {
		opts.units = *defaults.Units
	}
	if !flags.Changed("rate") && defaults.Rate != nil {
		opts.rate = *defaults.Rate
	}
	if !flags.Changed("verify") && defaults.Verify != nil {
		opts.verify = *defaults.Verify
	}
	if !flags.Changed("direct") && defaults.Direct != nil {
		opts.direct = *defaults.Direct
	}
	if !flags.Changed("iouring") && defaults.IOURing != nil {
		opts.iouring = *defaults.IOURing
	}
	if !flags.Changed("output-format") && defaults.OutputFormat != nil {
		if format, err := ui.ParseOutputFormat(*defaults.OutputFormat); err == nil {
			opts.output.format = format
		} else {
			slog.Warn("ignoring config output_format", "error", err)
		}
	}
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
