// Command flowc lowers typed dataflow IR files into rule programs for the
// task engine, optionally simulating them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/orizon-lang/flowc/internal/cli"
)

const toolName = "flowc"

// options are the settings of one invocation after the configuration
// file, the environment and the flags have been merged.
type options struct {
	cfg     *cli.Config
	outDir  string
	dumpMIR bool
	run     bool
	watch   bool
	version bool
	json    bool
	inputs  []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	os.Exit(realMain(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// realMain runs flowc and returns the process exit code.
func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}

		fmt.Fprintf(stderr, "Error: %v\n", err)

		return 2
	}

	if opts.version {
		if err := cli.PrintVersion(stdout, toolName, opts.json); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}

		return 0
	}

	if err := cli.ValidateArgs(opts.inputs, 1, "flowc [flags] input.json..."); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var log *cli.Logger
	if f, ok := stderr.(*os.File); ok && f == os.Stderr {
		log = cli.NewLogger(opts.cfg.Verbose, opts.cfg.Debug)
	} else {
		log = cli.NewLoggerTo(stderr, opts.cfg.Verbose, opts.cfg.Debug, false)
	}

	d := &driver{opts: opts, log: log, stdout: stdout}

	if opts.watch {
		if err := d.watch(ctx); err != nil {
			d.report(err)
			return 1
		}

		return 0
	}

	if err := d.once(ctx); err != nil {
		d.report(err)
		return 1
	}

	return 0
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		outDir        = fs.String("o", "", "write one .lir file per input into `dir` instead of stdout")
		splitDegree   = fs.Int("split-degree", 0, "default split degree for loops that do not set one (0 disables)")
		dumpMIR       = fs.Bool("dump-mir", false, "also print the input IR with computed pass-in annotations")
		run           = fs.Bool("run", false, "simulate each lowered program")
		workers       = fs.Int("workers", 0, "simulator worker count (0 uses every CPU)")
		watch         = fs.Bool("watch", false, "recompile inputs whenever they change")
		configPath    = fs.String("config", "", "load settings from a JSON `file`")
		targetVersion = fs.String("target-version", "", "task engine `version` to emit for")
		verbose       = fs.Bool("verbose", false, "log progress")
		debug         = fs.Bool("debug", false, "log lowering details and print error stacks")
		showVersion   = fs.Bool("version", false, "show version information")
		jsonOutput    = fs.Bool("json", false, "print version information as JSON")
	)

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] input.json...\n\n", toolName)
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nEnvironment: %s, %s, %s, %s, %s, %s, %s\n",
			cli.EnvSplitDegree, cli.EnvWorkers, cli.EnvTargetVersion, cli.EnvDebugComments,
			cli.EnvConcurrency, cli.EnvVerbose, cli.EnvDebug)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := cli.LoadConfig(*configPath)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()

	// Flags given on the command line win over file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "split-degree":
			cfg.SplitDegree = *splitDegree
		case "workers":
			cfg.Workers = *workers
		case "target-version":
			cfg.TargetVersion = *targetVersion
		case "verbose":
			cfg.Verbose = *verbose
		case "debug":
			cfg.Debug = *debug
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &options{
		cfg:     cfg,
		outDir:  *outDir,
		dumpMIR: *dumpMIR,
		run:     *run,
		watch:   *watch,
		version: *showVersion,
		json:    *jsonOutput,
		inputs:  fs.Args(),
	}, nil
}

// report logs a failure, with its stack in debug mode.
func (d *driver) report(err error) {
	if d.opts.cfg.Debug {
		d.log.Error("%+v", err)
		return
	}

	d.log.Error("%v", err)
}
