package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/flowc/internal/cli"
	"github.com/orizon-lang/flowc/internal/codegen"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/lir"
	"github.com/orizon-lang/flowc/internal/mir"
	"github.com/orizon-lang/flowc/internal/runtime/dataflow"
)

type driver struct {
	opts   *options
	log    *cli.Logger
	stdout io.Writer

	outMu sync.Mutex
}

// result is one compiled input.
type result struct {
	path   string
	mir    string
	prog   *lir.Program
	report *dataflow.Report
	trace  bytes.Buffer
}

// once compiles every input and emits the results in argument order.
func (d *driver) once(ctx context.Context) error {
	results, err := d.compileAll(ctx, d.opts.inputs)
	if err != nil {
		return err
	}

	for _, r := range results {
		if err := d.emit(r); err != nil {
			return err
		}
	}

	return nil
}

// compileAll compiles paths concurrently, at most Config.Concurrency at
// a time. The first failure cancels the rest.
func (d *driver) compileAll(ctx context.Context, paths []string) ([]*result, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.cfg.Concurrency)

	results := make([]*result, len(paths))

	for i, path := range paths {
		g.Go(func() error {
			r, err := d.compileFile(ctx, path)
			if err != nil {
				return err
			}

			results[i] = r

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func (d *driver) compileFile(ctx context.Context, path string) (*result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := d.opts.cfg
	log := d.log.Slog().With("file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.Wrapf(err, "%s", path)
	}

	p, err := mir.DecodeBytes(data, mir.DecodeOptions{DefaultSplitDegree: cfg.SplitDegree})
	if err != nil {
		return nil, ferrors.Wrapf(err, "%s", path)
	}

	var dump string
	if d.opts.dumpMIR {
		annotated := p.Clone()
		mir.ComputePassIn(annotated)
		dump = annotated.String()
	}

	prog, err := codegen.Compile(p, codegen.Options{
		DebugComments: cfg.DebugComments,
		TargetVersion: cfg.TargetVersion,
		Logger:        log,
	})
	if err != nil {
		return nil, ferrors.Wrapf(err, "%s", path)
	}

	log.Info("compiled", "procs", len(prog.Procs))

	r := &result{path: path, mir: dump, prog: prog}

	if d.opts.run {
		r.report, err = dataflow.Run(ctx, prog, dataflow.Options{
			Workers: cfg.Workers,
			Trace:   &r.trace,
			Logger:  log,
		})
		if err != nil {
			return nil, ferrors.Wrapf(err, "%s: simulate", path)
		}
	}

	return r, nil
}

// emit writes the lowered program and any simulation output.
func (d *driver) emit(r *result) error {
	d.outMu.Lock()
	defer d.outMu.Unlock()

	if d.opts.outDir != "" {
		if err := os.MkdirAll(d.opts.outDir, 0o755); err != nil {
			return ferrors.Wrapf(err, "create output directory")
		}

		if r.mir != "" {
			out := filepath.Join(d.opts.outDir, outputName(r.path, ".mir"))
			if err := os.WriteFile(out, []byte(r.mir), 0o644); err != nil {
				return ferrors.Wrapf(err, "%s", out)
			}
		}

		out := filepath.Join(d.opts.outDir, outputName(r.path, ".lir"))
		if err := os.WriteFile(out, []byte(r.prog.String()), 0o644); err != nil {
			return ferrors.Wrapf(err, "%s", out)
		}

		d.log.Info("wrote %s", out)
	} else {
		fmt.Fprint(d.stdout, r.mir)
		fmt.Fprint(d.stdout, r.prog.String())
	}

	if r.report == nil {
		return nil
	}

	if _, err := d.stdout.Write(r.trace.Bytes()); err != nil {
		return err
	}

	if !r.report.Clean() {
		d.log.Warn("%s: %d rules never fired %v; %d arrays never closed %v", r.path,
			len(r.report.Unfired), r.report.Unfired,
			len(r.report.OpenContainers), r.report.OpenContainers)
	}

	d.log.Info("%s: %d rules registered, %d fired, %d tasks", r.path,
		r.report.RulesRegistered, r.report.RulesFired, r.report.Tasks)

	return nil
}

// outputName maps in/foo.json to foo<ext>.
func outputName(path, ext string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}
