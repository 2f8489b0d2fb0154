// Package dataflow executes lowered rule programs in memory. It models
// the task engine: single-assignment futures, containers that close when
// their last writer slot is dropped, and rules that fire once their
// inputs are written. Runnable tasks go through a lock-free ready queue
// drained by a pool of workers; each task runs to completion while it
// holds the store.
package dataflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/lir"
	"github.com/orizon-lang/flowc/internal/types"
)

// Options configures a simulation.
type Options struct {
	// Workers is the size of the worker pool; zero means GOMAXPROCS.
	Workers int
	// QueueSize bounds the lock-free ready queue. Tasks that do not fit
	// wait in an unbounded backlog.
	QueueSize int
	// Trace receives one line per trace call.
	Trace  io.Writer
	Logger *slog.Logger
}

// Report summarises a finished simulation.
type Report struct {
	RulesRegistered int
	RulesFired      int
	// Tasks counts every procedure run by a worker: fired rules and
	// asynchronous function calls.
	Tasks int
	// Unfired lists rules whose inputs were never all written.
	Unfired []string
	// OpenContainers lists arrays whose writer slots never reached zero.
	OpenContainers []string
	// Trace holds the arguments of each trace call, comma separated, in
	// execution order.
	Trace []string
	// Outputs maps the entry function's outputs to their final contents.
	Outputs map[string]any
}

// Clean reports whether every rule fired and every array closed.
func (r *Report) Clean() bool {
	return len(r.Unfired) == 0 && len(r.OpenContainers) == 0
}

type task struct {
	label string
	run   func() error
}

type ruleRecord struct {
	name  string
	fired bool
}

// Simulator runs one program. It is not reusable.
type Simulator struct {
	prog *lir.Program
	opts Options
	log  *slog.Logger

	procs map[string]*lir.Proc

	// mu guards everything below and is held while a task runs.
	mu      sync.Mutex
	globals map[string]any
	nextID  int
	arrays  []*datum
	rules   []*ruleRecord
	traces  []string
	tasks   int
	backlog []task
	err     error

	queue   *readyQueue[task]
	pending atomic.Int64
}

// New prepares a simulation of prog.
func New(prog *lir.Program, opts Options) *Simulator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &Simulator{
		prog:    prog,
		opts:    opts,
		log:     log,
		procs:   make(map[string]*lir.Proc, len(prog.Procs)),
		globals: map[string]any{},
		queue:   newReadyQueue[task](uint64(opts.QueueSize)),
	}

	for _, p := range prog.Procs {
		s.procs[p.Name] = p
	}

	return s
}

// Run simulates prog with a fresh Simulator.
func Run(ctx context.Context, prog *lir.Program, opts Options) (*Report, error) {
	return New(prog, opts).Run(ctx)
}

// Run initialises the globals, runs the entry function and then drives
// the worker pool until no task is runnable. Rules that never fire and
// arrays that never close are reported, not treated as errors.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	entry, ok := s.procs[s.prog.Entry]
	if !ok || entry.Kind != lir.ProcFunction {
		return nil, ferrors.Runtime("NO_ENTRY", "program %s has no entry function %q", s.prog.Name, s.prog.Entry)
	}

	if len(entry.Params) > 0 {
		return nil, ferrors.Runtime("ENTRY_INPUTS", "entry function %s takes %d inputs", entry.Name, len(entry.Params))
	}

	outputs, err := s.start(entry)
	if err != nil {
		return nil, err
	}

	s.log.Debug("entry finished", "entry", entry.Name, "pending", s.pending.Load())

	g, ctx := errgroup.WithContext(ctx)
	for range s.opts.Workers {
		g.Go(func() error { return s.worker(ctx) })
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := s.report(entry, outputs)
	s.log.Info("simulation finished",
		"program", s.prog.Name,
		"rules", rep.RulesRegistered,
		"fired", rep.RulesFired,
		"tasks", rep.Tasks,
		"unfired", len(rep.Unfired),
		"open", len(rep.OpenContainers))

	return rep, nil
}

// start runs the constants procedure and the entry function on the
// calling goroutine.
func (s *Simulator) start(entry *lir.Proc) ([]*datum, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prog.Init != "" {
		consts, ok := s.procs[s.prog.Init]
		if !ok {
			return nil, ferrors.Runtime("UNKNOWN_PROC", "constants procedure %s is missing", s.prog.Init)
		}

		if err := s.exec(&frame{proc: consts.Name, vars: map[string]any{}}, consts.Body); err != nil {
			return nil, err
		}
	}

	outputs := make([]*datum, len(entry.Outputs))
	args := make([]any, len(entry.Outputs))

	for i, v := range entry.Outputs {
		d := s.newDatum(v.Name(), v.Type())
		if d.typ.Kind == types.KindArray {
			// Stands in for the slot a caller holds for the callee.
			d.slots = 1
			s.arrays = append(s.arrays, d)
		}

		outputs[i], args[i] = d, d
	}

	if err := s.invoke(entry, args); err != nil {
		return nil, err
	}

	return outputs, s.err
}

func (s *Simulator) worker(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t, ok := s.next()
		if !ok {
			if s.pending.Load() == 0 {
				return nil
			}

			runtime.Gosched()

			continue
		}

		if err := s.runTask(t); err != nil {
			return err
		}
	}
}

func (s *Simulator) next() (task, bool) {
	if t, ok := s.queue.pop(); ok {
		return t, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.backlog) == 0 {
		return task{}, false
	}

	t := s.backlog[0]
	s.backlog = s.backlog[1:]

	return t, true
}

func (s *Simulator) runTask(t task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.pending.Add(-1)

	if s.err != nil {
		return s.err
	}

	s.tasks++

	if err := t.run(); err != nil {
		s.fail(ferrors.Wrapf(err, "task %s", t.label))
	}

	return s.err
}

// enqueue makes t runnable. The caller holds mu.
func (s *Simulator) enqueue(t task) {
	s.pending.Add(1)

	if !s.queue.push(t) {
		s.backlog = append(s.backlog, t)
	}
}

// fail records the first error of the run.
func (s *Simulator) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

func (s *Simulator) check(err error) {
	if err != nil {
		s.fail(err)
	}
}

func (s *Simulator) trace(vals []any) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatValue(v)
	}

	line := strings.Join(parts, ",")
	s.traces = append(s.traces, line)

	if s.opts.Trace != nil {
		fmt.Fprintf(s.opts.Trace, "trace: %s\n", line)
	}
}

// registerRule captures the rule's arguments now and enqueues its
// procedure once every input is ready.
func (s *Simulator) registerRule(f *frame, in lir.Rule) error {
	proc, ok := s.procs[in.Name]
	if !ok {
		return ferrors.Runtime("UNKNOWN_PROC", "%s registers unknown procedure %s", f.proc, in.Name)
	}

	args, err := s.args(f, in.Args)
	if err != nil {
		return err
	}

	inputs := make([]*datum, len(in.Inputs))
	for i, v := range in.Inputs {
		if inputs[i], err = s.datumOf(f, v); err != nil {
			return err
		}
	}

	rec := &ruleRecord{name: in.Name}
	s.rules = append(s.rules, rec)

	s.whenAll(inputs, func() {
		rec.fired = true
		s.log.Debug("rule fired", "rule", in.Name, "args", len(args))
		s.enqueue(task{label: in.Name, run: func() error { return s.invoke(proc, args) }})
	})

	return nil
}

// call dispatches a function call once its blocking inputs are ready. A
// sync call whose inputs are ready runs in place.
func (s *Simulator) call(f *frame, in lir.Call) error {
	ins, err := s.args(f, in.Inputs)
	if err != nil {
		return err
	}

	outs := make([]*datum, len(in.Outputs))
	for i, v := range in.Outputs {
		if outs[i], err = s.datumOf(f, v); err != nil {
			return err
		}
	}

	block := make([]*datum, len(in.BlockOn))
	ready := true

	for i, v := range in.BlockOn {
		if block[i], err = s.datumOf(f, v); err != nil {
			return err
		}

		ready = ready && block[i].ready()
	}

	if in.Mode == types.TaskSync && ready {
		return s.callTarget(in.Name, outs, ins)
	}

	s.whenAll(block, func() {
		s.enqueue(task{label: in.Name, run: func() error { return s.callTarget(in.Name, outs, ins) }})
	})

	return nil
}

// callTarget runs a program function or an engine builtin.
func (s *Simulator) callTarget(name string, outs []*datum, ins []any) error {
	if proc, ok := s.procs[name]; ok && proc.Kind == lir.ProcFunction {
		args := make([]any, 0, len(outs)+len(ins))
		for _, d := range outs {
			args = append(args, d)
		}

		return s.invoke(proc, append(args, ins...))
	}

	switch name {
	case "trace":
		vals, err := valuesOf(ins)
		if err != nil {
			return err
		}

		s.trace(vals)

		return nil
	case "copy_int", "copy_float", "copy_string":
		if len(outs) != 1 || len(ins) != 1 {
			return ferrors.Runtime("ARITY", "%s takes one output and one input", name)
		}

		v, err := valueOf(ins[0])
		if err != nil {
			return err
		}

		return s.setFuture(outs[0], v)
	}

	return ferrors.Runtime("UNKNOWN_FUNCTION", "call of unknown function %s", name)
}

func (s *Simulator) report(entry *lir.Proc, outputs []*datum) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	rep := &Report{
		RulesRegistered: len(s.rules),
		Tasks:           s.tasks,
		Trace:           append([]string(nil), s.traces...),
		Outputs:         make(map[string]any, len(outputs)),
	}

	for _, r := range s.rules {
		if r.fired {
			rep.RulesFired++
		} else {
			rep.Unfired = append(rep.Unfired, r.name)
		}
	}

	for _, a := range s.arrays {
		if !a.closed {
			rep.OpenContainers = append(rep.OpenContainers, a.String())
		}
	}

	sort.Strings(rep.Unfired)
	sort.Strings(rep.OpenContainers)

	for i, v := range entry.Outputs {
		rep.Outputs[v.Name()] = outputs[i].snapshot()
	}

	return rep
}
