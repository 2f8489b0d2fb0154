// Package codegen lowers a mir.Program onto a backend for the
// rule-triggered task engine. Every async construct becomes a deferred
// procedure fired by a rule, with explicit slot bookkeeping for the
// containers it writes.
package codegen

import (
	"fmt"
	"log/slog"

	"github.com/orizon-lang/flowc/internal/backend"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/lir"
	"github.com/orizon-lang/flowc/internal/mir"
	"github.com/orizon-lang/flowc/internal/types"
)

// Options configures a lowering run.
type Options struct {
	// DebugComments emits a comment at the start of each construct.
	DebugComments bool
	// TargetVersion is the task engine version emitted for; empty means
	// DefaultTarget.
	TargetVersion string
	Logger        *slog.Logger
}

// Lowerer drives a backend.Backend over one program.
type Lowerer struct {
	prog   *mir.Program
	out    backend.Backend
	opts   Options
	ctx    *Context
	sched  *scheduler
	splits []string
}

// NewLowerer prepares p for lowering onto out.
func NewLowerer(p *mir.Program, out backend.Backend, opts Options) *Lowerer {
	ctx := NewContext(opts.Logger)

	return &Lowerer{
		prog:  p,
		out:   out,
		opts:  opts,
		ctx:   ctx,
		sched: newScheduler(out, ctx),
	}
}

// Lower validates p, fills in missing capture information and lowers
// every global and function onto out.
func Lower(p *mir.Program, out backend.Backend, opts Options) error {
	return NewLowerer(p, out, opts).Run()
}

// Compile lowers p into an in-memory program.
func Compile(p *mir.Program, opts Options) (*lir.Program, error) {
	b := lir.NewBuilder(p.Name)
	if err := Lower(p, b, opts); err != nil {
		return nil, err
	}

	return b.Finish()
}

// Run performs the lowering.
func (l *Lowerer) Run() error {
	target := l.opts.TargetVersion
	if target == "" {
		target = DefaultTarget
	}

	if err := CheckTarget(target); err != nil {
		return err
	}

	if err := mir.Validate(l.prog); err != nil {
		return err
	}

	// Pass-in is filled on a copy; the caller's tree stays read-only.
	l.prog = l.prog.Clone()
	mir.ComputePassIn(l.prog)

	for _, f := range l.prog.Functions {
		l.ctx.reserve(f.Name)
	}

	l.ctx.reserve(lir.ConstantsProc)

	for _, g := range l.prog.Globals {
		if !g.Val.IsImmediate() {
			return ferrors.Internal("global", "%s: value must be an immediate", g.Var.Name())
		}

		l.out.AddGlobal(g.Var, g.Val)
	}

	for _, f := range l.prog.Functions {
		if err := l.function(f); err != nil {
			return ferrors.Wrapf(err, "function %s", f.Name)
		}
	}

	l.ctx.log.Debug("lowered program", "program", l.prog.Name, "functions", len(l.prog.Functions))

	return nil
}

// function lowers f. Array outputs arrive with a slot created by the
// caller, released here once the body has run.
func (l *Lowerer) function(f *mir.Function) error {
	l.out.StartFunction(f.Name, f.Outputs, f.Inputs)

	l.comment("function %s", f.Name)

	if err := l.block(f.Body); err != nil {
		return err
	}

	for _, v := range types.FilterWriteRefcount(f.Outputs) {
		l.out.SlotDrop(v)
	}

	l.out.EndFunction()

	if len(l.ctx.asyncs) != 0 || len(l.splits) != 0 || len(l.ctx.loops) != 0 {
		return ferrors.Internal(f.Name, "unclosed async scopes at function end")
	}

	return nil
}

// block declares b's variables, lowers its statements in order and runs
// its cleanups.
func (l *Lowerer) block(b *mir.Block) error {
	for _, v := range b.Vars {
		l.out.Declare(v)
	}

	for _, s := range b.Stmts {
		var err error

		switch s := s.(type) {
		case mir.Instruction:
			err = l.instruction(s)
		case mir.Continuation:
			err = l.continuation(s)
		default:
			err = ferrors.Internal("block", "unknown statement %T", s)
		}

		if err != nil {
			return err
		}
	}

	for _, c := range b.Cleanups {
		if err := l.instruction(c.Action); err != nil {
			return err
		}
	}

	return nil
}

func (l *Lowerer) comment(format string, args ...interface{}) {
	if l.opts.DebugComments {
		l.out.Comment(fmt.Sprintf(format, args...))
	}
}
