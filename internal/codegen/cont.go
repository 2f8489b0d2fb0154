package codegen

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/flowc/internal/backend"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/mir"
	"github.com/orizon-lang/flowc/internal/types"
)

func (l *Lowerer) continuation(c mir.Continuation) error {
	switch c := c.(type) {
	case *mir.If:
		return l.ifStmt(c)
	case *mir.Switch:
		return l.switchStmt(c)
	case *mir.Wait:
		return l.wait(c)
	case *mir.Foreach:
		return l.foreach(c)
	case *mir.RangeLoop:
		return l.rangeLoop(c)
	case *mir.Loop:
		return l.loop(c)
	default:
		return ferrors.Internal("continuation", "unknown continuation %T", c)
	}
}

// isLocalInt reports whether a is usable as an integer without waiting.
func isLocalInt(a types.Arg) bool {
	if a.IsImmediateInt() {
		return true
	}

	return a.IsVar() && types.IsScalarValue(a.Var().Type()) && a.Var().Type().Prim == types.PrimInt
}

func argDescribe(a types.Arg) string {
	if a.IsNone() {
		return "nothing"
	}

	if a.IsVar() {
		return a.Var().Type().Describe()
	}

	return "immediate " + a.Type().Describe()
}

func argName(a types.Arg) string {
	if a.IsVar() {
		return a.Var().Name()
	}

	return a.String()
}

func (l *Lowerer) ifStmt(c *mir.If) error {
	cond := c.Cond
	ok := isLocalInt(cond) || cond.IsImmediateBool() ||
		(cond.IsVar() && types.IsScalarValue(cond.Var().Type()) && cond.Var().Type().Prim == types.PrimBool)

	if !ok {
		return ferrors.TypeMismatch("if", argName(cond), "local int or bool", argDescribe(cond))
	}

	l.out.StartIf(cond, c.Else != nil)

	if err := l.block(c.Then); err != nil {
		return err
	}

	if c.Else != nil {
		l.out.StartElse()

		if err := l.block(c.Else); err != nil {
			return err
		}
	}

	l.out.EndIf()

	return nil
}

func (l *Lowerer) switchStmt(c *mir.Switch) error {
	if !isLocalInt(c.Selector) {
		return ferrors.TypeMismatch("switch", argName(c.Selector), "local int", argDescribe(c.Selector))
	}

	if len(c.Cases) != len(c.Labels) {
		return ferrors.ArityMismatch("switch", "case bodies", len(c.Labels), len(c.Cases))
	}

	l.out.StartSwitch(c.Selector, c.Labels, c.HasDefault())

	for i, b := range c.Cases {
		l.out.StartCase(i)

		if err := l.block(b); err != nil {
			return err
		}

		l.out.EndCase()
	}

	if c.HasDefault() {
		l.out.StartCase(-1)

		if err := l.block(c.Default); err != nil {
			return err
		}

		l.out.EndCase()
	}

	l.out.EndSwitch()

	return nil
}

// controlsLoop reports whether b continues or breaks the loop enclosing
// it, looking through nested constructs other than loops.
func controlsLoop(b *mir.Block) bool {
	found := false

	b.Walk(func(nb *mir.Block) bool {
		if found {
			return false
		}

		if _, ok := nb.ParentContinuation().(*mir.Loop); ok && nb != b {
			return false
		}

		for _, s := range nb.Stmts {
			switch s.(type) {
			case *mir.LoopContinue, *mir.LoopBreak:
				found = true
			}
		}

		return !found
	})

	return found
}

func (l *Lowerer) wait(c *mir.Wait) error {
	for _, v := range c.WaitVars {
		if !isBlocking(v) {
			return ferrors.TypeMismatch("wait", v.Name(), "future, reference or array", v.Type().Describe())
		}
	}

	if !c.Priority.IsNone() && !isLocalInt(c.Priority) {
		return ferrors.TypeMismatch("wait", argName(c.Priority), "local int", argDescribe(c.Priority))
	}

	name := c.Name
	if name == "" {
		name = "wait"
	}

	l.comment("wait %s on [%s]", name, varList(c.WaitVars))

	// Nothing to wait for: the body runs in place.
	if len(c.WaitVars) == 0 && !c.Explicit {
		l.out.StartNestedBlock()

		if err := l.block(c.Body); err != nil {
			return err
		}

		l.out.EndNestedBlock()

		return nil
	}

	used := c.UsedVars
	if f := l.ctx.currentLoop(); f != nil && controlsLoop(c.Body) {
		used = types.AppendMissing(used, f.extra...)
	}

	if _, err := l.sched.startAsync(name, c.WaitVars, used, c.KeepOpen, false, c.Priority); err != nil {
		return err
	}

	if err := l.block(c.Body); err != nil {
		return err
	}

	return l.sched.endAsync(c.KeepOpen)
}

func (l *Lowerer) foreach(c *mir.Foreach) error {
	arr := c.Array
	if !types.IsArray(arr.Type()) {
		return ferrors.TypeMismatch("foreach", arr.Name(), "array", arr.Type().Describe())
	}

	if !c.Member.Type().Equal(arr.Type().Member) {
		return ferrors.TypeMismatch("foreach", c.Member.Name(), arr.Type().Member.Describe(), c.Member.Type().Describe())
	}

	if c.Count != nil && !isLocalInt(types.VarArg(c.Count)) {
		return ferrors.TypeMismatch("foreach", c.Count.Name(), "local int", c.Count.Type().Describe())
	}

	n := l.ctx.next("foreach")
	name := fmt.Sprintf("foreach:%d", n)
	keep := c.KeepOpen

	// The loop header runs outside the body, where member and count are
	// not yet bound.
	outer := types.AppendMissing(c.UsedVars, arr)
	outer = types.Remove(outer, c.Member)

	if c.Count != nil {
		outer = types.Remove(outer, c.Count)
	}

	l.comment("%s over %s", name, arr.Name())

	if !c.ArrayClosed {
		if _, err := l.sched.startAsync(name, []*types.Var{arr}, outer, keep, false, types.Arg{}); err != nil {
			return err
		}
	}

	var window *backend.Window

	if c.SplitDegree > 0 {
		size := temp("size", n, types.ValueInt)
		last := temp("last", n, types.ValueInt)

		l.out.Declare(size)
		l.out.Declare(last)
		l.out.ContainerSize(size, arr)
		l.out.LocalOp(types.OpMinusInt, last, []types.Arg{types.VarArg(size), types.IntArg(1)})

		lo, hi, _, err := l.startRangeSplit(name, outer, keep, c.SplitDegree,
			types.IntArg(0), types.VarArg(last), types.IntArg(1))
		if err != nil {
			return err
		}

		window = &backend.Window{Lo: types.VarArg(lo), Hi: types.VarArg(hi)}
	}

	l.out.StartForeach(arr, c.Member, c.Count, window)
	l.sched.enterIteration()

	if !c.Sync {
		used := types.AppendMissing(c.UsedVars, types.FilterNulls([]*types.Var{c.Member, c.Count})...)
		if _, err := l.sched.startAsync(name+":body", nil, used, keep, true, types.Arg{}); err != nil {
			return err
		}
	}

	if err := l.block(c.Body); err != nil {
		return err
	}

	if !c.Sync {
		if err := l.sched.endAsync(keep); err != nil {
			return err
		}
	}

	l.sched.leaveIteration()
	l.out.EndForeach()

	if c.SplitDegree > 0 {
		if err := l.endRangeSplit(); err != nil {
			return err
		}
	}

	if !c.ArrayClosed {
		return l.sched.endAsync(keep)
	}

	return nil
}

func (l *Lowerer) rangeLoop(c *mir.RangeLoop) error {
	lv := c.LoopVar
	if !isLocalInt(types.VarArg(lv)) {
		return ferrors.TypeMismatch("range", lv.Name(), "local int", lv.Type().Describe())
	}

	for _, a := range []types.Arg{c.Start, c.End, c.Step} {
		if !isLocalInt(a) {
			return ferrors.TypeMismatch("range", argName(a), "local int", argDescribe(a))
		}
	}

	if c.Step.IsImmediateInt() && c.Step.IntLit() <= 0 {
		return ferrors.NotSupported("range", fmt.Sprintf("non-positive step %d", c.Step.IntLit()))
	}

	name := c.Name
	if name == "" {
		name = "range"
	}

	keep := c.KeepOpen
	outer := types.Remove(types.CloneVars(c.UsedVars), lv)

	l.comment("range loop %s: %s = %s to %s by %s", name, lv.Name(), c.Start, c.End, c.Step)

	start, end, step := c.Start, c.End, c.Step

	if c.SplitDegree > 0 {
		lo, hi, inc, err := l.startRangeSplit(name, outer, keep, c.SplitDegree, start, end, step)
		if err != nil {
			return err
		}

		start, end, step = types.VarArg(lo), types.VarArg(hi), types.VarArg(inc)
	}

	l.out.StartForRange(lv, start, end, step)
	l.sched.enterIteration()

	if !c.Sync {
		used := types.AppendMissing(c.UsedVars, lv)
		if _, err := l.sched.startAsync(name+":body", nil, used, keep, true, types.Arg{}); err != nil {
			return err
		}
	}

	if err := l.block(c.Body); err != nil {
		return err
	}

	if !c.Sync {
		if err := l.sched.endAsync(keep); err != nil {
			return err
		}
	}

	l.sched.leaveIteration()
	l.out.EndForRange()

	if c.SplitDegree > 0 {
		return l.endRangeSplit()
	}

	return nil
}

func (l *Lowerer) loop(c *mir.Loop) error {
	name := c.Name
	if name == "" {
		name = "loop"
	}

	l.comment("loop %s over [%s]", name, varList(c.LoopVars))

	proc, err := l.sched.startLoop(name, c.LoopVars, c.InitVals, c.Blocking, c.UsedVars, c.KeepOpen)
	if err != nil {
		return err
	}

	if err := l.block(c.Body); err != nil {
		return err
	}

	return l.sched.endLoop(proc)
}

func varList(vars []*types.Var) string { return strings.Join(types.NameList(vars), ", ") }
