package codegen

import (
	"github.com/orizon-lang/flowc/internal/backend"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/types"
)

// startRangeSplit emits the recursive splitting of the inclusive range
// [start, end] by step and leaves the base-case procedure open. The caller
// emits the per-chunk loop inside it using the returned bounds and closes
// it with endRangeSplit.
//
// The outer procedure performs one rangesplit.Step: a range of at most
// degree iterations calls the inner procedure directly, a larger one
// re-registers the outer procedure once per chunk so that no worker
// recurses more than one level.
func (l *Lowerer) startRangeSplit(loop string, used, keepOpen []*types.Var, degree int,
	start, end, step types.Arg,
) (lo, hi, inc *types.Var, err error) {
	// A degree of 1 re-registers the whole range forever.
	if degree < 2 {
		return nil, nil, nil, ferrors.Internal(loop, "split degree must be at least 2, got %d", degree)
	}

	captured := captureSet(used, keepOpen)
	if err := checkCaptures(loop, captured); err != nil {
		return nil, nil, nil, err
	}

	n := l.ctx.next("split")
	lo = temp("lo", n, types.ValueInt)
	hi = temp("hi", n, types.ValueInt)
	inc = temp("inc", n, types.ValueInt)

	outer := l.ctx.unique(loop + ":outer")
	inner := l.ctx.unique(loop + ":inner")

	params := append(types.CloneVars(captured), lo, hi, inc)
	args := append(types.VarArgs(captured), start, end, step)

	for _, v := range keepOpen {
		l.out.SlotCreate(v)
	}

	l.out.CallProc(outer, args)

	l.out.StartProc(outer, params)
	l.splitStep(n, outer, inner, captured, keepOpen, degree, lo, hi, inc)

	for _, v := range keepOpen {
		l.out.SlotDrop(v)
	}

	l.out.EndProc()

	l.out.StartProc(inner, params)
	l.splits = append(l.splits, inner)
	l.ctx.log.Debug("range split", "loop", loop, "outer", outer, "inner", inner, "degree", degree)

	return lo, hi, inc, nil
}

// splitStep emits the body of the outer procedure.
func (l *Lowerer) splitStep(n int, outer, inner string, captured, keepOpen []*types.Var,
	degree int, lo, hi, inc *types.Var,
) {
	local := func(name string, op types.Opcode, args ...types.Arg) *types.Var {
		t := types.Value(op.ResultPrim())
		v := temp(name, n, t)
		l.out.Declare(v)
		l.out.LocalOp(op, v, args)

		return v
	}

	one := types.IntArg(1)
	d := types.IntArg(int64(degree))

	span := local("span", types.OpMinusInt, types.VarArg(hi), types.VarArg(lo))
	quot := local("quot", types.OpDivInt, types.VarArg(span), types.VarArg(inc))
	iters := local("iters", types.OpPlusInt, types.VarArg(quot), one)
	done := local("done", types.OpLteInt, types.VarArg(iters), d)

	l.out.StartIf(types.VarArg(done), true)
	l.out.CallProc(inner, types.VarArgs(append(types.CloneVars(captured), lo, hi, inc)))
	l.out.StartElse()

	// stride = max(degree, ceil(iters / degree)) * inc
	rest := local("rest", types.OpMinusInt, types.VarArg(iters), one)
	per := local("per", types.OpDivInt, types.VarArg(rest), d)
	chunks := local("chunks", types.OpPlusInt, types.VarArg(per), one)
	skip := local("skip", types.OpMaxInt, d, types.VarArg(chunks))
	stride := local("stride", types.OpMultInt, types.VarArg(skip), types.VarArg(inc))
	width := local("width", types.OpMinusInt, types.VarArg(stride), one)

	first := temp("first", n, types.ValueInt)
	l.out.StartForRange(first, types.VarArg(lo), types.VarArg(hi), types.VarArg(stride))

	reach := local("reach", types.OpPlusInt, types.VarArg(first), types.VarArg(width))
	last := local("last", types.OpMinInt, types.VarArg(hi), types.VarArg(reach))

	for _, v := range keepOpen {
		l.out.SlotCreate(v)
	}

	l.out.RegisterRule(backend.Rule{
		Name:      outer,
		Args:      append(types.VarArgs(captured), types.VarArg(first), types.VarArg(last), types.VarArg(inc)),
		ShareWork: true,
	})

	l.out.EndForRange()
	l.out.EndIf()
}

// endRangeSplit closes the inner procedure of the innermost split.
func (l *Lowerer) endRangeSplit() error {
	if len(l.splits) == 0 {
		return ferrors.Internal("range split", "end without matching start")
	}

	l.splits = l.splits[:len(l.splits)-1]
	l.out.EndProc()

	return nil
}
