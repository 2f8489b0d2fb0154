package codegen

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/flowc/internal/backend"
	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/types"
)

// scheduler emits the rule and slot protocol shared by every async
// construct. It needs only the RuleEmitter subset of a backend.
type scheduler struct {
	out backend.RuleEmitter
	ctx *Context
}

func newScheduler(out backend.RuleEmitter, ctx *Context) *scheduler {
	return &scheduler{out: out, ctx: ctx}
}

// captureSet returns used followed by the keepOpen vars not already in
// used. Global constants are visible everywhere and are never captured.
func captureSet(used, keepOpen []*types.Var) []*types.Var {
	all := types.AppendMissing(used, keepOpen...)
	out := all[:0]

	for _, v := range all {
		if !v.IsGlobalConst() {
			out = append(out, v)
		}
	}

	return out
}

// checkCaptures verifies every var can be handed to a deferred procedure:
// datums pass by id and local scalars by value.
func checkCaptures(construct string, vars []*types.Var) error {
	for _, v := range vars {
		t := v.Type()

		switch {
		case types.IsScalarFuture(t), types.IsRef(t), types.IsArray(t),
			types.IsStruct(t), types.IsScalarUpdateable(t):
			continue
		case types.IsScalarValue(t):
			switch t.Prim {
			case types.PrimInt, types.PrimBool, types.PrimFloat, types.PrimString:
				continue
			}
		}

		return ferrors.NotSupported(construct,
			fmt.Sprintf("passing %s of type %s to an async procedure", v.Name(), t.Describe()))
	}

	return nil
}

// isBlocking reports whether a reader of v must wait for it.
func isBlocking(v *types.Var) bool {
	t := v.Type()
	return types.IsScalarFuture(t) || types.IsRef(t) || types.IsArray(t)
}

// startAsync opens a deferred procedure that runs once every waitVar is
// written. Kept-open containers get a slot before the rule exists so they
// cannot close while it is pending. It returns the procedure name.
func (s *scheduler) startAsync(name string, waitVars, used, keepOpen []*types.Var,
	shareWork bool, priority types.Arg,
) (string, error) {
	capture := captureSet(used, keepOpen)
	if err := checkCaptures(name, capture); err != nil {
		return "", err
	}

	for _, v := range keepOpen {
		s.out.SlotCreate(v)
	}

	proc := s.ctx.unique(name)

	s.out.RegisterRule(backend.Rule{
		Name:      proc,
		Inputs:    types.CloneVars(waitVars),
		Args:      types.VarArgs(capture),
		Priority:  priority,
		ShareWork: shareWork,
	})
	s.out.StartProc(proc, capture)

	s.ctx.asyncs = append(s.ctx.asyncs, asyncFrame{name: proc, keepOpen: types.CloneVars(keepOpen)})
	s.ctx.log.Debug("async procedure", "rule", proc, "inputs", len(waitVars), "captures", len(capture))

	return proc, nil
}

// endAsync closes the innermost procedure opened by startAsync. keepOpen
// must name the same containers as the matching startAsync.
func (s *scheduler) endAsync(keepOpen []*types.Var) error {
	n := len(s.ctx.asyncs)
	if n == 0 {
		return ferrors.Internal("async", "end without matching start")
	}

	frame := s.ctx.asyncs[n-1]
	s.ctx.asyncs = s.ctx.asyncs[:n-1]

	if !sameVars(frame.keepOpen, keepOpen) {
		return ferrors.UnbalancedSlots(frame.name, types.NameList(frame.keepOpen), types.NameList(keepOpen))
	}

	for _, v := range keepOpen {
		s.out.SlotDrop(v)
	}

	s.out.EndProc()

	return nil
}

func sameVars(a, b []*types.Var) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if !types.Same(a[i], b[i]) {
			return false
		}
	}

	return true
}

// blockingInputs returns the vars among vals flagged in blocking that a
// rule has to wait for. A flag on an immediate or a local value is
// ignored, since it is already available. Each var is waited on once.
func blockingInputs(vals []types.Arg, blocking []bool) []*types.Var {
	var in []*types.Var

	for i, a := range vals {
		if blocking[i] && a.IsVar() && isBlocking(a.Var()) {
			in = append(in, a.Var())
		}
	}

	return types.RemoveDuplicates(in)
}

// startLoop registers the first iteration of a tail-recursive loop and
// opens its procedure. The procedure takes the loop variables followed by
// the used and kept-open vars, which every iteration passes on unchanged.
func (s *scheduler) startLoop(name string, loopVars []*types.Var, initVals []types.Arg,
	blocking []bool, used, keepOpen []*types.Var,
) (string, error) {
	if len(initVals) != len(loopVars) {
		return "", ferrors.ArityMismatch(name, "initial values", len(loopVars), len(initVals))
	}

	if len(blocking) != len(loopVars) {
		return "", ferrors.ArityMismatch(name, "blocking flags", len(loopVars), len(blocking))
	}

	params := types.AppendMissing(loopVars, captureSet(used, keepOpen)...)
	if len(params) < len(loopVars) || !sameVars(params[:len(loopVars)], loopVars) {
		return "", ferrors.Internal(name, "duplicate loop variable in [%s]", strings.Join(types.NameList(loopVars), ", "))
	}

	if err := checkCaptures(name, params); err != nil {
		return "", err
	}

	extra := types.CloneVars(params[len(loopVars):])

	for i, v := range loopVars {
		if err := checkBinding(name, i, v, initVals[i]); err != nil {
			return "", err
		}
	}

	for _, v := range keepOpen {
		s.out.SlotCreate(v)
	}

	proc := s.ctx.unique(name)

	s.out.RegisterRule(backend.Rule{
		Name:   proc,
		Inputs: blockingInputs(initVals, blocking),
		Args:   append(types.CloneArgs(initVals), types.VarArgs(extra)...),
	})
	s.out.StartProc(proc, params)

	s.ctx.loops = append(s.ctx.loops, &loopFrame{
		name:     proc,
		loopVars: types.CloneVars(loopVars),
		extra:    extra,
		keepOpen: types.CloneVars(keepOpen),
	})
	s.ctx.log.Debug("loop procedure", "rule", proc, "loop_vars", len(loopVars), "captures", len(extra))

	return proc, nil
}

// checkBinding verifies val can bind the loop variable v.
func checkBinding(construct string, pos int, v *types.Var, val types.Arg) error {
	if val.IsNone() {
		return ferrors.NilArg(construct, pos)
	}

	t := val.Type()
	if val.IsImmediate() && !types.IsScalarValue(v.Type()) {
		return ferrors.TypeMismatch(construct, v.Name(), v.Type().Describe(), "immediate "+t.Describe())
	}

	if !t.Equal(v.Type()) {
		return ferrors.TypeMismatch(construct, v.Name(), v.Type().Describe(), t.Describe())
	}

	return nil
}

// frame returns the innermost loop frame a continue or break refers to.
func (s *scheduler) frame(construct string) (*loopFrame, error) {
	if len(s.ctx.loops) == 0 {
		return nil, ferrors.Internal(construct, "not inside a loop")
	}

	f := s.ctx.currentLoop()
	if f == nil {
		return nil, ferrors.NotSupported(construct, "loop control inside a foreach or range loop body")
	}

	return f, nil
}

// loopContinue re-registers the current loop's rule with new values for
// the loop variables.
func (s *scheduler) loopContinue(newVals []types.Arg, blocking []bool) error {
	f, err := s.frame("loop_continue")
	if err != nil {
		return err
	}

	if len(newVals) != len(f.loopVars) {
		return ferrors.ArityMismatch(f.name, "continue values", len(f.loopVars), len(newVals))
	}

	if len(blocking) != len(f.loopVars) {
		return ferrors.ArityMismatch(f.name, "continue blocking flags", len(f.loopVars), len(blocking))
	}

	for i, v := range f.loopVars {
		if err := checkBinding(f.name, i, v, newVals[i]); err != nil {
			return err
		}
	}

	s.out.RegisterRule(backend.Rule{
		Name:   f.name,
		Inputs: blockingInputs(newVals, blocking),
		Args:   append(types.CloneArgs(newVals), types.VarArgs(f.extra)...),
	})

	return nil
}

// loopBreak releases the slots the loop holds on its kept-open containers.
func (s *scheduler) loopBreak() error {
	f, err := s.frame("loop_break")
	if err != nil {
		return err
	}

	for _, v := range f.keepOpen {
		s.out.SlotDrop(v)
	}

	return nil
}

// endLoop closes the loop procedure opened by startLoop.
func (s *scheduler) endLoop(name string) error {
	f := s.ctx.currentLoop()
	if f == nil || f.name != name {
		return ferrors.Internal(name, "loop end does not match the innermost loop")
	}

	s.ctx.loops = s.ctx.loops[:len(s.ctx.loops)-1]
	s.out.EndProc()

	return nil
}

// enterIteration hides the enclosing loops from loop control until
// leaveIteration; a foreach or range body cannot continue an outer loop.
func (s *scheduler) enterIteration() { s.ctx.loops = append(s.ctx.loops, nil) }

func (s *scheduler) leaveIteration() { s.ctx.loops = s.ctx.loops[:len(s.ctx.loops)-1] }
