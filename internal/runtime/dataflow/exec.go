package dataflow

import (
	"fmt"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/lir"
	"github.com/orizon-lang/flowc/internal/types"
)

// frame holds the bindings of one procedure invocation. A binding is a
// local value (int64, float64, bool, string) or a *datum.
type frame struct {
	proc string
	vars map[string]any
}

func (s *Simulator) lookup(f *frame, v *types.Var) (any, error) {
	if x, ok := f.vars[v.Name()]; ok {
		return x, nil
	}

	if x, ok := s.globals[v.Name()]; ok {
		return x, nil
	}

	return nil, ferrors.Runtime("UNBOUND_VAR", "%s: %s is not bound", f.proc, v.Name())
}

func (s *Simulator) datumOf(f *frame, v *types.Var) (*datum, error) {
	x, err := s.lookup(f, v)
	if err != nil {
		return nil, err
	}

	d, ok := x.(*datum)
	if !ok {
		return nil, ferrors.Runtime("NOT_A_DATUM", "%s: %s holds a local value", f.proc, v.Name())
	}

	return d, nil
}

// refOf returns the reference datum bound to v, creating it for a
// reference that was declared as an alias.
func (s *Simulator) refOf(f *frame, v *types.Var) (*datum, error) {
	if _, ok := f.vars[v.Name()]; !ok {
		f.vars[v.Name()] = s.newDatum(v.Name(), v.Type())
	}

	return s.datumOf(f, v)
}

// arg resolves an operand to a local value or a datum.
func (s *Simulator) arg(f *frame, a types.Arg) (any, error) {
	switch {
	case a.IsNone():
		return nil, ferrors.Runtime("NIL_ARG", "%s: missing operand", f.proc)
	case a.IsVar():
		return s.lookup(f, a.Var())
	default:
		return literal(a), nil
	}
}

func (s *Simulator) args(f *frame, as []types.Arg) ([]any, error) {
	out := make([]any, len(as))

	for i, a := range as {
		x, err := s.arg(f, a)
		if err != nil {
			return nil, err
		}

		out[i] = x
	}

	return out, nil
}

// valueOf reads the local value behind a resolved operand; a future must
// already be set.
func valueOf(x any) (any, error) {
	d, ok := x.(*datum)
	if !ok {
		return x, nil
	}

	if d.typ.Kind != types.KindFuture {
		return nil, ferrors.Runtime("NOT_A_FUTURE", "value of %s of type %s", d, d.typ)
	}

	if !d.set {
		return nil, ferrors.Runtime("RETRIEVE_UNSET", "retrieve of unset future %s", d)
	}

	return d.val, nil
}

func valuesOf(xs []any) ([]any, error) {
	out := make([]any, len(xs))

	for i, x := range xs {
		v, err := valueOf(x)
		if err != nil {
			return nil, err
		}

		out[i] = v
	}

	return out, nil
}

// futuresOf returns the unset futures among resolved operands.
func futuresOf(xs []any) []*datum {
	var out []*datum

	for _, x := range xs {
		if d, ok := x.(*datum); ok && d.typ.Kind == types.KindFuture {
			out = append(out, d)
		}
	}

	return out
}

func (s *Simulator) value(f *frame, a types.Arg) (any, error) {
	x, err := s.arg(f, a)
	if err != nil {
		return nil, err
	}

	return valueOf(x)
}

func (s *Simulator) intValue(f *frame, a types.Arg) (int64, error) {
	v, err := s.value(f, a)
	if err != nil {
		return 0, err
	}

	return asInt(types.OpInvalid, v)
}

// index resolves an array index to a known int or an int future.
func (s *Simulator) index(f *frame, a types.Arg) (int64, *datum, error) {
	x, err := s.arg(f, a)
	if err != nil {
		return 0, nil, err
	}

	if d, ok := x.(*datum); ok {
		if d.set {
			i, err := asInt(types.OpInvalid, d.val)
			return i, nil, err
		}

		return 0, d, nil
	}

	i, err := asInt(types.OpInvalid, x)

	return i, nil, err
}

// datumFor returns x as a datum, wrapping a local value into a set future
// of type t.
func (s *Simulator) datumFor(name string, t *types.Type, x any) *datum {
	if d, ok := x.(*datum); ok {
		return d
	}

	return s.setDatum(name, types.Future(t.Prim), x)
}

// bind converts an argument for a parameter of type t.
func (s *Simulator) bind(p *types.Var, x any) (any, error) {
	t := p.Type()

	switch {
	case types.IsScalarValue(t):
		return valueOf(x)
	case types.IsScalarFuture(t):
		return s.datumFor(p.Name(), t, x), nil
	default:
		if _, ok := x.(*datum); !ok {
			return nil, ferrors.Runtime("NOT_A_DATUM", "parameter %s of type %s bound to a local value", p.Name(), t)
		}

		return x, nil
	}
}

// invoke runs proc to completion with args bound to its outputs and
// parameters in order.
func (s *Simulator) invoke(proc *lir.Proc, args []any) error {
	params := append(append([]*types.Var{}, proc.Outputs...), proc.Params...)
	if len(params) != len(args) {
		return ferrors.Runtime("ARITY", "%s: want %d arguments, got %d", proc.Name, len(params), len(args))
	}

	f := &frame{proc: proc.Name, vars: make(map[string]any, len(params))}

	for i, p := range params {
		x, err := s.bind(p, args[i])
		if err != nil {
			return ferrors.Wrapf(err, "call %s", proc.Name)
		}

		f.vars[p.Name()] = x
	}

	return s.exec(f, proc.Body)
}

func (s *Simulator) declare(f *frame, v *types.Var) {
	t := v.Type()
	if v.Storage() == types.StorageAlias || types.IsScalarValue(t) {
		return
	}

	d := s.newDatum(v.Name(), t)
	if t.Kind == types.KindArray {
		// The declaring scope holds the first writer slot.
		d.slots = 1
		s.arrays = append(s.arrays, d)
	}

	f.vars[v.Name()] = d
}

func (s *Simulator) exec(f *frame, body []lir.Insn) error {
	for _, in := range body {
		if err := s.step(f, in); err != nil {
			return err
		}

		if s.err != nil {
			return s.err
		}
	}

	return nil
}

func (s *Simulator) step(f *frame, in lir.Insn) error {
	switch in := in.(type) {
	case lir.Comment:
	case lir.Declare:
		s.declare(f, in.Var)
	case lir.GlobalConst:
		v := literal(in.Val)
		if types.IsScalarFuture(in.Var.Type()) {
			s.globals[in.Var.Name()] = s.setDatum(in.Var.Name(), in.Var.Type(), v)
		} else {
			s.globals[in.Var.Name()] = v
		}
	case lir.Assign:
		d, err := s.datumOf(f, in.Dst)
		if err != nil {
			return err
		}

		v, err := s.value(f, in.Src)
		if err != nil {
			return err
		}

		return s.setFuture(d, v)
	case lir.Retrieve:
		d, err := s.datumOf(f, in.Src)
		if err != nil {
			return err
		}

		v, err := valueOf(d)
		if err != nil {
			return err
		}

		f.vars[in.Dst.Name()] = v
	case lir.Deref:
		return s.deref(f, in)
	case lir.AssignRef:
		r, err := s.refOf(f, in.Dst)
		if err != nil {
			return err
		}

		d, err := s.datumOf(f, in.Src)
		if err != nil {
			return err
		}

		return s.bindRef(r, d)
	case lir.Alias:
		x, err := s.lookup(f, in.Src)
		if err != nil {
			return err
		}

		f.vars[in.Dst.Name()] = x
	case lir.SlotCreate:
		d, err := s.datumOf(f, in.Var)
		if err != nil {
			return err
		}

		return s.slotCreate(d)
	case lir.SlotDrop:
		d, err := s.datumOf(f, in.Var)
		if err != nil {
			return err
		}

		return s.slotDrop(d)
	case lir.ContainerSize:
		a, err := s.datumOf(f, in.Container)
		if err != nil {
			return err
		}

		if !a.closed {
			return ferrors.Runtime("OPEN_CONTAINER", "size of open array %s", a)
		}

		f.vars[in.Dst.Name()] = int64(len(a.members))
	case lir.ArrayLookup:
		return s.arrayLookup(f, in)
	case lir.ArrayInsert:
		return s.arrayInsert(f, in)
	case lir.ArrayCreateNested:
		return s.arrayCreateNested(f, in)
	case lir.StructLookup:
		return s.structLookup(f, in)
	case lir.StructInsert:
		return s.structInsert(f, in)
	case lir.InitUpdateable:
		d, err := s.datumOf(f, in.Var)
		if err != nil {
			return err
		}

		v, err := s.value(f, in.Val)
		if err != nil {
			return err
		}

		x, err := asFloat(types.OpInvalid, v)
		d.latest = x

		return err
	case lir.LatestValue:
		d, err := s.datumOf(f, in.Src)
		if err != nil {
			return err
		}

		f.vars[in.Dst.Name()] = d.latest
	case lir.Update:
		return s.updateInsn(f, in)
	case lir.LocalOp:
		vals, err := s.args(f, in.Args)
		if err != nil {
			return err
		}

		if vals, err = valuesOf(vals); err != nil {
			return err
		}

		if in.Code == types.OpTrace {
			s.trace(vals)
			return nil
		}

		res, err := evalOp(in.Code, vals)
		if err != nil {
			return err
		}

		f.vars[in.Dst.Name()] = res
	case lir.AsyncOp:
		return s.asyncOp(f, in)
	case lir.Call:
		return s.call(f, in)
	case lir.Rule:
		return s.registerRule(f, in)
	case lir.CallProc:
		proc, ok := s.procs[in.Name]
		if !ok {
			return ferrors.Runtime("UNKNOWN_PROC", "%s calls unknown procedure %s", f.proc, in.Name)
		}

		args, err := s.args(f, in.Args)
		if err != nil {
			return err
		}

		return s.invoke(proc, args)
	case *lir.If:
		c, err := s.value(f, in.Cond)
		if err != nil {
			return err
		}

		ok, err := truthy(c)
		if err != nil {
			return err
		}

		if ok {
			return s.exec(f, in.Then)
		}

		return s.exec(f, in.Else)
	case *lir.Switch:
		sel, err := s.intValue(f, in.Selector)
		if err != nil {
			return err
		}

		for i, l := range in.Labels {
			if l == sel {
				return s.exec(f, in.Cases[i])
			}
		}

		return s.exec(f, in.Default)
	case *lir.ForRange:
		return s.forRange(f, in)
	case *lir.Foreach:
		return s.foreach(f, in)
	case *lir.Block:
		return s.exec(f, in.Body)
	default:
		return ferrors.Runtime("UNKNOWN_INSN", "%s: cannot execute %s", f.proc, in.Op())
	}

	return nil
}

func (s *Simulator) deref(f *frame, in lir.Deref) error {
	r, err := s.datumOf(f, in.Src)
	if err != nil {
		return err
	}

	dst, err := s.datumOf(f, in.Dst)
	if err != nil {
		return err
	}

	s.whenReady(r, func() {
		s.whenReady(r.target, func() {
			s.check(s.setFuture(dst, r.target.val))
		})
	})

	return nil
}

func (s *Simulator) arrayLookup(f *frame, in lir.ArrayLookup) error {
	src, err := s.datumOf(f, in.Array)
	if err != nil {
		return err
	}

	dst, err := s.refOf(f, in.Dst)
	if err != nil {
		return err
	}

	idx, fut, err := s.index(f, in.Index)
	if err != nil {
		return err
	}

	var deps []*datum
	if in.ArrayIsRef {
		deps = append(deps, src)
	}

	if fut != nil {
		deps = append(deps, fut)
	}

	s.whenAll(deps, func() {
		a := src
		if in.ArrayIsRef {
			a = src.target
		}

		i := idx
		if fut != nil {
			i = fut.val.(int64)
		}

		s.whenMember(a, i, func(m *datum) {
			s.check(s.bindRef(dst, m))
		})
	})

	return nil
}

func (s *Simulator) arrayInsert(f *frame, in lir.ArrayInsert) error {
	x, err := s.lookup(f, in.Member)
	if err != nil {
		return err
	}

	m := s.datumFor(in.Member.Name(), in.Member.Type(), x)

	dst, err := s.datumOf(f, in.Array)
	if err != nil {
		return err
	}

	idx, fut, err := s.index(f, in.Index)
	if err != nil {
		return err
	}

	if !in.IsRef && fut == nil {
		return s.insert(dst, idx, m)
	}

	// The insert lands later; hold a slot so the container stays open.
	holder := dst
	if in.IsRef {
		if holder, err = s.datumOf(f, in.Outer); err != nil {
			return err
		}
	}

	if err := s.slotCreate(holder); err != nil {
		return err
	}

	var deps []*datum
	if in.IsRef {
		deps = append(deps, dst)
	}

	if fut != nil {
		deps = append(deps, fut)
	}

	s.whenAll(deps, func() {
		a := dst
		if in.IsRef {
			a = dst.target
		}

		i := idx
		if fut != nil {
			i = fut.val.(int64)
		}

		s.check(s.insert(a, i, m))
		s.check(s.slotDrop(holder))
	})

	return nil
}

func (s *Simulator) arrayCreateNested(f *frame, in lir.ArrayCreateNested) error {
	a, err := s.datumOf(f, in.Array)
	if err != nil {
		return err
	}

	dst, err := s.refOf(f, in.Dst)
	if err != nil {
		return err
	}

	idx, err := s.intValue(f, in.Index)
	if err != nil {
		return err
	}

	child, ok := a.members[idx]
	if !ok {
		child = s.newDatum(fmt.Sprintf("%s[%d]", a.name, idx), a.typ.Member)
		child.nested = true

		if err := s.insert(a, idx, child); err != nil {
			return err
		}
	} else if child.typ.Kind != types.KindArray {
		return ferrors.Runtime("NOT_A_CONTAINER", "%s[%d] is not an array", a, idx)
	}

	return s.bindRef(dst, child)
}

func (s *Simulator) structLookup(f *frame, in lir.StructLookup) error {
	if !in.IsRef {
		st, err := s.datumOf(f, in.Struct)
		if err != nil {
			return err
		}

		fd, ok := st.fields[in.Field]
		if !ok {
			return ferrors.Runtime("MISSING_FIELD", "%s has no field %s", st, in.Field)
		}

		f.vars[in.Dst.Name()] = fd

		return nil
	}

	r, err := s.datumOf(f, in.Struct)
	if err != nil {
		return err
	}

	dst, err := s.refOf(f, in.Dst)
	if err != nil {
		return err
	}

	s.whenReady(r, func() {
		fd, ok := r.target.fields[in.Field]
		if !ok {
			s.fail(ferrors.Runtime("MISSING_FIELD", "%s has no field %s", r.target, in.Field))
			return
		}

		s.check(s.bindRef(dst, fd))
	})

	return nil
}

// structInsert stores val in a field. A future field is written with the
// value of val once it is set; other fields are rebound.
func (s *Simulator) structInsert(f *frame, in lir.StructInsert) error {
	st, err := s.datumOf(f, in.Struct)
	if err != nil {
		return err
	}

	x, err := s.lookup(f, in.Val)
	if err != nil {
		return err
	}

	val := s.datumFor(in.Val.Name(), in.Val.Type(), x)

	cur, ok := st.fields[in.Field]
	if ok && cur.typ.Kind == types.KindFuture && val.typ.Kind == types.KindFuture {
		s.whenReady(val, func() {
			s.check(s.setFuture(cur, val.val))
		})

		return nil
	}

	st.fields[in.Field] = val

	return nil
}

func (s *Simulator) updateInsn(f *frame, in lir.Update) error {
	d, err := s.datumOf(f, in.Target)
	if err != nil {
		return err
	}

	x, err := s.arg(f, in.Val)
	if err != nil {
		return err
	}

	apply := func(v any) {
		fv, err := asFloat(types.OpInvalid, v)
		if err != nil {
			s.fail(err)
			return
		}

		s.check(s.update(d, in.Mode, fv))
	}

	if vd, ok := x.(*datum); ok {
		s.whenReady(vd, func() { apply(vd.val) })
		return nil
	}

	apply(x)

	return nil
}

// asyncOp evaluates op once every future operand is set. Local operands
// are read now.
func (s *Simulator) asyncOp(f *frame, in lir.AsyncOp) error {
	xs, err := s.args(f, in.Args)
	if err != nil {
		return err
	}

	var dst *datum
	if in.Dst != nil {
		if dst, err = s.datumOf(f, in.Dst); err != nil {
			return err
		}
	}

	s.whenAll(futuresOf(xs), func() {
		vals, err := valuesOf(xs)
		if err != nil {
			s.fail(err)
			return
		}

		if in.Code == types.OpTrace {
			s.trace(vals)
			return
		}

		res, err := evalOp(in.Code, vals)
		if err != nil {
			s.fail(err)
			return
		}

		s.check(s.setFuture(dst, res))
	})

	return nil
}

func (s *Simulator) forRange(f *frame, in *lir.ForRange) error {
	start, err := s.intValue(f, in.Start)
	if err != nil {
		return err
	}

	end, err := s.intValue(f, in.End)
	if err != nil {
		return err
	}

	step, err := s.intValue(f, in.Step)
	if err != nil {
		return err
	}

	if step <= 0 {
		return ferrors.Runtime("BAD_STEP", "%s: range %d..%d with step %d", f.proc, start, end, step)
	}

	for i := start; i <= end; i += step {
		f.vars[in.Var.Name()] = i

		if err := s.exec(f, in.Body); err != nil {
			return err
		}
	}

	return nil
}

func (s *Simulator) foreach(f *frame, in *lir.Foreach) error {
	a, err := s.datumOf(f, in.Array)
	if err != nil {
		return err
	}

	if !a.closed {
		return ferrors.Runtime("OPEN_CONTAINER", "foreach over open array %s", a)
	}

	keys := a.keys()
	lo, hi := int64(0), int64(len(keys)-1)

	if in.Window != nil {
		if lo, err = s.intValue(f, in.Window.Lo); err != nil {
			return err
		}

		if hi, err = s.intValue(f, in.Window.Hi); err != nil {
			return err
		}

		lo, hi = max(lo, 0), min(hi, int64(len(keys)-1))
	}

	for pos := lo; pos <= hi; pos++ {
		k := keys[pos]
		f.vars[in.Member.Name()] = a.members[k]

		if in.Count != nil {
			f.vars[in.Count.Name()] = k
		}

		if err := s.exec(f, in.Body); err != nil {
			return err
		}
	}

	return nil
}
