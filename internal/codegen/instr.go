package codegen

import (
	"fmt"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/mir"
	"github.com/orizon-lang/flowc/internal/types"
)

func (l *Lowerer) instruction(in mir.Instruction) error {
	switch in := in.(type) {
	case *mir.Comment:
		l.out.Comment(in.Text)
	case *mir.Assign:
		return l.assign(in)
	case *mir.Retrieve:
		return l.retrieve(in)
	case *mir.Dereference:
		return l.dereference(in)
	case *mir.StoreRef:
		if !types.IsRefTo(in.Dst.Type(), in.Src.Type()) {
			return ferrors.TypeMismatch("store_ref", in.Dst.Name(), "&"+in.Src.Type().String(), in.Dst.Type().Describe())
		}

		l.out.AssignRef(in.Dst, in.Src)
	case *mir.MakeAlias:
		if !in.Dst.Type().Equal(in.Src.Type()) {
			return ferrors.TypeMismatch("alias", in.Dst.Name(), in.Src.Type().Describe(), in.Dst.Type().Describe())
		}

		l.out.MakeAlias(in.Dst, in.Src)
	case *mir.ArrayLookup:
		return l.arrayLookup(in)
	case *mir.ArrayInsert:
		return l.arrayInsert(in)
	case *mir.ArrayCreateNested:
		return l.arrayCreateNested(in)
	case *mir.StructLookup:
		return l.structLookup(in)
	case *mir.StructInsert:
		return l.structInsert(in)
	case *mir.CloseContainer:
		if !types.HasWriteRefcount(in.Container) {
			return ferrors.TypeMismatch("close", in.Container.Name(), "array", in.Container.Type().Describe())
		}

		l.out.SlotDrop(in.Container)
	case *mir.InitUpdateable:
		return l.initUpdateable(in)
	case *mir.LatestValue:
		return l.latestValue(in)
	case *mir.Update:
		return l.update(in)
	case *mir.LocalOp:
		return l.localOp(in)
	case *mir.AsyncOp:
		return l.asyncOp(in)
	case *mir.CallFunction:
		return l.call(in)
	case *mir.LoopContinue:
		return l.sched.loopContinue(in.NewVals, in.Blocking)
	case *mir.LoopBreak:
		return l.sched.loopBreak()
	default:
		return ferrors.Internal("instruction", "unknown instruction %T", in)
	}

	return nil
}

// isLocal reports whether a is an immediate or a local value of prim.
func isLocal(a types.Arg, prim types.PrimType) bool {
	t := a.Type()
	return t != nil && types.IsScalarValue(t) && t.Prim == prim
}

// isIndex reports whether a can index an array: an int known now or an
// int future.
func isIndex(a types.Arg) bool {
	if isLocalInt(a) {
		return true
	}

	return a.IsVar() && types.IsScalarFuture(a.Var().Type()) && a.Var().Type().Prim == types.PrimInt
}

func copyOp(p types.PrimType) (types.Opcode, bool) {
	switch p {
	case types.PrimInt:
		return types.OpCopyInt, true
	case types.PrimFloat:
		return types.OpCopyFloat, true
	case types.PrimBool:
		return types.OpCopyBool, true
	case types.PrimString:
		return types.OpCopyString, true
	default:
		return types.OpInvalid, false
	}
}

// assign writes into a future, or copies into a local value.
func (l *Lowerer) assign(in *mir.Assign) error {
	dt := in.Dst.Type()
	if !types.IsScalarFuture(dt) && !types.IsScalarValue(dt) {
		return ferrors.TypeMismatch("assign", in.Dst.Name(), "scalar future or value", dt.Describe())
	}

	if in.Src.IsNone() {
		return ferrors.NilArg("assign", 0)
	}

	if !isLocal(in.Src, dt.Prim) {
		return ferrors.TypeMismatch("assign", argName(in.Src), "local "+dt.Prim.String(), argDescribe(in.Src))
	}

	if types.IsScalarFuture(dt) {
		l.out.Assign(in.Dst, in.Src)

		return nil
	}

	op, ok := copyOp(dt.Prim)
	if !ok {
		return ferrors.NotSupported("assign", "local copy of "+dt.Describe())
	}

	l.out.LocalOp(op, in.Dst, []types.Arg{in.Src})

	return nil
}

func (l *Lowerer) retrieve(in *mir.Retrieve) error {
	st := in.Src.Type()
	if !types.IsScalarFuture(st) {
		return ferrors.TypeMismatch("retrieve", in.Src.Name(), "scalar future", st.Describe())
	}

	if !in.Dst.Type().Equal(types.Value(st.Prim)) {
		return ferrors.TypeMismatch("retrieve", in.Dst.Name(), types.Value(st.Prim).Describe(), in.Dst.Type().Describe())
	}

	l.out.Retrieve(in.Dst, in.Src)

	return nil
}

func (l *Lowerer) dereference(in *mir.Dereference) error {
	st := in.Src.Type()
	if !types.IsRef(st) {
		return ferrors.TypeMismatch("deref", in.Src.Name(), "reference", st.Describe())
	}

	if !types.IsScalarFuture(st.Member) {
		return ferrors.NotSupported("deref", "dereference of "+st.Describe())
	}

	if !in.Dst.Type().Equal(st.Member) {
		return ferrors.TypeMismatch("deref", in.Dst.Name(), st.Member.Describe(), in.Dst.Type().Describe())
	}

	l.out.Dereference(in.Dst, in.Src)

	return nil
}

// arrayLookup picks the immediate variant when the index is known and the
// array is held directly, and the reference variant otherwise.
func (l *Lowerer) arrayLookup(in *mir.ArrayLookup) error {
	at := in.Array.Type()
	isRef := types.IsArrayRef(at)

	if !types.IsArray(at) && !isRef {
		return ferrors.TypeMismatch("array_lookup", in.Array.Name(), "array or array reference", at.Describe())
	}

	member := types.ArrayMemberType(at)
	if !types.IsRefTo(in.Dst.Type(), member) {
		return ferrors.TypeMismatch("array_lookup", in.Dst.Name(), types.RefTo(member).Describe(), in.Dst.Type().Describe())
	}

	if !isIndex(in.Index) {
		return ferrors.TypeMismatch("array_lookup", argName(in.Index), "int index", argDescribe(in.Index))
	}

	if !isRef && isLocalInt(in.Index) {
		l.out.ArrayLookupImm(in.Dst, in.Array, in.Index)
	} else {
		l.out.ArrayLookupRef(in.Dst, in.Array, in.Index, isRef)
	}

	return nil
}

func (l *Lowerer) arrayInsert(in *mir.ArrayInsert) error {
	at := in.Array.Type()
	member := types.ArrayMemberType(at)

	if member == nil {
		return ferrors.TypeMismatch("array_insert", in.Array.Name(), "array or array reference", at.Describe())
	}

	if !in.Member.Type().Equal(member) {
		return ferrors.TypeMismatch("array_insert", in.Member.Name(), member.Describe(), in.Member.Type().Describe())
	}

	if !isIndex(in.Index) {
		return ferrors.TypeMismatch("array_insert", argName(in.Index), "int index", argDescribe(in.Index))
	}

	if types.IsArray(at) {
		if in.Outer != nil {
			return ferrors.Internal("array_insert", "outer container %s given for plain array %s",
				in.Outer.Name(), in.Array.Name())
		}

		l.out.ArrayInsert(in.Array, in.Index, in.Member)

		return nil
	}

	if in.Outer == nil || !types.HasWriteRefcount(in.Outer) {
		return ferrors.Internal("array_insert", "insert through reference %s needs an outer array", in.Array.Name())
	}

	l.out.ArrayRefInsert(in.Array, in.Index, in.Member, in.Outer)

	return nil
}

func (l *Lowerer) arrayCreateNested(in *mir.ArrayCreateNested) error {
	at := in.Array.Type()
	if !types.IsArray(at) || !types.IsArray(at.Member) {
		return ferrors.TypeMismatch("array_create_nested", in.Array.Name(), "array of arrays", at.Describe())
	}

	if !types.IsRefTo(in.Dst.Type(), at.Member) {
		return ferrors.TypeMismatch("array_create_nested", in.Dst.Name(),
			types.RefTo(at.Member).Describe(), in.Dst.Type().Describe())
	}

	if !isLocalInt(in.Index) {
		if isIndex(in.Index) {
			return ferrors.NotSupported("array_create_nested", "nested array creation with a future index")
		}

		return ferrors.TypeMismatch("array_create_nested", argName(in.Index), "int index", argDescribe(in.Index))
	}

	l.out.ArrayCreateNested(in.Dst, in.Array, in.Index)

	return nil
}

func (l *Lowerer) structLookup(in *mir.StructLookup) error {
	st := in.Struct.Type()
	isRef := types.IsStructRef(st)

	if !types.IsStruct(st) && !isRef {
		return ferrors.TypeMismatch("struct_lookup", in.Struct.Name(), "struct or struct reference", st.Describe())
	}

	target := st
	if isRef {
		target = st.Member
	}

	ft, ok := target.FieldType(in.Field)
	if !ok {
		return ferrors.TypeMismatch("struct_lookup", in.Struct.Name(), "field "+in.Field, target.Describe())
	}

	want := ft
	if isRef {
		want = types.RefTo(ft)
	}

	if !in.Dst.Type().Equal(want) {
		return ferrors.TypeMismatch("struct_lookup", in.Dst.Name(), want.Describe(), in.Dst.Type().Describe())
	}

	l.out.StructLookup(in.Dst, in.Struct, in.Field, isRef)

	return nil
}

func (l *Lowerer) structInsert(in *mir.StructInsert) error {
	st := in.Struct.Type()
	if !types.IsStruct(st) {
		return ferrors.TypeMismatch("struct_insert", in.Struct.Name(), "struct", st.Describe())
	}

	ft, ok := st.FieldType(in.Field)
	if !ok {
		return ferrors.TypeMismatch("struct_insert", in.Struct.Name(), "field "+in.Field, st.Describe())
	}

	if !in.Val.Type().Equal(ft) {
		return ferrors.TypeMismatch("struct_insert", in.Val.Name(), ft.Describe(), in.Val.Type().Describe())
	}

	l.out.StructInsert(in.Struct, in.Field, in.Val)

	return nil
}

// checkUpdateable verifies v is an updateable with a lowering; only
// float updateables have one.
func checkUpdateable(construct string, v *types.Var) error {
	t := v.Type()
	if !types.IsScalarUpdateable(t) {
		return ferrors.TypeMismatch(construct, v.Name(), "updateable", t.Describe())
	}

	if t.Prim != types.PrimFloat {
		return ferrors.NotSupported(construct, "updateable of type "+t.Describe())
	}

	return nil
}

func (l *Lowerer) initUpdateable(in *mir.InitUpdateable) error {
	if err := checkUpdateable("init_updateable", in.Target); err != nil {
		return err
	}

	if !isLocal(in.Val, types.PrimFloat) {
		return ferrors.TypeMismatch("init_updateable", argName(in.Val), "local float", argDescribe(in.Val))
	}

	l.out.InitUpdateable(in.Target, in.Val)

	return nil
}

func (l *Lowerer) latestValue(in *mir.LatestValue) error {
	if err := checkUpdateable("latest_value", in.Src); err != nil {
		return err
	}

	if !in.Dst.Type().Equal(types.ValueFloat) {
		return ferrors.TypeMismatch("latest_value", in.Dst.Name(), types.ValueFloat.Describe(), in.Dst.Type().Describe())
	}

	l.out.LatestValue(in.Dst, in.Src)

	return nil
}

func (l *Lowerer) update(in *mir.Update) error {
	if err := checkUpdateable("update", in.Target); err != nil {
		return err
	}

	ok := isLocal(in.Val, types.PrimFloat) ||
		(in.Val.IsVar() && in.Val.Var().Type().Equal(types.FutureFloat))
	if !ok {
		return ferrors.TypeMismatch("update", argName(in.Val), "float", argDescribe(in.Val))
	}

	l.out.Update(in.Target, in.Mode, in.Val)

	return nil
}

// checkOp verifies the operand count of op and the type of its result.
func checkOp(construct string, op types.Opcode, dst *types.Var, args []types.Arg, want types.Kind) error {
	if op == types.OpInvalid {
		return ferrors.Internal(construct, "invalid opcode")
	}

	if n := op.Arity(); n >= 0 && len(args) != n {
		return ferrors.ArityMismatch(construct+" "+op.String(), "arguments", n, len(args))
	}

	for i, a := range args {
		if a.IsNone() {
			return ferrors.NilArg(construct+" "+op.String(), i)
		}
	}

	if !op.HasOutput() {
		if dst != nil {
			return ferrors.Internal(construct, "%s produces no value but writes %s", op, dst.Name())
		}

		return nil
	}

	if dst == nil {
		return ferrors.Internal(construct, "%s result is discarded", op)
	}

	t := dst.Type()
	if t.Kind != want || t.Prim != op.ResultPrim() {
		exp := &types.Type{Kind: want, Prim: op.ResultPrim()}
		return ferrors.TypeMismatch(construct+" "+op.String(), dst.Name(), exp.Describe(), t.Describe())
	}

	return nil
}

func (l *Lowerer) localOp(in *mir.LocalOp) error {
	if err := checkOp("local_op", in.Op, in.Dst, in.Args, types.KindValue); err != nil {
		return err
	}

	for _, a := range in.Args {
		if a.IsVar() && !types.IsScalarValue(a.Var().Type()) {
			return ferrors.TypeMismatch("local_op "+in.Op.String(), a.Var().Name(), "local value", a.Var().Type().Describe())
		}
	}

	l.out.LocalOp(in.Op, in.Dst, in.Args)

	return nil
}

func (l *Lowerer) asyncOp(in *mir.AsyncOp) error {
	if err := checkOp("async_op", in.Op, in.Dst, in.Args, types.KindFuture); err != nil {
		return err
	}

	for _, a := range in.Args {
		if a.IsVar() && !types.IsScalarFuture(a.Var().Type()) && !types.IsScalarValue(a.Var().Type()) {
			return ferrors.TypeMismatch("async_op "+in.Op.String(), a.Var().Name(), "scalar", a.Var().Type().Describe())
		}
	}

	if !in.Priority.IsNone() && !isLocalInt(in.Priority) {
		return ferrors.TypeMismatch("async_op", argName(in.Priority), "local int", argDescribe(in.Priority))
	}

	l.out.AsyncOp(in.Op, in.Dst, in.Args, in.Priority)

	return nil
}

// checkCallArgs matches call operands against a signature.
func checkCallArgs(name, what string, vars []*types.Var, args []types.Arg, params []*types.Type) error {
	n := len(vars) + len(args)
	if n != len(params) {
		return ferrors.ArityMismatch("call "+name, what, len(params), n)
	}

	for i, v := range vars {
		if !v.Type().Equal(params[i]) {
			return ferrors.TypeMismatch("call "+name, v.Name(), params[i].Describe(), v.Type().Describe())
		}
	}

	for i, a := range args {
		p := params[i]

		if a.IsNone() {
			return ferrors.NilArg("call "+name, i)
		}

		if a.IsVar() {
			if !a.Var().Type().Equal(p) {
				return ferrors.TypeMismatch("call "+name, a.Var().Name(), p.Describe(), a.Var().Type().Describe())
			}

			continue
		}

		scalar := types.IsScalarValue(p) || types.IsScalarFuture(p)
		if !scalar || a.Type().Prim != p.Prim {
			return ferrors.TypeMismatch("call "+name, fmt.Sprintf("argument %d", i), p.Describe(), argDescribe(a))
		}
	}

	return nil
}

func typesOf(vars []*types.Var) []*types.Type {
	out := make([]*types.Type, len(vars))
	for i, v := range vars {
		out[i] = v.Type()
	}

	return out
}

// call lowers a function call. The caller holds a slot on every array
// output for the callee, which releases it when its body completes.
func (l *Lowerer) call(in *mir.CallFunction) error {
	if f, ok := l.prog.Function(in.Name); ok {
		if err := checkCallArgs(in.Name, "outputs", in.Outputs, nil, typesOf(f.Outputs)); err != nil {
			return err
		}

		if err := checkCallArgs(in.Name, "inputs", nil, in.Inputs, typesOf(f.Inputs)); err != nil {
			return err
		}
	} else if b, ok := GetBuiltinFunction(in.Name); ok {
		if err := checkCallArgs(in.Name, "outputs", in.Outputs, nil, b.Outputs); err != nil {
			return err
		}

		if !b.Variadic {
			if err := checkCallArgs(in.Name, "inputs", nil, in.Inputs, b.Inputs); err != nil {
				return err
			}
		}
	} else {
		return ferrors.Internal("call", "unknown function %q", in.Name)
	}

	if !in.Priority.IsNone() && !isLocalInt(in.Priority) {
		return ferrors.TypeMismatch("call "+in.Name, argName(in.Priority), "local int", argDescribe(in.Priority))
	}

	blockOn := in.Blocking
	if blockOn == nil {
		blockOn = types.FilterBlockingOnly(types.ExtractVars(in.Inputs))
	}

	blockOn = types.RemoveDuplicates(types.CloneVars(blockOn))

	for _, v := range types.FilterWriteRefcount(in.Outputs) {
		l.out.SlotCreate(v)
	}

	l.out.CallFunction(in.Name, in.Outputs, in.Inputs, blockOn, in.Mode, in.Priority)

	return nil
}
