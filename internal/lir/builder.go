package lir

import (
	"github.com/orizon-lang/flowc/internal/backend"
	"github.com/orizon-lang/flowc/internal/types"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// ConstantsProc is the name of the procedure that binds global constants.
const ConstantsProc = "flowc:constants"

// scope is an open structured instruction. point is where instructions
// are appended; it is nil for a switch between cases.
type scope struct {
	owner Insn
	point *[]Insn
}

// frame is an open procedure with its scope stack.
type frame struct {
	proc   *Proc
	scopes []scope
}

// Builder assembles a Program through the backend.Backend interface. The
// first contract violation is recorded and reported by Finish.
type Builder struct {
	prog   *Program
	frames []*frame
	consts *Proc
	names  map[string]bool
	err    error
}

var _ backend.Backend = (*Builder)(nil)

// NewBuilder returns a builder for a program called name.
func NewBuilder(name string) *Builder {
	return &Builder{prog: &Program{Name: name}, names: make(map[string]bool)}
}

// Err returns the first recorded error.
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(format string, args ...interface{}) {
	if b.err == nil {
		b.err = ferrors.Internal("lir", format, args...)
	}
}

// Finish closes the program. Entry defaults to "main" or, without one,
// the first function.
func (b *Builder) Finish() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}

	if len(b.frames) > 0 {
		return nil, ferrors.Internal("lir", "procedure %s is not closed", b.top().proc.Name)
	}

	if b.prog.Entry == "" {
		for _, p := range b.prog.Procs {
			if p.Kind != ProcFunction {
				continue
			}

			if p.Name == "main" {
				b.prog.Entry = p.Name

				break
			}

			if b.prog.Entry == "" {
				b.prog.Entry = p.Name
			}
		}
	}

	return b.prog, nil
}

// SetEntry selects the function the engine starts with.
func (b *Builder) SetEntry(name string) { b.prog.Entry = name }

func (b *Builder) top() *frame {
	if len(b.frames) == 0 {
		return nil
	}

	return b.frames[len(b.frames)-1]
}

func (b *Builder) emit(in Insn) {
	f := b.top()
	if f == nil {
		b.fail("%s outside of a procedure", in.Op())

		return
	}

	sc := f.scopes[len(f.scopes)-1]
	if sc.point == nil {
		b.fail("%s inside %s outside of any case", in.Op(), sc.owner.Op())

		return
	}

	*sc.point = append(*sc.point, in)
}

func (b *Builder) push(owner Insn, point *[]Insn) {
	if f := b.top(); f != nil {
		f.scopes = append(f.scopes, scope{owner: owner, point: point})
	}
}

// pop closes the innermost scope, which must be owned by an instruction
// with operation op.
func (b *Builder) pop(op string) Insn {
	f := b.top()
	if f == nil || len(f.scopes) <= 1 {
		b.fail("end of %s without a matching start", op)

		return nil
	}

	sc := f.scopes[len(f.scopes)-1]
	if sc.owner.Op() != op {
		b.fail("end of %s while %s is open", op, sc.owner.Op())

		return nil
	}

	f.scopes = f.scopes[:len(f.scopes)-1]

	return sc.owner
}

// ====== Procedures ======

func (b *Builder) startProc(p *Proc) {
	if b.names[p.Name] {
		b.fail("duplicate procedure name %s", p.Name)

		return
	}

	b.names[p.Name] = true
	b.prog.Procs = append(b.prog.Procs, p)
	b.frames = append(b.frames, &frame{proc: p, scopes: []scope{{owner: procMarker{}, point: &p.Body}}})
}

func (b *Builder) endProc(kind ProcKind) {
	f := b.top()
	if f == nil {
		b.fail("end of %s without an open procedure", kind)

		return
	}

	if f.proc.Kind != kind {
		b.fail("end of %s while %s %s is open", kind, f.proc.Kind, f.proc.Name)

		return
	}

	if len(f.scopes) != 1 {
		b.fail("%s %s closed with %s still open", kind, f.proc.Name, f.scopes[len(f.scopes)-1].owner.Op())

		return
	}

	b.frames = b.frames[:len(b.frames)-1]
}

// procMarker owns the body scope of a procedure.
type procMarker struct{}

func (procMarker) Op() string { return "proc" }

func (b *Builder) StartFunction(name string, outputs, inputs []*types.Var) {
	b.startProc(&Proc{
		Name:    name,
		Kind:    ProcFunction,
		Outputs: types.CloneVars(outputs),
		Params:  types.CloneVars(inputs),
	})
}

func (b *Builder) EndFunction() { b.endProc(ProcFunction) }

func (b *Builder) StartProc(name string, params []*types.Var) {
	b.startProc(&Proc{Name: name, Kind: ProcDeferred, Params: types.CloneVars(params)})
}

func (b *Builder) EndProc() { b.endProc(ProcDeferred) }

func (b *Builder) CallProc(name string, args []types.Arg) {
	b.emit(CallProc{Name: name, Args: types.CloneArgs(args)})
}

func (b *Builder) RegisterRule(r backend.Rule) {
	b.emit(Rule{
		Name:      r.Name,
		Inputs:    types.CloneVars(r.Inputs),
		Args:      types.CloneArgs(r.Args),
		Priority:  r.Priority,
		ShareWork: r.ShareWork,
	})
}

// ====== Structure ======

func (b *Builder) StartNestedBlock() {
	blk := &Block{}
	b.emit(blk)
	b.push(blk, &blk.Body)
}

func (b *Builder) EndNestedBlock() { b.pop("block") }

func (b *Builder) StartIf(cond types.Arg, hasElse bool) {
	in := &If{Cond: cond, HasElse: hasElse}
	b.emit(in)
	b.push(in, &in.Then)
}

func (b *Builder) StartElse() {
	in, ok := b.pop("if").(*If)
	if !ok {
		return
	}

	if !in.HasElse {
		b.fail("else branch on an if declared without one")

		return
	}

	b.push(in, &in.Else)
}

func (b *Builder) EndIf() { b.pop("if") }

func (b *Builder) StartSwitch(sel types.Arg, labels []int64, hasDefault bool) {
	in := &Switch{
		Selector:   sel,
		Labels:     append([]int64(nil), labels...),
		Cases:      make([][]Insn, len(labels)),
		HasDefault: hasDefault,
	}
	b.emit(in)
	b.push(in, nil)
}

func (b *Builder) StartCase(i int) {
	f := b.top()
	if f == nil {
		b.fail("case outside of a procedure")

		return
	}

	sw, ok := f.scopes[len(f.scopes)-1].owner.(*Switch)
	if !ok {
		b.fail("case outside of a switch")

		return
	}

	switch {
	case i == -1 && sw.HasDefault:
		b.push(caseMarker{}, &sw.Default)
	case i >= 0 && i < len(sw.Cases):
		b.push(caseMarker{}, &sw.Cases[i])
	default:
		b.fail("switch has no case %d", i)
	}
}

// caseMarker owns the body scope of one switch case.
type caseMarker struct{}

func (caseMarker) Op() string { return "case" }

func (b *Builder) EndCase()   { b.pop("case") }
func (b *Builder) EndSwitch() { b.pop("switch") }

func (b *Builder) StartForRange(loopVar *types.Var, start, end, step types.Arg) {
	in := &ForRange{Var: loopVar, Start: start, End: end, Step: step}
	b.emit(in)
	b.push(in, &in.Body)
}

func (b *Builder) EndForRange() { b.pop("for_range") }

func (b *Builder) StartForeach(array, member, count *types.Var, window *backend.Window) {
	in := &Foreach{Array: array, Member: member, Count: count}
	if window != nil {
		in.Window = &Window{Lo: window.Lo, Hi: window.Hi}
	}

	b.emit(in)
	b.push(in, &in.Body)
}

func (b *Builder) EndForeach() { b.pop("foreach") }

// ====== Instructions ======

func (b *Builder) Comment(text string) { b.emit(Comment{Text: text}) }

// AddGlobal binds v in the constants procedure, which is created on
// first use.
func (b *Builder) AddGlobal(v *types.Var, val types.Arg) {
	if !val.IsImmediate() {
		b.fail("global %s initialised with non-constant %s", v.Name(), val)

		return
	}

	if b.consts == nil {
		b.consts = &Proc{Name: ConstantsProc, Kind: ProcConstants}
		b.names[ConstantsProc] = true
		b.prog.Procs = append(b.prog.Procs, b.consts)
		b.prog.Init = ConstantsProc
	}

	b.prog.Globals = append(b.prog.Globals, Global{Var: v, Val: val})
	b.consts.Body = append(b.consts.Body, GlobalConst{Var: v, Val: val})
}

func (b *Builder) Declare(v *types.Var)                 { b.emit(Declare{Var: v}) }
func (b *Builder) SlotCreate(v *types.Var)              { b.emit(SlotCreate{Var: v}) }
func (b *Builder) SlotDrop(v *types.Var)                { b.emit(SlotDrop{Var: v}) }
func (b *Builder) Assign(dst *types.Var, src types.Arg) { b.emit(Assign{Dst: dst, Src: src}) }
func (b *Builder) Retrieve(dst, src *types.Var)         { b.emit(Retrieve{Dst: dst, Src: src}) }
func (b *Builder) Dereference(dst, src *types.Var)      { b.emit(Deref{Dst: dst, Src: src}) }
func (b *Builder) AssignRef(dst, src *types.Var)        { b.emit(AssignRef{Dst: dst, Src: src}) }
func (b *Builder) MakeAlias(dst, src *types.Var)        { b.emit(Alias{Dst: dst, Src: src}) }
func (b *Builder) ContainerSize(dst, container *types.Var) {
	b.emit(ContainerSize{Dst: dst, Container: container})
}

func (b *Builder) ArrayLookupRef(dst, array *types.Var, index types.Arg, arrayIsRef bool) {
	b.emit(ArrayLookup{Dst: dst, Array: array, Index: index, ArrayIsRef: arrayIsRef})
}

func (b *Builder) ArrayLookupImm(dst, array *types.Var, index types.Arg) {
	b.emit(ArrayLookup{Dst: dst, Array: array, Index: index, Imm: true})
}

func (b *Builder) ArrayInsert(array *types.Var, index types.Arg, member *types.Var) {
	b.emit(ArrayInsert{Array: array, Index: index, Member: member})
}

func (b *Builder) ArrayRefInsert(arrayRef *types.Var, index types.Arg, member, outer *types.Var) {
	b.emit(ArrayInsert{Array: arrayRef, Index: index, Member: member, IsRef: true, Outer: outer})
}

func (b *Builder) ArrayCreateNested(dst, array *types.Var, index types.Arg) {
	b.emit(ArrayCreateNested{Dst: dst, Array: array, Index: index})
}

func (b *Builder) StructLookup(dst, st *types.Var, field string, isRef bool) {
	b.emit(StructLookup{Dst: dst, Struct: st, Field: field, IsRef: isRef})
}

func (b *Builder) StructInsert(st *types.Var, field string, val *types.Var) {
	b.emit(StructInsert{Struct: st, Field: field, Val: val})
}

func (b *Builder) InitUpdateable(v *types.Var, val types.Arg) {
	b.emit(InitUpdateable{Var: v, Val: val})
}

func (b *Builder) LatestValue(dst, src *types.Var) { b.emit(LatestValue{Dst: dst, Src: src}) }

func (b *Builder) Update(target *types.Var, mode types.UpdateMode, val types.Arg) {
	b.emit(Update{Target: target, Mode: mode, Val: val})
}

func (b *Builder) LocalOp(op types.Opcode, dst *types.Var, args []types.Arg) {
	b.emit(LocalOp{Code: op, Dst: dst, Args: types.CloneArgs(args)})
}

func (b *Builder) AsyncOp(op types.Opcode, dst *types.Var, args []types.Arg, priority types.Arg) {
	b.emit(AsyncOp{Code: op, Dst: dst, Args: types.CloneArgs(args), Priority: priority})
}

func (b *Builder) CallFunction(name string, outputs []*types.Var, inputs []types.Arg,
	blockOn []*types.Var, mode types.TaskMode, priority types.Arg) {
	b.emit(Call{
		Name:     name,
		Outputs:  types.CloneVars(outputs),
		Inputs:   types.CloneArgs(inputs),
		BlockOn:  types.CloneVars(blockOn),
		Mode:     mode,
		Priority: priority,
	})
}
