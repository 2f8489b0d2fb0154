package mir

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/flowc/internal/types"
)

// Comment is carried through to the generated program.
type Comment struct{ Text string }

// Assign writes a value or immediate into a future.
type Assign struct {
	Dst *types.Var
	Src types.Arg
}

// Retrieve reads a resolved future into a local value.
type Retrieve struct{ Dst, Src *types.Var }

// Dereference asynchronously copies the future a reference points to.
type Dereference struct{ Dst, Src *types.Var }

// StoreRef makes the reference Dst point at Src.
type StoreRef struct{ Dst, Src *types.Var }

// MakeAlias binds Dst to the storage of Src.
type MakeAlias struct{ Dst, Src *types.Var }

// ArrayLookup binds the reference Dst to Array[Index] once the member
// exists. Array may be an array or a reference to one.
type ArrayLookup struct {
	Dst   *types.Var
	Array *types.Var
	Index types.Arg
}

// ArrayInsert stores Member at Array[Index]. When Array is a reference,
// Outer is the enclosing container held open until the insert lands.
type ArrayInsert struct {
	Array  *types.Var
	Index  types.Arg
	Member *types.Var
	Outer  *types.Var
}

// ArrayCreateNested binds Dst to the array at Array[Index], creating it
// if absent. The nested array closes with its parent.
type ArrayCreateNested struct {
	Dst   *types.Var
	Array *types.Var
	Index types.Arg
}

// StructLookup binds Dst to a field of Struct, or of the struct a
// reference points to.
type StructLookup struct {
	Dst    *types.Var
	Struct *types.Var
	Field  string
}

// StructInsert stores Val as a field of Struct.
type StructInsert struct {
	Struct *types.Var
	Field  string
	Val    *types.Var
}

// CloseContainer releases one writer slot of Container.
type CloseContainer struct{ Container *types.Var }

// InitUpdateable sets the initial value of an updateable.
type InitUpdateable struct {
	Target *types.Var
	Val    types.Arg
}

// LatestValue reads the current value of an updateable.
type LatestValue struct{ Dst, Src *types.Var }

// Update combines Val into Target with Mode.
type Update struct {
	Target *types.Var
	Mode   types.UpdateMode
	Val    types.Arg
}

// LocalOp computes a builtin on local values immediately.
type LocalOp struct {
	Op   types.Opcode
	Dst  *types.Var
	Args []types.Arg
}

// AsyncOp computes a builtin once its future arguments resolve.
type AsyncOp struct {
	Op       types.Opcode
	Dst      *types.Var
	Args     []types.Arg
	Priority types.Arg
}

// CallFunction invokes a composite function. Blocking lists the inputs
// the call waits on; nil means every blocking-on-read input.
type CallFunction struct {
	Name     string
	Outputs  []*types.Var
	Inputs   []types.Arg
	Blocking []*types.Var
	Mode     types.TaskMode
	Priority types.Arg
}

// LoopContinue starts the next iteration of the enclosing Loop.
type LoopContinue struct {
	NewVals  []types.Arg
	Blocking []bool
}

// LoopBreak leaves the enclosing Loop.
type LoopBreak struct{}

func (*Comment) isStmt()           {}
func (*Assign) isStmt()            {}
func (*Retrieve) isStmt()          {}
func (*Dereference) isStmt()       {}
func (*StoreRef) isStmt()          {}
func (*MakeAlias) isStmt()         {}
func (*ArrayLookup) isStmt()       {}
func (*ArrayInsert) isStmt()       {}
func (*ArrayCreateNested) isStmt() {}
func (*StructLookup) isStmt()      {}
func (*StructInsert) isStmt()      {}
func (*CloseContainer) isStmt()    {}
func (*InitUpdateable) isStmt()    {}
func (*LatestValue) isStmt()       {}
func (*Update) isStmt()            {}
func (*LocalOp) isStmt()           {}
func (*AsyncOp) isStmt()           {}
func (*CallFunction) isStmt()      {}
func (*LoopContinue) isStmt()      {}
func (*LoopBreak) isStmt()         {}

func (*Comment) OpName() string           { return "comment" }
func (*Assign) OpName() string            { return "assign" }
func (*Retrieve) OpName() string          { return "retrieve" }
func (*Dereference) OpName() string       { return "deref" }
func (*StoreRef) OpName() string          { return "store_ref" }
func (*MakeAlias) OpName() string         { return "alias" }
func (*ArrayLookup) OpName() string       { return "array_lookup" }
func (*ArrayInsert) OpName() string       { return "array_insert" }
func (*ArrayCreateNested) OpName() string { return "array_create_nested" }
func (*StructLookup) OpName() string      { return "struct_lookup" }
func (*StructInsert) OpName() string      { return "struct_insert" }
func (*CloseContainer) OpName() string    { return "close" }
func (*InitUpdateable) OpName() string    { return "init_updateable" }
func (*LatestValue) OpName() string       { return "latest_value" }
func (*Update) OpName() string            { return "update" }
func (*LocalOp) OpName() string           { return "local_op" }
func (*AsyncOp) OpName() string           { return "async_op" }
func (*CallFunction) OpName() string      { return "call" }
func (*LoopContinue) OpName() string      { return "loop_continue" }
func (*LoopBreak) OpName() string         { return "loop_break" }

// ====== Inputs / Outputs ======

func vargs(vs ...*types.Var) []types.Arg {
	out := make([]types.Arg, 0, len(vs))

	for _, v := range vs {
		if v != nil {
			out = append(out, types.VarArg(v))
		}
	}

	return out
}

func withArgs(base []types.Arg, extra ...types.Arg) []types.Arg {
	for _, a := range extra {
		if !a.IsNone() {
			base = append(base, a)
		}
	}

	return base
}

func (*Comment) Reads() []types.Arg             { return nil }
func (i *Assign) Reads() []types.Arg            { return withArgs(nil, i.Src) }
func (i *Retrieve) Reads() []types.Arg          { return vargs(i.Src) }
func (i *Dereference) Reads() []types.Arg       { return vargs(i.Src) }
func (i *StoreRef) Reads() []types.Arg          { return vargs(i.Src) }
func (i *MakeAlias) Reads() []types.Arg         { return vargs(i.Src) }
func (i *ArrayLookup) Reads() []types.Arg       { return withArgs(vargs(i.Array), i.Index) }
func (i *ArrayInsert) Reads() []types.Arg       { return withArgs(vargs(i.Member), i.Index) }
func (i *ArrayCreateNested) Reads() []types.Arg { return withArgs(nil, i.Index) }
func (i *StructLookup) Reads() []types.Arg      { return vargs(i.Struct) }
func (i *StructInsert) Reads() []types.Arg      { return vargs(i.Val) }
func (*CloseContainer) Reads() []types.Arg      { return nil }
func (i *InitUpdateable) Reads() []types.Arg    { return withArgs(nil, i.Val) }
func (i *LatestValue) Reads() []types.Arg       { return vargs(i.Src) }
func (i *Update) Reads() []types.Arg            { return withArgs(nil, i.Val) }
func (i *LocalOp) Reads() []types.Arg           { return types.CloneArgs(i.Args) }
func (i *AsyncOp) Reads() []types.Arg           { return withArgs(types.CloneArgs(i.Args), i.Priority) }
func (i *LoopContinue) Reads() []types.Arg      { return types.CloneArgs(i.NewVals) }
func (*LoopBreak) Reads() []types.Arg           { return nil }

func (i *CallFunction) Reads() []types.Arg {
	in := withArgs(types.CloneArgs(i.Inputs), i.Priority)

	for _, b := range i.Blocking {
		in = append(in, types.VarArg(b))
	}

	return in
}

func (*Comment) Writes() []*types.Var             { return nil }
func (i *Assign) Writes() []*types.Var            { return []*types.Var{i.Dst} }
func (i *Retrieve) Writes() []*types.Var          { return []*types.Var{i.Dst} }
func (i *Dereference) Writes() []*types.Var       { return []*types.Var{i.Dst} }
func (i *StoreRef) Writes() []*types.Var          { return []*types.Var{i.Dst} }
func (i *MakeAlias) Writes() []*types.Var         { return []*types.Var{i.Dst} }
func (i *ArrayLookup) Writes() []*types.Var       { return []*types.Var{i.Dst} }
func (i *ArrayCreateNested) Writes() []*types.Var { return []*types.Var{i.Dst, i.Array} }
func (i *StructLookup) Writes() []*types.Var      { return []*types.Var{i.Dst} }
func (i *StructInsert) Writes() []*types.Var      { return []*types.Var{i.Struct} }
func (i *CloseContainer) Writes() []*types.Var    { return []*types.Var{i.Container} }
func (i *InitUpdateable) Writes() []*types.Var    { return []*types.Var{i.Target} }
func (i *LatestValue) Writes() []*types.Var       { return []*types.Var{i.Dst} }
func (i *Update) Writes() []*types.Var            { return []*types.Var{i.Target} }
func (i *LocalOp) Writes() []*types.Var           { return types.FilterNulls([]*types.Var{i.Dst}) }
func (i *AsyncOp) Writes() []*types.Var           { return types.FilterNulls([]*types.Var{i.Dst}) }
func (i *CallFunction) Writes() []*types.Var      { return types.CloneVars(i.Outputs) }
func (*LoopContinue) Writes() []*types.Var        { return nil }
func (*LoopBreak) Writes() []*types.Var           { return nil }

func (i *ArrayInsert) Writes() []*types.Var {
	return types.FilterNulls([]*types.Var{i.Array, i.Outer})
}

// ====== Clone ======

func (i *Comment) Clone() Instruction           { c := *i; return &c }
func (i *Assign) Clone() Instruction            { c := *i; return &c }
func (i *Retrieve) Clone() Instruction          { c := *i; return &c }
func (i *Dereference) Clone() Instruction       { c := *i; return &c }
func (i *StoreRef) Clone() Instruction          { c := *i; return &c }
func (i *MakeAlias) Clone() Instruction         { c := *i; return &c }
func (i *ArrayLookup) Clone() Instruction       { c := *i; return &c }
func (i *ArrayInsert) Clone() Instruction       { c := *i; return &c }
func (i *ArrayCreateNested) Clone() Instruction { c := *i; return &c }
func (i *StructLookup) Clone() Instruction      { c := *i; return &c }
func (i *StructInsert) Clone() Instruction      { c := *i; return &c }
func (i *CloseContainer) Clone() Instruction    { c := *i; return &c }
func (i *InitUpdateable) Clone() Instruction    { c := *i; return &c }
func (i *LatestValue) Clone() Instruction       { c := *i; return &c }
func (i *Update) Clone() Instruction            { c := *i; return &c }
func (*LoopBreak) Clone() Instruction           { return &LoopBreak{} }

func (i *LocalOp) Clone() Instruction {
	return &LocalOp{Op: i.Op, Dst: i.Dst, Args: types.CloneArgs(i.Args)}
}

func (i *AsyncOp) Clone() Instruction {
	return &AsyncOp{Op: i.Op, Dst: i.Dst, Args: types.CloneArgs(i.Args), Priority: i.Priority}
}

func (i *CallFunction) Clone() Instruction {
	return &CallFunction{
		Name:     i.Name,
		Outputs:  types.CloneVars(i.Outputs),
		Inputs:   types.CloneArgs(i.Inputs),
		Blocking: types.CloneVars(i.Blocking),
		Mode:     i.Mode,
		Priority: i.Priority,
	}
}

func (i *LoopContinue) Clone() Instruction {
	return &LoopContinue{
		NewVals:  types.CloneArgs(i.NewVals),
		Blocking: append([]bool(nil), i.Blocking...),
	}
}

// ====== RenameVars ======

func renameVar(r types.Renames, v **types.Var) {
	*v = types.ReplaceVar(r, *v)
}

func renameArg(r types.Renames, a *types.Arg, nullsOK bool) error {
	na, err := types.ReplaceOparg(r, *a, nullsOK)
	if err != nil {
		return err
	}

	*a = na

	return nil
}

func (*Comment) RenameVars(types.Renames) error { return nil }

func (i *Assign) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)

	return renameArg(r, &i.Src, false)
}

func (i *Retrieve) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Src)

	return nil
}

func (i *Dereference) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Src)

	return nil
}

func (i *StoreRef) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Src)

	return nil
}

func (i *MakeAlias) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Src)

	return nil
}

func (i *ArrayLookup) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Array)

	return renameArg(r, &i.Index, false)
}

func (i *ArrayInsert) RenameVars(r types.Renames) error {
	renameVar(r, &i.Array)
	renameVar(r, &i.Member)

	if i.Outer != nil {
		renameVar(r, &i.Outer)
	}

	return renameArg(r, &i.Index, false)
}

func (i *ArrayCreateNested) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Array)

	return renameArg(r, &i.Index, false)
}

func (i *StructLookup) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Struct)

	return nil
}

func (i *StructInsert) RenameVars(r types.Renames) error {
	renameVar(r, &i.Struct)
	renameVar(r, &i.Val)

	return nil
}

func (i *CloseContainer) RenameVars(r types.Renames) error {
	renameVar(r, &i.Container)

	return nil
}

func (i *InitUpdateable) RenameVars(r types.Renames) error {
	renameVar(r, &i.Target)

	return renameArg(r, &i.Val, false)
}

func (i *LatestValue) RenameVars(r types.Renames) error {
	renameVar(r, &i.Dst)
	renameVar(r, &i.Src)

	return nil
}

func (i *Update) RenameVars(r types.Renames) error {
	renameVar(r, &i.Target)

	return renameArg(r, &i.Val, false)
}

func (i *LocalOp) RenameVars(r types.Renames) error {
	if i.Dst != nil {
		renameVar(r, &i.Dst)
	}

	return types.ReplaceOpargsInList(r, i.Args, false)
}

func (i *AsyncOp) RenameVars(r types.Renames) error {
	if i.Dst != nil {
		renameVar(r, &i.Dst)
	}

	if err := renameArg(r, &i.Priority, true); err != nil {
		return err
	}

	return types.ReplaceOpargsInList(r, i.Args, false)
}

func (i *CallFunction) RenameVars(r types.Renames) error {
	i.Outputs = types.ReplaceVarsInList(r, i.Outputs, false)
	i.Blocking = types.ReplaceVarsInList(r, i.Blocking, true)

	if err := renameArg(r, &i.Priority, true); err != nil {
		return err
	}

	return types.ReplaceOpargsInList(r, i.Inputs, false)
}

func (i *LoopContinue) RenameVars(r types.Renames) error {
	return types.ReplaceOpargsInList(r, i.NewVals, false)
}

func (*LoopBreak) RenameVars(types.Renames) error { return nil }

// ====== String ======

func argList(args []types.Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}

	return strings.Join(parts, ", ")
}

func varList(vars []*types.Var) string {
	return strings.Join(types.NameList(vars), ", ")
}

func (i *Comment) String() string     { return "// " + i.Text }
func (i *Assign) String() string      { return fmt.Sprintf("%s := %s", i.Dst, i.Src) }
func (i *Retrieve) String() string    { return fmt.Sprintf("%s = retrieve %s", i.Dst, i.Src) }
func (i *Dereference) String() string { return fmt.Sprintf("%s := *%s", i.Dst, i.Src) }
func (i *StoreRef) String() string    { return fmt.Sprintf("%s := &%s", i.Dst, i.Src) }
func (i *MakeAlias) String() string   { return fmt.Sprintf("alias %s = %s", i.Dst, i.Src) }
func (i *LatestValue) String() string { return fmt.Sprintf("%s = latest %s", i.Dst, i.Src) }
func (*LoopBreak) String() string     { return "break" }

func (i *ArrayLookup) String() string {
	return fmt.Sprintf("%s := &%s[%s]", i.Dst, i.Array, i.Index)
}

func (i *ArrayInsert) String() string {
	if i.Outer != nil {
		return fmt.Sprintf("%s[%s] := %s (outer %s)", i.Array, i.Index, i.Member, i.Outer)
	}

	return fmt.Sprintf("%s[%s] := %s", i.Array, i.Index, i.Member)
}

func (i *ArrayCreateNested) String() string {
	return fmt.Sprintf("%s = nested %s[%s]", i.Dst, i.Array, i.Index)
}

func (i *StructLookup) String() string {
	return fmt.Sprintf("%s = %s.%s", i.Dst, i.Struct, i.Field)
}

func (i *StructInsert) String() string {
	return fmt.Sprintf("%s.%s := %s", i.Struct, i.Field, i.Val)
}

func (i *CloseContainer) String() string { return fmt.Sprintf("close %s", i.Container) }

func (i *InitUpdateable) String() string {
	return fmt.Sprintf("init %s = %s", i.Target, i.Val)
}

func (i *Update) String() string {
	return fmt.Sprintf("update.%s %s, %s", i.Mode, i.Target, i.Val)
}

func (i *LocalOp) String() string {
	if i.Dst == nil {
		return fmt.Sprintf("%s(%s)", i.Op, argList(i.Args))
	}

	return fmt.Sprintf("%s = %s(%s)", i.Dst, i.Op, argList(i.Args))
}

func (i *AsyncOp) String() string {
	var b strings.Builder
	if i.Dst != nil {
		fmt.Fprintf(&b, "%s := ", i.Dst)
	}

	fmt.Fprintf(&b, "async %s(%s)", i.Op, argList(i.Args))

	if !i.Priority.IsNone() {
		fmt.Fprintf(&b, " @prio=%s", i.Priority)
	}

	return b.String()
}

func (i *CallFunction) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "call.%s %s [%s] <- (%s)", i.Mode, i.Name, varList(i.Outputs), argList(i.Inputs))

	if i.Blocking != nil {
		fmt.Fprintf(&b, " #waiton[%s]", varList(i.Blocking))
	}

	if !i.Priority.IsNone() {
		fmt.Fprintf(&b, " @prio=%s", i.Priority)
	}

	return b.String()
}

func (i *LoopContinue) String() string {
	var b strings.Builder

	b.WriteString("continue (")

	for k, a := range i.NewVals {
		if k > 0 {
			b.WriteString(", ")
		}

		b.WriteString(a.String())

		if k < len(i.Blocking) && i.Blocking[k] {
			b.WriteString(" #blocking")
		}
	}

	b.WriteString(")")

	return b.String()
}
