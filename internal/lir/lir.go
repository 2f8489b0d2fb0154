// Package lir defines the rule program handed to the task engine: a set
// of procedures whose bodies are structured instruction lists. Rules
// registered inside a procedure invoke other procedures once their inputs
// are written.
package lir

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/flowc/internal/types"
)

// ProcKind distinguishes composite functions from deferred procedures.
type ProcKind int

const (
	ProcFunction  ProcKind = iota // callable composite function
	ProcDeferred                  // action of a rule or target of CallProc
	ProcConstants                 // initialises global constants
)

func (k ProcKind) String() string {
	switch k {
	case ProcFunction:
		return "function"
	case ProcDeferred:
		return "proc"
	case ProcConstants:
		return "constants"
	default:
		return "unknown"
	}
}

// Program is a lowered compilation unit.
type Program struct {
	Name    string
	Globals []Global
	Procs   []*Proc
	// Init names the constants procedure, empty without globals.
	Init string
	// Entry names the function the engine starts with.
	Entry string
}

// Global is a compile-time constant.
type Global struct {
	Var *types.Var
	Val types.Arg
}

// Proc is a function or deferred procedure. Functions take Outputs then
// Params; deferred procedures only have Params.
type Proc struct {
	Name    string
	Kind    ProcKind
	Outputs []*types.Var
	Params  []*types.Var
	Body    []Insn
}

// Proc returns the procedure with the given name.
func (p *Program) Proc(name string) (*Proc, bool) {
	for _, pr := range p.Procs {
		if pr.Name == name {
			return pr, true
		}
	}

	return nil, false
}

// Insn is a rule-program instruction.
type Insn interface{ Op() string }

// ====== Plain instructions ======

type Comment struct{ Text string }

func (Comment) Op() string       { return "comment" }
func (c Comment) String() string { return "# " + c.Text }

type Declare struct{ Var *types.Var }

func (Declare) Op() string       { return "declare" }
func (d Declare) String() string { return fmt.Sprintf("declare %s %s", d.Var.Type(), d.Var.Name()) }

// GlobalConst binds a global constant in the constants procedure.
type GlobalConst struct {
	Var *types.Var
	Val types.Arg
}

func (GlobalConst) Op() string       { return "global" }
func (g GlobalConst) String() string { return fmt.Sprintf("global %s = %s", g.Var.Name(), g.Val) }

type Assign struct {
	Dst *types.Var
	Src types.Arg
}

func (Assign) Op() string       { return "assign" }
func (a Assign) String() string { return fmt.Sprintf("store %s <- %s", a.Dst, a.Src) }

type Retrieve struct{ Dst, Src *types.Var }

func (Retrieve) Op() string       { return "retrieve" }
func (r Retrieve) String() string { return fmt.Sprintf("%s = retrieve %s", r.Dst, r.Src) }

type Deref struct{ Dst, Src *types.Var }

func (Deref) Op() string       { return "deref" }
func (d Deref) String() string { return fmt.Sprintf("deref %s <- *%s", d.Dst, d.Src) }

type AssignRef struct{ Dst, Src *types.Var }

func (AssignRef) Op() string       { return "assign_ref" }
func (a AssignRef) String() string { return fmt.Sprintf("store_ref %s <- &%s", a.Dst, a.Src) }

type Alias struct{ Dst, Src *types.Var }

func (Alias) Op() string       { return "alias" }
func (a Alias) String() string { return fmt.Sprintf("alias %s = %s", a.Dst, a.Src) }

type SlotCreate struct{ Var *types.Var }

func (SlotCreate) Op() string       { return "slot_create" }
func (s SlotCreate) String() string { return "slot_create " + s.Var.Name() }

type SlotDrop struct{ Var *types.Var }

func (SlotDrop) Op() string       { return "slot_drop" }
func (s SlotDrop) String() string { return "slot_drop " + s.Var.Name() }

// ContainerSize reads the member count of a closed container.
type ContainerSize struct{ Dst, Container *types.Var }

func (ContainerSize) Op() string       { return "container_size" }
func (c ContainerSize) String() string { return fmt.Sprintf("%s = size %s", c.Dst, c.Container) }

// ArrayLookup binds Dst to Array[Index]. Imm aliases an existing member;
// otherwise Dst is a reference written once the member appears.
type ArrayLookup struct {
	Dst        *types.Var
	Array      *types.Var
	Index      types.Arg
	ArrayIsRef bool
	Imm        bool
}

func (ArrayLookup) Op() string { return "array_lookup" }
func (a ArrayLookup) String() string {
	switch {
	case a.Imm:
		return fmt.Sprintf("alias %s = %s[%s]", a.Dst, a.Array, a.Index)
	case a.ArrayIsRef:
		return fmt.Sprintf("%s = &(*%s)[%s]", a.Dst, a.Array, a.Index)
	default:
		return fmt.Sprintf("%s = &%s[%s]", a.Dst, a.Array, a.Index)
	}
}

// ArrayInsert stores Member at Array[Index]. With IsRef, Array is a
// reference to the target and Outer is held open until the insert lands.
type ArrayInsert struct {
	Array  *types.Var
	Index  types.Arg
	Member *types.Var
	IsRef  bool
	Outer  *types.Var
}

func (ArrayInsert) Op() string { return "array_insert" }
func (a ArrayInsert) String() string {
	if a.IsRef {
		s := fmt.Sprintf("(*%s)[%s] <- %s", a.Array, a.Index, a.Member)
		if a.Outer != nil {
			s += " @outer=" + a.Outer.Name()
		}

		return s
	}

	return fmt.Sprintf("%s[%s] <- %s", a.Array, a.Index, a.Member)
}

type ArrayCreateNested struct {
	Dst   *types.Var
	Array *types.Var
	Index types.Arg
}

func (ArrayCreateNested) Op() string { return "array_create_nested" }
func (a ArrayCreateNested) String() string {
	return fmt.Sprintf("%s = nested %s[%s]", a.Dst, a.Array, a.Index)
}

type StructLookup struct {
	Dst    *types.Var
	Struct *types.Var
	Field  string
	IsRef  bool
}

func (StructLookup) Op() string { return "struct_lookup" }
func (s StructLookup) String() string {
	if s.IsRef {
		return fmt.Sprintf("%s = &(*%s).%s", s.Dst, s.Struct, s.Field)
	}

	return fmt.Sprintf("alias %s = %s.%s", s.Dst, s.Struct, s.Field)
}

type StructInsert struct {
	Struct *types.Var
	Field  string
	Val    *types.Var
}

func (StructInsert) Op() string       { return "struct_insert" }
func (s StructInsert) String() string { return fmt.Sprintf("%s.%s <- %s", s.Struct, s.Field, s.Val) }

type InitUpdateable struct {
	Var *types.Var
	Val types.Arg
}

func (InitUpdateable) Op() string       { return "init_updateable" }
func (i InitUpdateable) String() string { return fmt.Sprintf("init %s <- %s", i.Var, i.Val) }

type LatestValue struct{ Dst, Src *types.Var }

func (LatestValue) Op() string       { return "latest_value" }
func (l LatestValue) String() string { return fmt.Sprintf("%s = latest %s", l.Dst, l.Src) }

type Update struct {
	Target *types.Var
	Mode   types.UpdateMode
	Val    types.Arg
}

func (Update) Op() string       { return "update" }
func (u Update) String() string { return fmt.Sprintf("update_%s %s <- %s", u.Mode, u.Target, u.Val) }

type LocalOp struct {
	Code types.Opcode
	Dst  *types.Var
	Args []types.Arg
}

func (LocalOp) Op() string { return "local_op" }
func (l LocalOp) String() string {
	if l.Dst == nil {
		return fmt.Sprintf("%s(%s)", l.Code, argList(l.Args))
	}

	return fmt.Sprintf("%s = %s(%s)", l.Dst, l.Code, argList(l.Args))
}

type AsyncOp struct {
	Code     types.Opcode
	Dst      *types.Var
	Args     []types.Arg
	Priority types.Arg
}

func (AsyncOp) Op() string { return "async_op" }
func (a AsyncOp) String() string {
	s := fmt.Sprintf("async %s(%s)", a.Code, argList(a.Args))
	if a.Dst != nil {
		s = fmt.Sprintf("%s <- %s", a.Dst, s)
	}

	return s + prioString(a.Priority)
}

// Call invokes a composite function once every BlockOn var is written.
type Call struct {
	Name     string
	Outputs  []*types.Var
	Inputs   []types.Arg
	BlockOn  []*types.Var
	Mode     types.TaskMode
	Priority types.Arg
}

func (Call) Op() string { return "call" }
func (c Call) String() string {
	s := fmt.Sprintf("call %s [%s] <- [%s] #waiton[%s]", c.Name, varList(c.Outputs), argList(c.Inputs), varList(c.BlockOn))
	if c.Mode != types.TaskControl {
		s += " #" + c.Mode.String()
	}

	return s + prioString(c.Priority)
}

// Rule registers a deferred call of procedure Name.
type Rule struct {
	Name      string
	Inputs    []*types.Var
	Args      []types.Arg
	Priority  types.Arg
	ShareWork bool
}

func (Rule) Op() string { return "rule" }
func (r Rule) String() string {
	s := fmt.Sprintf("rule %s [%s] <- [%s]", r.Name, argList(r.Args), varList(r.Inputs))
	if r.ShareWork {
		s += " #sharework"
	}

	return s + prioString(r.Priority)
}

type CallProc struct {
	Name string
	Args []types.Arg
}

func (CallProc) Op() string       { return "call_proc" }
func (c CallProc) String() string { return fmt.Sprintf("%s(%s)", c.Name, argList(c.Args)) }

// ====== Structured instructions ======

type If struct {
	Cond types.Arg
	Then []Insn
	Else []Insn
	// HasElse distinguishes an empty else from none.
	HasElse bool
}

func (*If) Op() string { return "if" }

type Switch struct {
	Selector types.Arg
	Labels   []int64
	Cases    [][]Insn
	Default  []Insn
	// HasDefault distinguishes an empty default from none.
	HasDefault bool
}

func (*Switch) Op() string { return "switch" }

// ForRange runs Body for Var = Start, Start+Step, ... while Var <= End.
type ForRange struct {
	Var              *types.Var
	Start, End, Step types.Arg
	Body             []Insn
}

func (*ForRange) Op() string { return "for_range" }

// Window restricts a foreach to sorted member positions Lo..Hi.
type Window struct {
	Lo, Hi types.Arg
}

// Foreach runs Body for each member of a closed array in key order.
type Foreach struct {
	Array  *types.Var
	Member *types.Var
	Count  *types.Var
	Window *Window
	Body   []Insn
}

func (*Foreach) Op() string { return "foreach" }

// Block is a nested scope.
type Block struct{ Body []Insn }

func (*Block) Op() string { return "block" }

// ====== Printing ======

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

func prioString(p types.Arg) string {
	if p.IsNone() {
		return ""
	}

	return " @prio=" + p.String()
}

func (p *Program) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "program %s entry=%s\n", p.Name, p.Entry)

	for _, pr := range p.Procs {
		b.WriteByte('\n')
		b.WriteString(pr.String())
	}

	return b.String()
}

func (p *Proc) String() string {
	var b strings.Builder

	if p.Kind == ProcFunction {
		fmt.Fprintf(&b, "function %s [%s] <- [%s] {\n", p.Name, varList(p.Outputs), varList(p.Params))
	} else {
		fmt.Fprintf(&b, "%s %s [%s] {\n", p.Kind, p.Name, varList(p.Params))
	}

	writeInsns(&b, p.Body, 1)
	b.WriteString("}\n")

	return b.String()
}

func pad(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("    ", depth))
}

func writeInsns(b *strings.Builder, insns []Insn, depth int) {
	for _, in := range insns {
		pad(b, depth)

		switch in := in.(type) {
		case *If:
			fmt.Fprintf(b, "if %s {\n", in.Cond)
			writeInsns(b, in.Then, depth+1)

			if in.HasElse {
				pad(b, depth)
				b.WriteString("} else {\n")
				writeInsns(b, in.Else, depth+1)
			}

			pad(b, depth)
			b.WriteString("}\n")
		case *Switch:
			fmt.Fprintf(b, "switch %s {\n", in.Selector)

			for i, body := range in.Cases {
				pad(b, depth)
				fmt.Fprintf(b, "case %d:\n", in.Labels[i])
				writeInsns(b, body, depth+1)
			}

			if in.HasDefault {
				pad(b, depth)
				b.WriteString("default:\n")
				writeInsns(b, in.Default, depth+1)
			}

			pad(b, depth)
			b.WriteString("}\n")
		case *ForRange:
			fmt.Fprintf(b, "for %s = %s to %s step %s {\n", in.Var, in.Start, in.End, in.Step)
			writeInsns(b, in.Body, depth+1)
			pad(b, depth)
			b.WriteString("}\n")
		case *Foreach:
			fmt.Fprintf(b, "foreach %s", in.Member)

			if in.Count != nil {
				fmt.Fprintf(b, ", %s", in.Count)
			}

			fmt.Fprintf(b, " in %s", in.Array)

			if in.Window != nil {
				fmt.Fprintf(b, " [%s..%s]", in.Window.Lo, in.Window.Hi)
			}

			b.WriteString(" {\n")
			writeInsns(b, in.Body, depth+1)
			pad(b, depth)
			b.WriteString("}\n")
		case *Block:
			b.WriteString("{\n")
			writeInsns(b, in.Body, depth+1)
			pad(b, depth)
			b.WriteString("}\n")
		case fmt.Stringer:
			b.WriteString(in.String())
			b.WriteByte('\n')
		default:
			b.WriteString(in.Op())
			b.WriteByte('\n')
		}
	}
}

// Walk calls fn for every instruction of body in program order,
// descending into structured instructions.
func Walk(body []Insn, fn func(Insn)) {
	for _, in := range body {
		fn(in)

		switch in := in.(type) {
		case *If:
			Walk(in.Then, fn)
			Walk(in.Else, fn)
		case *Switch:
			for _, c := range in.Cases {
				Walk(c, fn)
			}

			Walk(in.Default, fn)
		case *ForRange:
			Walk(in.Body, fn)
		case *Foreach:
			Walk(in.Body, fn)
		case *Block:
			Walk(in.Body, fn)
		}
	}
}
