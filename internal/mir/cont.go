package mir

import (
	"github.com/orizon-lang/flowc/internal/types"
)

// ContKind tags the Continuation variants.
type ContKind int

const (
	ContIf ContKind = iota
	ContSwitch
	ContWait
	ContForeach
	ContRangeLoop
	ContLoop
)

func (k ContKind) String() string {
	switch k {
	case ContIf:
		return "if"
	case ContSwitch:
		return "switch"
	case ContWait:
		return "wait"
	case ContForeach:
		return "foreach"
	case ContRangeLoop:
		return "range"
	case ContLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// Continuation is a construct owning one or more child Blocks. The set of
// variants is closed: If, Switch, Wait, Foreach, RangeLoop and Loop.
type Continuation interface {
	Stmt
	isContinuation()

	ID() ContID
	// Parent is the block that owns the continuation.
	Parent() BlockID
	Kind() ContKind
	// Blocks returns the child blocks in order, omitting absent ones.
	Blocks() []*Block
	// Clone deep-copies the continuation; the copy is owned by parent.
	Clone(parent BlockID) Continuation
	RenameVars(r types.Renames) error
	// Defined returns the variables the construct binds for its body.
	Defined() []*types.Var
	// Header returns the operands the construct itself reads.
	Header() []types.Arg
}

// Async is implemented by continuations whose body runs as a rule.
type Async interface {
	Continuation
	Captures() *PassIn
}

// PassIn is the capture information of an async continuation.
type PassIn struct {
	// UsedVars are the variables the body references.
	UsedVars []*types.Var
	// KeepOpen are the containers written inside and declared outside.
	KeepOpen []*types.Var
	// Fixed marks pass-in supplied by the frontend; ComputePassIn skips it.
	Fixed bool
}

func (p PassIn) clone() PassIn {
	return PassIn{UsedVars: types.CloneVars(p.UsedVars), KeepOpen: types.CloneVars(p.KeepOpen), Fixed: p.Fixed}
}

func (p *PassIn) rename(r types.Renames) {
	p.UsedVars = types.ReplaceVarsInList(r, p.UsedVars, true)
	p.KeepOpen = types.ReplaceVarsInList(r, p.KeepOpen, true)
}

type contBase struct {
	arena  *Arena
	id     ContID
	parent BlockID
}

func (contBase) isStmt()           {}
func (contBase) isContinuation()   {}
func (c contBase) ID() ContID      { return c.id }
func (c contBase) Parent() BlockID { return c.parent }

// ParentBlock resolves the owning block.
func (c contBase) ParentBlock() *Block { return c.arena.Block(c.parent) }

// If branches on a local boolean or integer.
type If struct {
	contBase
	Cond types.Arg
	Then *Block
	Else *Block
}

// Switch selects a case body by integer label.
type Switch struct {
	contBase
	Selector types.Arg
	Labels   []int64
	Cases    []*Block
	Default  *Block
}

// Wait runs Body once every WaitVar is resolved.
type Wait struct {
	contBase
	PassIn
	Name     string
	WaitVars []*types.Var
	Body     *Block
	Explicit bool
	Priority types.Arg
}

// Foreach iterates over the members of Array.
type Foreach struct {
	contBase
	PassIn
	Array       *types.Var
	Member      *types.Var
	Count       *types.Var
	Body        *Block
	SplitDegree int
	Sync        bool
	ArrayClosed bool
}

// RangeLoop iterates LoopVar over the inclusive range [Start, End].
type RangeLoop struct {
	contBase
	PassIn
	Name          string
	LoopVar       *types.Var
	Start         types.Arg
	End           types.Arg
	Step          types.Arg
	Body          *Block
	SplitDegree   int
	Sync          bool
	DesiredUnroll int
}

// Loop is a tail-recursive loop. Each iteration is a rule registered
// with the loop variables bound; LoopContinue re-registers it.
type Loop struct {
	contBase
	PassIn
	Name     string
	LoopVars []*types.Var
	InitVals []types.Arg
	Blocking []bool
	Body     *Block
}

// ====== Construction ======

func (b *Block) addCont(c Continuation) {
	b.Stmts = append(b.Stmts, c)
}

// AddIf appends an if statement; the else block exists when withElse.
func (b *Block) AddIf(cond types.Arg, withElse bool) *If {
	c := &If{Cond: cond}
	c.contBase = b.arena.register(c, b.id)
	c.Then = b.arena.newBlock(c.id)

	if withElse {
		c.Else = b.arena.newBlock(c.id)
	}

	b.addCont(c)

	return c
}

// AddSwitch appends a switch with one case block per label.
func (b *Block) AddSwitch(sel types.Arg, labels []int64, withDefault bool) *Switch {
	c := &Switch{Selector: sel, Labels: append([]int64(nil), labels...)}
	c.contBase = b.arena.register(c, b.id)

	c.Cases = make([]*Block, len(labels))
	for i := range labels {
		c.Cases[i] = b.arena.newBlock(c.id)
	}

	if withDefault {
		c.Default = b.arena.newBlock(c.id)
	}

	b.addCont(c)

	return c
}

// AddWait appends a wait statement.
func (b *Block) AddWait(name string, waitVars []*types.Var) *Wait {
	c := &Wait{Name: name, WaitVars: waitVars}
	c.contBase = b.arena.register(c, b.id)
	c.Body = b.arena.newBlock(c.id)
	b.addCont(c)

	return c
}

// AddForeach appends a foreach loop over array; count may be nil.
func (b *Block) AddForeach(array, member, count *types.Var) *Foreach {
	c := &Foreach{Array: array, Member: member, Count: count}
	c.contBase = b.arena.register(c, b.id)
	c.Body = b.arena.newBlock(c.id)
	b.addCont(c)

	return c
}

// AddRangeLoop appends a range loop.
func (b *Block) AddRangeLoop(name string, loopVar *types.Var, start, end, step types.Arg) *RangeLoop {
	c := &RangeLoop{Name: name, LoopVar: loopVar, Start: start, End: end, Step: step}
	c.contBase = b.arena.register(c, b.id)
	c.Body = b.arena.newBlock(c.id)
	b.addCont(c)

	return c
}

// AddLoop appends a tail-recursive loop.
func (b *Block) AddLoop(name string, loopVars []*types.Var, initVals []types.Arg, blocking []bool) *Loop {
	c := &Loop{Name: name, LoopVars: loopVars, InitVals: initVals, Blocking: blocking}
	c.contBase = b.arena.register(c, b.id)
	c.Body = b.arena.newBlock(c.id)
	b.addCont(c)

	return c
}

// ====== Kind / Blocks / Defined / Header ======

func (*If) Kind() ContKind        { return ContIf }
func (*Switch) Kind() ContKind    { return ContSwitch }
func (*Wait) Kind() ContKind      { return ContWait }
func (*Foreach) Kind() ContKind   { return ContForeach }
func (*RangeLoop) Kind() ContKind { return ContRangeLoop }
func (*Loop) Kind() ContKind      { return ContLoop }

func (c *If) Blocks() []*Block {
	if c.Else == nil {
		return []*Block{c.Then}
	}

	return []*Block{c.Then, c.Else}
}

func (c *Switch) Blocks() []*Block {
	out := append([]*Block(nil), c.Cases...)
	if c.Default != nil {
		out = append(out, c.Default)
	}

	return out
}

// HasDefault reports whether the switch has a default case.
func (c *Switch) HasDefault() bool { return c.Default != nil }

func (c *Wait) Blocks() []*Block      { return []*Block{c.Body} }
func (c *Foreach) Blocks() []*Block   { return []*Block{c.Body} }
func (c *RangeLoop) Blocks() []*Block { return []*Block{c.Body} }
func (c *Loop) Blocks() []*Block      { return []*Block{c.Body} }

func (*If) Defined() []*types.Var          { return nil }
func (*Switch) Defined() []*types.Var      { return nil }
func (*Wait) Defined() []*types.Var        { return nil }
func (c *RangeLoop) Defined() []*types.Var { return []*types.Var{c.LoopVar} }
func (c *Loop) Defined() []*types.Var      { return types.CloneVars(c.LoopVars) }

func (c *Foreach) Defined() []*types.Var {
	return types.FilterNulls([]*types.Var{c.Member, c.Count})
}

func (c *If) Header() []types.Arg      { return []types.Arg{c.Cond} }
func (c *Switch) Header() []types.Arg  { return []types.Arg{c.Selector} }
func (c *Foreach) Header() []types.Arg { return []types.Arg{types.VarArg(c.Array)} }
func (c *Loop) Header() []types.Arg    { return types.CloneArgs(c.InitVals) }

func (c *Wait) Header() []types.Arg {
	return withArgs(types.VarArgs(c.WaitVars), c.Priority)
}

func (c *RangeLoop) Header() []types.Arg {
	return []types.Arg{c.Start, c.End, c.Step}
}

func (c *Wait) Captures() *PassIn      { return &c.PassIn }
func (c *Foreach) Captures() *PassIn   { return &c.PassIn }
func (c *RangeLoop) Captures() *PassIn { return &c.PassIn }
func (c *Loop) Captures() *PassIn      { return &c.PassIn }

// ====== Clone ======

func (c *If) Clone(parent BlockID) Continuation {
	n := &If{Cond: c.Cond}
	n.contBase = c.arena.register(n, parent)
	n.Then = c.Then.cloneInto(n.id)

	if c.Else != nil {
		n.Else = c.Else.cloneInto(n.id)
	}

	return n
}

func (c *Switch) Clone(parent BlockID) Continuation {
	n := &Switch{Selector: c.Selector, Labels: append([]int64(nil), c.Labels...)}
	n.contBase = c.arena.register(n, parent)

	n.Cases = make([]*Block, len(c.Cases))
	for i, cb := range c.Cases {
		n.Cases[i] = cb.cloneInto(n.id)
	}

	if c.Default != nil {
		n.Default = c.Default.cloneInto(n.id)
	}

	return n
}

func (c *Wait) Clone(parent BlockID) Continuation {
	n := &Wait{
		PassIn:   c.PassIn.clone(),
		Name:     c.Name,
		WaitVars: types.CloneVars(c.WaitVars),
		Explicit: c.Explicit,
		Priority: c.Priority,
	}
	n.contBase = c.arena.register(n, parent)
	n.Body = c.Body.cloneInto(n.id)

	return n
}

func (c *Foreach) Clone(parent BlockID) Continuation {
	n := &Foreach{
		PassIn:      c.PassIn.clone(),
		Array:       c.Array,
		Member:      c.Member,
		Count:       c.Count,
		SplitDegree: c.SplitDegree,
		Sync:        c.Sync,
		ArrayClosed: c.ArrayClosed,
	}
	n.contBase = c.arena.register(n, parent)
	n.Body = c.Body.cloneInto(n.id)

	return n
}

func (c *RangeLoop) Clone(parent BlockID) Continuation {
	n := &RangeLoop{
		PassIn:        c.PassIn.clone(),
		Name:          c.Name,
		LoopVar:       c.LoopVar,
		Start:         c.Start,
		End:           c.End,
		Step:          c.Step,
		SplitDegree:   c.SplitDegree,
		Sync:          c.Sync,
		DesiredUnroll: c.DesiredUnroll,
	}
	n.contBase = c.arena.register(n, parent)
	n.Body = c.Body.cloneInto(n.id)

	return n
}

func (c *Loop) Clone(parent BlockID) Continuation {
	n := &Loop{
		PassIn:   c.PassIn.clone(),
		Name:     c.Name,
		LoopVars: types.CloneVars(c.LoopVars),
		InitVals: types.CloneArgs(c.InitVals),
		Blocking: append([]bool(nil), c.Blocking...),
	}
	n.contBase = c.arena.register(n, parent)
	n.Body = c.Body.cloneInto(n.id)

	return n
}

// ====== RenameVars ======

func renameBlocks(r types.Renames, blocks ...*Block) error {
	for _, b := range blocks {
		if b == nil {
			continue
		}

		if err := b.RenameVars(r); err != nil {
			return err
		}
	}

	return nil
}

func (c *If) RenameVars(r types.Renames) error {
	if err := renameArg(r, &c.Cond, false); err != nil {
		return err
	}

	return renameBlocks(r, c.Blocks()...)
}

func (c *Switch) RenameVars(r types.Renames) error {
	if err := renameArg(r, &c.Selector, false); err != nil {
		return err
	}

	return renameBlocks(r, c.Blocks()...)
}

func (c *Wait) RenameVars(r types.Renames) error {
	c.WaitVars = types.ReplaceVarsInList(r, c.WaitVars, true)
	c.PassIn.rename(r)

	if err := renameArg(r, &c.Priority, true); err != nil {
		return err
	}

	return c.Body.RenameVars(r)
}

func (c *Foreach) RenameVars(r types.Renames) error {
	renameVar(r, &c.Array)
	renameVar(r, &c.Member)

	if c.Count != nil {
		renameVar(r, &c.Count)
	}

	c.PassIn.rename(r)

	return c.Body.RenameVars(r)
}

func (c *RangeLoop) RenameVars(r types.Renames) error {
	renameVar(r, &c.LoopVar)

	for _, a := range []*types.Arg{&c.Start, &c.End, &c.Step} {
		if err := renameArg(r, a, false); err != nil {
			return err
		}
	}

	c.PassIn.rename(r)

	return c.Body.RenameVars(r)
}

func (c *Loop) RenameVars(r types.Renames) error {
	for i := range c.LoopVars {
		renameVar(r, &c.LoopVars[i])
	}

	if err := types.ReplaceOpargsInList(r, c.InitVals, false); err != nil {
		return err
	}

	c.PassIn.rename(r)

	return c.Body.RenameVars(r)
}
