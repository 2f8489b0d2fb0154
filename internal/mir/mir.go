// Package mir defines the mid-level IR consumed by async lowering.
// A function body is a tree of Blocks. Each Block holds instructions
// interleaved with Continuations (the asynchronous and branching
// constructs), and each Continuation exclusively owns its child Blocks.
// Nodes are allocated from an Arena; back-references from a node to its
// owner are arena handles rather than pointers so that cloning never
// leaves a reference into the original tree.
package mir

import (
	"github.com/orizon-lang/flowc/internal/types"
)

// Program is a compilation unit of MIR.
type Program struct {
	Name      string
	Arena     *Arena
	Structs   []*types.Type
	Globals   []Global
	Functions []*Function
}

// Global is a compile-time constant visible in every function.
type Global struct {
	Var *types.Var
	Val types.Arg
}

// Function is a composite function with a body tree.
type Function struct {
	Name    string
	Outputs []*types.Var
	Inputs  []*types.Var
	Mode    types.TaskMode
	Body    *Block
}

// NewProgram returns an empty program with its own arena.
func NewProgram(name string) *Program {
	return &Program{Name: name, Arena: NewArena()}
}

// NewFunction appends a function with an empty body.
func (p *Program) NewFunction(name string, outputs, inputs []*types.Var) *Function {
	f := &Function{
		Name:    name,
		Outputs: outputs,
		Inputs:  inputs,
		Body:    p.Arena.newBlock(NoCont),
	}
	p.Functions = append(p.Functions, f)

	return f
}

// AddGlobal declares a global constant with value val.
func (p *Program) AddGlobal(v *types.Var, val types.Arg) {
	p.Globals = append(p.Globals, Global{Var: v, Val: val})
}

// Clone deep-copies every function body. The copies live in p's arena,
// so the original tree is left untouched.
func (p *Program) Clone() *Program {
	np := &Program{
		Name:    p.Name,
		Arena:   p.Arena,
		Structs: append([]*types.Type(nil), p.Structs...),
		Globals: append([]Global(nil), p.Globals...),
	}

	for _, f := range p.Functions {
		np.Functions = append(np.Functions, &Function{
			Name:    f.Name,
			Outputs: types.CloneVars(f.Outputs),
			Inputs:  types.CloneVars(f.Inputs),
			Mode:    f.Mode,
			Body:    f.Body.Clone(),
		})
	}

	return np
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*Function, bool) {
	for _, f := range p.Functions {
		if f.Name == name {
			return f, true
		}
	}

	return nil, false
}

// BlockID is an arena handle for a Block.
type BlockID int32

// ContID is an arena handle for a Continuation.
type ContID int32

const (
	NoBlock BlockID = -1
	NoCont  ContID  = -1
)

// Arena owns every node of a program and resolves handles.
type Arena struct {
	blocks []*Block
	conts  []Continuation
}

// NewArena returns an empty arena.
func NewArena() *Arena { return &Arena{} }

// Block resolves a block handle; it returns nil for an unknown handle.
func (a *Arena) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(a.blocks) {
		return nil
	}

	return a.blocks[id]
}

// Continuation resolves a continuation handle.
func (a *Arena) Continuation(id ContID) Continuation {
	if id < 0 || int(id) >= len(a.conts) {
		return nil
	}

	return a.conts[id]
}

// NewDetachedBlock allocates a block with no owner, for passes that build
// a body before attaching it with Continuation cloning or inlining.
func (a *Arena) NewDetachedBlock() *Block { return a.newBlock(NoCont) }

func (a *Arena) newBlock(parent ContID) *Block {
	b := &Block{arena: a, id: BlockID(len(a.blocks)), parent: parent}
	a.blocks = append(a.blocks, b)

	return b
}

func (a *Arena) register(c Continuation, parent BlockID) contBase {
	base := contBase{arena: a, id: ContID(len(a.conts)), parent: parent}
	a.conts = append(a.conts, c)

	return base
}

// Stmt is implemented by Instructions and Continuations.
type Stmt interface{ isStmt() }

// Instruction is a straight-line operation.
type Instruction interface {
	Stmt
	// OpName names the operation.
	OpName() string
	// Reads returns the operands read.
	Reads() []types.Arg
	// Writes returns the variables (or containers) written.
	Writes() []*types.Var
	// Clone returns a deep copy.
	Clone() Instruction
	// RenameVars substitutes variables in place.
	RenameVars(r types.Renames) error
	String() string
}

// CleanupAction is an instruction run on block exit on behalf of Var.
type CleanupAction struct {
	Var    *types.Var
	Action Instruction
}

// Clone deep-copies the action.
func (c CleanupAction) Clone() CleanupAction {
	return CleanupAction{Var: c.Var, Action: c.Action.Clone()}
}

// Block owns an ordered statement sequence, the variables declared in it
// and the cleanup actions run when it exits.
type Block struct {
	arena  *Arena
	id     BlockID
	parent ContID

	Vars     []*types.Var
	Stmts    []Stmt
	Cleanups []CleanupAction
}

func (b *Block) ID() BlockID    { return b.id }
func (b *Block) Parent() ContID { return b.parent }
func (b *Block) Arena() *Arena  { return b.arena }

// ParentContinuation resolves the owning continuation, nil for a
// function body or a detached block.
func (b *Block) ParentContinuation() Continuation { return b.arena.Continuation(b.parent) }

// Declare adds v to the block. Stack arrays get a close registered as a
// cleanup so the declaring scope releases its writer slot on exit.
func (b *Block) Declare(v *types.Var) {
	b.Vars = append(b.Vars, v)

	if v.Storage() == types.StorageStack && types.HasWriteRefcount(v) {
		b.Cleanups = append(b.Cleanups, CleanupAction{Var: v, Action: &CloseContainer{Container: v}})
	}
}

// Add appends instructions.
func (b *Block) Add(insts ...Instruction) {
	for _, in := range insts {
		b.Stmts = append(b.Stmts, in)
	}
}

// AddCleanup registers an action run on block exit.
func (b *Block) AddCleanup(v *types.Var, action Instruction) {
	b.Cleanups = append(b.Cleanups, CleanupAction{Var: v, Action: action})
}

// AddClone appends a deep copy of c owned by b.
func (b *Block) AddClone(c Continuation) Continuation {
	cc := c.Clone(b.id)
	b.Stmts = append(b.Stmts, cc)

	return cc
}

// Instructions returns the instructions of b in order, skipping
// continuations.
func (b *Block) Instructions() []Instruction {
	var out []Instruction

	for _, s := range b.Stmts {
		if in, ok := s.(Instruction); ok {
			out = append(out, in)
		}
	}

	return out
}

// Continuations returns the continuations of b in order.
func (b *Block) Continuations() []Continuation {
	var out []Continuation

	for _, s := range b.Stmts {
		if c, ok := s.(Continuation); ok {
			out = append(out, c)
		}
	}

	return out
}

// Clone deep-copies b. The copy keeps b's owner handle; nested
// continuations of the copy are owned by the copy.
func (b *Block) Clone() *Block { return b.cloneInto(b.parent) }

func (b *Block) cloneInto(parent ContID) *Block {
	nb := b.arena.newBlock(parent)
	nb.Vars = types.CloneVars(b.Vars)

	if len(b.Stmts) > 0 {
		nb.Stmts = make([]Stmt, len(b.Stmts))
	}

	for i, s := range b.Stmts {
		switch s := s.(type) {
		case Instruction:
			nb.Stmts[i] = s.Clone()
		case Continuation:
			nb.Stmts[i] = s.Clone(nb.id)
		}
	}

	if len(b.Cleanups) > 0 {
		nb.Cleanups = make([]CleanupAction, len(b.Cleanups))
		for i, c := range b.Cleanups {
			nb.Cleanups[i] = c.Clone()
		}
	}

	return nb
}

// RenameVars substitutes variables throughout the subtree rooted at b.
func (b *Block) RenameVars(r types.Renames) error {
	if len(r) == 0 {
		return nil
	}

	b.Vars = types.ReplaceVarsInList(r, b.Vars, true)

	for _, s := range b.Stmts {
		var err error

		switch s := s.(type) {
		case Instruction:
			err = s.RenameVars(r)
		case Continuation:
			err = s.RenameVars(r)
		}

		if err != nil {
			return err
		}
	}

	for i := range b.Cleanups {
		b.Cleanups[i].Var = types.ReplaceVar(r, b.Cleanups[i].Var)
		if err := b.Cleanups[i].Action.RenameVars(r); err != nil {
			return err
		}
	}

	return nil
}

// Walk calls fn for every block of the subtree in pre-order. Returning
// false from fn skips the block's children.
func (b *Block) Walk(fn func(*Block) bool) {
	if !fn(b) {
		return
	}

	for _, c := range b.Continuations() {
		for _, child := range c.Blocks() {
			child.Walk(fn)
		}
	}
}
