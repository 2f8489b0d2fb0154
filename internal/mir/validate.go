package mir

import (
	"github.com/orizon-lang/flowc/internal/types"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// Validate checks the structural invariants of every function of p:
// arena handles agree with the tree, loop control appears only inside a
// loop with matching arity, and every referenced variable is in scope.
func Validate(p *Program) error {
	globals := make(map[string]bool, len(p.Globals))
	for _, g := range p.Globals {
		globals[g.Var.Name()] = true
	}

	for _, f := range p.Functions {
		if err := ValidateFunction(f, globals); err != nil {
			return err
		}
	}

	return nil
}

type scope struct {
	parent *scope
	names  map[string]bool
}

func (s *scope) child(vars []*types.Var) *scope {
	c := &scope{parent: s, names: make(map[string]bool, len(vars))}
	for _, v := range vars {
		c.names[v.Name()] = true
	}

	return c
}

func (s *scope) has(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.names[name] {
			return true
		}
	}

	return false
}

type validator struct {
	fn    *Function
	loops []*Loop
}

// ValidateFunction checks f; globals names the program's constants.
func ValidateFunction(f *Function, globals map[string]bool) error {
	if f.Body == nil {
		return ferrors.Internal(f.Name, "function has no body")
	}

	if f.Body.Parent() != NoCont {
		return ferrors.Internal(f.Name, "function body is owned by continuation %d", f.Body.Parent())
	}

	root := &scope{names: globals}
	root = root.child(append(types.CloneVars(f.Outputs), f.Inputs...))

	v := &validator{fn: f}

	return v.block(f.Body, root)
}

func (v *validator) block(b *Block, sc *scope) error {
	if b.arena.Block(b.id) != b {
		return ferrors.Internal(v.fn.Name, "block %d is not registered in its arena", b.id)
	}

	sc = sc.child(b.Vars)

	for _, s := range b.Stmts {
		switch s := s.(type) {
		case Instruction:
			if err := v.instruction(s, sc); err != nil {
				return err
			}
		case Continuation:
			if err := v.continuation(s, b, sc); err != nil {
				return err
			}
		default:
			return ferrors.Internal(v.fn.Name, "unknown statement %T", s)
		}
	}

	for _, c := range b.Cleanups {
		if err := v.instruction(c.Action, sc); err != nil {
			return err
		}
	}

	return nil
}

func (v *validator) checkVars(construct string, vars []*types.Var, sc *scope) error {
	for _, x := range vars {
		if x == nil {
			continue
		}

		if !sc.has(x.Name()) {
			return ferrors.MissingVar(v.fn.Name+": "+construct, x.Name())
		}
	}

	return nil
}

func (v *validator) instruction(in Instruction, sc *scope) error {
	if err := v.checkVars(in.OpName(), types.ExtractVars(in.Reads()), sc); err != nil {
		return err
	}

	if err := v.checkVars(in.OpName(), in.Writes(), sc); err != nil {
		return err
	}

	switch in := in.(type) {
	case *LoopContinue:
		if len(v.loops) == 0 {
			return ferrors.Internal(v.fn.Name, "continue outside of a loop")
		}

		loop := v.loops[len(v.loops)-1]
		if len(in.NewVals) != len(loop.LoopVars) {
			return ferrors.ArityMismatch(loop.Name, "continue values", len(loop.LoopVars), len(in.NewVals))
		}

		if len(in.Blocking) != len(in.NewVals) {
			return ferrors.ArityMismatch(loop.Name, "continue blocking flags", len(in.NewVals), len(in.Blocking))
		}
	case *LoopBreak:
		if len(v.loops) == 0 {
			return ferrors.Internal(v.fn.Name, "break outside of a loop")
		}
	}

	return nil
}

func (v *validator) continuation(c Continuation, owner *Block, sc *scope) error {
	if c.Parent() != owner.id {
		return ferrors.Internal(v.fn.Name, "%s continuation %d is owned by block %d but found in block %d",
			c.Kind(), c.ID(), c.Parent(), owner.id)
	}

	if owner.arena.Continuation(c.ID()) != c {
		return ferrors.Internal(v.fn.Name, "%s continuation %d is not registered in its arena", c.Kind(), c.ID())
	}

	if err := v.checkVars(c.Kind().String(), types.ExtractVars(c.Header()), sc); err != nil {
		return err
	}

	if a, ok := c.(Async); ok {
		pi := a.Captures()
		if err := v.checkVars(c.Kind().String()+" pass-in", pi.UsedVars, sc); err != nil {
			return err
		}

		if err := v.checkVars(c.Kind().String()+" keep-open", pi.KeepOpen, sc); err != nil {
			return err
		}
	}

	if loop, ok := c.(*Loop); ok {
		if len(loop.InitVals) != len(loop.LoopVars) {
			return ferrors.ArityMismatch(loop.Name, "initial values", len(loop.LoopVars), len(loop.InitVals))
		}

		if len(loop.Blocking) != len(loop.LoopVars) {
			return ferrors.ArityMismatch(loop.Name, "blocking flags", len(loop.LoopVars), len(loop.Blocking))
		}

		v.loops = append(v.loops, loop)
		defer func() { v.loops = v.loops[:len(v.loops)-1] }()
	}

	inner := sc.child(c.Defined())

	for _, b := range c.Blocks() {
		if b.Parent() != c.ID() {
			return ferrors.Internal(v.fn.Name, "block %d of %s continuation %d has parent %d",
				b.ID(), c.Kind(), c.ID(), b.Parent())
		}

		if err := v.block(b, inner); err != nil {
			return err
		}
	}

	return nil
}
