package mir

import (
	"github.com/orizon-lang/flowc/internal/types"
)

// varSet is an insertion-ordered set of variables keyed by name.
type varSet struct {
	vars []*types.Var
	idx  map[string]bool
}

func (s *varSet) add(v *types.Var) {
	if v == nil || v.IsGlobalConst() {
		return
	}

	if s.idx == nil {
		s.idx = make(map[string]bool)
	}

	if s.idx[v.Name()] {
		return
	}

	s.idx[v.Name()] = true
	s.vars = append(s.vars, v)
}

func (s *varSet) addAll(vs []*types.Var) {
	for _, v := range vs {
		s.add(v)
	}
}

func (s *varSet) remove(vs ...*types.Var) {
	for _, v := range vs {
		if v == nil || !s.idx[v.Name()] {
			continue
		}

		delete(s.idx, v.Name())
		s.vars = types.Remove(s.vars, v)
	}
}

// usage is the free-variable summary of a subtree.
type usage struct {
	used    varSet
	written varSet
}

func (u *usage) instruction(in Instruction) {
	u.used.addAll(types.ExtractVars(in.Reads()))

	for _, v := range in.Writes() {
		u.used.add(v)
		u.written.add(v)
	}
}

func (u *usage) merge(o *usage) {
	u.used.addAll(o.used.vars)
	u.written.addAll(o.written.vars)
}

// ComputePassIn fills the capture information of every async
// continuation in every function of p.
func ComputePassIn(p *Program) {
	for _, f := range p.Functions {
		ComputeFunctionPassIn(f)
	}
}

// ComputeFunctionPassIn fills the capture information of every async
// continuation of f whose pass-in is not fixed. UsedVars become the free
// variables of the construct, global constants excluded. KeepOpen becomes
// the write-refcounted containers written inside the construct and
// declared outside it.
func ComputeFunctionPassIn(f *Function) {
	blockUsage(f.Body)
}

func blockUsage(b *Block) *usage {
	u := &usage{}

	for _, s := range b.Stmts {
		switch s := s.(type) {
		case Instruction:
			u.instruction(s)
		case Continuation:
			u.merge(contUsage(s))
		}
	}

	for _, c := range b.Cleanups {
		u.instruction(c.Action)
	}

	u.used.remove(b.Vars...)
	u.written.remove(b.Vars...)

	return u
}

func contUsage(c Continuation) *usage {
	inner := &usage{}

	for _, child := range c.Blocks() {
		inner.merge(blockUsage(child))
	}

	inner.used.remove(c.Defined()...)
	inner.written.remove(c.Defined()...)

	if a, ok := c.(Async); ok {
		if pi := a.Captures(); !pi.Fixed {
			pi.UsedVars = types.CloneVars(inner.used.vars)
			pi.KeepOpen = types.FilterWriteRefcount(inner.written.vars)
		}
	}

	u := &usage{}
	u.used.addAll(types.ExtractVars(c.Header()))
	u.merge(inner)

	return u
}
