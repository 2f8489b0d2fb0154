// Package backend defines the contract between async lowering and a
// renderer for the rule-triggered task engine. The lowering engine
// assumes only the ordering and argument contracts documented here; any
// renderer (the in-memory lir.Builder, a text emitter, a mock) may sit
// behind it.
//
// Scopes nest strictly. Every Start* call is closed by its matching End*
// call, and StartProc may be issued while a function or another procedure
// is open: the new procedure is emitted separately and the enclosing one
// resumes after EndProc.
package backend

import (
	"github.com/orizon-lang/flowc/internal/types"
)

//go:generate mockgen -destination=backendmock/rule_emitter.go -package=backendmock . RuleEmitter

// Rule is a deferred invocation of a procedure. It fires once, when every
// Input has been written, and calls procedure Name with Args.
type Rule struct {
	Name      string
	Inputs    []*types.Var
	Args      []types.Arg
	Priority  types.Arg
	ShareWork bool
}

// RuleEmitter is the scheduling subset of Backend: slot lifecycle, rule
// registration and deferred procedure scopes.
type RuleEmitter interface {
	// SlotCreate holds one more writer slot of a container open.
	SlotCreate(v *types.Var)
	// SlotDrop releases a writer slot; the container closes at zero.
	SlotDrop(v *types.Var)
	RegisterRule(r Rule)
	// StartProc opens a procedure invoked by rules or CallProc.
	StartProc(name string, params []*types.Var)
	EndProc()
	// CallProc invokes a procedure synchronously in the current scope.
	CallProc(name string, args []types.Arg)
}

// Window restricts a foreach to the members at sorted positions Lo..Hi
// inclusive.
type Window struct {
	Lo, Hi types.Arg
}

// Backend is the full emission interface.
type Backend interface {
	RuleEmitter

	StartFunction(name string, outputs, inputs []*types.Var)
	EndFunction()
	StartNestedBlock()
	EndNestedBlock()

	StartIf(cond types.Arg, hasElse bool)
	StartElse()
	EndIf()
	StartSwitch(sel types.Arg, labels []int64, hasDefault bool)
	// StartCase opens case i of the current switch; -1 opens the default.
	StartCase(i int)
	EndCase()
	EndSwitch()
	StartForRange(loopVar *types.Var, start, end, step types.Arg)
	EndForRange()
	// StartForeach iterates a closed array; count may be nil and window
	// may be nil for the whole array.
	StartForeach(array, member, count *types.Var, window *Window)
	EndForeach()

	Comment(text string)
	AddGlobal(v *types.Var, val types.Arg)
	Declare(v *types.Var)

	Assign(dst *types.Var, src types.Arg)
	Retrieve(dst, src *types.Var)
	Dereference(dst, src *types.Var)
	AssignRef(dst, src *types.Var)
	MakeAlias(dst, src *types.Var)
	ContainerSize(dst, container *types.Var)

	// ArrayLookupRef binds the reference dst to array[index] once index
	// is written and the member is present. arrayIsRef marks array as a
	// reference to an array.
	ArrayLookupRef(dst, array *types.Var, index types.Arg, arrayIsRef bool)
	// ArrayLookupImm binds the reference dst to array[index] for an index
	// known now, once the member is present.
	ArrayLookupImm(dst, array *types.Var, index types.Arg)
	ArrayInsert(array *types.Var, index types.Arg, member *types.Var)
	// ArrayRefInsert inserts into the array arrayRef points to. outer is
	// held open until the insert lands.
	ArrayRefInsert(arrayRef *types.Var, index types.Arg, member, outer *types.Var)
	ArrayCreateNested(dst, array *types.Var, index types.Arg)
	StructLookup(dst, st *types.Var, field string, isRef bool)
	StructInsert(st *types.Var, field string, val *types.Var)

	InitUpdateable(v *types.Var, val types.Arg)
	LatestValue(dst, src *types.Var)
	Update(target *types.Var, mode types.UpdateMode, val types.Arg)

	LocalOp(op types.Opcode, dst *types.Var, args []types.Arg)
	AsyncOp(op types.Opcode, dst *types.Var, args []types.Arg, priority types.Arg)
	// CallFunction calls a composite function once every var of blockOn
	// is written.
	CallFunction(name string, outputs []*types.Var, inputs []types.Arg,
		blockOn []*types.Var, mode types.TaskMode, priority types.Arg)
}
