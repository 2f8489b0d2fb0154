package types

import (
	"fmt"
	"strconv"
)

// ArgKind tags the Arg union.
type ArgKind int

const (
	ArgNone ArgKind = iota // the zero Arg; stands for a missing operand
	ArgInt
	ArgFloat
	ArgBool
	ArgString
	ArgVar
)

func (k ArgKind) String() string {
	switch k {
	case ArgInt:
		return "intval"
	case ArgFloat:
		return "floatval"
	case ArgBool:
		return "boolval"
	case ArgString:
		return "stringval"
	case ArgVar:
		return "var"
	default:
		return "none"
	}
}

// Arg is an operand: an immediate or a reference to a variable.
type Arg struct {
	kind ArgKind
	i    int64
	f    float64
	b    bool
	s    string
	v    *Var
}

func IntArg(i int64) Arg     { return Arg{kind: ArgInt, i: i} }
func FloatArg(f float64) Arg { return Arg{kind: ArgFloat, f: f} }
func BoolArg(b bool) Arg     { return Arg{kind: ArgBool, b: b} }
func StringArg(s string) Arg { return Arg{kind: ArgString, s: s} }

// VarArg wraps v; a nil v yields the zero Arg.
func VarArg(v *Var) Arg {
	if v == nil {
		return Arg{}
	}

	return Arg{kind: ArgVar, v: v}
}

// VarArgs wraps every var of vars.
func VarArgs(vars []*Var) []Arg {
	out := make([]Arg, len(vars))
	for i, v := range vars {
		out[i] = VarArg(v)
	}

	return out
}

func (a Arg) Kind() ArgKind           { return a.kind }
func (a Arg) IsNone() bool            { return a.kind == ArgNone }
func (a Arg) IsVar() bool             { return a.kind == ArgVar }
func (a Arg) IsImmediate() bool       { return a.kind != ArgNone && a.kind != ArgVar }
func (a Arg) IsImmediateInt() bool    { return a.kind == ArgInt }
func (a Arg) IsImmediateFloat() bool  { return a.kind == ArgFloat }
func (a Arg) IsImmediateBool() bool   { return a.kind == ArgBool }
func (a Arg) IsImmediateString() bool { return a.kind == ArgString }
func (a Arg) Var() *Var               { return a.v }
func (a Arg) IntLit() int64           { return a.i }
func (a Arg) FloatLit() float64       { return a.f }
func (a Arg) BoolLit() bool           { return a.b }
func (a Arg) StringLit() string       { return a.s }

// Type returns the type of the operand; immediates have value types.
func (a Arg) Type() *Type {
	switch a.kind {
	case ArgInt:
		return ValueInt
	case ArgFloat:
		return ValueFloat
	case ArgBool:
		return ValueBool
	case ArgString:
		return ValueString
	case ArgVar:
		return a.v.Type()
	default:
		return nil
	}
}

// Equal compares operands; vars compare by name.
func (a Arg) Equal(o Arg) bool {
	if a.kind != o.kind {
		return false
	}

	switch a.kind {
	case ArgInt:
		return a.i == o.i
	case ArgFloat:
		return a.f == o.f
	case ArgBool:
		return a.b == o.b
	case ArgString:
		return a.s == o.s
	case ArgVar:
		return Same(a.v, o.v)
	default:
		return true
	}
}

func (a Arg) String() string {
	switch a.kind {
	case ArgInt:
		return strconv.FormatInt(a.i, 10)
	case ArgFloat:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	case ArgBool:
		return strconv.FormatBool(a.b)
	case ArgString:
		return strconv.Quote(a.s)
	case ArgVar:
		return a.v.Name()
	default:
		return "<none>"
	}
}

// GoString helps test failure output.
func (a Arg) GoString() string { return fmt.Sprintf("Arg(%s:%s)", a.kind, a) }
