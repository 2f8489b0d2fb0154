package types

import (
	"fmt"
)

// Opcode names a builtin operation. The same opcode is used for local
// operations on values and for asynchronous operations on futures.
type Opcode int

const (
	OpInvalid Opcode = iota
	OpCopyInt
	OpCopyFloat
	OpCopyBool
	OpCopyString
	OpPlusInt
	OpMinusInt
	OpMultInt
	OpDivInt
	OpModInt
	OpNegateInt
	OpMinInt
	OpMaxInt
	OpEqInt
	OpNeqInt
	OpLtInt
	OpLteInt
	OpGtInt
	OpGteInt
	OpPlusFloat
	OpMinusFloat
	OpMultFloat
	OpDivFloat
	OpMinFloat
	OpMaxFloat
	OpIntToFloat
	OpNot
	OpAnd
	OpOr
	OpStrCat
	OpIntToString
	OpTrace
)

var opNames = [...]string{
	OpInvalid:     "invalid",
	OpCopyInt:     "copy_int",
	OpCopyFloat:   "copy_float",
	OpCopyBool:    "copy_bool",
	OpCopyString:  "copy_string",
	OpPlusInt:     "plus_int",
	OpMinusInt:    "minus_int",
	OpMultInt:     "mult_int",
	OpDivInt:      "div_int",
	OpModInt:      "mod_int",
	OpNegateInt:   "negate_int",
	OpMinInt:      "min_int",
	OpMaxInt:      "max_int",
	OpEqInt:       "eq_int",
	OpNeqInt:      "neq_int",
	OpLtInt:       "lt_int",
	OpLteInt:      "lte_int",
	OpGtInt:       "gt_int",
	OpGteInt:      "gte_int",
	OpPlusFloat:   "plus_float",
	OpMinusFloat:  "minus_float",
	OpMultFloat:   "mult_float",
	OpDivFloat:    "div_float",
	OpMinFloat:    "min_float",
	OpMaxFloat:    "max_float",
	OpIntToFloat:  "int_to_float",
	OpNot:         "not",
	OpAnd:         "and",
	OpOr:          "or",
	OpStrCat:      "strcat",
	OpIntToString: "int_to_string",
	OpTrace:       "trace",
}

func (o Opcode) String() string {
	if o >= 0 && int(o) < len(opNames) {
		return opNames[o]
	}

	return fmt.Sprintf("op(%d)", int(o))
}

// ParseOpcode resolves an opcode by its printed name.
func ParseOpcode(name string) (Opcode, bool) {
	for i, n := range opNames {
		if n == name && Opcode(i) != OpInvalid {
			return Opcode(i), true
		}
	}

	return OpInvalid, false
}

// Arity returns the number of inputs op takes; -1 means variadic.
func (o Opcode) Arity() int {
	switch o {
	case OpCopyInt, OpCopyFloat, OpCopyBool, OpCopyString,
		OpNegateInt, OpIntToFloat, OpNot, OpIntToString:
		return 1
	case OpStrCat, OpTrace:
		return -1
	case OpInvalid:
		return 0
	default:
		return 2
	}
}

// HasOutput reports whether op produces a value.
func (o Opcode) HasOutput() bool { return o != OpTrace && o != OpInvalid }

// ResultPrim returns the primitive type op produces.
func (o Opcode) ResultPrim() PrimType {
	switch o {
	case OpCopyFloat, OpPlusFloat, OpMinusFloat, OpMultFloat, OpDivFloat,
		OpMinFloat, OpMaxFloat, OpIntToFloat:
		return PrimFloat
	case OpCopyBool, OpEqInt, OpNeqInt, OpLtInt, OpLteInt, OpGtInt, OpGteInt,
		OpNot, OpAnd, OpOr:
		return PrimBool
	case OpCopyString, OpStrCat, OpIntToString:
		return PrimString
	case OpTrace, OpInvalid:
		return PrimVoid
	default:
		return PrimInt
	}
}

// UpdateMode is the associative combine applied by an update.
type UpdateMode int

const (
	UpdateIncr UpdateMode = iota
	UpdateMin
	UpdateScale
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateIncr:
		return "incr"
	case UpdateMin:
		return "min"
	case UpdateScale:
		return "scale"
	default:
		return "unknown"
	}
}

// ParseUpdateMode resolves an update mode by name.
func ParseUpdateMode(s string) (UpdateMode, bool) {
	switch s {
	case "incr":
		return UpdateIncr, true
	case "min":
		return UpdateMin, true
	case "scale":
		return UpdateScale, true
	}

	return 0, false
}

// TaskMode selects how a called function is dispatched.
type TaskMode int

const (
	TaskControl TaskMode = iota // registered as a rule, may run on any worker
	TaskSync                    // invoked directly in the caller
	TaskLocal                   // runs on the caller's worker once inputs are ready
)

func (m TaskMode) String() string {
	switch m {
	case TaskSync:
		return "sync"
	case TaskLocal:
		return "local"
	default:
		return "control"
	}
}

// ParseTaskMode resolves a task mode by name; the empty string is control.
func ParseTaskMode(s string) (TaskMode, bool) {
	switch s {
	case "", "control":
		return TaskControl, true
	case "sync":
		return TaskSync, true
	case "local":
		return TaskLocal, true
	}

	return 0, false
}
