package types

import (
	"fmt"
)

// Storage is where the target engine keeps a variable.
type Storage int

const (
	StorageLocal       Storage = iota // local value in the current procedure
	StorageAlias                      // bound to storage owned by another datum
	StorageStack                      // allocated datum registered in the stack frame
	StorageGlobalConst                // compile-time constant, global scope
)

func (s Storage) String() string {
	switch s {
	case StorageLocal:
		return "local"
	case StorageAlias:
		return "alias"
	case StorageStack:
		return "stack"
	case StorageGlobalConst:
		return "global_const"
	default:
		return "unknown"
	}
}

// DefType is how a variable came to be defined.
type DefType int

const (
	DefLocalUser DefType = iota
	DefLocalCompiler
	DefInArg
	DefOutArg
	DefGlobalConst
)

func (d DefType) String() string {
	switch d {
	case DefLocalUser:
		return "local_user"
	case DefLocalCompiler:
		return "local_compiler"
	case DefInArg:
		return "inarg"
	case DefOutArg:
		return "outarg"
	case DefGlobalConst:
		return "global_const"
	default:
		return "unknown"
	}
}

// Var is a named, typed variable. Identity is by name: two Vars with the
// same name denote the same variable. Vars are immutable once declared.
type Var struct {
	name    string
	typ     *Type
	storage Storage
	defType DefType
	mapping *Var
}

// NewVar declares a variable.
func NewVar(name string, t *Type, storage Storage, defType DefType) *Var {
	return &Var{name: name, typ: t, storage: storage, defType: defType}
}

// NewMappedVar declares a variable bound to an external mapping (for
// example the filename of a file future).
func NewMappedVar(name string, t *Type, storage Storage, defType DefType, mapping *Var) *Var {
	return &Var{name: name, typ: t, storage: storage, defType: defType, mapping: mapping}
}

// NewGlobalConst declares a compile-time global constant.
func NewGlobalConst(name string, t *Type) *Var {
	return NewVar(name, t, StorageGlobalConst, DefGlobalConst)
}

func (v *Var) Name() string     { return v.name }
func (v *Var) Type() *Type      { return v.typ }
func (v *Var) Storage() Storage { return v.storage }
func (v *Var) DefType() DefType { return v.defType }
func (v *Var) Mapping() *Var    { return v.mapping }
func (v *Var) String() string   { return v.name }

// Describe renders the variable with its type and storage for diagnostics.
func (v *Var) Describe() string {
	return fmt.Sprintf("%s %s (%s, %s)", v.typ, v.name, v.storage, v.defType)
}

// IsGlobalConst reports whether v is a compile-time global constant.
func (v *Var) IsGlobalConst() bool { return v.defType == DefGlobalConst }

// Same reports whether a and b denote the same variable.
func Same(a, b *Var) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.name == b.name
}

// NameList returns the names of vars in order.
func NameList(vars []*Var) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.name
	}

	return out
}
