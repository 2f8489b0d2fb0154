// Package types models the variables, operands and types that the
// lowering engine manipulates, together with the refcount policy that
// decides which variables need lifecycle tracking on the target engine.
package types

import (
	"strings"
)

// Kind is the storage capability of a type.
type Kind int

const (
	KindValue      Kind = iota // local value, immediately available
	KindFuture                 // single-assignment, written asynchronously
	KindRef                    // alias to the storage location of another datum
	KindArray                  // index -> future mapping with a closed state
	KindStruct                 // fixed field -> future mapping
	KindUpdateable             // multiply-written scalar with an associative combine
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindFuture:
		return "future"
	case KindRef:
		return "ref"
	case KindArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindUpdateable:
		return "updateable"
	default:
		return "unknown"
	}
}

// PrimType is the primitive payload of a scalar type.
type PrimType int

const (
	PrimNone PrimType = iota
	PrimInt
	PrimFloat
	PrimBool
	PrimString
	PrimBlob
	PrimVoid
	PrimFile
)

var primNames = map[PrimType]string{
	PrimInt:    "int",
	PrimFloat:  "float",
	PrimBool:   "bool",
	PrimString: "string",
	PrimBlob:   "blob",
	PrimVoid:   "void",
	PrimFile:   "file",
}

func (p PrimType) String() string {
	if s, ok := primNames[p]; ok {
		return s
	}

	return "none"
}

// Field is a named struct member.
type Field struct {
	Name string
	Type *Type
}

// Type describes the capabilities of a variable. Types are treated as
// immutable values once constructed.
type Type struct {
	Kind   Kind
	Prim   PrimType // scalar kinds only
	Member *Type    // referenced type for refs, member type for arrays
	Name   string   // struct name
	Fields []Field  // struct fields in declaration order
}

// Common scalar types.
var (
	ValueInt        = Value(PrimInt)
	ValueFloat      = Value(PrimFloat)
	ValueBool       = Value(PrimBool)
	ValueString     = Value(PrimString)
	FutureInt       = Future(PrimInt)
	FutureFloat     = Future(PrimFloat)
	FutureBool      = Future(PrimBool)
	FutureString    = Future(PrimString)
	FutureBlob      = Future(PrimBlob)
	FutureFile      = Future(PrimFile)
	UpdateableFloat = Updateable(PrimFloat)
)

// Value returns the local value type for p.
func Value(p PrimType) *Type { return &Type{Kind: KindValue, Prim: p} }

// Future returns the single-assignment future type for p.
func Future(p PrimType) *Type { return &Type{Kind: KindFuture, Prim: p} }

// Updateable returns the updateable scalar type for p.
func Updateable(p PrimType) *Type { return &Type{Kind: KindUpdateable, Prim: p} }

// RefTo returns a reference to t.
func RefTo(t *Type) *Type { return &Type{Kind: KindRef, Member: t} }

// ArrayOf returns an array with members of type member.
func ArrayOf(member *Type) *Type { return &Type{Kind: KindArray, Member: member} }

// StructOf returns a named struct type.
func StructOf(name string, fields ...Field) *Type {
	return &Type{Kind: KindStruct, Name: name, Fields: fields}
}

// Equal reports structural equality. Structs compare by name.
func (t *Type) Equal(o *Type) bool {
	if t == nil || o == nil {
		return t == o
	}

	if t.Kind != o.Kind {
		return false
	}

	switch t.Kind {
	case KindRef, KindArray:
		return t.Member.Equal(o.Member)
	case KindStruct:
		return t.Name == o.Name
	default:
		return t.Prim == o.Prim
	}
}

// FieldType returns the type of the named struct field.
func (t *Type) FieldType(name string) (*Type, bool) {
	if t == nil || t.Kind != KindStruct {
		return nil, false
	}

	for _, f := range t.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}

	return nil, false
}

// String renders the type in the notation accepted by ParseType.
func (t *Type) String() string {
	if t == nil {
		return "<nil-type>"
	}

	switch t.Kind {
	case KindValue:
		return "$" + t.Prim.String()
	case KindFuture:
		return t.Prim.String()
	case KindUpdateable:
		return "updateable_" + t.Prim.String()
	case KindRef:
		return "&" + t.Member.String()
	case KindArray:
		return t.Member.String() + "[]"
	case KindStruct:
		return t.Name
	default:
		return "<invalid-type>"
	}
}

// Describe renders a struct type with its fields, other types as String.
func (t *Type) Describe() string {
	if t == nil || t.Kind != KindStruct {
		return t.String()
	}

	var b strings.Builder

	b.WriteString("struct ")
	b.WriteString(t.Name)
	b.WriteString(" {")

	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Type.String())
	}

	b.WriteString("}")

	return b.String()
}

// ====== Capability predicates ======

func IsScalarValue(t *Type) bool      { return t != nil && t.Kind == KindValue }
func IsScalarFuture(t *Type) bool     { return t != nil && t.Kind == KindFuture }
func IsScalarUpdateable(t *Type) bool { return t != nil && t.Kind == KindUpdateable }
func IsRef(t *Type) bool              { return t != nil && t.Kind == KindRef }
func IsArray(t *Type) bool            { return t != nil && t.Kind == KindArray }
func IsStruct(t *Type) bool           { return t != nil && t.Kind == KindStruct }

// IsArrayRef reports whether t is a reference to an array.
func IsArrayRef(t *Type) bool { return IsRef(t) && IsArray(t.Member) }

// IsStructRef reports whether t is a reference to a struct.
func IsStructRef(t *Type) bool { return IsRef(t) && IsStruct(t.Member) }

// IsContainer reports whether t tracks writers: arrays and structs.
func IsContainer(t *Type) bool { return IsArray(t) || IsStruct(t) }

// IsRefTo reports whether ref is a reference to exactly target.
func IsRefTo(ref, target *Type) bool { return IsRef(ref) && ref.Member.Equal(target) }

// IsFile reports whether t is a file future.
func IsFile(t *Type) bool { return IsScalarFuture(t) && t.Prim == PrimFile }

// IsMappable reports whether a variable of type t may carry a mapping.
func IsMappable(t *Type) bool { return IsFile(t) || IsArray(t) }

// ArrayMemberType returns the member type of an array or array reference.
func ArrayMemberType(t *Type) *Type {
	switch {
	case IsArray(t):
		return t.Member
	case IsArrayRef(t):
		return t.Member.Member
	default:
		return nil
	}
}

// UpdateableAsFuture returns the future type an update expression must
// produce for the updateable t.
func UpdateableAsFuture(t *Type) *Type {
	if !IsScalarUpdateable(t) {
		return nil
	}

	return Future(t.Prim)
}

// ValueOf returns the local value type matching a scalar future or
// updateable, nil otherwise.
func ValueOf(t *Type) *Type {
	if IsScalarFuture(t) || IsScalarUpdateable(t) {
		return Value(t.Prim)
	}

	return nil
}
