package types

import (
	"fmt"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
)

// Renames maps a variable name to its replacement operand.
type Renames map[string]Arg

// Put records that v is replaced by a.
func (r Renames) Put(v *Var, a Arg) { r[v.Name()] = a }

// Lookup returns the replacement for v, if any.
func (r Renames) Lookup(v *Var) (Arg, bool) {
	if v == nil {
		return Arg{}, false
	}

	a, ok := r[v.Name()]

	return a, ok
}

// ReplaceVarsInList rewrites vars in place and returns the resulting
// slice, which shares the backing array of vars. A var mapped to another
// var is substituted; a var mapped to an immediate is left alone because a
// var-list slot cannot hold an immediate. With removeDupes the first
// occurrence of each resulting var is kept and later ones are dropped.
func ReplaceVarsInList(renames Renames, vars []*Var, removeDupes bool) []*Var {
	var seen map[string]bool
	if removeDupes {
		seen = make(map[string]bool, len(vars))
	}

	out := vars[:0]

	for _, v := range vars {
		if a, ok := renames.Lookup(v); ok && a.IsVar() {
			v = a.Var()
		}

		if removeDupes {
			if seen[v.Name()] {
				continue
			}

			seen[v.Name()] = true
		}

		out = append(out, v)
	}

	clear(vars[len(out):])

	return out
}

// ReplaceOpargsInList substitutes var operands of args in place. A zero
// Arg is a construction bug upstream unless nullsOK is set.
func ReplaceOpargsInList(renames Renames, args []Arg, nullsOK bool) error {
	if len(renames) == 0 {
		return nil
	}

	for i, a := range args {
		if a.IsNone() {
			if nullsOK {
				continue
			}

			err := ferrors.NilArg("rename", i)
			err.Context["list"] = fmt.Sprint(args)

			return err
		}

		if a.IsVar() {
			if repl, ok := renames.Lookup(a.Var()); ok {
				args[i] = repl
			}
		}
	}

	return nil
}

// ReplaceOparg returns the replacement of a if a is a renamed var, a
// otherwise.
func ReplaceOparg(renames Renames, a Arg, nullsOK bool) (Arg, error) {
	if a.IsNone() {
		if nullsOK {
			return a, nil
		}

		return a, ferrors.Internal("rename", "null operand")
	}

	if a.IsVar() {
		if repl, ok := renames.Lookup(a.Var()); ok {
			if repl.IsNone() {
				err := ferrors.Internal("rename", "%s maps to a null arg", a.Var().Name())
				err.Context["var"] = a.Var().Name()

				return a, err
			}

			return repl, nil
		}
	}

	return a, nil
}

// ReplaceVar returns the var that v is renamed to, or v.
func ReplaceVar(renames Renames, v *Var) *Var {
	if a, ok := renames.Lookup(v); ok && a.IsVar() {
		return a.Var()
	}

	return v
}

// RemoveDuplicates drops repeated vars, keeping first occurrences.
func RemoveDuplicates(vars []*Var) []*Var {
	seen := make(map[string]bool, len(vars))
	out := vars[:0]

	for _, v := range vars {
		if seen[v.Name()] {
			continue
		}

		seen[v.Name()] = true
		out = append(out, v)
	}

	clear(vars[len(out):])

	return out
}

// Remove drops every occurrence of v from vars.
func Remove(vars []*Var, v *Var) []*Var {
	out := vars[:0]

	for _, x := range vars {
		if !Same(x, v) {
			out = append(out, x)
		}
	}

	clear(vars[len(out):])

	return out
}

// FilterNulls returns the non-nil vars of vars.
func FilterNulls(vars []*Var) []*Var {
	res := make([]*Var, 0, len(vars))

	for _, v := range vars {
		if v != nil {
			res = append(res, v)
		}
	}

	return res
}

// Contains reports whether v occurs in vars.
func Contains(vars []*Var, v *Var) bool {
	for _, x := range vars {
		if Same(x, v) {
			return true
		}
	}

	return false
}

// AppendMissing appends to dst every var of src not already present,
// preserving order. dst is not aliased by the result.
func AppendMissing(dst []*Var, src ...*Var) []*Var {
	out := make([]*Var, 0, len(dst)+len(src))
	seen := make(map[string]bool, len(dst)+len(src))

	for _, v := range dst {
		if !seen[v.Name()] {
			seen[v.Name()] = true
			out = append(out, v)
		}
	}

	for _, v := range src {
		if !seen[v.Name()] {
			seen[v.Name()] = true
			out = append(out, v)
		}
	}

	return out
}

// CloneVars returns a shallow copy of vars; Vars themselves are immutable.
func CloneVars(vars []*Var) []*Var {
	if vars == nil {
		return nil
	}

	return append([]*Var(nil), vars...)
}

// CloneArgs returns a copy of args.
func CloneArgs(args []Arg) []Arg {
	if args == nil {
		return nil
	}

	return append([]Arg(nil), args...)
}

// ExtractVars returns the var operands of args, ignoring immediates.
func ExtractVars(args []Arg) []*Var {
	res := make([]*Var, 0, len(args))

	for _, a := range args {
		if a.IsVar() {
			res = append(res, a.Var())
		}
	}

	return res
}

// FilterBlockingOnly returns the vars a reader has to block on: scalar
// futures, references and arrays.
func FilterBlockingOnly(vars []*Var) []*Var {
	res := make([]*Var, 0, len(vars))

	for _, v := range vars {
		t := v.Type()
		if IsScalarFuture(t) || IsRef(t) || IsArray(t) {
			res = append(res, v)
		}
	}

	return res
}
