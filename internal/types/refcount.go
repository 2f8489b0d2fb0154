package types

// RefcountKind distinguishes reader and writer lifecycle tracking.
type RefcountKind int

const (
	ReadRefcount RefcountKind = iota
	WriteRefcount
)

func (k RefcountKind) String() string {
	if k == WriteRefcount {
		return "write"
	}

	return "read"
}

// HasReadRefcount reports whether readers of v must be counted: anything
// produced asynchronously that consumers may still await. Scalar values
// are already materialised and global constants are never awaited.
func HasReadRefcount(v *Var) bool {
	if IsScalarValue(v.Type()) {
		return false
	}

	if v.DefType() == DefGlobalConst {
		return false
	}

	return true
}

// HasWriteRefcount reports whether writers of v must be counted. Only
// arrays are populated incrementally by many writers and need their
// closed state detected.
func HasWriteRefcount(v *Var) bool {
	return IsArray(v.Type()) && v.DefType() != DefGlobalConst
}

// HasRefcount dispatches to the predicate for kind. The predicates are
// independent and neither is derived from the other.
func HasRefcount(v *Var, kind RefcountKind) bool {
	if kind == WriteRefcount {
		return HasWriteRefcount(v)
	}

	return HasReadRefcount(v)
}

// FilterWriteRefcount returns, in order, the vars whose writers are
// tracked. vars is not modified.
func FilterWriteRefcount(vars []*Var) []*Var {
	res := make([]*Var, 0, len(vars))

	for _, v := range vars {
		if HasWriteRefcount(v) {
			res = append(res, v)
		}
	}

	return res
}
