package types

import (
	"fmt"
	"strings"
)

var primByName = map[string]PrimType{
	"int":    PrimInt,
	"float":  PrimFloat,
	"bool":   PrimBool,
	"string": PrimString,
	"blob":   PrimBlob,
	"void":   PrimVoid,
	"file":   PrimFile,
}

// ParsePrim returns the primitive type with the given name.
func ParsePrim(name string) (PrimType, bool) {
	p, ok := primByName[name]

	return p, ok
}

// ParseType parses the textual type notation produced by Type.String.
// Struct names are resolved through structs, which may be nil.
func ParseType(s string, structs map[string]*Type) (*Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty type")
	}

	switch {
	case strings.HasPrefix(s, "&"):
		inner, err := ParseType(s[1:], structs)
		if err != nil {
			return nil, err
		}

		return RefTo(inner), nil
	case strings.HasSuffix(s, "[]"):
		inner, err := ParseType(strings.TrimSuffix(s, "[]"), structs)
		if err != nil {
			return nil, err
		}

		return ArrayOf(inner), nil
	case strings.HasPrefix(s, "$"):
		p, ok := ParsePrim(s[1:])
		if !ok {
			return nil, fmt.Errorf("unknown value type %q", s)
		}

		return Value(p), nil
	case strings.HasPrefix(s, "updateable_"):
		p, ok := ParsePrim(strings.TrimPrefix(s, "updateable_"))
		if !ok {
			return nil, fmt.Errorf("unknown updateable type %q", s)
		}

		return Updateable(p), nil
	}

	if p, ok := ParsePrim(s); ok {
		return Future(p), nil
	}

	if st, ok := structs[s]; ok {
		return st, nil
	}

	return nil, fmt.Errorf("unknown type %q", s)
}
