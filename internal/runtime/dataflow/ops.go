package dataflow

import (
	"strconv"
	"strings"

	ferrors "github.com/orizon-lang/flowc/internal/errors"
	"github.com/orizon-lang/flowc/internal/types"
)

// evalOp applies a builtin operation to local values. Ints are int64 and
// floats are float64.
func evalOp(op types.Opcode, args []any) (any, error) {
	if n := op.Arity(); n >= 0 && len(args) != n {
		return nil, ferrors.Runtime("ARITY", "%s: want %d arguments, got %d", op, n, len(args))
	}

	switch op {
	case types.OpCopyInt, types.OpCopyFloat, types.OpCopyBool, types.OpCopyString:
		return args[0], nil
	case types.OpStrCat:
		var b strings.Builder
		for _, a := range args {
			b.WriteString(formatValue(a))
		}

		return b.String(), nil
	case types.OpIntToString:
		i, err := asInt(op, args[0])
		if err != nil {
			return nil, err
		}

		return strconv.FormatInt(i, 10), nil
	case types.OpIntToFloat:
		i, err := asInt(op, args[0])
		if err != nil {
			return nil, err
		}

		return float64(i), nil
	case types.OpNegateInt:
		i, err := asInt(op, args[0])
		if err != nil {
			return nil, err
		}

		return -i, nil
	case types.OpNot:
		b, err := asBool(op, args[0])
		if err != nil {
			return nil, err
		}

		return !b, nil
	case types.OpAnd, types.OpOr:
		x, err := asBool(op, args[0])
		if err != nil {
			return nil, err
		}

		y, err := asBool(op, args[1])
		if err != nil {
			return nil, err
		}

		if op == types.OpAnd {
			return x && y, nil
		}

		return x || y, nil
	}

	switch op.ResultPrim() {
	case types.PrimFloat:
		return floatOp(op, args)
	default:
		return intOp(op, args)
	}
}

func intOp(op types.Opcode, args []any) (any, error) {
	x, err := asInt(op, args[0])
	if err != nil {
		return nil, err
	}

	y, err := asInt(op, args[1])
	if err != nil {
		return nil, err
	}

	switch op {
	case types.OpPlusInt:
		return x + y, nil
	case types.OpMinusInt:
		return x - y, nil
	case types.OpMultInt:
		return x * y, nil
	case types.OpDivInt, types.OpModInt:
		if y == 0 {
			return nil, ferrors.Runtime("DIVIDE_BY_ZERO", "%s(%d, 0)", op, x)
		}

		if op == types.OpDivInt {
			return x / y, nil
		}

		return x % y, nil
	case types.OpMinInt:
		return min(x, y), nil
	case types.OpMaxInt:
		return max(x, y), nil
	case types.OpEqInt:
		return x == y, nil
	case types.OpNeqInt:
		return x != y, nil
	case types.OpLtInt:
		return x < y, nil
	case types.OpLteInt:
		return x <= y, nil
	case types.OpGtInt:
		return x > y, nil
	case types.OpGteInt:
		return x >= y, nil
	}

	return nil, ferrors.Runtime("BAD_OPCODE", "no evaluation for %s", op)
}

func floatOp(op types.Opcode, args []any) (any, error) {
	x, err := asFloat(op, args[0])
	if err != nil {
		return nil, err
	}

	y, err := asFloat(op, args[1])
	if err != nil {
		return nil, err
	}

	switch op {
	case types.OpPlusFloat:
		return x + y, nil
	case types.OpMinusFloat:
		return x - y, nil
	case types.OpMultFloat:
		return x * y, nil
	case types.OpDivFloat:
		return x / y, nil
	case types.OpMinFloat:
		return min(x, y), nil
	case types.OpMaxFloat:
		return max(x, y), nil
	}

	return nil, ferrors.Runtime("BAD_OPCODE", "no evaluation for %s", op)
}

func asInt(op types.Opcode, v any) (int64, error) {
	if i, ok := v.(int64); ok {
		return i, nil
	}

	return 0, ferrors.Runtime("BAD_OPERAND", "%s: want int, got %T", op, v)
}

func asFloat(op types.Opcode, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	}

	return 0, ferrors.Runtime("BAD_OPERAND", "%s: want float, got %T", op, v)
}

func asBool(op types.Opcode, v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	}

	return false, ferrors.Runtime("BAD_OPERAND", "%s: want bool, got %T", op, v)
}

// truthy interprets an if condition: a non-zero int or true.
func truthy(v any) (bool, error) { return asBool(types.OpInvalid, v) }

func formatValue(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case string:
		return x
	case nil:
		return "<unset>"
	default:
		return "<datum>"
	}
}

// literal returns the local value of an immediate operand.
func literal(a types.Arg) any {
	switch a.Kind() {
	case types.ArgInt:
		return a.IntLit()
	case types.ArgFloat:
		return a.FloatLit()
	case types.ArgBool:
		return a.BoolLit()
	case types.ArgString:
		return a.StringLit()
	default:
		return nil
	}
}
