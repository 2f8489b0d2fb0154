package codegen

import (
	"github.com/orizon-lang/flowc/internal/types"
)

// BuiltinFunctions lists the functions provided by the task engine. A call
// to one of these names needs no function definition in the program.
var BuiltinFunctions = map[string]BuiltinFunction{
	"trace": {
		Name:     "trace",
		Variadic: true,
	},
	"copy_int": {
		Name:    "copy_int",
		Outputs: []*types.Type{types.FutureInt},
		Inputs:  []*types.Type{types.FutureInt},
	},
	"copy_float": {
		Name:    "copy_float",
		Outputs: []*types.Type{types.FutureFloat},
		Inputs:  []*types.Type{types.FutureFloat},
	},
	"copy_string": {
		Name:    "copy_string",
		Outputs: []*types.Type{types.FutureString},
		Inputs:  []*types.Type{types.FutureString},
	},
}

// BuiltinFunction represents a built-in function definition.
type BuiltinFunction struct {
	Name    string
	Outputs []*types.Type
	Inputs  []*types.Type
	// Variadic functions accept any number of scalar inputs.
	Variadic bool
}

// IsBuiltinFunction checks if a function name is a built-in function.
func IsBuiltinFunction(name string) bool {
	_, exists := BuiltinFunctions[name]
	return exists
}

// GetBuiltinFunction returns the built-in function definition.
func GetBuiltinFunction(name string) (BuiltinFunction, bool) {
	fn, exists := BuiltinFunctions[name]
	return fn, exists
}
