// Package errors provides the standardized error values of flowc.
// Lowering never downgrades an error: every StandardError aborts the
// compilation unit it was raised in.
package errors

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	// CategoryInternal is a compiler defect: an earlier stage produced
	// inconsistent IR.
	CategoryInternal ErrorCategory = "INTERNAL"
	// CategoryUnsupported is a valid construct with no lowering yet.
	CategoryUnsupported ErrorCategory = "UNSUPPORTED"
	// CategoryInput is a malformed input file.
	CategoryInput ErrorCategory = "INPUT"
	// CategoryConfig is an invalid setting.
	CategoryConfig ErrorCategory = "CONFIG"
	// CategoryRuntime is a failure observed while simulating a program.
	CategoryRuntime ErrorCategory = "RUNTIME"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string

	trace error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Format prints the stack trace recorded at construction for %+v.
func (e *StandardError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprint(s, e.Error())

			if keys := e.contextString(); keys != "" {
				fmt.Fprintf(s, "\ncontext: %s", keys)
			}

			if st, ok := e.trace.(interface{ StackTrace() pkgerrors.StackTrace }); ok {
				fmt.Fprintf(s, "%+v", st.StackTrace())
			}

			return
		}

		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

func (e *StandardError) contextString() string {
	if len(e.Context) == 0 {
		return ""
	}

	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, e.Context[k])
	}

	return strings.Join(parts, " ")
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return newError(2, category, code, message, context)
}

func newError(skip int, category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(skip)
	caller := "unknown"

	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
		trace:    pkgerrors.New(code),
	}
}

// Internal reports an inconsistency in the IR handed to construct.
func Internal(construct, format string, args ...interface{}) *StandardError {
	return newError(2, CategoryInternal, "INTERNAL_ERROR",
		fmt.Sprintf("%s: %s", construct, fmt.Sprintf(format, args...)),
		map[string]interface{}{"construct": construct})
}

// ArityMismatch reports two lists that must have the same length.
func ArityMismatch(construct, what string, want, got int) *StandardError {
	return newError(2, CategoryInternal, "ARITY_MISMATCH",
		fmt.Sprintf("%s: %s: expected %d, got %d", construct, what, want, got),
		map[string]interface{}{"construct": construct, "what": what, "expected": want, "actual": got})
}

// TypeMismatch reports a variable of the wrong kind.
func TypeMismatch(construct, varName, expected, actual string) *StandardError {
	return newError(2, CategoryInternal, "TYPE_MISMATCH",
		fmt.Sprintf("%s: variable %s: expected %s, got %s", construct, varName, expected, actual),
		map[string]interface{}{"construct": construct, "var": varName, "expected": expected, "actual": actual})
}

// NotSupported reports a valid construct with no lowering.
func NotSupported(construct, what string) *StandardError {
	return newError(2, CategoryUnsupported, "NOT_YET_SUPPORTED",
		fmt.Sprintf("%s: not yet supported: %s", construct, what),
		map[string]interface{}{"construct": construct, "what": what})
}

// UnbalancedSlots reports a slot create without its matching drop.
func UnbalancedSlots(construct string, created, dropped []string) *StandardError {
	return newError(2, CategoryInternal, "UNBALANCED_SLOTS",
		fmt.Sprintf("%s: slot create [%s] does not match slot drop [%s]",
			construct, strings.Join(created, ", "), strings.Join(dropped, ", ")),
		map[string]interface{}{"construct": construct, "created": created, "dropped": dropped})
}

// MissingVar reports a reference to a variable not in scope.
func MissingVar(construct, name string) *StandardError {
	return newError(2, CategoryInternal, "MISSING_VAR",
		fmt.Sprintf("%s: variable %s is not in scope", construct, name),
		map[string]interface{}{"construct": construct, "var": name})
}

// NilArg reports a missing operand.
func NilArg(construct string, pos int) *StandardError {
	return newError(2, CategoryInternal, "NULL_ARG",
		fmt.Sprintf("%s: null argument at position %d", construct, pos),
		map[string]interface{}{"construct": construct, "position": pos})
}

// InvalidInput reports a malformed input document.
func InvalidInput(where, format string, args ...interface{}) *StandardError {
	return newError(2, CategoryInput, "INVALID_INPUT",
		fmt.Sprintf("%s: %s", where, fmt.Sprintf(format, args...)),
		map[string]interface{}{"where": where})
}

// InvalidConfig reports a bad configuration value.
func InvalidConfig(key, format string, args ...interface{}) *StandardError {
	return newError(2, CategoryConfig, "INVALID_CONFIG",
		fmt.Sprintf("%s: %s", key, fmt.Sprintf(format, args...)),
		map[string]interface{}{"key": key})
}

// Runtime reports a failure of a simulated program.
func Runtime(code, format string, args ...interface{}) *StandardError {
	return newError(2, CategoryRuntime, code, fmt.Sprintf(format, args...), nil)
}

// CategoryOf returns the category of the first StandardError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var se *StandardError
	if pkgerrors.As(err, &se) {
		return se.Category, true
	}

	return "", false
}

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) string {
	var se *StandardError
	if pkgerrors.As(err, &se) {
		return se.Code
	}

	return ""
}

// IsInternal reports whether err is a compiler defect.
func IsInternal(err error) bool {
	c, ok := CategoryOf(err)

	return ok && c == CategoryInternal
}

// IsNotSupported reports whether err is a not-yet-supported construct.
func IsNotSupported(err error) bool {
	c, ok := CategoryOf(err)

	return ok && c == CategoryUnsupported
}

// Wrapf annotates err with context and a stack trace.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// Cause returns the innermost error of a wrapped chain.
func Cause(err error) error { return pkgerrors.Cause(err) }
