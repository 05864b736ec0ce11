package engine

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// UnresolvedReferenceError is returned when a reference cannot be bound in
// the scope it points to.
type UnresolvedReferenceError struct {
	Name    string
	Nesting int
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("could not resolve $%s%s", strings.Repeat("^", e.Nesting), e.Name)
}

// TypeMismatchError is returned when an action gets an operand of a type it
// cannot process.
type TypeMismatchError struct {
	Action   string
	Expected string
	Actual   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Action, e.Expected, e.Actual)
}

// PatternCompileError is returned when a match pattern cannot be compiled.
type PatternCompileError struct {
	Pattern string
	Err     error
}

func (e *PatternCompileError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternCompileError) Unwrap() error {
	return e.Err
}

// InvalidExpressionError is returned when an expression is malformed in a
// way that does not depend on the data it runs over.
type InvalidExpressionError struct {
	Action string
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

func invalid(action, format string, args ...any) error {
	return &InvalidExpressionError{Action: action, Reason: fmt.Sprintf(format, args...)}
}

func mismatch(action, expected string, actual fmt.Stringer) error {
	return &TypeMismatchError{Action: action, Expected: expected, Actual: actual.String()}
}

// IsEvaluationError reports whether err was caused by the expression
// itself rather than by the surroundings it ran in.
func IsEvaluationError(err error) bool {
	var (
		unresolved *UnresolvedReferenceError
		typeErr    *TypeMismatchError
		patternErr *PatternCompileError
		invalidErr *InvalidExpressionError
	)
	return errors.As(err, &unresolved) || errors.As(err, &typeErr) ||
		errors.As(err, &patternErr) || errors.As(err, &invalidErr)
}
