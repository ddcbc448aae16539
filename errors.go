package excellent

import "fmt"

// EvaluationError is an error which occurs during evaluation of an expression,
// e.g. an undefined variable, a failed conversion or a bad function call.
// Templates treat these as recoverable: the offending expression is left in
// the output as-is and the error is collected.
type EvaluationError struct {
	Message string
}

func (e *EvaluationError) Error() string {
	return e.Message
}

func evalErrorf(format string, args ...any) *EvaluationError {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}
