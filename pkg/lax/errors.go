package lax

import (
	"errors"
	"fmt"
)

// ErrInvalidContextKey is wrapped by the ValidationError returned when a
// render context carries a key that is not identifier-shaped.
var ErrInvalidContextKey = errors.New("invalid context key")

// ValidationError aborts a render before any output is produced.
type ValidationError struct {
	Key string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid context key %q: keys must be valid identifiers", e.Key)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidContextKey
}

// ScreenError reports an expression rejected before it was parsed.
type ScreenError struct {
	Expr  string
	Ident string
}

func (e *ScreenError) Error() string {
	return "potentially dangerous expression: " + e.Expr
}

// EvalError reports a failure while parsing or evaluating an expression.
type EvalError struct {
	Msg string
}

func (e *EvalError) Error() string {
	return e.Msg
}

func evalErrorf(format string, args ...any) error {
	return &EvalError{Msg: fmt.Sprintf(format, args...)}
}

// calcMarker renders an evaluation failure the way {{= }} tags show it.
func calcMarker(err error) string {
	var se *ScreenError
	if errors.As(err, &se) {
		return "[Error: " + se.Error() + "]"
	}
	return "[Calculation Error: " + err.Error() + "]"
}

// bindMarker renders a failed set/let right-hand side. Screen rejections carry
// the directive name, evaluation failures read like calculation errors.
func bindMarker(directive string, err error) string {
	var se *ScreenError
	if errors.As(err, &se) {
		label := "Set"
		if directive == "let" {
			label = "Let"
		}
		return "[" + label + " Error: " + se.Error() + "]"
	}
	return "[Calculation Error: " + err.Error() + "]"
}
