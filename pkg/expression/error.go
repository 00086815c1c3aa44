package expression

import (
	"errors"
	"fmt"

	"github.com/l7mp/fixpoint/pkg/relation"
)

// ErrEvaluation is matched by every error returned from Evaluate.
var ErrEvaluation = errors.New("expression evaluation error")

// EvalError is an evaluation failure annotated with the failing expression.
type EvalError struct {
	Op   string
	Text string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("failed to evaluate %s expression %s: %s", e.Op, e.Text, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

func (e *EvalError) Is(target error) bool { return target == ErrEvaluation }

// NewInvalidArgumentsError reports an expression that cannot be evaluated at all.
func NewInvalidArgumentsError(e *Expression, msg string) error {
	return &EvalError{Op: e.Op, Text: e.String(), Err: errors.New(msg)}
}

// NewExpressionError wraps err with the expression that failed.
func NewExpressionError(e *Expression, err error) error {
	return &EvalError{Op: e.Op, Text: e.String(), Err: err}
}

// NewUnmarshalError reports a malformed expression in a program document.
func NewUnmarshalError(kind, content string) error {
	return relation.NewConfigurationError("malformed %s at %q", kind, content)
}
