package stored

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotBound reports field access on a record with no bound Config.
	ErrNotBound = errors.New("stored: Bind() must be called before getting stored data")
	// ErrUnknownAttribute reports a name the record schema does not declare.
	ErrUnknownAttribute = errors.New("stored: unknown attribute")
	// ErrTypeMismatch reports a Set whose value kind differs from the schema default.
	ErrTypeMismatch = errors.New("stored: value kind does not match schema")
	// ErrQuestNotFound is returned by QuestResolver implementations for names
	// that do not resolve. LoadQuests drops such slots.
	ErrQuestNotFound = errors.New("stored: quest not found")
)

// PreconditionError is returned when a record is used before Bind.
type PreconditionError struct {
	Op  string
	Key string
	Err error
}

func (e *PreconditionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("stored: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TypeMismatchError describes a rejected Set.
type TypeMismatchError struct {
	Key  string
	Attr string
	Want Kind
	Got  Kind
}

func (e *TypeMismatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("stored: %s.%s expects %s, got %s", e.Key, e.Attr, e.Want, e.Got)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// EvaluationError captures evaluator metadata alongside the originating error.
type EvaluationError struct {
	Engine string
	Expr   string
	Key    string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("stored: %s evaluator %s key=%s: %v", e.Engine, describeExpression(e.Expr), e.Key, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "stored:") {
		return err
	}
	return fmt.Errorf("stored: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr, key string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Key == "" {
			evalErr.Key = key
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Key:    key,
		Err:    err,
	}
}
