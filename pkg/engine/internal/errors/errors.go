package errors

import "errors"

var (
	ErrType           = errors.New("type error")
	ErrNotImplemented = errors.New("not implemented")

	// ErrSchemaMismatch is returned when a rewrite would change the names,
	// types or order of a plan's output columns.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrUnsupportedPushdown is used internally by rules that refuse to act
	// on a node. It never escapes the optimizer.
	ErrUnsupportedPushdown = errors.New("unsupported pushdown")
	// ErrCompute is returned when evaluating an expression fails.
	ErrCompute = errors.New("compute error")
	// ErrCancelled is returned by operators that observed a stop request.
	ErrCancelled = errors.New("query cancelled")
	// ErrColumnNotFound is returned when an expression references a column
	// that is not part of its input schema.
	ErrColumnNotFound = errors.New("column not found")
	// ErrInvariant marks an internal consistency defect.
	ErrInvariant = errors.New("internal invariant violated")
)
