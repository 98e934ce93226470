package batch

import "errors"

// Domain errors for the batch package.
var (
	// ErrNoFile is returned for an empty batch path.
	ErrNoFile = errors.New("batch: no file given")

	// ErrNotFound is returned when the batch file does not exist.
	ErrNotFound = errors.New("batch: file not found")

	// ErrTooDeep is returned when batches nest deeper than command.MaxDepth.
	ErrTooDeep = errors.New("batch: nesting too deep")

	// ErrTestSyntax is returned for a malformed test expression.
	ErrTestSyntax = errors.New("batch: test syntax error")
)
