package permanent

import "errors"

// Error marks a failure that retrying cannot fix, such as a response the engine cannot interpret.
type Error struct {
	Op  string
	Err error
}

// Error returns the operation-prefixed cause.
// Params: none.
// Returns: string representation.
func (e *Error) Error() string {
	cause := "permanent error"
	if e.Err != nil {
		cause = e.Err.Error()
	}
	if e.Op == "" {
		return cause
	}
	return e.Op + ": " + cause
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Mark wraps err as non-retryable for operation op.
// Params: operation name (may be empty) and source error.
// Returns: wrapped error, or nil for a nil err.
func Mark(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Is reports whether err carries the permanent marker anywhere in its chain.
// Params: candidate error.
// Returns: true when the failure must not be retried.
func Is(err error) bool {
	var target *Error
	return errors.As(err, &target)
}
