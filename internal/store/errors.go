package store

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned for any operation issued before Connect
// completed (or after Close).
var ErrNotReady = errors.New("store: not connected")

// UnknownTableError reports an operation on a table that was not
// declared at store construction time.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("store: unknown table %q", e.Table)
}

// ConnectionError reports that the backend medium was unreachable
// during Connect.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("store: connect %s: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvalidArgumentError reports missing or malformed configuration,
// e.g. a file driver without a path.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("store: invalid %s: %s", e.Field, e.Reason)
}
