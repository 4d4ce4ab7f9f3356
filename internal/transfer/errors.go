package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrMissingMetadata  = errors.New("batch metadata missing")
	ErrInvalidMetadata  = errors.New("batch metadata invalid")
	ErrChecksumMismatch = errors.New("batch checksum mismatch")
	ErrUnknownKind      = errors.New("unknown transfer kind")
)

// SchemaError is a line that failed to parse or validate. It only affects that line.
type SchemaError struct {
	Line   int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Reason)
}

// TransientIOError is a disk or store hiccup; the whole run may be retried.
type TransientIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *TransientIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *TransientIOError) Unwrap() error { return e.Err }

func transient(op, path string, err error) error {
	return &TransientIOError{Op: op, Path: path, Err: err}
}
