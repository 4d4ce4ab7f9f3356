package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Record is one transfer record: a line of a batch file.
type Record interface {
	RecordID() string
	Validate() error
}

// ValidationError reports the first field of a record that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func requireUUID(field, v string) error {
	if v == "" {
		return invalid(field, "required")
	}
	if _, err := uuid.Parse(v); err != nil {
		return invalid(field, "not a uuid")
	}
	return nil
}
