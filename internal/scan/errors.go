package scan

import (
	"errors"
	"fmt"
)

var errDownloadIncomplete = errors.New("image download did not complete")

// ValidationError rejects a submission before any job is created.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}
