package validation

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("schema not found")

// LoadError is a schema source failure other than a missing schema.
type LoadError struct {
	Schema string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("schema %s could not be loaded: %v", e.Schema, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
