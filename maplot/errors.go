package maplot

import (
	"errors"
	"fmt"
)

// ErrNotNormalized is returned by Commit before a normalization has completed
// for the current data and group selection.
var ErrNotNormalized = errors.New("maplot: no normalized data to commit")

// ValidationError reports a group selection that cannot be split into exactly
// two labels.
type ValidationError struct {
	Group  string
	Labels int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Group %s has %d labels; exactly 2 are required", e.Group, e.Labels)
}

// NumericalError reports a centering fit that could not be computed, such as
// a singular local regression.
type NumericalError struct {
	Method CenterMethod
	Err    error
}

func (e *NumericalError) Error() string {
	return fmt.Sprintf("Linear algebra error in %s centering: %v", e.Method, e.Err)
}

func (e *NumericalError) Unwrap() error {
	return e.Err
}
