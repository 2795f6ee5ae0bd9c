package beam

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned before a search starts when its
	// parameters or the engine construction are unusable.
	ErrInvalidConfig = errors.New("beam: invalid configuration")
	// ErrContractViolation is returned when a Builder returns malformed
	// candidates, such as mismatched token and score counts.
	ErrContractViolation = errors.New("beam: builder contract violation")
	// ErrExhausted is returned when no branch of the frontier produced a
	// single candidate.
	ErrExhausted = errors.New("beam: no candidates left to expand")
)

// BuilderError wraps an error returned by the Builder.
type BuilderError struct {
	Step int
	Err  error
}

func (e *BuilderError) Error() string {
	return fmt.Sprintf("beam: builder failed at step %d: %v", e.Step, e.Err)
}

func (e *BuilderError) Unwrap() error {
	return e.Err
}
