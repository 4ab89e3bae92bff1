package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyCombinations is returned when modification enumeration for one peptide exceeds the
	// configured candidate cap. Callers skip the peptide and continue with the next one.
	ErrTooManyCombinations = errors.New("too many modification combinations")

	// ErrInvalidMotif is returned when a modification motif is not a valid regular expression.
	ErrInvalidMotif = errors.New("invalid motif pattern")

	// ErrInconsistentMassShift is returned when a modified peptide's recorded shift does not equal
	// the sum of its applied rule deltas.
	ErrInconsistentMassShift = errors.New("inconsistent mass shift")

	// ErrUnsupportedIonConfiguration is returned when an ion type references a loss or terminal
	// weight the mass table cannot resolve.
	ErrUnsupportedIonConfiguration = errors.New("unsupported ion configuration")
)

// ValidationError represents an error found during validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// MotifError reports a modification rule whose motif failed to compile.
type MotifError struct {
	Rule    string
	Pattern string
	Err     error
}

func (e *MotifError) Error() string {
	return fmt.Sprintf("rule %s: motif %q: %v", e.Rule, e.Pattern, e.Err)
}

func (e *MotifError) Unwrap() []error {
	return []error{ErrInvalidMotif, e.Err}
}
