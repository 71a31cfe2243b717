package types

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for invalid or incomplete configuration.
	// It is fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch is returned when an embedding does not match the
	// dimension the collection was provisioned with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrDestructiveOperation wraps failures of destructive operations.
	ErrDestructiveOperation = errors.New("destructive operation failed")

	// ErrEmptyQuestion is returned for empty or whitespace-only questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// DimensionMismatchError reports the expected and actual embedding length.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// CheckDimension returns a *DimensionMismatchError if the embedding length
// differs from expected. A non-positive expected disables the check.
func CheckDimension(embedding []float32, expected int) error {
	if expected > 0 && len(embedding) != expected {
		return &DimensionMismatchError{Expected: expected, Got: len(embedding)}
	}
	return nil
}

// Pipeline stages, used in StageError and in failure metrics.
const (
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageGenerate = "generate"
)

// StageError is a failure of one pipeline stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
