package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound        = errors.New("resource not found")
	ErrProblemNotFound = fmt.Errorf("%w: problem", ErrNotFound)
	ErrVisionNotFound  = fmt.Errorf("%w: vision", ErrNotFound)
	ErrStageNotFound   = fmt.Errorf("%w: stage record", ErrNotFound)
	ErrPivotNotFound   = fmt.Errorf("%w: pivot", ErrNotFound)

	// Stage life cycle errors
	ErrStageLocked     = errors.New("stage already committed")
	ErrStageOutOfOrder = errors.New("prior stage not committed")

	// Untrusted-input errors
	ErrSchemaViolation = errors.New("completion response does not match schema")
	ErrEmptyCompletion = errors.New("empty completion response")
)

// NewNotFoundError builds a not-found error with resource context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

// IsNotFoundError checks whether err is any not-found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStageLifecycleError checks whether err is a stage ordering/locking error
func IsStageLifecycleError(err error) bool {
	return errors.Is(err, ErrStageLocked) || errors.Is(err, ErrStageOutOfOrder)
}
