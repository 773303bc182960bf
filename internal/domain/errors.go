package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidSession is returned when the token or slug does not belong to the caller's session.
	ErrInvalidSession = errors.New("invalid exercise session")
	// ErrAttemptClosed is returned when an attempt already left the active state.
	ErrAttemptClosed = errors.New("exercise attempt already completed")
	// ErrExerciseNotFound indicates the exercise slug is unknown.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrSubmissionCompleted is returned by stores refusing to overwrite a terminal submission.
	ErrSubmissionCompleted = errors.New("submission already completed")
	// ErrStorage is matched by every StorageError.
	ErrStorage = errors.New("storage unavailable")
)

// ValidationError lists missing or malformed input fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError wraps a persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// Storage wraps err as a StorageError unless it is nil or already a domain sentinel.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExerciseNotFound) || errors.Is(err, ErrSubmissionCompleted) || errors.Is(err, ErrStorage) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
