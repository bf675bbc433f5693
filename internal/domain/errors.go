package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrBookNotFound       = errors.New("book not found")
	ErrStudentNotFound    = errors.New("student profile not found")
	ErrGameStateNotFound  = errors.New("game state not found")
	ErrReadingLogNotFound = errors.New("reading log not found")
	ErrStudentExists      = errors.New("student already registered")
	ErrAchievementExists  = errors.New("achievement already exists")
	ErrBookExists         = errors.New("book already exists")
	ErrReadingLogExists   = errors.New("reading log already exists")
	ErrStreakConflict     = errors.New("streak changed concurrently")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
	ErrInvalidCriteria    = errors.New("invalid achievement criteria")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrGameStateNotFound) ||
		errors.Is(err, ErrReadingLogNotFound)
}

// IsConflictError checks if an error reports an already existing record
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStudentExists) ||
		errors.Is(err, ErrAchievementExists) ||
		errors.Is(err, ErrBookExists) ||
		errors.Is(err, ErrReadingLogExists)
}

// ValidationError reports malformed input rejected before any state is read or written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field
func NewValidationError(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError checks if an error is (or wraps) a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
