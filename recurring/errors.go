package recurring

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a definition id does not resolve for the account.
	ErrNotFound = errors.New("recurring definition not found")

	// ErrClientNotFound is returned when a client id does not resolve for the account.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidTransition is returned when a lifecycle action is not allowed
	// from the definition's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDefinitionCanceled is returned when a canceled definition is edited
	// or generated from.
	ErrDefinitionCanceled = errors.New("recurring definition is canceled")

	// ErrScheduleConflict is returned when the schedule advance finds that
	// nextRunAt changed since the definition was read, i.e. another run
	// already billed this cycle.
	ErrScheduleConflict = errors.New("schedule was advanced concurrently")
)

// ValidationError describes malformed definition input. It is never
// silently corrected.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// NotFoundError is returned when a definition or client id does not resolve.
// It matches ErrNotFound or ErrClientNotFound via errors.Is.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

func notFound(id string) error {
	return &NotFoundError{Resource: "recurring definition", ID: id, Err: ErrNotFound}
}

// PersistenceError wraps a store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("recurring: %s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// GenerationError is a failure while generating one invoice, including
// failure to commit the schedule advance that goes with it.
type GenerationError struct {
	Op           string
	DefinitionID string
	Err          error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("recurring: %s failed for definition %s: %v", e.Op, e.DefinitionID, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func (e *GenerationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapGeneration wraps err as a GenerationError unless it already is one.
func wrapGeneration(op, definitionID string, err error) error {
	if err == nil {
		return nil
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return err
	}
	return &GenerationError{Op: op, DefinitionID: definitionID, Err: err}
}

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
