package recurring

import (
	"fmt"

	"fakturierung-recurring/models"
)

type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
)

// Transition returns the status reached by applying action to from.
//
//	ACTIVE  -pause->  PAUSED
//	PAUSED  -resume-> ACTIVE
//	ACTIVE|PAUSED -cancel-> CANCELED
//
// CANCELED is terminal.
func Transition(from models.RecurringStatus, action Action) (models.RecurringStatus, error) {
	switch {
	case action == ActionPause && from == models.RecurringActive:
		return models.RecurringPaused, nil
	case action == ActionResume && from == models.RecurringPaused:
		return models.RecurringActive, nil
	case action == ActionCancel && (from == models.RecurringActive || from == models.RecurringPaused):
		return models.RecurringCanceled, nil
	}
	return from, fmt.Errorf("%w: cannot %s a %s definition", ErrInvalidTransition, action, from)
}
