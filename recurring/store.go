package recurring

import (
	"context"
	"time"

	"fakturierung-recurring/models"
	"fakturierung-recurring/schedule"
)

// Store is the persistence contract of the engine. Implementations return
// ErrNotFound / ErrClientNotFound for ids that do not resolve within the
// account, and ErrScheduleConflict from SaveRecurringDefinition and
// UpdateRecurringSchedule when the expected nextRunAt no longer matches.
type Store interface {
	// Transaction runs fn in a single unit of work. The Store passed to fn
	// is bound to it; when fn returns an error nothing fn did is kept.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindClientForAccount(ctx context.Context, clientID, accountID string) (*models.Client, error)

	CreateRecurringDefinition(ctx context.Context, def *models.RecurringDefinition) error
	// SaveRecurringDefinition writes the user-editable fields of def while
	// the stored nextRunAt still equals expectedNextRunAt, else it returns
	// ErrScheduleConflict. lastRunAt is never written: only
	// UpdateRecurringSchedule advances a schedule. When replaceItems is set
	// the stored items and groups are replaced by def.Items and def.Groups.
	SaveRecurringDefinition(ctx context.Context, def *models.RecurringDefinition, expectedNextRunAt time.Time, replaceItems bool) error
	FindRecurringDefinition(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error)
	ListRecurringDefinitions(ctx context.Context, accountID string, filter ListFilter) ([]models.RecurringDefinition, int64, error)
	DeleteRecurringDefinition(ctx context.Context, accountID, id string) error

	// FindDueRecurringDefinitions returns every ACTIVE definition with
	// nextRunAt <= today and endDate unset or >= today, items resolved,
	// ordered by nextRunAt then id.
	FindDueRecurringDefinitions(ctx context.Context, now time.Time) ([]models.RecurringDefinition, error)

	// CreateInvoice stores the invoice with its items and events.
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	UpdateRecurringSchedule(ctx context.Context, id string, update ScheduleUpdate) error
}

// ScheduleUpdate advances a definition's schedule. The update applies only
// while the stored nextRunAt still equals ExpectedNextRunAt.
type ScheduleUpdate struct {
	ExpectedNextRunAt time.Time
	LastRunAt         time.Time
	NextRunAt         time.Time
}

type ListFilter struct {
	Status *models.RecurringStatus
	Page   int
	Limit  int
}

// Offset returns the row offset of the page, pages start at 1.
func (f ListFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// IsDue reports whether def belongs to the due set at now: ACTIVE, nextRunAt
// has elapsed and the end date (inclusive) has not passed.
func IsDue(def *models.RecurringDefinition, now time.Time) bool {
	if def.Status != models.RecurringActive {
		return false
	}
	today := schedule.Day(now)
	if schedule.Day(def.NextRunAt).After(today) {
		return false
	}
	if def.EndDate != nil && schedule.Day(*def.EndDate).Before(today) {
		return false
	}
	return true
}
