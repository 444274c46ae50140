package recurring

import (
	"context"
	"errors"
	"strings"
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/models"
	"fakturierung-recurring/schedule"

	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	DefaultPreviewRuns = 6
	maxPreviewRuns     = 36
)

// Service manages recurring definitions on behalf of one account per call.
type Service struct {
	store     Store
	generator *Generator
	log       zerolog.Logger
}

func NewService(store Store, generator *Generator, log zerolog.Logger) *Service {
	return &Service{store: store, generator: generator, log: log}
}

// Create stores a new ACTIVE definition whose first run is its start date.
func (s *Service) Create(ctx context.Context, accountID string, in CreateInput) (*models.RecurringDefinition, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	start := schedule.Day(in.StartDate)
	def := &models.RecurringDefinition{
		AccountId:     accountID,
		ClientId:      strings.TrimSpace(in.ClientID),
		Frequency:     normalizeFrequency(in.Frequency),
		Status:        models.RecurringActive,
		StartDate:     start,
		EndDate:       dayPtr(in.EndDate),
		NextRunAt:     start,
		Currency:      strings.TrimSpace(in.Currency),
		DiscountType:  normalizeDiscountType(in.DiscountType),
		DiscountValue: in.DiscountValue,
		TaxRate:       in.TaxRate,
		DueDays:       in.DueDays,
		AutoSend:      in.AutoSend,
		Notes:         in.Notes,
	}
	def.Items, def.Groups = buildItems(in.Items, in.Groups)
	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, s.store, def.ClientId, accountID); err != nil {
		return nil, err
	}

	if err := s.store.CreateRecurringDefinition(ctx, def); err != nil {
		return nil, persistence("create definition", err)
	}
	s.log.Info().Str("definition_id", def.Id).Str("account_id", accountID).Msg("recurring definition created")
	return def, nil
}

// Update applies a partial update. Schedule and template fields may change
// in any non-canceled state; the standing invariants are checked on the
// result.
func (s *Service) Update(ctx context.Context, accountID, id string, in UpdateInput) (*models.RecurringDefinition, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	var out *models.RecurringDefinition
	err := s.store.Transaction(ctx, func(tx Store) error {
		def, err := s.find(ctx, tx, accountID, id)
		if err != nil {
			return err
		}
		if def.Status == models.RecurringCanceled {
			return ErrDefinitionCanceled
		}
		expected := def.NextRunAt

		if in.ClientID != nil && strings.TrimSpace(*in.ClientID) != def.ClientId {
			def.ClientId = strings.TrimSpace(*in.ClientID)
			if err := s.checkClient(ctx, tx, def.ClientId, accountID); err != nil {
				return err
			}
		}
		applyUpdate(def, in)
		if err := validateDefinition(def); err != nil {
			return err
		}

		if err := tx.SaveRecurringDefinition(ctx, def, expected, in.replacesItems()); err != nil {
			return persistence("save definition", err)
		}
		out, err = s.find(ctx, tx, accountID, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyUpdate(def *models.RecurringDefinition, in UpdateInput) {
	if in.Frequency != nil {
		def.Frequency = normalizeFrequency(*in.Frequency)
	}
	if in.StartDate != nil {
		def.StartDate = schedule.Day(*in.StartDate)
		// a definition that never ran starts over at the new start date
		if in.NextRunAt == nil && def.LastRunAt == nil {
			def.NextRunAt = def.StartDate
		}
	}
	if in.NextRunAt != nil {
		def.NextRunAt = schedule.Day(*in.NextRunAt)
	}
	if in.ClearEndDate {
		def.EndDate = nil
	} else if in.EndDate != nil {
		def.EndDate = dayPtr(in.EndDate)
	}
	if in.Currency != nil {
		def.Currency = strings.TrimSpace(*in.Currency)
	}
	if in.DiscountType != nil {
		def.DiscountType = normalizeDiscountType(*in.DiscountType)
	}
	if in.DiscountValue != nil {
		def.DiscountValue = *in.DiscountValue
	}
	if in.TaxRate != nil {
		def.TaxRate = *in.TaxRate
	}
	if in.DueDays != nil {
		def.DueDays = *in.DueDays
	}
	if in.AutoSend != nil {
		def.AutoSend = *in.AutoSend
	}
	if in.Notes != nil {
		def.Notes = in.Notes
	}
	if in.replacesItems() {
		def.Items, def.Groups = buildItems(in.Items, in.Groups)
	}
}

func (s *Service) Pause(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	return s.transition(ctx, accountID, id, ActionPause)
}

// Resume leaves nextRunAt untouched, so a definition paused across one or
// more due dates is generated on the next batch run.
func (s *Service) Resume(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	return s.transition(ctx, accountID, id, ActionResume)
}

func (s *Service) Cancel(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	return s.transition(ctx, accountID, id, ActionCancel)
}

func (s *Service) transition(ctx context.Context, accountID, id string, action Action) (*models.RecurringDefinition, error) {
	var out *models.RecurringDefinition
	err := s.store.Transaction(ctx, func(tx Store) error {
		def, err := s.find(ctx, tx, accountID, id)
		if err != nil {
			return err
		}
		next, err := Transition(def.Status, action)
		if err != nil {
			return err
		}
		def.Status = next
		if err := tx.SaveRecurringDefinition(ctx, def, def.NextRunAt, false); err != nil {
			return persistence("save definition", err)
		}
		out = def
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("definition_id", id).Str("action", string(action)).Str("status", string(out.Status)).Msg("recurring definition status changed")
	return out, nil
}

func (s *Service) Get(ctx context.Context, accountID, id string) (*models.RecurringDefinition, error) {
	return s.find(ctx, s.store, accountID, id)
}

func (s *Service) List(ctx context.Context, accountID string, filter ListFilter) ([]models.RecurringDefinition, int64, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, 0, NewValidationError("status", *filter.Status, "must be one of ACTIVE, PAUSED, CANCELED")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	defs, total, err := s.store.ListRecurringDefinitions(ctx, accountID, filter)
	if err != nil {
		return nil, 0, persistence("list definitions", err)
	}
	return defs, total, nil
}

// Delete removes the definition. Invoices generated from it are kept.
func (s *Service) Delete(ctx context.Context, accountID, id string) error {
	err := s.store.DeleteRecurringDefinition(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return notFound(id)
	}
	if err != nil {
		return persistence("delete definition", err)
	}
	s.log.Info().Str("definition_id", id).Str("account_id", accountID).Msg("recurring definition deleted")
	return nil
}

// GenerateNow generates one invoice for the definition outside the batch
// and advances its schedule in the same transaction. Paused definitions may
// be generated manually; canceled ones may not.
func (s *Service) GenerateNow(ctx context.Context, accountID, id string, now time.Time) (*models.Invoice, error) {
	def, err := s.find(ctx, s.store, accountID, id)
	if err != nil {
		return nil, err
	}
	if def.Status == models.RecurringCanceled {
		return nil, ErrDefinitionCanceled
	}
	today := schedule.Day(now)
	if today.Before(def.StartDate) {
		return nil, NewValidationError("start_date", def.StartDate.Format(time.DateOnly), "cannot generate before the start date")
	}
	if def.EndDate != nil && today.After(*def.EndDate) {
		return nil, NewValidationError("end_date", def.EndDate.Format(time.DateOnly), "cannot generate after the end date")
	}

	invoice, err := s.generator.GenerateAndAdvance(ctx, s.store, def, now)
	if err != nil {
		s.log.Error().Err(err).Str("definition_id", id).Msg("manual generation failed")
		return nil, err
	}
	s.log.Info().
		Str("definition_id", id).
		Str("invoice_id", invoice.Id).
		Str("next_run_at", def.NextRunAt.Format(time.DateOnly)).
		Msg("recurring invoice generated manually")
	return invoice, nil
}

// Preview is a template estimate: the totals the next invoice would carry
// and the run dates ahead, assuming every run happens on time.
type Preview struct {
	DefinitionID string                 `json:"definition_id"`
	Currency     string                 `json:"currency"`
	Status       models.RecurringStatus `json:"status"`
	Items        []models.InvoiceItem   `json:"items"`
	Totals       billing.Totals         `json:"totals"`
	Due          bool                   `json:"due"`
	UpcomingRuns []time.Time            `json:"upcoming_runs"`
}

// Preview computes the estimate for a stored definition without persisting
// anything. Due reports whether the next batch run at now would generate it.
// Canceled and paused definitions have no upcoming runs.
func (s *Service) Preview(ctx context.Context, accountID, id string, runs int, now time.Time) (*Preview, error) {
	def, err := s.find(ctx, s.store, accountID, id)
	if err != nil {
		return nil, err
	}
	if runs <= 0 {
		runs = DefaultPreviewRuns
	}
	if runs > maxPreviewRuns {
		runs = maxPreviewRuns
	}

	items := snapshotItems(def)
	lines := make([]billing.Line, len(items))
	for i := range items {
		lines[i] = billing.Line{Quantity: items[i].Quantity, UnitPrice: items[i].UnitPrice}
	}

	p := &Preview{
		DefinitionID: def.Id,
		Currency:     def.Currency,
		Status:       def.Status,
		Items:        items,
		Totals:       billing.CalculateTotals(lines, def.Discount(), def.TaxRate),
		Due:          IsDue(def, now),
		UpcomingRuns: []time.Time{},
	}
	if def.Status == models.RecurringActive {
		upcoming, err := schedule.Upcoming(def.NextRunAt, def.Frequency, runs, def.EndDate)
		if err != nil {
			return nil, err
		}
		p.UpcomingRuns = upcoming
	}
	return p, nil
}

func (s *Service) find(ctx context.Context, store Store, accountID, id string) (*models.RecurringDefinition, error) {
	def, err := store.FindRecurringDefinition(ctx, accountID, id)
	if errors.Is(err, ErrNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, persistence("find definition", err)
	}
	return def, nil
}

// checkClient rejects clients that do not belong to the account. A foreign
// client is reported exactly like a missing one.
func (s *Service) checkClient(ctx context.Context, store Store, clientID, accountID string) error {
	_, err := store.FindClientForAccount(ctx, clientID, accountID)
	if errors.Is(err, ErrClientNotFound) {
		return NewValidationError("client_id", clientID, "client does not exist for this account")
	}
	if err != nil {
		return persistence("find client", err)
	}
	return nil
}

func buildItems(items []ItemInput, groups []GroupInput) ([]models.RecurringItem, []models.RecurringItemGroup) {
	outItems := make([]models.RecurringItem, len(items))
	for i, in := range items {
		outItems[i] = itemFromInput(in, i+1)
	}
	outGroups := make([]models.RecurringItemGroup, len(groups))
	for g, group := range groups {
		outGroups[g] = models.RecurringItemGroup{
			Name:     strings.TrimSpace(group.Name),
			Position: g + 1,
			Items:    make([]models.RecurringItem, len(group.Items)),
		}
		for i, in := range group.Items {
			outGroups[g].Items[i] = itemFromInput(in, i+1)
		}
	}
	return outItems, outGroups
}

func itemFromInput(in ItemInput, position int) models.RecurringItem {
	return models.RecurringItem{
		Position:    position,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
	}
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := schedule.Day(*t)
	return &d
}
