package recurring

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/models"
	"fakturierung-recurring/schedule"

	"gorm.io/datatypes"
)

// NumberSource hands out unique invoice numbers.
type NumberSource interface {
	Next() string
}

// Generator turns a definition into a concrete invoice. It never advances
// the schedule on its own; GenerateAndAdvance commits both together.
type Generator struct {
	numbers NumberSource
}

func NewGenerator(numbers NumberSource) *Generator {
	return &Generator{numbers: numbers}
}

// BuildInvoice assembles the invoice for a run at now without touching the
// store. Items are copied by value, so later template edits never reach the
// invoice.
func (g *Generator) BuildInvoice(def *models.RecurringDefinition, now time.Time) (*models.Invoice, error) {
	if def.ItemCount() == 0 {
		return nil, NewValidationError("items", 0, "definition has no line items")
	}

	today := schedule.Day(now)
	items := snapshotItems(def)
	lines := make([]billing.Line, len(items))
	for i := range items {
		lines[i] = billing.Line{Quantity: items[i].Quantity, UnitPrice: items[i].UnitPrice}
	}
	totals := billing.CalculateTotals(lines, def.Discount(), def.TaxRate)

	meta, err := json.Marshal(map[string]string{
		"recurring_definition_id": def.Id,
		"run_date":                today.Format(time.DateOnly),
	})
	if err != nil {
		return nil, err
	}

	invoice := &models.Invoice{
		AccountId:      def.AccountId,
		ClientId:       def.ClientId,
		InvoiceNumber:  g.numbers.Next(),
		Status:         models.InvoiceDraft,
		Currency:       def.Currency,
		IssueDate:      today,
		DueDate:        schedule.AddDays(today, def.DueDays),
		Notes:          copyString(def.Notes),
		DiscountType:   def.DiscountType,
		DiscountValue:  def.DiscountValue,
		TaxRate:        def.TaxRate,
		Items:          items,
		Events: []models.InvoiceEvent{{
			Type:     models.InvoiceEventCreated,
			Source:   models.InvoiceSourceRecurring,
			Metadata: datatypes.JSON(meta),
		}},
	}
	invoice.SetTotals(totals)
	if def.AutoSend {
		sentAt := now
		invoice.Status = models.InvoiceSent
		invoice.SentAt = &sentAt
	}
	return invoice, nil
}

// Generate builds and stores one invoice through store.
func (g *Generator) Generate(ctx context.Context, store Store, def *models.RecurringDefinition, now time.Time) (*models.Invoice, error) {
	invoice, err := g.BuildInvoice(def, now)
	if err != nil {
		return nil, wrapGeneration("build invoice", def.Id, err)
	}
	if err := store.CreateInvoice(ctx, invoice); err != nil {
		return nil, wrapGeneration("create invoice", def.Id, persistence("create invoice", err))
	}
	return invoice, nil
}

// GenerateAndAdvance generates one invoice and advances the schedule in a
// single transaction: lastRunAt becomes the run date and nextRunAt one
// period after it. Either both are committed or neither is. On success def
// is updated in place.
func (g *Generator) GenerateAndAdvance(ctx context.Context, store Store, def *models.RecurringDefinition, now time.Time) (*models.Invoice, error) {
	today := schedule.Day(now)
	next, err := schedule.NextRun(today, def.Frequency)
	if err != nil {
		return nil, wrapGeneration("advance schedule", def.Id, err)
	}

	var invoice *models.Invoice
	err = store.Transaction(ctx, func(tx Store) error {
		inv, err := g.Generate(ctx, tx, def, now)
		if err != nil {
			return err
		}
		update := ScheduleUpdate{
			ExpectedNextRunAt: def.NextRunAt,
			LastRunAt:         today,
			NextRunAt:         next,
		}
		if err := tx.UpdateRecurringSchedule(ctx, def.Id, update); err != nil {
			return wrapGeneration("advance schedule", def.Id, persistence("update schedule", err))
		}
		invoice = inv
		return nil
	})
	if err != nil {
		return nil, wrapGeneration("commit", def.Id, err)
	}

	def.LastRunAt = &today
	def.NextRunAt = next
	return invoice, nil
}

// snapshotItems flattens the template: ungrouped items first, then each
// group in order, positions renumbered from 1.
func snapshotItems(def *models.RecurringDefinition) []models.InvoiceItem {
	out := make([]models.InvoiceItem, 0, def.ItemCount())
	add := func(item models.RecurringItem, group *string) {
		out = append(out, models.InvoiceItem{
			Position:    len(out) + 1,
			GroupName:   copyString(group),
			Title:       item.Title,
			Description: copyString(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      billing.LineAmount(billing.Line{Quantity: item.Quantity, UnitPrice: item.UnitPrice}),
		})
	}

	for _, item := range sortedItems(def.Items) {
		add(item, nil)
	}
	groups := append([]models.RecurringItemGroup(nil), def.Groups...)
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Position < groups[j].Position })
	for _, group := range groups {
		name := group.Name
		for _, item := range sortedItems(group.Items) {
			add(item, &name)
		}
	}
	return out
}

func sortedItems(items []models.RecurringItem) []models.RecurringItem {
	out := append([]models.RecurringItem(nil), items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
