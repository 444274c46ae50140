package recurring_test

import (
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/models"
	"fakturierung-recurring/schedule"

	"github.com/shopspring/decimal"
)

const (
	accountID = "acc-1"
	clientID  = "client-1"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// definition returns an ACTIVE monthly definition worth 9720 per run.
func definition(id string, nextRunAt time.Time) models.RecurringDefinition {
	return models.RecurringDefinition{
		Id:            id,
		AccountId:     accountID,
		ClientId:      clientID,
		Frequency:     schedule.Monthly,
		Status:        models.RecurringActive,
		StartDate:     nextRunAt,
		NextRunAt:     nextRunAt,
		Currency:      "EUR",
		DiscountType:  billing.DiscountPercentage,
		DiscountValue: dec("10"),
		TaxRate:       dec("8"),
		DueDays:       14,
		Items: []models.RecurringItem{
			{Id: id + "-item-1", DefinitionId: id, Position: 1, Title: "Hosting", Quantity: dec("2"), UnitPrice: 5000},
		},
	}
}
