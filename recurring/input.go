package recurring

import (
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/schedule"

	"github.com/shopspring/decimal"
)

type ItemInput struct {
	Title       string          `json:"title" validate:"required,max=255"`
	Description *string         `json:"description" validate:"omitempty,max=2000"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price" validate:"gte=0"`
}

type GroupInput struct {
	Name  string      `json:"name" validate:"required,max=255"`
	Items []ItemInput `json:"items" validate:"dive"`
}

type CreateInput struct {
	ClientID  string             `json:"client_id" validate:"required,max=36"`
	Frequency schedule.Frequency `json:"frequency" validate:"required"`
	StartDate time.Time          `json:"start_date"`
	EndDate   *time.Time         `json:"end_date"`

	Currency      string               `json:"currency" validate:"required,max=10"`
	DiscountType  billing.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	DueDays       int                  `json:"due_days" validate:"gt=0,lte=365"`
	AutoSend      bool                 `json:"auto_send"`
	Notes         *string              `json:"notes" validate:"omitempty,max=5000"`

	Items  []ItemInput  `json:"items" validate:"dive"`
	Groups []GroupInput `json:"groups" validate:"dive"`
}

// UpdateInput is a partial update: nil fields are left unchanged. When
// Items or Groups is non-nil, both lists replace the stored ones.
type UpdateInput struct {
	ClientID     *string             `json:"client_id" validate:"omitempty,max=36"`
	Frequency    *schedule.Frequency `json:"frequency"`
	StartDate    *time.Time          `json:"start_date"`
	NextRunAt    *time.Time          `json:"next_run_at"`
	EndDate      *time.Time          `json:"end_date"`
	ClearEndDate bool                `json:"clear_end_date"`

	Currency      *string               `json:"currency" validate:"omitempty,min=1,max=10"`
	DiscountType  *billing.DiscountType `json:"discount_type"`
	DiscountValue *decimal.Decimal      `json:"discount_value"`
	TaxRate       *decimal.Decimal      `json:"tax_rate"`
	DueDays       *int                  `json:"due_days" validate:"omitempty,gt=0,lte=365"`
	AutoSend      *bool                 `json:"auto_send"`
	Notes         *string               `json:"notes" validate:"omitempty,max=5000"`

	Items  []ItemInput  `json:"items" validate:"omitempty,dive"`
	Groups []GroupInput `json:"groups" validate:"omitempty,dive"`
}

func (in UpdateInput) replacesItems() bool {
	return in.Items != nil || in.Groups != nil
}
