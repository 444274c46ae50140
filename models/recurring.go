package models

import (
	"time"

	"fakturierung-recurring/billing"
	"fakturierung-recurring/schedule"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RecurringStatus string

const (
	RecurringActive   RecurringStatus = "ACTIVE"
	RecurringPaused   RecurringStatus = "PAUSED"
	RecurringCanceled RecurringStatus = "CANCELED"
)

func (s RecurringStatus) IsValid() bool {
	switch s {
	case RecurringActive, RecurringPaused, RecurringCanceled:
		return true
	}
	return false
}

// RecurringDefinition is the schedule plus billing template that invoices
// are generated from. Items holds the ungrouped lines only; grouped lines
// live under Groups.
type RecurringDefinition struct {
	Id        string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AccountId string  `json:"account_id" gorm:"type:varchar(36);not null;index"`
	ClientId  string  `json:"client_id" gorm:"type:varchar(36);not null;index"`
	Client    *Client `json:"client,omitempty" gorm:"foreignKey:ClientId;references:Id;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`

	// Schedule
	Frequency schedule.Frequency `json:"frequency" gorm:"type:varchar(20);not null"`
	Status    RecurringStatus    `json:"status" gorm:"type:varchar(20);not null;index"`
	StartDate time.Time          `json:"start_date" gorm:"type:date;not null"`
	EndDate   *time.Time         `json:"end_date" gorm:"type:date"`
	NextRunAt time.Time          `json:"next_run_at" gorm:"type:date;not null;index"`
	LastRunAt *time.Time         `json:"last_run_at" gorm:"type:date"`

	// Billing template
	Currency      string               `json:"currency" gorm:"type:varchar(10);not null"`
	DiscountType  billing.DiscountType `json:"discount_type" gorm:"type:varchar(20);not null;default:NONE"`
	DiscountValue decimal.Decimal      `json:"discount_value" gorm:"type:numeric(14,4);not null;default:0"`
	TaxRate       decimal.Decimal      `json:"tax_rate" gorm:"type:numeric(7,4);not null;default:0"`
	DueDays       int                  `json:"due_days" gorm:"not null"`
	AutoSend      bool                 `json:"auto_send" gorm:"not null;default:false"`
	Notes         *string              `json:"notes" gorm:"type:text"`

	Items  []RecurringItem      `json:"items" gorm:"foreignKey:DefinitionId;constraint:OnDelete:CASCADE"`
	Groups []RecurringItemGroup `json:"groups" gorm:"foreignKey:DefinitionId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (def *RecurringDefinition) BeforeCreate(tx *gorm.DB) (err error) {
	if def.Id == "" {
		def.Id = uuid.NewString()
	}
	return
}

// Discount returns the template discount in calculator form.
func (def *RecurringDefinition) Discount() billing.Discount {
	return billing.Discount{Type: def.DiscountType, Value: def.DiscountValue}
}

// ItemCount counts lines across ungrouped items and all groups.
func (def *RecurringDefinition) ItemCount() int {
	n := len(def.Items)
	for _, g := range def.Groups {
		n += len(g.Items)
	}
	return n
}

type RecurringItemGroup struct {
	Id           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DefinitionId string          `json:"-" gorm:"type:varchar(36);not null;index"`
	Name         string          `json:"name" gorm:"not null"`
	Position     int             `json:"position" gorm:"not null"`
	Items        []RecurringItem `json:"items" gorm:"foreignKey:GroupId;constraint:OnDelete:CASCADE"`
}

func (group *RecurringItemGroup) BeforeCreate(tx *gorm.DB) (err error) {
	if group.Id == "" {
		group.Id = uuid.NewString()
	}
	return
}

type RecurringItem struct {
	Id           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	DefinitionId string          `json:"-" gorm:"type:varchar(36);not null;index"`
	GroupId      *string         `json:"-" gorm:"type:varchar(36);index"`
	Position     int             `json:"position" gorm:"not null"`
	Title        string          `json:"title" gorm:"not null"`
	Description  *string         `json:"description"`
	Quantity     decimal.Decimal `json:"quantity" gorm:"type:numeric(12,4);not null"`
	UnitPrice    int64           `json:"unit_price" gorm:"not null"` // minor units
}

func (item *RecurringItem) BeforeCreate(tx *gorm.DB) (err error) {
	if item.Id == "" {
		item.Id = uuid.NewString()
	}
	return
}
