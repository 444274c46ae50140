package models

import (
	"time"

	"fakturierung-recurring/billing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceDraft InvoiceStatus = "DRAFT"
	InvoiceSent  InvoiceStatus = "SENT"
)

const (
	InvoiceEventCreated = "CREATED"

	InvoiceSourceRecurring = "recurring"
)

// Invoice is a concrete commercial document. Items are a snapshot: they do
// not change when the template they came from is edited.
type Invoice struct {
	Id            string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AccountId     string        `json:"account_id" gorm:"type:varchar(36);not null;index"`
	ClientId      string        `json:"client_id" gorm:"type:varchar(36);not null;index"`
	InvoiceNumber string        `json:"invoice_number" gorm:"size:64;not null;unique"`
	Status        InvoiceStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Currency      string        `json:"currency" gorm:"type:varchar(10);not null"`
	IssueDate     time.Time     `json:"issue_date" gorm:"type:date;not null"`
	DueDate       time.Time     `json:"due_date" gorm:"type:date;not null"`
	SentAt        *time.Time    `json:"sent_at"`
	Notes         *string       `json:"notes" gorm:"type:text"`

	DiscountType  billing.DiscountType `json:"discount_type" gorm:"type:varchar(20);not null"`
	DiscountValue decimal.Decimal      `json:"discount_value" gorm:"type:numeric(14,4);not null"`
	TaxRate       decimal.Decimal      `json:"tax_rate" gorm:"type:numeric(7,4);not null"`

	// Totals, minor units
	Subtotal       int64 `json:"subtotal" gorm:"not null"`
	DiscountAmount int64 `json:"discount_amount" gorm:"not null"`
	TaxAmount      int64 `json:"tax_amount" gorm:"not null"`
	Total          int64 `json:"total" gorm:"not null"`

	Items  []InvoiceItem  `json:"items" gorm:"foreignKey:InvoiceId;constraint:OnDelete:CASCADE"`
	Events []InvoiceEvent `json:"events,omitempty" gorm:"foreignKey:InvoiceId;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `json:"created_at"`
}

func (invoice *Invoice) BeforeCreate(tx *gorm.DB) (err error) {
	if invoice.Id == "" {
		invoice.Id = uuid.NewString()
	}
	return
}

// SetTotals stores the calculator result on the invoice.
func (invoice *Invoice) SetTotals(t billing.Totals) {
	invoice.Subtotal = t.Subtotal
	invoice.DiscountAmount = t.DiscountAmount
	invoice.TaxAmount = t.TaxAmount
	invoice.Total = t.Total
}

type InvoiceItem struct {
	Id          string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InvoiceId   string          `json:"-" gorm:"type:varchar(36);not null;index"`
	Position    int             `json:"position" gorm:"not null"`
	GroupName   *string         `json:"group_name"`
	Title       string          `json:"title" gorm:"not null"`
	Description *string         `json:"description"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:numeric(12,4);not null"`
	UnitPrice   int64           `json:"unit_price" gorm:"not null"`
	Amount      int64           `json:"amount" gorm:"not null"` // quantity x unit price, rounded
}

func (item *InvoiceItem) BeforeCreate(tx *gorm.DB) (err error) {
	if item.Id == "" {
		item.Id = uuid.NewString()
	}
	return
}

// InvoiceEvent is the audit trail of an invoice.
type InvoiceEvent struct {
	Id        string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InvoiceId string         `json:"-" gorm:"type:varchar(36);not null;index"`
	Type      string         `json:"type" gorm:"size:32;not null"`
	Source    string         `json:"source" gorm:"size:32;not null"`
	Metadata  datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	CreatedAt time.Time      `json:"created_at"`
}

func (event *InvoiceEvent) BeforeCreate(tx *gorm.DB) (err error) {
	if event.Id == "" {
		event.Id = uuid.NewString()
	}
	return
}
