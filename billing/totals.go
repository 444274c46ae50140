// Package billing holds the money arithmetic shared by every place that
// computes an invoice total: direct invoices, recurring generation and
// template previews.
//
// Amounts are integer minor currency units (cents). Quantities and
// percentages are decimals. Rounding is half away from zero and is applied
// once per line for the subtotal, then once for the discount and once for
// the tax.
package billing

import (
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountNone       DiscountType = "NONE"
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

func (t DiscountType) IsValid() bool {
	switch t {
	case DiscountNone, DiscountPercentage, DiscountFixed:
		return true
	}
	return false
}

// Discount is a percentage (0-100) or a fixed amount in minor units.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Line is one priced line. Quantity may be fractional (hours).
type Line struct {
	Quantity  decimal.Decimal
	UnitPrice int64
}

type Totals struct {
	Subtotal       int64 `json:"subtotal"`
	DiscountAmount int64 `json:"discount_amount"`
	TaxAmount      int64 `json:"tax_amount"`
	Total          int64 `json:"total"`
}

// AfterDiscount is the taxable base. It is negative when a fixed discount
// exceeds the subtotal.
func (t Totals) AfterDiscount() int64 {
	return t.Subtotal - t.DiscountAmount
}

// LineAmount is quantity x unit price rounded to a whole minor unit.
func LineAmount(l Line) int64 {
	return roundMinor(l.Quantity.Mul(decimal.NewFromInt(l.UnitPrice)))
}

// CalculateTotals is the single source of truth for invoice money math.
// It never fails and does not clamp: a fixed discount larger than the
// subtotal yields a negative total.
func CalculateTotals(lines []Line, discount Discount, taxRate decimal.Decimal) Totals {
	var t Totals
	for _, l := range lines {
		t.Subtotal += LineAmount(l)
	}

	switch discount.Type {
	case DiscountPercentage:
		t.DiscountAmount = percentOf(t.Subtotal, discount.Value)
	case DiscountFixed:
		t.DiscountAmount = roundMinor(discount.Value)
	}

	t.TaxAmount = percentOf(t.AfterDiscount(), taxRate)
	t.Total = t.AfterDiscount() + t.TaxAmount
	return t
}

func percentOf(amount int64, percent decimal.Decimal) int64 {
	return roundMinor(decimal.NewFromInt(amount).Mul(percent).Shift(-2))
}

// roundMinor relies on decimal.Round rounding half away from zero.
func roundMinor(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
