package billing_test

import (
	"testing"

	"fakturierung-recurring/billing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func qty(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateTotalsPercentageDiscountWithTax(t *testing.T) {
	t.Parallel()

	lines := []billing.Line{{Quantity: qty("2"), UnitPrice: 5000}}
	discount := billing.Discount{Type: billing.DiscountPercentage, Value: qty("10")}

	got := billing.CalculateTotals(lines, discount, qty("8"))

	assert.Equal(t, billing.Totals{Subtotal: 10000, DiscountAmount: 1000, TaxAmount: 720, Total: 9720}, got)
	assert.Equal(t, int64(9000), got.AfterDiscount())
}

func TestCalculateTotals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lines    []billing.Line
		discount billing.Discount
		taxRate  string
		want     billing.Totals
	}{
		{
			name:     "no lines",
			discount: billing.Discount{Type: billing.DiscountNone},
			taxRate:  "19",
			want:     billing.Totals{},
		},
		{
			name:     "fixed discount",
			lines:    []billing.Line{{Quantity: qty("1"), UnitPrice: 10000}, {Quantity: qty("3"), UnitPrice: 250}},
			discount: billing.Discount{Type: billing.DiscountFixed, Value: qty("750")},
			taxRate:  "20",
			want:     billing.Totals{Subtotal: 10750, DiscountAmount: 750, TaxAmount: 2000, Total: 12000},
		},
		{
			name:     "fractional hours round per line half away from zero",
			lines:    []billing.Line{{Quantity: qty("1.5"), UnitPrice: 3333}, {Quantity: qty("0.25"), UnitPrice: 10}},
			discount: billing.Discount{Type: billing.DiscountNone},
			taxRate:  "0",
			// 4999.5 -> 5000, 2.5 -> 3
			want: billing.Totals{Subtotal: 5003, Total: 5003},
		},
		{
			name:     "percentage discount rounds once on the aggregate",
			lines:    []billing.Line{{Quantity: qty("1"), UnitPrice: 105}, {Quantity: qty("1"), UnitPrice: 100}},
			discount: billing.Discount{Type: billing.DiscountPercentage, Value: qty("10")},
			taxRate:  "0",
			// 10% of 205 = 20.5 -> 21
			want: billing.Totals{Subtotal: 205, DiscountAmount: 21, Total: 184},
		},
		{
			name:     "fractional tax rate",
			lines:    []billing.Line{{Quantity: qty("1"), UnitPrice: 1999}},
			discount: billing.Discount{Type: billing.DiscountNone},
			taxRate:  "7.5",
			// 149.925 -> 150
			want: billing.Totals{Subtotal: 1999, TaxAmount: 150, Total: 2149},
		},
		{
			name:     "fixed discount above subtotal goes negative",
			lines:    []billing.Line{{Quantity: qty("1"), UnitPrice: 1000}},
			discount: billing.Discount{Type: billing.DiscountFixed, Value: qty("1500")},
			taxRate:  "10",
			want:     billing.Totals{Subtotal: 1000, DiscountAmount: 1500, TaxAmount: -50, Total: -550},
		},
		{
			name:     "negative base rounds half away from zero",
			lines:    []billing.Line{{Quantity: qty("1"), UnitPrice: 100}},
			discount: billing.Discount{Type: billing.DiscountFixed, Value: qty("105")},
			taxRate:  "10",
			// -5 * 10% = -0.5 -> -1
			want: billing.Totals{Subtotal: 100, DiscountAmount: 105, TaxAmount: -1, Total: -6},
		},
		{
			name:     "empty discount type behaves like none",
			lines:    []billing.Line{{Quantity: qty("2"), UnitPrice: 50}},
			discount: billing.Discount{Value: qty("99")},
			taxRate:  "0",
			want:     billing.Totals{Subtotal: 100, Total: 100},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := billing.CalculateTotals(tt.lines, tt.discount, qty(tt.taxRate))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateTotalsNoDiscountNoTaxEqualsSubtotal(t *testing.T) {
	t.Parallel()

	none := billing.Discount{Type: billing.DiscountNone}
	for _, lines := range sampleLineSets() {
		got := billing.CalculateTotals(lines, none, decimal.Zero)
		assert.Equal(t, got.Subtotal, got.Total)
		assert.Zero(t, got.DiscountAmount)
		assert.Zero(t, got.TaxAmount)
	}
}

func TestCalculateTotalsReconciles(t *testing.T) {
	t.Parallel()

	discounts := []billing.Discount{
		{Type: billing.DiscountNone},
		{Type: billing.DiscountPercentage, Value: qty("12.5")},
		{Type: billing.DiscountPercentage, Value: qty("100")},
		{Type: billing.DiscountFixed, Value: qty("333")},
		{Type: billing.DiscountFixed, Value: qty("1000000")},
	}
	rates := []string{"0", "5", "7.7", "19", "100"}

	for _, lines := range sampleLineSets() {
		for _, d := range discounts {
			for _, r := range rates {
				got := billing.CalculateTotals(lines, d, qty(r))
				assert.Equal(t, got.Subtotal-got.DiscountAmount+got.TaxAmount, got.Total)
			}
		}
	}
}

func TestCalculateTotalsIsDeterministic(t *testing.T) {
	t.Parallel()

	lines := []billing.Line{{Quantity: qty("0.333"), UnitPrice: 12345}, {Quantity: qty("7"), UnitPrice: 1}}
	d := billing.Discount{Type: billing.DiscountPercentage, Value: qty("3.3")}

	first := billing.CalculateTotals(lines, d, qty("21"))
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, billing.CalculateTotals(lines, d, qty("21")))
	}
}

func TestDiscountTypeIsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, billing.DiscountNone.IsValid())
	assert.True(t, billing.DiscountPercentage.IsValid())
	assert.True(t, billing.DiscountFixed.IsValid())
	assert.False(t, billing.DiscountType("BOGO").IsValid())
}

func sampleLineSets() [][]billing.Line {
	return [][]billing.Line{
		nil,
		{{Quantity: qty("1"), UnitPrice: 0}},
		{{Quantity: qty("2"), UnitPrice: 5000}},
		{{Quantity: qty("0.5"), UnitPrice: 1}, {Quantity: qty("1.75"), UnitPrice: 9999}},
		{{Quantity: qty("12"), UnitPrice: 150}, {Quantity: qty("3.333"), UnitPrice: 7000}, {Quantity: qty("1"), UnitPrice: 1}},
	}
}
