/*
settlement.go - Line item pricing

PURPOSE:
  Computes a line item's hourly rate and subtotal, either from the rate
  configuration and formula, or from a manually entered subtotal.

MODES:
  Computed: subtotal = formula(valor_profesor=base, valor_alumnos=band, horas=hours)
            hourly rate = base + band
  Manual:   subtotal = entered value
            hourly rate = subtotal / hours (zero when hours is zero)

  The computed hourly rate is independent of the formula; with a non-linear
  formula it need not equal subtotal / hours.

PURITY:
  No side effects. The result depends only on the inputs and the RateConfig
  snapshot, and is never recomputed when rates change later.
*/
package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/escuelademusica/liquidaciones/formula"
)

// LineInput is what the caller knows about a class.
type LineInput struct {
	StudentCount   int
	Hours          decimal.Decimal
	ManualSubtotal *decimal.Decimal // nil = computed mode
}

// Settlement is the priced result for a line item.
type Settlement struct {
	HourlyRate decimal.Decimal
	Subtotal   decimal.Decimal
	Manual     bool
}

// ComputeSubtotal evaluates the configured formula for a class. A broken
// formula yields zero.
func (c RateConfig) ComputeSubtotal(scale, studentCount int, hours decimal.Decimal) decimal.Decimal {
	return formula.Evaluate(c.Formula, formula.Vars{
		TeacherRate: c.BaseRate(scale),
		BandRate:    c.BandRate(scale, studentCount),
		Hours:       hours,
	})
}

// EffectiveHourlyRate is the display rate for computed line items.
func (c RateConfig) EffectiveHourlyRate(scale, studentCount int) decimal.Decimal {
	return c.HourlyRate(scale, studentCount)
}

// ManualSettlement back-derives the hourly rate from an entered subtotal.
func ManualSettlement(subtotal, hours decimal.Decimal) Settlement {
	rate := decimal.Zero
	if !hours.IsZero() {
		rate = subtotal.Div(hours)
	}
	return Settlement{HourlyRate: rate, Subtotal: subtotal, Manual: true}
}

// Settle prices a line item for a teacher at scale.
func (c RateConfig) Settle(scale int, in LineInput) Settlement {
	if in.ManualSubtotal != nil {
		return ManualSettlement(*in.ManualSubtotal, in.Hours)
	}
	return Settlement{
		HourlyRate: c.EffectiveHourlyRate(scale, in.StudentCount),
		Subtotal:   c.ComputeSubtotal(scale, in.StudentCount, in.Hours),
	}
}

// StatementTotal is the exact sum of the items' subtotals.
func StatementTotal(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// CloneLineItems copies the items whose IDs are selected, in source order,
// detached from their statement. Stored rate and subtotal are kept as-is.
func CloneLineItems(src []LineItem, selected []int64) []LineItem {
	want := make(map[int64]bool, len(selected))
	for _, id := range selected {
		want[id] = true
	}
	var out []LineItem
	for _, it := range src {
		if !want[it.ID] {
			continue
		}
		it.ID = 0
		it.StatementID = 0
		out = append(out, it)
	}
	return out
}
