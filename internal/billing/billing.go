// Package billing computes the end-of-session invoice from frozen inputs.
package billing

import "github.com/shopspring/decimal"

// Breakdown is the deterministic invoice for a session.
type Breakdown struct {
	DurationSeconds int64
	BilledMinutes   int64
	RatePerMinute   decimal.Decimal
	Multiplier      decimal.Decimal
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
}

// Invoice computes ceil(seconds/60) * rate * multiplier * (1 + taxRate).
// Inputs must be frozen at end-request time; the result is never
// recomputed from a still-ticking clock.
func Invoice(durationSeconds int64, ratePerMinute, multiplier, taxRate decimal.Decimal) Breakdown {
	minutes := durationSeconds / 60
	if durationSeconds%60 != 0 {
		minutes++
	}

	subtotal := decimal.NewFromInt(minutes).Mul(ratePerMinute).Mul(multiplier)
	tax := subtotal.Mul(taxRate)

	return Breakdown{
		DurationSeconds: durationSeconds,
		BilledMinutes:   minutes,
		RatePerMinute:   ratePerMinute,
		Multiplier:      multiplier,
		Subtotal:        subtotal,
		Tax:             tax,
		Total:           subtotal.Add(tax),
	}
}
