// Package pricing computes the buyer-facing charge for an order.  It is
// pure and stateless: face value in, subtotal/fee/total out, all in minor
// currency units (cents).
//
// The charge is built in two steps.  First the platform component is added
// on top of the face value (6.6% + a fixed amount).  Then the result is
// grossed up for the payment processor's own 2.9% + fixed cut, so that
// after the processor takes its share the merchant still nets face value
// plus platform component.  Free tickets carry no fee at all.
package pricing

import "math"

const (
	platformPercent     = 0.066 // platform share of face value
	platformFixedCents  = 179   // fixed platform component in cents
	processorPercent    = 0.029 // processor percentage cut
	processorFixedCents = 30    // processor fixed cut in cents
)

// Quote is the priced breakdown of a single face value.  Total is what the
// buyer pays; Fee is Total minus Subtotal.
type Quote struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	FeeCents      int64 `json:"fee_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// PriceOrder prices a single face value.  A zero face value yields a zero
// quote: free tickets never carry a processing fee.
func PriceOrder(faceCents int64) Quote {
	if faceCents <= 0 {
		return Quote{}
	}
	platform := float64(faceCents)*platformPercent + platformFixedCents
	requiredNet := float64(faceCents) + platform
	total := roundHalfUp((requiredNet + processorFixedCents) / (1 - processorPercent))
	return Quote{
		SubtotalCents: faceCents,
		FeeCents:      total - faceCents,
		TotalCents:    total,
	}
}

// PriceLine prices one line item: quantity tickets at a unit face value.
// The line is priced on its combined face value, and order totals are the
// sum of line quotes.  Lines are never re-derived from an aggregate face
// value, so per-line rounding cannot drift.
func PriceLine(unitPriceCents int64, quantity int) Quote {
	if quantity <= 0 {
		return Quote{}
	}
	return PriceOrder(unitPriceCents * int64(quantity))
}

// Sum adds quotes together field by field.
func Sum(quotes ...Quote) Quote {
	var out Quote
	for _, q := range quotes {
		out.SubtotalCents += q.SubtotalCents
		out.FeeCents += q.FeeCents
		out.TotalCents += q.TotalCents
	}
	return out
}

// roundHalfUp rounds a non-negative cent amount to the nearest whole cent,
// with .5 rounding away from zero.
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
