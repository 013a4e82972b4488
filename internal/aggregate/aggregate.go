// Package aggregate computes landed cost, ranking and savings over a
// product's vendor quotes. Every function is pure: inputs are never
// modified and the same input always yields the same output.
package aggregate

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/kainult/price-platform/internal/quote"
)

// LowestLandedCost returns the minimum landed cost over available quotes.
// ok is false when no quote is available.
func LowestLandedCost(quotes []quote.PriceQuote) (lowest decimal.Decimal, ok bool) {
	for _, q := range quotes {
		cost, available := q.LandedCost()
		if !available {
			continue
		}
		if !ok || cost.LessThan(lowest) {
			lowest = cost
			ok = true
		}
	}
	return lowest, ok
}

// Savings returns the spread between the most and least expensive available
// offer. With fewer than two available quotes there is nothing to compare
// and the result is zero.
func Savings(quotes []quote.PriceQuote) decimal.Decimal {
	var lowest, highest decimal.Decimal
	n := 0
	for _, q := range quotes {
		cost, available := q.LandedCost()
		if !available {
			continue
		}
		if n == 0 || cost.LessThan(lowest) {
			lowest = cost
		}
		if n == 0 || cost.GreaterThan(highest) {
			highest = cost
		}
		n++
	}
	if n < 2 {
		return decimal.Zero
	}
	return highest.Sub(lowest)
}

// Rank returns available quotes ascending by landed cost followed by the
// unavailable ones in their original order. Equal costs keep input order.
func Rank(quotes []quote.PriceQuote) []quote.PriceQuote {
	available := make([]quote.PriceQuote, 0, len(quotes))
	var unavailable []quote.PriceQuote
	for _, q := range quotes {
		if q.InStock() {
			available = append(available, q)
		} else {
			unavailable = append(unavailable, q)
		}
	}

	slices.SortStableFunc(available, func(a, b quote.PriceQuote) int {
		ca, _ := a.LandedCost()
		cb, _ := b.LandedCost()
		return ca.Cmp(cb)
	})

	return append(available, unavailable...)
}

// Summary bundles the aggregates of a single product.
type Summary struct {
	Lowest    decimal.Decimal
	HasLowest bool
	Savings   decimal.Decimal
	Ranked    []quote.PriceQuote
	Available int
}

// Best returns the cheapest available quote, if any.
func (s Summary) Best() (quote.PriceQuote, bool) {
	if s.Available == 0 {
		return quote.PriceQuote{}, false
	}
	return s.Ranked[0], true
}

// Summarize runs every aggregate over p's quotes.
func Summarize(p quote.Product) Summary {
	quotes := p.Quotes()
	lowest, ok := LowestLandedCost(quotes)

	available := 0
	for _, q := range quotes {
		if q.InStock() {
			available++
		}
	}

	return Summary{
		Lowest:    lowest,
		HasLowest: ok,
		Savings:   Savings(quotes),
		Ranked:    Rank(quotes),
		Available: available,
	}
}

// Discount describes the markdown a vendor advertises against its original
// price.
type Discount struct {
	Amount  decimal.Decimal
	Percent decimal.Decimal
}

// DiscountOf returns the advertised markdown of q. ok is false when the
// vendor lists no original price or the original equals the listed price.
func DiscountOf(q quote.PriceQuote) (d Discount, ok bool) {
	original, has := q.OriginalPrice()
	if !has || original.IsZero() {
		return Discount{}, false
	}
	amount := original.Sub(q.Price())
	if !amount.IsPositive() {
		return Discount{}, false
	}
	return Discount{
		Amount:  amount,
		Percent: amount.Div(original).Mul(decimal.NewFromInt(100)).Round(0),
	}, true
}
