package metrics

import (
	"github.com/shopspring/decimal"

	"arbitrator/internal/align"
)

var hundred = decimal.NewFromInt(100)

// Row augments an aligned row with the converted price and the spread.
//
// Converted expresses price A in price B's currency (price_a × rate); Spread
// is the relative difference of price B against that converted price, in
// percent. Either stays nil when an input column is nil.
type Row struct {
	align.Row
	Converted *decimal.Decimal
	Spread    *decimal.Decimal
}

// Extremes holds the hour-wide minima and maxima, computed once over the full
// row set rather than broadcast onto each row.
type Extremes struct {
	ConvertedMin *decimal.Decimal
	ConvertedMax *decimal.Decimal
	PriceBMin    *decimal.Decimal
	PriceBMax    *decimal.Decimal
	SpreadMin    *decimal.Decimal
	SpreadMax    *decimal.Decimal
}

// Enrich computes per-row metrics and the hour-wide extremes.
func Enrich(rows []align.Row) ([]Row, Extremes) {
	enriched := make([]Row, len(rows))
	for i, r := range rows {
		e := Row{Row: r}

		if r.PriceA != nil && r.Rate != nil {
			converted := r.PriceA.Mul(*r.Rate)
			e.Converted = &converted

			if r.PriceB != nil && !converted.IsZero() {
				spread := r.PriceB.Sub(converted).Div(converted).Mul(hundred)
				e.Spread = &spread
			}
		}

		enriched[i] = e
	}

	var ext Extremes
	for i := range enriched {
		observe(&ext.ConvertedMin, &ext.ConvertedMax, enriched[i].Converted)
		observe(&ext.PriceBMin, &ext.PriceBMax, enriched[i].PriceB)
		observe(&ext.SpreadMin, &ext.SpreadMax, enriched[i].Spread)
	}

	return enriched, ext
}

func observe(min, max **decimal.Decimal, v *decimal.Decimal) {
	if v == nil {
		return
	}
	if *min == nil || v.LessThan(**min) {
		value := *v
		*min = &value
	}
	if *max == nil || v.GreaterThan(**max) {
		value := *v
		*max = &value
	}
}
