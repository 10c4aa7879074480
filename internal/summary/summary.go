package summary

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"arbitrator/internal/history"
	"arbitrator/internal/metrics"
)

// ErrNoData indicates the alignment window produced no rows at all.
var ErrNoData = errors.New("no data for period")

const roundPlaces = 2

// Reduce collapses the hour's enriched rows into a single summary: arithmetic
// mean per column over the non-nil values, extremes carried through, every
// numeric rounded to 2 decimal places (half away from zero). The window upper
// bound is attached as a human-readable label on the produced summary only.
func Reduce(rows []metrics.Row, ext metrics.Extremes, cutoffMax time.Time) (history.HourlySummary, error) {
	if len(rows) == 0 {
		return history.HourlySummary{}, ErrNoData
	}

	s := history.HourlySummary{
		PeriodStartMS: rows[0].Timestamp * 1000,
		PriceA:        meanOf(rows, func(r metrics.Row) *decimal.Decimal { return r.PriceA }),
		Converted:     meanOf(rows, func(r metrics.Row) *decimal.Decimal { return r.Converted }),
		PriceB:        meanOf(rows, func(r metrics.Row) *decimal.Decimal { return r.PriceB }),
		Rate:          meanOf(rows, func(r metrics.Row) *decimal.Decimal { return r.Rate }),
		Spread:        meanOf(rows, func(r metrics.Row) *decimal.Decimal { return r.Spread }),
		ConvertedMin:  rounded(ext.ConvertedMin),
		ConvertedMax:  rounded(ext.ConvertedMax),
		PriceBMin:     rounded(ext.PriceBMin),
		PriceBMax:     rounded(ext.PriceBMax),
		SpreadMin:     rounded(ext.SpreadMin),
		SpreadMax:     rounded(ext.SpreadMax),
		WindowEnd:     cutoffMax.UTC().Format(time.RFC3339),
	}

	for _, r := range rows[1:] {
		if ms := r.Timestamp * 1000; ms < s.PeriodStartMS {
			s.PeriodStartMS = ms
		}
	}

	return s, nil
}

func meanOf(rows []metrics.Row, column func(metrics.Row) *decimal.Decimal) *decimal.Decimal {
	sum := decimal.Zero
	count := 0
	for _, r := range rows {
		if v := column(r); v != nil {
			sum = sum.Add(*v)
			count++
		}
	}
	if count == 0 {
		return nil
	}
	mean := sum.Div(decimal.NewFromInt(int64(count))).Round(roundPlaces)
	return &mean
}

func rounded(v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return nil
	}
	r := v.Round(roundPlaces)
	return &r
}
