package history

import (
	"github.com/shopspring/decimal"
)

// CategoryHourly keys the hourly aggregation series in the history store.
const CategoryHourly = "hourly"

// DefaultMaxRetained caps the rolling series at one week of hourly points.
const DefaultMaxRetained = 24 * 7

// HourlySummary is one averaged hour. Decimals marshal as exact strings so
// repeated round-trips through the store never drift; nil means the hour had
// an unfillable gap in that column.
type HourlySummary struct {
	PeriodStartMS int64            `json:"period_start_ms"`
	PriceA        *decimal.Decimal `json:"price_a"`
	Converted     *decimal.Decimal `json:"converted"`
	PriceB        *decimal.Decimal `json:"price_b"`
	Rate          *decimal.Decimal `json:"rate"`
	Spread        *decimal.Decimal `json:"spread"`
	ConvertedMin  *decimal.Decimal `json:"converted_min"`
	ConvertedMax  *decimal.Decimal `json:"converted_max"`
	PriceBMin     *decimal.Decimal `json:"price_b_min"`
	PriceBMax     *decimal.Decimal `json:"price_b_max"`
	SpreadMin     *decimal.Decimal `json:"spread_min"`
	SpreadMax     *decimal.Decimal `json:"spread_max"`
	WindowEnd     string           `json:"window_end,omitempty"`
}

// Record is the persisted unit: a rolling series of hourly summaries, newest
// first, keyed by (Category, PeriodStart).
type Record struct {
	Category    string          `json:"category"`
	PeriodStart int64           `json:"period_start"`
	Series      []HourlySummary `json:"series"`
}

// Merge prepends the new summary onto the existing record's series, truncated
// so the result never exceeds maxRetained entries, and keys the result under
// writeKey. A nil existing record yields a single-element series.
//
// Re-running the same hour produces a duplicate leading entry; the merger does
// not deduplicate by timestamp, exactly-once invocation is on the scheduler.
func Merge(existing *Record, s HourlySummary, writeKey int64, maxRetained int) Record {
	if maxRetained <= 0 {
		maxRetained = DefaultMaxRetained
	}

	series := make([]HourlySummary, 0, maxRetained)
	series = append(series, s)

	if existing != nil {
		old := existing.Series
		if len(old) > maxRetained-1 {
			old = old[:maxRetained-1]
		}
		series = append(series, old...)
	}

	return Record{
		Category:    CategoryHourly,
		PeriodStart: writeKey,
		Series:      series,
	}
}
