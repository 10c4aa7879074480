package align

import (
	"sort"

	"github.com/shopspring/decimal"

	"arbitrator/internal/feed"
)

// Row is one minute-mark of the hour with the three feed values side by side.
// A nil column means no observation landed on that minute and nothing earlier
// was available to fill from.
type Row struct {
	Timestamp int64
	PriceA    *decimal.Decimal
	PriceB    *decimal.Decimal
	Rate      *decimal.Decimal
}

// Join builds one row per timestamp present in priceA and left-joins priceB
// and rates onto it by exact timestamp. Output is ordered ascending.
func Join(priceA, priceB, rates []feed.Observation) []Row {
	rows := make([]Row, 0, len(priceA))
	index := make(map[int64]int, len(priceA))

	for _, o := range priceA {
		if _, ok := index[o.Timestamp]; ok {
			continue
		}
		v := o.Value
		index[o.Timestamp] = len(rows)
		rows = append(rows, Row{Timestamp: o.Timestamp, PriceA: &v})
	}

	for _, o := range priceB {
		if i, ok := index[o.Timestamp]; ok {
			v := o.Value
			rows[i].PriceB = &v
		}
	}
	for _, o := range rates {
		if i, ok := index[o.Timestamp]; ok {
			v := o.Value
			rows[i].Rate = &v
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp < rows[j].Timestamp })
	return rows
}

// ForwardFill replaces nil PriceB/Rate values in place with the most recent
// earlier value in the same column. Existing values are never altered; a
// column with no earlier value stays nil and propagates through arithmetic.
func ForwardFill(rows []Row) {
	var lastB, lastRate *decimal.Decimal
	for i := range rows {
		if rows[i].PriceB != nil {
			lastB = rows[i].PriceB
		} else if lastB != nil {
			v := *lastB
			rows[i].PriceB = &v
		}

		if rows[i].Rate != nil {
			lastRate = rows[i].Rate
		} else if lastRate != nil {
			v := *lastRate
			rows[i].Rate = &v
		}
	}
}
