package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arbitrator/internal/align"
	"arbitrator/internal/feed"
)

func obs(ts int64, v string) feed.Observation {
	return feed.Observation{Timestamp: ts, Value: decimal.RequireFromString(v)}
}

func alignedRows(t *testing.T, priceA, priceB, rates []feed.Observation) []align.Row {
	t.Helper()
	rows := align.Join(priceA, priceB, rates)
	align.ForwardFill(rows)
	return rows
}

func TestEnrichConvertedAndSpread(t *testing.T) {
	const t0 = int64(1_700_000_000)

	rows := alignedRows(t,
		[]feed.Observation{obs(t0, "100"), obs(t0+60, "102")},
		[]feed.Observation{obs(t0, "3000")},
		[]feed.Observation{obs(t0, "18.0")},
	)

	enriched, _ := Enrich(rows)
	require.Len(t, enriched, 2)

	require.NotNil(t, enriched[1].Converted)
	assert.True(t, enriched[1].Converted.Equal(decimal.RequireFromString("1836")),
		"converted at t0+60 should be 102*18.0, got %s", enriched[1].Converted)

	require.NotNil(t, enriched[1].Spread)
	assert.Equal(t, "63.40", enriched[1].Spread.StringFixed(2))

	require.NotNil(t, enriched[0].Converted)
	assert.True(t, enriched[0].Converted.Equal(decimal.RequireFromString("1800")))
}

func TestEnrichExtremes(t *testing.T) {
	const t0 = int64(1_700_000_000)

	rows := alignedRows(t,
		[]feed.Observation{obs(t0, "100"), obs(t0+60, "102"), obs(t0+120, "98")},
		[]feed.Observation{obs(t0, "3000"), obs(t0+120, "2900")},
		[]feed.Observation{obs(t0, "18.0")},
	)

	_, ext := Enrich(rows)

	require.NotNil(t, ext.ConvertedMin)
	assert.True(t, ext.ConvertedMin.Equal(decimal.RequireFromString("1764")), "min converted is 98*18")
	assert.True(t, ext.ConvertedMax.Equal(decimal.RequireFromString("1836")), "max converted is 102*18")
	assert.True(t, ext.PriceBMin.Equal(decimal.RequireFromString("2900")))
	assert.True(t, ext.PriceBMax.Equal(decimal.RequireFromString("3000")))

	// Spread extremes must equal the true min/max of the per-row metric.
	enriched, _ := Enrich(rows)
	var lo, hi *decimal.Decimal
	for i := range enriched {
		s := enriched[i].Spread
		require.NotNil(t, s)
		if lo == nil || s.LessThan(*lo) {
			lo = s
		}
		if hi == nil || s.GreaterThan(*hi) {
			hi = s
		}
	}
	assert.True(t, ext.SpreadMin.Equal(*lo))
	assert.True(t, ext.SpreadMax.Equal(*hi))
}

func TestEnrichNilPropagation(t *testing.T) {
	const t0 = int64(1_700_000_000)

	// Rate column entirely missing: converted and spread stay nil everywhere.
	rows := alignedRows(t,
		[]feed.Observation{obs(t0, "100"), obs(t0+60, "102")},
		[]feed.Observation{obs(t0, "3000")},
		nil,
	)

	enriched, ext := Enrich(rows)
	for i := range enriched {
		assert.Nil(t, enriched[i].Converted, "row %d", i)
		assert.Nil(t, enriched[i].Spread, "row %d", i)
	}
	assert.Nil(t, ext.ConvertedMin)
	assert.Nil(t, ext.SpreadMax)
	require.NotNil(t, ext.PriceBMin)
}

func TestEnrichEmpty(t *testing.T) {
	enriched, ext := Enrich(nil)
	assert.Empty(t, enriched)
	assert.Nil(t, ext.ConvertedMin)
	assert.Nil(t, ext.PriceBMax)
	assert.Nil(t, ext.SpreadMin)
}
