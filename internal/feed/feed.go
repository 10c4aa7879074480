package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Observation is a single timestamped reading from an upstream feed.
type Observation struct {
	Timestamp int64
	Value     decimal.Decimal
}

// PriceFeed retrieves minute-granularity price observations for an exchange.
type PriceFeed interface {
	Prices(ctx context.Context, exchange string, from, to time.Time) ([]Observation, error)
}

// RateFeed retrieves half-hourly currency conversion rate observations.
type RateFeed interface {
	Rates(ctx context.Context, source string, from, to time.Time) ([]Observation, error)
}
