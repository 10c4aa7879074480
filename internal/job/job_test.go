package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arbitrator/internal/config"
	"arbitrator/internal/feed"
	"arbitrator/internal/history"
	"arbitrator/internal/summary"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Feeds.ExchangeA = "kraken"
	cfg.Feeds.ExchangeB = "luno"
	cfg.Feeds.RateSource = "fixer"
	cfg.History.MaxRetained = history.DefaultMaxRetained
	return cfg
}

type feedRange struct {
	id   string
	from time.Time
	to   time.Time
}

type stubFeeds struct {
	prices      map[string][]feed.Observation
	rates       []feed.Observation
	priceErr    error
	rateRanges  []feedRange
	priceRanges []feedRange
}

func (s *stubFeeds) Prices(ctx context.Context, exchange string, from, to time.Time) ([]feed.Observation, error) {
	s.priceRanges = append(s.priceRanges, feedRange{exchange, from, to})
	if s.priceErr != nil {
		return nil, s.priceErr
	}
	return s.prices[exchange], nil
}

func (s *stubFeeds) Rates(ctx context.Context, source string, from, to time.Time) ([]feed.Observation, error) {
	s.rateRanges = append(s.rateRanges, feedRange{source, from, to})
	return s.rates, nil
}

type stubStore struct {
	existing *history.Record
	getErr   error
	putErr   error

	gotCategory string
	gotKey      int64
	put         *history.Record
}

func (s *stubStore) GetRecord(ctx context.Context, category string, periodStart int64) (*history.Record, error) {
	s.gotCategory = category
	s.gotKey = periodStart
	return s.existing, s.getErr
}

func (s *stubStore) PutRecord(ctx context.Context, rec history.Record) error {
	if s.putErr != nil {
		return s.putErr
	}
	r := rec
	s.put = &r
	return nil
}

func obs(t time.Time, v string) feed.Observation {
	return feed.Observation{Timestamp: t.Unix(), Value: decimal.RequireFromString(v)}
}

func TestRunOnceWritesMergedRecord(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 37, 0, 0, time.UTC)
	hourStart := time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC)
	t0 := hourStart.Add(time.Minute)

	feeds := &stubFeeds{
		prices: map[string][]feed.Observation{
			"kraken": {obs(t0, "100"), obs(t0.Add(time.Minute), "102")},
			"luno":   {obs(t0, "3000")},
		},
		rates: []feed.Observation{obs(t0, "18.0")},
	}
	store := &stubStore{}

	runner := New(testConfig(), nil, feeds, feeds, store, zerolog.Nop())
	if err := runner.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce 不应报错: %v", err)
	}

	// Read under the previous hour start, write under the hour just completed.
	if store.gotCategory != history.CategoryHourly {
		t.Fatalf("read category = %q", store.gotCategory)
	}
	if store.gotKey != hourStart.Unix() {
		t.Fatalf("read key = %d, want %d", store.gotKey, hourStart.Unix())
	}
	if store.put == nil {
		t.Fatal("record should have been written")
	}
	if store.put.PeriodStart != now.Truncate(time.Hour).Unix() {
		t.Fatalf("write key = %d, want %d", store.put.PeriodStart, now.Truncate(time.Hour).Unix())
	}

	if len(store.put.Series) != 1 {
		t.Fatalf("series length = %d, want 1", len(store.put.Series))
	}
	s := store.put.Series[0]
	if s.PeriodStartMS != t0.Unix()*1000 {
		t.Fatalf("period_start_ms = %d, want %d", s.PeriodStartMS, t0.Unix()*1000)
	}
	if s.Converted == nil || s.Converted.StringFixed(2) != "1818.00" {
		t.Fatalf("converted mean = %v, want 1818.00", s.Converted)
	}
	if s.Spread == nil || s.Spread.StringFixed(2) != "65.03" {
		t.Fatalf("spread mean = %v, want 65.03", s.Spread)
	}
	if s.WindowEnd == "" {
		t.Fatal("latest summary should carry the window end label")
	}
}

func TestRunOncePrependsOntoExisting(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	t0 := time.Date(2026, 8, 29, 13, 1, 0, 0, time.UTC)

	feeds := &stubFeeds{
		prices: map[string][]feed.Observation{
			"kraken": {obs(t0, "100")},
			"luno":   {obs(t0, "3000")},
		},
		rates: []feed.Observation{obs(t0, "18.0")},
	}
	store := &stubStore{
		existing: &history.Record{
			Category:    history.CategoryHourly,
			PeriodStart: now.Add(-time.Hour).Unix(),
			Series:      []history.HourlySummary{{PeriodStartMS: 1}},
		},
	}

	runner := New(testConfig(), nil, feeds, feeds, store, zerolog.Nop())
	if err := runner.RunOnce(context.Background(), now); err != nil {
		t.Fatalf("RunOnce 不应报错: %v", err)
	}

	if len(store.put.Series) != 2 {
		t.Fatalf("series length = %d, want 2", len(store.put.Series))
	}
	if store.put.Series[1].PeriodStartMS != 1 {
		t.Fatal("existing entries must follow the new summary")
	}
}

func TestRunOnceQueriesExpectedRanges(t *testing.T) {
	now := time.Date(2026, 8, 29, 14, 10, 0, 0, time.UTC)

	feeds := &stubFeeds{
		prices: map[string][]feed.Observation{
			"kraken": {obs(time.Date(2026, 8, 29, 13, 1, 0, 0, time.UTC), "1")},
		},
	}
	store := &stubStore{}

	runner := New(testConfig(), nil, feeds, feeds, store, zerolog.Nop())
	_ = runner.RunOnce(context.Background(), now)

	if len(feeds.priceRanges) != 2 {
		t.Fatalf("price queries = %d, want 2", len(feeds.priceRanges))
	}
	wantMin := time.Date(2026, 8, 29, 13, 1, 0, 0, time.UTC)
	wantMax := time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC)
	for _, r := range feeds.priceRanges {
		if !r.from.Equal(wantMin) || !r.to.Equal(wantMax) {
			t.Fatalf("price range [%s, %s], want [%s, %s]", r.from, r.to, wantMin, wantMax)
		}
	}

	if len(feeds.rateRanges) != 1 {
		t.Fatalf("rate queries = %d, want 1", len(feeds.rateRanges))
	}
	rr := feeds.rateRanges[0]
	if !rr.from.Equal(time.Date(2026, 8, 29, 13, 0, 0, 0, time.UTC)) {
		t.Fatalf("rate range widened start = %s", rr.from)
	}
	if !rr.to.Equal(time.Date(2026, 8, 29, 13, 58, 59, 0, time.UTC)) {
		t.Fatalf("rate range end = %s", rr.to)
	}
}

func TestRunOnceFeedFailureWritesNothing(t *testing.T) {
	feeds := &stubFeeds{priceErr: errors.New("upstream down")}
	store := &stubStore{}

	runner := New(testConfig(), nil, feeds, feeds, store, zerolog.Nop())
	err := runner.RunOnce(context.Background(), time.Now().UTC())
	if err == nil {
		t.Fatal("feed 查询失败必须使整次调用失败")
	}
	if store.put != nil {
		t.Fatal("nothing may be written after an upstream failure")
	}
}

func TestRunOnceEmptyWindowWritesNothing(t *testing.T) {
	feeds := &stubFeeds{prices: map[string][]feed.Observation{}}
	store := &stubStore{}

	runner := New(testConfig(), nil, feeds, feeds, store, zerolog.Nop())
	err := runner.RunOnce(context.Background(), time.Now().UTC())
	if !errors.Is(err, summary.ErrNoData) {
		t.Fatalf("空窗口应返回 ErrNoData, 实际 %v", err)
	}
	if store.put != nil {
		t.Fatal("no summary may be written for an empty window")
	}
}

func TestRunOnceStoreReadFailureAborts(t *testing.T) {
	t0 := time.Now().UTC().Truncate(time.Hour).Add(-30 * time.Minute)
	feeds := &stubFeeds{
		prices: map[string][]feed.Observation{"kraken": {obs(t0, "1")}},
	}
	store := &stubStore{getErr: errors.New("pg down")}

	runner := New(testConfig(), nil, feeds, feeds, store, zerolog.Nop())
	if err := runner.RunOnce(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("history 读取失败必须上抛")
	}
	if store.put != nil {
		t.Fatal("nothing may be written after a history read failure")
	}
}
