package job

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"arbitrator/internal/align"
	"arbitrator/internal/config"
	"arbitrator/internal/feed"
	"arbitrator/internal/history"
	"arbitrator/internal/metrics"
	"arbitrator/internal/scheduler"
	"arbitrator/internal/summary"
	"arbitrator/internal/window"
)

// Runner sequences one aggregation invocation: window, fetch, align, metrics,
// reduce, history merge. It owns no logic beyond composition.
type Runner struct {
	scheduler *scheduler.Scheduler
	prices    feed.PriceFeed
	rates     feed.RateFeed
	store     history.RecordStore
	logger    zerolog.Logger

	exchangeA   string
	exchangeB   string
	rateSource  string
	maxRetained int
	locker      history.AdvisoryLocker
	lockKey     int64
}

// New constructs the aggregation runner.
func New(cfg *config.Config, sched *scheduler.Scheduler, prices feed.PriceFeed, rates feed.RateFeed, store history.RecordStore, logger zerolog.Logger) *Runner {
	var locker history.AdvisoryLocker
	if l, ok := store.(history.AdvisoryLocker); ok {
		locker = l
	}

	return &Runner{
		scheduler:   sched,
		prices:      prices,
		rates:       rates,
		store:       store,
		logger:      logger.With().Str("component", "job").Logger(),
		exchangeA:   cfg.Feeds.ExchangeA,
		exchangeB:   cfg.Feeds.ExchangeB,
		rateSource:  cfg.Feeds.RateSource,
		maxRetained: cfg.History.MaxRetained,
		locker:      locker,
		lockKey:     cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned hourly loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return r.scheduler.Run(ctx, r.ProcessBucket)
}

// ProcessBucket 在单个时间桶上执行一次聚合。
func (r *Runner) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := r.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		r.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return r.RunOnce(ctx, bucket)
}

// RunOnce aggregates the hour preceding the given instant and merges the
// result into the rolling history. Nothing is written unless every stage
// succeeds.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) error {
	w := window.Compute(now)

	r.logger.Info().
		Time("cutoff_min", w.CutoffMin).
		Time("cutoff_max", w.CutoffMax).
		Msg("aggregating window")

	var priceA, priceB, rates []feed.Observation

	// The three range queries are independent; all must succeed.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		priceA, err = r.prices.Prices(gctx, r.exchangeA, w.CutoffMin, w.CutoffMax)
		return err
	})
	g.Go(func() error {
		var err error
		priceB, err = r.prices.Prices(gctx, r.exchangeB, w.CutoffMin, w.CutoffMax)
		return err
	})
	g.Go(func() error {
		var err error
		rates, err = r.rates.Rates(gctx, r.rateSource, w.RateMin, w.RateMax)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch observations: %w", err)
	}

	rows := align.Join(priceA, priceB, rates)
	align.ForwardFill(rows)

	enriched, extremes := metrics.Enrich(rows)

	hourly, err := summary.Reduce(enriched, extremes, w.CutoffMax)
	if err != nil {
		return fmt.Errorf("reduce window [%s, %s]: %w",
			w.CutoffMin.Format(time.RFC3339), w.CutoffMax.Format(time.RFC3339), err)
	}

	readKey := w.PeriodStart().Unix()
	existing, err := r.store.GetRecord(ctx, history.CategoryHourly, readKey)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	// The record is filed under the hour it completes while the lookup for
	// what came before uses the hour that just ended.
	rec := history.Merge(existing, hourly, w.CutoffMax.Unix(), r.maxRetained)

	if err := r.store.PutRecord(ctx, rec); err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	evt := r.logger.Info().
		Int("rows", len(rows)).
		Int("series_len", len(rec.Series)).
		Int64("period_start_ms", hourly.PeriodStartMS)
	if hourly.Spread != nil {
		evt = evt.Str("spread_pct", hourly.Spread.String())
	}
	evt.Msg("hourly summary merged")

	return nil
}

func (r *Runner) acquireLock(ctx context.Context) (func(), bool, error) {
	if r.lockKey == 0 || r.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := r.locker.TryAdvisoryLock(ctx, r.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
