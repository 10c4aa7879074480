package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"arbitrator/internal/config"
	"arbitrator/internal/feed"
	"arbitrator/internal/history"
	"arbitrator/internal/job"
	"arbitrator/internal/scheduler"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openReader(ctx context.Context) (*feed.Reader, error) {
	if a.Config.ClickHouse.DSN == "" {
		return nil, errors.New("clickhouse.dsn is required")
	}
	return feed.NewReader(ctx, feed.Options{
		DSN:     a.Config.ClickHouse.DSN,
		Timeout: a.Config.ClickHouse.QueryTimeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*history.Store, func(), error) {
	pool, err := history.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := history.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newRunner(ctx context.Context, sched *scheduler.Scheduler) (*job.Runner, func(), error) {
	reader, err := a.openReader(ctx)
	if err != nil {
		return nil, nil, err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		reader.Close()
		return nil, nil, err
	}

	closer := func() {
		closeStore()
		_ = reader.Close()
	}

	runner := job.New(a.Config, sched, reader, reader, store, a.Logger)
	return runner, closer, nil
}

// Run executes the long-running hourly aggregation service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	runner, closer, err := a.newRunner(ctx, sched)
	if err != nil {
		return err
	}
	defer closer()

	a.Logger.Info().Msg("starting aggregation service")
	err = runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("aggregation service stopped")
	return nil
}

// RunOnce executes a single aggregation for the hour preceding now, the way
// an external scheduler would invoke it.
func (a *App) RunOnce(ctx context.Context) error {
	runner, closer, err := a.newRunner(ctx, nil)
	if err != nil {
		return err
	}
	defer closer()

	return runner.ProcessBucket(ctx, time.Now().UTC())
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
