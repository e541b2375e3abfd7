// Package pipeline wires a page fetcher, the concurrent paginator and a
// loader into one sync run for a single entity.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/loader"
	"github.com/Sternrassler/subgraph-sync/pkg/pagination"
	"github.com/Sternrassler/subgraph-sync/pkg/runlock"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Mode selects how fetched records reach the store.
type Mode string

const (
	// ModeBuffered collects the whole collection in memory, then loads it.
	ModeBuffered Mode = "buffered"

	// ModeStreaming writes batches as pages arrive inside one open transaction.
	ModeStreaming Mode = "streaming"
)

// ErrInvalidMode is returned for an unknown mode string.
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode parses a mode name. The empty string selects ModeBuffered.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeBuffered:
		return ModeBuffered, nil
	case ModeStreaming:
		return ModeStreaming, nil
	default:
		return "", fmt.Errorf("%w %q (want %s or %s)", ErrInvalidMode, s, ModeBuffered, ModeStreaming)
	}
}

// Config describes one sync run.
type Config struct {
	Entity     *entity.Entity
	Schema     string
	Pagination pagination.Config
	Loader     loader.Config
	Mode       Mode
	// DryRun fetches without touching the store
	DryRun bool
	// RunTimeout bounds the whole run (0 = none)
	RunTimeout time.Duration
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Entity   string
	Table    string
	Mode     Mode
	DryRun   bool
	Fetch    pagination.Stats
	Load     loader.Result
	Duration time.Duration
}

// Runner executes sync runs.
type Runner struct {
	fetcher pagination.PageFetcher
	store   store.Store
	locker  *runlock.Locker
	config  Config
}

// New creates a runner. store may be nil for dry runs and locker may be nil
// when no run lock is wanted.
func New(fetcher pagination.PageFetcher, st store.Store, locker *runlock.Locker, cfg Config) (*Runner, error) {
	if cfg.Entity == nil {
		return nil, errors.New("pipeline: entity is required")
	}
	if fetcher == nil {
		return nil, errors.New("pipeline: fetcher is required")
	}
	if st == nil && !cfg.DryRun {
		return nil, errors.New("pipeline: store is required unless dry-run")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.Loader.Conflict == "" {
		cfg.Loader.Conflict = store.ConflictNatural
	}
	if cfg.Pagination.Name == "" {
		cfg.Pagination.Name = cfg.Entity.Collection
	}

	return &Runner{
		fetcher: fetcher,
		store:   st,
		locker:  locker,
		config:  cfg,
	}, nil
}

// Run acquires the run lock, ensures the target table, paginates the
// collection and loads it. Nothing is committed when any step fails.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{
		RunID:  uuid.NewString(),
		Entity: r.config.Entity.Name,
		Table:  r.config.Entity.Table,
		Mode:   r.config.Mode,
		DryRun: r.config.DryRun,
	}

	logger := log.With().
		Str("component", "pipeline").
		Str("run_id", report.RunID).
		Str("entity", report.Entity).
		Logger()

	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	logger.Info().
		Str("mode", string(r.config.Mode)).
		Bool("dry_run", r.config.DryRun).
		Int("workers", r.config.Pagination.Workers).
		Int("page_size", r.config.Pagination.PageSize).
		Int("max_records", r.config.Pagination.MaxRecords).
		Msg("Sync run starting")

	err := r.run(ctx, cancel, &report, logger)
	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) && !errors.Is(cause, context.Canceled) {
			err = fmt.Errorf("%w: %w", err, cause)
		}
	}
	report.Duration = time.Since(start)

	if err != nil {
		logger.Error().
			Err(err).
			Int("records", report.Fetch.Records).
			Dur("duration", report.Duration).
			Msg("Sync run failed")
		return report, err
	}

	logger.Info().
		Int("records", report.Fetch.Records).
		Int("rows", report.Load.Rows).
		Int("rounds", report.Fetch.Rounds).
		Str("stop_reason", string(report.Fetch.Reason)).
		Dur("duration", report.Duration).
		Msg("Sync run complete")
	return report, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelCauseFunc, report *Report, logger zerolog.Logger) error {
	paginator := pagination.NewPaginator(r.fetcher, r.config.Pagination)

	if r.config.DryRun {
		stats, err := paginator.Run(ctx, pagination.SinkFunc(func(context.Context, pagination.Page) error { return nil }))
		report.Fetch = stats
		return err
	}

	if r.locker != nil {
		lock, err := r.locker.Acquire(ctx, runlock.Key(r.config.Schema, r.config.Entity.Table))
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn().Err(err).Msg("Run lock release failed")
			}
		}()

		keepCtx, stop := context.WithCancel(ctx)
		defer stop()
		go lock.KeepAlive(keepCtx, func(err error) { cancel(err) })
	}

	if err := r.store.EnsureSchema(ctx, r.config.Entity, r.config.Loader.Conflict); err != nil {
		return fmt.Errorf("ensure schema for %s: %w", r.config.Entity.Table, err)
	}

	ld := loader.New(r.store, r.config.Entity, r.config.Loader)

	switch r.config.Mode {
	case ModeStreaming:
		return r.stream(ctx, paginator, ld, report)
	default:
		return r.buffered(ctx, paginator, ld, report)
	}
}

func (r *Runner) buffered(ctx context.Context, p *pagination.Paginator, ld *loader.Loader, report *Report) error {
	records, stats, err := p.FetchAll(ctx)
	report.Fetch = stats
	if err != nil {
		return err
	}

	res, err := ld.Load(ctx, records)
	report.Load = res
	return err
}

func (r *Runner) stream(ctx context.Context, p *pagination.Paginator, ld *loader.Loader, report *Report) error {
	sink, err := ld.Begin(ctx)
	if err != nil {
		return err
	}
	defer sink.Rollback(context.WithoutCancel(ctx))

	stats, err := p.Run(ctx, sink)
	report.Fetch = stats
	if err != nil {
		report.Load = sink.Result()
		return err
	}

	res, err := sink.Commit(ctx)
	report.Load = res
	return err
}
