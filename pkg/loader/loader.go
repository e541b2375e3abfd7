// Package loader maps subgraph records to rows and upserts them in batches
// inside a single transaction.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/pagination"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds loader configuration
type Config struct {
	// BatchSize is the number of rows per upsert statement
	BatchSize int
	// Conflict selects the upsert conflict target
	Conflict store.ConflictMode
}

// DefaultConfig returns the default loader configuration
func DefaultConfig() Config {
	return Config{
		BatchSize: 100,
		Conflict:  store.ConflictNatural,
	}
}

// Result summarizes a load
type Result struct {
	Records  int
	Rows     int
	Affected int64
	Batches  int
	Duration time.Duration
}

// Loader writes records of one entity into a store
type Loader struct {
	store  store.Store
	ent    *entity.Entity
	config Config
	logger zerolog.Logger
}

// New creates a loader. Non-positive batch sizes fall back to the default.
func New(st store.Store, ent *entity.Entity, cfg Config) *Loader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Conflict == "" {
		cfg.Conflict = store.ConflictNatural
	}

	return &Loader{
		store:  st,
		ent:    ent,
		config: cfg,
		logger: log.With().
			Str("component", "loader").
			Str("entity", ent.Name).
			Str("dialect", st.Dialect()).
			Logger(),
	}
}

// Config returns the effective configuration
func (l *Loader) Config() Config {
	return l.config
}

// Load maps every record, collapses duplicate keys and upserts the rows in
// batches of BatchSize within one transaction. Nothing is committed on error.
func (l *Loader) Load(ctx context.Context, records []pagination.Record) (Result, error) {
	start := time.Now()
	res := Result{Records: len(records)}

	rows, err := l.mapRecords(records)
	if err != nil {
		return res, err
	}
	if l.config.Conflict == store.ConflictNatural {
		rows = store.Dedupe(rows, l.ent.KeyIndex())
	}

	tx, err := l.store.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin load of %s: %w", l.ent.Table, err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
				l.logger.Warn().Err(err).Msg("Rollback failed")
			}
		}
	}()

	for _, batch := range store.Chunks(rows, l.config.BatchSize) {
		if err := l.upsert(ctx, tx, batch, &res); err != nil {
			return res, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		loadErrors.WithLabelValues(l.ent.Table).Inc()
		return res, fmt.Errorf("commit load of %s: %w", l.ent.Table, err)
	}
	committed = true

	res.Duration = time.Since(start)
	loadDuration.WithLabelValues(l.ent.Table).Observe(res.Duration.Seconds())

	l.logger.Info().
		Int("records", res.Records).
		Int("rows", res.Rows).
		Int64("affected", res.Affected).
		Int("batches", res.Batches).
		Dur("duration", res.Duration).
		Msg("Load committed")

	return res, nil
}

func (l *Loader) mapRecords(records []pagination.Record) ([]entity.Row, error) {
	rows := make([]entity.Row, 0, len(records))
	for _, rec := range records {
		row, err := l.ent.Map(rec)
		if err != nil {
			loadErrors.WithLabelValues(l.ent.Table).Inc()
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (l *Loader) upsert(ctx context.Context, tx store.Tx, batch []entity.Row, res *Result) error {
	affected, err := tx.Upsert(ctx, l.ent, batch, l.config.Conflict)
	if err != nil {
		loadErrors.WithLabelValues(l.ent.Table).Inc()
		return fmt.Errorf("upsert batch %d of %s: %w", res.Batches+1, l.ent.Table, err)
	}

	res.Batches++
	res.Rows += len(batch)
	res.Affected += affected
	rowsWritten.WithLabelValues(l.ent.Table).Add(float64(len(batch)))
	batchesWritten.WithLabelValues(l.ent.Table).Inc()

	l.logger.Debug().
		Int("batch", res.Batches).
		Int("rows", len(batch)).
		Int64("affected", affected).
		Msg("Batch written")
	return nil
}
