package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/pagination"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
)

// ErrSinkClosed is returned when a StreamSink is used after Commit or Rollback.
var ErrSinkClosed = errors.New("stream sink closed")

// StreamSink is a pagination.Sink that writes rows as pages arrive. Rows are
// buffered up to BatchSize and flushed into one transaction that stays open
// until Commit or Rollback, so memory stays bounded by the batch size.
type StreamSink struct {
	loader *Loader
	tx     store.Tx
	buf    []entity.Row
	res    Result
	start  time.Time
	closed bool
}

var _ pagination.Sink = (*StreamSink)(nil)

// Begin opens the transaction a StreamSink writes into.
func (l *Loader) Begin(ctx context.Context) (*StreamSink, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin load of %s: %w", l.ent.Table, err)
	}

	l.logger.Debug().Int("batch_size", l.config.BatchSize).Msg("Streaming load started")

	return &StreamSink{
		loader: l,
		tx:     tx,
		buf:    make([]entity.Row, 0, l.config.BatchSize),
		start:  time.Now(),
	}, nil
}

// Write maps the page's records and flushes every full batch.
func (s *StreamSink) Write(ctx context.Context, page pagination.Page) error {
	if s.closed {
		return ErrSinkClosed
	}

	for _, rec := range page.Records {
		row, err := s.loader.ent.Map(rec)
		if err != nil {
			loadErrors.WithLabelValues(s.loader.ent.Table).Inc()
			return err
		}
		s.buf = append(s.buf, row)
		s.res.Records++

		if len(s.buf) >= s.loader.config.BatchSize {
			if err := s.flush(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *StreamSink) flush(ctx context.Context) error {
	if len(s.buf) == 0 {
		return nil
	}
	batch := s.buf
	if s.loader.config.Conflict == store.ConflictNatural {
		batch = store.Dedupe(batch, s.loader.ent.KeyIndex())
	}
	if err := s.loader.upsert(ctx, s.tx, batch, &s.res); err != nil {
		return err
	}
	s.buf = s.buf[:0]
	return nil
}

// Commit flushes the remaining rows and commits the transaction.
func (s *StreamSink) Commit(ctx context.Context) (Result, error) {
	if s.closed {
		return s.res, ErrSinkClosed
	}

	if err := s.flush(ctx); err != nil {
		return s.res, err
	}

	s.closed = true
	if err := s.tx.Commit(ctx); err != nil {
		loadErrors.WithLabelValues(s.loader.ent.Table).Inc()
		return s.res, fmt.Errorf("commit load of %s: %w", s.loader.ent.Table, err)
	}

	s.res.Duration = time.Since(s.start)
	loadDuration.WithLabelValues(s.loader.ent.Table).Observe(s.res.Duration.Seconds())

	s.loader.logger.Info().
		Int("records", s.res.Records).
		Int("rows", s.res.Rows).
		Int64("affected", s.res.Affected).
		Int("batches", s.res.Batches).
		Dur("duration", s.res.Duration).
		Msg("Streaming load committed")

	return s.res, nil
}

// Rollback discards everything written so far. It is safe to call after Commit.
func (s *StreamSink) Rollback(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil

	if err := s.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback load of %s: %w", s.loader.ent.Table, err)
	}

	s.loader.logger.Warn().
		Int("records", s.res.Records).
		Int("batches", s.res.Batches).
		Msg("Streaming load rolled back")
	return nil
}

// Result returns the progress so far.
func (s *StreamSink) Result() Result {
	return s.res
}
