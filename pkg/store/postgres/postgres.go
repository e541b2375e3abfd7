// Package postgres implements store.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxParams is the PostgreSQL bind parameter limit per statement.
const maxParams = 65535

// Config holds the PostgreSQL store configuration.
type Config struct {
	// DSN is a postgres:// URL or key=value connection string (REQUIRED)
	DSN string

	// Schema tables are created in
	Schema string

	// MaxConns caps the pool size
	MaxConns int32

	// ConnectTimeout bounds pool creation and the initial ping
	ConnectTimeout time.Duration

	// StatementTimeout is sent as statement_timeout (0 = server default)
	StatementTimeout time.Duration
}

// DefaultConfig returns the default configuration for dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:            dsn,
		Schema:         "sgd1",
		MaxConns:       4,
		ConnectTimeout: 10 * time.Second,
	}
}

// Store is a PostgreSQL backed store.Store.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// New creates the connection pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "sgd1"
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	logger := log.With().Str("component", "postgres-store").Str("schema", cfg.Schema).Logger()

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	if cfg.StatementTimeout > 0 {
		poolConfig.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%dms", cfg.StatementTimeout.Milliseconds())
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	logger.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Uint16("port", poolConfig.ConnConfig.Port).
		Str("database", poolConfig.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("Creating PostgreSQL connection pool")

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{pool: pool, schema: cfg.Schema, logger: logger}, nil
}

// Dialect implements store.Store.
func (s *Store) Dialect() string { return "postgres" }

// EnsureSchema creates the schema, the table and, in natural mode, the unique key index.
func (s *Store) EnsureSchema(ctx context.Context, ent *entity.Entity, mode store.ConflictMode) error {
	for _, stmt := range schemaStatements(s.schema, ent, mode) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return explainSchemaError(mapPgError(err, "ensure schema", s.table(ent)), ent, mode)
		}
	}

	s.logger.Info().
		Str("table", s.table(ent)).
		Str("conflict", string(mode)).
		Msg("Schema ready")
	return nil
}

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapPgError(err, "begin", s.schema)
	}
	return &Tx{tx: tx, schema: s.schema, logger: s.logger}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Pool exposes the underlying pool (for tests and health checks).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) table(ent *entity.Entity) string {
	return s.schema + "." + ent.Table
}

// Tx is an open PostgreSQL transaction.
type Tx struct {
	tx     pgx.Tx
	schema string
	logger zerolog.Logger
}

// Upsert implements store.Tx.
func (t *Tx) Upsert(ctx context.Context, ent *entity.Entity, rows []entity.Row, mode store.ConflictMode) (int64, error) {
	table := t.schema + "." + ent.Table
	if err := store.CheckRows(ent, rows); err != nil {
		return 0, &store.WriteError{Op: "upsert", Table: table, Code: store.CodeInvalidValue, Message: err.Error()}
	}

	if mode == store.ConflictNatural {
		rows = store.Dedupe(rows, ent.KeyIndex())
	}

	var affected int64
	for _, chunk := range store.Chunks(rows, store.RowsPerStatement(len(ent.Columns), maxParams)) {
		sql := upsertStatement(t.schema, ent, len(chunk), mode)

		args := make([]any, 0, len(chunk)*len(ent.Columns))
		for _, row := range chunk {
			args = append(args, row...)
		}

		tag, err := t.tx.Exec(ctx, sql, args...)
		if err != nil {
			return affected, mapPgError(err, "upsert", table)
		}
		affected += tag.RowsAffected()
	}

	t.logger.Debug().
		Str("table", table).
		Int("rows", len(rows)).
		Int64("affected", affected).
		Msg("Upsert executed")

	return affected, nil
}

// Commit implements store.Tx.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return mapPgError(err, "commit", t.schema)
	}
	return nil
}

// Rollback implements store.Tx.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		return mapPgError(err, "rollback", t.schema)
	}
	return nil
}
