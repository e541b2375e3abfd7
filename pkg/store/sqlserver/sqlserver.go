// Package sqlserver implements store.Store on Microsoft SQL Server.
package sqlserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxParams is the SQL Server RPC parameter limit (2100) minus headroom.
const maxParams = 2000

// Config holds the SQL Server store configuration.
type Config struct {
	// DSN is a sqlserver:// URL (REQUIRED)
	DSN string

	// Schema tables are created in
	Schema string

	// MaxOpenConns caps the pool size
	MaxOpenConns int

	// ConnectTimeout bounds the initial ping
	ConnectTimeout time.Duration
}

// DefaultConfig returns the default configuration for dsn.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:            dsn,
		Schema:         "sgd1",
		MaxOpenConns:   4,
		ConnectTimeout: 5 * time.Second,
	}
}

// Store is a SQL Server backed store.Store.
type Store struct {
	db     *sql.DB
	schema string
	logger zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// New opens the database and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "sgd1"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql server: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sql server: %w", err)
	}

	logger := log.With().Str("component", "sqlserver-store").Str("schema", cfg.Schema).Logger()
	logger.Info().Int("max_open_conns", cfg.MaxOpenConns).Msg("Connected to SQL Server")

	return &Store{db: db, schema: cfg.Schema, logger: logger}, nil
}

// NewWithDB wraps an already opened database.
func NewWithDB(db *sql.DB, schema string) *Store {
	return &Store{
		db:     db,
		schema: schema,
		logger: log.With().Str("component", "sqlserver-store").Str("schema", schema).Logger(),
	}
}

// Dialect implements store.Store.
func (s *Store) Dialect() string { return "sqlserver" }

// EnsureSchema creates the schema, the table and the unique key index if absent.
// Only natural-key mode is supported.
func (s *Store) EnsureSchema(ctx context.Context, ent *entity.Entity, mode store.ConflictMode) error {
	table := s.schema + "." + ent.Table
	if mode != store.ConflictNatural {
		return unsupported("ensure schema", table, mode)
	}

	for _, stmt := range schemaStatements(s.schema, ent) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return mapError(err, "ensure schema", table)
		}
	}

	s.logger.Info().Str("table", table).Msg("Schema ready")
	return nil
}

// Begin implements store.Store.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapError(err, "begin", s.schema)
	}
	return &Tx{tx: tx, schema: s.schema, logger: s.logger}, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is an open SQL Server transaction.
type Tx struct {
	tx     *sql.Tx
	schema string
	logger zerolog.Logger
}

// Upsert implements store.Tx with MERGE.
func (t *Tx) Upsert(ctx context.Context, ent *entity.Entity, rows []entity.Row, mode store.ConflictMode) (int64, error) {
	table := t.schema + "." + ent.Table
	if mode != store.ConflictNatural {
		return 0, unsupported("upsert", table, mode)
	}
	if err := store.CheckRows(ent, rows); err != nil {
		return 0, &store.WriteError{Op: "upsert", Table: table, Code: store.CodeInvalidValue, Message: err.Error()}
	}
	if err := checkIntegral(ent, rows); err != nil {
		return 0, &store.WriteError{Op: "upsert", Table: table, Code: store.CodeInvalidValue, Message: err.Error()}
	}

	rows = store.Dedupe(rows, ent.KeyIndex())

	var affected int64
	for _, chunk := range store.Chunks(rows, store.RowsPerStatement(len(ent.Columns), maxParams)) {
		stmt := mergeStatement(t.schema, ent, len(chunk))

		args := make([]any, 0, len(chunk)*len(ent.Columns))
		for _, row := range chunk {
			args = append(args, row...)
		}

		res, err := t.tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return affected, mapError(err, "upsert", table)
		}
		n, err := res.RowsAffected()
		if err == nil {
			affected += n
		}
	}

	t.logger.Debug().
		Str("table", table).
		Int("rows", len(rows)).
		Int64("affected", affected).
		Msg("Merge executed")

	return affected, nil
}

// Commit implements store.Tx.
func (t *Tx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return mapError(err, "commit", t.schema)
	}
	return nil
}

// Rollback implements store.Tx.
func (t *Tx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return mapError(err, "rollback", t.schema)
	}
	return nil
}

func unsupported(op, table string, mode store.ConflictMode) error {
	return &store.WriteError{
		Op:      op,
		Table:   table,
		Code:    store.CodeUnsupported,
		Message: fmt.Sprintf("conflict mode %q needs a source-side key", mode),
		Err:     store.ErrUnsupportedConflictMode,
	}
}
