// Package store defines the relational targets rows are upserted into.
//
// A Store owns the connection pool and the schema; a Tx batches upserts so
// that a whole load commits or rolls back as one unit. Dialects live in the
// postgres and sqlserver subpackages.
package store

import (
	"context"
	"fmt"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
)

// ConflictMode selects the column an upsert conflicts on.
type ConflictMode string

const (
	// ConflictNatural conflicts on the entity's natural key (unique index).
	// Re-loading the same records updates them in place.
	ConflictNatural ConflictMode = "natural"

	// ConflictSurrogate conflicts on the serial vid column. Since vid is
	// never supplied the conflict never fires, so every load appends a fresh
	// copy of each record. Only kept to demonstrate that behavior.
	ConflictSurrogate ConflictMode = "surrogate"
)

// ParseConflictMode parses "natural" or "surrogate".
func ParseConflictMode(s string) (ConflictMode, error) {
	switch ConflictMode(s) {
	case ConflictNatural, ConflictSurrogate:
		return ConflictMode(s), nil
	case "":
		return ConflictNatural, nil
	default:
		return "", fmt.Errorf("unknown conflict mode %q (want natural or surrogate)", s)
	}
}

// SurrogateKey is the serial column every table carries.
const SurrogateKey = "vid"

// Store is a relational database rows can be loaded into.
type Store interface {
	// EnsureSchema creates the schema, table and (natural mode) unique key if absent.
	EnsureSchema(ctx context.Context, ent *entity.Entity, mode ConflictMode) error

	// Begin opens a transaction.
	Begin(ctx context.Context) (Tx, error)

	// Dialect names the database flavour, for logs and metrics.
	Dialect() string

	// Close releases the connection pool.
	Close() error
}

// Tx is an open transaction.
type Tx interface {
	// Upsert writes rows and returns the number of rows affected.
	// Rows sharing a key are collapsed first, last one wins.
	Upsert(ctx context.Context, ent *entity.Entity, rows []entity.Row, mode ConflictMode) (int64, error)

	// Commit makes every upsert of the transaction visible.
	Commit(ctx context.Context) error

	// Rollback discards the transaction; it is a no-op after Commit.
	Rollback(ctx context.Context) error
}
