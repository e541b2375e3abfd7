package postgres

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/subgraph-sync/pkg/entity"
	"github.com/Sternrassler/subgraph-sync/pkg/store"
	"github.com/jackc/pgx/v5/pgconn"
)

// mapPgError converts a pgx error into a *store.WriteError.
func mapPgError(err error, op, table string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &store.WriteError{
			Op:      op,
			Table:   table,
			Code:    codeFor(pgErr.Code),
			Message: pgErr.Code + " " + pgErr.Message,
			Err:     err,
		}
	}

	code := store.CodeUnknown
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		code = store.CodeConnection
	}
	return &store.WriteError{Op: op, Table: table, Code: code, Message: "statement failed", Err: err}
}

// explainSchemaError adds the likely cause to a unique violation raised while
// building the natural key index: duplicate keys written by surrogate mode.
func explainSchemaError(err error, ent *entity.Entity, mode store.ConflictMode) error {
	var we *store.WriteError
	if mode != store.ConflictNatural || !errors.As(err, &we) || we.Code != store.CodeUniqueViolation {
		return err
	}
	we.Message = fmt.Sprintf("%s; %s holds duplicate %s values, likely from an earlier surrogate-mode run; "+
		"remove the duplicates or sync into another schema", we.Message, we.Table, ent.Key)
	return we
}

// codeFor maps PostgreSQL SQLSTATE codes
// (https://www.postgresql.org/docs/current/errcodes-appendix.html).
func codeFor(sqlstate string) store.ErrorCode {
	switch sqlstate {
	case "23505":
		return store.CodeUniqueViolation
	case "23502":
		return store.CodeNotNullViolation
	case "23503":
		return store.CodeForeignKeyViolation
	case "23514":
		return store.CodeCheckViolation
	}

	switch {
	case len(sqlstate) == 5 && sqlstate[:2] == "22":
		// class 22: data exception (bad numeric, bad range literal, ...)
		return store.CodeInvalidValue
	case len(sqlstate) == 5 && sqlstate[:2] == "08":
		return store.CodeConnection
	case sqlstate == "21000":
		// ON CONFLICT DO UPDATE command cannot affect row a second time
		return store.CodeUniqueViolation
	}
	return store.CodeUnknown
}
