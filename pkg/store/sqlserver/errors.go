package sqlserver

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/Sternrassler/subgraph-sync/pkg/store"
	mssql "github.com/microsoft/go-mssqldb"
)

// mapError converts a driver error into a *store.WriteError.
func mapError(err error, op, table string) error {
	if err == nil {
		return nil
	}

	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return &store.WriteError{
			Op:      op,
			Table:   table,
			Code:    codeFor(msErr.Number),
			Message: fmt.Sprintf("msg %d: %s", msErr.Number, msErr.Message),
			Err:     err,
		}
	}

	code := store.CodeUnknown
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		code = store.CodeConnection
	}
	return &store.WriteError{Op: op, Table: table, Code: code, Message: "statement failed", Err: err}
}

// codeFor maps SQL Server error numbers.
func codeFor(number int32) store.ErrorCode {
	switch number {
	case 2627, 2601, 8672:
		// 8672: MERGE attempted to update or delete the same row more than once
		return store.CodeUniqueViolation
	case 515:
		return store.CodeNotNullViolation
	case 547:
		return store.CodeForeignKeyViolation
	case 8114, 8115, 245, 8152, 2628:
		return store.CodeInvalidValue
	default:
		return store.CodeUnknown
	}
}
